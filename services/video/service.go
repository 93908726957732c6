package video

import (
	"context"

	"github.com/nijaru/videoverse/errors"
	"github.com/nijaru/videoverse/models"
	"github.com/nijaru/videoverse/repository"
	"github.com/nijaru/videoverse/validation"
	"github.com/sirupsen/logrus"
)

type service struct {
	repo        Repository
	files       Files
	invalidator Invalidator
	logger      *logrus.Logger
}

func NewService(repo Repository, files Files, invalidator Invalidator, logger *logrus.Logger) Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &service{
		repo:        repo,
		files:       files,
		invalidator: invalidator,
		logger:      logger,
	}
}

func (s *service) List(ctx context.Context, userID string) ([]*models.Video, error) {
	const op = "VideoService.List"

	if userID == "" {
		return nil, errors.Unauthenticated(op, nil, "")
	}
	return s.repo.List(ctx, userID)
}

func (s *service) Watch(ctx context.Context, userID string) (<-chan repository.Snapshot, error) {
	const op = "VideoService.Watch"

	if userID == "" {
		return nil, errors.Unauthenticated(op, nil, "")
	}
	return s.repo.Watch(ctx, userID)
}

// Rename updates the provider file name first and the record only after
// the provider accepted it.
func (s *service) Rename(ctx context.Context, userID string, tokens TokenSource, id, name string) (*models.Video, error) {
	const op = "VideoService.Rename"

	name, err := validation.NormalizeName(name)
	if err != nil {
		return nil, err
	}

	video, token, err := s.ownedWithToken(ctx, op, userID, tokens, id)
	if err != nil {
		return nil, err
	}

	logger := s.logger.WithFields(logrus.Fields{
		"operation": op,
		"video_id":  id,
		"file_id":   video.VideoURL,
	})

	if err := s.files.Rename(ctx, token, video.VideoURL, name); err != nil {
		logger.WithError(err).Warn("Provider rename failed")
		return nil, err
	}

	if err := s.repo.Update(ctx, id, models.VideoUpdate{Name: &name}); err != nil {
		logger.WithError(err).Error("Record rename failed after provider rename")
		return nil, err
	}

	s.invalidate(ctx, id)
	video.Name = name
	logger.WithField("name", name).Info("Video renamed")
	return video, nil
}

// Delete removes the provider file, then the record. A provider file that is
// already gone does not block removing the record.
func (s *service) Delete(ctx context.Context, userID string, tokens TokenSource, id string) error {
	const op = "VideoService.Delete"

	video, token, err := s.ownedWithToken(ctx, op, userID, tokens, id)
	if err != nil {
		return err
	}

	logger := s.logger.WithFields(logrus.Fields{
		"operation": op,
		"video_id":  id,
		"file_id":   video.VideoURL,
	})

	if err := s.files.Delete(ctx, token, video.VideoURL); err != nil {
		logger.WithError(err).Warn("Provider delete failed")
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		logger.WithError(err).Error("Record delete failed after provider delete")
		return err
	}

	s.invalidate(ctx, id)
	logger.Info("Video deleted")
	return nil
}

func (s *service) Details(ctx context.Context, userID string, tokens TokenSource, id string) (*models.Video, *models.FileDetails, error) {
	const op = "VideoService.Details"

	video, token, err := s.ownedWithToken(ctx, op, userID, tokens, id)
	if err != nil {
		return nil, nil, err
	}

	details, err := s.files.Metadata(ctx, token, video.VideoURL)
	if err != nil {
		return nil, nil, err
	}
	return video, details, nil
}

// ownedWithToken loads the record, hides records of other users as not
// found, then obtains a fresh token.
func (s *service) ownedWithToken(ctx context.Context, op, userID string, tokens TokenSource, id string) (*models.Video, string, error) {
	if userID == "" {
		return nil, "", errors.Unauthenticated(op, nil, "")
	}
	if id == "" {
		return nil, "", errors.InvalidInput(op, nil, "ID is required")
	}

	video, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if !video.OwnedBy(userID) {
		return nil, "", errors.NotFound(op, nil, "Video not found")
	}

	token, err := tokens.AccessToken(ctx)
	if err != nil {
		return nil, "", err
	}
	return video, token, nil
}

func (s *service) invalidate(ctx context.Context, id string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, id)
	}
}

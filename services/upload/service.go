package upload

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nijaru/videoverse/drive"
	"github.com/nijaru/videoverse/errors"
	"github.com/nijaru/videoverse/metrics"
	"github.com/nijaru/videoverse/models"
	"github.com/nijaru/videoverse/validation"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// TokenSource yields an access token valid for the whole upload.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type Storage interface {
	UploadDataURI(ctx context.Context, req models.DriveUploadRequest) (*models.DriveUploadResponse, error)
}

type Thumbnailer interface {
	Thumbnail(ctx context.Context, video []byte) (string, error)
}

type Store interface {
	Create(ctx context.Context, v *models.Video) error
}

// File is a video selected for upload.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

type Service struct {
	storage    Storage
	thumbnails Thumbnailer
	store      Store
	validator  *validation.Validator
	tracker    *Tracker
	logger     *logrus.Logger
	now        func() time.Time
}

func NewService(
	storage Storage,
	thumbnails Thumbnailer,
	store Store,
	validator *validation.Validator,
	tracker *Tracker,
	logger *logrus.Logger,
) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		storage:    storage,
		thumbnails: thumbnails,
		store:      store,
		validator:  validator,
		tracker:    tracker,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Service) Tracker() *Tracker {
	return s.tracker
}

// Attempts lists the user's in-flight and recently finished uploads.
func (s *Service) Attempts(userID string) []Attempt {
	return s.tracker.List(userID)
}

// Upload runs one attempt through authorizing, preparing, uploading and
// finalizing. Non-video files are rejected before a token is requested.
// attemptID may be empty.
func (s *Service) Upload(ctx context.Context, userID string, tokens TokenSource, file File, attemptID string) (*models.Video, error) {
	const op = "UploadService.Upload"

	if err := s.validator.ValidateVideoFile(file.MimeType, int64(len(file.Data))); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, errors.Unauthenticated(op, nil, "")
	}

	if attemptID == "" {
		attemptID = uuid.New().String()
	}
	logger := s.logger.WithFields(logrus.Fields{
		"operation":  op,
		"attempt_id": attemptID,
		"user_id":    userID,
		"file_name":  file.Name,
		"size":       len(file.Data),
	})

	attempt, ok := s.tracker.start(attemptID, userID, file.Name, int64(len(file.Data)))
	if !ok {
		return nil, errors.InvalidInput(op, nil, "An upload with this id is already in progress")
	}

	video, err := s.run(ctx, logger, attempt, userID, tokens, file)
	if err != nil {
		s.tracker.fail(attempt)
		metrics.UploadsTotal.WithLabelValues(string(StateFailed)).Inc()
		logger.WithError(err).Warn("Upload failed")
		return nil, err
	}

	s.tracker.complete(attempt, video.ID)
	metrics.UploadsTotal.WithLabelValues(string(StateDone)).Inc()
	logger.WithField("video_id", video.ID).Info("Upload complete")
	return video, nil
}

func (s *Service) run(ctx context.Context, logger *logrus.Entry, attempt *Attempt, userID string, tokens TokenSource, file File) (*models.Video, error) {
	const op = "UploadService.run"

	s.tracker.transition(attempt, StateAuthorizing)
	token, err := tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	s.tracker.transition(attempt, StatePreparing)
	thumbnailURI, dataURI, err := s.prepare(ctx, file)
	if err != nil {
		return nil, err
	}

	s.tracker.transition(attempt, StateUploading)
	started := s.now()
	resp, err := s.storage.UploadDataURI(ctx, models.DriveUploadRequest{
		FileDataURI: dataURI,
		FileName:    file.Name,
		MimeType:    file.MimeType,
		AccessToken: token,
	})
	if err != nil {
		return nil, err
	}
	elapsed := s.now().Sub(started)
	speed := throughput(int64(len(file.Data)), elapsed)

	metrics.UploadBytes.Add(float64(len(file.Data)))
	metrics.UploadDuration.Observe(elapsed.Seconds())
	s.tracker.update(attempt, func(a *Attempt) { a.SpeedBps = speed })
	logger.WithFields(logrus.Fields{
		"file_id":   resp.FileID,
		"elapsed":   elapsed,
		"speed_bps": speed,
	}).Debug("Provider upload finished")

	s.tracker.transition(attempt, StateFinalizing)
	video := &models.Video{
		Name:         file.Name,
		ThumbnailURL: thumbnailURI,
		VideoURL:     resp.FileID,
		UserID:       userID,
	}
	if err := s.store.Create(ctx, video); err != nil {
		// The provider object is left without a record.
		logger.WithError(err).WithField("file_id", resp.FileID).Error("Failed to record uploaded video")
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.Internal(op, err, "Failed to save video")
	}

	return video, nil
}

// prepare generates the thumbnail and the upload payload concurrently.
// Either failure aborts the attempt.
func (s *Service) prepare(ctx context.Context, file File) (thumbnailURI, dataURI string, err error) {
	const op = "UploadService.prepare"

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		uri, err := s.thumbnails.Thumbnail(gctx, file.Data)
		if err != nil {
			return errors.InvalidInput(op, err, "Could not generate a thumbnail for this video")
		}
		thumbnailURI = uri
		return nil
	})
	g.Go(func() error {
		dataURI = drive.EncodeDataURI(file.MimeType, file.Data)
		return nil
	})

	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return thumbnailURI, dataURI, nil
}

// throughput returns bytes per second over elapsed.
func throughput(size int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	return float64(size) / elapsed.Seconds()
}

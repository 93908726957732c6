package video

import (
	"context"

	"github.com/nijaru/videoverse/models"
	"github.com/nijaru/videoverse/repository"
)

type Repository = repository.VideoRepository

// TokenSource yields an access token for provider calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Files manages stored video objects at the provider.
type Files interface {
	Delete(ctx context.Context, accessToken, fileID string) error
	Rename(ctx context.Context, accessToken, fileID, name string) error
	Metadata(ctx context.Context, accessToken, fileID string) (*models.FileDetails, error)
}

// Invalidator drops cached playback entries for a record.
type Invalidator interface {
	Invalidate(ctx context.Context, id string)
}

type Service interface {
	List(ctx context.Context, userID string) ([]*models.Video, error)
	Watch(ctx context.Context, userID string) (<-chan repository.Snapshot, error)
	Rename(ctx context.Context, userID string, tokens TokenSource, id, name string) (*models.Video, error)
	Delete(ctx context.Context, userID string, tokens TokenSource, id string) error
	Details(ctx context.Context, userID string, tokens TokenSource, id string) (*models.Video, *models.FileDetails, error)
}

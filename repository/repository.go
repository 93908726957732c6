package repository

import (
	"context"
	"sort"

	"github.com/nijaru/videoverse/models"
)

// Snapshot is one emission of a live listing: the full, ordered set of a
// user's records, or a terminal error.
type Snapshot struct {
	Videos []*models.Video
	Err    error
}

type VideoRepository interface {
	// Create stores v. The store assigns v.ID and v.CreatedAt.
	Create(ctx context.Context, v *models.Video) error
	Get(ctx context.Context, id string) (*models.Video, error)
	// List returns the user's records, newest first, pending timestamps last.
	List(ctx context.Context, userID string) ([]*models.Video, error)
	Update(ctx context.Context, id string, update models.VideoUpdate) error
	Delete(ctx context.Context, id string) error
	// Watch emits an initial snapshot and one per change until ctx is
	// cancelled. The channel is closed when the subscription ends; a
	// Snapshot with Err set is always the last one.
	Watch(ctx context.Context, userID string) (<-chan Snapshot, error)
	Close() error
}

// SortNewestFirst orders records by CreatedAt descending; records still
// awaiting a store timestamp go last.
func SortNewestFirst(videos []*models.Video) {
	sort.SliceStable(videos, func(i, j int) bool {
		a, b := videos[i], videos[j]
		if a.IsPending() != b.IsPending() {
			return !a.IsPending()
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

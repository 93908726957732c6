package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/nijaru/videoverse/errors"
	"github.com/nijaru/videoverse/metrics"
	"github.com/nijaru/videoverse/models"
	"github.com/nijaru/videoverse/repository"
	"github.com/oklog/ulid/v2"
)

type Repository struct {
	db       *DB
	notifier *notifier
}

var _ repository.VideoRepository = (*Repository)(nil)

func NewRepository(db *DB) *Repository {
	return &Repository{db: db, notifier: newNotifier()}
}

func (r *Repository) Create(ctx context.Context, video *models.Video) error {
	const op = "SQLiteRepository.Create"

	id := ulid.Make().String()
	var createdAt string

	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.statements.insert.QueryRowContext(ctx,
			id,
			video.Name,
			video.ThumbnailURL,
			video.VideoURL,
			video.UserID,
		).Scan(&createdAt)
	})
	metrics.StoreOperations.WithLabelValues("create", metrics.Status(err)).Inc()
	if err != nil {
		return errors.Internal(op, err, "Failed to save video")
	}

	ts, err := parseTimestamp(createdAt)
	if err != nil {
		return errors.Internal(op, err, "Invalid stored timestamp")
	}

	video.ID = id
	video.CreatedAt = ts
	r.notifier.notify(video.UserID)
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.Video, error) {
	const op = "SQLiteRepository.Get"

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	video, err := scanVideo(r.db.statements.get.QueryRowContext(ctx, id))
	metrics.StoreOperations.WithLabelValues("get", metrics.Status(err)).Inc()
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(op, nil, "Video not found")
	}
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to query video")
	}
	return video, nil
}

func (r *Repository) List(ctx context.Context, userID string) ([]*models.Video, error) {
	const op = "SQLiteRepository.List"

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.db.statements.list.QueryContext(ctx, userID)
	if err != nil {
		metrics.StoreOperations.WithLabelValues("list", "error").Inc()
		return nil, errors.Internal(op, err, "Failed to list videos")
	}
	defer rows.Close()

	videos := make([]*models.Video, 0)
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, errors.Internal(op, err, "Failed to read video")
		}
		videos = append(videos, video)
	}
	err = rows.Err()
	metrics.StoreOperations.WithLabelValues("list", metrics.Status(err)).Inc()
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to list videos")
	}

	repository.SortNewestFirst(videos)
	return videos, nil
}

func (r *Repository) Update(ctx context.Context, id string, update models.VideoUpdate) error {
	const op = "SQLiteRepository.Update"

	if update.Name == nil {
		return nil
	}

	var userID string
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.statements.rename.QueryRowContext(ctx, *update.Name, id).Scan(&userID)
	})
	metrics.StoreOperations.WithLabelValues("update", metrics.Status(err)).Inc()
	if err == sql.ErrNoRows {
		return errors.NotFound(op, nil, "Video not found")
	}
	if err != nil {
		return errors.Internal(op, err, "Failed to update video")
	}

	r.notifier.notify(userID)
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	const op = "SQLiteRepository.Delete"

	var userID string
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.statements.delete.QueryRowContext(ctx, id).Scan(&userID)
	})
	metrics.StoreOperations.WithLabelValues("delete", metrics.Status(err)).Inc()
	if err == sql.ErrNoRows {
		return errors.NotFound(op, nil, "Video not found")
	}
	if err != nil {
		return errors.Internal(op, err, "Failed to delete video")
	}

	r.notifier.notify(userID)
	return nil
}

// Watch re-queries the user's records after every local write.
func (r *Repository) Watch(ctx context.Context, userID string) (<-chan repository.Snapshot, error) {
	out := make(chan repository.Snapshot)
	signal := r.notifier.subscribe(userID)

	go func() {
		defer close(out)
		defer r.notifier.unsubscribe(userID, signal)

		emit := func() bool {
			videos, err := r.List(ctx, userID)
			if ctx.Err() != nil {
				return false
			}
			select {
			case out <- repository.Snapshot{Videos: videos, Err: err}:
			case <-ctx.Done():
				return false
			}
			return err == nil
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
				if !emit() {
					return
				}
			}
		}
	}()

	return out, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.db.config.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.db.config.QueryTimeout)
}

// withRetry retries fn while the database reports lock contention.
func (r *Repository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := r.db.config.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		qctx, cancel := r.queryContext(ctx)
		err = fn(qctx)
		cancel()
		if err == nil || !isLockError(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.db.config.RetryDelay * time.Duration(i+1)):
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVideo(row rowScanner) (*models.Video, error) {
	video := &models.Video{}
	var createdAt string

	if err := row.Scan(
		&video.ID,
		&video.Name,
		&video.ThumbnailURL,
		&video.VideoURL,
		&video.UserID,
		&createdAt,
	); err != nil {
		return nil, err
	}

	ts, err := parseTimestamp(createdAt)
	if err != nil {
		return nil, err
	}
	video.CreatedAt = ts
	return video, nil
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func isLockError(err error) bool {
	return strings.Contains(err.Error(), "database is locked") ||
		strings.Contains(err.Error(), "busy")
}

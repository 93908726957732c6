package playback

import (
	"context"
	"time"

	"github.com/nijaru/videoverse/drive"
	"github.com/nijaru/videoverse/errors"
	"github.com/nijaru/videoverse/metrics"
	"github.com/nijaru/videoverse/models"
)

const (
	siteDescription = "A video shared from VideoVerse"
	// Embed player dimensions advertised to link previews.
	VideoWidth  = 1280
	VideoHeight = 720
)

// Playback is everything the public player page needs for one record.
type Playback struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	OGDescription string `json:"ogDescription"`
	EmbedURL      string `json:"embedUrl"`
	ShareURL      string `json:"shareUrl"`
	ThumbnailURL  string `json:"thumbnailUrl,omitempty"`
}

type Getter interface {
	Get(ctx context.Context, id string) (*models.Video, error)
}

// Resolver maps a record id to its public player. It needs no credentials.
type Resolver struct {
	repo          Getter
	cache         Cache
	ttl           time.Duration
	embedTemplate string
	baseURL       string
}

func NewResolver(repo Getter, cache Cache, ttl time.Duration, embedTemplate, baseURL string) *Resolver {
	return &Resolver{
		repo:          repo,
		cache:         cache,
		ttl:           ttl,
		embedTemplate: embedTemplate,
		baseURL:       baseURL,
	}
}

func (r *Resolver) Resolve(ctx context.Context, id string) (*Playback, error) {
	const op = "Resolver.Resolve"

	if id == "" {
		return nil, errors.NotFound(op, nil, "Video not found")
	}

	if r.cache != nil {
		if p, ok := r.cache.Get(ctx, id); ok {
			metrics.PlaybackCache.WithLabelValues("hit").Inc()
			return p, nil
		}
		metrics.PlaybackCache.WithLabelValues("miss").Inc()
	}

	video, err := r.repo.Get(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NotFound(op, err, "Video not found")
		}
		return nil, err
	}

	p := &Playback{
		ID:            video.ID,
		Title:         video.Name,
		Description:   "Watch the video: " + video.Name,
		OGDescription: siteDescription,
		EmbedURL:      drive.EmbedURL(r.embedTemplate, video.VideoURL),
		ShareURL:      models.ShareURL(r.baseURL, video.ID),
		ThumbnailURL:  video.ThumbnailURL,
	}

	if r.cache != nil {
		r.cache.Set(ctx, p, r.ttl)
	}
	return p, nil
}

// Invalidate drops a cached entry after its record changed.
func (r *Resolver) Invalidate(ctx context.Context, id string) {
	if r.cache != nil {
		r.cache.Invalidate(ctx, id)
	}
}

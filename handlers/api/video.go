package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nijaru/videoverse/config"
	"github.com/nijaru/videoverse/errors"
	"github.com/nijaru/videoverse/models"
	"github.com/nijaru/videoverse/repository"
	"github.com/nijaru/videoverse/services/upload"
	"github.com/nijaru/videoverse/services/video"
	"github.com/nijaru/videoverse/validation"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Uploads is the upload orchestrator as seen by HTTP.
type Uploads interface {
	Upload(ctx context.Context, userID string, tokens upload.TokenSource, file upload.File, attemptID string) (*models.Video, error)
	Attempts(userID string) []upload.Attempt
}

const (
	multipartMemory   = 32 << 20
	sniffLen          = 512
	heartbeatInterval = 25 * time.Second
)

type VideoHandler struct {
	videos    video.Service
	uploads   Uploads
	validator *validation.Validator
	config    *config.Config
	logger    *logrus.Logger
}

func NewVideoHandler(videos video.Service, uploads Uploads, validator *validation.Validator, cfg *config.Config, logger *logrus.Logger) *VideoHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &VideoHandler{
		videos:    videos,
		uploads:   uploads,
		validator: validator,
		config:    cfg,
		logger:    logger,
	}
}

// HandleUpload handles POST /api/v1/videos
func (h *VideoHandler) HandleUpload(w http.ResponseWriter, r *http.Request, p principal) {
	const op = "VideoHandler.HandleUpload"

	clearDeadlines(w, r)
	if h.config.Upload.MaxFileSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.config.Upload.MaxFileSize+multipartMemory/32)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondError(w, r, errors.InvalidInput(op, err, "Invalid upload form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errors.InvalidInput(op, err, "A video file is required"))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		respondError(w, r, errors.InvalidInput(op, err, "Failed to read upload"))
		return
	}

	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	file := upload.File{
		Name:     header.Filename,
		MimeType: validation.DetectMIME(header.Header.Get("Content-Type"), head),
		Data:     data,
	}

	ctx := r.Context()
	if h.config.Upload.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Upload.Timeout)
		defer cancel()
	}

	v, err := h.uploads.Upload(ctx, p.session.UserID, p.tokens, file, r.Header.Get("X-Upload-ID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusCreated, models.NewVideoResponse(v, h.config.PublicBaseURL))
}

// HandleUploads handles GET /api/v1/uploads
func (h *VideoHandler) HandleUploads(w http.ResponseWriter, r *http.Request, p principal) {
	respondJSON(w, r, http.StatusOK, h.uploads.Attempts(p.session.UserID))
}

// HandleList handles GET /api/v1/videos
func (h *VideoHandler) HandleList(w http.ResponseWriter, r *http.Request, p principal) {
	videos, err := h.videos.List(r.Context(), p.session.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, models.NewVideoResponses(videos, h.config.PublicBaseURL))
}

// HandleStream handles GET /api/v1/videos/stream as server-sent events.
// Each "videos" event carries the full ordered list; a terminal failure is
// sent as an "error" event before the stream closes.
func (h *VideoHandler) HandleStream(w http.ResponseWriter, r *http.Request, p principal) {
	const op = "VideoHandler.HandleStream"
	logger := h.logger.WithFields(logrus.Fields{
		"operation": op,
		"user_id":   p.session.UserID,
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stream, err := h.videos.Watch(ctx, p.session.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !pkgerrors.Is(err, http.ErrNotSupported) {
		logger.WithError(err).Debug("Could not clear write deadline")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	rc.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			rc.Flush()
		case snap, ok := <-stream:
			if !ok {
				return
			}
			if snap.Err != nil {
				_, msg := errorStatus(snap.Err)
				logger.WithError(snap.Err).Warn("Library stream ended")
				writeEvent(w, "error", map[string]string{"error": msg})
				rc.Flush()
				return
			}
			if err := writeEvent(w, "videos", h.snapshotPayload(snap)); err != nil {
				return
			}
			rc.Flush()
		}
	}
}

func (h *VideoHandler) snapshotPayload(snap repository.Snapshot) []*models.VideoResponse {
	return models.NewVideoResponses(snap.Videos, h.config.PublicBaseURL)
}

func writeEvent(w io.Writer, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// HandleRename handles PATCH /api/v1/videos/{id}
func (h *VideoHandler) HandleRename(w http.ResponseWriter, r *http.Request, p principal) {
	const op = "VideoHandler.HandleRename"

	var req models.RenameRequest
	if err := readJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.validator.Struct(op, &req); err != nil {
		respondError(w, r, err)
		return
	}

	v, err := h.videos.Rename(r.Context(), p.session.UserID, p.tokens, r.PathValue("id"), req.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, models.NewVideoResponse(v, h.config.PublicBaseURL))
}

// HandleDelete handles DELETE /api/v1/videos/{id}
func (h *VideoHandler) HandleDelete(w http.ResponseWriter, r *http.Request, p principal) {
	id := r.PathValue("id")
	if err := h.videos.Delete(r.Context(), p.session.UserID, p.tokens, id); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"id":      id,
		"deleted": true,
	})
}

// HandleDetails handles GET /api/v1/videos/{id}/details
func (h *VideoHandler) HandleDetails(w http.ResponseWriter, r *http.Request, p principal) {
	v, details, err := h.videos.Details(r.Context(), p.session.UserID, p.tokens, r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, models.VideoDetailsResponse{
		VideoResponse: models.NewVideoResponse(v, h.config.PublicBaseURL),
		Details:       *details,
	})
}

package api

import (
	"context"
	"net/http"

	"github.com/nijaru/videoverse/models"
	"github.com/nijaru/videoverse/validation"
	"github.com/sirupsen/logrus"
)

// DataURIUploader stores a base64 payload on the caller's Drive.
type DataURIUploader interface {
	UploadDataURI(ctx context.Context, req models.DriveUploadRequest) (*models.DriveUploadResponse, error)
}

type DriveHandler struct {
	uploader  DataURIUploader
	validator *validation.Validator
	maxBody   int64
	logger    *logrus.Logger
}

func NewDriveHandler(uploader DataURIUploader, validator *validation.Validator, maxFileSize int64, logger *logrus.Logger) *DriveHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	var maxBody int64
	if maxFileSize > 0 {
		// base64 inflates by 4/3; leave room for the JSON envelope.
		maxBody = maxFileSize/3*4 + 64<<10
	}
	return &DriveHandler{
		uploader:  uploader,
		validator: validator,
		maxBody:   maxBody,
		logger:    logger,
	}
}

// HandleUpload handles POST /api/v1/drive/upload. The caller supplies its
// own access token, so no session is required.
func (h *DriveHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	const op = "DriveHandler.HandleUpload"

	if err := h.validator.ValidateRequest(r, validation.RequestValidationOpts{
		MaxContentLength: h.maxBody,
		AllowedMethods:   []string{http.MethodPost},
		RequireJSON:      true,
	}); err != nil {
		respondError(w, r, err)
		return
	}
	clearDeadlines(w, r)
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req models.DriveUploadRequest
	if err := readJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.validator.Struct(op, &req); err != nil {
		respondError(w, r, err)
		return
	}

	resp, err := h.uploader.UploadDataURI(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"operation": op,
		"file_id":   resp.FileID,
		"file_name": req.FileName,
	}).Info("Stored file on Drive")
	respondJSON(w, r, http.StatusOK, resp)
}

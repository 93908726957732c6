package drive

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	apperrors "github.com/nijaru/videoverse/errors"
	"github.com/nijaru/videoverse/metrics"
	"github.com/nijaru/videoverse/models"
	"github.com/sirupsen/logrus"
)

const metadataFields = "size,mimeType,createdTime"

// Manager performs post-upload file operations against the Drive REST API.
type Manager struct {
	client *resty.Client
	logger *logrus.Logger
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type fileMetadata struct {
	Size        string    `json:"size"`
	MimeType    string    `json:"mimeType"`
	CreatedTime time.Time `json:"createdTime"`
}

func NewManager(baseURL string, timeout time.Duration, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)

	return &Manager{client: client, logger: logger}
}

func (m *Manager) request(ctx context.Context, accessToken, fileID string) *resty.Request {
	return m.client.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetPathParam("fileId", fileID).
		SetError(&apiError{})
}

// Delete removes the file. A file that no longer exists counts as deleted.
func (m *Manager) Delete(ctx context.Context, accessToken, fileID string) error {
	const op = "Manager.Delete"

	resp, err := m.request(ctx, accessToken, fileID).Delete("/files/{fileId}")
	if err != nil {
		metrics.DriveOperations.WithLabelValues("delete", "error").Inc()
		return apperrors.Upstream(op, err, "Failed to delete file from Google Drive")
	}

	if resp.StatusCode() == http.StatusNotFound {
		m.logger.WithFields(logrus.Fields{
			"operation": op,
			"file_id":   fileID,
		}).Info("File already absent from Drive")
		metrics.DriveOperations.WithLabelValues("delete", "ok").Inc()
		return nil
	}
	if resp.IsError() {
		metrics.DriveOperations.WithLabelValues("delete", "error").Inc()
		return mapStatus(op, resp, "Failed to delete file from Google Drive")
	}

	metrics.DriveOperations.WithLabelValues("delete", "ok").Inc()
	return nil
}

// Rename sets the provider-side file name.
func (m *Manager) Rename(ctx context.Context, accessToken, fileID, name string) error {
	const op = "Manager.Rename"

	resp, err := m.request(ctx, accessToken, fileID).
		SetBody(map[string]string{"name": name}).
		Patch("/files/{fileId}")
	if err != nil {
		metrics.DriveOperations.WithLabelValues("rename", "error").Inc()
		return apperrors.Upstream(op, err, "Failed to rename file in Google Drive")
	}
	if resp.IsError() {
		metrics.DriveOperations.WithLabelValues("rename", "error").Inc()
		return mapStatus(op, resp, "Failed to rename file in Google Drive")
	}

	metrics.DriveOperations.WithLabelValues("rename", "ok").Inc()
	return nil
}

// Metadata fetches size, MIME type and creation time of the file.
func (m *Manager) Metadata(ctx context.Context, accessToken, fileID string) (*models.FileDetails, error) {
	const op = "Manager.Metadata"

	var meta fileMetadata
	resp, err := m.request(ctx, accessToken, fileID).
		SetQueryParam("fields", metadataFields).
		SetResult(&meta).
		Get("/files/{fileId}")
	if err != nil {
		metrics.DriveOperations.WithLabelValues("metadata", "error").Inc()
		return nil, apperrors.Upstream(op, err, "Failed to fetch file details from Google Drive")
	}
	if resp.IsError() {
		metrics.DriveOperations.WithLabelValues("metadata", "error").Inc()
		return nil, mapStatus(op, resp, "Failed to fetch file details from Google Drive")
	}
	metrics.DriveOperations.WithLabelValues("metadata", "ok").Inc()

	details := &models.FileDetails{
		MimeType:  meta.MimeType,
		CreatedAt: meta.CreatedTime,
	}
	if meta.Size != "" {
		size, err := strconv.ParseInt(meta.Size, 10, 64)
		if err != nil {
			return nil, apperrors.Upstream(op, err, "Invalid file size from Google Drive")
		}
		details.Size = size
	}
	return details, nil
}

// mapStatus converts a non-2xx provider response into an AppError that
// keeps the provider's message.
func mapStatus(op string, resp *resty.Response, fallback string) error {
	message := fallback
	if apiErr, ok := resp.Error().(*apiError); ok && apiErr.Error.Message != "" {
		message = fmt.Sprintf("%s: %s", fallback, apiErr.Error.Message)
	}
	cause := fmt.Errorf("drive responded %s", resp.Status())

	switch resp.StatusCode() {
	case http.StatusUnauthorized:
		return apperrors.Unauthenticated(op, cause, "")
	case http.StatusForbidden:
		return apperrors.PermissionDenied(op, cause, PermissionDeniedMessage)
	case http.StatusNotFound:
		return apperrors.NotFound(op, cause, message)
	default:
		return apperrors.Upstream(op, cause, message)
	}
}

// EmbedURL renders the public player address for a provider file id.
func EmbedURL(template, fileID string) string {
	return fmt.Sprintf(template, fileID)
}

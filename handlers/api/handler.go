package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/nijaru/videoverse/errors"
	"github.com/nijaru/videoverse/middleware"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Response represents a standardized API response
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, code int, payload interface{}) {
	response := Response{
		Success:   code >= 200 && code < 300,
		Data:      payload,
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	}

	if !response.Success && payload != nil {
		if err, ok := payload.(string); ok {
			response.Error = err
			response.Data = nil
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		middleware.GetLogger(r.Context()).WithError(err).Error("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := errorStatus(err)

	entry := middleware.GetLogger(r.Context()).WithFields(logrus.Fields{
		"error":      err,
		"status":     code,
		"request_id": middleware.GetRequestID(r.Context()),
		"path":       r.URL.Path,
		"method":     r.Method,
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request error")
	} else {
		entry.Debug("Request rejected")
	}

	respondJSON(w, r, code, msg)
}

// clearDeadlines lifts the server-wide read and write deadlines for
// handlers that stream large request bodies.
func clearDeadlines(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	for _, set := range []func(time.Time) error{rc.SetReadDeadline, rc.SetWriteDeadline} {
		if err := set(time.Time{}); err != nil && !pkgerrors.Is(err, http.ErrNotSupported) {
			middleware.GetLogger(r.Context()).WithError(err).Debug("Could not clear connection deadline")
		}
	}
}

func errorStatus(err error) (int, string) {
	if appErr, ok := errors.As(err); ok {
		return appErr.Code, appErr.Message
	}
	if pkgerrors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "Request timed out"
	}
	return http.StatusInternalServerError, "Internal server error"
}

func readJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.InvalidInput("readJSON", err, "Invalid JSON format")
	}
	return nil
}

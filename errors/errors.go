package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an AppError independently of its HTTP status.
type Kind string

const (
	KindInvalidInput     Kind = "invalid_input"
	KindUnauthenticated  Kind = "unauthenticated"
	KindPermissionDenied Kind = "permission_denied"
	KindNotFound         Kind = "not_found"
	KindUpstream         Kind = "upstream"
	KindInternal         Kind = "internal"
)

type AppError struct {
	Code    int    `json:"-"`
	Kind    Kind   `json:"kind"`
	Message string `json:"error"`
	Op      string `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newError(code int, kind Kind, op string, err error, message string) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kind,
		Message: message,
		Op:      op,
		Err:     err,
	}
}

func InvalidInput(op string, err error, message string) *AppError {
	return newError(http.StatusBadRequest, KindInvalidInput, op, err, message)
}

func Unauthenticated(op string, err error, message string) *AppError {
	if message == "" {
		message = "Authentication required"
	}
	return newError(http.StatusUnauthorized, KindUnauthenticated, op, err, message)
}

func PermissionDenied(op string, err error, message string) *AppError {
	return newError(http.StatusForbidden, KindPermissionDenied, op, err, message)
}

func NotFound(op string, err error, message string) *AppError {
	return newError(http.StatusNotFound, KindNotFound, op, err, message)
}

// Upstream reports a storage provider failure; message carries the provider text.
func Upstream(op string, err error, message string) *AppError {
	return newError(http.StatusBadGateway, KindUpstream, op, err, message)
}

func Internal(op string, err error, message string) *AppError {
	return newError(http.StatusInternalServerError, KindInternal, op, err, message)
}

// As returns the outermost AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func hasKind(err error, kind Kind) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Kind == kind {
			return true
		}
		err = appErr.Err
	}
	return false
}

func IsInvalidInput(err error) bool     { return hasKind(err, KindInvalidInput) }
func IsUnauthenticated(err error) bool  { return hasKind(err, KindUnauthenticated) }
func IsPermissionDenied(err error) bool { return hasKind(err, KindPermissionDenied) }
func IsNotFound(err error) bool         { return hasKind(err, KindNotFound) }
func IsUpstream(err error) bool         { return hasKind(err, KindUpstream) }

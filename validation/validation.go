package validation

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/nijaru/videoverse/config"
	"github.com/nijaru/videoverse/errors"
)

// ErrInvalidFileType is the message for non-video uploads.
const ErrInvalidFileType = "Invalid file type. Please select a video file."

type Validator struct {
	config  *config.Config
	structs *validator.Validate
}

func NewValidator(cfg *config.Config) *Validator {
	return &Validator{
		config:  cfg,
		structs: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Struct validates a request body against its `validate` tags.
func (v *Validator) Struct(op string, s interface{}) error {
	if err := v.structs.Struct(s); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return errors.InvalidInput(op, err, fmt.Sprintf("%s is %s", fe.Field(), describeTag(fe.Tag())))
		}
		return errors.InvalidInput(op, err, "Invalid request")
	}
	return nil
}

func describeTag(tag string) string {
	switch tag {
	case "required":
		return "required"
	case "max":
		return "too long"
	default:
		return "invalid"
	}
}

// DetectMIME returns the declared type when present, else sniffs the content.
func DetectMIME(declared string, head []byte) string {
	if declared = strings.TrimSpace(declared); declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return mimetype.Detect(head).String()
}

func IsVideoMIME(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "video/")
}

// ValidateVideoFile rejects empty, oversized and non-video uploads.
func (v *Validator) ValidateVideoFile(mimeType string, size int64) error {
	const op = "Validator.ValidateVideoFile"

	if !IsVideoMIME(mimeType) {
		return errors.InvalidInput(op, nil, ErrInvalidFileType)
	}
	if size <= 0 {
		return errors.InvalidInput(op, nil, "File is empty")
	}
	if v.config != nil && v.config.Upload.MaxFileSize > 0 && size > v.config.Upload.MaxFileSize {
		return errors.InvalidInput(op, nil, "File is too large")
	}
	return nil
}

// NormalizeName trims a user-supplied name and rejects empty results.
func NormalizeName(name string) (string, error) {
	const op = "validation.NormalizeName"

	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.InvalidInput(op, nil, "Name cannot be empty")
	}
	if len(name) > 512 {
		return "", errors.InvalidInput(op, nil, "Name is too long")
	}
	return name, nil
}

// RequestValidationOpts holds options for request validation
type RequestValidationOpts struct {
	MaxContentLength int64
	AllowedMethods   []string
	RequireJSON      bool
}

// ValidateRequest validates HTTP requests
func (v *Validator) ValidateRequest(r *http.Request, opts RequestValidationOpts) error {
	const op = "Validator.ValidateRequest"

	if len(opts.AllowedMethods) > 0 {
		methodAllowed := false
		for _, method := range opts.AllowedMethods {
			if r.Method == method {
				methodAllowed = true
				break
			}
		}
		if !methodAllowed {
			return errors.InvalidInput(op, nil, fmt.Sprintf("Method %s not allowed", r.Method))
		}
	}

	if opts.RequireJSON {
		if contentType := r.Header.Get("Content-Type"); !strings.Contains(contentType, "application/json") {
			return errors.InvalidInput(op, nil, "Content-Type must be application/json")
		}
	}

	if opts.MaxContentLength > 0 && r.ContentLength > opts.MaxContentLength {
		return errors.InvalidInput(op, nil, "Request body too large")
	}

	return nil
}

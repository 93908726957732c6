package drive

import (
	"context"
	"encoding/base64"
	"strings"

	apperrors "github.com/nijaru/videoverse/errors"
	"github.com/nijaru/videoverse/models"
)

// DecodeDataURI returns the payload and declared media type of a base64 data URI.
func DecodeDataURI(uri string) ([]byte, string, error) {
	const op = "drive.DecodeDataURI"

	header, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasPrefix(header, "data:") {
		return nil, "", apperrors.InvalidInput(op, nil, "Invalid data URI")
	}

	meta := strings.TrimPrefix(header, "data:")
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", apperrors.InvalidInput(op, nil, "Data URI must be base64 encoded")
	}
	mimeType := strings.TrimSuffix(meta, ";base64")

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", apperrors.InvalidInput(op, err, "Invalid base64 payload")
	}
	return data, mimeType, nil
}

// EncodeDataURI renders data as a base64 data URI of the given media type.
func EncodeDataURI(mimeType string, data []byte) string {
	var b strings.Builder
	b.Grow(len(mimeType) + 13 + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(mimeType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// UploadDataURI is the server-side upload entry point: it decodes the
// payload and stores it with the caller's token.
func (u *Uploader) UploadDataURI(ctx context.Context, req models.DriveUploadRequest) (*models.DriveUploadResponse, error) {
	data, _, err := DecodeDataURI(req.FileDataURI)
	if err != nil {
		return nil, err
	}

	fileID, err := u.Upload(ctx, req.AccessToken, data, req.FileName, req.MimeType)
	if err != nil {
		return nil, err
	}
	return &models.DriveUploadResponse{FileID: fileID}, nil
}

package drive

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/nijaru/videoverse/errors"
	"github.com/nijaru/videoverse/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// PermissionDeniedMessage is shown when the provider refuses the user's token.
const PermissionDeniedMessage = "Permission denied. Check that the Google Drive API is enabled and that Drive access was granted at sign-in."

const (
	uploadFailedPrefix     = "Failed to upload to Google Drive: "
	visibilityFailedPrefix = "Uploaded to Google Drive, but could not make the file public: "
)

var (
	ErrFolder     = errors.New("drive: folder lookup failed")
	ErrUpload     = errors.New("drive: upload failed")
	ErrPermission = errors.New("drive: failed to make file public")
)

// Uploader stores video bytes in the user's Drive folder and makes them
// publicly readable. Each call authenticates with the caller's access token.
type Uploader struct {
	folderName string
	endpoint   string
	transport  http.RoundTripper
	logger     *logrus.Logger
}

type UploaderOption func(*Uploader)

// WithEndpoint points the Drive client at a different base URL.
func WithEndpoint(endpoint string) UploaderOption {
	return func(u *Uploader) {
		u.endpoint = endpoint
	}
}

// WithTransport sets the transport beneath the bearer-token layer.
func WithTransport(rt http.RoundTripper) UploaderOption {
	return func(u *Uploader) {
		u.transport = rt
	}
}

func WithUploaderLogger(logger *logrus.Logger) UploaderOption {
	return func(u *Uploader) {
		u.logger = logger
	}
}

func NewUploader(folderName string, opts ...UploaderOption) *Uploader {
	u := &Uploader{
		folderName: folderName,
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *Uploader) service(ctx context.Context, accessToken string) (*drive.Service, error) {
	client := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}),
			Base:   u.transport,
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if u.endpoint != "" {
		opts = append(opts, option.WithEndpoint(u.endpoint))
	}
	return drive.NewService(ctx, opts...)
}

// Upload finds or creates the app folder, stores data in it under name and
// grants anyone-with-the-link read access. It returns the provider file id.
func (u *Uploader) Upload(ctx context.Context, accessToken string, data []byte, name, mimeType string) (string, error) {
	const op = "Uploader.Upload"
	logger := u.logger.WithFields(logrus.Fields{
		"operation": op,
		"file_name": name,
		"size":      len(data),
	})

	if accessToken == "" {
		return "", apperrors.Unauthenticated(op, nil, "")
	}

	srv, err := u.service(ctx, accessToken)
	if err != nil {
		return "", apperrors.Internal(op, err, "Failed to create Drive client")
	}

	folderID, err := u.findOrCreateFolder(ctx, srv)
	if err != nil {
		metrics.DriveOperations.WithLabelValues("folder", "error").Inc()
		return "", mapUploadError(op, fmt.Errorf("%w: %w", ErrFolder, err), uploadFailedPrefix)
	}

	created, err := srv.Files.Create(&drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{folderID},
	}).
		Media(bytes.NewReader(data), googleapi.ContentType(mimeType)).
		Fields("id").
		Context(ctx).
		Do()
	metrics.DriveOperations.WithLabelValues("create", metrics.Status(err)).Inc()
	if err != nil {
		return "", mapUploadError(op, fmt.Errorf("%w: create file: %w", ErrUpload, err), uploadFailedPrefix)
	}
	if created.Id == "" {
		return "", mapUploadError(op, fmt.Errorf("%w: provider returned no file id", ErrUpload), uploadFailedPrefix)
	}

	_, err = srv.Permissions.Create(created.Id, &drive.Permission{
		Role: "reader",
		Type: "anyone",
	}).Context(ctx).Do()
	metrics.DriveOperations.WithLabelValues("permission", metrics.Status(err)).Inc()
	if err != nil {
		// The object stays in the folder; nothing references it yet.
		logger.WithError(err).WithField("file_id", created.Id).Error("Failed to grant public access")
		return "", mapUploadError(op, fmt.Errorf("%w: %w", ErrPermission, err), visibilityFailedPrefix)
	}

	logger.WithField("file_id", created.Id).Info("Uploaded video to Drive")
	return created.Id, nil
}

// findOrCreateFolder returns the first non-trashed folder with the app
// folder name, creating it when none exists.
func (u *Uploader) findOrCreateFolder(ctx context.Context, srv *drive.Service) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false",
		escapeQuery(u.folderName), folderMimeType)

	list, err := srv.Files.List().
		Q(query).
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return "", errors.Wrap(err, "list folders")
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}

	folder, err := srv.Files.Create(&drive.File{
		Name:     u.folderName,
		MimeType: folderMimeType,
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", errors.Wrap(err, "create folder")
	}
	if folder.Id == "" {
		return "", errors.Errorf("could not create %q folder", u.folderName)
	}

	u.logger.WithField("folder_id", folder.Id).Info("Created Drive folder")
	return folder.Id, nil
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// mapUploadError distinguishes a provider 403 from every other failure.
// prefix names the step that failed in the user-facing message.
func mapUploadError(op string, err error, prefix string) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusForbidden {
			return apperrors.PermissionDenied(op, err, PermissionDeniedMessage)
		}
		if gerr.Code == http.StatusUnauthorized {
			return apperrors.Unauthenticated(op, err, "")
		}
		return apperrors.Upstream(op, err, prefix+providerMessage(gerr))
	}
	return apperrors.Upstream(op, err, prefix+err.Error())
}

func providerMessage(gerr *googleapi.Error) string {
	if gerr.Message != "" {
		return gerr.Message
	}
	return http.StatusText(gerr.Code)
}

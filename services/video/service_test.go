package video

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/nijaru/videoverse/errors"
	"github.com/nijaru/videoverse/models"
	"github.com/nijaru/videoverse/repository/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	err   error
	calls int
}

func (s *staticTokens) AccessToken(ctx context.Context) (string, error) {
	s.calls++
	return "tok", s.err
}

type fakeFiles struct {
	deleted   []string
	renamed   map[string]string
	deleteErr error
	renameErr error
	details   *models.FileDetails
}

func (f *fakeFiles) Delete(ctx context.Context, token, fileID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, fileID)
	return nil
}

func (f *fakeFiles) Rename(ctx context.Context, token, fileID, name string) error {
	if f.renameErr != nil {
		return f.renameErr
	}
	f.renamed[fileID] = name
	return nil
}

func (f *fakeFiles) Metadata(ctx context.Context, token, fileID string) (*models.FileDetails, error) {
	return f.details, nil
}

type recordingInvalidator struct {
	ids []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, id string) {
	r.ids = append(r.ids, id)
}

type fixture struct {
	svc   Service
	repo  *sqlite.Repository
	files *fakeFiles
	inv   *recordingInvalidator
	video *models.Video
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "videos.db"), sqlite.DefaultDBConfig())
	require.NoError(t, err)
	repo := sqlite.NewRepository(db)
	t.Cleanup(func() { repo.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		repo:  repo,
		files: &fakeFiles{renamed: make(map[string]string)},
		inv:   &recordingInvalidator{},
	}
	f.svc = NewService(repo, f.files, f.inv, logger)

	f.video = &models.Video{Name: "orig.mp4", ThumbnailURL: "data:", VideoURL: "file-1", UserID: "owner"}
	require.NoError(t, repo.Create(context.Background(), f.video))
	return f
}

func TestRename(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.svc.Rename(ctx, "owner", &staticTokens{}, f.video.ID, "  New title  ")
	require.NoError(t, err)
	assert.Equal(t, "New title", got.Name)
	assert.Equal(t, "New title", f.files.renamed["file-1"])

	stored, err := f.repo.Get(ctx, f.video.ID)
	require.NoError(t, err)
	assert.Equal(t, "New title", stored.Name)
	assert.Equal(t, []string{f.video.ID}, f.inv.ids)
}

func TestRenameEmptyNameRejectedBeforeNetwork(t *testing.T) {
	f := newFixture(t)
	tokens := &staticTokens{}

	_, err := f.svc.Rename(context.Background(), "owner", tokens, f.video.ID, "   ")
	assert.True(t, errors.IsInvalidInput(err))
	assert.Equal(t, 0, tokens.calls)
	assert.Empty(t, f.files.renamed)
}

func TestRenameProviderFailureKeepsRecord(t *testing.T) {
	f := newFixture(t)
	f.files.renameErr = errors.NotFound("op", nil, "File not found")

	_, err := f.svc.Rename(context.Background(), "owner", &staticTokens{}, f.video.ID, "x")
	assert.True(t, errors.IsNotFound(err))

	stored, err := f.repo.Get(context.Background(), f.video.ID)
	require.NoError(t, err)
	assert.Equal(t, "orig.mp4", stored.Name)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Delete(ctx, "owner", &staticTokens{}, f.video.ID))
	assert.Equal(t, []string{"file-1"}, f.files.deleted)

	_, err := f.repo.Get(ctx, f.video.ID)
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, []string{f.video.ID}, f.inv.ids)
}

func TestDeleteProviderFailureKeepsRecord(t *testing.T) {
	f := newFixture(t)
	f.files.deleteErr = errors.Upstream("op", fmt.Errorf("500"), "boom")

	err := f.svc.Delete(context.Background(), "owner", &staticTokens{}, f.video.ID)
	assert.True(t, errors.IsUpstream(err))

	_, err = f.repo.Get(context.Background(), f.video.ID)
	assert.NoError(t, err)
	assert.Empty(t, f.inv.ids)
}

func TestOtherUsersRecordsAreHidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokens := &staticTokens{}

	_, err := f.svc.Rename(ctx, "intruder", tokens, f.video.ID, "mine now")
	assert.True(t, errors.IsNotFound(err))

	err = f.svc.Delete(ctx, "intruder", tokens, f.video.ID)
	assert.True(t, errors.IsNotFound(err))

	_, _, err = f.svc.Details(ctx, "intruder", tokens, f.video.ID)
	assert.True(t, errors.IsNotFound(err))

	assert.Equal(t, 0, tokens.calls)
	assert.Empty(t, f.files.deleted)
}

func TestTokenFailureStopsOperation(t *testing.T) {
	f := newFixture(t)
	tokens := &staticTokens{err: errors.Unauthenticated("op", nil, "")}

	err := f.svc.Delete(context.Background(), "owner", tokens, f.video.ID)
	assert.True(t, errors.IsUnauthenticated(err))
	assert.Empty(t, f.files.deleted)
}

func TestDetails(t *testing.T) {
	f := newFixture(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	f.files.details = &models.FileDetails{Size: 42, MimeType: "video/mp4", CreatedAt: created}

	video, details, err := f.svc.Details(context.Background(), "owner", &staticTokens{}, f.video.ID)
	require.NoError(t, err)
	assert.Equal(t, f.video.ID, video.ID)
	assert.Equal(t, int64(42), details.Size)
}

func TestListAndWatchRequireUser(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.svc.List(ctx, "")
	assert.True(t, errors.IsUnauthenticated(err))
	_, err = f.svc.Watch(ctx, "")
	assert.True(t, errors.IsUnauthenticated(err))

	videos, err := f.svc.List(ctx, "owner")
	require.NoError(t, err)
	assert.Len(t, videos, 1)

	stream, err := f.svc.Watch(ctx, "owner")
	require.NoError(t, err)
	snap := <-stream
	require.NoError(t, snap.Err)
	assert.Len(t, snap.Videos, 1)
}

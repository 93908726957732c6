package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/nijaru/videoverse/auth"
	"github.com/nijaru/videoverse/config"
	"github.com/nijaru/videoverse/errors"
	"github.com/nijaru/videoverse/models"
	"github.com/nijaru/videoverse/repository"
	"github.com/nijaru/videoverse/services/playback"
	"github.com/nijaru/videoverse/services/upload"
	"github.com/nijaru/videoverse/services/video"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeProvider struct{}

func (fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example/auth?state=" + url.QueryEscape(state)
}

func (fakeProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, auth.Identity, error) {
	if code != "good-code" {
		return nil, auth.Identity{}, errors.Upstream("fakeProvider.Exchange", nil, "bad code")
	}
	return &oauth2.Token{AccessToken: "at", RefreshToken: "rt", Expiry: time.Now().Add(time.Hour)},
		auth.Identity{UserID: "u1", Email: "ana@example.com", DisplayName: "Ana"}, nil
}

type noReauth struct{}

func (noReauth) Reauthenticate(ctx context.Context, s auth.Session) (*oauth2.Token, error) {
	return nil, errors.Unauthenticated("noReauth", nil, "")
}

type fakeVideos struct {
	videos    []*models.Video
	err       error
	stream    []repository.Snapshot
	renamed   map[string]string
	deleted   []string
	lastToken string
}

var _ video.Service = (*fakeVideos)(nil)

func (f *fakeVideos) List(ctx context.Context, userID string) ([]*models.Video, error) {
	return f.videos, f.err
}

func (f *fakeVideos) Watch(ctx context.Context, userID string) (<-chan repository.Snapshot, error) {
	ch := make(chan repository.Snapshot, len(f.stream))
	for _, s := range f.stream {
		ch <- s
	}
	close(ch)
	return ch, nil
}

func (f *fakeVideos) Rename(ctx context.Context, userID string, tokens video.TokenSource, id, name string) (*models.Video, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastToken, _ = tokens.AccessToken(ctx)
	f.renamed[id] = name
	return &models.Video{ID: id, Name: name, UserID: userID, CreatedAt: time.Now()}, nil
}

func (f *fakeVideos) Delete(ctx context.Context, userID string, tokens video.TokenSource, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeVideos) Details(ctx context.Context, userID string, tokens video.TokenSource, id string) (*models.Video, *models.FileDetails, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return &models.Video{ID: id, Name: "clip", CreatedAt: time.Now()},
		&models.FileDetails{Size: 42, MimeType: "video/mp4"}, nil
}

type fakeUploads struct {
	file      upload.File
	attemptID string
	token     string
	err       error
}

func (f *fakeUploads) Upload(ctx context.Context, userID string, tokens upload.TokenSource, file upload.File, attemptID string) (*models.Video, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.file, f.attemptID = file, attemptID
	f.token, _ = tokens.AccessToken(ctx)
	return &models.Video{ID: "rec-1", Name: file.Name, VideoURL: "drive-1", UserID: userID, CreatedAt: time.Now()}, nil
}

func (f *fakeUploads) Attempts(userID string) []upload.Attempt {
	return []upload.Attempt{{ID: "att-1", UserID: userID, State: upload.StateUploading, Progress: 20}}
}

type fakeDriveUploader struct {
	err error
}

func (f *fakeDriveUploader) UploadDataURI(ctx context.Context, req models.DriveUploadRequest) (*models.DriveUploadResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.DriveUploadResponse{FileID: "file-9"}, nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, id string) (*playback.Playback, error) {
	if id != "rec-1" {
		return nil, errors.NotFound("fakeResolver.Resolve", nil, "Video not found")
	}
	return &playback.Playback{
		ID:            "rec-1",
		Title:         "Sunset",
		Description:   "Watch the video: Sunset",
		OGDescription: "A video shared from VideoVerse",
		EmbedURL:      "https://drive.google.com/file/d/drive-1/preview",
		ShareURL:      "https://vv.example/video/rec-1",
	}, nil
}

type testEnv struct {
	handler http.Handler
	logs    *logtest.Hook
	store   *auth.MemoryStore
	codec   *auth.CookieCodec
	cfg     *config.Config
	videos  *fakeVideos
	uploads *fakeUploads
	drive   *fakeDriveUploader
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		ServerPort:    "0",
		PublicBaseURL: "https://vv.example",
		Version:       "test",
		Session:       config.SessionConfig{CookieName: "vv_session", TTL: time.Hour},
		Upload:        config.UploadConfig{MaxFileSize: 10 << 20},
		Middleware: config.MiddlewareConfig{
			EnableRecover:   true,
			EnableRequestID: true,
			EnableMetrics:   true,
		},
	}

	logger, logs := logtest.NewNullLogger()

	store, err := auth.NewMemoryStore(16, time.Hour)
	require.NoError(t, err)
	codec := auth.NewCookieCodec(strings.Repeat("s", 32), time.Hour)
	tokens := auth.NewTokens(store, auth.NewManager(noReauth{}, 5*time.Minute))

	env := &testEnv{
		logs:    logs,
		store:   store,
		codec:   codec,
		cfg:     cfg,
		videos:  &fakeVideos{renamed: make(map[string]string)},
		uploads: &fakeUploads{},
		drive:   &fakeDriveUploader{},
	}

	srv := NewServer(cfg,
		WithLogger(logger),
		WithAuth(NewAuthHandler(fakeProvider{}, store, codec, tokens, cfg.Session, logger)),
		WithServices(Services{
			Videos:   env.videos,
			Uploads:  env.uploads,
			Drive:    env.drive,
			Playback: fakeResolver{},
		}),
	)
	env.handler = srv.Handler()
	return env
}

// signIn stores a live session and returns its cookie.
func (e *testEnv) signIn(t *testing.T) *http.Cookie {
	t.Helper()
	s := auth.Session{
		ID:          "sess-1",
		UserID:      "u1",
		Email:       "ana@example.com",
		DisplayName: "Ana",
		AccessToken: "tok",
		Expiry:      time.Now().Add(time.Hour),
		CreatedAt:   time.Now(),
	}
	e.store.Save(s)
	value, err := e.codec.Encode(s)
	require.NoError(t, err)
	return &http.Cookie{Name: e.cfg.Session.CookieName, Value: value}
}

func (e *testEnv) do(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	RequestID string          `json:"request_id"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(httptest.NewRequest(http.MethodGet, "/health", nil), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.RequestID)
	assert.Contains(t, string(body.Data), `"version":"test"`)
}

func TestLibraryRoutesRequireSession(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{"no cookie", nil},
		{"forged cookie", &http.Cookie{Name: "vv_session", Value: "garbage"}},
		{"unknown session", func() *http.Cookie {
			value, _ := e.codec.Encode(auth.Session{ID: "gone", UserID: "u1"})
			return &http.Cookie{Name: "vv_session", Value: value}
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(httptest.NewRequest(http.MethodGet, "/api/v1/videos", nil), tt.cookie)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, decode(t, rec).Success)
		})
	}
}

func TestLoginAndCallback(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil), nil)
	require.Equal(t, http.StatusFound, rec.Code)

	var state *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookieName {
			state = c
		}
	}
	require.NotNil(t, state)
	assert.Contains(t, rec.Header().Get("Location"), "state="+state.Value)

	bad := e.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=good-code&state=wrong", nil), state)
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=good-code&state="+state.Value, nil), state)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "vv_session" {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, 1, e.store.Len())

	me := e.do(httptest.NewRequest(http.MethodGet, "/api/v1/me", nil), session)
	require.Equal(t, http.StatusOK, me.Code)
	var user models.UserResponse
	require.NoError(t, json.Unmarshal(decode(t, me).Data, &user))
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "ana@example.com", user.Email)

	out := e.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), session)
	assert.Equal(t, http.StatusOK, out.Code)
	assert.Equal(t, 0, e.store.Len())
}

func TestCallbackRejectsFailedExchange(t *testing.T) {
	e := newTestEnv(t)
	state := &http.Cookie{Name: stateCookieName, Value: "s1"}

	rec := e.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=bad&state=s1", nil), state)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, e.store.Len())
}

func multipartUpload(t *testing.T, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadVideo(t *testing.T) {
	e := newTestEnv(t)
	cookie := e.signIn(t)

	req := multipartUpload(t, "trip.mp4", "video/mp4", []byte("video-bytes"))
	req.Header.Set("X-Upload-ID", "att-7")
	rec := e.do(req, cookie)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "trip.mp4", e.uploads.file.Name)
	assert.Equal(t, "video/mp4", e.uploads.file.MimeType)
	assert.Equal(t, []byte("video-bytes"), e.uploads.file.Data)
	assert.Equal(t, "att-7", e.uploads.attemptID)
	assert.Equal(t, "tok", e.uploads.token)

	var resp models.VideoResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &resp))
	assert.Equal(t, "https://vv.example/video/rec-1", resp.ShareURL)
	assert.NotNil(t, resp.CreatedAt)
}

func TestUploadErrors(t *testing.T) {
	e := newTestEnv(t)
	cookie := e.signIn(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos", strings.NewReader("x"))
	req.Header.Set("Content-Type", "text/plain")
	assert.Equal(t, http.StatusBadRequest, e.do(req, cookie).Code)

	e.uploads.err = errors.PermissionDenied("op", nil, "Permission denied by Google Drive")
	rec := e.do(multipartUpload(t, "a.mp4", "video/mp4", []byte("x")), cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Permission denied by Google Drive", decode(t, rec).Error)
}

func TestListRenameDeleteDetails(t *testing.T) {
	e := newTestEnv(t)
	cookie := e.signIn(t)
	e.videos.videos = []*models.Video{
		{ID: "b", Name: "new", CreatedAt: time.Now()},
		{ID: "a", Name: "pending"},
	}

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/v1/videos", nil), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.VideoResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &list))
	require.Len(t, list, 2)
	assert.Nil(t, list[1].CreatedAt)

	rec = e.do(httptest.NewRequest(http.MethodPatch, "/api/v1/videos/b", strings.NewReader(`{"name":"Holiday"}`)), cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Holiday", e.videos.renamed["b"])
	assert.Equal(t, "tok", e.videos.lastToken)

	rec = e.do(httptest.NewRequest(http.MethodPatch, "/api/v1/videos/b", strings.NewReader(`{"name":""}`)), cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(httptest.NewRequest(http.MethodDelete, "/api/v1/videos/b", nil), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"b"}, e.videos.deleted)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/v1/videos/b/details", nil), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(decode(t, rec).Data), `"size":42`)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/v1/uploads", nil), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(decode(t, rec).Data), `"progress":20`)
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{errors.NotFound("op", nil, "Video not found"), http.StatusNotFound},
		{errors.PermissionDenied("op", nil, "denied"), http.StatusForbidden},
		{errors.Upstream("op", nil, "Drive is down"), http.StatusBadGateway},
		{errors.Unauthenticated("op", auth.ErrReauthFailed, ""), http.StatusUnauthorized},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		e := newTestEnv(t)
		cookie := e.signIn(t)
		e.videos.err = tt.err

		rec := e.do(httptest.NewRequest(http.MethodDelete, "/api/v1/videos/x", nil), cookie)
		assert.Equal(t, tt.code, rec.Code, "error %v", tt.err)
	}
}

func TestErrorsLogThroughServerLogger(t *testing.T) {
	e := newTestEnv(t)
	cookie := e.signIn(t)
	e.videos.err = errors.Internal("op", io.ErrUnexpectedEOF, "Failed to save video")

	rec := e.do(httptest.NewRequest(http.MethodDelete, "/api/v1/videos/x", nil), cookie)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var found bool
	for _, entry := range e.logs.AllEntries() {
		if entry.Message == "Request error" {
			found = true
			assert.Equal(t, logrus.ErrorLevel, entry.Level)
			assert.Equal(t, http.StatusInternalServerError, entry.Data["status"])
			assert.Equal(t, "/api/v1/videos/x", entry.Data["path"])
		}
	}
	assert.True(t, found, "error response was not logged through the configured logger")
}

// slowBody streams a multipart upload, pausing mid-body for pause.
func slowBody(t *testing.T, pause time.Duration) (io.Reader, string) {
	t.Helper()
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="slow.mp4"`)
		h.Set("Content-Type", "video/mp4")
		part, err := mw.CreatePart(h)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		part.Write([]byte("first-half-"))
		time.Sleep(pause)
		part.Write([]byte("second-half"))
		pw.CloseWithError(mw.Close())
	}()
	return pr, mw.FormDataContentType()
}

func TestSlowUploadOutlivesServerReadTimeout(t *testing.T) {
	e := newTestEnv(t)
	cookie := e.signIn(t)

	srv := httptest.NewUnstartedServer(e.handler)
	srv.Config.ReadTimeout = 100 * time.Millisecond
	srv.Config.WriteTimeout = 100 * time.Millisecond
	srv.Start()
	defer srv.Close()

	body, contentType := slowBody(t, 400*time.Millisecond)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/videos", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(cookie)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, []byte("first-half-second-half"), e.uploads.file.Data)
}

func TestServerUsesHeaderTimeout(t *testing.T) {
	cfg := &config.Config{ServerPort: "0", ReadHeaderTimeout: 15 * time.Second}
	s := NewServer(cfg)

	assert.Zero(t, s.server.ReadTimeout)
	assert.Equal(t, 15*time.Second, s.server.ReadHeaderTimeout)
}

func TestStream(t *testing.T) {
	e := newTestEnv(t)
	cookie := e.signIn(t)
	e.videos.stream = []repository.Snapshot{
		{Videos: []*models.Video{{ID: "a", Name: "first", CreatedAt: time.Now()}}},
		{Err: errors.PermissionDenied("op", nil, "Missing or insufficient permissions")},
	}

	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/videos/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	req.AddCookie(cookie)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "event: videos\n")
	assert.Contains(t, text, `"name":"first"`)
	assert.Contains(t, text, "event: error\n")
	assert.Contains(t, text, "Missing or insufficient permissions")
	assert.Less(t, strings.Index(text, "event: videos"), strings.Index(text, "event: error"))
}

func TestDriveUpload(t *testing.T) {
	e := newTestEnv(t)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/drive/upload", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return e.do(req, nil)
	}

	rec := post(`{"fileDataUri":"data:video/mp4;base64,AAAA","fileName":"a.mp4","mimeType":"video/mp4","accessToken":"tok"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"fileId":"file-9"}`, string(decode(t, rec).Data))

	rec = post(`{"fileName":"a.mp4","mimeType":"video/mp4","accessToken":"tok"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	e.drive.err = errors.PermissionDenied("op", nil, "Permission denied by Google Drive")
	rec = post(`{"fileDataUri":"data:video/mp4;base64,AAAA","fileName":"a.mp4","mimeType":"video/mp4","accessToken":"tok"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Permission denied by Google Drive", decode(t, rec).Error)
}

func TestPlaybackPage(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/video/rec-1", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := rec.Body.String()
	assert.Contains(t, page, "<title>Sunset | VideoVerse</title>")
	assert.Contains(t, page, `<iframe src="https://drive.google.com/file/d/drive-1/preview"`)
	assert.Contains(t, page, "allowfullscreen")
	assert.Contains(t, page, `<meta property="og:type" content="video.other">`)
	assert.Contains(t, page, `<meta property="og:video:type" content="text/html">`)
	assert.Contains(t, page, `<meta property="og:video:width" content="1280">`)
	assert.Contains(t, page, `content="Watch the video: Sunset"`)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/video/missing", nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Video not found")
	assert.NotContains(t, rec.Body.String(), "<iframe")

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/v1/playback/rec-1", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(decode(t, rec).Data), `"embedUrl":"https://drive.google.com/file/d/drive-1/preview"`)
}

package api

import (
	"context"
	"html/template"
	"net/http"

	"github.com/nijaru/videoverse/errors"
	"github.com/nijaru/videoverse/services/playback"
	"github.com/sirupsen/logrus"
)

type Resolver interface {
	Resolve(ctx context.Context, id string) (*playback.Playback, error)
}

var playerPage = template.Must(template.New("player").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
{{- if .Playback}}
<title>{{.Playback.Title}} | VideoVerse</title>
<meta name="description" content="{{.Playback.Description}}">
<meta property="og:title" content="{{.Playback.Title}}">
<meta property="og:description" content="{{.Playback.OGDescription}}">
<meta property="og:type" content="video.other">
<meta property="og:url" content="{{.Playback.ShareURL}}">
<meta property="og:video" content="{{.Playback.EmbedURL}}">
<meta property="og:video:type" content="text/html">
<meta property="og:video:width" content="{{.Width}}">
<meta property="og:video:height" content="{{.Height}}">
{{- else}}
<title>Video not found | VideoVerse</title>
{{- end}}
<style>
body{margin:0;font-family:system-ui,sans-serif;background:#0b0b0f;color:#eee}
main{max-width:960px;margin:0 auto;padding:1.5rem}
.player{position:relative;padding-top:56.25%}
.player iframe{position:absolute;inset:0;width:100%;height:100%;border:0}
a{color:#8ab4f8}
</style>
</head>
<body>
<main>
{{- if .Playback}}
<h1>{{.Playback.Title}}</h1>
<div class="player">
<iframe src="{{.Playback.EmbedURL}}" title="{{.Playback.Title}}" allow="autoplay; encrypted-media; picture-in-picture" allowfullscreen></iframe>
</div>
{{- else}}
<h1>Video not found</h1>
<p>This video may have been deleted or the link is incorrect.</p>
{{- end}}
<p><a href="/">Back to VideoVerse</a></p>
</main>
</body>
</html>
`))

type playerView struct {
	Playback *playback.Playback
	Width    int
	Height   int
}

type PlaybackHandler struct {
	resolver Resolver
	logger   *logrus.Logger
}

func NewPlaybackHandler(resolver Resolver, logger *logrus.Logger) *PlaybackHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PlaybackHandler{resolver: resolver, logger: logger}
}

// HandlePage handles GET /video/{id}. It needs no session.
func (h *PlaybackHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	p, err := h.resolver.Resolve(r.Context(), r.PathValue("id"))

	status := http.StatusOK
	switch {
	case errors.IsNotFound(err):
		status = http.StatusNotFound
	case err != nil:
		h.logger.WithError(err).WithField("video_id", r.PathValue("id")).Error("Failed to resolve playback")
		http.Error(w, "Something went wrong", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := playerPage.Execute(w, playerView{
		Playback: p,
		Width:    playback.VideoWidth,
		Height:   playback.VideoHeight,
	}); err != nil {
		h.logger.WithError(err).Error("Failed to render player page")
	}
}

// HandleGet handles GET /api/v1/playback/{id}
func (h *PlaybackHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.resolver.Resolve(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, p)
}

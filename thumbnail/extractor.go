package thumbnail

import (
	"bytes"
	"context"
	"image"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

var ErrNoFrame = errors.New("thumbnail: no frame at requested offset")

// Extractor grabs a still frame from encoded video bytes.
type Extractor interface {
	ExtractFrame(ctx context.Context, video []byte, at time.Duration) (image.Image, error)
}

// FFmpegExtractor shells out to ffmpeg. The video is staged in a temp file
// because most containers need a seekable input.
type FFmpegExtractor struct {
	Path    string
	TempDir string
}

func NewFFmpegExtractor(path string) *FFmpegExtractor {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegExtractor{Path: path}
}

func (e *FFmpegExtractor) ExtractFrame(ctx context.Context, video []byte, at time.Duration) (image.Image, error) {
	f, err := os.CreateTemp(e.TempDir, "videoverse-*.video")
	if err != nil {
		return nil, errors.Wrap(err, "create temp file")
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(video); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "write temp file")
	}
	if err := f.Close(); err != nil {
		return nil, errors.Wrap(err, "close temp file")
	}

	img, err := e.grab(ctx, f.Name(), "-ss", strconv.FormatFloat(at.Seconds(), 'f', 3, 64))
	if err != nil && at > 0 && ctx.Err() == nil {
		// Offset may be past the end of a short clip; take its last frame.
		img, err = e.grab(ctx, f.Name(), "-sseof", "-0.1")
	}
	return img, err
}

func (e *FFmpegExtractor) grab(ctx context.Context, input string, seek ...string) (image.Image, error) {
	args := append([]string{"-hide_banner", "-loglevel", "error"}, seek...)
	args = append(args,
		"-i", input,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.Path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "ffmpeg: %s", bytes.TrimSpace(stderr.Bytes()))
	}
	if stdout.Len() == 0 {
		return nil, ErrNoFrame
	}

	img, err := imaging.Decode(&stdout)
	if err != nil {
		return nil, errors.Wrap(err, "decode frame")
	}
	return img, nil
}

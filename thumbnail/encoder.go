package thumbnail

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

const jpegPrefix = "data:image/jpeg;base64,"

// Encoder renders a frame as a JPEG data URI, scaled down to MaxWidth.
type Encoder struct {
	MaxWidth int
	Quality  int
}

func (e Encoder) DataURI(img image.Image) (string, error) {
	if e.MaxWidth > 0 && img.Bounds().Dx() > e.MaxWidth {
		img = imaging.Resize(img, e.MaxWidth, 0, imaging.Lanczos)
	}

	quality := e.Quality
	if quality <= 0 {
		quality = 85
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return "", errors.Wrap(err, "encode thumbnail")
	}
	return jpegPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Generator produces the thumbnail data URI for a video.
type Generator struct {
	extractor Extractor
	encoder   Encoder
	at        time.Duration
}

func NewGenerator(extractor Extractor, encoder Encoder, at time.Duration) *Generator {
	return &Generator{extractor: extractor, encoder: encoder, at: at}
}

func (g *Generator) Thumbnail(ctx context.Context, video []byte) (string, error) {
	img, err := g.extractor.ExtractFrame(ctx, video, g.at)
	if errors.Is(err, ErrNoFrame) && g.at > 0 {
		img, err = g.extractor.ExtractFrame(ctx, video, 0)
	}
	if err != nil {
		return "", err
	}
	return g.encoder.DataURI(img)
}

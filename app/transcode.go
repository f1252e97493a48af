package app

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	// decoders register themselves with image.Decode
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Transcoder re-encodes image bytes into the published format.
type Transcoder interface {
	Transcode(data []byte) ([]byte, error)
}

// JPEGTranscoder decodes any registered format and re-encodes it as JPEG.
type JPEGTranscoder struct {
	Quality int
}

func NewJPEGTranscoder(quality int) (*JPEGTranscoder, error) {
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("jpeg quality must be within 1..100, got %d", quality)
	}
	return &JPEGTranscoder{Quality: quality}, nil
}

func (t *JPEGTranscoder) Transcode(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	// JPEG has no alpha; composite onto white so transparent areas stay light
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, b, src, b.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: t.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// File is an uploaded image.
type File struct {
	Name string
	Type string
	Data []byte
}

// DetectType returns the declared MIME type, sniffing the content when the
// caller did not provide one.
func (f File) DetectType() string {
	if f.Type != "" {
		return f.Type
	}
	head := f.Data
	if len(head) > 512 {
		head = head[:512]
	}
	return http.DetectContentType(head)
}

// LoadImage decodes f into an NRGBA bitmap. Images wider or taller than
// maxDim are scaled down keeping their aspect ratio; maxDim <= 0 disables
// scaling.
func LoadImage(f File, maxDim int) (*image.NRGBA, error) {
	img, err := decodeImage(f.Data, f.DetectType(), f.Name)
	if err != nil {
		return nil, err
	}
	return fitWithin(imaging.Clone(img), maxDim), nil
}

// MaxPixels bounds width*height of an image accepted for decoding. The
// header is checked before any pixel buffer is allocated.
const MaxPixels = 40_000_000

type codec struct {
	decode func(io.Reader) (image.Image, error)
	config func(io.Reader) (image.Config, error)
}

var (
	pngCodec  = codec{png.Decode, png.DecodeConfig}
	jpegCodec = codec{jpeg.Decode, jpeg.DecodeConfig}
	gifCodec  = codec{gif.Decode, gif.DecodeConfig}
	webpCodec = codec{webp.Decode, webp.DecodeConfig}
	bmpCodec  = codec{bmp.Decode, bmp.DecodeConfig}
)

func codecFor(contentType, name string) (codec, error) {
	switch {
	case strings.Contains(contentType, "jpeg"):
		return jpegCodec, nil
	case strings.Contains(contentType, "png"):
		return pngCodec, nil
	case strings.Contains(contentType, "gif"):
		return gifCodec, nil
	case strings.Contains(contentType, "webp"):
		return webpCodec, nil
	case strings.Contains(contentType, "bmp"):
		return bmpCodec, nil
	}

	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".jpg", ".jpeg":
		return jpegCodec, nil
	case ".png":
		return pngCodec, nil
	case ".gif":
		return gifCodec, nil
	case ".webp":
		return webpCodec, nil
	case ".bmp":
		return bmpCodec, nil
	default:
		return codec{}, fmt.Errorf("unsupported image format: %s / %s", contentType, ext)
	}
}

func decodeImage(data []byte, contentType, name string) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty file")
	}
	c, err := codecFor(contentType, name)
	if err != nil {
		return nil, err
	}
	cfg, err := c.config(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("image too large: %dx%d exceeds %d pixels", cfg.Width, cfg.Height, MaxPixels)
	}
	return c.decode(bytes.NewReader(data))
}

func fitWithin(img *image.NRGBA, maxDim int) *image.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}
	scale := float64(maxDim) / float64(max(w, h))
	nw, nh := max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))
	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// Package qrgen renders the canonical id:name:section payload as a PNG
// that the colon parse strategy reads back.
package qrgen

import (
	"regexp"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"qrattend/internal/models"
	"qrattend/internal/utils"
)

// DefaultSize is the PNG width and height in pixels. Larger requests are
// clamped to MaxSize.
const (
	DefaultSize = 300
	MaxSize     = 1024
)

var whitespace = regexp.MustCompile(`\s+`)

// FileName returns the download name, e.g. QR_S100_Juan_Dela_Cruz.png.
func FileName(id, name string) string {
	return "QR_" + id + "_" + whitespace.ReplaceAllString(name, "_") + ".png"
}

// Generate returns a PNG of the canonical payload and its file name.
// size <= 0 means DefaultSize; size > MaxSize means MaxSize.
func Generate(id, name, section string, size int) ([]byte, string, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(name) == "" {
		return nil, "", utils.New(utils.KindValidation, "Please fill in all fields")
	}
	switch {
	case size <= 0:
		size = DefaultSize
	case size > MaxSize:
		size = MaxSize
	}
	qr, err := qrcode.New(models.CanonicalPayload(id, name, section), qrcode.Medium)
	if err != nil {
		return nil, "", utils.Wrap(utils.KindValidation, err, "Failed to generate QR code")
	}
	png, err := qr.PNG(size)
	if err != nil {
		return nil, "", utils.Wrap(utils.KindValidation, err, "Failed to generate QR code")
	}
	return png, FileName(id, name), nil
}

package scanner

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNoCode is returned by a Decoder when the bitmap holds no readable code.
var ErrNoCode = errors.New("no qr code found")

// Inversion selects which module polarities a Decoder tries.
type Inversion int

const (
	// InvertNone reads dark modules on a light background only.
	InvertNone Inversion = iota
	// InvertBoth also tries the color-inverted bitmap.
	InvertBoth
)

func (i Inversion) String() string {
	if i == InvertBoth {
		return "both"
	}
	return "none"
}

// Decoder is the bitmap QR decoding primitive.
type Decoder interface {
	Decode(img image.Image, inversion Inversion) (string, error)
}

// ZXingDecoder decodes QR codes with gozxing.
type ZXingDecoder struct {
	hints map[gozxing.DecodeHintType]interface{}
}

// NewZXingDecoder returns a decoder that spends extra effort per bitmap.
func NewZXingDecoder() *ZXingDecoder {
	return &ZXingDecoder{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// Decode returns the text of the first QR code found. Any reader failure
// maps to ErrNoCode; a panic inside the reader is returned as an error.
func (d *ZXingDecoder) Decode(img image.Image, inversion Inversion) (string, error) {
	text, err := d.decodeOnce(img)
	if err == nil || inversion == InvertNone || !errors.Is(err, ErrNoCode) {
		return text, err
	}
	return d.decodeOnce(imaging.Invert(img))
}

func (d *ZXingDecoder) decodeOnce(img image.Image) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("qr reader panic: %v", r)
		}
	}()

	bmp, err := gozxing.NewBinaryBitmap(gozxing.NewHybridBinarizer(gozxing.NewLuminanceSourceFromImage(img)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	result, err := qrcode.NewQRCodeReader().Decode(bmp, d.hints)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	return result.GetText(), nil
}

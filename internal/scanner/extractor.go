// Package scanner recovers QR payloads from uploaded images.
//
// Photos of printed or on-screen codes often fail a straight decode, so the
// Extractor runs a short cascade of pixel transforms (see DefaultStages) and
// reports every attempt when nothing is found.
package scanner

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"

	"qrattend/internal/metrics"
	"qrattend/internal/utils"
)

// Failure messages shown to users.
const (
	MsgNotFound     = "No QR code found in image after multiple processing attempts"
	MsgLoadFailed   = "Failed to load image"
	msgProcessing   = "Failed to process QR code: "
	defaultMaxImage = 4096
)

// Attempt records the outcome of one stage.
type Attempt struct {
	Method  string `json:"method"`
	Success bool   `json:"success"`
}

// Diagnostics describes a failed extraction.
type Diagnostics struct {
	FileName   string    `json:"fileName,omitempty"`
	FileSize   int       `json:"fileSize"`
	FileType   string    `json:"fileType,omitempty"`
	Dimensions string    `json:"imageDimensions,omitempty"`
	Attempts   []Attempt `json:"attempts,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Result is the outcome of ScanImage.
type Result struct {
	Success     bool         `json:"success"`
	Data        string       `json:"data,omitempty"`
	Method      string       `json:"method,omitempty"`
	Message     string       `json:"message,omitempty"`
	Diagnostics *Diagnostics `json:"diagnostics,omitempty"`

	kind utils.Kind
}

// Err converts a failed result into a categorized error; nil on success.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	kind := r.kind
	if kind == "" {
		kind = utils.KindImageDecode
	}
	return utils.New(kind, r.Message)
}

// Extractor runs the stage cascade against a Decoder.
type Extractor struct {
	decoder Decoder
	stages  []Stage
	maxDim  int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithStages replaces the default cascade.
func WithStages(stages ...Stage) Option {
	return func(e *Extractor) { e.stages = stages }
}

// WithMaxDimension bounds the decoded bitmap size; 0 disables scaling.
func WithMaxDimension(px int) Option {
	return func(e *Extractor) { e.maxDim = px }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records extraction outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Extractor) { e.metrics = m }
}

// NewExtractor returns an Extractor using decoder. A nil decoder means
// gozxing.
func NewExtractor(decoder Decoder, opts ...Option) *Extractor {
	if decoder == nil {
		decoder = NewZXingDecoder()
	}
	e := &Extractor{
		decoder: decoder,
		stages:  DefaultStages(),
		maxDim:  defaultMaxImage,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ScanImage decodes f and runs the cascade, stopping at the first stage
// that yields a payload. It never panics on bad input.
func (e *Extractor) ScanImage(f File) Result {
	img, err := LoadImage(f, e.maxDim)
	if err != nil {
		e.logger.Warn("image load failed", "file", f.Name, "error", err)
		e.metrics.ObserveExtraction("", false)
		return Result{
			Message: MsgLoadFailed,
			Diagnostics: &Diagnostics{
				FileName: f.Name,
				FileSize: len(f.Data),
				FileType: f.DetectType(),
				Error:    err.Error(),
			},
			kind: utils.KindImageLoad,
		}
	}

	res := e.ScanBitmap(img)
	if res.Diagnostics != nil {
		res.Diagnostics.FileName = f.Name
		res.Diagnostics.FileSize = len(f.Data)
		res.Diagnostics.FileType = f.DetectType()
	}
	e.metrics.ObserveExtraction(res.Method, res.Success)
	if res.Success {
		e.logger.Debug("qr extracted", "file", f.Name, "method", res.Method)
	} else {
		e.logger.Info("qr extraction failed", "file", f.Name, "message", res.Message)
	}
	return res
}

// ScanBitmap runs the cascade on already decoded pixels.
func (e *Extractor) ScanBitmap(img *image.NRGBA) Result {
	dims := fmt.Sprintf("%dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	attempts := make([]Attempt, 0, len(e.stages))

	for _, stage := range e.stages {
		src := img
		if stage.Transform != nil {
			src = stage.Transform(img)
		}
		text, err := e.decoder.Decode(src, stage.Inversion)
		if err == nil {
			return Result{Success: true, Data: text, Method: stage.Name}
		}
		attempts = append(attempts, Attempt{Method: stage.Name})
		if !errors.Is(err, ErrNoCode) {
			return Result{
				Method:  stage.Name,
				Message: msgProcessing + err.Error(),
				Diagnostics: &Diagnostics{
					Dimensions: dims,
					Attempts:   attempts,
					Error:      err.Error(),
				},
				kind: utils.KindImageDecode,
			}
		}
	}

	return Result{
		Message: MsgNotFound,
		Diagnostics: &Diagnostics{
			Dimensions: dims,
			Attempts:   attempts,
		},
		kind: utils.KindImageDecode,
	}
}

// DecodeFrame runs only the direct stage, for high-rate camera frames.
func (e *Extractor) DecodeFrame(img image.Image) (string, error) {
	return e.decoder.Decode(img, InvertNone)
}

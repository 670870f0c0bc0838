package stream

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"qrattend/internal/scanner"
)

// FrameSource yields camera frames. io.EOF ends the scan loop.
type FrameSource interface {
	NextFrame(ctx context.Context) (image.Image, error)
}

// FrameDecoder decodes a single frame; *scanner.Extractor satisfies it.
type FrameDecoder interface {
	DecodeFrame(img image.Image) (string, error)
}

// FrameScanner polls a FrameSource at a fixed rate and emits every
// payload decoded from a frame.
type FrameScanner struct {
	loop
	frames   FrameSource
	decoder  FrameDecoder
	interval time.Duration
	logger   *slog.Logger
}

// NewFrameScanner scans fps frames per second; fps <= 0 means 10.
func NewFrameScanner(frames FrameSource, decoder FrameDecoder, fps int, logger *slog.Logger) *FrameScanner {
	if fps <= 0 {
		fps = 10
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FrameScanner{
		frames:   frames,
		decoder:  decoder,
		interval: time.Second / time.Duration(fps),
		logger:   logger,
	}
}

func (f *FrameScanner) Start(ctx context.Context, onDecoded func(string)) error {
	return f.start(ctx, func(ctx context.Context) {
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			frame, err := f.frames.NextFrame(ctx)
			switch {
			case errors.Is(err, io.EOF), ctx.Err() != nil:
				return
			case err != nil:
				f.logger.Debug("frame unavailable", "error", err)
				continue
			}
			text, err := f.decoder.DecodeFrame(frame)
			if err != nil {
				if !errors.Is(err, scanner.ErrNoCode) {
					f.logger.Warn("frame decode failed", "error", err)
				}
				continue
			}
			onDecoded(text)
		}
	})
}

func (f *FrameScanner) Stop() error {
	f.stop()
	return nil
}

// DirFrames treats the newest image file in a directory as the current
// frame, for cameras or capture tools that drop snapshots to disk.
type DirFrames struct {
	Dir    string
	MaxDim int

	lastPath string
	lastMod  time.Time
}

var frameExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".bmp": true}

// NextFrame returns the newest snapshot, or an error when nothing new has
// appeared since the previous call.
func (d *DirFrames) NextFrame(_ context.Context) (image.Image, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, err
	}
	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !frameExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(newestMod) {
			newest, newestMod = e.Name(), info.ModTime()
		}
	}
	if newest == "" {
		return nil, errors.New("no frames in " + d.Dir)
	}
	path := filepath.Join(d.Dir, newest)
	if path == d.lastPath && !newestMod.After(d.lastMod) {
		return nil, errors.New("no new frame")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := scanner.LoadImage(scanner.File{Name: newest, Data: data}, d.MaxDim)
	if err != nil {
		return nil, err
	}
	d.lastPath, d.lastMod = path, newestMod
	return img, nil
}

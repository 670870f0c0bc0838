package stream

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
)

// LineSource emits each non-empty line read from r. Keyboard-wedge hand
// scanners type the payload followed by Enter, so a terminal or a pipe
// works as input.
type LineSource struct {
	loop
	r      io.Reader
	logger *slog.Logger
}

// NewLineSource reads from r. If r is an io.Closer, Stop closes it to
// unblock a pending read.
func NewLineSource(r io.Reader, logger *slog.Logger) *LineSource {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LineSource{r: r, logger: logger}
}

func (s *LineSource) Start(ctx context.Context, onDecoded func(string)) error {
	return s.start(ctx, func(ctx context.Context) {
		lines := make(chan string)
		go func() {
			defer close(lines)
			sc := bufio.NewScanner(s.r)
			for sc.Scan() {
				select {
				case lines <- sc.Text():
				case <-ctx.Done():
					return
				}
			}
			if err := sc.Err(); err != nil && ctx.Err() == nil {
				s.logger.Warn("line source read failed", "error", err)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-lines:
				if !ok {
					return
				}
				if line = strings.TrimRight(line, "\r"); line != "" {
					onDecoded(line)
				}
			}
		}
	})
}

func (s *LineSource) Stop() error {
	var err error
	if c, ok := s.r.(io.Closer); ok {
		err = c.Close()
	}
	s.stop()
	return err
}

package stream

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"qrattend/internal/attendance"
)

// Scanner runs one payload through the scan pipeline.
type Scanner interface {
	Scan(ctx context.Context, raw string) attendance.Outcome
}

// Notifier receives every scan outcome.
type Notifier func(attendance.Outcome)

// Session connects a Source to a Scanner. A payload seen again within the
// debounce window is dropped, since a code held in front of a camera
// decodes on every frame.
type Session struct {
	source   Source
	scanner  Scanner
	notify   Notifier
	debounce time.Duration
	recent   *cache.Cache
	logger   *slog.Logger

	mu  sync.Mutex
	ctx context.Context
}

// NewSession returns a stopped session. A debounce of 0 disables it.
func NewSession(src Source, sc Scanner, debounce time.Duration, notify Notifier, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if notify == nil {
		notify = func(attendance.Outcome) {}
	}
	cleanup := 10 * debounce
	if cleanup <= 0 {
		cleanup = time.Minute
	}
	return &Session{
		source:   src,
		scanner:  sc,
		notify:   notify,
		debounce: debounce,
		recent:   cache.New(debounce, cleanup),
		logger:   logger,
	}
}

// Start begins scanning. Scans run with ctx.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.logger.Info("scan session started")
	return s.source.Start(ctx, s.handle)
}

// Stop stops the source and waits for its loop to exit.
func (s *Session) Stop() error {
	err := s.source.Stop()
	s.logger.Info("scan session stopped")
	return err
}

func (s *Session) handle(raw string) {
	if s.debounce > 0 {
		if err := s.recent.Add(raw, struct{}{}, s.debounce); err != nil {
			s.logger.Debug("duplicate payload within debounce window dropped")
			return
		}
	}
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	s.notify(s.scanner.Scan(ctx, raw))
}

// Package stream feeds continuously decoded QR payloads into the scan
// pipeline: lines from a hand scanner or pipe, or frames from a camera.
package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrRunning is returned by Start on a source that is already running.
var ErrRunning = errors.New("source already running")

// Source produces decoded payloads until stopped. Start returns once the
// source is running; onDecoded is called from the source's goroutine.
type Source interface {
	Start(ctx context.Context, onDecoded func(string)) error
	Stop() error
}

// loop manages the single goroutine behind a Source.
type loop struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (l *loop) start(ctx context.Context, run func(ctx context.Context)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		select {
		case <-l.done:
		default:
			return ErrRunning
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel, l.done = cancel, done
	go func() {
		defer close(done)
		defer cancel()
		run(ctx)
	}()
	return nil
}

func (l *loop) stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the source goroutine exits, either after Stop or
// when its input ends.
func (l *loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return l.done
}

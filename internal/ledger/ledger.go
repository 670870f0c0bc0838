// Package ledger records attendance in buckets keyed by year, month,
// weekday and section, with at most one entry per student per bucket.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"qrattend/internal/files"
	"qrattend/internal/metrics"
	"qrattend/internal/models"
	"qrattend/internal/utils"
)

// StoreKey is the persistence key of the ledger document.
const StoreKey = "attendanceData"

const (
	dateLayout = "1/2/2006"
	timeLayout = "03:04 PM"
)

// Result reports what Record did.
type Result string

const (
	Recorded      Result = "recorded"
	AlreadyMarked Result = "already-marked"
)

// Key returns the bucket key, e.g. "2026_October_Thursday_WMAD 1-1".
// The week of the month is not part of the key, so every Thursday of a
// month shares one bucket. Section is used verbatim.
func Key(year int, month time.Month, weekday time.Weekday, section string) string {
	return fmt.Sprintf("%d_%s_%s_%s", year, month, weekday, section)
}

// KeyFor returns the bucket key for t.
func KeyFor(t time.Time, section string) string {
	return Key(t.Year(), t.Month(), t.Weekday(), section)
}

// Listener is called after every mutation with the affected bucket key.
type Listener func(key string)

// Ledger is the in-memory attendance ledger backed by a files.KV.
type Ledger struct {
	mu        sync.RWMutex
	kv        files.KV
	buckets   map[string][]models.AttendanceEntry
	listeners []Listener

	now     func() time.Time
	loc     *time.Location
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Ledger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLocation sets the zone used to derive bucket keys and display
// strings. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func New(kv files.KV, opts ...Option) *Ledger {
	l := &Ledger{
		kv:      kv,
		buckets: make(map[string][]models.AttendanceEntry),
		now:     time.Now,
		loc:     time.Local,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load replaces the in-memory state with the persisted document.
func (l *Ledger) Load(ctx context.Context) error {
	blob, err := l.kv.Get(ctx, StoreKey)
	if errors.Is(err, files.ErrNotFound) {
		return nil
	}
	if err != nil {
		return utils.Wrap(utils.KindPersistence, err, "load attendance")
	}
	buckets := make(map[string][]models.AttendanceEntry)
	if err := json.Unmarshal(blob, &buckets); err != nil {
		return utils.Wrap(utils.KindPersistence, err, "decode attendance")
	}
	if buckets == nil {
		buckets = make(map[string][]models.AttendanceEntry)
	}

	l.mu.Lock()
	l.buckets = buckets
	l.mu.Unlock()

	l.logger.Info("attendance loaded", "buckets", len(buckets))
	return nil
}

// Record appends an entry for the student to today's bucket of section
// unless the student is already in it. On AlreadyMarked the existing entry
// is returned. A persistence error leaves the new entry in memory.
func (l *Ledger) Record(ctx context.Context, id, name, section string) (models.AttendanceEntry, Result, error) {
	now := l.now().In(l.loc)
	key := KeyFor(now, section)

	l.mu.Lock()
	for _, e := range l.buckets[key] {
		if e.StudentID == id {
			l.mu.Unlock()
			return e, AlreadyMarked, nil
		}
	}
	entry := models.AttendanceEntry{
		StudentID:   id,
		StudentName: name,
		Section:     section,
		Date:        now.Format(dateLayout),
		Time:        now.Format(timeLayout),
		Timestamp:   now.UnixMilli(),
	}
	l.buckets[key] = append(l.buckets[key], entry)
	err := l.persistLocked(ctx)
	l.mu.Unlock()

	l.logger.Info("attendance recorded", "key", key, "id", id)
	l.notify(key)
	return entry, Recorded, err
}

// EntriesFor returns a copy of one bucket in insertion order.
func (l *Ledger) EntriesFor(year int, month time.Month, weekday time.Weekday, section string) []models.AttendanceEntry {
	return l.Bucket(Key(year, month, weekday, section))
}

// Bucket returns a copy of the bucket stored under key.
func (l *Ledger) Bucket(key string) []models.AttendanceEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.AttendanceEntry(nil), l.buckets[key]...)
}

// Search filters one bucket by a case-insensitive match on student name or
// ID. An empty query returns the whole bucket.
func (l *Ledger) Search(year int, month time.Month, weekday time.Weekday, section, query string) []models.AttendanceEntry {
	entries := l.EntriesFor(year, month, weekday, section)
	q := strings.ToLower(query)
	if q == "" {
		return entries
	}
	out := entries[:0]
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.StudentName), q) || strings.Contains(strings.ToLower(e.StudentID), q) {
			out = append(out, e)
		}
	}
	return out
}

// Remove deletes the entry at index in the bucket stored under key and
// returns it. A bucket left empty is dropped.
func (l *Ledger) Remove(ctx context.Context, key string, index int) (models.AttendanceEntry, error) {
	l.mu.Lock()
	entries := l.buckets[key]
	if index < 0 || index >= len(entries) {
		l.mu.Unlock()
		return models.AttendanceEntry{}, utils.New(utils.KindValidation,
			"no attendance entry "+strconv.Itoa(index)+" in "+key)
	}
	removed := entries[index]
	rest := append(append([]models.AttendanceEntry(nil), entries[:index]...), entries[index+1:]...)
	if len(rest) == 0 {
		delete(l.buckets, key)
	} else {
		l.buckets[key] = rest
	}
	err := l.persistLocked(ctx)
	l.mu.Unlock()

	l.logger.Info("attendance removed", "key", key, "id", removed.StudentID)
	l.notify(key)
	return removed, err
}

// UniqueStudents counts distinct student IDs across all buckets.
func (l *Ledger) UniqueStudents() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, entries := range l.buckets {
		for _, e := range entries {
			seen[e.StudentID] = struct{}{}
		}
	}
	return len(seen)
}

// Buckets returns every bucket key in sorted order.
func (l *Ledger) Buckets() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]string, 0, len(l.buckets))
	for k := range l.buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Subscribe registers fn to run after every mutation.
func (l *Ledger) Subscribe(fn Listener) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Now returns the ledger clock in its configured zone.
func (l *Ledger) Now() time.Time {
	return l.now().In(l.loc)
}

func (l *Ledger) persistLocked(ctx context.Context) error {
	blob, err := json.Marshal(l.buckets)
	if err == nil {
		err = l.kv.Set(ctx, StoreKey, blob)
	}
	if err != nil {
		l.logger.Error("attendance write failed", "error", err)
		l.metrics.ObservePersistenceFailure(StoreKey)
		return utils.Wrap(utils.KindPersistence, err, "save attendance")
	}
	return nil
}

func (l *Ledger) notify(key string) {
	l.mu.RLock()
	listeners := append([]Listener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		fn(key)
	}
}

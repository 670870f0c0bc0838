// Package registry keeps the set of students registered from QR uploads or
// manual entry, keyed by student ID and persisted as one JSON document.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"qrattend/internal/files"
	"qrattend/internal/metrics"
	"qrattend/internal/models"
	"qrattend/internal/utils"
)

// StoreKey is the persistence key of the registry document.
const StoreKey = "registeredQRCodes"

// Outcome reports whether Register added or replaced an entry.
type Outcome string

const (
	Created Outcome = "created"
	Updated Outcome = "updated"
)

// Fields is the editable part of an entry.
type Fields struct {
	ID      string `json:"id" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Section string `json:"section"`
}

// Listener is called after every mutation with the new registry size.
type Listener func(size int)

// Store is the in-memory registry backed by a files.KV.
type Store struct {
	mu        sync.RWMutex
	kv        files.KV
	entries   map[string]models.RegisteredEntry
	listeners []Listener

	now      func() time.Time
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now for registeredAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New returns an empty store. Call Load to read the persisted document.
func New(kv files.KV, opts ...Option) *Store {
	s := &Store{
		kv:       kv,
		entries:  make(map[string]models.RegisteredEntry),
		now:      time.Now,
		validate: validator.New(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory state with the persisted document. A missing
// document is an empty registry; an unreadable one leaves the store empty
// and returns a persistence error.
func (s *Store) Load(ctx context.Context) error {
	blob, err := s.kv.Get(ctx, StoreKey)
	if errors.Is(err, files.ErrNotFound) {
		return nil
	}
	if err != nil {
		return utils.Wrap(utils.KindPersistence, err, "load registry")
	}
	entries := make(map[string]models.RegisteredEntry)
	if err := json.Unmarshal(blob, &entries); err != nil {
		return utils.Wrap(utils.KindPersistence, err, "decode registry")
	}
	if entries == nil {
		// a stored null reads as an empty registry
		entries = make(map[string]models.RegisteredEntry)
	}

	s.mu.Lock()
	s.entries = entries
	n := len(entries)
	s.mu.Unlock()

	s.logger.Info("registry loaded", "entries", n)
	s.metrics.SetRegistered(n)
	return nil
}

// Register adds identity or replaces the entry with the same ID. A
// replacement keeps the first registeredAt. The returned error is a
// validation error (nothing changed) or a persistence error (memory
// updated, write failed).
func (s *Store) Register(ctx context.Context, identity models.StudentIdentity) (models.RegisteredEntry, Outcome, error) {
	f, err := s.check(Fields{ID: identity.ID, Name: identity.Name, Section: identity.Section})
	if err != nil {
		return models.RegisteredEntry{}, "", err
	}

	s.mu.Lock()
	outcome := Created
	registeredAt := s.now()
	if prev, ok := s.entries[f.ID]; ok {
		outcome = Updated
		registeredAt = prev.RegisteredAt
	}
	entry := newEntry(f, registeredAt)
	s.entries[f.ID] = entry
	err = s.persistLocked(ctx)
	n := len(s.entries)
	s.mu.Unlock()

	s.logger.Info("student registered", "id", entry.ID, "outcome", outcome)
	s.notify(n)
	return entry, outcome, err
}

// FindByID returns the entry registered under id.
func (s *Store) FindByID(id string) (models.RegisteredEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// FindByRawPayload returns the entry whose canonical payload equals raw
// exactly. Entries are scanned in ID order so the result is stable.
func (s *Store) FindByRawPayload(raw string) (models.RegisteredEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.sortedIDsLocked() {
		if e := s.entries[id]; e.RawPayload == raw {
			return e, true
		}
	}
	return models.RegisteredEntry{}, false
}

// Update edits the entry stored under oldID. Changing the ID moves the
// entry to the new key.
func (s *Store) Update(ctx context.Context, oldID string, fields Fields) (models.RegisteredEntry, error) {
	f, err := s.check(fields)
	if err != nil {
		return models.RegisteredEntry{}, err
	}

	s.mu.Lock()
	prev, ok := s.entries[oldID]
	if !ok {
		s.mu.Unlock()
		return models.RegisteredEntry{}, utils.New(utils.KindNotFound, "student "+oldID+" is not registered")
	}
	if f.ID != oldID {
		if _, taken := s.entries[f.ID]; taken {
			s.mu.Unlock()
			return models.RegisteredEntry{}, utils.New(utils.KindValidation, "student ID "+f.ID+" is already registered")
		}
		delete(s.entries, oldID)
	}
	entry := newEntry(f, prev.RegisteredAt)
	s.entries[f.ID] = entry
	err = s.persistLocked(ctx)
	n := len(s.entries)
	s.mu.Unlock()

	s.logger.Info("student updated", "old_id", oldID, "id", entry.ID)
	s.notify(n)
	return entry, err
}

// Remove deletes the entry stored under id.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.entries[id]; !ok {
		s.mu.Unlock()
		return utils.New(utils.KindNotFound, "student "+id+" is not registered")
	}
	delete(s.entries, id)
	err := s.persistLocked(ctx)
	n := len(s.entries)
	s.mu.Unlock()

	s.logger.Info("student removed", "id", id)
	s.notify(n)
	return err
}

// List returns entries sorted by ID. A non-empty query keeps entries whose
// ID, name or section contains it, ignoring case.
func (s *Store) List(query string) []models.RegisteredEntry {
	q := strings.ToLower(query)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.RegisteredEntry, 0, len(s.entries))
	for _, id := range s.sortedIDsLocked() {
		e := s.entries[id]
		if q != "" &&
			!strings.Contains(strings.ToLower(e.ID), q) &&
			!strings.Contains(strings.ToLower(e.Name), q) &&
			!strings.Contains(strings.ToLower(e.Section), q) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Len returns the number of registered students.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Subscribe registers fn to run after every mutation.
func (s *Store) Subscribe(fn Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) check(f Fields) (Fields, error) {
	f.ID = strings.TrimSpace(f.ID)
	f.Name = strings.TrimSpace(f.Name)
	f.Section = strings.TrimSpace(f.Section)
	if err := s.validate.Struct(f); err != nil {
		return f, utils.Wrap(utils.KindValidation, err, "student ID and name are required")
	}
	return f, nil
}

func (s *Store) persistLocked(ctx context.Context) error {
	blob, err := json.Marshal(s.entries)
	if err == nil {
		err = s.kv.Set(ctx, StoreKey, blob)
	}
	if err != nil {
		s.logger.Error("registry write failed", "error", err)
		s.metrics.ObservePersistenceFailure(StoreKey)
		return utils.Wrap(utils.KindPersistence, err, "save registry")
	}
	return nil
}

func (s *Store) notify(n int) {
	s.metrics.SetRegistered(n)
	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(n)
	}
}

func (s *Store) sortedIDsLocked() []string {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func newEntry(f Fields, registeredAt time.Time) models.RegisteredEntry {
	return models.RegisteredEntry{
		ID:           f.ID,
		Name:         f.Name,
		Section:      f.Section,
		RawPayload:   models.CanonicalPayload(f.ID, f.Name, f.Section),
		RegisteredAt: registeredAt,
	}
}

// Package attendance runs scans through identity resolution and into the
// ledger, and registers students in bulk from uploaded QR images.
package attendance

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"qrattend/internal/ledger"
	"qrattend/internal/metrics"
	"qrattend/internal/models"
	"qrattend/internal/parse"
	"qrattend/internal/utils"
)

// MsgInvalidFormat is reported when no parse strategy accepts a payload.
const MsgInvalidFormat = "Invalid QR code format"

// State is the terminal state of a scan.
type State string

const (
	StateRecorded  State = "recorded"
	StateDuplicate State = "duplicate"
	StateRejected  State = "rejected"
)

// Outcome describes one finished scan.
type Outcome struct {
	ScanID          string                  `json:"scanId"`
	State           State                   `json:"state"`
	Identity        *models.StudentIdentity `json:"identity,omitempty"`
	Message         string                  `json:"message"`
	SectionSwitched bool                    `json:"sectionSwitched,omitempty"`
	PreviousSection string                  `json:"previousSection,omitempty"`
	ActiveSection   string                  `json:"activeSection"`
	// Warning is set when the ledger accepted the scan but could not write
	// it to storage.
	Warning string `json:"warning,omitempty"`
}

// Err returns a parse-rejection error for rejected scans, a duplicate-scan
// error for repeats and nil for recorded scans.
func (o Outcome) Err() error {
	switch o.State {
	case StateRejected:
		return utils.New(utils.KindParseRejection, o.Message)
	case StateDuplicate:
		return utils.New(utils.KindDuplicateScan, o.Message)
	default:
		return nil
	}
}

// Registry is the read side of registry.Store used while scanning.
type Registry interface {
	FindByID(id string) (models.RegisteredEntry, bool)
	FindByRawPayload(raw string) (models.RegisteredEntry, bool)
}

// Ledger is the part of ledger.Ledger used while scanning.
type Ledger interface {
	Record(ctx context.Context, id, name, section string) (models.AttendanceEntry, ledger.Result, error)
}

// Coordinator resolves scans one at a time and owns the active section.
type Coordinator struct {
	mu       sync.Mutex
	registry Registry
	ledger   Ledger
	parser   *parse.Parser
	section  string

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithParser replaces the default payload parser.
func WithParser(p *parse.Parser) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.parser = p
		}
	}
}

// NewCoordinator returns a Coordinator whose active section starts at
// section.
func NewCoordinator(reg Registry, l Ledger, section string, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry: reg,
		ledger:   l,
		parser:   parse.New(),
		section:  section,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ActiveSection returns the section new scans default to.
func (c *Coordinator) ActiveSection() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.section
}

// SetActiveSection changes the active section.
func (c *Coordinator) SetActiveSection(section string) error {
	if strings.TrimSpace(section) == "" {
		return utils.New(utils.KindValidation, "section must not be empty")
	}
	c.mu.Lock()
	c.section = section
	c.mu.Unlock()
	c.logger.Info("active section set", "section", section)
	return nil
}

// Scan resolves raw to a student and records attendance. An exact match on
// a registered canonical payload wins, then the parser; a registered entry
// with the parsed ID overrides the parsed fields. When the student belongs
// to another section the active section follows the student.
func (c *Coordinator) Scan(ctx context.Context, raw string) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Outcome{ScanID: uuid.NewString()}
	log := c.logger.With("scan_id", out.ScanID)

	var identity *models.StudentIdentity
	if e, ok := c.registry.FindByRawPayload(raw); ok {
		id := e.Identity()
		identity = &id
	} else {
		identity = c.parser.Parse(raw, c.section)
	}
	if identity == nil || identity.ID == "" {
		out.State = StateRejected
		out.Message = MsgInvalidFormat
		out.ActiveSection = c.section
		log.Info("scan rejected", "raw", raw)
		c.metrics.ObserveScan(string(out.State))
		return out
	}

	if e, ok := c.registry.FindByID(identity.ID); ok {
		id := e.Identity()
		identity = &id
	}
	if identity.Section == "" {
		identity.Section = c.section
	}

	if identity.Section != c.section {
		out.SectionSwitched = true
		out.PreviousSection = c.section
		c.section = identity.Section
		c.metrics.ObserveSectionSwitch()
		log.Info("active section switched", "from", out.PreviousSection, "to", c.section)
	}
	out.ActiveSection = c.section
	out.Identity = identity

	_, res, err := c.ledger.Record(ctx, identity.ID, identity.Name, identity.Section)
	if err != nil {
		out.Warning = err.Error()
		log.Warn("attendance not saved", "error", err)
	}
	switch res {
	case ledger.AlreadyMarked:
		out.State = StateDuplicate
		out.Message = identity.Name + " already marked attendance today"
	default:
		out.State = StateRecorded
		out.Message = "Attendance marked for " + identity.Name + "!"
	}
	log.Info("scan resolved", "id", identity.ID, "state", out.State)
	c.metrics.ObserveScan(string(out.State))
	return out
}

// Package parse turns decoded QR text into a student identity.
//
// Payloads come from many sources: QR codes printed by this tool
// (id:name:section), other attendance systems (pipe or comma separated,
// JSON, URLs) and plain school ID cards. Parse tries a fixed, ordered list
// of strategies and returns the first identity one of them produces.
package parse

import (
	"io"
	"log/slog"

	"qrattend/internal/models"
)

// Strategy recognizes one payload shape.
type Strategy struct {
	Name  string
	Parse func(raw, defaultSection string) (models.StudentIdentity, bool)
}

// DefaultStrategies is the resolution order. Unambiguous delimiters come
// before JSON/URL decoding, and the loose heuristics come last.
var DefaultStrategies = []Strategy{
	{Name: "colon", Parse: Delimited(":")},
	{Name: "pipe", Parse: Delimited("|")},
	{Name: "comma", Parse: Delimited(",")},
	{Name: "json", Parse: JSON},
	{Name: "url", Parse: URL},
	{Name: "bare-id", Parse: BareID},
	{Name: "pattern", Parse: Pattern},
}

// Parser applies strategies in order.
type Parser struct {
	strategies []Strategy
	logger     *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used for parse diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithStrategies replaces the strategy list.
func WithStrategies(strategies ...Strategy) Option {
	return func(p *Parser) {
		p.strategies = strategies
	}
}

// New returns a Parser using DefaultStrategies.
func New(opts ...Option) *Parser {
	p := &Parser{
		strategies: DefaultStrategies,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse returns the identity encoded in raw, or nil when no strategy
// matches. Sections missing from the payload fall back to defaultSection.
func (p *Parser) Parse(raw, defaultSection string) *models.StudentIdentity {
	p.logger.Debug("parsing payload", "raw", raw)
	for _, s := range p.strategies {
		if id, ok := s.Parse(raw, defaultSection); ok {
			p.logger.Debug("payload parsed", "strategy", s.Name, "id", id.ID)
			return &id
		}
	}
	p.logger.Debug("payload not recognized", "raw", raw)
	return nil
}

var defaultParser = New()

// Parse runs the default parser.
func Parse(raw, defaultSection string) *models.StudentIdentity {
	return defaultParser.Parse(raw, defaultSection)
}

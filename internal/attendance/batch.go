package attendance

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"qrattend/internal/models"
	"qrattend/internal/parse"
	"qrattend/internal/registry"
	"qrattend/internal/scanner"
	"qrattend/internal/utils"
)

// Extractor finds a QR payload in an image file.
type Extractor interface {
	ScanImage(f scanner.File) scanner.Result
}

// Registrar stores registrations.
type Registrar interface {
	Register(ctx context.Context, identity models.StudentIdentity) (models.RegisteredEntry, registry.Outcome, error)
}

// FileResult is the outcome for one uploaded file.
type FileResult struct {
	FileName    string                  `json:"fileName"`
	Success     bool                    `json:"success"`
	Message     string                  `json:"message"`
	Identity    *models.StudentIdentity `json:"studentData,omitempty"`
	Outcome     registry.Outcome        `json:"outcome,omitempty"`
	Warning     string                  `json:"warning,omitempty"`
	Diagnostics *scanner.Diagnostics    `json:"diagnostics,omitempty"`
}

// BatchSummary collects the per-file results of one upload.
type BatchSummary struct {
	BatchID   string       `json:"batchId"`
	Results   []FileResult `json:"results"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// Progress is called after each file with the number of files handled so
// far and the total.
type Progress func(current, total int)

// BatchRegistrar registers students from a set of QR images.
type BatchRegistrar struct {
	extractor Extractor
	registry  Registrar
	parser    *parse.Parser
	section   func() string
	logger    *slog.Logger
}

// NewBatchRegistrar returns a registrar. section supplies the default
// section for payloads that carry none.
func NewBatchRegistrar(ex Extractor, reg Registrar, section func() string, logger *slog.Logger) *BatchRegistrar {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &BatchRegistrar{extractor: ex, registry: reg, parser: parse.New(parse.WithLogger(logger)), section: section, logger: logger}
}

// Process handles files sequentially in input order. A failing file never
// stops the batch; a cancelled ctx does, between files, and the results
// gathered so far are returned with ctx's error.
func (b *BatchRegistrar) Process(ctx context.Context, files []scanner.File, progress Progress) (BatchSummary, error) {
	sum := BatchSummary{BatchID: uuid.NewString(), Results: make([]FileResult, 0, len(files))}
	log := b.logger.With("batch_id", sum.BatchID)
	log.Info("batch started", "files", len(files))

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			log.Warn("batch cancelled", "processed", i)
			return sum, err
		}
		r := b.processOne(ctx, f)
		if r.Success {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
		sum.Results = append(sum.Results, r)
		if progress != nil {
			progress(i+1, len(files))
		}
	}

	log.Info("batch finished", "succeeded", sum.Succeeded, "failed", sum.Failed)
	return sum, nil
}

func (b *BatchRegistrar) processOne(ctx context.Context, f scanner.File) (r FileResult) {
	r.FileName = f.Name
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("file processing panicked", "file", f.Name, "panic", p)
			r = FileResult{FileName: f.Name, Message: fmt.Sprintf("Error processing file: %v", p)}
		}
	}()

	res := b.extractor.ScanImage(f)
	if !res.Success {
		r.Message = res.Message
		r.Diagnostics = res.Diagnostics
		return r
	}

	identity := b.parser.Parse(res.Data, b.section())
	if identity == nil || identity.ID == "" {
		r.Message = MsgInvalidFormat
		return r
	}

	_, outcome, err := b.registry.Register(ctx, *identity)
	switch {
	case utils.IsKind(err, utils.KindPersistence):
		r.Warning = err.Error()
	case err != nil:
		r.Message = err.Error()
		return r
	}
	r.Success = true
	r.Outcome = outcome
	r.Identity = identity
	r.Message = fmt.Sprintf("Registered: %s (%s)", identity.Name, identity.ID)
	return r
}

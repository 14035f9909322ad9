package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/aura-notes/backend/internal/models"
)

// Generator is the remote generative text capability. It must not retry internally.
type Generator interface {
	Complete(ctx context.Context, systemPrompt, userText string, jsonMode bool) (string, error)
}

// Extractor obtains schema-conformant structured data from a Generator, re-prompting it with
// its own invalid output until it validates or the attempt bound is reached.
type Extractor struct {
	gen    Generator
	logger *zap.Logger
}

// NewExtractor creates an extractor over gen.
func NewExtractor(gen Generator, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{gen: gen, logger: logger}
}

// ActionItems extracts the action items in source. An empty, non-nil slice is a valid result.
// Exhaustion returns *ExtractionExhaustedError; a generator failure returns *CapabilityError.
func (e *Extractor) ActionItems(ctx context.Context, source string, maxAttempts int) ([]models.ActionItem, error) {
	return repair(ctx, e, extraction[[]models.ActionItem]{
		stage:  "action item extraction",
		system: ActionItemsPrompt,
		shape:  "a valid JSON array that matches the schema",
		parse:  ParseActionItems,
	}, source, maxAttempts)
}

// Summary summarizes source into agenda, decisions and risks.
func (e *Extractor) Summary(ctx context.Context, source string, maxAttempts int) (*models.Summary, error) {
	return repair(ctx, e, extraction[*models.Summary]{
		stage:    "summarization",
		system:   SummaryPrompt,
		shape:    `a valid JSON object with the keys "agenda", "decisions" and "risks"`,
		jsonMode: true,
		parse:    ParseSummary,
	}, source, maxAttempts)
}

type extraction[T any] struct {
	stage    string
	system   string
	shape    string
	jsonMode bool
	parse    func(raw string) (T, error)
}

func repair[T any](ctx context.Context, e *Extractor, x extraction[T], source string, maxAttempts int) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	prompt := source
	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, capabilityErr("generate", err)
		}
		raw, err := e.gen.Complete(ctx, x.system, prompt, x.jsonMode)
		if err != nil {
			return zero, capabilityErr("generate", err)
		}

		v, err := x.parse(raw)
		if err == nil {
			e.logger.Debug("model output validated", zap.String("stage", x.stage), zap.Int("attempt", attempt))
			return v, nil
		}
		if !repairable(err) {
			return zero, err
		}

		last = err
		e.logger.Warn("model output rejected, re-prompting with repair instructions",
			zap.String("stage", x.stage), zap.Int("attempt", attempt), zap.Int("max_attempts", maxAttempts), zap.Error(err))
		prompt = repairPrompt(x.shape, source, raw, err)
	}
	return zero, &ExtractionExhaustedError{Stage: x.stage, Attempts: maxAttempts, Last: last}
}

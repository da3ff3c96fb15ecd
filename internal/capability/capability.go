// Package capability wraps a text-generation backend into the structured
// capability every pipeline stage calls: render a prompt, ask the model,
// decode the JSON it returns into a typed result and validate it, retrying
// with the rejection reason appended when the output does not fit.
package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/appknox/ak-translator/internal/logging"
	"github.com/appknox/ak-translator/internal/metrics"
	"github.com/appknox/ak-translator/internal/postprocess"
)

// Generator is a raw text-generation backend.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Name() string { return "func" }

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Schema is implemented by the pointer to a stage's result type. Format
// describes the expected JSON to the model; Validate rejects decoded values
// that are well-formed JSON but still unusable.
type Schema interface {
	Format() string
	Validate() error
}

// Capability is the contract the pipeline stages depend on.
type Capability interface {
	Invoke(ctx context.Context, p Prompt, vars map[string]any, out Schema) error
}

// ErrEmptyResponse is returned by backends that produced no text.
var ErrEmptyResponse = errors.New("empty response from model")

// SchemaValidationError is returned once every attempt produced output that
// could not be decoded into, or validated as, the requested result.
type SchemaValidationError struct {
	Prompt   string
	Attempts int
	Response string
	Err      error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("%s: output rejected after %d attempts: %v", e.Prompt, e.Attempts, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

type Options struct {
	MaxAttempts int
	Limiter     *rate.Limiter
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

// Model is the default Capability backed by a Generator.
type Model struct {
	gen         Generator
	maxAttempts int
	limiter     *rate.Limiter
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

func New(gen Generator, opts Options) *Model {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	return &Model{
		gen:         gen,
		maxAttempts: opts.MaxAttempts,
		limiter:     opts.Limiter,
		logger:      logging.OrNop(opts.Logger),
		metrics:     opts.Metrics,
	}
}

// NewLimiter returns a limiter for rps requests per second, or nil for
// unlimited when rps is zero.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Invoke renders p with vars plus the schema's format instructions and fills
// out with the first response that decodes and validates. Transport errors
// and rejected outputs both consume an attempt; only rejected outputs are fed
// back to the model.
func (m *Model) Invoke(ctx context.Context, p Prompt, vars map[string]any, out Schema) error {
	bound := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		bound[k] = v
	}
	bound[FormatInstructionsVar] = out.Format()

	base, err := p.Render(bound)
	if err != nil {
		return fmt.Errorf("failed to render %s prompt: %w", p.Name, err)
	}

	log := m.logger.With(zap.String("prompt", p.Name), zap.String("backend", m.gen.Name()))
	prompt := base
	var (
		lastErr      error
		lastResponse string
		rejected     bool
	)

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%s: rate limiter: %w", p.Name, err)
			}
		}

		text, err := m.gen.Generate(ctx, prompt)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				m.metrics.CapabilityCall(p.Name, "canceled", attempt)
				return fmt.Errorf("%s: %w", p.Name, ctxErr)
			}
			log.Warn("generation failed", zap.Int("attempt", attempt), zap.Error(err))
			lastErr, rejected = err, false
			continue
		}

		if err := Decode(text, out); err != nil {
			log.Warn("output rejected", zap.Int("attempt", attempt), zap.Error(err))
			lastErr, lastResponse, rejected = err, text, true
			prompt, err = withFeedback(base, text, err)
			if err != nil {
				return fmt.Errorf("failed to render %s feedback: %w", p.Name, err)
			}
			continue
		}

		log.Debug("capability invoked", zap.Int("attempt", attempt))
		m.metrics.CapabilityCall(p.Name, "ok", attempt)
		return nil
	}

	if rejected {
		m.metrics.CapabilityCall(p.Name, "rejected", m.maxAttempts)
		return &SchemaValidationError{Prompt: p.Name, Attempts: m.maxAttempts, Response: lastResponse, Err: lastErr}
	}
	m.metrics.CapabilityCall(p.Name, "error", m.maxAttempts)
	return fmt.Errorf("%s: generation failed after %d attempts: %w", p.Name, m.maxAttempts, lastErr)
}

// Resetter lets a Schema clear its decoded fields between attempts while
// keeping its own configuration. Schemas without it are zeroed.
type Resetter interface {
	Reset()
}

// Decode extracts the JSON payload from model text, decodes it into out and
// validates it.
func Decode(text string, out Schema) error {
	payload, err := postprocess.ExtractJSON(text)
	if err != nil {
		return err
	}
	reset(out)
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return out.Validate()
}

func reset(out any) {
	if r, ok := out.(Resetter); ok {
		r.Reset()
		return
	}
	v := reflect.ValueOf(out)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		v.Elem().SetZero()
	}
}

func withFeedback(base, response string, cause error) (string, error) {
	feedback, err := feedbackPrompt.Render(map[string]any{
		"previous": strings.TrimSpace(response),
		"error":    cause.Error(),
	})
	if err != nil {
		return "", err
	}
	return base + "\n\n" + feedback, nil
}

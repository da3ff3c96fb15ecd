// Package orchestrator fans one translation job out to many target languages
// and reports each language's progress as soon as it happens.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/appknox/ak-translator/internal/agent"
	"github.com/appknox/ak-translator/internal/chunker"
	"github.com/appknox/ak-translator/internal/content"
	"github.com/appknox/ak-translator/internal/language"
	"github.com/appknox/ak-translator/internal/logging"
	"github.com/appknox/ak-translator/internal/metrics"
)

// ErrNoLanguages is returned for a job without target languages.
var ErrNoLanguages = errors.New("no target languages specified")

// Translator prepares an input once and translates it per language.
// *service.Service implements it.
type Translator interface {
	Prepare(ctx context.Context, input content.Value) (agent.Prepared, error)
	Run(ctx context.Context, prepared agent.Prepared, lang language.Language) (chunker.Result, error)
}

// Notifier delivers events to a client. Delivery failures are the notifier's
// concern; the dispatcher logs them and carries on.
type Notifier interface {
	Notify(ctx context.Context, clientID string, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, clientID string, ev Event) error

func (f NotifierFunc) Notify(ctx context.Context, clientID string, ev Event) error {
	return f(ctx, clientID, ev)
}

// Job is one multi-language request.
type Job struct {
	ID        string
	ClientID  string
	Input     content.Value
	Languages []language.Language
}

// NewJobID returns a fresh job identifier.
func NewJobID() string { return "job_" + uuid.NewString() }

// LanguageError is one language's failure. It never affects other languages.
type LanguageError struct {
	Language language.Language
	Err      error
}

func (e *LanguageError) Error() string {
	return fmt.Sprintf("translation to %s failed: %v", e.Language.Code, e.Err)
}

func (e *LanguageError) Unwrap() error { return e.Err }

// Summary is what a finished job produced.
type Summary struct {
	JobID     string
	Results   []chunker.Result
	Failures  []LanguageError
	Completed int
}

type Dispatcher struct {
	translator Translator
	notifier   Notifier
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

func New(t Translator, n Notifier, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{translator: t, notifier: n, logger: logging.OrNop(logger), metrics: m}
}

// Dispatch runs job to completion. Every language gets a started event and
// then exactly one completed or failed event; a final multi_translation_completed
// follows once all of them have settled. Results and Failures are in
// completion order.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) (Summary, error) {
	if job.ID == "" {
		job.ID = NewJobID()
	}
	logger := d.logger.With(zap.String("job_id", job.ID), zap.String("client_id", job.ClientID))

	if len(job.Languages) == 0 {
		d.notify(ctx, logger, job.ClientID, Event{Type: EventTranslationError, JobID: job.ID, Error: ErrNoLanguages.Error()})
		return Summary{JobID: job.ID}, ErrNoLanguages
	}

	codes := make([]string, len(job.Languages))
	for i, l := range job.Languages {
		codes[i] = l.Code
	}
	d.notify(ctx, logger, job.ClientID, Event{
		Type:           EventMultiStarted,
		JobID:          job.ID,
		TotalLanguages: len(codes),
		Languages:      codes,
	})
	logger.Info("translation job started", zap.Strings("languages", codes))

	prepared, prepErr := d.translator.Prepare(ctx, job.Input)
	if prepErr != nil {
		logger.Warn("failed to prepare input", zap.Error(prepErr))
	}

	var (
		mu        sync.Mutex
		summary   = Summary{JobID: job.ID}
		completed atomic.Int32
		wg        sync.WaitGroup
	)
	for _, lang := range job.Languages {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.notify(ctx, logger, job.ClientID, Event{
				Type:     EventLanguageStarted,
				JobID:    job.ID,
				Language: lang.Code,
				Progress: fmt.Sprintf("Translating to %s...", lang.Name),
			})

			var out chunker.Result
			err := prepErr
			if err == nil {
				out, err = d.run(ctx, prepared, lang)
			}

			if err != nil {
				lerr := LanguageError{Language: lang, Err: err}
				mu.Lock()
				summary.Failures = append(summary.Failures, lerr)
				mu.Unlock()
				d.metrics.LanguageJob("failed")
				logger.Warn("language translation failed", zap.String("language", lang.Code), zap.Error(err))
				d.notify(ctx, logger, job.ClientID, Event{
					Type:     EventLanguageFailed,
					JobID:    job.ID,
					Language: lang.Code,
					Error:    lerr.Error(),
				})
				return
			}

			n := int(completed.Add(1))
			mu.Lock()
			summary.Results = append(summary.Results, out)
			mu.Unlock()
			d.metrics.LanguageJob("completed")
			input := job.Input
			d.notify(ctx, logger, job.ClientID, Event{
				Type:           EventLanguageCompleted,
				JobID:          job.ID,
				Language:       lang.Code,
				OriginalText:   &input,
				TranslatedText: &out,
				CompletedCount: n,
				TotalCount:     len(job.Languages),
			})
		}()
	}
	wg.Wait()

	summary.Completed = int(completed.Load())
	d.notify(ctx, logger, job.ClientID, Event{Type: EventMultiCompleted, JobID: job.ID})
	logger.Info("translation job finished",
		zap.Int("completed", summary.Completed),
		zap.Int("failed", len(summary.Failures)))
	return summary, nil
}

// run translates one language, turning a panic into an error.
func (d *Dispatcher) run(ctx context.Context, prepared agent.Prepared, lang language.Language) (res chunker.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.translator.Run(ctx, prepared, lang)
}

func (d *Dispatcher) notify(ctx context.Context, logger *zap.Logger, clientID string, ev Event) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.Notify(ctx, clientID, ev); err != nil {
		logger.Warn("failed to deliver event", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

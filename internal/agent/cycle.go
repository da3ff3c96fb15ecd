package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/appknox/ak-translator/internal/capability"
	"github.com/appknox/ak-translator/internal/content"
	"github.com/appknox/ak-translator/internal/language"
	"github.com/appknox/ak-translator/internal/logging"
	"github.com/appknox/ak-translator/internal/metrics"
)

const (
	DefaultMaxIterations  = 2
	DefaultReasoningLimit = 100
)

type CycleOptions struct {
	MaxIterations  int
	ReasoningLimit int
	Glossary       Glossary
	LanguageCheck  LanguageCheck // runs before every model review when set
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
}

// Cycle is the translation state machine:
//
//	CLASSIFY -> REPAIR (malformed JSON only) -> TRANSLATE -> REVIEW
//	REVIEW -> TRANSLATE (REDO or an unrecognised decision)
//	REVIEW -> FORMAT (APPROVE or END) -> DONE
//
// The translator never pushes the iteration past MaxIterations and the
// reviewer approves unconditionally at the cap, so every run terminates.
type Cycle struct {
	classifier *Classifier
	repairer   *Repairer
	translator *Translator
	reviewer   *Reviewer
	formatter  *Formatter

	maxIterations int
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

func NewCycle(c capability.Capability, opts CycleOptions) *Cycle {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.ReasoningLimit <= 0 {
		opts.ReasoningLimit = DefaultReasoningLimit
	}
	logger := logging.OrNop(opts.Logger)
	return &Cycle{
		classifier:    NewClassifier(c, logger),
		repairer:      NewRepairer(c, logger),
		translator:    NewTranslator(c, opts.Glossary, opts.MaxIterations, logger),
		reviewer:      NewReviewer(c, opts.LanguageCheck, opts.MaxIterations, opts.ReasoningLimit, logger, opts.Metrics),
		formatter:     NewFormatter(c, logger),
		maxIterations: opts.MaxIterations,
		logger:        logger,
		metrics:       opts.Metrics,
	}
}

func (c *Cycle) MaxIterations() int { return c.maxIterations }

// run carries the mutable state of one pass through the machine.
type run struct {
	raw      content.Value
	prepared Prepared
	lang     language.Language

	translation    TranslationState
	hasTranslation bool
	review         ReviewState
	format         FormatState
	trace          []State
}

// Prepare runs CLASSIFY and, for malformed JSON, REPAIR.
func (c *Cycle) Prepare(ctx context.Context, input content.Value) (Prepared, error) {
	r := &run{raw: input}
	if err := c.drive(ctx, r, StateClassify, StateTranslate); err != nil {
		return Prepared{}, err
	}
	return r.prepared, nil
}

// Run translates a prepared input into lang, starting at TRANSLATE.
func (c *Cycle) Run(ctx context.Context, prepared Prepared, lang language.Language) (Result, error) {
	r := &run{raw: prepared.Input, prepared: prepared, lang: lang}
	if err := c.drive(ctx, r, StateTranslate, StateDone); err != nil {
		return Result{}, err
	}
	return c.result(r), nil
}

// Execute runs the whole machine from CLASSIFY for a single language.
func (c *Cycle) Execute(ctx context.Context, input content.Value, lang language.Language) (Result, error) {
	r := &run{raw: input, lang: lang}
	if err := c.drive(ctx, r, StateClassify, StateDone); err != nil {
		return Result{}, err
	}
	return c.result(r), nil
}

func (c *Cycle) result(r *run) Result {
	c.metrics.CycleDone(r.translation.Iteration)
	return Result{
		Language:         r.lang,
		Input:            r.prepared.Input,
		WasStructured:    r.prepared.WasStructured,
		FinalTranslation: r.format.FinalTranslation,
		FinalRating:      r.format.FinalRating,
		Decision:         r.review.Decision,
		Reasoning:        r.review.Reasoning,
		Iterations:       r.translation.Iteration,
		Trace:            r.trace,
	}
}

func (c *Cycle) drive(ctx context.Context, r *run, start, stop State) error {
	state := start
	for state != stop {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: state, Err: err}
		}
		r.trace = append(r.trace, state)

		next, err := c.step(ctx, r, state)
		if err != nil {
			return &StageError{Stage: state, Err: err}
		}
		c.logger.Debug("cycle transition",
			zap.String("language", r.lang.Code),
			zap.String("from", string(state)),
			zap.String("to", string(next)),
			zap.Int("iteration", r.translation.Iteration))
		state = next
	}
	return nil
}

func (c *Cycle) step(ctx context.Context, r *run, state State) (State, error) {
	switch state {
	case StateClassify:
		assessment, input, err := c.classifier.Classify(ctx, r.raw)
		if err != nil {
			return "", err
		}
		r.prepared = Prepared{
			Input:         input,
			Assessment:    assessment,
			WasStructured: assessment.ContentType == ContentJSON,
		}
		if assessment.ContentType == ContentMalformedJSON {
			return StateRepair, nil
		}
		return StateTranslate, nil

	case StateRepair:
		fixed, err := c.repairer.Repair(ctx, r.raw.Render(), r.prepared.Assessment.Issues)
		if err != nil {
			return "", err
		}
		r.prepared.Input = fixed
		r.prepared.WasStructured = true
		r.prepared.Repaired = true
		return StateTranslate, nil

	case StateTranslate:
		in := TranslateInput{
			Source:    r.prepared.Input,
			Language:  r.lang,
			Iteration: r.translation.Iteration,
		}
		if r.hasTranslation && r.review.Decision == DecisionRedo {
			prior := r.translation.Translation
			in.Prior = &prior
			in.Issues = r.review.Issues
		}
		ts, err := c.translator.Translate(ctx, in)
		if err != nil {
			return "", err
		}
		r.translation = ts
		r.hasTranslation = true
		// the verdict applied to the previous draft
		r.review = ReviewState{}
		return StateReview, nil

	case StateReview:
		rs, err := c.reviewer.Review(ctx, r.prepared.Input, r.lang, r.translation)
		if err != nil {
			return "", err
		}
		r.review = rs
		return route(rs.Decision), nil

	case StateFormat:
		fs, err := c.formatter.Format(ctx, r.prepared.Input, r.lang, r.translation, r.review)
		if err != nil {
			return "", err
		}
		r.format = fs
		return StateDone, nil
	}
	return "", fmt.Errorf("unknown state %q", state)
}

// route maps a review decision onto the next state. An unrecognised decision
// takes another translate pass; the iteration cap bounds how many.
func route(d Decision) State {
	switch d {
	case DecisionApprove, DecisionEnd:
		return StateFormat
	case DecisionRedo:
		return StateTranslate
	default:
		return StateTranslate
	}
}

// IsStage reports whether err came from the named cycle stage.
func IsStage(err error, stage State) bool {
	var se *StageError
	return errors.As(err, &se) && se.Stage == stage
}

// Package chunker splits large JSON objects into bounded groups of top-level
// keys, translates each group with its own cycle and merges the results back
// into one document in the original key order.
//
// Chunks are translated without knowledge of each other, so terminology is
// only as consistent across chunks as the glossary makes it.
package chunker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/appknox/ak-translator/internal/agent"
	"github.com/appknox/ak-translator/internal/content"
	"github.com/appknox/ak-translator/internal/language"
	"github.com/appknox/ak-translator/internal/logging"
	"github.com/appknox/ak-translator/internal/metrics"
)

const (
	// DefaultSize is the number of top-level keys per chunk.
	DefaultSize = 40
	// DefaultConcurrency bounds the chunks translated at once.
	DefaultConcurrency = 4
)

var errNotObject = errors.New("chunk translation is not a JSON object")

// Runner runs a cycle from TRANSLATE on already prepared input.
// *agent.Cycle implements it.
type Runner interface {
	Run(ctx context.Context, prepared agent.Prepared, lang language.Language) (agent.Result, error)
}

// ChunkFailure records a chunk whose original content was kept because its
// cycle failed or returned something other than an object.
type ChunkFailure struct {
	Index int
	Keys  []string
	Err   error
}

func (f *ChunkFailure) Error() string {
	return fmt.Sprintf("chunk %d (%s): %v", f.Index, strings.Join(f.Keys, ", "), f.Err)
}

func (f *ChunkFailure) Unwrap() error { return f.Err }

// Result is a merged cycle result. Decision, Reasoning and FinalRating come
// from the last chunk; Iterations is the sum over all chunks.
type Result struct {
	agent.Result
	Chunks   int
	Failures []ChunkFailure
}

type Options struct {
	Size        int
	Concurrency int
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

type Coordinator struct {
	runner      Runner
	size        int
	concurrency int
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

func New(runner Runner, opts Options) *Coordinator {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Coordinator{
		runner:      runner,
		size:        opts.Size,
		concurrency: opts.Concurrency,
		logger:      logging.OrNop(opts.Logger),
		metrics:     opts.Metrics,
	}
}

// Partition splits an object into objects of at most size top-level keys,
// preserving key order. Anything else, or an object that already fits, is
// returned as the only chunk.
func Partition(v content.Value, size int) []content.Value {
	if v.Kind() != content.KindObject || size <= 0 || v.Len() <= size {
		return []content.Value{v}
	}
	fields := v.Fields()
	chunks := make([]content.Value, 0, (len(fields)+size-1)/size)
	for start := 0; start < len(fields); start += size {
		end := min(start+size, len(fields))
		chunks = append(chunks, content.Object(fields[start:end]...))
	}
	return chunks
}

type outcome struct {
	res agent.Result
	err error
}

// Translate runs prepared through the cycle into lang. A document that fits
// in one chunk gets the cycle's result and error directly. Larger objects are
// translated chunk by chunk; a failing chunk falls back to its original
// content and only cancellation of ctx fails the whole call.
func (c *Coordinator) Translate(ctx context.Context, prepared agent.Prepared, lang language.Language) (Result, error) {
	chunks := Partition(prepared.Input, c.size)
	if len(chunks) == 1 {
		res, err := c.runner.Run(ctx, prepared, lang)
		if err != nil {
			return Result{}, err
		}
		return Result{Result: res, Chunks: 1}, nil
	}

	c.logger.Debug("translating in chunks",
		zap.String("language", lang.Code),
		zap.Int("keys", prepared.Input.Len()),
		zap.Int("chunks", len(chunks)))

	outcomes := make([]outcome, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			part := agent.Prepared{
				Input:         chunk,
				Assessment:    prepared.Assessment,
				WasStructured: true,
				Repaired:      prepared.Repaired,
			}
			res, err := c.runner.Run(gctx, part, lang)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err == nil && res.FinalTranslation.Kind() != content.KindObject {
				err = errNotObject
			}
			outcomes[i] = outcome{res: res, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	return c.merge(prepared, lang, chunks, outcomes), nil
}

func (c *Coordinator) merge(prepared agent.Prepared, lang language.Language, chunks []content.Value, outcomes []outcome) Result {
	merged := Result{
		Result: agent.Result{
			Language:      lang,
			Input:         prepared.Input,
			WasStructured: true,
		},
		Chunks: len(chunks),
	}

	fields := make([]content.Field, 0, prepared.Input.Len())
	for i, chunk := range chunks {
		o := outcomes[i]
		if o.err != nil {
			failure := ChunkFailure{Index: i, Keys: chunk.Keys(), Err: o.err}
			merged.Failures = append(merged.Failures, failure)
			c.metrics.ChunkFallback()
			c.logger.Warn("chunk translation failed, keeping original content",
				zap.String("language", lang.Code),
				zap.Int("chunk", i),
				zap.Int("keys", chunk.Len()),
				zap.Error(o.err))
			fields = append(fields, chunk.Fields()...)
			continue
		}

		for _, f := range chunk.Fields() {
			if v, ok := o.res.FinalTranslation.Get(f.Key); ok {
				f.Value = v
			}
			fields = append(fields, f)
		}
		merged.Iterations += o.res.Iterations
		merged.FinalRating = o.res.FinalRating
		merged.Decision = o.res.Decision
		merged.Reasoning = o.res.Reasoning
		merged.Trace = o.res.Trace
	}
	merged.FinalTranslation = content.Object(fields...)
	return merged
}

// Package service is the translation entry point used by the HTTP handlers,
// the websocket dispatcher and the CLI. It classifies an input once, caches
// the outcome, and runs the cycle (chunked when the input is large) per
// target language.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/appknox/ak-translator/internal/agent"
	"github.com/appknox/ak-translator/internal/cache"
	"github.com/appknox/ak-translator/internal/capability"
	"github.com/appknox/ak-translator/internal/chunker"
	"github.com/appknox/ak-translator/internal/content"
	"github.com/appknox/ak-translator/internal/language"
	"github.com/appknox/ak-translator/internal/logging"
	"github.com/appknox/ak-translator/internal/metrics"
)

// ErrUnsupportedLanguage is returned for a target outside the configured set.
var ErrUnsupportedLanguage = language.ErrUnsupported

// ErrEmptyInput is returned for blank text.
var ErrEmptyInput = errors.New("input is empty")

type Options struct {
	Cycle            agent.CycleOptions
	ChunkSize        int
	ChunkConcurrency int
	// DisableCache turns off reuse of the last classification.
	DisableCache bool
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

type Service struct {
	cycle     *agent.Cycle
	chunks    *chunker.Coordinator
	cache     *cache.Result
	languages *language.Set
	logger    *zap.Logger
}

func New(c capability.Capability, languages *language.Set, opts Options) *Service {
	logger := logging.OrNop(opts.Logger)
	if opts.Cycle.Logger == nil {
		opts.Cycle.Logger = logger
	}
	if opts.Cycle.Metrics == nil {
		opts.Cycle.Metrics = opts.Metrics
	}
	cycle := agent.NewCycle(c, opts.Cycle)
	s := &Service{
		cycle: cycle,
		chunks: chunker.New(cycle, chunker.Options{
			Size:        opts.ChunkSize,
			Concurrency: opts.ChunkConcurrency,
			Logger:      logger,
			Metrics:     opts.Metrics,
		}),
		languages: languages,
		logger:    logger,
	}
	if !opts.DisableCache {
		s.cache = cache.New()
	}
	return s
}

func (s *Service) Languages() []language.Language { return s.languages.All() }

// Resolve maps codes or names to configured languages; none means all.
func (s *Service) Resolve(names []string) ([]language.Language, error) {
	return s.languages.Resolve(names)
}

// CacheKey is the raw input as received; documents use their compact JSON.
func CacheKey(input content.Value) string {
	if s, ok := input.Text(); ok {
		return s
	}
	return input.Compact()
}

// Prepare classifies input and repairs it if needed, reusing the cached
// outcome when input matches the previous call.
func (s *Service) Prepare(ctx context.Context, input content.Value) (agent.Prepared, error) {
	if text, ok := input.Text(); ok && strings.TrimSpace(text) == "" {
		return agent.Prepared{}, ErrEmptyInput
	}
	if input.Kind() != content.KindString && !input.IsStructured() {
		return agent.Prepared{}, fmt.Errorf("input must be text or a JSON document, got %s", input.Kind())
	}

	key := CacheKey(input)
	if s.cache != nil {
		if p, ok := s.cache.Get(key); ok {
			s.logger.Debug("classification cache hit", zap.String("content_type", string(p.Assessment.ContentType)))
			return p, nil
		}
	}

	p, err := s.cycle.Prepare(ctx, input)
	if err != nil {
		return agent.Prepared{}, err
	}
	if s.cache != nil {
		s.cache.Put(key, p)
	}
	s.logger.Debug("input classified",
		zap.String("content_type", string(p.Assessment.ContentType)),
		zap.Bool("repaired", p.Repaired))
	return p, nil
}

// Run translates an already prepared input into one language.
func (s *Service) Run(ctx context.Context, prepared agent.Prepared, lang language.Language) (chunker.Result, error) {
	return s.chunks.Translate(ctx, prepared, lang)
}

// Translate prepares input and translates it into the named language.
func (s *Service) Translate(ctx context.Context, input content.Value, name string) (chunker.Result, error) {
	lang, err := s.languages.Lookup(name)
	if err != nil {
		return chunker.Result{}, err
	}
	prepared, err := s.Prepare(ctx, input)
	if err != nil {
		return chunker.Result{}, err
	}
	return s.Run(ctx, prepared, lang)
}

// TranslateAll translates input into every language concurrently. The first
// failure cancels the rest and is returned; results follow langs order.
func (s *Service) TranslateAll(ctx context.Context, input content.Value, langs []language.Language) ([]chunker.Result, error) {
	if len(langs) == 0 {
		langs = s.languages.All()
	}
	prepared, err := s.Prepare(ctx, input)
	if err != nil {
		return nil, err
	}

	results := make([]chunker.Result, len(langs))
	g, gctx := errgroup.WithContext(ctx)
	for i, lang := range langs {
		g.Go(func() error {
			res, err := s.Run(gctx, prepared, lang)
			if err != nil {
				return fmt.Errorf("failed to translate to %s: %w", lang.Code, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ClearCache drops the cached classification and reports whether there was one.
func (s *Service) ClearCache() bool {
	if s.cache == nil {
		return false
	}
	return s.cache.Clear()
}

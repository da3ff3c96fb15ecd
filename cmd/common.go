/*
Copyright © 2025 Appknox

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/appknox/ak-translator/internal/agent"
	"github.com/appknox/ak-translator/internal/capability"
	"github.com/appknox/ak-translator/internal/config"
	"github.com/appknox/ak-translator/internal/language"
	"github.com/appknox/ak-translator/internal/metrics"
	"github.com/appknox/ak-translator/internal/service"
	"github.com/appknox/ak-translator/internal/store"
	"github.com/appknox/ak-translator/internal/validator"
)

// buildGenerator constructs the model backend named by m.Backend.
func buildGenerator(ctx context.Context, m config.ModelConfig) (capability.Generator, error) {
	switch m.Backend {
	case "ollama":
		return capability.NewOllamaGenerator(m.BaseURL, m.Name, m.Temperature, m.Timeout), nil
	case "openai":
		return capability.NewOpenAIGenerator(m.APIKey, m.BaseURL, m.Name, m.Temperature, m.Timeout), nil
	case "openrouter":
		return capability.NewOpenRouterGenerator(m.APIKey, m.BaseURL, m.Name, m.Temperature, m.Timeout), nil
	case "gemini":
		return capability.NewGeminiGenerator(ctx, m.APIKey, m.Name, m.Temperature, m.Timeout)
	default:
		return nil, fmt.Errorf("unknown model backend: %s", m.Backend)
	}
}

// app holds everything a command needs to translate.
type app struct {
	service  *service.Service
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	glossary *store.Store
	model    string
}

func (a *app) Close() {
	if a.glossary != nil {
		if err := a.glossary.Close(); err != nil {
			logger.Warn("failed to close glossary", zap.Error(err))
		}
	}
}

// buildApp wires config into a translation service. The metrics
// registry is private so one-shot commands never touch global state.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	languages, err := language.NewSet(cfg.Languages)
	if err != nil {
		return nil, err
	}

	gen, err := buildGenerator(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	a := &app{metrics: m, registry: reg, model: gen.Name()}

	var glossary agent.Glossary
	if cfg.Glossary.DB != "" {
		db, err := store.Open(cfg.Glossary.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to open glossary: %w", err)
		}
		a.glossary = db
		glossary = db
	}

	var check agent.LanguageCheck
	if cfg.Pipeline.LanguageCheck {
		check = validator.New(languages.All())
	}

	model := capability.New(gen, capability.Options{
		MaxAttempts: cfg.Model.MaxAttempts,
		Limiter:     capability.NewLimiter(cfg.Model.RequestsPerSecond, cfg.Model.Burst),
		Logger:      logger,
		Metrics:     m,
	})

	a.service = service.New(model, languages, service.Options{
		Cycle: agent.CycleOptions{
			MaxIterations:  cfg.Pipeline.MaxIterations,
			ReasoningLimit: cfg.Pipeline.ReasoningLimit,
			Glossary:       glossary,
			LanguageCheck:  check,
		},
		ChunkSize:        cfg.Pipeline.ChunkSize,
		ChunkConcurrency: cfg.Pipeline.ChunkConcurrency,
		DisableCache:     !cfg.Pipeline.Cache,
		Logger:           logger,
		Metrics:          m,
	})

	logger.Info("translator ready",
		zap.String("model", a.model),
		zap.Strings("languages", cfg.Languages),
		zap.Bool("glossary", a.glossary != nil),
		zap.Bool("language_check", check != nil))
	return a, nil
}

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
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/appknox/ak-translator/internal/config"
	"github.com/appknox/ak-translator/internal/logging"
)

var version = "0.1.0"

var (
	cfgFile string
	v       = viper.New()

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ak-translator",
	Short: "LLM localization service for UI strings and JSON documents",
	Long: `A translation service that classifies its input, repairs malformed JSON,
and runs a translate / review / format cycle against a generative model for
every configured target language.

Supported backends: Ollama (self-hosted), OpenAI, OpenRouter, Gemini

Use "ak-translator serve" to start the HTTP and websocket API, or
"ak-translator translate --help" for one-shot translation.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	config.SetDefaults(v)
	config.BindEnv(v)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default ./ak-translator.yaml or $HOME/.ak-translator.yaml)")
	pf.String("backend", "", "Model backend: ollama, openai, openrouter, gemini")
	pf.String("model", "", "Model name (backend default when empty)")
	pf.String("base-url", "", "Model API base URL")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.Bool("log-dev", false, "Human-readable development logging")

	for key, flag := range map[string]string{
		"model.backend":   "backend",
		"model.name":      "model",
		"model.base_url":  "base-url",
		"log.level":       "log-level",
		"log.development": "log-dev",
	} {
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

// initConfig reads the config file, if any, and builds the logger.
func initConfig() error {
	path := cfgFile
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	loaded, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = loaded

	logger, err = logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	if path != "" {
		logger.Debug("loaded config", zap.String("file", path))
	}
	return nil
}

func findConfig() string {
	candidates := []string{"ak-translator.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".ak-translator.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

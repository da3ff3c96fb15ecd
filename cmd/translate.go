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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/appknox/ak-translator/internal/content"
	"github.com/appknox/ak-translator/internal/orchestrator"
	"github.com/appknox/ak-translator/internal/server"
)

var (
	inputFile    string
	outputFile   string
	targets      []string
	streamEvents bool
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate a string or JSON document into the configured languages",
	Long: `Translate the contents of a file (or stdin with -i -) into every configured
target language, or only those given with --languages.

The input is classified first: plain text is translated as one string, JSON
documents are translated leaf by leaf with their keys kept, and malformed JSON
is repaired before translation.

With --events every progress event is written to stdout as one JSON line,
in the same shape websocket clients receive; --output is rejected in that
mode. Otherwise the result is written as {"translations": {code: {text, accuracy}}}.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateTranslateFlags(inputFile, outputFile, streamEvents); err != nil {
			return err
		}

		raw, err := readInput(inputFile)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		langs, err := a.service.Resolve(targets)
		if err != nil {
			return err
		}

		var notifier orchestrator.Notifier = orchestrator.NotifierFunc(func(context.Context, string, orchestrator.Event) error { return nil })
		if streamEvents {
			notifier = newLineNotifier(os.Stdout)
		}

		summary, err := orchestrator.New(a.service, notifier, logger, a.metrics).Dispatch(ctx, orchestrator.Job{
			ClientID:  "cli",
			Input:     content.String(raw),
			Languages: langs,
		})
		if err != nil {
			return err
		}

		for _, f := range summary.Failures {
			logger.Error("language failed", zap.String("language", f.Language.Code), zap.Error(f.Err))
		}

		if !streamEvents {
			if err := writeTranslations(outputFile, summary); err != nil {
				return err
			}
		}

		if n := len(summary.Failures); n > 0 {
			return fmt.Errorf("%d of %d languages failed", n, len(langs))
		}
		if outputFile != "" {
			fmt.Fprintf(os.Stderr, "Successfully translated into %d languages\n", summary.Completed)
		}
		return nil
	},
}

func validateTranslateFlags(input, output string, events bool) error {
	if events && output != "" {
		return fmt.Errorf("--events streams to stdout and cannot be combined with --output")
	}
	if input != "-" && input == output {
		return fmt.Errorf("input file and output file cannot be the same")
	}
	return nil
}

func readInput(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(data), nil
}

func writeTranslations(path string, summary orchestrator.Summary) error {
	resp := server.TranslateResponse{Translations: make(map[string]server.TranslationItem, len(summary.Results))}
	for _, r := range summary.Results {
		resp.Translations[r.Language.Code] = server.TranslationItem{Text: r.FinalTranslation, Accuracy: r.Accuracy()}
	}

	out := io.Writer(os.Stdout)
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// lineNotifier writes each event as one JSON line. Languages finish
// concurrently, so writes are serialized.
type lineNotifier struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newLineNotifier(w io.Writer) *lineNotifier {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &lineNotifier{enc: enc}
}

func (n *lineNotifier) Notify(_ context.Context, _ string, ev orchestrator.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.enc.Encode(ev)
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input file to translate, - for stdin (required)")
	translateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default stdout, not valid with --events)")
	translateCmd.Flags().StringSliceVarP(&targets, "languages", "l", nil, "Target languages, codes or names (default all configured)")
	translateCmd.Flags().BoolVar(&streamEvents, "events", false, "Stream progress events as JSON lines")

	translateCmd.MarkFlagRequired("input")
}

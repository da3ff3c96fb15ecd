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
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/appknox/ak-translator/internal/language"
	"github.com/appknox/ak-translator/internal/store"
)

var glossaryCmd = &cobra.Command{
	Use:   "glossary",
	Short: "Manage the terminology glossary",
	Long: `Add, list, and delete terminology glossary entries.

Glossary entries ensure that specific source terms are always translated
to the same target term. Useful for product names, brand names and
security vocabulary that should stay consistent across screens.

The database is glossary.db from the config (AKT_GLOSSARY_DB), or --db.`,
}

func openGlossary() (*store.Store, error) {
	path := v.GetString("glossary.db")
	if path == "" {
		return nil, fmt.Errorf("no glossary database configured; set glossary.db or pass --db")
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// canonicalCode maps user input such as "es_419" to the tag the translator
// looks terms up by.
func canonicalCode(name string) (string, error) {
	set, err := language.NewSet([]string{name})
	if err != nil {
		return "", err
	}
	return set.All()[0].Code, nil
}

var (
	glossaryListSource string
	glossaryListTarget string
)

var glossaryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all glossary entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openGlossary()
		if err != nil {
			return err
		}
		defer db.Close()

		// Pass empty strings to list everything; flags narrow the filter.
		entries, err := db.ListGlossaryTerms(context.Background(), glossaryListSource, glossaryListTarget)
		if err != nil {
			return fmt.Errorf("failed to list glossary: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("Glossary is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSOURCE LANG\tTARGET LANG\tSOURCE TERM\tTARGET TERM")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.ID, e.SourceLang, e.TargetLang, e.SourceTerm, e.TargetTerm)
		}
		return w.Flush()
	},
}

var (
	glossaryAddSource string
	glossaryAddTarget string
)

var glossaryAddCmd = &cobra.Command{
	Use:   "add <source-term> <target-term>",
	Short: "Add or update a glossary entry",
	Long: `Add a glossary entry mapping a source-language term to a target-language term.

Example:
  ak-translator glossary add "Scan" "スキャン" --target ja`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if glossaryAddTarget == "" {
			return fmt.Errorf("--target language flag is required")
		}
		target, err := canonicalCode(glossaryAddTarget)
		if err != nil {
			return err
		}

		db, err := openGlossary()
		if err != nil {
			return err
		}
		defer db.Close()

		id, err := db.AddGlossaryTerm(context.Background(), glossaryAddSource, target, args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to add glossary entry: %w", err)
		}
		fmt.Printf("Added %s: [%s→%s] %q → %q\n", id, glossaryAddSource, target, args[0], args[1])
		return nil
	},
}

var glossaryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a glossary entry by ID",
	Long: `Delete a glossary entry by its ID (shown in "ak-translator glossary list").

Example:
  ak-translator glossary delete gl_5f0c2d1e-8a0b-4c52-9d55-0e1bbf6f2a10`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openGlossary()
		if err != nil {
			return err
		}
		defer db.Close()

		found, err := db.DeleteGlossaryTerm(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to delete glossary entry: %w", err)
		}
		if !found {
			return fmt.Errorf("no glossary entry with id %s", args[0])
		}
		fmt.Printf("Deleted glossary entry: %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(glossaryCmd)

	glossaryCmd.PersistentFlags().String("db", "", "Glossary database path (overrides glossary.db)")
	if err := v.BindPFlag("glossary.db", glossaryCmd.PersistentFlags().Lookup("db")); err != nil {
		panic(err)
	}

	// --source / --target flags on the list subcommand for optional filtering.
	glossaryListCmd.Flags().StringVarP(&glossaryListSource, "source", "s", "", "Filter by source language code (e.g. en)")
	glossaryListCmd.Flags().StringVarP(&glossaryListTarget, "target", "t", "", "Filter by target language code (e.g. ja)")

	glossaryAddCmd.Flags().StringVarP(&glossaryAddSource, "source", "s", store.DefaultSourceLang, "Source language code")
	glossaryAddCmd.Flags().StringVarP(&glossaryAddTarget, "target", "t", "", "Target language code (required)")

	glossaryCmd.AddCommand(glossaryListCmd)
	glossaryCmd.AddCommand(glossaryAddCmd)
	glossaryCmd.AddCommand(glossaryDeleteCmd)
}

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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/appknox/ak-translator/internal/language"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List the configured target languages",
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := language.NewSet(cfg.Languages)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tNAME")
		for _, l := range set.All() {
			fmt.Fprintf(w, "%s\t%s\n", l.Code, l.Name)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(languagesCmd)
}

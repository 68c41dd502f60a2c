package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"code-sandbox/internal/language"
	"code-sandbox/internal/syntax"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List the supported languages",
	Args:  cobra.NoArgs,
	RunE:  runLanguages,
}

func init() {
	rootCmd.AddCommand(languagesCmd)
}

func runLanguages(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	reg := language.Default()
	if cfg.LanguagesFile != "" {
		var err error
		if reg, err = language.LoadFile(cfg.LanguagesFile); err != nil {
			return err
		}
	}
	checker := syntax.New(nil)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LANGUAGE\tEXTENSION\tCOMMAND\tSYNTAX CHECK")
	for _, d := range reg.All() {
		check := "no"
		if checker.Supports(d.ID) {
			check = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Extension, strings.Join(d.Command, " "), check)
	}
	return w.Flush()
}

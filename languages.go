package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sudankdk/runbox/internal/config"
	"github.com/sudankdk/runbox/internal/languages"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List the supported languages and their images",
	RunE:  runLanguages,
}

func init() {
	rootCmd.AddCommand(languagesCmd)
}

func runLanguages(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	reg, err := languages.Load(cfg.Languages.File)
	if err != nil {
		return fmt.Errorf("loading languages: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tIMAGE\tALIASES")
	for _, l := range reg.List() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.ID, l.Name, l.Image, strings.Join(l.Aliases, ", "))
	}
	return w.Flush()
}

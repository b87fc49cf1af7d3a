package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/cloudless/internal/config"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List the configured datasets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if len(cfg.Datasets) == 0 {
			fmt.Fprintln(os.Stderr, "No datasets configured.")
			return nil
		}
		formatDatasets(os.Stdout, cfg)
		return nil
	},
}

func formatDatasets(out io.Writer, c *config.Config) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSOURCE\tCLOUD\tLOCATION\tDESCRIPTION")
	for _, name := range c.DatasetNames() {
		ds := c.Datasets[name]
		location := ds.Root
		if ds.Source == config.SourceWCS {
			location = ds.EOID
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, ds.Source, ds.Cloud, location, strings.TrimSpace(ds.Description))
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(datasetsCmd)
}

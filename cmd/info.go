package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cloudless/internal/config"
	"github.com/sells-group/cloudless/internal/fetcher"
	"github.com/sells-group/cloudless/pkg/wcs"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "List the DatasetSeries offered by the configured WCS servers",
	Long:  "Sends a GetCapabilities DatasetSeriesSummary request to every configured server and prints the available series with their time ranges.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		servers := wcsServers(cfg)
		if len(servers) == 0 {
			fmt.Fprintln(os.Stderr, "No WCS datasets configured.")
			return nil
		}
		printServerSeries(cmd.Context(), os.Stdout, fetcher.NewHTTPFetcher(httpOptions()), servers)
		return nil
	},
}

// wcsServers returns the distinct server endpoints of the WCS datasets,
// without their query strings.
func wcsServers(c *config.Config) []string {
	seen := map[string]bool{}
	var out []string
	for _, name := range c.DatasetNames() {
		ds := c.Datasets[name]
		if ds.Source != config.SourceWCS || ds.ServerURL == "" {
			continue
		}
		server, _, _ := strings.Cut(ds.ServerURL, "?")
		server += "?"
		if !seen[server] {
			seen[server] = true
			out = append(out, server)
		}
	}
	sort.Strings(out)
	return out
}

// printServerSeries queries each server in turn. A server that does not
// answer is reported and skipped.
func printServerSeries(ctx context.Context, out io.Writer, f fetcher.Fetcher, servers []string) {
	for _, server := range servers {
		_, _ = fmt.Fprintln(out, server)
		series, err := wcs.NewClient(server, f).GetCapabilities(ctx, "DatasetSeriesSummary")
		if err != nil {
			zap.L().Warn("capabilities request failed", zap.String("server", server), zap.Error(err))
			_, _ = fmt.Fprintln(out, "Server not responding -- skipping")
			_, _ = fmt.Fprintln(out, "-----------")
			continue
		}
		formatSeries(out, series)
		_, _ = fmt.Fprintln(out, "-----------")
	}
}

func formatSeries(out io.Writer, series []wcs.DatasetSeries) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATASET SERIES\tFROM\tTO")
	for _, s := range series {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Begin, s.End)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

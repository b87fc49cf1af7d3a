package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/cloudless/internal/temporal"
)

var windowCmd = &cobra.Command{
	Use:   "window",
	Short: "Print the search window for a time of interest",
	RunE: func(cmd *cobra.Command, _ []string) error {
		toi, _ := cmd.Flags().GetString("time")
		scenarioArg, _ := cmd.Flags().GetString("scenario")
		if scenarioArg == "" {
			scenarioArg = cfg.Compose.Scenario
		}
		period := cfg.Compose.Period
		if cmd.Flags().Changed("period") {
			period, _ = cmd.Flags().GetInt("period")
		}

		scenario, err := temporal.ParseScenario(scenarioArg)
		if err != nil {
			return err
		}
		w, err := temporal.ResolveString(toi, scenario, period)
		if err != nil {
			return err
		}
		formatWindow(os.Stdout, scenario, w)
		return nil
	},
}

func formatWindow(out io.Writer, scenario temporal.Scenario, w temporal.Window) {
	begin, end := w.SubsetTime()
	_, _ = fmt.Fprintf(out, "scenario: %s\n", scenario)
	_, _ = fmt.Fprintf(out, "window:   %s (%d days)\n", w, w.Days())
	_, _ = fmt.Fprintf(out, "subset:   %s .. %s\n", begin, end)
}

func init() {
	windowCmd.Flags().StringP("time", "t", "", "time of interest, YYYYMMDD or YYYY-MM-DD (required)")
	windowCmd.Flags().StringP("scenario", "s", "", "T, M or B (default compose.scenario)")
	windowCmd.Flags().IntP("period", "p", 7, "period in days (default compose.period)")
	_ = windowCmd.MarkFlagRequired("time")
	rootCmd.AddCommand(windowCmd)
}

package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cloudless/internal/catalog"
	"github.com/sells-group/cloudless/internal/fetcher"
	"github.com/sells-group/cloudless/internal/gdalio"
	"github.com/sells-group/cloudless/internal/metrics"
	"github.com/sells-group/cloudless/internal/pipeline"
)

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Create a cloud-free product around a time of interest",
	Long: "Fills the clouds of the acquisition at the time of interest with pixels of the acquisitions found " +
		"within the period. Processing stops when no cloud is left or the period is exhausted.",
	Example: "  cloudless compose -d landsat5_2a -a 3.5,3.6,43.3,43.4 -t 20110513 -s T -b 3,2,1 -p 90",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		req, err := composeRequest(cmd)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		collector, err := metrics.NewCollector(nil)
		if err != nil {
			return eris.Wrap(err, "init metrics")
		}
		if cfg.Metrics.Addr != "" {
			mctx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() {
				if err := collector.Serve(mctx, cfg.Metrics.Addr); err != nil {
					zap.L().Warn("metrics endpoint stopped", zap.Error(err))
				}
			}()
		}

		gdalio.Register()
		sources := &catalog.Sources{
			HTTP:   fetcher.NewHTTPFetcher(httpOptions()),
			Reader: gdalio.Reader{},
		}
		runner := pipeline.New(cfg, sources, gdalio.Backend{}, st, collector)

		out, err := runner.Run(ctx, req)
		if err != nil {
			return eris.Wrap(err, "compose")
		}
		return printOutcome(os.Stdout, out)
	},
}

func httpOptions() fetcher.HTTPOptions {
	return fetcher.HTTPOptions{
		UserAgent:     cfg.WCS.UserAgent,
		Timeout:       time.Duration(cfg.WCS.TimeoutSecs) * time.Second,
		MaxRetries:    cfg.WCS.MaxRetries,
		RatePerSecond: cfg.WCS.RatePerSec,
	}
}

// composeRequest builds the pipeline request from flags, falling back to the
// configured defaults for the optional ones.
func composeRequest(cmd *cobra.Command) (pipeline.Request, error) {
	flags := cmd.Flags()
	dataset, _ := flags.GetString("dataset")
	toi, _ := flags.GetString("time")
	if dataset == "" || toi == "" {
		return pipeline.Request{}, eris.New("--dataset and --time are required")
	}

	req := pipeline.Request{Dataset: dataset, TOI: toi}
	req.AOI, _ = flags.GetString("aoi")
	req.Scenario, _ = flags.GetString("scenario")
	req.Bands, _ = flags.GetStringSlice("bands")
	req.OutputCRS, _ = flags.GetString("crs")
	req.OutputDir, _ = flags.GetString("output-dir")

	req.Period = cfg.Compose.Period
	if flags.Changed("period") {
		req.Period, _ = flags.GetInt("period")
	}
	keep, _ := flags.GetBool("keep-temporary")
	req.KeepTemporary = keep || cfg.Output.KeepTemporary
	return req, nil
}

type composeSummary struct {
	RunID           string   `json:"run_id,omitempty"`
	Base            string   `json:"base"`
	Window          string   `json:"window"`
	Outcome         string   `json:"outcome"`
	InitialClouds   int      `json:"initial_clouds"`
	RemainingClouds int      `json:"remaining_clouds"`
	Used            []string `json:"used"`
	Files           []string `json:"files"`
	Warning         string   `json:"warning,omitempty"`
}

func printOutcome(w io.Writer, out *pipeline.Outcome) error {
	s := composeSummary{
		RunID:           out.RunID,
		Base:            out.Base.ID,
		Window:          out.Window.String(),
		Outcome:         string(out.Result.Outcome),
		InitialClouds:   out.Result.InitialClouds,
		RemainingClouds: out.Result.RemainingClouds,
		Used:            []string{},
		Files:           out.Artifacts.Paths(),
	}
	for _, c := range out.Result.Log {
		s.Used = append(s.Used, c.ID)
	}
	if out.Warning != nil {
		s.Warning = out.Warning.Error()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func init() {
	composeFlags(composeCmd)
	rootCmd.AddCommand(composeCmd)
}

func composeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("dataset", "d", "", "dataset to use, e.g. spot4take5 (required)")
	f.StringP("aoi", "a", "", "area of interest as 'minx,maxx,miny,maxy' in WGS84 degrees")
	f.StringP("time", "t", "", "time of interest, YYYYMMDD or YYYY-MM-DD (required)")
	f.StringP("scenario", "s", "", "T: fill from older images, M: alternate newer and older, B: fill from newer images (default compose.scenario)")
	f.IntP("period", "p", 7, "number of days searched for gap-filling images (default compose.period)")
	f.StringSliceP("bands", "b", nil, "bands to process, e.g. 3,2,1 (default all bands)")
	f.StringP("crs", "c", "", "output CRS of WCS coverages, e.g. EPSG:4326")
	f.StringP("output-dir", "o", "", "directory receiving the product (default output.dir)")
	f.BoolP("keep-temporary", "k", false, "keep downloaded inputs next to the product")
}

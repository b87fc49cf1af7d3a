//go:build !integration

package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cloudless/internal/composite"
	"github.com/sells-group/cloudless/internal/config"
	"github.com/sells-group/cloudless/internal/output"
	"github.com/sells-group/cloudless/internal/pipeline"
	"github.com/sells-group/cloudless/internal/temporal"
)

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func newComposeCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "compose"}
	composeFlags(c)
	require.NoError(t, c.Flags().Parse(args))
	return c
}

func TestComposeRequest_Flags(t *testing.T) {
	withConfig(t, &config.Config{Compose: config.ComposeConfig{Period: 7}})

	c := newComposeCmd(t,
		"-d", "spot4take5",
		"-t", "20130415",
		"-a", "1.1,1.2,43.5,43.6",
		"-s", "M",
		"-p", "30",
		"-b", "3,2,1",
		"-c", "EPSG:4326",
		"-o", "/tmp/out",
		"-k",
	)
	req, err := composeRequest(c)
	require.NoError(t, err)

	assert.Equal(t, pipeline.Request{
		Dataset:       "spot4take5",
		TOI:           "20130415",
		Scenario:      "M",
		Period:        30,
		AOI:           "1.1,1.2,43.5,43.6",
		Bands:         []string{"3", "2", "1"},
		OutputCRS:     "EPSG:4326",
		OutputDir:     "/tmp/out",
		KeepTemporary: true,
	}, req)
}

func TestComposeRequest_ConfigDefaults(t *testing.T) {
	c := &config.Config{}
	c.Compose.Period = 12
	c.Output.KeepTemporary = true
	withConfig(t, c)

	req, err := composeRequest(newComposeCmd(t, "--dataset", "landsat", "--time", "2011-05-13"))
	require.NoError(t, err)
	assert.Equal(t, 12, req.Period)
	assert.True(t, req.KeepTemporary)
	assert.Empty(t, req.Scenario)
	assert.Empty(t, req.Bands)
}

func TestComposeRequest_ExplicitZeroPeriod(t *testing.T) {
	withConfig(t, &config.Config{Compose: config.ComposeConfig{Period: 7}})

	req, err := composeRequest(newComposeCmd(t, "-d", "x", "-t", "20110513", "-p", "0"))
	require.NoError(t, err)
	assert.Equal(t, 0, req.Period)
}

func TestComposeRequest_Required(t *testing.T) {
	withConfig(t, &config.Config{})

	_, err := composeRequest(newComposeCmd(t, "-d", "spot4take5"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--dataset and --time are required")

	_, err = composeRequest(newComposeCmd(t, "-t", "20130415"))
	require.Error(t, err)
}

func TestPrintOutcome(t *testing.T) {
	day := time.Date(2013, 4, 15, 0, 0, 0, 0, time.UTC)
	out := &pipeline.Outcome{
		RunID:  "run-1",
		Base:   composite.CandidateRef{ID: "SPOT4_20130415", Date: day},
		Window: temporal.Window{From: day.AddDate(0, 0, -7), To: day},
		Result: &composite.Result{
			Outcome:         composite.StateExhausted,
			InitialClouds:   10,
			RemainingClouds: 3,
			Log: []composite.Contribution{
				{Index: 1, ID: "SPOT4_20130412", Pixels: 5},
				{Index: 2, ID: "SPOT4_20130410", Pixels: 2},
			},
		},
		Artifacts: &output.Artifacts{
			Composite:  "/out/CF_SPOT4_20130415.tif",
			Provenance: "/out/CF_SPOT4_20130415_composite_mask.tif",
			Log:        "/out/CF_SPOT4_20130415_composite_mask.txt",
			Manifest:   "/out/CF_SPOT4_20130415_manifest.yaml",
		},
		Warning: eris.New("something soft"),
	}

	var buf bytes.Buffer
	require.NoError(t, printOutcome(&buf, out))

	var got composeSummary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "SPOT4_20130415", got.Base)
	assert.Equal(t, "2013-04-08/2013-04-15", got.Window)
	assert.Equal(t, "exhausted", got.Outcome)
	assert.Equal(t, 10, got.InitialClouds)
	assert.Equal(t, 3, got.RemainingClouds)
	assert.Equal(t, []string{"SPOT4_20130412", "SPOT4_20130410"}, got.Used)
	assert.Len(t, got.Files, 4)
	assert.Equal(t, "something soft", got.Warning)
}

func TestPrintOutcome_NothingUsed(t *testing.T) {
	out := &pipeline.Outcome{
		Result:    &composite.Result{Outcome: composite.StateEarlyStop},
		Artifacts: &output.Artifacts{},
	}

	var buf bytes.Buffer
	require.NoError(t, printOutcome(&buf, out))
	assert.Contains(t, buf.String(), `"used": []`)
	assert.NotContains(t, buf.String(), "warning")
	assert.NotContains(t, buf.String(), "run_id")
}

func TestHTTPOptions(t *testing.T) {
	c := &config.Config{}
	c.WCS = config.WCSConfig{TimeoutSecs: 30, MaxRetries: 2, UserAgent: "ua", RatePerSec: 1.5}
	withConfig(t, c)

	opts := httpOptions()
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 2, opts.MaxRetries)
	assert.Equal(t, "ua", opts.UserAgent)
	assert.InDelta(t, 1.5, opts.RatePerSecond, 0.001)
}

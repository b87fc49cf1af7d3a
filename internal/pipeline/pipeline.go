// Package pipeline runs one cloud-free composite end to end: it resolves the
// time window, lists and orders the candidates of a dataset, runs the
// compositor and writes the product.
package pipeline

import (
	"context"
	"errors"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/cloudless/internal/catalog"
	"github.com/sells-group/cloudless/internal/composite"
	"github.com/sells-group/cloudless/internal/config"
	"github.com/sells-group/cloudless/internal/metrics"
	"github.com/sells-group/cloudless/internal/output"
	"github.com/sells-group/cloudless/internal/sequence"
	"github.com/sells-group/cloudless/internal/store"
	"github.com/sells-group/cloudless/internal/temporal"
	"github.com/sells-group/cloudless/pkg/wcs"
)

// Opener builds the catalog of a dataset for one run.
type Opener interface {
	Open(ds config.DatasetConfig, aoi *geom.Bounds, tempDir string) (catalog.Catalog, error)
}

// Request describes one composite run.
type Request struct {
	Dataset string
	// TOI is the time of interest, YYYYMMDD or YYYY-MM-DD.
	TOI string
	// Scenario defaults to compose.scenario when empty.
	Scenario string
	Period   int
	// AOI is "minx,maxx,miny,maxy"; empty keeps the full scene.
	AOI string
	// Bands and OutputCRS override the dataset settings when set.
	Bands     []string
	OutputCRS string
	// OutputDir defaults to output.dir when empty.
	OutputDir     string
	KeepTemporary bool
}

// Outcome is what a successful run produced.
type Outcome struct {
	RunID     string
	Base      composite.CandidateRef
	Window    temporal.Window
	Ordered   []composite.CandidateRef
	Result    *composite.Result
	Artifacts *output.Artifacts
	// Warning carries a soft compositor error such as ErrNoCandidates.
	Warning error
}

// Runner executes composite runs. Store and metrics are optional.
type Runner struct {
	cfg     *config.Config
	sources Opener
	writer  *output.Writer
	store   store.Store
	metrics *metrics.Collector
}

// New creates a Runner.
func New(cfg *config.Config, sources Opener, backend output.Backend, st store.Store, m *metrics.Collector) *Runner {
	return &Runner{
		cfg:     cfg,
		sources: sources,
		writer: output.NewWriter(backend, output.Options{
			Prefix:          cfg.Output.Prefix,
			CreationOptions: cfg.Output.CreationOptions,
		}),
		store:   st,
		metrics: m,
	}
}

// plan is a validated request.
type plan struct {
	name      string
	ds        config.DatasetConfig
	toi       time.Time
	scenario  temporal.Scenario
	window    temporal.Window
	aoi       *geom.Bounds
	cloudTest composite.CloudTest
	stopTest  composite.CloudTest
	outDir    string
	// images limits the candidates to the period nearest acquisitions
	// instead of a day window.
	images    bool
}

// Run validates req, then composes and writes the product. Invalid dates,
// scenarios, AOIs and datasets are reported before any I/O.
func (r *Runner) Run(ctx context.Context, req Request) (*Outcome, error) {
	p, err := r.plan(req)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("dataset", p.name), zap.String("toi", p.toi.Format(temporal.ISOLayout)))
	log.Info("time of interest",
		zap.String("scenario", string(p.scenario)),
		zap.Int("period", req.Period),
		zap.Stringer("window", p.window),
	)

	out := &Outcome{Window: p.window}
	if r.store != nil {
		run, err := r.store.CreateRun(ctx, store.RunParams{
			Dataset:  p.name,
			TOI:      p.toi.Format(temporal.CompactLayout),
			Scenario: string(p.scenario),
			Period:   req.Period,
			AOI:      req.AOI,
		})
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		out.RunID = run.ID
	}

	if err := r.execute(ctx, req, p, out, log); err != nil {
		r.fail(ctx, out.RunID, err, log)
		return nil, err
	}
	r.complete(ctx, out, log)
	return out, nil
}

func (r *Runner) plan(req Request) (*plan, error) {
	ds, err := r.cfg.Dataset(req.Dataset)
	if err != nil {
		return nil, err
	}
	if len(req.Bands) > 0 {
		ds.Bands = req.Bands
	}
	if req.OutputCRS != "" {
		ds.OutputCRS = req.OutputCRS
	}

	scenarioArg := req.Scenario
	if scenarioArg == "" {
		scenarioArg = r.cfg.Compose.Scenario
	}
	scenario, err := temporal.ParseScenario(scenarioArg)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline")
	}
	toi, err := temporal.ParseDate(req.TOI)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline")
	}
	window, err := temporal.Resolve(toi, scenario, req.Period)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline")
	}

	var aoi *geom.Bounds
	if req.AOI != "" {
		if aoi, err = wcs.ParseAOI(req.AOI); err != nil {
			return nil, eris.Wrap(err, "pipeline")
		}
	}

	cloudTest, err := catalog.CloudTestFor(ds)
	if err != nil {
		return nil, err
	}

	outDir := req.OutputDir
	if outDir == "" {
		outDir = r.cfg.Output.Dir
	}
	images := ds.CountsImages()
	if images {
		window = temporal.Unbounded
	}
	return &plan{
		name:      strings.ToLower(req.Dataset),
		ds:        ds,
		toi:       toi,
		scenario:  scenario,
		window:    window,
		aoi:       aoi,
		cloudTest: cloudTest,
		stopTest:  catalog.StopTestFor(ds),
		outDir:    outDir,
		images:    images,
	}, nil
}

func (r *Runner) execute(ctx context.Context, req Request, p *plan, out *Outcome, log *zap.Logger) error {
	tempDir, err := os.MkdirTemp(r.cfg.Output.TempDir, "cloudless_")
	if err != nil {
		return eris.Wrap(err, "pipeline: create working directory")
	}
	finalized := false
	defer func() {
		if finalized || req.KeepTemporary {
			return
		}
		if err := os.RemoveAll(tempDir); err != nil {
			log.Warn("could not remove working directory", zap.String("dir", tempDir), zap.Error(err))
		}
	}()
	log.Debug("working directory", zap.String("dir", tempDir))

	cat, err := r.sources.Open(p.ds, p.aoi, tempDir)
	if err != nil {
		return eris.Wrapf(err, "pipeline: open dataset %s", p.name)
	}

	refs, err := cat.List(ctx, p.window)
	if err != nil {
		return eris.Wrapf(err, "pipeline: list %s", p.name)
	}
	log.Info("products in window", zap.Int("count", len(refs)))

	base, gfps, err := selectBase(refs, p.toi)
	if err != nil {
		return eris.Wrap(err, "pipeline")
	}
	if p.images {
		gfps = sameSide(gfps, base, p.scenario)
	}
	ordered, err := sequence.Order(gfps, base, p.scenario)
	if err != nil {
		return eris.Wrap(err, "pipeline")
	}
	if p.images {
		if len(ordered) > req.Period {
			ordered = ordered[:req.Period]
		}
		out.Window = span(base, ordered)
	}
	out.Base, out.Ordered = base, ordered
	log.Info("base product", zap.String("base", base.ID), zap.Int("candidates", len(ordered)))

	baseCand, err := cat.Fetch(ctx, base)
	if err != nil {
		return eris.Wrapf(err, "pipeline: fetch base %s", base.ID)
	}

	var observer composite.Observer = composite.NopObserver{}
	if r.metrics != nil {
		observer = r.metrics
	}
	compositor := composite.New(composite.Options{
		CloudTest: p.cloudTest,
		StopTest:  p.stopTest,
		TileSize:  r.cfg.Compose.TileSize,
		Workers:   r.cfg.Compose.Workers,
		Observer:  observer,
	})
	res, err := compositor.Compose(ctx, baseCand, ordered, cat)
	switch {
	case err == nil:
	case composite.IsSoft(err) && res != nil:
		log.Warn("no gap-filling product available, writing the base unchanged", zap.Error(err))
		out.Warning = err
	default:
		return eris.Wrap(err, "pipeline: compose")
	}
	out.Result = res

	arts, err := r.writer.Write(tempDir, base.ID, res, output.Manifest{
		RunID:    out.RunID,
		Dataset:  p.name,
		TOI:      p.toi.Format(temporal.ISOLayout),
		Scenario: string(p.scenario),
		Period:   req.Period,
		Window:   out.Window.String(),
		AOI:      req.AOI,
		NoData:   catalog.NoDataFor(p.ds),
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: write product")
	}

	final, err := output.Finalize(tempDir, p.outDir, req.KeepTemporary, arts)
	if err != nil {
		return eris.Wrap(err, "pipeline: finalize")
	}
	finalized = true
	out.Artifacts = final
	log.Info("cloud-free product written",
		zap.String("path", final.Composite),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("filled", res.Filled()),
		zap.Int("remaining", res.RemainingClouds),
	)
	return nil
}

// selectBase picks the acquisition at the time of interest: the first whose
// identifier carries the YYYYMMDD token, else the first dated that day.
func selectBase(refs []composite.CandidateRef, toi time.Time) (composite.CandidateRef, []composite.CandidateRef, error) {
	base, gfps, err := sequence.Partition(refs, toi.Format(temporal.CompactLayout))
	if err == nil || !errors.Is(err, sequence.ErrNoBase) {
		return base, gfps, err
	}

	idx := slices.IndexFunc(refs, func(ref composite.CandidateRef) bool {
		y1, m1, d1 := ref.Date.UTC().Date()
		y2, m2, d2 := toi.Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	})
	if idx < 0 {
		return composite.CandidateRef{}, nil, err
	}
	gfps = make([]composite.CandidateRef, 0, len(refs)-1)
	gfps = append(gfps, refs[:idx]...)
	gfps = append(gfps, refs[idx+1:]...)
	return refs[idx], gfps, nil
}

// sameSide keeps the candidates a scenario may draw from when the period
// counts images: earlier ones for T, later ones for B, all for M.
func sameSide(gfps []composite.CandidateRef, base composite.CandidateRef, scenario temporal.Scenario) []composite.CandidateRef {
	kept := make([]composite.CandidateRef, 0, len(gfps))
	for _, g := range gfps {
		switch {
		case scenario == temporal.Top && g.Date.After(base.Date):
		case scenario == temporal.Bottom && g.Date.Before(base.Date):
		default:
			kept = append(kept, g)
		}
	}
	return kept
}

// span is the day window covering the base and the kept candidates.
func span(base composite.CandidateRef, ordered []composite.CandidateRef) temporal.Window {
	w := temporal.Window{From: base.Date, To: base.Date}
	for _, ref := range ordered {
		if ref.Date.Before(w.From) {
			w.From = ref.Date
		}
		if ref.Date.After(w.To) {
			w.To = ref.Date
		}
	}
	return w
}

func (r *Runner) complete(ctx context.Context, out *Outcome, log *zap.Logger) {
	r.metrics.RecordRun(string(store.RunComplete))
	if r.store == nil {
		return
	}
	outDir := ""
	if out.Artifacts != nil {
		outDir = out.Artifacts.Dir()
	}
	err := r.store.CompleteRun(ctx, out.RunID, store.RunResult{
		BaseID:          out.Base.ID,
		Outcome:         string(out.Result.Outcome),
		InitialClouds:   out.Result.InitialClouds,
		RemainingClouds: out.Result.RemainingClouds,
		Fetched:         out.Result.Fetched,
		OutputDir:       outDir,
		Contributions:   out.Result.Log,
	})
	if err != nil {
		log.Warn("could not record run result", zap.String("run_id", out.RunID), zap.Error(err))
	}
}

func (r *Runner) fail(ctx context.Context, runID string, runErr error, log *zap.Logger) {
	r.metrics.RecordRun(string(store.RunFailed))
	log.Error("composite run failed", zap.Error(runErr))
	if r.store == nil || runID == "" {
		return
	}
	if err := r.store.FailRun(context.WithoutCancel(ctx), runID, runErr); err != nil {
		log.Warn("could not record run failure", zap.String("run_id", runID), zap.Error(err))
	}
}

// Package composite implements the temporal gap-filling compositor: cloudy
// pixels of a base acquisition are replaced, candidate by candidate, with
// cloud-free pixels of other acquisitions until no cloud is left or the
// candidates run out.
package composite

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/cloudless/internal/raster"
)

// Observer receives progress notifications. All methods are called from the
// goroutine running Compose.
type Observer interface {
	OnState(from, to State)
	OnFetch(ref CandidateRef, elapsed time.Duration, err error)
	OnStep(c Contribution, remaining int)
	OnFinish(res *Result, elapsed time.Duration)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) OnState(State, State) {}

func (NopObserver) OnFetch(CandidateRef, time.Duration, error) {}

func (NopObserver) OnStep(Contribution, int) {}

func (NopObserver) OnFinish(*Result, time.Duration) {}

// Options configures a Compositor.
type Options struct {
	// CloudTest classifies mask samples. Defaults to NonZeroCloud.
	CloudTest CloudTest
	// StopTest narrows the base pixels that must be filled before the run
	// stops early. Pixels passing CloudTest but not StopTest are still
	// filled when a candidate allows it. Defaults to CloudTest.
	StopTest CloudTest
	// TileSize drives the overview factors. Defaults to raster.DefaultTileSize.
	TileSize int
	// Workers bounds the goroutines copying bands within one step.
	Workers int
	Observer Observer
}

// Compositor runs gap-filling composites. It holds no per-run state and can
// be shared between goroutines.
type Compositor struct {
	opts Options
}

// New returns a Compositor with defaults applied to opts.
func New(opts Options) *Compositor {
	if opts.CloudTest == nil {
		opts.CloudTest = NonZeroCloud
	}
	if opts.StopTest == nil {
		opts.StopTest = opts.CloudTest
	}
	if opts.TileSize <= 0 {
		opts.TileSize = raster.DefaultTileSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	return &Compositor{opts: opts}
}

// Compose fills the clouds of base from the ordered candidates, fetching each
// one only when it is needed. Candidates are applied strictly in order; once
// no cloud remains no further candidate is fetched.
//
// An empty candidate list returns the base copy together with
// ErrNoCandidates (see IsSoft), whether or not the base is clear.
func (c *Compositor) Compose(ctx context.Context, base *Candidate, ordered []CandidateRef, fetcher Fetcher) (*Result, error) {
	start := time.Now()
	r, err := c.init(base)
	if err != nil {
		return nil, err
	}
	if len(ordered) > math.MaxUint16 {
		return nil, eris.Errorf("composite: %d candidates exceed the provenance range", len(ordered))
	}

	log := zap.L().With(zap.String("base", base.ID))
	log.Info("pixels masked as clouds", zap.Int("clouds", r.initial))

	r.transition(StateAccumulating)
	index := 1
	for _, ref := range ordered {
		if r.remaining == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "composite: cancelled")
		}

		log.Info("using gap-filling product", zap.Int("index", index), zap.String("candidate", ref.ID))
		cand, err := c.fetch(ctx, fetcher, ref)
		r.fetched++
		if err != nil {
			return nil, err
		}

		contrib, err := r.apply(ctx, index, cand)
		if err != nil {
			return nil, err
		}
		c.opts.Observer.OnStep(contrib, r.remaining)
		log.Info("cloud pixels replaced",
			zap.Int("index", index),
			zap.String("candidate", ref.ID),
			zap.Int("pixels_filled", contrib.Pixels),
			zap.Int("remaining", r.remaining),
		)
		index++
	}

	if r.remaining == 0 {
		r.transition(StateEarlyStop)
		log.Info("all pixels masked as clouds have been replaced", zap.Int("candidates_used", len(r.log)))
	} else {
		r.transition(StateExhausted)
		log.Warn("candidates exhausted with clouds remaining", zap.Int("remaining", r.remaining))
	}
	outcome := r.state
	r.transition(StateFinalized)

	res := &Result{
		Composite:       r.composite,
		Provenance:      r.provenance,
		Log:             r.log,
		Overviews:       raster.OverviewFactors(r.composite.Width, r.composite.Height, c.opts.TileSize),
		Outcome:         outcome,
		InitialClouds:   r.initial,
		RemainingClouds: r.remaining,
		Fetched:         r.fetched,
	}
	c.opts.Observer.OnFinish(res, time.Since(start))

	if len(ordered) == 0 {
		return res, eris.Wrapf(ErrNoCandidates, "composite: %s keeps %d cloudy pixels", base.ID, r.remaining)
	}
	return res, nil
}

// Compose runs a compositor with default options.
func Compose(ctx context.Context, base *Candidate, ordered []CandidateRef, fetcher Fetcher) (*Result, error) {
	return New(Options{}).Compose(ctx, base, ordered, fetcher)
}

func (c *Compositor) fetch(ctx context.Context, fetcher Fetcher, ref CandidateRef) (*Candidate, error) {
	start := time.Now()
	cand, err := fetcher.Fetch(ctx, ref)
	if err == nil && cand == nil {
		err = eris.New("fetcher returned no data")
	}
	c.opts.Observer.OnFetch(ref, time.Since(start), err)
	if err != nil {
		return nil, &UnavailableError{Ref: ref, Err: err}
	}
	return cand, nil
}

// run is the mutable state of one Compose call.
type run struct {
	opts       Options
	state      State
	composite  *raster.Raster
	running    []bool
	blocking   []bool
	initial    int
	remaining  int
	provenance *ProvenanceMask
	log        []Contribution
	fetched    int
}

func (c *Compositor) init(base *Candidate) (*run, error) {
	if base == nil || base.Raster == nil || base.Mask == nil {
		return nil, eris.New("composite: base candidate has no data")
	}
	rs, m := base.Raster, base.Mask
	if rs.Width != m.Width || rs.Height != m.Height || m.Band.Len() != rs.Pixels() {
		return nil, eris.Wrapf(ErrDimensionMismatch, "composite: base %s raster is %dx%d, mask is %dx%d",
			base.ID, rs.Width, rs.Height, m.Width, m.Height)
	}

	r := &run{
		opts:       c.opts,
		state:      StateInit,
		composite:  rs.Clone(),
		running:    make([]bool, rs.Pixels()),
		blocking:   make([]bool, rs.Pixels()),
		provenance: newProvenance(rs.Width, rs.Height),
	}
	for p := range r.running {
		s := m.Band.Float(p)
		if !c.opts.CloudTest(s) {
			continue
		}
		r.running[p] = true
		if c.opts.StopTest(s) {
			r.blocking[p] = true
			r.initial++
		}
	}
	r.remaining = r.initial
	return r, nil
}

func (r *run) transition(to State) {
	zap.L().Debug("compositor state", zap.String("from", string(r.state)), zap.String("to", string(to)))
	r.opts.Observer.OnState(r.state, to)
	r.state = to
}

// apply performs one accumulation step. The fillable set is computed from
// the running mask before any band is touched.
func (r *run) apply(ctx context.Context, index int, cand *Candidate) (Contribution, error) {
	if err := r.checkCandidate(cand); err != nil {
		return Contribution{}, err
	}

	var fillable []int
	for p, cloudy := range r.running {
		if cloudy && !r.opts.CloudTest(cand.Mask.Band.Float(p)) {
			fillable = append(fillable, p)
		}
	}

	if len(fillable) > 0 {
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(r.opts.Workers)
		for b, dst := range r.composite.Bands {
			src := cand.Raster.Bands[b]
			g.Go(func() error {
				if err := dst.CopyFrom(src, fillable); err != nil {
					return eris.Wrapf(err, "composite: band %d of %s", b+1, cand.ID)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Contribution{}, err
		}
	}

	for _, p := range fillable {
		r.provenance.Pix[p] = uint16(index)
		r.running[p] = false
		if r.blocking[p] {
			r.blocking[p] = false
			r.remaining--
		}
	}

	contrib := Contribution{Index: index, ID: cand.ID, Pixels: len(fillable)}
	r.log = append(r.log, contrib)
	return contrib, nil
}

func (r *run) checkCandidate(cand *Candidate) error {
	want := r.composite
	if cand.Raster == nil || cand.Mask == nil {
		return &UnavailableError{Ref: cand.CandidateRef, Err: eris.New("raster or mask missing")}
	}
	if cand.Raster.Width != want.Width || cand.Raster.Height != want.Height {
		return eris.Wrapf(ErrDimensionMismatch, "composite: %s raster is %dx%d, base is %dx%d",
			cand.ID, cand.Raster.Width, cand.Raster.Height, want.Width, want.Height)
	}
	if cand.Mask.Width != want.Width || cand.Mask.Height != want.Height || cand.Mask.Band.Len() != want.Pixels() {
		return eris.Wrapf(ErrDimensionMismatch, "composite: %s mask is %dx%d, base is %dx%d",
			cand.ID, cand.Mask.Width, cand.Mask.Height, want.Width, want.Height)
	}
	if len(cand.Raster.Bands) != len(want.Bands) {
		return eris.Wrapf(ErrDimensionMismatch, "composite: %s has %d bands, base has %d",
			cand.ID, len(cand.Raster.Bands), len(want.Bands))
	}
	if cand.Raster.DataType() != want.DataType() {
		return eris.Wrapf(ErrDimensionMismatch, "composite: %s is %s, base is %s",
			cand.ID, cand.Raster.DataType(), want.DataType())
	}
	return nil
}

package composite

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cloudless/internal/raster"
)

// CandidateRef identifies one time-stamped raster/mask pair without holding
// its data.
type CandidateRef struct {
	ID     string    `json:"id" yaml:"id"`
	Date   time.Time `json:"date" yaml:"date"`
	MaskID string    `json:"mask_id,omitempty" yaml:"mask_id,omitempty"`
}

func (r CandidateRef) String() string {
	return fmt.Sprintf("%s (%s)", r.ID, r.Date.Format("2006-01-02"))
}

// Candidate is a fetched raster and its cloud mask.
type Candidate struct {
	CandidateRef
	Raster *raster.Raster
	Mask   *raster.Mask
}

// Fetcher retrieves the data for a candidate reference. Implementations may
// hit the network or the local file system and own any retry policy.
type Fetcher interface {
	Fetch(ctx context.Context, ref CandidateRef) (*Candidate, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, ref CandidateRef) (*Candidate, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, ref CandidateRef) (*Candidate, error) {
	return f(ctx, ref)
}

// State is a compositor lifecycle state.
type State string

// Compositor states.
const (
	StateInit         State = "init"
	StateAccumulating State = "accumulating"
	StateEarlyStop    State = "early_stop"
	StateExhausted    State = "exhausted"
	StateFinalized    State = "finalized"
)

// Contribution is one entry of the contribution log.
type Contribution struct {
	Index int    `json:"index" yaml:"index"`
	ID    string `json:"id" yaml:"id"`
	// Pixels is the number of pixels this candidate filled; zero is allowed.
	Pixels int `json:"pixels" yaml:"pixels"`
}

// ProvenanceMask records, per pixel, which applied candidate supplied the
// final value. 0 means the base value was kept.
type ProvenanceMask struct {
	Width  int
	Height int
	Pix    []uint16
}

func newProvenance(width, height int) *ProvenanceMask {
	return &ProvenanceMask{Width: width, Height: height, Pix: make([]uint16, width*height)}
}

// At returns the provenance index at column x, row y.
func (p *ProvenanceMask) At(x, y int) uint16 {
	return p.Pix[y*p.Width+x]
}

// Result is the output of one Compose call.
type Result struct {
	Composite  *raster.Raster
	Provenance *ProvenanceMask
	Log        []Contribution
	// Overviews are the pyramid factors for the output stage.
	Overviews []int
	// Outcome is StateEarlyStop or StateExhausted.
	Outcome State
	// InitialClouds is the number of cloudy base pixels that block an
	// early stop (see Options.StopTest).
	InitialClouds int
	// RemainingClouds is the number of those pixels still at their base value.
	RemainingClouds int
	// Fetched counts candidates retrieved through the Fetcher.
	Fetched int
}

// Filled returns the number of pixels replaced across all candidates.
func (r *Result) Filled() int {
	n := 0
	for _, c := range r.Log {
		n += c.Pixels
	}
	return n
}

// ProvenanceRaster wraps the provenance mask as a single-band uint16 raster
// with the composite's georeference.
func (r *Result) ProvenanceRaster() *raster.Raster {
	return &raster.Raster{
		Width:        r.Provenance.Width,
		Height:       r.Provenance.Height,
		Bands:        []raster.Band{raster.GridOf(r.Provenance.Pix)},
		GeoTransform: r.Composite.GeoTransform,
		CRS:          r.Composite.CRS,
	}
}

// WriteLog writes the contribution log as "index;identifier" lines.
func (r *Result) WriteLog(w io.Writer) error {
	for _, c := range r.Log {
		if _, err := fmt.Fprintf(w, "%d;%s\n", c.Index, c.ID); err != nil {
			return eris.Wrap(err, "composite: write log")
		}
	}
	return nil
}

package catalog

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/cloudless/internal/composite"
	"github.com/sells-group/cloudless/internal/temporal"
	"github.com/sells-group/cloudless/pkg/wcs"
)

// WCSOptions configures a WCSCatalog.
type WCSOptions struct {
	EOID     string
	MaskEOID string
	// Thematic datasets have no separate mask series.
	Thematic  bool
	Bands     []string
	OutputCRS string
	AOI       *geom.Bounds
	TempDir   string
}

// WCSCatalog lists coverages with DescribeEOCoverageSet and downloads them
// with GetCoverage into a temporary directory.
type WCSCatalog struct {
	client *wcs.Client
	reader Reader
	opts   WCSOptions
}

// NewWCS creates a catalog backed by a WCS 2.0 EO server.
func NewWCS(client *wcs.Client, reader Reader, opts WCSOptions) *WCSCatalog {
	return &WCSCatalog{client: client, reader: reader, opts: opts}
}

// List pairs the coverages of the data series with those of the mask series
// by acquisition day.
func (c *WCSCatalog) List(ctx context.Context, w temporal.Window) ([]composite.CandidateRef, error) {
	refs, err := c.describe(ctx, c.opts.EOID, w)
	if err != nil {
		return nil, err
	}
	if c.opts.Thematic {
		for i := range refs {
			refs[i].MaskID = refs[i].ID
		}
		return refs, nil
	}

	masks, err := c.describe(ctx, c.opts.MaskEOID, w)
	if err != nil {
		return nil, err
	}
	if len(refs) != len(masks) {
		return nil, eris.Wrapf(ErrMaskMismatch, "catalog: %s has %d coverages, %s has %d",
			c.opts.EOID, len(refs), c.opts.MaskEOID, len(masks))
	}
	for i := range refs {
		if !refs[i].Date.Equal(masks[i].Date) {
			return nil, eris.Wrapf(ErrMaskMismatch, "catalog: coverage %s (%s) paired with mask %s (%s)",
				refs[i].ID, refs[i].Date.Format(temporal.ISOLayout), masks[i].ID, masks[i].Date.Format(temporal.ISOLayout))
		}
		refs[i].MaskID = masks[i].ID
	}

	zap.L().Info("catalog: coverages found",
		zap.String("eoid", c.opts.EOID),
		zap.String("window", w.String()),
		zap.Int("count", len(refs)),
	)
	return refs, nil
}

func (c *WCSCatalog) describe(ctx context.Context, eoid string, w temporal.Window) ([]composite.CandidateRef, error) {
	begin, end := w.SubsetTime()
	covs, err := c.client.DescribeEOCoverageSet(ctx, wcs.DescribeRequest{
		EOID:  eoid,
		AOI:   c.opts.AOI,
		Begin: begin,
		End:   end,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: list %s", eoid)
	}

	refs := make([]composite.CandidateRef, 0, len(covs))
	for _, cov := range covs {
		date := cov.Begin
		if date.IsZero() {
			if date, err = DateFromID(cov.ID); err != nil {
				return nil, err
			}
		}
		y, m, d := date.UTC().Date()
		refs = append(refs, composite.CandidateRef{ID: cov.ID, Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)})
	}
	sortRefs(refs)
	return refs, nil
}

// Fetch downloads the coverage and its mask concurrently and reads both.
func (c *WCSCatalog) Fetch(ctx context.Context, ref composite.CandidateRef) (*composite.Candidate, error) {
	if !c.opts.Thematic && ref.MaskID == "" {
		return nil, eris.Errorf("catalog: %s has no cloud mask", ref.ID)
	}
	var rasterPath, maskPath string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := c.client.GetCoverage(gctx, wcs.GetCoverageRequest{
			CoverageID:  ref.ID,
			AOI:         c.opts.AOI,
			RangeSubset: c.opts.Bands,
			OutputCRS:   c.opts.OutputCRS,
		}, c.opts.TempDir)
		rasterPath = p
		return err
	})
	if !c.opts.Thematic {
		g.Go(func() error {
			p, err := c.client.GetCoverage(gctx, wcs.GetCoverageRequest{
				CoverageID: ref.MaskID,
				AOI:        c.opts.AOI,
				OutputCRS:  c.opts.OutputCRS,
			}, c.opts.TempDir)
			maskPath = p
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if c.opts.Thematic {
		maskPath = rasterPath
	}

	return load(c.reader, ref, rasterPath, maskPath)
}

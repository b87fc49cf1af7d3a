// Package catalog discovers the acquisitions of a dataset inside a time
// window and fetches them, together with their cloud masks, on demand.
package catalog

import (
	"context"
	"path"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/cloudless/internal/composite"
	"github.com/sells-group/cloudless/internal/config"
	"github.com/sells-group/cloudless/internal/fetcher"
	"github.com/sells-group/cloudless/internal/raster"
	"github.com/sells-group/cloudless/internal/temporal"
	"github.com/sells-group/cloudless/pkg/wcs"
)

// Sentinel errors.
var (
	// ErrMaskMismatch: data files and cloud masks cannot be paired.
	ErrMaskMismatch = eris.New("number of datafiles and number of cloud-masks do not correspond")
	// ErrUndated: an identifier carries no acquisition date.
	ErrUndated = eris.New("acquisition date not found")
)

// Catalog lists the candidates of a dataset and fetches them.
type Catalog interface {
	composite.Fetcher
	// List returns the acquisitions inside the window in ascending date
	// order, each paired with its cloud mask.
	List(ctx context.Context, w temporal.Window) ([]composite.CandidateRef, error)
}

// Reader opens raster files written by a download or found on disk.
type Reader interface {
	Open(path string) (*raster.Raster, error)
	OpenMask(path string) (*raster.Mask, error)
}

// Thematic class values used when a thematic dataset sets no cloud_values.
const (
	ThematicCloudClass = 30
	ThematicEmptyClass = 0
	ThematicNoData     = 253
)

// CloudTestFor returns the mask predicate configured for a dataset.
func CloudTestFor(ds config.DatasetConfig) (composite.CloudTest, error) {
	switch ds.Cloud {
	case "", config.CloudNonZero:
		return composite.NonZeroCloud, nil
	case config.CloudSentinel:
		if len(ds.CloudValues) == 0 {
			return nil, eris.New("catalog: sentinel masks need cloud_values")
		}
		return composite.SentinelCloud(ds.CloudValues...), nil
	case config.CloudThematic:
		if len(ds.CloudValues) == 3 {
			return composite.ThematicCloud(ds.CloudValues[0], ds.CloudValues[1], ds.CloudValues[2]), nil
		}
		return composite.ThematicCloud(ThematicCloudClass, ThematicEmptyClass, ThematicNoData), nil
	default:
		return nil, eris.Errorf("catalog: unsupported cloud interpretation %q", ds.Cloud)
	}
}

// ThematicOutputNoData marks composite pixels of thematic products that no
// acquisition could fill.
const ThematicOutputNoData = 255

// NoDataFor returns the no-data value of the composite, nil when the
// dataset has none.
func NoDataFor(ds config.DatasetConfig) *float64 {
	if ds.NoData != nil {
		v := *ds.NoData
		return &v
	}
	if ds.Cloud != config.CloudThematic {
		return nil
	}
	v := float64(ThematicOutputNoData)
	return &v
}

// StopTestFor returns the predicate of the base pixels that keep a run
// going. Thematic maps stop once the cloud class is gone, even when empty
// or no-data pixels remain. Nil means every unusable pixel counts.
func StopTestFor(ds config.DatasetConfig) composite.CloudTest {
	if ds.Cloud != config.CloudThematic {
		return nil
	}
	cloud := float64(ThematicCloudClass)
	if len(ds.CloudValues) == 3 {
		cloud = ds.CloudValues[0]
	}
	return composite.SentinelCloud(cloud)
}

// Sources opens catalogs for configured datasets.
type Sources struct {
	HTTP   fetcher.Fetcher
	Reader Reader
}

// Open builds the catalog of one dataset for a run. The AOI restricts WCS
// requests; tempDir receives downloaded coverages.
func (s *Sources) Open(ds config.DatasetConfig, aoi *geom.Bounds, tempDir string) (Catalog, error) {
	switch ds.Source {
	case config.SourceWCS, "":
		client := wcs.NewClient(ds.ServerURL, s.HTTP)
		return NewWCS(client, s.Reader, WCSOptions{
			EOID:      ds.EOID,
			MaskEOID:  ds.MaskEOID,
			Thematic:  ds.Thematic(),
			Bands:     ds.Bands,
			OutputCRS: ds.OutputCRS,
			AOI:       aoi,
			TempDir:   tempDir,
		}), nil
	case config.SourceLocal:
		return NewLocal(s.Reader, LocalOptions{
			Root:          ds.Root,
			Pattern:       ds.Pattern,
			MaskSuffix:    ds.MaskSuffix,
			MaskDir:       ds.MaskDir,
			MaskPrefixLen: ds.MaskPrefixLen,
			Thematic:      ds.Thematic(),
		}), nil
	default:
		return nil, eris.Errorf("catalog: unsupported source %q", ds.Source)
	}
}

var (
	compactDate = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{6})`)
	isoDate     = regexp.MustCompile(`(?:19|20)\d{2}-\d{2}-\d{2}`)
)

// DateFromID extracts the acquisition day from an identifier or file name:
// the first valid YYYYMMDD token, else the first YYYY-MM-DD token.
func DateFromID(id string) (time.Time, error) {
	name := path.Base(id)
	for _, m := range compactDate.FindAllStringSubmatch(name, -1) {
		if t, err := time.Parse(temporal.CompactLayout, m[1]); err == nil {
			return t, nil
		}
	}
	for _, m := range isoDate.FindAllString(name, -1) {
		if t, err := time.Parse(temporal.ISOLayout, m); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Wrapf(ErrUndated, "%q", id)
}

func sortRefs(refs []composite.CandidateRef) {
	slices.SortStableFunc(refs, func(a, b composite.CandidateRef) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// load reads a candidate's raster and mask. A thematic candidate uses its
// first band as mask.
func load(r Reader, ref composite.CandidateRef, rasterPath, maskPath string) (*composite.Candidate, error) {
	rs, err := r.Open(rasterPath)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: open %s", rasterPath)
	}
	m, err := r.OpenMask(maskPath)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: open mask %s", maskPath)
	}
	return &composite.Candidate{CandidateRef: ref, Raster: rs, Mask: m}, nil
}

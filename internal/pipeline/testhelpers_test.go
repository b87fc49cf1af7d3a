package pipeline

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/cloudless/internal/catalog"
	"github.com/sells-group/cloudless/internal/composite"
	"github.com/sells-group/cloudless/internal/config"
	"github.com/sells-group/cloudless/internal/output"
	"github.com/sells-group/cloudless/internal/raster"
	"github.com/sells-group/cloudless/internal/temporal"
)

func day(s string) time.Time {
	t, err := time.Parse(temporal.CompactLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// memCatalog serves 2x1 acquisitions from memory.
type memCatalog struct {
	mu      sync.Mutex
	refs    []composite.CandidateRef
	data    map[string]*composite.Candidate
	fetched []string
	listErr error
}

func newMemCatalog(t *testing.T) *memCatalog {
	t.Helper()
	return &memCatalog{data: map[string]*composite.Candidate{}}
}

// add registers an acquisition whose single band holds value and whose mask
// is mask (nonzero means cloud).
func (c *memCatalog) add(t *testing.T, id string, value uint16, mask ...uint8) {
	t.Helper()
	rs, err := raster.New(2, 1, raster.GeoTransform{500000, 20, 0, 4800000, 0, -20}, "EPSG:32631",
		raster.GridOf([]uint16{value, value}))
	require.NoError(t, err)
	m, err := raster.NewMask(2, 1, raster.GridOf(mask))
	require.NoError(t, err)
	date, err := catalog.DateFromID(id)
	require.NoError(t, err)
	ref := composite.CandidateRef{ID: id, Date: date, MaskID: id + "_mask"}
	c.refs = append(c.refs, ref)
	c.data[id] = &composite.Candidate{CandidateRef: ref, Raster: rs, Mask: m}
}

func (c *memCatalog) List(_ context.Context, w temporal.Window) ([]composite.CandidateRef, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	var out []composite.CandidateRef
	for _, r := range c.refs {
		if w.Contains(r.Date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *memCatalog) Fetch(_ context.Context, ref composite.CandidateRef) (*composite.Candidate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetched = append(c.fetched, ref.ID)
	cand, ok := c.data[ref.ID]
	if !ok {
		return nil, eris.Errorf("no such coverage %s", ref.ID)
	}
	return cand, nil
}

// fakeOpener hands out one catalog and records the working directory.
type fakeOpener struct {
	cat     *memCatalog
	ds      config.DatasetConfig
	tempDir string
	aoi     *geom.Bounds
	calls   int
}

func (o *fakeOpener) Open(ds config.DatasetConfig, aoi *geom.Bounds, tempDir string) (catalog.Catalog, error) {
	o.calls++
	o.ds, o.tempDir, o.aoi = ds, tempDir, aoi
	return o.cat, nil
}

type fakeDataset struct {
	path   string
	bands  map[int]raster.Band
	nodata *float64
}

func (d *fakeDataset) WriteBand(index int, b raster.Band) error {
	d.bands[index] = b.Clone()
	return nil
}

func (d *fakeDataset) SetGeoreference(raster.GeoTransform, string) error { return nil }

func (d *fakeDataset) BuildOverviews([]int, string) error { return nil }

func (d *fakeDataset) SetNoData(v float64) error {
	d.nodata = &v
	return nil
}

func (d *fakeDataset) Close() error {
	return os.WriteFile(d.path, []byte("tif"), 0o644)
}

// fakeBackend keeps written bands by file base name.
type fakeBackend struct {
	mu      sync.Mutex
	created map[string]*fakeDataset
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{created: map[string]*fakeDataset{}}
}

func (b *fakeBackend) Create(path string, _, _, _ int, _ raster.DataType, _ []string) (output.Dataset, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := &fakeDataset{path: path, bands: map[int]raster.Band{}}
	b.created[path] = d
	return d, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Compose.Scenario = "T"
	cfg.Compose.Period = 7
	cfg.Compose.TileSize = 256
	cfg.Compose.Workers = 2
	cfg.Output.Dir = t.TempDir()
	cfg.Output.TempDir = t.TempDir()
	cfg.Output.Prefix = "CF_"
	cfg.Datasets = map[string]config.DatasetConfig{
		"spot4take5": {Source: config.SourceWCS, Cloud: config.CloudNonZero, ServerURL: "http://x", EOID: "a", MaskEOID: "b"},
		"take5files": {
			Source: config.SourceLocal, Cloud: config.CloudNonZero, Root: "/data", Pattern: "**/*.tif",
			MaskSuffix: ".nuages", PeriodUnit: config.PeriodImages,
		},
		"cryoland": {Source: config.SourceWCS, Cloud: config.CloudThematic, ServerURL: "http://x", EOID: "fsc"},
	}
	return cfg
}

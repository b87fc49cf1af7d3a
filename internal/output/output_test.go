package output

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cloudless/internal/composite"
	"github.com/sells-group/cloudless/internal/raster"
)

// fakeDataset records the calls made on one created file and writes a
// placeholder on Close so finalization has something to copy.
type fakeDataset struct {
	path       string
	width      int
	height     int
	dt         raster.DataType
	options    []string
	bands      map[int]raster.Band
	geo        raster.GeoTransform
	crs        string
	overviews  []int
	resampling string
	nodata     *float64
	closed     bool
	failWrite  bool
}

func (d *fakeDataset) WriteBand(index int, b raster.Band) error {
	if d.failWrite {
		return eris.New("disk full")
	}
	d.bands[index] = b.Clone()
	return nil
}

func (d *fakeDataset) SetGeoreference(gt raster.GeoTransform, crs string) error {
	d.geo, d.crs = gt, crs
	return nil
}

func (d *fakeDataset) BuildOverviews(factors []int, resampling string) error {
	d.overviews, d.resampling = factors, resampling
	return nil
}

func (d *fakeDataset) SetNoData(v float64) error {
	d.nodata = &v
	return nil
}

func (d *fakeDataset) Close() error {
	d.closed = true
	return os.WriteFile(d.path, []byte("tif"), 0o644)
}

type fakeBackend struct {
	created   map[string]*fakeDataset
	failWrite bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{created: map[string]*fakeDataset{}}
}

func (b *fakeBackend) Create(path string, width, height, bands int, dt raster.DataType, options []string) (Dataset, error) {
	d := &fakeDataset{
		path: path, width: width, height: height, dt: dt, options: options,
		bands: map[int]raster.Band{}, failWrite: b.failWrite,
	}
	b.created[path] = d
	return d, nil
}

func testResult(t *testing.T) *composite.Result {
	t.Helper()
	geo := raster.GeoTransform{100, 10, 0, 200, 0, -10}
	rs, err := raster.New(2, 2, geo, "EPSG:32631",
		raster.GridOf([]uint16{1, 2, 3, 4}),
		raster.GridOf([]uint16{5, 6, 7, 8}),
	)
	require.NoError(t, err)
	return &composite.Result{
		Composite:       rs,
		Provenance:      &composite.ProvenanceMask{Width: 2, Height: 2, Pix: []uint16{0, 1, 2, 1}},
		Log:             []composite.Contribution{{Index: 1, ID: "gfp_a", Pixels: 2}, {Index: 2, ID: "gfp_b", Pixels: 1}},
		Overviews:       []int{2},
		Outcome:         composite.StateEarlyStop,
		InitialClouds:   3,
		RemainingClouds: 0,
		Fetched:         2,
	}
}

func TestProductName(t *testing.T) {
	assert.Equal(t, "CF_SPOT4_20130410.tif", ProductName("CF_", "SPOT4_20130410"))
	assert.Equal(t, "CF_SPOT4_20130410.tif", ProductName("CF_", "2013/SPOT4_20130410.tiff"))
	assert.Equal(t, "CF_L5_20110412.TIF", ProductName("CF_", "L5/L5_20110412.TIF"))
	assert.Equal(t, "x.tif", ProductName("", "x"))
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	backend := newFakeBackend()
	w := NewWriter(backend, Options{Prefix: "CF_", CreationOptions: []string{"TILED=YES", "COMPRESS=DEFLATE"}})
	res := testResult(t)

	a, err := w.Write(dir, "SPOT4_20130410", res, Manifest{Dataset: "spot4take5", TOI: "20130410", Scenario: "T", Period: 7})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "CF_SPOT4_20130410.tif"), a.Composite)
	assert.Equal(t, filepath.Join(dir, "CF_SPOT4_20130410_composite_mask.tif"), a.Provenance)
	assert.Equal(t, filepath.Join(dir, "CF_SPOT4_20130410_composite_mask.txt"), a.Log)
	assert.Equal(t, filepath.Join(dir, "CF_SPOT4_20130410_manifest.yaml"), a.Manifest)

	comp := backend.created[a.Composite]
	require.NotNil(t, comp)
	assert.True(t, comp.closed)
	assert.Equal(t, raster.Uint16, comp.dt)
	assert.Equal(t, []string{"TILED=YES", "COMPRESS=DEFLATE"}, comp.options)
	assert.Len(t, comp.bands, 2)
	assert.Equal(t, []uint16{5, 6, 7, 8}, comp.bands[2].Data())
	assert.Equal(t, res.Composite.GeoTransform, comp.geo)
	assert.Equal(t, "EPSG:32631", comp.crs)
	assert.Equal(t, []int{2}, comp.overviews)
	assert.Equal(t, "nearest", comp.resampling)
	assert.Nil(t, comp.nodata)

	prov := backend.created[a.Provenance]
	require.NotNil(t, prov)
	assert.Len(t, prov.bands, 1)
	assert.Equal(t, []uint16{0, 1, 2, 1}, prov.bands[1].Data())
	assert.Equal(t, "EPSG:32631", prov.crs)

	logData, err := os.ReadFile(a.Log)
	require.NoError(t, err)
	assert.Equal(t, "1;gfp_a\n2;gfp_b\n", string(logData))

	m, err := ReadManifest(a.Manifest)
	require.NoError(t, err)
	assert.Equal(t, "spot4take5", m.Dataset)
	assert.Equal(t, "SPOT4_20130410", m.Base)
	assert.Equal(t, "early_stop", m.Outcome)
	assert.Equal(t, 3, m.InitialClouds)
	assert.Equal(t, 2, m.Fetched)
	assert.Equal(t, res.Log, m.Contributions)
	assert.Equal(t, []string{"CF_SPOT4_20130410.tif", "CF_SPOT4_20130410_composite_mask.tif", "CF_SPOT4_20130410_composite_mask.txt"}, m.Files)
	assert.WithinDuration(t, time.Now(), m.CreatedAt, time.Minute)
}

func TestWrite_NoDataOnCompositeOnly(t *testing.T) {
	backend := newFakeBackend()
	w := NewWriter(backend, Options{Prefix: "CF_"})
	nodata := 255.0

	a, err := w.Write(t.TempDir(), "FSC_20130310", testResult(t), Manifest{Dataset: "cryoland", NoData: &nodata})
	require.NoError(t, err)

	comp := backend.created[a.Composite]
	require.NotNil(t, comp.nodata)
	assert.Equal(t, 255.0, *comp.nodata)
	assert.Nil(t, backend.created[a.Provenance].nodata)

	m, err := ReadManifest(a.Manifest)
	require.NoError(t, err)
	require.NotNil(t, m.NoData)
	assert.Equal(t, 255.0, *m.NoData)
}

func TestWrite_BandError(t *testing.T) {
	backend := newFakeBackend()
	backend.failWrite = true
	w := NewWriter(backend, Options{Prefix: "CF_"})

	_, err := w.Write(t.TempDir(), "base", testResult(t), Manifest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	for _, d := range backend.created {
		assert.True(t, d.closed)
	}
}

func writeArtifacts(t *testing.T, dir string) *Artifacts {
	t.Helper()
	a := &Artifacts{
		Composite:  filepath.Join(dir, "CF_a.tif"),
		Provenance: filepath.Join(dir, "CF_a_composite_mask.tif"),
		Log:        filepath.Join(dir, "CF_a_composite_mask.txt"),
		Manifest:   filepath.Join(dir, "CF_a_manifest.yaml"),
	}
	for _, p := range a.Paths() {
		require.NoError(t, os.WriteFile(p, []byte(filepath.Base(p)), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "input.tif"), []byte("in"), 0o644))
	return a
}

func TestFinalize_Cleanup(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "cloudless_123")
	require.NoError(t, os.MkdirAll(tmp, 0o755))
	out := filepath.Join(t.TempDir(), "products")
	a := writeArtifacts(t, tmp)

	final, err := Finalize(tmp, out, false, a)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "CF_a.tif"), final.Composite)
	for _, p := range final.Paths() {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, filepath.Base(p), string(data))
	}
	assert.NoDirExists(t, tmp)
	assert.NoFileExists(t, filepath.Join(out, "input.tif"))
}

func TestFinalize_Keep(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "cloudless_123")
	require.NoError(t, os.MkdirAll(tmp, 0o755))
	out := t.TempDir()
	a := writeArtifacts(t, tmp)

	final, err := Finalize(tmp, out, true, a)
	require.NoError(t, err)
	kept := filepath.Join(out, "cloudless_123")
	assert.Equal(t, filepath.Join(kept, "CF_a_manifest.yaml"), final.Manifest)
	assert.FileExists(t, final.Composite)
	assert.FileExists(t, filepath.Join(kept, "input.tif"))
	assert.NoDirExists(t, tmp)
}

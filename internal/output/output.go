// Package output persists compositing results: the cloud-free raster, the
// provenance mask, the contribution log and a YAML manifest.
package output

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/cloudless/internal/composite"
	"github.com/sells-group/cloudless/internal/raster"
)

// Dataset is a raster file open for writing. Band indexes are 1-based.
type Dataset interface {
	WriteBand(index int, b raster.Band) error
	SetGeoreference(gt raster.GeoTransform, crs string) error
	BuildOverviews(factors []int, resampling string) error
	SetNoData(value float64) error
	Close() error
}

// Backend creates raster files.
type Backend interface {
	Create(path string, width, height, bands int, dt raster.DataType, options []string) (Dataset, error)
}

// Options configures a Writer.
type Options struct {
	Prefix          string
	CreationOptions []string
	Resampling      string
}

// Manifest describes a written product.
type Manifest struct {
	RunID           string                   `yaml:"run_id,omitempty"`
	Dataset         string                   `yaml:"dataset"`
	Base            string                   `yaml:"base"`
	TOI             string                   `yaml:"toi"`
	Scenario        string                   `yaml:"scenario"`
	Period          int                      `yaml:"period"`
	Window          string                   `yaml:"window"`
	AOI             string                   `yaml:"aoi,omitempty"`
	// NoData is stamped on every band of the composite when set.
	NoData          *float64                 `yaml:"nodata,omitempty"`
	Outcome         string                   `yaml:"outcome"`
	InitialClouds   int                      `yaml:"initial_clouds"`
	RemainingClouds int                      `yaml:"remaining_clouds"`
	Fetched         int                      `yaml:"fetched"`
	Overviews       []int                    `yaml:"overviews,flow"`
	Contributions   []composite.Contribution `yaml:"contributions"`
	Files           []string                 `yaml:"files"`
	CreatedAt       time.Time                `yaml:"created_at"`
}

// Artifacts are the paths of one written product.
type Artifacts struct {
	Composite  string
	Provenance string
	Log        string
	Manifest   string
}

// Paths lists the artifact paths, composite first.
func (a Artifacts) Paths() []string {
	return []string{a.Composite, a.Provenance, a.Log, a.Manifest}
}

// Dir is the directory holding the product.
func (a Artifacts) Dir() string { return filepath.Dir(a.Composite) }

// Writer writes results through a Backend.
type Writer struct {
	backend Backend
	opts    Options
}

// NewWriter creates a Writer. An empty resampling means nearest neighbour.
func NewWriter(b Backend, opts Options) *Writer {
	if opts.Resampling == "" {
		opts.Resampling = "nearest"
	}
	return &Writer{backend: b, opts: opts}
}

// ProductName returns the composite file name for a base identifier: the
// prefix followed by the base file name, with a ".tif" extension.
func ProductName(prefix, baseID string) string {
	name := path.Base(filepath.ToSlash(baseID))
	switch ext := path.Ext(name); strings.ToLower(ext) {
	case ".tif":
	case ".tiff":
		name = strings.TrimSuffix(name, ext) + ".tif"
	default:
		name += ".tif"
	}
	return prefix + name
}

// Write stores res in dir. The manifest is completed with the result
// figures and the artifact names.
func (w *Writer) Write(dir string, baseID string, res *composite.Result, m Manifest) (*Artifacts, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "output: create %s", dir)
	}

	name := ProductName(w.opts.Prefix, baseID)
	stem := strings.TrimSuffix(name, path.Ext(name))
	a := &Artifacts{
		Composite:  filepath.Join(dir, name),
		Provenance: filepath.Join(dir, stem+"_composite_mask.tif"),
		Log:        filepath.Join(dir, stem+"_composite_mask.txt"),
		Manifest:   filepath.Join(dir, stem+"_manifest.yaml"),
	}

	zap.L().Info("writing cloud-free product", zap.String("path", a.Composite))
	if err := w.writeRaster(a.Composite, res.Composite, res.Overviews, m.NoData); err != nil {
		return nil, err
	}
	if err := w.writeRaster(a.Provenance, res.ProvenanceRaster(), res.Overviews, nil); err != nil {
		return nil, err
	}
	if err := writeLog(a.Log, res); err != nil {
		return nil, err
	}

	m.Base = baseID
	m.Outcome = string(res.Outcome)
	m.InitialClouds = res.InitialClouds
	m.RemainingClouds = res.RemainingClouds
	m.Fetched = res.Fetched
	m.Overviews = res.Overviews
	m.Contributions = res.Log
	m.Files = []string{filepath.Base(a.Composite), filepath.Base(a.Provenance), filepath.Base(a.Log)}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if err := writeManifest(a.Manifest, m); err != nil {
		return nil, err
	}
	return a, nil
}

func (w *Writer) writeRaster(p string, r *raster.Raster, overviews []int, nodata *float64) (err error) {
	ds, err := w.backend.Create(p, r.Width, r.Height, len(r.Bands), r.DataType(), w.opts.CreationOptions)
	if err != nil {
		return eris.Wrapf(err, "output: create %s", p)
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil && err == nil {
			err = eris.Wrapf(cerr, "output: close %s", p)
		}
	}()

	for i, b := range r.Bands {
		if err := ds.WriteBand(i+1, b); err != nil {
			return eris.Wrapf(err, "output: write band %d of %s", i+1, p)
		}
	}
	if nodata != nil {
		if err := ds.SetNoData(*nodata); err != nil {
			return eris.Wrapf(err, "output: nodata of %s", p)
		}
	}
	if err := ds.SetGeoreference(r.GeoTransform, r.CRS); err != nil {
		return eris.Wrapf(err, "output: georeference %s", p)
	}
	if err := ds.BuildOverviews(overviews, w.opts.Resampling); err != nil {
		return eris.Wrapf(err, "output: overviews of %s", p)
	}
	return nil
}

func writeLog(p string, res *composite.Result) error {
	f, err := os.Create(p)
	if err != nil {
		return eris.Wrapf(err, "output: create %s", p)
	}
	if err := res.WriteLog(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "output: close %s", p)
	}
	return nil
}

func writeManifest(p string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "output: marshal manifest")
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return eris.Wrapf(err, "output: write %s", p)
	}
	return nil
}

// ReadManifest loads a manifest written by Write.
func ReadManifest(p string) (*Manifest, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, eris.Wrapf(err, "output: read %s", p)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "output: parse %s", p)
	}
	return &m, nil
}

// Package gdalio reads and writes rasters through GDAL.
package gdalio

import (
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cloudless/internal/output"
	"github.com/sells-group/cloudless/internal/raster"
)

var registerOnce sync.Once

// Register loads the GDAL drivers. It is safe to call more than once.
func Register() {
	registerOnce.Do(godal.RegisterAll)
}

var toGDAL = map[raster.DataType]godal.DataType{
	raster.Uint8:   godal.Byte,
	raster.Int16:   godal.Int16,
	raster.Uint16:  godal.UInt16,
	raster.Int32:   godal.Int32,
	raster.Uint32:  godal.UInt32,
	raster.Float32: godal.Float32,
	raster.Float64: godal.Float64,
}

func fromGDAL(dt godal.DataType) (raster.DataType, error) {
	for k, v := range toGDAL {
		if v == dt {
			return k, nil
		}
	}
	return raster.Unknown, eris.Errorf("gdalio: unsupported GDAL data type %v", dt)
}

// Reader opens GeoTIFFs and other GDAL-readable files.
type Reader struct{}

// Open reads every band of the file together with its georeference.
func (Reader) Open(path string) (*raster.Raster, error) {
	Register()
	ds, err := godal.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "gdalio: open %s", path)
	}
	defer ds.Close() //nolint:errcheck

	st := ds.Structure()
	dt, err := fromGDAL(st.DataType)
	if err != nil {
		return nil, eris.Wrapf(err, "gdalio: %s", path)
	}

	bands := make([]raster.Band, 0, st.NBands)
	for i, b := range ds.Bands() {
		rb, err := raster.NewBand(dt, st.SizeX*st.SizeY)
		if err != nil {
			return nil, err
		}
		if err := b.Read(0, 0, rb.Data(), st.SizeX, st.SizeY); err != nil {
			return nil, eris.Wrapf(err, "gdalio: read band %d of %s", i+1, path)
		}
		bands = append(bands, rb)
	}

	var geo raster.GeoTransform
	if gt, err := ds.GeoTransform(); err == nil {
		geo = raster.GeoTransform(gt)
	}
	return raster.New(st.SizeX, st.SizeY, geo, ds.Projection(), bands...)
}

// OpenMask reads the first band of the file as a cloud mask.
func (r Reader) OpenMask(path string) (*raster.Mask, error) {
	rs, err := r.Open(path)
	if err != nil {
		return nil, err
	}
	return raster.MaskFromBand(rs), nil
}

// Backend creates GeoTIFF files.
type Backend struct{}

// Create opens a new GeoTIFF for writing.
func (Backend) Create(path string, width, height, bands int, dt raster.DataType, options []string) (output.Dataset, error) {
	Register()
	gdt, ok := toGDAL[dt]
	if !ok {
		return nil, eris.Errorf("gdalio: cannot write %s rasters", dt)
	}
	ds, err := godal.Create(godal.GTiff, path, bands, gdt, width, height, godal.CreationOption(options...))
	if err != nil {
		return nil, eris.Wrapf(err, "gdalio: create %s", path)
	}
	return &Dataset{ds: ds, path: path, width: width, height: height}, nil
}

// Dataset is a GeoTIFF being written.
type Dataset struct {
	ds     *godal.Dataset
	path   string
	width  int
	height int
}

// WriteBand writes the band at 1-based index.
func (d *Dataset) WriteBand(index int, b raster.Band) error {
	bands := d.ds.Bands()
	if index < 1 || index > len(bands) {
		return eris.Errorf("gdalio: band %d out of range for %s", index, d.path)
	}
	if err := bands[index-1].Write(0, 0, b.Data(), d.width, d.height); err != nil {
		return eris.Wrapf(err, "gdalio: write band %d of %s", index, d.path)
	}
	return nil
}

// SetGeoreference sets the affine transform and the CRS. The CRS may be WKT
// or an "EPSG:<code>" identifier.
func (d *Dataset) SetGeoreference(gt raster.GeoTransform, crs string) error {
	if err := d.ds.SetGeoTransform([6]float64(gt)); err != nil {
		return eris.Wrapf(err, "gdalio: set geotransform of %s", d.path)
	}
	if crs == "" {
		return nil
	}
	if code, ok := strings.CutPrefix(strings.ToUpper(crs), "EPSG:"); ok {
		n, err := strconv.Atoi(code)
		if err != nil {
			return eris.Wrapf(err, "gdalio: crs %q", crs)
		}
		sr, err := godal.NewSpatialRefFromEPSG(n)
		if err != nil {
			return eris.Wrapf(err, "gdalio: crs %q", crs)
		}
		defer sr.Close()
		if err := d.ds.SetSpatialRef(sr); err != nil {
			return eris.Wrapf(err, "gdalio: set crs of %s", d.path)
		}
		return nil
	}
	if err := d.ds.SetProjection(crs); err != nil {
		return eris.Wrapf(err, "gdalio: set projection of %s", d.path)
	}
	return nil
}

// BuildOverviews builds the overview levels with the named resampling.
func (d *Dataset) BuildOverviews(factors []int, resampling string) error {
	if len(factors) == 0 {
		return nil
	}
	alg, err := resamplingAlg(resampling)
	if err != nil {
		return err
	}
	if err := d.ds.BuildOverviews(godal.Levels(factors...), godal.Resampling(alg)); err != nil {
		return eris.Wrapf(err, "gdalio: build overviews of %s", d.path)
	}
	return nil
}

// SetNoData sets the no-data value of every band.
func (d *Dataset) SetNoData(value float64) error {
	for i, b := range d.ds.Bands() {
		if err := b.SetNoData(value); err != nil {
			return eris.Wrapf(err, "gdalio: set nodata of band %d of %s", i+1, d.path)
		}
	}
	return nil
}

// Close flushes and closes the file.
func (d *Dataset) Close() error {
	if err := d.ds.Close(); err != nil {
		return eris.Wrapf(err, "gdalio: close %s", d.path)
	}
	return nil
}

func resamplingAlg(name string) (godal.ResamplingAlg, error) {
	switch strings.ToLower(name) {
	case "", "nearest":
		return godal.Nearest, nil
	case "average":
		return godal.Average, nil
	case "mode":
		return godal.Mode, nil
	case "bilinear":
		return godal.Bilinear, nil
	case "cubic":
		return godal.Cubic, nil
	default:
		return godal.Nearest, eris.Errorf("gdalio: unsupported resampling %q", name)
	}
}

// Package raster holds the in-memory raster model shared by the compositor,
// the catalogs and the GeoTIFF backend.
package raster

import (
	"github.com/rotisserie/eris"
)

// GeoTransform is the GDAL-style affine transform:
// origin x, pixel width, row rotation, origin y, column rotation, pixel height.
type GeoTransform [6]float64

// PixelToGeo returns the map coordinate of the upper-left corner of a pixel.
func (g GeoTransform) PixelToGeo(col, row int) (x, y float64) {
	x = g[0] + float64(col)*g[1] + float64(row)*g[2]
	y = g[3] + float64(col)*g[4] + float64(row)*g[5]
	return x, y
}

// Raster is an ordered set of equally shaped bands plus georeference.
type Raster struct {
	Width        int
	Height       int
	Bands        []Band
	GeoTransform GeoTransform
	CRS          string
}

// New validates the bands against the raster size and returns a Raster.
// All bands must share one data type.
func New(width, height int, geo GeoTransform, crs string, bands ...Band) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, eris.Errorf("raster: invalid size %dx%d", width, height)
	}
	if len(bands) == 0 {
		return nil, eris.New("raster: at least one band is required")
	}
	dt := bands[0].DataType()
	for i, b := range bands {
		if b.Len() != width*height {
			return nil, eris.Errorf("raster: band %d has %d samples, want %d", i+1, b.Len(), width*height)
		}
		if b.DataType() != dt {
			return nil, eris.Errorf("raster: band %d is %s, band 1 is %s", i+1, b.DataType(), dt)
		}
	}
	return &Raster{
		Width:        width,
		Height:       height,
		Bands:        bands,
		GeoTransform: geo,
		CRS:          crs,
	}, nil
}

// DataType returns the sample type of the raster's bands.
func (r *Raster) DataType() DataType {
	if len(r.Bands) == 0 {
		return Unknown
	}
	return r.Bands[0].DataType()
}

// Pixels returns width*height.
func (r *Raster) Pixels() int { return r.Width * r.Height }

// Clone deep-copies the raster.
func (r *Raster) Clone() *Raster {
	bands := make([]Band, len(r.Bands))
	for i, b := range r.Bands {
		bands[i] = b.Clone()
	}
	return &Raster{
		Width:        r.Width,
		Height:       r.Height,
		Bands:        bands,
		GeoTransform: r.GeoTransform,
		CRS:          r.CRS,
	}
}

// Mask is a single-band cloud mask. Sample interpretation is left to the
// caller's cloud predicate.
type Mask struct {
	Width  int
	Height int
	Band   Band
}

// NewMask validates b against the mask size.
func NewMask(width, height int, b Band) (*Mask, error) {
	if b == nil {
		return nil, eris.New("raster: mask band is nil")
	}
	if b.Len() != width*height {
		return nil, eris.Errorf("raster: mask has %d samples, want %d", b.Len(), width*height)
	}
	return &Mask{Width: width, Height: height, Band: b}, nil
}

// MaskFromBand uses the first band of r as a mask, for products that encode
// clouds in the data itself.
func MaskFromBand(r *Raster) *Mask {
	return &Mask{Width: r.Width, Height: r.Height, Band: r.Bands[0]}
}

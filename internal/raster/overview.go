package raster

// DefaultTileSize is the block size overviews are computed against.
const DefaultTileSize = 256

// OverviewFactors returns the decimation factors for a tiled GeoTIFF pyramid.
// The largest dimension is halved while half of it still spans a tile; every
// halving adds a level, and one coarser level is always appended.
func OverviewFactors(width, height, tileSize int) []int {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	maxSize := float64(max(width, height))
	tile := float64(tileSize)

	var factors []int
	factor := 1
	for maxSize/2 >= tile {
		maxSize /= 2
		factor *= 2
		factors = append(factors, factor)
	}
	return append(factors, factor*2)
}

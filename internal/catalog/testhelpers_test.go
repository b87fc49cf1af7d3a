package catalog

import (
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cloudless/internal/raster"
)

// fakeReader returns 1x1 rasters and records every path it opens.
type fakeReader struct {
	mu     sync.Mutex
	opened []string
	masks  []string
	fail   string
}

func (f *fakeReader) Open(path string) (*raster.Raster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, path)
	if path == f.fail {
		return nil, eris.New("corrupt file")
	}
	return raster.New(1, 1, raster.GeoTransform{0, 1, 0, 0, 0, -1}, "EPSG:4326", raster.GridOf([]uint16{7}))
}

func (f *fakeReader) OpenMask(path string) (*raster.Mask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.masks = append(f.masks, path)
	return raster.NewMask(1, 1, raster.GridOf([]uint8{0}))
}

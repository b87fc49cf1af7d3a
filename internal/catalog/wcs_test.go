package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cloudless/internal/composite"
	"github.com/sells-group/cloudless/internal/fetcher"
	"github.com/sells-group/cloudless/pkg/wcs"
)

func coverageSet(ids ...string) string {
	var b strings.Builder
	b.WriteString(`<wcseo:EOCoverageSetDescription xmlns:wcseo="http://www.opengis.net/wcs/wcseo/1.0" xmlns:wcs="http://www.opengis.net/wcs/2.0"><wcs:CoverageDescriptions>`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<wcs:CoverageDescription><wcs:CoverageId>%s</wcs:CoverageId></wcs:CoverageDescription>`, id)
	}
	b.WriteString(`</wcs:CoverageDescriptions></wcseo:EOCoverageSetDescription>`)
	return b.String()
}

type wcsServer struct {
	mu        sync.Mutex
	series    map[string][]string
	downloads []string
	queries   []string
}

func (s *wcsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, r.URL.RawQuery)
	switch q.Get("request") {
	case "DescribeEOCoverageSet":
		_, _ = io.WriteString(w, coverageSet(s.series[q.Get("eoID")]...))
	case "GetCoverage":
		s.downloads = append(s.downloads, q.Get("coverageid"))
		_, _ = io.WriteString(w, "tiff")
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newWCSCatalog(t *testing.T, srv *wcsServer, opts WCSOptions) (*WCSCatalog, *fakeReader) {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:       5 * time.Second,
		MaxRetries:    1,
		RatePerSecond: 1000,
		BaseBackoff:   time.Millisecond,
	})
	reader := &fakeReader{}
	if opts.TempDir == "" {
		opts.TempDir = t.TempDir()
	}
	return NewWCS(wcs.NewClient(ts.URL+"/ows?", f), reader, opts), reader
}

func TestWCSCatalog_ListPairsMasks(t *testing.T) {
	srv := &wcsServer{series: map[string][]string{
		"data": {"SPOT4_20130415_N2A", "SPOT4_20130405_N2A", "SPOT4_20130410_N2A"},
		"mask": {"SPOT4_20130410_NUA", "SPOT4_20130405_NUA", "SPOT4_20130415_NUA"},
	}}
	aoi, err := wcs.ParseAOI("1.2,1.5,43.4,43.7")
	require.NoError(t, err)
	cat, _ := newWCSCatalog(t, srv, WCSOptions{EOID: "data", MaskEOID: "mask", AOI: aoi})

	refs, err := cat.List(context.Background(), window(t, "20130405", "20130415"))
	require.NoError(t, err)
	assert.Equal(t, []composite.CandidateRef{
		{ID: "SPOT4_20130405_N2A", Date: time.Date(2013, 4, 5, 0, 0, 0, 0, time.UTC), MaskID: "SPOT4_20130405_NUA"},
		{ID: "SPOT4_20130410_N2A", Date: time.Date(2013, 4, 10, 0, 0, 0, 0, time.UTC), MaskID: "SPOT4_20130410_NUA"},
		{ID: "SPOT4_20130415_N2A", Date: time.Date(2013, 4, 15, 0, 0, 0, 0, time.UTC), MaskID: "SPOT4_20130415_NUA"},
	}, refs)

	require.Len(t, srv.queries, 2)
	assert.Contains(t, srv.queries[0], "phenomenonTime(%222013-04-05T00:00Z%22,%222013-04-15T23:59Z%22)")
	assert.Contains(t, srv.queries[0], "subset=Long,http://www.opengis.net/def/crs/EPSG/0/4326(1.2,1.5)")
}

func TestWCSCatalog_CountMismatch(t *testing.T) {
	srv := &wcsServer{series: map[string][]string{
		"data": {"S_20130405", "S_20130410"},
		"mask": {"M_20130405"},
	}}
	cat, _ := newWCSCatalog(t, srv, WCSOptions{EOID: "data", MaskEOID: "mask"})

	_, err := cat.List(context.Background(), window(t, "20130401", "20130415"))
	assert.ErrorIs(t, err, ErrMaskMismatch)
}

func TestWCSCatalog_DateMismatch(t *testing.T) {
	srv := &wcsServer{series: map[string][]string{
		"data": {"S_20130405"},
		"mask": {"M_20130406"},
	}}
	cat, _ := newWCSCatalog(t, srv, WCSOptions{EOID: "data", MaskEOID: "mask"})

	_, err := cat.List(context.Background(), window(t, "20130401", "20130415"))
	assert.ErrorIs(t, err, ErrMaskMismatch)
}

func TestWCSCatalog_Undated(t *testing.T) {
	srv := &wcsServer{series: map[string][]string{"data": {"scene_a"}}}
	cat, _ := newWCSCatalog(t, srv, WCSOptions{EOID: "data", Thematic: true})

	_, err := cat.List(context.Background(), window(t, "20130401", "20130415"))
	assert.ErrorIs(t, err, ErrUndated)
}

func TestWCSCatalog_FetchDownloadsBoth(t *testing.T) {
	srv := &wcsServer{}
	dir := t.TempDir()
	cat, reader := newWCSCatalog(t, srv, WCSOptions{
		EOID:      "data",
		MaskEOID:  "mask",
		Bands:     []string{"3", "2", "1"},
		OutputCRS: "EPSG:32631",
		TempDir:   dir,
	})
	ref := composite.CandidateRef{ID: "S_20130410", MaskID: "M_20130410", Date: time.Date(2013, 4, 10, 0, 0, 0, 0, time.UTC)}

	cand, err := cat.Fetch(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, ref, cand.CandidateRef)
	assert.ElementsMatch(t, []string{"S_20130410", "M_20130410"}, srv.downloads)
	assert.Equal(t, []string{filepath.Join(dir, "S_20130410.tif")}, reader.opened)
	assert.Equal(t, []string{filepath.Join(dir, "M_20130410.tif")}, reader.masks)

	for _, q := range srv.queries {
		if strings.Contains(q, "coverageid=M_20130410") {
			assert.NotContains(t, q, "rangesubset")
		} else {
			assert.Contains(t, q, "rangesubset=3,2,1")
		}
		assert.Contains(t, q, "outputcrs=http://www.opengis.net/def/crs/EPSG/0/32631")
	}
}

func TestWCSCatalog_Thematic(t *testing.T) {
	srv := &wcsServer{series: map[string][]string{"fsc": {"FSC_20130410", "FSC_20130411"}}}
	cat, reader := newWCSCatalog(t, srv, WCSOptions{EOID: "fsc", Thematic: true})

	refs, err := cat.List(context.Background(), window(t, "20130410", "20130411"))
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "FSC_20130410", refs[0].MaskID)

	_, err = cat.Fetch(context.Background(), refs[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"FSC_20130410"}, srv.downloads)
	assert.Equal(t, reader.opened, reader.masks)
}

func TestWCSCatalog_FetchMissingMask(t *testing.T) {
	cat, _ := newWCSCatalog(t, &wcsServer{}, WCSOptions{EOID: "data", MaskEOID: "mask"})

	_, err := cat.Fetch(context.Background(), composite.CandidateRef{ID: "S_20130410"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no cloud mask")
}

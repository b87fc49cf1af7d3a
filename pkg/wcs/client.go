// Package wcs is a small OGC WCS 2.0.1 client with the Earth Observation
// application profile requests needed to discover and download coverages:
// GetCapabilities, DescribeEOCoverageSet and GetCoverage.
package wcs

import (
	"context"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/cloudless/internal/fetcher"
)

// CRSURL is the prefix of EPSG coordinate reference system identifiers.
const CRSURL = "http://www.opengis.net/def/crs/EPSG/0/"

// DatasetSeries is one entry of a capabilities DatasetSeriesSummary.
type DatasetSeries struct {
	ID    string `json:"id" yaml:"id"`
	Begin string `json:"begin" yaml:"begin"`
	End   string `json:"end" yaml:"end"`
}

// CoverageRef identifies a coverage returned by DescribeEOCoverageSet.
// Begin is the zero time when the server omits the phenomenon time.
type CoverageRef struct {
	ID    string
	Begin time.Time
}

// Containment selects how the AOI restricts DescribeEOCoverageSet results.
type Containment string

// Containment values.
const (
	Overlaps Containment = "overlaps"
	Contains Containment = "contains"
)

// DescribeRequest holds the parameters of a DescribeEOCoverageSet request.
type DescribeRequest struct {
	EOID string
	AOI  *geom.Bounds
	// Begin and End are ISO-8601 dates or date-times. An empty End means one
	// day after Begin.
	Begin       string
	End         string
	Containment Containment
	Count       int
}

// GetCoverageRequest holds the parameters of a GetCoverage request. A nil
// AOI requests the full scene.
type GetCoverageRequest struct {
	CoverageID  string
	AOI         *geom.Bounds
	Format      string
	RangeSubset []string
	// OutputCRS is an EPSG code such as "32631" or "EPSG:32631".
	OutputCRS string
}

// Client talks to a single WCS endpoint.
type Client struct {
	serverURL string
	http      fetcher.Fetcher
}

// NewClient creates a client for the given server URL. A trailing "?" on
// the URL is accepted.
func NewClient(serverURL string, f fetcher.Fetcher) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "?&"),
		http:      f,
	}
}

// ServerURL returns the endpoint without query separator.
func (c *Client) ServerURL() string { return c.serverURL }

func (c *Client) base(request string) *strings.Builder {
	var b strings.Builder
	b.WriteString(c.serverURL)
	if strings.Contains(c.serverURL, "?") {
		b.WriteString("&")
	} else {
		b.WriteString("?")
	}
	b.WriteString("service=wcs&version=2.0.1&request=")
	b.WriteString(request)
	return &b
}

// GetCapabilitiesURL builds a GetCapabilities request URL.
func (c *Client) GetCapabilitiesURL(sections ...string) string {
	b := c.base("GetCapabilities")
	if len(sections) > 0 {
		b.WriteString("&sections=")
		b.WriteString(strings.Join(sections, ","))
	}
	return b.String()
}

// GetCapabilities fetches the capabilities document and returns its dataset
// series with their time ranges.
func (c *Client) GetCapabilities(ctx context.Context, sections ...string) ([]DatasetSeries, error) {
	type summary struct {
		ID    string `xml:"DatasetSeriesId"`
		Begin string `xml:"TimePeriod>beginPosition"`
		End   string `xml:"TimePeriod>endPosition"`
	}

	body, err := c.http.Download(ctx, c.GetCapabilitiesURL(sections...))
	if err != nil {
		return nil, eris.Wrap(err, "wcs: get capabilities")
	}
	defer body.Close() //nolint:errcheck

	items, err := fetcher.CollectXML[summary](ctx, body, "DatasetSeriesSummary")
	if err != nil {
		return nil, eris.Wrap(err, "wcs: parse capabilities")
	}

	out := make([]DatasetSeries, 0, len(items))
	for _, it := range items {
		out = append(out, DatasetSeries{
			ID:    strings.TrimSpace(it.ID),
			Begin: strings.TrimSpace(it.Begin),
			End:   strings.TrimSpace(it.End),
		})
	}
	return out, nil
}

// DescribeEOCoverageSetURL builds a DescribeEOCoverageSet request URL after
// validating the time range.
func (c *Client) DescribeEOCoverageSetURL(req DescribeRequest) (string, error) {
	if req.EOID == "" {
		return "", eris.New("wcs: eoid is required")
	}
	begin, end, err := TimeRange(req.Begin, req.End)
	if err != nil {
		return "", err
	}

	b := c.base("DescribeEOCoverageSet")
	b.WriteString("&eoID=")
	b.WriteString(req.EOID)
	if req.AOI != nil {
		b.WriteString("&subset=Lat," + CRSURL + "4326(" + formatPair(req.AOI.Min(1), req.AOI.Max(1)) + ")")
		b.WriteString("&subset=Long," + CRSURL + "4326(" + formatPair(req.AOI.Min(0), req.AOI.Max(0)) + ")")
	}
	b.WriteString("&subset=phenomenonTime(%22" + begin + "%22,%22" + end + "%22)")
	if req.Containment != "" {
		b.WriteString("&containment=" + string(req.Containment))
	}
	if req.Count > 0 {
		b.WriteString("&count=" + strconv.Itoa(req.Count))
	}
	return b.String(), nil
}

// DescribeEOCoverageSet lists the coverages of a dataset series matching
// the request. An empty result is not an error.
func (c *Client) DescribeEOCoverageSet(ctx context.Context, req DescribeRequest) ([]CoverageRef, error) {
	u, err := c.DescribeEOCoverageSetURL(req)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("wcs: describe eo coverage set", zap.String("url", u))

	body, err := c.http.Download(ctx, u)
	if err != nil {
		return nil, eris.Wrapf(err, "wcs: describe eo coverage set %s", req.EOID)
	}
	defer body.Close() //nolint:errcheck

	return parseCoverageDescriptions(ctx, body)
}

func parseCoverageDescriptions(ctx context.Context, r io.Reader) ([]CoverageRef, error) {
	type description struct {
		ID    string `xml:"CoverageId"`
		Begin string `xml:"metadata>Extension>EOMetadata>EarthObservation>phenomenonTime>TimePeriod>beginPosition"`
	}

	items, err := fetcher.CollectXML[description](ctx, r, "CoverageDescription")
	if err != nil {
		return nil, eris.Wrap(err, "wcs: parse coverage descriptions")
	}

	refs := make([]CoverageRef, 0, len(items))
	for _, it := range items {
		ref := CoverageRef{ID: strings.TrimSpace(it.ID)}
		if ref.ID == "" {
			continue
		}
		if t, err := ParseTime(strings.TrimSpace(it.Begin)); err == nil {
			ref.Begin = t
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// GetCoverageURL builds a GetCoverage request URL.
func (c *Client) GetCoverageURL(req GetCoverageRequest) string {
	format := req.Format
	if format == "" {
		format = "tiff"
	}

	b := c.base("GetCoverage")
	b.WriteString("&coverageid=")
	b.WriteString(req.CoverageID)
	if req.AOI != nil {
		b.WriteString("&subset=Long," + CRSURL + "4326(" + formatPair(req.AOI.Min(0), req.AOI.Max(0)) + ")")
		b.WriteString("&subset=Lat," + CRSURL + "4326(" + formatPair(req.AOI.Min(1), req.AOI.Max(1)) + ")")
	}
	b.WriteString("&format=image/" + format)
	if len(req.RangeSubset) > 0 {
		b.WriteString("&rangesubset=" + strings.Join(req.RangeSubset, ","))
	}
	if req.OutputCRS != "" {
		code := req.OutputCRS
		if i := strings.LastIndex(code, ":"); i >= 0 {
			code = code[i+1:]
		}
		b.WriteString("&outputcrs=" + CRSURL + code)
	}
	return b.String()
}

// GetCoverage downloads a coverage into dir and returns the file path. The
// file is named after the coverage identifier.
func (c *Client) GetCoverage(ctx context.Context, req GetCoverageRequest, dir string) (string, error) {
	if req.CoverageID == "" {
		return "", eris.New("wcs: coverage id is required")
	}
	path := filepath.Join(dir, coverageFileName(req.CoverageID, req.Format))

	n, err := c.http.DownloadToFile(ctx, c.GetCoverageURL(req), path)
	if err != nil {
		return "", eris.Wrapf(err, "wcs: get coverage %s", req.CoverageID)
	}
	zap.L().Debug("wcs: coverage downloaded",
		zap.String("coverage", req.CoverageID),
		zap.String("path", path),
		zap.Int64("bytes", n),
	)
	return path, nil
}

var fileExt = map[string]string{
	"":        "tif",
	"tiff":    "tif",
	"geotiff": "tif",
	"jpeg":    "jpg",
	"png":     "png",
	"gif":     "gif",
	"netcdf":  "nc",
	"hdf":     "hdf",
}

func coverageFileName(id, format string) string {
	switch strings.ToLower(filepath.Ext(id)) {
	case ".tif", ".tiff", ".jpg", ".jpeg", ".png", ".gif", ".nc", ".hdf":
		return id
	}
	ext, ok := fileExt[strings.ToLower(format)]
	if !ok {
		ext = strings.ToLower(format)
	}
	return id + "." + ext
}

func formatPair(a, b float64) string {
	return strconv.FormatFloat(a, 'f', -1, 64) + "," + strconv.FormatFloat(b, 'f', -1, 64)
}

package wcs

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ErrInvalidAOI is returned for a malformed area of interest.
var ErrInvalidAOI = eris.New("wcs: invalid area of interest")

// ErrInvalidTime is returned for a date that is not valid ISO-8601.
var ErrInvalidTime = eris.New("wcs: invalid ISO-8601 date")

// timeLayouts are the accepted subset time layouts, tried in order.
var timeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15",
	"2006-01-02T",
	"2006-01-02",
}

// ParseAOI parses "minx,maxx,miny,maxy" in WGS84 degrees into bounds.
func ParseAOI(s string) (*geom.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, eris.Wrapf(ErrInvalidAOI, "%q: want minx,maxx,miny,maxy", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, eris.Wrapf(ErrInvalidAOI, "%q: %v", s, err)
		}
		v[i] = f
	}
	minX, maxX, minY, maxY := v[0], v[1], v[2], v[3]
	switch {
	case minX >= maxX || minY >= maxY:
		return nil, eris.Wrapf(ErrInvalidAOI, "%q: minimum must be below maximum", s)
	case minX < -180 || maxX > 180:
		return nil, eris.Wrapf(ErrInvalidAOI, "%q: longitude outside [-180,180]", s)
	case minY < -90 || maxY > 90:
		return nil, eris.Wrapf(ErrInvalidAOI, "%q: latitude outside [-90,90]", s)
	}
	return geom.NewBounds(geom.XY).Set(minX, minY, maxX, maxY), nil
}

// FormatAOI renders bounds back to "minx,maxx,miny,maxy".
func FormatAOI(b *geom.Bounds) string {
	return formatPair(b.Min(0), b.Max(0)) + "," + formatPair(b.Min(1), b.Max(1))
}

// ValidateDate checks an ISO-8601 date or date-time. Date-times with minutes
// or seconds and no zone designator are returned with a "Z" suffix.
func ValidateDate(s string) (string, error) {
	if _, err := ParseTime(s); err != nil {
		return "", err
	}
	if !strings.HasSuffix(s, "Z") && (len(s) == 16 || len(s) == 19) {
		s += "Z"
	}
	return s, nil
}

// ParseTime parses the layouts ValidateDate accepts. The result is UTC.
func ParseTime(s string) (time.Time, error) {
	trimmed := strings.TrimSuffix(s, "Z")
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Wrapf(ErrInvalidTime, "%q", s)
}

// TimeRange validates a subset time range. With an empty end the range
// covers the day following begin.
func TimeRange(begin, end string) (string, string, error) {
	from, err := ValidateDate(begin)
	if err != nil {
		return "", "", err
	}
	if end == "" {
		t, _ := ParseTime(begin)
		return from, t.AddDate(0, 0, 1).Format("2006-01-02"), nil
	}
	to, err := ValidateDate(end)
	if err != nil {
		return "", "", err
	}
	return from, to, nil
}

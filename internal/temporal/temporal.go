// Package temporal resolves the search window around a time of interest.
package temporal

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Sentinel errors.
var (
	ErrInvalidDate         = eris.New("invalid date")
	ErrUnsupportedScenario = eris.New("unsupported scenario")
	ErrInvalidPeriod       = eris.New("invalid period")
)

// Scenario selects where the base acquisition sits in the temporal stack.
type Scenario string

// Scenarios.
const (
	// Top: the base is the newest layer, candidates are older.
	Top Scenario = "T"
	// Middle: candidates on both sides, alternating newer/older.
	Middle Scenario = "M"
	// Bottom: the base is the oldest layer, candidates are newer.
	Bottom Scenario = "B"
)

// ParseScenario parses T, M or B (case-insensitive).
func ParseScenario(s string) (Scenario, error) {
	sc := Scenario(strings.ToUpper(strings.TrimSpace(s)))
	if err := sc.Validate(); err != nil {
		return "", err
	}
	return sc, nil
}

// Validate reports whether s is one of the known scenarios.
func (s Scenario) Validate() error {
	switch s {
	case Top, Middle, Bottom:
		return nil
	}
	return eris.Wrapf(ErrUnsupportedScenario, "scenario %q (want T, M or B)", string(s))
}

// Date layouts accepted for a time of interest.
const (
	CompactLayout = "20060102"
	ISOLayout     = "2006-01-02"
)

// ParseDate parses a calendar date in YYYYMMDD or YYYY-MM-DD form.
// The result is midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{CompactLayout, ISOLayout} {
		if len(s) != len(layout) {
			continue
		}
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Wrapf(ErrInvalidDate, "cannot parse %q as YYYYMMDD or YYYY-MM-DD", s)
}

// Window is an inclusive range of calendar days.
type Window struct {
	From time.Time
	To   time.Time
}

// Resolve computes the search window for toi under the scenario.
//
//	T: [toi-period, toi]
//	B: [toi, toi+period]
//	M: [toi-floor(period/2), toi+ceil(period/2)]
func Resolve(toi time.Time, scenario Scenario, period int) (Window, error) {
	if period < 0 {
		return Window{}, eris.Wrapf(ErrInvalidPeriod, "period %d must not be negative", period)
	}
	if err := scenario.Validate(); err != nil {
		return Window{}, err
	}
	day := truncateDay(toi)

	switch scenario {
	case Top:
		return Window{From: day.AddDate(0, 0, -period), To: day}, nil
	case Bottom:
		return Window{From: day, To: day.AddDate(0, 0, period)}, nil
	default:
		back := period / 2
		forward := period - back
		return Window{From: day.AddDate(0, 0, -back), To: day.AddDate(0, 0, forward)}, nil
	}
}

// ResolveString parses toi and resolves its window. Parse failures are
// reported before the scenario is looked at.
func ResolveString(toi string, scenario Scenario, period int) (Window, error) {
	t, err := ParseDate(toi)
	if err != nil {
		return Window{}, err
	}
	return Resolve(t, scenario, period)
}

// Unbounded contains every date. Image-counted datasets list through it.
var Unbounded = Window{From: time.Time{}, To: time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)}

// Contains reports whether t falls on a day inside the window.
func (w Window) Contains(t time.Time) bool {
	d := truncateDay(t)
	return !d.Before(w.From) && !d.After(w.To)
}

// Days returns the number of calendar days covered, inclusive.
func (w Window) Days() int {
	return int(w.To.Sub(w.From).Hours()/24) + 1
}

func (w Window) String() string {
	return fmt.Sprintf("%s/%s", w.From.Format(ISOLayout), w.To.Format(ISOLayout))
}

// SubsetTime renders the window as the start/end instants of a WCS time
// subset, covering the whole of the last day.
func (w Window) SubsetTime() (begin, end string) {
	return w.From.Format(ISOLayout) + "T00:00", w.To.Format(ISOLayout) + "T23:59"
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Package sequence orders gap-filling candidates so the acquisition nearest
// in time to the base is always tried first.
package sequence

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cloudless/internal/composite"
	"github.com/sells-group/cloudless/internal/temporal"
)

// ErrNoBase is returned by Partition when no reference matches the TOI.
var ErrNoBase = eris.New("no base acquisition for time of interest")

// Order returns gfps in the order the compositor should try them.
//
//	T: newest first (all candidates are older than base)
//	B: oldest first (all candidates are newer than base)
//	M: newer[0], older[0], newer[1], older[1], ... nearest first on each side
//
// Ties on date are broken by identifier. gfps is not modified.
func Order(gfps []composite.CandidateRef, base composite.CandidateRef, scenario temporal.Scenario) ([]composite.CandidateRef, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	sorted := slices.Clone(gfps)
	sortAscending(sorted)

	switch scenario {
	case temporal.Top:
		slices.Reverse(sorted)
		return sorted, nil
	case temporal.Bottom:
		return sorted, nil
	}

	merged := append(sorted, base)
	sortAscending(merged)
	pos := slices.IndexFunc(merged, func(r composite.CandidateRef) bool {
		return r.ID == base.ID && r.Date.Equal(base.Date)
	})

	older := slices.Clone(merged[:pos])
	slices.Reverse(older)
	newer := merged[pos+1:]

	out := make([]composite.CandidateRef, 0, len(gfps))
	for i := 0; i < len(newer) || i < len(older); i++ {
		if i < len(newer) {
			out = append(out, newer[i])
		}
		if i < len(older) {
			out = append(out, older[i])
		}
	}
	return out, nil
}

func sortAscending(refs []composite.CandidateRef) {
	slices.SortStableFunc(refs, func(a, b composite.CandidateRef) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// Partition splits a catalog listing into the base acquisition and the
// gap-filling candidates. The first reference whose identifier contains the
// TOI token is the base; later matches stay candidates.
func Partition(refs []composite.CandidateRef, toiToken string) (composite.CandidateRef, []composite.CandidateRef, error) {
	idx := -1
	if toiToken != "" {
		idx = slices.IndexFunc(refs, func(r composite.CandidateRef) bool {
			return strings.Contains(r.ID, toiToken)
		})
	}
	if idx < 0 {
		return composite.CandidateRef{}, nil, eris.Wrapf(ErrNoBase, "no identifier among %d contains %q", len(refs), toiToken)
	}
	gfps := make([]composite.CandidateRef, 0, len(refs)-1)
	gfps = append(gfps, refs[:idx]...)
	gfps = append(gfps, refs[idx+1:]...)
	return refs[idx], gfps, nil
}

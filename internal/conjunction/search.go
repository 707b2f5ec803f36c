package conjunction

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultStep is the coarse scan interval.
	DefaultStep = 30 * time.Second

	// RefineTolerance is the width at which ternary refinement stops.
	RefineTolerance = 100 * time.Millisecond
)

// GapPolicy selects how the coarse scan treats instants where propagation
// fails.
type GapPolicy int

const (
	// GapAsInfinity treats a failed sample as +Inf distance. A close approach
	// right next to a gap is still reported.
	GapAsInfinity GapPolicy = iota
	// GapSkip drops the failed sample and forgets the scan history, so no
	// minimum is detected across or at a gap.
	GapSkip
)

func (g GapPolicy) String() string {
	switch g {
	case GapAsInfinity:
		return "infinity"
	case GapSkip:
		return "skip"
	default:
		return fmt.Sprintf("GapPolicy(%d)", int(g))
	}
}

// ParseGapPolicy accepts "infinity" (or "") and "skip".
func ParseGapPolicy(s string) (GapPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "infinity", "inf":
		return GapAsInfinity, nil
	case "skip":
		return GapSkip, nil
	default:
		return 0, fmt.Errorf("unknown gap policy %q (want \"infinity\" or \"skip\")", s)
	}
}

// candidate is a (time, distance) pair from the scan or refinement.
type candidate struct {
	t        time.Time
	distance float64
}

// findLocalMinima walks [start, end] in fixed steps and returns one refined
// candidate per "was falling, now rising" turn, merged within one step.
// The window endpoints are never reported. The result is in time order but
// callers must not rely on it. The scan stops early only if ctx is done.
func findLocalMinima(ctx context.Context, a, b *Track, start, end time.Time, step time.Duration, gaps GapPolicy) ([]candidate, error) {
	var (
		raw        []candidate
		prevD      float64
		prevT      time.Time
		havePrev   bool
		decreasing bool
	)

	for i := 0; ; i++ {
		t := start.Add(time.Duration(i) * step)
		if t.After(end) {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		d, ok := distanceAt(a, b, t)
		if !ok {
			if gaps == GapSkip {
				havePrev, decreasing = false, false
				continue
			}
			d = math.Inf(1)
		}

		if havePrev {
			switch {
			case d < prevD:
				decreasing = true
			case decreasing && d > prevD:
				raw = append(raw, refineMinimum(a, b, prevT, step))
				decreasing = false
			}
		}
		prevD, prevT, havePrev = d, t, true
	}

	return mergeNearby(raw, step), nil
}

// refineMinimum ternary-searches [approx-window, approx+window] for the
// minimum distance, assuming a single minimum inside, and returns the
// midpoint of the final interval. Failed evaluations count as +Inf.
func refineMinimum(a, b *Track, approx time.Time, window time.Duration) candidate {
	lo, hi := approx.Add(-window), approx.Add(window)

	for hi.Sub(lo) > RefineTolerance {
		third := hi.Sub(lo) / 3
		m1, m2 := lo.Add(third), hi.Add(-third)
		if distanceOrInf(a, b, m1) < distanceOrInf(a, b, m2) {
			hi = m2
		} else {
			lo = m1
		}
	}

	mid := lo.Add(hi.Sub(lo) / 2)
	return candidate{t: mid, distance: distanceOrInf(a, b, mid)}
}

// mergeNearby sorts candidates by time and collapses each run where a
// candidate is within threshold of the last survivor, keeping the smaller
// distance. Gaps are measured from the survivor, not from the previous raw
// candidate, so a long chain of closely spaced candidates can yield more than
// one survivor. Survivors end up more than threshold apart, so merging the
// output again changes nothing.
func mergeNearby(cands []candidate, threshold time.Duration) []candidate {
	if len(cands) == 0 {
		return nil
	}

	sorted := append([]candidate(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].t.Before(sorted[j].t) })

	out := []candidate{sorted[0]}
	for _, c := range sorted[1:] {
		last := &out[len(out)-1]
		if c.t.Sub(last.t) <= threshold {
			if c.distance < last.distance {
				*last = c
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

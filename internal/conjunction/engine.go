package conjunction

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/kvsankar/sattosat/internal/geometry"
	"github.com/kvsankar/sattosat/internal/metrics"
	"github.com/kvsankar/sattosat/internal/propagation"
	"github.com/kvsankar/sattosat/internal/tle"
	"github.com/kvsankar/sattosat/internal/transform"
)

// Options tunes a conjunction search. Zero values select the defaults.
type Options struct {
	// Step is the coarse scan interval (default DefaultStep).
	Step time.Duration
	// MaxResults caps the returned list after sorting by distance (0 = no cap).
	MaxResults int
	// MaxDistanceKm drops refined minima farther apart than this (0 = no limit).
	MaxDistanceKm float64
	// GapPolicy selects how failed propagation samples are scanned.
	GapPolicy GapPolicy
}

func (o Options) withDefaults() Options {
	if o.Step <= 0 {
		o.Step = DefaultStep
	}
	return o
}

// Engine runs conjunction searches. It holds no per-search state and is safe
// for concurrent use.
type Engine struct {
	factory propagation.Factory
	sun     func(time.Time) geometry.Vec
	logger  *slog.Logger
}

// NewEngine creates an Engine that propagates with factory.
func NewEngine(factory propagation.Factory, logger *slog.Logger) *Engine {
	return &Engine{
		factory: factory,
		sun:     transform.SunPosition,
		logger:  logger,
	}
}

// FindConjunctions returns every local minimum of the A-B distance in
// [start, end], refined and classified, sorted ascending by distance.
// Empty element-set lists or an empty window give an empty list. The only
// error is ctx's, when it is done before the scan finishes.
func (e *Engine) FindConjunctions(ctx context.Context, setsA, setsB []tle.ElementSet, start, end time.Time, opts Options) ([]Conjunction, error) {
	opts = opts.withDefaults()
	out := []Conjunction{}
	if len(setsA) == 0 || len(setsB) == 0 || !end.After(start) {
		return out, nil
	}

	a := NewTrack(setsA, e.factory, e.logger)
	b := NewTrack(setsB, e.factory, e.logger)
	if a.Len() == 0 || b.Len() == 0 {
		return out, nil
	}

	began := time.Now()
	cands, err := findLocalMinima(ctx, a, b, start, end, opts.Step, opts.GapPolicy)
	if err != nil {
		return nil, err
	}

	for _, c := range cands {
		if math.IsInf(c.distance, 0) || math.IsNaN(c.distance) {
			continue
		}
		if opts.MaxDistanceKm > 0 && c.distance > opts.MaxDistanceKm {
			continue
		}
		conj, ok := enrich(c, a, b, e.sun)
		if !ok {
			continue
		}
		out = append(out, conj)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Time.Before(out[j].Time)
	})
	if opts.MaxResults > 0 && len(out) > opts.MaxResults {
		out = out[:opts.MaxResults]
	}

	elapsed := time.Since(began)
	metrics.RecordSearch(elapsed, len(cands), len(out))
	metrics.RecordPropagationFailures(a.failures + b.failures)

	e.logger.Debug("conjunction search complete",
		"norad_a", a.NORADID(),
		"norad_b", b.NORADID(),
		"start", start.UTC().Format(time.RFC3339),
		"end", end.UTC().Format(time.RFC3339),
		"step", opts.Step,
		"candidates", len(cands),
		"results", len(out),
		"propagation_failures", a.failures+b.failures,
		"duration_ms", elapsed.Milliseconds(),
	)
	return out, nil
}

// SampleDistanceCurve returns n evenly spaced distance samples over
// [start, end], both endpoints included. It returns an empty slice when
// n <= 1, the window is empty, or either list is empty.
func (e *Engine) SampleDistanceCurve(setsA, setsB []tle.ElementSet, start, end time.Time, n int) []DistanceSample {
	if len(setsA) == 0 || len(setsB) == 0 || n <= 1 {
		return []DistanceSample{}
	}
	a := NewTrack(setsA, e.factory, e.logger)
	b := NewTrack(setsB, e.factory, e.logger)
	samples := sampleCurve(a, b, start, end, n)
	metrics.RecordPropagationFailures(a.failures + b.failures)
	return samples
}

// Reading is a single-instant evaluation of a pair.
type Reading struct {
	Time                time.Time      `json:"time"`
	DistanceKm          float64        `json:"distance_km"`
	RelativeVelocityKmS float64        `json:"relative_velocity_km_s"`
	A                   SatelliteState `json:"a"`
	B                   SatelliteState `json:"b"`
}

// CurrentDistance evaluates the pair at t. ok is false when either list is
// empty or either propagation fails.
func (e *Engine) CurrentDistance(setsA, setsB []tle.ElementSet, t time.Time) (Reading, bool) {
	return e.NewPair(setsA, setsB).Reading(t)
}

// Pair holds the two tracks of a satellite pair for repeated single-instant
// readings. A Pair must be used from one goroutine.
type Pair struct {
	a, b *Track
}

// NewPair builds the tracks for a pair once.
func (e *Engine) NewPair(setsA, setsB []tle.ElementSet) *Pair {
	return &Pair{
		a: NewTrack(setsA, e.factory, e.logger),
		b: NewTrack(setsB, e.factory, e.logger),
	}
}

// Names returns the display names of A and B.
func (p *Pair) Names() (string, string) { return p.a.Name(), p.b.Name() }

// Lens returns the number of usable element sets of A and B.
func (p *Pair) Lens() (int, int) { return p.a.Len(), p.b.Len() }

// Reading evaluates the pair at t.
func (p *Pair) Reading(t time.Time) (Reading, bool) {
	pa, pb, ok := statesAt(p.a, p.b, t)
	if !ok {
		return Reading{}, false
	}
	pa.Locate()
	pb.Locate()

	sa, sb := p.a.Active(t), p.b.Active(t)
	return Reading{
		Time:                t,
		DistanceKm:          geometry.Distance(pa.Position, pb.Position),
		RelativeVelocityKmS: geometry.Distance(pa.Velocity, pb.Velocity),
		A:                   SatelliteState{NORADID: sa.NORADID, Name: sa.Name, State: pa},
		B:                   SatelliteState{NORADID: sb.NORADID, Name: sb.Name, State: pb},
	}, true
}

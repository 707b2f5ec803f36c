package conjunction

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/kvsankar/sattosat/internal/geometry"
	"github.com/kvsankar/sattosat/internal/propagation"
	"github.com/kvsankar/sattosat/internal/tle"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

var t0 = time.Date(2025, 12, 19, 1, 30, 19, 0, time.UTC)

// motion is an analytic trajectory used in place of SGP4.
type motion func(t time.Time) (pos, vel geometry.Vec)

// analytic propagates a motion, failing wherever fail reports true.
type analytic struct {
	m    motion
	fail func(time.Time) bool
}

func (p analytic) Propagate(t time.Time) (propagation.PositionVelocity, error) {
	if p.fail != nil && p.fail(t) {
		return propagation.PositionVelocity{}, propagation.ErrPropagation
	}
	pos, vel := p.m(t)
	return propagation.PositionVelocity{Time: t, Position: pos, Velocity: vel}, nil
}

// scenario maps element-set names to trajectories.
type scenario map[string]analytic

func (s scenario) factory(es tle.ElementSet) (propagation.Propagator, error) {
	p, ok := s[es.Name]
	if !ok {
		return nil, errors.New("no trajectory for " + es.Name)
	}
	return p, nil
}

func (s scenario) engine() *Engine {
	return NewEngine(s.factory, testLogger)
}

func set(id int, name string, epoch time.Time) []tle.ElementSet {
	return []tle.ElementSet{{NORADID: id, Name: name, Epoch: epoch}}
}

func static(p geometry.Vec) motion {
	return func(time.Time) (geometry.Vec, geometry.Vec) { return p, geometry.Vec{} }
}

// circular moves on a circle in the XY plane with phase zero at epoch.
func circular(radius, period float64, epoch time.Time) motion {
	w := 2 * math.Pi / period
	return func(t time.Time) (geometry.Vec, geometry.Vec) {
		s, c := math.Sincos(w * t.Sub(epoch).Seconds())
		return geometry.Vec{X: radius * c, Y: radius * s},
			geometry.Vec{X: -radius * w * s, Y: radius * w * c}
	}
}

// offsetY sits at base + (0, y(t), 0).
func offsetY(base geometry.Vec, y func(tau float64) float64, epoch time.Time) motion {
	return func(t time.Time) (geometry.Vec, geometry.Vec) {
		return geometry.Add(base, geometry.Vec{Y: y(t.Sub(epoch).Seconds())}), geometry.Vec{}
	}
}

var base = geometry.Vec{X: 7000}

// wavy has five local minima of roughly 12.5, 17.5, 22.5, 27.5 and 32.5 km
// over [t0, t0+5h].
func wavy() scenario {
	const period = 3600.0
	return scenario{
		"A": {m: static(base)},
		"B": {m: offsetY(base, func(tau float64) float64 {
			return 60 + 50*math.Cos(2*math.Pi*tau/period) + 5*tau/period
		}, t0)},
	}
}

func TestTrackActive(t *testing.T) {
	e1, e2, e3 := t0, t0.Add(12*time.Hour), t0.Add(24*time.Hour)
	sc := scenario{"A": {m: static(base)}}
	// Out of order on purpose.
	sets := []tle.ElementSet{
		{NORADID: 1, Name: "A", Epoch: e3, Line1: "e3"},
		{NORADID: 1, Name: "A", Epoch: e1, Line1: "e1"},
		{NORADID: 1, Name: "A", Epoch: e2, Line1: "e2"},
	}
	tr := NewTrack(sets, sc.factory, testLogger)

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"before first epoch", e1.Add(-time.Hour), "e1"},
		{"at first epoch", e1, "e1"},
		{"between", e1.Add(6 * time.Hour), "e1"},
		{"at second epoch", e2, "e2"},
		{"just before third", e3.Add(-time.Nanosecond), "e2"},
		{"after last", e3.Add(48 * time.Hour), "e3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tr.Active(tt.at).Line1; got != tt.want {
				t.Errorf("Active(%v) = %s, want %s", tt.at, got, tt.want)
			}
		})
	}
}

func TestNewTrackDropsFailedSets(t *testing.T) {
	sc := scenario{"A": {m: static(base)}}
	sets := []tle.ElementSet{
		{NORADID: 1, Name: "A", Epoch: t0},
		{NORADID: 1, Name: "broken", Epoch: t0.Add(time.Hour)},
	}
	tr := NewTrack(sets, sc.factory, testLogger)
	if tr.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tr.Len())
	}
	if tr.Name() != "A" {
		t.Errorf("Name() = %q, want A", tr.Name())
	}
}

func TestRefineMinimum(t *testing.T) {
	// B passes A on a straight line: 1 km/s, 10 km miss distance.
	const missKm, speed = 10.0, 1.0
	tMin := t0.Add(1234567 * time.Millisecond)
	sc := scenario{
		"A": {m: static(base)},
		"B": {m: func(t time.Time) (geometry.Vec, geometry.Vec) {
			tau := t.Sub(tMin).Seconds()
			return geometry.Add(base, geometry.Vec{X: speed * tau, Y: missKm}), geometry.Vec{X: speed}
		}},
	}
	a := NewTrack(set(1, "A", t0), sc.factory, testLogger)
	b := NewTrack(set(2, "B", t0), sc.factory, testLogger)

	got := refineMinimum(a, b, t0.Add(1230*time.Second), DefaultStep)

	if dt := got.t.Sub(tMin); dt.Abs() > RefineTolerance {
		t.Errorf("refined time off by %v, want within %v", dt, RefineTolerance)
	}
	if !scalar.EqualWithinAbs(got.distance, missKm, 1e-3) {
		t.Errorf("refined distance = %.6f km, want %.3f", got.distance, missKm)
	}
}

func TestMergeNearby(t *testing.T) {
	at := func(s int) time.Time { return t0.Add(time.Duration(s) * time.Second) }
	cands := []candidate{
		{at(100), 5},
		{at(0), 9},
		{at(20), 3},
		{at(45), 4},
		{at(200), 7},
		{at(229), 8},
	}

	got := mergeNearby(cands, 30*time.Second)
	want := []candidate{{at(20), 3}, {at(100), 5}, {at(200), 7}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("mergeNearby = %v, want %v", got, want)
	}

	if again := mergeNearby(got, 30*time.Second); !reflect.DeepEqual(again, got) {
		t.Errorf("merging twice changed the result: %v -> %v", got, again)
	}
	if mergeNearby(nil, time.Second) != nil {
		t.Error("mergeNearby(nil) should be nil")
	}
}

func TestMergeNearbyMeasuresFromSurvivor(t *testing.T) {
	at := func(s int) time.Time { return t0.Add(time.Duration(s) * time.Second) }

	// 25 s merges into the 0 s survivor; 50 s is 50 s from that survivor
	// and stays separate even though it is 25 s from its raw neighbour.
	chain := []candidate{{at(0), 1}, {at(25), 5}, {at(50), 3}}
	got := mergeNearby(chain, 30*time.Second)
	want := []candidate{{at(0), 1}, {at(50), 3}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("mergeNearby = %v, want %v", got, want)
	}
	for i := 1; i < len(got); i++ {
		if gap := got[i].t.Sub(got[i-1].t); gap <= 30*time.Second {
			t.Errorf("survivors %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestFindConjunctionsCoplanarCircular(t *testing.T) {
	// Same radius, 1% period difference, in phase at t0. Over +/-3 days the
	// phase difference stays below pi, so there is exactly one approach.
	const radius, period = 7000.0, 5700.0
	sc := scenario{
		"A": {m: circular(radius, period, t0)},
		"B": {m: circular(radius, period*1.01, t0)},
	}
	start, end := tle.AnchorWindow(t0, 3)

	got, err := sc.engine().FindConjunctions(context.Background(),
		set(1, "A", start), set(2, "B", start), start, end, Options{})
	if err != nil {
		t.Fatalf("FindConjunctions: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d conjunctions, want 1: %+v", len(got), got)
	}

	c := got[0]
	if dt := c.Time.Sub(t0); dt.Abs() > DefaultStep {
		t.Errorf("conjunction at %v, %v from the crossing", c.Time, dt)
	}
	if c.DistanceKm > 0.01 {
		t.Errorf("DistanceKm = %.6f, want near 0", c.DistanceKm)
	}
	if c.EarthRelation != EarthClear {
		t.Errorf("EarthRelation = %s, want clear", c.EarthRelation)
	}
	if c.A.NORADID != 1 || c.B.NORADID != 2 {
		t.Errorf("identities = %d/%d, want 1/2", c.A.NORADID, c.B.NORADID)
	}
	if c.A.State.Geodetic.AltKm < 600 || c.A.State.Geodetic.AltKm > 650 {
		t.Errorf("A altitude = %.1f km, want about %.0f", c.A.State.Geodetic.AltKm, radius-6378)
	}
}

func TestFindConjunctionsDeterministic(t *testing.T) {
	sc := wavy()
	end := t0.Add(5 * time.Hour)
	run := func() []Conjunction {
		got, err := sc.engine().FindConjunctions(context.Background(),
			set(1, "A", t0), set(2, "B", t0), t0, end, Options{})
		if err != nil {
			t.Fatalf("FindConjunctions: %v", err)
		}
		return got
	}

	first, second := run(), run()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated searches differ:\n%+v\n%+v", first, second)
	}
}

func TestFindConjunctionsOrderingAndBracketing(t *testing.T) {
	sc := wavy()
	end := t0.Add(5 * time.Hour)
	got, err := sc.engine().FindConjunctions(context.Background(),
		set(1, "A", t0), set(2, "B", t0), t0, end, Options{})
	if err != nil {
		t.Fatalf("FindConjunctions: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d conjunctions, want 5", len(got))
	}

	for i, want := range []float64{12.5, 17.5, 22.5, 27.5, 32.5} {
		if !scalar.EqualWithinAbs(got[i].DistanceKm, want, 0.1) {
			t.Errorf("result %d distance = %.3f, want about %.1f", i, got[i].DistanceKm, want)
		}
	}

	a := NewTrack(set(1, "A", t0), sc.factory, testLogger)
	b := NewTrack(set(2, "B", t0), sc.factory, testLogger)
	for i, c := range got {
		if i > 0 && c.DistanceKm < got[i-1].DistanceKm {
			t.Errorf("results not sorted by distance at %d", i)
		}
		if c.Time.Before(t0) || c.Time.After(end) {
			t.Errorf("result %d at %v outside window", i, c.Time)
		}
		for _, off := range []time.Duration{-DefaultStep, DefaultStep} {
			d, ok := distanceAt(a, b, c.Time.Add(off))
			if ok && d < c.DistanceKm {
				t.Errorf("result %d (%.3f km) not a minimum: %.3f km at %+v", i, c.DistanceKm, d, off)
			}
		}
	}
}

func TestFindConjunctionsLimits(t *testing.T) {
	sc := wavy()
	end := t0.Add(5 * time.Hour)
	all, err := sc.engine().FindConjunctions(context.Background(),
		set(1, "A", t0), set(2, "B", t0), t0, end, Options{})
	if err != nil {
		t.Fatalf("FindConjunctions: %v", err)
	}

	tests := []struct {
		name string
		opts Options
		want int
	}{
		{"max results", Options{MaxResults: 2}, 2},
		{"max distance", Options{MaxDistanceKm: 20}, 2},
		{"both", Options{MaxResults: 1, MaxDistanceKm: 30}, 1},
		{"distance excludes all", Options{MaxDistanceKm: 5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sc.engine().FindConjunctions(context.Background(),
				set(1, "A", t0), set(2, "B", t0), t0, end, tt.opts)
			if err != nil {
				t.Fatalf("FindConjunctions: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d results, want %d", len(got), tt.want)
			}
			for i, c := range got {
				if tt.opts.MaxDistanceKm > 0 && c.DistanceKm > tt.opts.MaxDistanceKm {
					t.Errorf("result %d at %.3f km exceeds %.1f", i, c.DistanceKm, tt.opts.MaxDistanceKm)
				}
				if !c.Time.Equal(all[i].Time) {
					t.Errorf("result %d is not the %d-th closest overall", i, i)
				}
			}
		})
	}
}

func TestFindConjunctionsEmptyInput(t *testing.T) {
	sc := wavy()
	eng := sc.engine()
	tests := []struct {
		name       string
		a, b       []tle.ElementSet
		start, end time.Time
	}{
		{"no sets for A", nil, set(2, "B", t0), t0, t0.Add(time.Hour)},
		{"no sets for B", set(1, "A", t0), nil, t0, t0.Add(time.Hour)},
		{"empty window", set(1, "A", t0), set(2, "B", t0), t0, t0},
		{"reversed window", set(1, "A", t0), set(2, "B", t0), t0.Add(time.Hour), t0},
		{"no usable sets", set(1, "broken", t0), set(2, "B", t0), t0, t0.Add(time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eng.FindConjunctions(context.Background(), tt.a, tt.b, tt.start, tt.end, Options{})
			if err != nil {
				t.Fatalf("FindConjunctions: %v", err)
			}
			if got == nil || len(got) != 0 {
				t.Errorf("got %v, want empty non-nil slice", got)
			}
		})
	}
}

func TestFindConjunctionsCancelled(t *testing.T) {
	sc := wavy()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sc.engine().FindConjunctions(ctx, set(1, "A", t0), set(2, "B", t0), t0, t0.Add(time.Hour), Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestGapPolicies(t *testing.T) {
	// V-shaped distance with its 1 km minimum at t0, followed by a
	// propagation gap from 10 s to 200 s after it.
	sc := scenario{
		"A": {m: static(base)},
		"B": {
			m: offsetY(base, func(tau float64) float64 { return 1 + 0.1*math.Abs(tau) }, t0),
			fail: func(t time.Time) bool {
				tau := t.Sub(t0).Seconds()
				return tau > 10 && tau < 200
			},
		},
	}
	start, end := t0.Add(-10*time.Minute), t0.Add(10*time.Minute)

	search := func(p GapPolicy) []Conjunction {
		got, err := sc.engine().FindConjunctions(context.Background(),
			set(1, "A", start), set(2, "B", start), start, end, Options{GapPolicy: p})
		if err != nil {
			t.Fatalf("FindConjunctions(%s): %v", p, err)
		}
		return got
	}

	inf := search(GapAsInfinity)
	if len(inf) == 0 {
		t.Fatal("GapAsInfinity found nothing")
	}
	if dt := inf[0].Time.Sub(t0); dt.Abs() > RefineTolerance {
		t.Errorf("GapAsInfinity closest at %v from the true minimum", dt)
	}
	if !scalar.EqualWithinAbs(inf[0].DistanceKm, 1, 0.01) {
		t.Errorf("GapAsInfinity closest = %.4f km, want 1", inf[0].DistanceKm)
	}

	if skip := search(GapSkip); len(skip) != 0 {
		t.Errorf("GapSkip found %d results across the gap, want 0: %+v", len(skip), skip)
	}
}

func TestParseGapPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    GapPolicy
		wantErr bool
	}{
		{"", GapAsInfinity, false},
		{"infinity", GapAsInfinity, false},
		{"INF", GapAsInfinity, false},
		{" skip ", GapSkip, false},
		{"zero", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGapPolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGapPolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseGapPolicy(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestClassifyEarthRelation(t *testing.T) {
	tests := []struct {
		name     string
		a, b     geometry.Vec
		want     EarthRelation
		wantMiss float64
	}{
		{"opposite sides", geometry.Vec{X: 7000}, geometry.Vec{X: -7000}, EarthObstructed, 0},
		{"looking down", geometry.Vec{Z: 7000}, geometry.Vec{Z: 6800}, EarthBackground, 6800},
		{"side by side", geometry.Vec{X: 7000}, geometry.Vec{X: 7000, Y: 50}, EarthClear, 7000},
		{"chord above the limb", geometry.Vec{X: -3000, Y: 6600}, geometry.Vec{X: 3000, Y: 6600}, EarthClear, 6600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, miss := classifyEarthRelation(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("relation = %s, want %s", got, tt.want)
			}
			if !scalar.EqualWithinAbs(miss, tt.wantMiss, 1e-6) {
				t.Errorf("miss = %.6f km, want %.6f", miss, tt.wantMiss)
			}
		})
	}
}

func TestPhaseAngle(t *testing.T) {
	b := geometry.Vec{X: 7000}
	tests := []struct {
		name string
		a    geometry.Vec
		sun  geometry.Vec
		want float64
	}{
		{"sun behind observer", geometry.Vec{X: 8000}, geometry.Vec{X: 1.5e8}, 0},
		{"sun opposite observer", geometry.Vec{X: 6000}, geometry.Vec{X: 1.5e8}, 180},
		{"quadrature", geometry.Vec{X: 7000, Y: 100}, geometry.Vec{X: 1.5e8}, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := phaseAngle(tt.a, b, tt.sun); !scalar.EqualWithinAbs(got, tt.want, 1e-3) {
				t.Errorf("phaseAngle = %.6f deg, want %.1f", got, tt.want)
			}
		})
	}
}

func TestSampleDistanceCurve(t *testing.T) {
	sc := scenario{
		"A": {m: static(base)},
		"B": {
			m: static(geometry.Add(base, geometry.Vec{Y: 100})),
			fail: func(t time.Time) bool {
				return t.Equal(t0.Add(2 * time.Minute))
			},
		},
	}
	eng := sc.engine()
	a, b := set(1, "A", t0), set(2, "B", t0)
	end := t0.Add(4 * time.Minute)

	got := eng.SampleDistanceCurve(a, b, t0, end, 5)
	if len(got) != 5 {
		t.Fatalf("got %d samples, want 5", len(got))
	}
	if !got[0].Time.Equal(t0) || !got[4].Time.Equal(end) {
		t.Errorf("endpoints = %v..%v, want %v..%v", got[0].Time, got[4].Time, t0, end)
	}
	for i, s := range got {
		if want := t0.Add(time.Duration(i) * time.Minute); !s.Time.Equal(want) {
			t.Errorf("sample %d at %v, want %v", i, s.Time, want)
		}
		if i == 2 {
			if s.OK || !math.IsInf(s.DistanceKm, 1) {
				t.Errorf("failed sample = %+v, want +Inf and !OK", s)
			}
			continue
		}
		if !s.OK || !scalar.EqualWithinAbs(s.DistanceKm, 100, 1e-9) {
			t.Errorf("sample %d = %+v, want 100 km", i, s)
		}
	}

	raw, err := json.Marshal(got[2])
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"distance_km":null`) {
		t.Errorf("failed sample JSON = %s, want null distance", raw)
	}

	for _, n := range []int{-1, 0, 1} {
		if s := eng.SampleDistanceCurve(a, b, t0, end, n); s == nil || len(s) != 0 {
			t.Errorf("n=%d: got %v, want empty", n, s)
		}
	}
	if s := eng.SampleDistanceCurve(nil, b, t0, end, 5); len(s) != 0 {
		t.Errorf("empty A: got %d samples", len(s))
	}
	if s := eng.SampleDistanceCurve(a, b, end, t0, 5); len(s) != 0 {
		t.Errorf("reversed window: got %d samples", len(s))
	}
}

func TestCurrentDistance(t *testing.T) {
	sc := scenario{
		"A": {m: static(base)},
		"B": {
			m:    static(geometry.Add(base, geometry.Vec{Z: 250})),
			fail: func(t time.Time) bool { return t.After(t0.Add(time.Hour)) },
		},
	}
	eng := sc.engine()
	a, b := set(1, "A", t0), set(2, "B", t0)

	r, ok := eng.CurrentDistance(a, b, t0)
	if !ok {
		t.Fatal("CurrentDistance failed")
	}
	if !scalar.EqualWithinAbs(r.DistanceKm, 250, 1e-9) {
		t.Errorf("DistanceKm = %v, want 250", r.DistanceKm)
	}
	if r.A.Name != "A" || r.B.NORADID != 2 {
		t.Errorf("identities = %+v / %+v", r.A, r.B)
	}

	if _, ok := eng.CurrentDistance(a, b, t0.Add(2*time.Hour)); ok {
		t.Error("CurrentDistance succeeded inside a propagation gap")
	}
	if _, ok := eng.CurrentDistance(nil, b, t0); ok {
		t.Error("CurrentDistance succeeded without sets for A")
	}
}

func TestSearchPairs(t *testing.T) {
	sc := wavy()
	eng := sc.engine()
	end := t0.Add(5 * time.Hour)
	reqs := []PairRequest{
		{ID: "wavy", A: set(1, "A", t0), B: set(2, "B", t0), Start: t0, End: end},
		{ID: "empty", A: nil, B: set(2, "B", t0), Start: t0, End: end},
		{ID: "capped", A: set(1, "A", t0), B: set(2, "B", t0), Start: t0, End: end, Options: Options{MaxResults: 3}},
	}

	got := eng.SearchPairs(context.Background(), reqs, 2)
	if len(got) != len(reqs) {
		t.Fatalf("got %d results, want %d", len(got), len(reqs))
	}
	wantCounts := []int{5, 0, 3}
	for i, r := range got {
		if r.ID != reqs[i].ID {
			t.Errorf("result %d ID = %q, want %q", i, r.ID, reqs[i].ID)
		}
		if r.Error != "" {
			t.Errorf("result %d error: %s", i, r.Error)
		}
		if len(r.Conjunctions) != wantCounts[i] {
			t.Errorf("result %d has %d conjunctions, want %d", i, len(r.Conjunctions), wantCounts[i])
		}
	}
}

func TestSearchPairsCancelled(t *testing.T) {
	sc := wavy()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reqs := make([]PairRequest, 6)
	for i := range reqs {
		reqs[i] = PairRequest{ID: string(rune('a' + i)), A: set(1, "A", t0), B: set(2, "B", t0), Start: t0, End: t0.Add(time.Hour)}
	}
	for i, r := range sc.engine().SearchPairs(ctx, reqs, 2) {
		if r.ID != reqs[i].ID {
			t.Errorf("result %d ID = %q, want %q", i, r.ID, reqs[i].ID)
		}
		if r.Error == "" {
			t.Errorf("result %d has no error after cancellation", i)
		}
	}
}

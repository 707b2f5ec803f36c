package conjunction

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/kvsankar/sattosat/data"
	"github.com/kvsankar/sattosat/internal/propagation"
	"github.com/kvsankar/sattosat/internal/tle"
)

// The bundled WorldView-3 / Starlink-35956 histories bracket a known close
// pass near the profile anchor.
func TestBundledPairNearAnchor(t *testing.T) {
	if testing.Short() {
		t.Skip("full SGP4 scan")
	}

	src := tle.NewFSSource(data.Seeds(), testLogger)
	wv3, err := src.Load(40115)
	if err != nil || len(wv3) == 0 {
		t.Fatalf("load 40115: %v (%d sets)", err, len(wv3))
	}
	starlink, err := src.Load(66620)
	if err != nil || len(starlink) == 0 {
		t.Fatalf("load 66620: %v (%d sets)", err, len(starlink))
	}

	for _, backend := range []string{propagation.BackendGoSatellite, propagation.BackendLibSGP4} {
		t.Run(backend, func(t *testing.T) {
			factory, err := propagation.NewFactory(backend)
			if err != nil {
				t.Fatalf("NewFactory: %v", err)
			}
			eng := NewEngine(factory, testLogger)
			start, end := tle.AnchorWindow(t0, 3)

			got, err := eng.FindConjunctions(context.Background(), wv3, starlink, start, end,
				Options{MaxDistanceKm: 1000})
			if err != nil {
				t.Fatalf("FindConjunctions: %v", err)
			}
			if len(got) == 0 {
				t.Fatal("no conjunctions under 1000 km")
			}

			var nearAnchor bool
			for i, c := range got {
				if math.IsNaN(c.DistanceKm) || c.DistanceKm <= 0 || c.DistanceKm > 1000 {
					t.Errorf("result %d distance = %v", i, c.DistanceKm)
				}
				if i > 0 && c.DistanceKm < got[i-1].DistanceKm {
					t.Errorf("results not sorted at %d", i)
				}
				if c.RelativeVelocityKmS <= 0 || c.RelativeVelocityKmS > 16 {
					t.Errorf("result %d relative velocity = %v km/s", i, c.RelativeVelocityKmS)
				}
				if c.Time.Sub(t0).Abs() <= 5*time.Minute {
					nearAnchor = true
				}
			}
			if !nearAnchor {
				t.Errorf("no conjunction within 5 minutes of %v; closest is %.1f km at %v",
					t0, got[0].DistanceKm, got[0].Time)
			}
		})
	}
}

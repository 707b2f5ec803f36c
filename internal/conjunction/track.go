// Package conjunction finds and classifies close approaches between two
// satellites, each described by a history of element sets.
//
// Every search builds its own Tracks from the caller's element sets and uses
// them from a single goroutine, so concurrent searches never share mutable
// state.
package conjunction

import (
	"log/slog"
	"sort"
	"time"

	"github.com/kvsankar/sattosat/internal/propagation"
	"github.com/kvsankar/sattosat/internal/tle"
)

// Track is a multi-epoch satellite track: element sets sorted ascending by
// epoch, each with its propagator.
type Track struct {
	sets  []tle.ElementSet
	props []propagation.Propagator

	failures int // propagation errors seen by the owning search
}

// NewTrack builds a track from sets. Element sets whose propagator cannot be
// initialised are dropped with a warning. The result may be empty.
func NewTrack(sets []tle.ElementSet, factory propagation.Factory, logger *slog.Logger) *Track {
	sorted := append([]tle.ElementSet(nil), sets...)
	tle.SortByEpoch(sorted)

	tr := &Track{
		sets:  make([]tle.ElementSet, 0, len(sorted)),
		props: make([]propagation.Propagator, 0, len(sorted)),
	}
	for _, es := range sorted {
		p, err := factory(es)
		if err != nil {
			logger.Warn("dropping element set", "norad_id", es.NORADID, "epoch", es.Epoch, "error", err)
			continue
		}
		tr.sets = append(tr.sets, es)
		tr.props = append(tr.props, p)
	}
	return tr
}

// Len returns the number of usable element sets.
func (tr *Track) Len() int { return len(tr.sets) }

// active returns the index of the element set with the latest epoch <= t,
// or 0 when t precedes every epoch. The track must be non-empty.
func (tr *Track) active(t time.Time) int {
	// First index whose epoch is after t.
	i := sort.Search(len(tr.sets), func(i int) bool { return tr.sets[i].Epoch.After(t) })
	if i == 0 {
		return 0
	}
	return i - 1
}

// Active returns the element set used for instant t.
func (tr *Track) Active(t time.Time) tle.ElementSet {
	return tr.sets[tr.active(t)]
}

// Name returns the display name from the newest element set.
func (tr *Track) Name() string {
	if len(tr.sets) == 0 {
		return ""
	}
	return tr.sets[len(tr.sets)-1].Name
}

// NORADID returns the catalog number from the newest element set.
func (tr *Track) NORADID() int {
	if len(tr.sets) == 0 {
		return 0
	}
	return tr.sets[len(tr.sets)-1].NORADID
}

// stateAt propagates the active element set to t. ok is false on failure.
func (tr *Track) stateAt(t time.Time) (propagation.PositionVelocity, bool) {
	if len(tr.sets) == 0 {
		return propagation.PositionVelocity{}, false
	}
	pv, err := tr.props[tr.active(t)].Propagate(t)
	if err != nil {
		tr.failures++
		return propagation.PositionVelocity{}, false
	}
	return pv, true
}

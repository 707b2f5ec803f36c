package tle

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	// ErrUnknownSatellite is returned for a NORAD ID the catalog has never
	// seen and no source can supply.
	ErrUnknownSatellite = errors.New("unknown satellite")
	// ErrNoElementSets is returned when a satellite is known but its
	// element-set list is empty.
	ErrNoElementSets = errors.New("no element sets")
)

// Source supplies element sets for a satellite on first use. Load returns
// (nil, nil) when the source has nothing for id.
type Source interface {
	Load(id int) ([]ElementSet, error)
}

// Catalog is a concurrency-safe registry of element-set histories keyed by
// NORAD ID. Each satellite is seeded from the configured sources at most
// once, and only when Seed is called for it.
type Catalog struct {
	logger  *slog.Logger
	sources []Source

	mu        sync.RWMutex
	sets      map[int][]ElementSet
	revisions map[int]uint64
	seeded    map[int]bool

	seedMu sync.Mutex // serializes source loads
}

// NewCatalog creates an empty Catalog backed by the given sources, consulted
// in order.
func NewCatalog(logger *slog.Logger, sources ...Source) *Catalog {
	return &Catalog{
		logger:    logger,
		sources:   sources,
		sets:      make(map[int][]ElementSet),
		revisions: make(map[int]uint64),
		seeded:    make(map[int]bool),
	}
}

// Put merges element sets into the catalog. A set whose epoch matches an
// existing one for the same satellite replaces it. Each touched satellite
// gets a new revision.
func (c *Catalog) Put(sets ...ElementSet) {
	if len(sets) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, incoming := range GroupByNORAD(sets) {
		byEpoch := make(map[int64]int, len(c.sets[id]))
		merged := append([]ElementSet(nil), c.sets[id]...)
		for i, s := range merged {
			byEpoch[s.Epoch.UnixNano()] = i
		}
		for _, s := range incoming {
			if i, ok := byEpoch[s.Epoch.UnixNano()]; ok {
				merged[i] = s
				continue
			}
			byEpoch[s.Epoch.UnixNano()] = len(merged)
			merged = append(merged, s)
		}
		SortByEpoch(merged)
		c.sets[id] = merged
		c.revisions[id]++
	}
}

// Get returns a copy of the element sets for id, sorted by epoch.
func (c *Catalog) Get(id int) ([]ElementSet, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sets, ok := c.sets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSatellite, id)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("%w for satellite %d", ErrNoElementSets, id)
	}
	return append([]ElementSet(nil), sets...), nil
}

// Seed loads id from the configured sources the first time it is called for
// that id and returns the catalog's element sets. Later calls only read.
// A failed load is not remembered, so the next Seed retries.
func (c *Catalog) Seed(id int) ([]ElementSet, error) {
	c.mu.RLock()
	done := c.seeded[id]
	c.mu.RUnlock()
	if done {
		return c.Get(id)
	}

	c.seedMu.Lock()
	defer c.seedMu.Unlock()

	c.mu.RLock()
	done = c.seeded[id]
	c.mu.RUnlock()
	if done {
		return c.Get(id)
	}

	var loaded []ElementSet
	for _, src := range c.sources {
		sets, err := src.Load(id)
		if err != nil {
			return nil, fmt.Errorf("seeding satellite %d: %w", id, err)
		}
		for _, s := range sets {
			if s.NORADID == id {
				loaded = append(loaded, s)
			}
		}
	}

	c.Put(loaded...)

	c.mu.Lock()
	c.seeded[id] = true
	c.mu.Unlock()

	c.logger.Info("satellite seeded", "norad_id", id, "element_sets", len(loaded))
	return c.Get(id)
}

// Revision returns a counter that changes whenever id's element sets change.
// Zero means the satellite has never been stored.
func (c *Catalog) Revision(id int) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revisions[id]
}

// IDs returns the NORAD IDs currently stored, ascending.
func (c *Catalog) IDs() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]int, 0, len(c.sets))
	for id := range c.sets {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

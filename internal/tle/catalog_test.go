package tle

import (
	"errors"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/kvsankar/sattosat/data"
)

type countingSource struct {
	mu    sync.Mutex
	calls map[int]int
	sets  map[int][]ElementSet
	err   error
}

func (s *countingSource) Load(id int) ([]ElementSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[int]int)
	}
	s.calls[id]++
	if s.err != nil {
		return nil, s.err
	}
	return s.sets[id], nil
}

func mustSet(t *testing.T, line1, line2 string) ElementSet {
	t.Helper()
	es, err := NewElementSet("", line1, line2)
	if err != nil {
		t.Fatalf("NewElementSet: %v", err)
	}
	return es
}

func TestCatalogPutGet(t *testing.T) {
	c := NewCatalog(testLogger)

	if _, err := c.Get(40115); !errors.Is(err, ErrUnknownSatellite) {
		t.Fatalf("Get on empty catalog: err = %v, want ErrUnknownSatellite", err)
	}
	if rev := c.Revision(40115); rev != 0 {
		t.Errorf("Revision = %d, want 0", rev)
	}

	later := mustSet(t, wv3LaterLine1, wv3LaterLine2)
	earlier := mustSet(t, wv3Line1, wv3Line2)
	c.Put(later, earlier)

	sets, err := c.Get(40115)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sets) != 2 || !sets[0].Epoch.Before(sets[1].Epoch) {
		t.Fatalf("Get returned %d sets, want 2 sorted", len(sets))
	}
	rev := c.Revision(40115)

	// Same epoch replaces rather than duplicates.
	renamed := earlier
	renamed.Name = "WV3"
	c.Put(renamed)
	sets, _ = c.Get(40115)
	if len(sets) != 2 || sets[0].Name != "WV3" {
		t.Errorf("after replace: %d sets, first name %q", len(sets), sets[0].Name)
	}
	if c.Revision(40115) == rev {
		t.Error("Revision did not change after Put")
	}

	// Callers get a copy.
	sets[0].Name = "mutated"
	again, _ := c.Get(40115)
	if again[0].Name != "WV3" {
		t.Error("Get exposed internal slice")
	}

	if ids := c.IDs(); len(ids) != 1 || ids[0] != 40115 {
		t.Errorf("IDs = %v", ids)
	}
}

func TestCatalogSeedIdempotent(t *testing.T) {
	src := &countingSource{sets: map[int][]ElementSet{
		40115: {mustSet(t, wv3Line1, wv3Line2)},
	}}
	c := NewCatalog(testLogger, src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Seed(40115); err != nil {
				t.Errorf("Seed: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := src.calls[40115]; n != 1 {
		t.Errorf("source loaded %d times, want 1", n)
	}

	// Manually added data survives a repeat Seed.
	c.Put(mustSet(t, wv3LaterLine1, wv3LaterLine2))
	sets, err := c.Seed(40115)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if len(sets) != 2 {
		t.Errorf("got %d sets after re-seed, want 2", len(sets))
	}
}

func TestCatalogSeedUnknown(t *testing.T) {
	src := &countingSource{}
	c := NewCatalog(testLogger, src)

	if _, err := c.Seed(99999); !errors.Is(err, ErrUnknownSatellite) {
		t.Errorf("err = %v, want ErrUnknownSatellite", err)
	}
	c.Seed(99999)
	if n := src.calls[99999]; n != 1 {
		t.Errorf("source loaded %d times, want 1", n)
	}
}

func TestCatalogSeedRetriesAfterError(t *testing.T) {
	src := &countingSource{err: errors.New("read failed")}
	c := NewCatalog(testLogger, src)

	if _, err := c.Seed(40115); err == nil {
		t.Fatal("expected error")
	}
	src.err = nil
	src.sets = map[int][]ElementSet{40115: {mustSet(t, wv3Line1, wv3Line2)}}
	if _, err := c.Seed(40115); err != nil {
		t.Fatalf("retry Seed: %v", err)
	}
}

func TestFSSource(t *testing.T) {
	fsys := fstest.MapFS{
		"40115.tle":  {Data: []byte("WORLDVIEW-3\n" + wv3Line1 + "\n" + wv3Line2 + "\n")},
		"25544.json": {Data: []byte(ommISS)},
	}
	src := NewFSSource(fsys, testLogger)

	sets, err := src.Load(40115)
	if err != nil || len(sets) != 1 || sets[0].Name != "WORLDVIEW-3" {
		t.Errorf("Load(40115) = %d sets, %v", len(sets), err)
	}

	sets, err = src.Load(25544)
	if err != nil || len(sets) != 1 {
		t.Errorf("Load(25544) = %d sets, %v", len(sets), err)
	}

	sets, err = src.Load(1)
	if err != nil || sets != nil {
		t.Errorf("Load(missing) = %v, %v; want nil, nil", sets, err)
	}
}

func TestDirSourceMissingDir(t *testing.T) {
	src := NewDirSource(t.TempDir()+"/nope", testLogger)
	sets, err := src.Load(40115)
	if err != nil || sets != nil {
		t.Errorf("Load = %v, %v; want nil, nil", sets, err)
	}
}

func TestBundledSeeds(t *testing.T) {
	c := NewCatalog(testLogger, NewFSSource(data.Seeds(), testLogger))

	wv3, err := c.Seed(40115)
	if err != nil {
		t.Fatalf("Seed(40115): %v", err)
	}
	if len(wv3) != 10 {
		t.Errorf("WorldView-3: got %d sets, want 10", len(wv3))
	}

	starlink, err := c.Seed(66620)
	if err != nil {
		t.Fatalf("Seed(66620): %v", err)
	}
	if len(starlink) != 12 {
		t.Errorf("Starlink: got %d sets, want 12", len(starlink))
	}
	if starlink[0].Name != "STARLINK-35956" {
		t.Errorf("Name = %q", starlink[0].Name)
	}
}

func TestProfiles(t *testing.T) {
	profiles, err := LoadProfiles(data.Files, "profiles.json")
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}

	p, err := FindProfile(profiles, "WV3-STARLINK35956-Picture")
	if err != nil {
		t.Fatalf("FindProfile: %v", err)
	}

	wantAnchor := time.Date(2025, 12, 19, 1, 30, 19, 0, time.UTC)
	if !p.Anchor.Equal(wantAnchor) {
		t.Errorf("Anchor = %v, want %v", p.Anchor, wantAnchor)
	}

	start, end := p.Window(3)
	if !start.Equal(wantAnchor.Add(-72*time.Hour)) || !end.Equal(wantAnchor.Add(72*time.Hour)) {
		t.Errorf("Window(3) = %v .. %v", start, end)
	}

	a, b, err := p.Load(data.Files, testLogger)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(a) != 10 || len(b) != 12 {
		t.Errorf("Load = %d, %d sets; want 10, 12", len(a), len(b))
	}

	if _, err := FindProfile(profiles, "nope"); !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("err = %v, want ErrUnknownProfile", err)
	}
}

func TestLoadProfilesRejectsWrongPairSize(t *testing.T) {
	fsys := fstest.MapFS{
		"p.json": {Data: []byte(`[{"name":"solo","anchor":"2025-12-19T00:00:00Z","satellites":[{"name":"x","noradId":1}]}]`)},
	}
	if _, err := LoadProfiles(fsys, "p.json"); err == nil {
		t.Fatal("expected error for single-satellite profile")
	}
}

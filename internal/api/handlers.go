package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kvsankar/sattosat/internal/cache"
	"github.com/kvsankar/sattosat/internal/conjunction"
	"github.com/kvsankar/sattosat/internal/httputil"
	"github.com/kvsankar/sattosat/internal/tle"
)

type conjunctionsRequest struct {
	pairRequest
	searchParams
}

type conjunctionsResponse struct {
	Start        time.Time                 `json:"start"`
	End          time.Time                 `json:"end"`
	StepSeconds  float64                   `json:"step_seconds"`
	GapPolicy    string                    `json:"gap_policy"`
	Cached       bool                      `json:"cached"`
	Count        int                       `json:"count"`
	Conjunctions []conjunction.Conjunction `json:"conjunctions"`
}

// handleConjunctions runs (or serves from cache) one conjunction search.
// POST /api/v1/conjunctions
func (s *Server) handleConjunctions(w http.ResponseWriter, r *http.Request) {
	var req conjunctionsRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	pair, err := s.resolvePair(req.pairRequest)
	if err != nil {
		writeError(w, err)
		return
	}
	opts, err := s.options(req.searchParams, pair.end.Sub(pair.start))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := conjunctionsResponse{
		Start:       pair.start,
		End:         pair.end,
		StepSeconds: opts.Step.Seconds(),
		GapPolicy:   opts.GapPolicy.String(),
	}

	key := cache.Fingerprint("conjunctions", pair.a.fingerprint, pair.b.fingerprint,
		pair.start.Format(time.RFC3339Nano), pair.end.Format(time.RFC3339Nano),
		opts.Step, opts.MaxResults, opts.MaxDistanceKm, opts.GapPolicy)
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			resp.Cached = true
			resp.Conjunctions = v.([]conjunction.Conjunction)
			resp.Count = len(resp.Conjunctions)
			httputil.WriteJSON(w, http.StatusOK, resp)
			return
		}
	}

	conjs, err := s.engine.FindConjunctions(r.Context(), pair.a.sets, pair.b.sets, pair.start, pair.end, opts)
	if err != nil {
		// Only a cancelled request gets here; the client is gone.
		s.logger.Debug("search abandoned", "error", err)
		return
	}
	if s.cache != nil {
		s.cache.Put(key, conjs, tags(pair.a, pair.b)...)
	}

	resp.Conjunctions = conjs
	resp.Count = len(conjs)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type batchRequest struct {
	Pairs []batchPair `json:"pairs"`
}

type batchPair struct {
	ID string `json:"id"`
	pairRequest
	searchParams
}

// handleBatch runs independent searches on the engine's worker pool.
// POST /api/v1/conjunctions/batch
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Pairs) == 0 {
		writeError(w, badRequest("pairs must not be empty"))
		return
	}
	if len(req.Pairs) > s.limits.MaxBatch {
		writeError(w, badRequest("batch has %d pairs, more than the maximum of %d", len(req.Pairs), s.limits.MaxBatch).
			with("max_batch", s.limits.MaxBatch))
		return
	}

	reqs := make([]conjunction.PairRequest, len(req.Pairs))
	for i, p := range req.Pairs {
		pair, err := s.resolvePair(p.pairRequest)
		if err == nil {
			reqs[i].Options, err = s.options(p.searchParams, pair.end.Sub(pair.start))
		}
		if err != nil {
			var re *requestError
			if errors.As(err, &re) {
				re.msg = fmt.Sprintf("pairs[%d]: %s", i, re.msg)
			} else {
				err = fmt.Errorf("pairs[%d]: %w", i, err)
			}
			writeError(w, err)
			return
		}
		id := p.ID
		if id == "" {
			id = strconv.Itoa(i)
		}
		reqs[i].ID = id
		reqs[i].A, reqs[i].B = pair.a.sets, pair.b.sets
		reqs[i].Start, reqs[i].End = pair.start, pair.end
	}

	results := s.engine.SearchPairs(r.Context(), reqs, s.defaults.Workers)
	if r.Context().Err() != nil {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

type curveRequest struct {
	pairRequest
	Samples int `json:"samples,omitempty"`
}

type curveResponse struct {
	Start   time.Time                    `json:"start"`
	End     time.Time                    `json:"end"`
	Cached  bool                         `json:"cached"`
	Samples []conjunction.DistanceSample `json:"samples"`
}

// handleCurve samples the A-B distance evenly over a window.
// POST /api/v1/distance/curve
func (s *Server) handleCurve(w http.ResponseWriter, r *http.Request) {
	var req curveRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	n := req.Samples
	if n == 0 {
		n = s.defaults.Samples
	}
	if n < 2 || n > s.limits.MaxSamples {
		writeError(w, badRequest("samples must be between 2 and %d", s.limits.MaxSamples).
			with("max_samples", s.limits.MaxSamples))
		return
	}
	pair, err := s.resolvePair(req.pairRequest)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := curveResponse{Start: pair.start, End: pair.end}
	key := cache.Fingerprint("curve", pair.a.fingerprint, pair.b.fingerprint,
		pair.start.Format(time.RFC3339Nano), pair.end.Format(time.RFC3339Nano), n)
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			resp.Cached = true
			resp.Samples = v.([]conjunction.DistanceSample)
			httputil.WriteJSON(w, http.StatusOK, resp)
			return
		}
	}

	resp.Samples = s.engine.SampleDistanceCurve(pair.a.sets, pair.b.sets, pair.start, pair.end, n)
	if s.cache != nil {
		s.cache.Put(key, resp.Samples, tags(pair.a, pair.b)...)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// handleCurrent evaluates a catalog pair at one instant (default now).
// GET /api/v1/distance/current?a=40115&b=66620&t=2025-12-19T01:30:19Z
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var refs [2]satelliteRef
	for i, name := range []string{"a", "b"} {
		id, err := strconv.Atoi(q.Get(name))
		if err != nil || id <= 0 {
			writeError(w, badRequest("%s must be a NORAD ID", name))
			return
		}
		refs[i].ID = id
	}

	t := time.Now().UTC()
	if v := q.Get("t"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, badRequest("t must be RFC 3339"))
			return
		}
		t = parsed.UTC()
	}

	a, err := s.resolve(refs[0], "a")
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := s.resolve(refs[1], "b")
	if err != nil {
		writeError(w, err)
		return
	}

	reading, ok := s.engine.CurrentDistance(a.sets, b.sets, t)
	if !ok {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"ok": false, "time": t})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		conjunction.Reading
	}{true, reading})
}

type satelliteSummary struct {
	NORADID     int              `json:"norad_id"`
	Name        string           `json:"name"`
	Revision    uint64           `json:"revision"`
	Epochs      tle.EpochRange   `json:"epochs"`
	Count       int              `json:"count"`
	ElementSets []tle.ElementSet `json:"element_sets,omitempty"`
}

func summarize(id int, rev uint64, sets []tle.ElementSet, withSets bool) satelliteSummary {
	sum := satelliteSummary{
		NORADID:  id,
		Revision: rev,
		Epochs:   tle.Range(sets),
		Count:    len(sets),
	}
	if len(sets) > 0 {
		sum.Name = sets[len(sets)-1].Name
	}
	if withSets {
		sum.ElementSets = sets
	}
	return sum
}

// handleListSatellites lists the satellites loaded so far.
// GET /api/v1/satellites
func (s *Server) handleListSatellites(w http.ResponseWriter, r *http.Request) {
	ids := s.catalog.IDs()
	out := make([]satelliteSummary, 0, len(ids))
	for _, id := range ids {
		sets, err := s.catalog.Get(id)
		if err != nil {
			continue
		}
		out = append(out, summarize(id, s.catalog.Revision(id), sets, false))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"satellites": out})
}

// handleGetSatellite returns a satellite's element-set history, seeding it
// on first use.
// GET /api/v1/satellites/{norad_id}
func (s *Server) handleGetSatellite(w http.ResponseWriter, r *http.Request) {
	id, err := pathNORADID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sets, err := s.catalog.Seed(id)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summarize(id, s.catalog.Revision(id), sets, true))
}

// handlePutSatellite merges TLE text (2- or 3-line records) into a
// satellite's history and drops cached results that used it.
// PUT /api/v1/satellites/{norad_id}
func (s *Server) handlePutSatellite(w http.ResponseWriter, r *http.Request) {
	id, err := pathNORADID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.limits.MaxBodyBytes))
	if err != nil {
		writeError(w, fmt.Errorf("%w (limit %d bytes)", httputil.ErrBodyTooLarge, s.limits.MaxBodyBytes))
		return
	}
	parsed, err := tle.Parse(strings.NewReader(string(body)), s.logger)
	if err != nil {
		writeError(w, badRequest("%v", err))
		return
	}
	var sets []tle.ElementSet
	for _, es := range parsed {
		if es.NORADID == id {
			sets = append(sets, es)
		}
	}
	if len(sets) == 0 {
		writeError(w, badRequest("no valid element sets for NORAD %d in body", id))
		return
	}

	// Seed first so bundled history is merged rather than shadowed.
	if _, err := s.catalog.Seed(id); err != nil && !isNotFound(err) {
		writeError(w, err)
		return
	}
	s.catalog.Put(sets...)
	if s.cache != nil {
		s.cache.Invalidate(id)
	}

	all, err := s.catalog.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	s.logger.Info("element sets stored", "norad_id", id, "added", len(sets), "total", len(all))
	httputil.WriteJSON(w, http.StatusOK, summarize(id, s.catalog.Revision(id), all, false))
}

// handleCacheStats reports result cache statistics.
// GET /api/v1/cache/stats
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, struct {
		Enabled bool `json:"enabled"`
		cache.Stats
	}{true, s.cache.Stats()})
}

// handleIndex lists the API routes and bundled profiles.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	profiles := make([]string, len(s.profiles))
	for i, p := range s.profiles {
		profiles[i] = p.Name
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"service": "sattosat",
		"routes": []string{
			"POST /api/v1/conjunctions",
			"POST /api/v1/conjunctions/batch",
			"POST /api/v1/distance/curve",
			"GET /api/v1/distance/current",
			"GET /api/v1/satellites",
			"GET /api/v1/satellites/{norad_id}",
			"PUT /api/v1/satellites/{norad_id}",
			"GET /api/v1/stream/distance",
			"GET /api/v1/cache/stats",
		},
		"profiles": profiles,
	})
}

func pathNORADID(r *http.Request) (int, error) {
	raw := r.PathValue("norad_id")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid NORAD ID %q", raw)
	}
	return id, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, tle.ErrUnknownSatellite) || errors.Is(err, tle.ErrNoElementSets)
}

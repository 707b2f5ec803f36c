package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kvsankar/sattosat/internal/cache"
	"github.com/kvsankar/sattosat/internal/conjunction"
	"github.com/kvsankar/sattosat/internal/httputil"
	"github.com/kvsankar/sattosat/internal/tle"
)

// requestError is a client error with a status and extra body fields.
type requestError struct {
	status int
	msg    string
	fields map[string]any
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) *requestError {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

// with adds a field to the error body.
func (e *requestError) with(key string, v any) *requestError {
	if e.fields == nil {
		e.fields = make(map[string]any)
	}
	e.fields[key] = v
	return e
}

// writeError maps err to a JSON error response.
func writeError(w http.ResponseWriter, err error) {
	var re *requestError
	switch {
	case errors.As(err, &re):
		body := map[string]any{"error": re.msg}
		for k, v := range re.fields {
			body[k] = v
		}
		httputil.WriteJSON(w, re.status, body)
	case errors.Is(err, httputil.ErrBodyTooLarge):
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, tle.ErrUnknownSatellite), errors.Is(err, tle.ErrNoElementSets):
		httputil.WriteError(w, http.StatusNotFound, err.Error())
	default:
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// decode reads a JSON request body, turning decode failures into 400s.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	err := httputil.DecodeJSON(w, r, s.limits.MaxBodyBytes, v)
	if err == nil || errors.Is(err, httputil.ErrBodyTooLarge) {
		return err
	}
	return badRequest("%v", err)
}

// satelliteRef names a satellite in a request: a NORAD ID (number or numeric
// string) resolved through the catalog, or inline TLE text.
type satelliteRef struct {
	ID  int
	TLE string
}

func (ref *satelliteRef) UnmarshalJSON(b []byte) error {
	var id int
	if err := json.Unmarshal(b, &id); err == nil {
		ref.ID = id
		return nil
	}
	var text string
	if err := json.Unmarshal(b, &text); err != nil {
		return errors.New("satellite must be a NORAD ID or TLE text")
	}
	if n, err := strconv.Atoi(strings.TrimSpace(text)); err == nil {
		ref.ID = n
		return nil
	}
	ref.TLE = text
	return nil
}

func (ref satelliteRef) empty() bool { return ref.ID == 0 && ref.TLE == "" }

// resolved is a satellite's element sets plus what identifies them for
// caching: a catalog revision or a hash of the inline text.
type resolved struct {
	sets        []tle.ElementSet
	fingerprint string
	noradID     int // zero for inline element sets
}

func (s *Server) resolve(ref satelliteRef, label string) (resolved, error) {
	switch {
	case ref.TLE != "":
		sets, err := tle.Parse(strings.NewReader(ref.TLE), s.logger)
		if err != nil {
			return resolved{}, badRequest("%s: %v", label, err)
		}
		if len(sets) == 0 {
			return resolved{}, badRequest("%s: no valid element sets in TLE text", label)
		}
		return resolved{sets: sets, fingerprint: string(cache.Fingerprint("tle", ref.TLE))}, nil

	case ref.ID > 0:
		sets, err := s.catalog.Seed(ref.ID)
		if err != nil {
			return resolved{}, fmt.Errorf("%s: %w", label, err)
		}
		return resolved{
			sets:        sets,
			fingerprint: fmt.Sprintf("norad:%d@%d", ref.ID, s.catalog.Revision(ref.ID)),
			noradID:     ref.ID,
		}, nil

	case ref.empty():
		return resolved{}, badRequest("%s: satellite is required", label)
	default:
		return resolved{}, badRequest("%s: invalid NORAD ID %d", label, ref.ID)
	}
}

// tags returns the catalog satellites a result depends on.
func tags(rs ...resolved) []int {
	var ids []int
	for _, r := range rs {
		if r.noradID != 0 {
			ids = append(ids, r.noradID)
		}
	}
	return ids
}

// windowRequest is either an explicit [start, end] or an anchor with a
// half-width in days.
type windowRequest struct {
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
	Anchor *time.Time `json:"anchor,omitempty"`
	Days   float64    `json:"days,omitempty"`
}

// window resolves the request window, falling back to fallbackAnchor when
// neither form is given, and enforces the maximum length.
func (s *Server) window(wr windowRequest, fallbackAnchor *time.Time) (time.Time, time.Time, error) {
	var start, end time.Time
	switch {
	case wr.Anchor != nil && (wr.Start != nil || wr.End != nil):
		return start, end, badRequest("give either start/end or anchor/days, not both")
	case wr.Anchor != nil || (wr.Start == nil && wr.End == nil && fallbackAnchor != nil):
		anchor := fallbackAnchor
		if wr.Anchor != nil {
			anchor = wr.Anchor
		}
		days := wr.Days
		if days == 0 {
			days = s.defaults.Days
		}
		if days < 0 || math.IsNaN(days) {
			return start, end, badRequest("days must be positive")
		}
		start, end = tle.AnchorWindow(anchor.UTC(), days)
	case wr.Start != nil && wr.End != nil:
		start, end = wr.Start.UTC(), wr.End.UTC()
	default:
		return start, end, badRequest("start and end (or anchor) are required")
	}

	if !end.After(start) {
		return start, end, badRequest("end must be after start")
	}
	if end.Sub(start) > s.limits.MaxWindow {
		return start, end, badRequest("window exceeds the maximum of %g days", s.limits.MaxWindow.Hours()/24).
			with("max_window_days", s.limits.MaxWindow.Hours()/24)
	}
	return start, end, nil
}

// searchParams are the tunables of a conjunction search request.
type searchParams struct {
	StepSeconds   float64 `json:"step_seconds,omitempty"`
	MaxResults    int     `json:"max_results,omitempty"`
	MaxDistanceKm float64 `json:"max_distance_km,omitempty"`
	GapPolicy     string  `json:"gap_policy,omitempty"`
}

// options validates p against the limits for a window of the given length.
func (s *Server) options(p searchParams, span time.Duration) (conjunction.Options, error) {
	opts := conjunction.Options{
		Step:          s.defaults.Step,
		MaxResults:    s.defaults.MaxResults,
		MaxDistanceKm: p.MaxDistanceKm,
		GapPolicy:     s.defaults.GapPolicy,
	}

	if p.StepSeconds != 0 {
		opts.Step = time.Duration(p.StepSeconds * float64(time.Second))
	}
	if opts.Step < s.limits.MinStep || math.IsNaN(p.StepSeconds) {
		return opts, badRequest("step_seconds must be at least %g", s.limits.MinStep.Seconds()).
			with("min_step_seconds", s.limits.MinStep.Seconds())
	}
	if steps := int64(span / opts.Step); steps > int64(s.limits.MaxScanSteps) {
		return opts, badRequest("window/step needs %d scan steps, more than the maximum of %d", steps, s.limits.MaxScanSteps).
			with("max_scan_steps", s.limits.MaxScanSteps)
	}

	if p.MaxResults < 0 {
		return opts, badRequest("max_results must not be negative")
	}
	if p.MaxResults > 0 {
		opts.MaxResults = p.MaxResults
	}
	if p.MaxDistanceKm < 0 || math.IsNaN(p.MaxDistanceKm) {
		return opts, badRequest("max_distance_km must not be negative")
	}
	if p.GapPolicy != "" {
		g, err := conjunction.ParseGapPolicy(p.GapPolicy)
		if err != nil {
			return opts, badRequest("%v", err)
		}
		opts.GapPolicy = g
	}
	return opts, nil
}

// profileRefs returns the pair and anchor of a named profile.
func (s *Server) profileRefs(name string) (satelliteRef, satelliteRef, *time.Time, error) {
	p, err := tle.FindProfile(s.profiles, name)
	if err != nil {
		return satelliteRef{}, satelliteRef{}, nil, &requestError{status: http.StatusNotFound, msg: err.Error()}
	}
	anchor := p.Anchor
	return satelliteRef{ID: p.Satellites[0].NORADID}, satelliteRef{ID: p.Satellites[1].NORADID}, &anchor, nil
}

// pairRequest is the common shape of search and curve requests.
type pairRequest struct {
	A       satelliteRef `json:"a"`
	B       satelliteRef `json:"b"`
	Profile string       `json:"profile,omitempty"`
	windowRequest
}

// resolvedPair is a pairRequest with satellites and window resolved.
type resolvedPair struct {
	a, b       resolved
	start, end time.Time
}

func (s *Server) resolvePair(pr pairRequest) (resolvedPair, error) {
	var out resolvedPair
	refA, refB := pr.A, pr.B
	var anchor *time.Time
	if pr.Profile != "" {
		if !refA.empty() || !refB.empty() {
			return out, badRequest("give either profile or a/b, not both")
		}
		var err error
		if refA, refB, anchor, err = s.profileRefs(pr.Profile); err != nil {
			return out, err
		}
	}

	var err error
	if out.start, out.end, err = s.window(pr.windowRequest, anchor); err != nil {
		return out, err
	}
	if out.a, err = s.resolve(refA, "a"); err != nil {
		return out, err
	}
	if out.b, err = s.resolve(refB, "b"); err != nil {
		return out, err
	}
	return out, nil
}

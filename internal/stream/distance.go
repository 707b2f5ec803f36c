// Package stream implements Server-Sent Events (SSE) streaming of the live
// distance between two satellites. Clients connect via
// GET /api/v1/stream/distance?a=<norad_id>&b=<norad_id> and receive one
// reading per step until they disconnect.
//
// SSE message format:
//
//	data: {"type":"distance","t":"2025-12-19T01:30:19Z","ok":true,"distance_km":412.7,"relative_velocity_km_s":13.9}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","a":{"norad_id":40115,...},"b":{...},"step_seconds":1}\n\n
//
// A reading that cannot be propagated is sent as {"type":"distance","t":...,"ok":false}.
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval of silence.
package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/kvsankar/sattosat/internal/conjunction"
	"github.com/kvsankar/sattosat/internal/httputil"
	"github.com/kvsankar/sattosat/internal/metrics"
	"github.com/kvsankar/sattosat/internal/tle"
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxTotal           int           // Max concurrent streams overall (default: 1000).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	DefaultStep        time.Duration // Reading interval when step is omitted (default: 1s).
	MinStep            time.Duration // Smallest accepted step (default: 1s).
	MaxStep            time.Duration // Largest accepted step (default: 60s).
	TrustProxy         bool          // Read client IP from X-Forwarded-For.
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentPerIP <= 0 {
		c.MaxConcurrentPerIP = 10
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 30 * time.Second
	}
	if c.MinStep <= 0 {
		c.MinStep = time.Second
	}
	if c.MaxStep < c.MinStep {
		c.MaxStep = 60 * time.Second
	}
	if c.DefaultStep < c.MinStep || c.DefaultStep > c.MaxStep {
		c.DefaultStep = c.MinStep
	}
	return c
}

// Catalog resolves a NORAD ID to its element sets, loading it on first use.
type Catalog interface {
	Seed(id int) ([]tle.ElementSet, error)
}

// Handler manages SSE streaming connections.
type Handler struct {
	catalog Catalog
	engine  *conjunction.Engine
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a new streaming handler.
func NewHandler(catalog Catalog, engine *conjunction.Engine, config Config, logger *slog.Logger) *Handler {
	config = config.withDefaults()
	return &Handler{
		catalog: catalog,
		engine:  engine,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxTotal),
		logger:  logger,
		now:     time.Now,
	}
}

// HandleDistance serves the SSE distance stream.
// GET /api/v1/stream/distance?a=40115&b=66620&step=1&start=2025-12-19T01:30:19Z
//
// start, when given, replays from that instant at wall-clock speed instead of
// streaming the present. Each reading carries its instant in Unix
// milliseconds as the event ID, so a Last-Event-ID on reconnect resumes one
// step later.
func (h *Handler) HandleDistance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	idA, errA := parseNORADID(q.Get("a"))
	idB, errB := parseNORADID(q.Get("b"))
	if err := errors.Join(errA, errB); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	step := h.config.DefaultStep
	if v := q.Get("step"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		d := time.Duration(n * float64(time.Second))
		if err != nil || d < h.config.MinStep || d > h.config.MaxStep {
			httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid step parameter, must be %g-%g seconds",
				h.config.MinStep.Seconds(), h.config.MaxStep.Seconds()))
			return
		}
		step = d
	}

	var offset time.Duration
	if v := q.Get("start"); v != "" {
		start, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid start parameter, must be RFC 3339")
			return
		}
		offset = start.Sub(h.now())
	}
	// A reconnecting browser resumes at the tick after the last one it saw.
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid Last-Event-ID header")
			return
		}
		offset = time.UnixMilli(ms).Add(step).Sub(h.now())
	}

	setsA, err := h.catalog.Seed(idA)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	setsB, err := h.catalog.Seed(idB)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	// Enforce the per-IP and global stream limits.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	release, err := h.limiter.acquire(ip)
	if err != nil {
		reason := "ip_limit"
		if errors.Is(err, errTotalLimit) {
			reason = "total_limit"
		}
		metrics.IncStreamErrors(reason)
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"reason", reason,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, err.Error())
		return
	}

	metrics.StreamConnected()
	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"norad_a", idA,
		"norad_b", idB,
		"step_seconds", step.Seconds(),
	)

	c := &client{ip: ip, logger: h.logger}

	// Cleanup on disconnect: release rate limit slot and update metrics.
	defer func() {
		release()
		metrics.StreamDisconnected()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
			"messages_sent", c.messagesSent,
			"bytes_sent", c.bytesSent,
		)
	}()

	// Verify flusher support (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's default WriteTimeout for this connection; each
	// write sets its own deadline.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}
	c.w, c.flusher, c.rc = w, flusher, rc

	// Jittered retry interval (3-7s) so a server restart doesn't cause a
	// reconnection storm.
	if err := c.send(fmt.Sprintf("retry: %d\n\n", 3000+rand.Intn(4000))); err != nil {
		return
	}

	pair := h.engine.NewPair(setsA, setsB)
	if err := c.sendEvent("", buildMetadataMessage(pair, idA, idB, step)); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	sendReading := func() error {
		t := h.now().Add(offset)
		reading, ok := pair.Reading(t)
		return c.sendEvent(strconv.FormatInt(t.UnixMilli(), 10), buildDistanceMessage(t, reading, ok))
	}
	if err := sendReading(); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(step)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := sendReading(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			// Reset keepalive since we just sent data.
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

func parseNORADID(s string) (int, error) {
	if s == "" {
		return 0, errors.New("missing satellite parameter")
	}
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid NORAD ID %q", s)
	}
	return id, nil
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, tle.ErrUnknownSatellite) || errors.Is(err, tle.ErrNoElementSets) {
		httputil.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	httputil.WriteError(w, http.StatusInternalServerError, err.Error())
}

func buildMetadataMessage(pair *conjunction.Pair, idA, idB int, step time.Duration) metadataMessage {
	nameA, nameB := pair.Names()
	lenA, lenB := pair.Lens()
	return metadataMessage{
		Type:        "metadata",
		A:           satelliteMeta{NORADID: idA, Name: nameA, ElementSets: lenA},
		B:           satelliteMeta{NORADID: idB, Name: nameB, ElementSets: lenB},
		StepSeconds: step.Seconds(),
	}
}

func buildDistanceMessage(t time.Time, r conjunction.Reading, ok bool) distanceMessage {
	msg := distanceMessage{
		Type: "distance",
		T:    t.UTC().Format(time.RFC3339Nano),
		OK:   ok,
	}
	if ok {
		msg.DistanceKm = &r.DistanceKm
		msg.RelativeVelocityKmS = &r.RelativeVelocityKmS
	}
	return msg
}

// SSE message payload types.

type metadataMessage struct {
	Type        string        `json:"type"`
	A           satelliteMeta `json:"a"`
	B           satelliteMeta `json:"b"`
	StepSeconds float64       `json:"step_seconds"`
}

type satelliteMeta struct {
	NORADID     int    `json:"norad_id"`
	Name        string `json:"name"`
	ElementSets int    `json:"element_sets"`
}

type distanceMessage struct {
	Type                string   `json:"type"`
	T                   string   `json:"t"`
	OK                  bool     `json:"ok"`
	DistanceKm          *float64 `json:"distance_km,omitempty"`
	RelativeVelocityKmS *float64 `json:"relative_velocity_km_s,omitempty"`
}

// Package health serves the liveness and readiness probes.
package health

import (
	"net/http"
	"sync/atomic"
)

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Readiness tracks whether the service can answer searches. The zero value
// is not ready.
type Readiness struct {
	ready atomic.Bool
}

// SetReady marks the service ready (or not).
func (rd *Readiness) SetReady(ready bool) {
	rd.ready.Store(ready)
}

// Ready reports the current state.
func (rd *Readiness) Ready() bool {
	return rd.ready.Load()
}

// Readyz returns 200 "ready\n" once the catalog has been seeded, and 503
// before that.
func (rd *Readiness) Readyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if !rd.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready\n"))
}

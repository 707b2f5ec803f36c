package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	enabled := Middleware(Config{Enabled: true, Token: "s3cret"})(ok)
	disabled := Middleware(Config{Enabled: false})(ok)
	noToken := Middleware(Config{Enabled: true})(ok)

	tests := []struct {
		name    string
		handler http.Handler
		method  string
		path    string
		auth    string
		want    int
	}{
		{"disabled passes everything", disabled, "POST", "/api/v1/conjunctions", "", http.StatusNoContent},
		{"probe is public", enabled, "GET", "/healthz", "", http.StatusNoContent},
		{"metrics is public", enabled, "GET", "/metrics", "", http.StatusNoContent},
		{"satellite summary is public", enabled, "GET", "/api/v1/satellites/40115", "", http.StatusNoContent},
		{"satellite update needs token", enabled, "PUT", "/api/v1/satellites/40115", "", http.StatusUnauthorized},
		{"search without token", enabled, "POST", "/api/v1/conjunctions", "", http.StatusUnauthorized},
		{"search with wrong token", enabled, "POST", "/api/v1/conjunctions", "Bearer nope", http.StatusUnauthorized},
		{"search with bare token", enabled, "POST", "/api/v1/conjunctions", "s3cret", http.StatusUnauthorized},
		{"search with token", enabled, "POST", "/api/v1/conjunctions", "Bearer s3cret", http.StatusNoContent},
		{"stream needs token", enabled, "GET", "/api/v1/stream/distance", "", http.StatusUnauthorized},
		{"empty configured token rejects all", noToken, "POST", "/api/v1/conjunctions", "Bearer ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			tt.handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if w.Code == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

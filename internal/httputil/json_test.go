package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusBadRequest, "bad window")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "bad window" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		A int `json:"a"`
	}

	tests := []struct {
		name    string
		body    string
		limit   int64
		want    int
		wantErr bool
		tooBig  bool
	}{
		{name: "valid", body: `{"a": 7}`, limit: 100, want: 7},
		{name: "empty", body: ``, limit: 100, wantErr: true},
		{name: "malformed", body: `{"a":`, limit: 100, wantErr: true},
		{name: "unknown field", body: `{"a": 1, "b": 2}`, limit: 100, wantErr: true},
		{name: "trailing data", body: `{"a": 1} {"a": 2}`, limit: 100, wantErr: true},
		{name: "too large", body: `{"a": 1234567890}`, limit: 8, wantErr: true, tooBig: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			var got payload
			err := DecodeJSON(w, r, tt.limit, &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeJSON error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.tooBig != errors.Is(err, ErrBodyTooLarge) {
				t.Errorf("errors.Is(err, ErrBodyTooLarge) = %v, want %v (err %v)", !tt.tooBig, tt.tooBig, err)
			}
			if err == nil && got.A != tt.want {
				t.Errorf("A = %d, want %d", got.A, tt.want)
			}
		})
	}
}

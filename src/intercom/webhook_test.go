package intercom

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func (h *harness) router() http.Handler {
	return NewRouter(h.ic, http.NotFoundHandler(), "/media")
}

func do(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestWebhookResponses(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		key    string
	}{
		{"missing data", `{}`, http.StatusInternalServerError, "error"},
		{"missing call_control_id", `{"data":{"event_type":"call.hangup","payload":{}}}`, http.StatusInternalServerError, "error"},
		{"missing payload", `{"data":{"event_type":"call.hangup"}}`, http.StatusInternalServerError, "error"},
		{"not json", `{{`, http.StatusBadRequest, "error"},
		{"unknown event type", `{"data":{"event_type":"call.speak.ended","payload":{"call_control_id":"c1"}}}`, http.StatusOK, "status"},
		{"hangup for unknown call", `{"data":{"event_type":"call.hangup","payload":{"call_control_id":"c9"}}}`, http.StatusOK, "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			rec, out := do(t, h.router(), http.MethodPost, "/intercom", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if _, ok := out[tt.key]; !ok {
				t.Fatalf("body %s has no %q", rec.Body.String(), tt.key)
			}
			if tt.key == "status" && out["status"] != "success" {
				t.Fatalf("status = %v", out["status"])
			}
		})
	}
}

func TestWebhookDrivesCall(t *testing.T) {
	h := newHarness(t)
	r := h.router()

	rec, _ := do(t, r, http.MethodPost, "/intercom",
		`{"data":{"id":"e1","event_type":"call.initiated","payload":{"call_control_id":"c1","to":"+14155491627","from":"+15551234"}}}`)
	if rec.Code != http.StatusOK || h.reg.Len() != 1 {
		t.Fatalf("initiated: %d, sessions=%d", rec.Code, h.reg.Len())
	}

	_, out := do(t, r, http.MethodGet, "/healthz", "")
	if out["status"] != "ok" || out["active_calls"] != float64(1) {
		t.Fatalf("healthz = %v", out)
	}

	do(t, r, http.MethodPost, "/intercom", `{"data":{"event_type":"call.hangup","payload":{"call_control_id":"c1"}}}`)
	if h.reg.Len() != 0 {
		t.Fatal("hangup did not remove the session")
	}
}

func TestAvailablePhrases(t *testing.T) {
	h := newHarness(t)
	h.setPhrase("open sesame", "")
	h.setPhrase("purple elephant", "2025-02-01T10:00:00.000Z")
	h.setPhrase("flags", `{"forwardCall":false}`)

	req := httptest.NewRequest(http.MethodGet, "/api/phrases", nil)
	rec := httptest.NewRecorder()
	h.router().ServeHTTP(rec, req)

	var keys []string
	if err := json.Unmarshal(rec.Body.Bytes(), &keys); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
	if len(keys) != 1 || keys[0] != "open sesame" {
		t.Fatalf("available = %v", keys)
	}
}

func TestLanding(t *testing.T) {
	h := newHarness(t)
	rec, _ := do(t, h.router(), http.MethodGet, "/intercom", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<h1>hi</h1>") {
		t.Fatalf("landing = %d %q", rec.Code, rec.Body.String())
	}
}

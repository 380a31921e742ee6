package intercom

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/square-key-labs/strawgo-intercom/src/services/telnyx"
)

const maxWebhookBody = 1 << 20

// ServeWebhook is the call-control webhook endpoint.
//
//	200 {"status":"success"}        event applied or ignored
//	400 {"error":...}               body is not JSON
//	500 {"error":...}               no data or no call_control_id
func (ic *Intercom) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	var ev telnyx.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&ev); err != nil {
		ic.log.Warn("Malformed webhook body: %v", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	if ev.Data != nil {
		ic.log.Debug("Webhook %s (%s)", ev.Data.EventType, ev.Data.ID)
	}

	if err := ic.HandleEvent(r.Context(), &ev); err != nil {
		msg := "Internal server error"
		if errors.Is(err, ErrMissingData) || errors.Is(err, ErrMissingCallControlID) {
			msg = "Can't find call control ID"
		}
		ic.log.Warn("Rejected webhook: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// ServePhrases lists the phrases that are currently unused.
func (ic *Intercom) ServePhrases(w http.ResponseWriter, r *http.Request) {
	keys, err := ic.phrases.Available(r.Context())
	if err != nil {
		ic.log.Error("Failed to list available phrases: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list phrases"})
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

// ServeHealth reports liveness and the number of calls in flight.
func (ic *Intercom) ServeHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"active_calls": ic.ActiveCalls(),
	})
}

func serveLanding(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<h1>hi</h1>"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

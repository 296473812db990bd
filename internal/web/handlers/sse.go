package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/kozaktomas/face-monitor/internal/session"
)

// sendSSEEvent writes a single server-sent event and flushes it.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}

// setupSSEConnection finds the session and sets up SSE headers.
// On failure it writes an error response and returns false.
func (h *SessionsHandler) setupSSEConnection(w http.ResponseWriter, r *http.Request) (*session.Session, http.Flusher, bool) {
	s := h.lookup(w, r)
	if s == nil {
		return nil, nil, false
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	return s, flusher, true
}

// Events streams session state changes until the client disconnects or the
// session is disposed.
func (h *SessionsHandler) Events(w http.ResponseWriter, r *http.Request) {
	s, flusher, ok := h.setupSSEConnection(w, r)
	if !ok {
		return
	}

	eventCh, unsubscribe := s.Subscribe()
	defer unsubscribe()

	snap := s.Snapshot()
	sendSSEEvent(w, flusher, "status", snap)
	if snap.State == session.StateDisposed {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
			if event.Type == session.EventDisposed {
				return
			}
		}
	}
}

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// sseHeartbeat is the interval between keep-alive comments on an open
// notification stream.
const sseHeartbeat = 30 * time.Second

// handleEvents streams notifications to the client as Server-Sent Events.
// Each bus notification becomes one "notification" event; heartbeats keep
// intermediaries from closing the idle connection.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	sendEvent(w, flusher, "connected", map[string]string{
		"time": time.Now().UTC().Format(time.RFC3339),
	})

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case n, open := <-sub:
			if !open {
				return
			}
			sendEvent(w, flusher, "notification", n)
		}
	}
}

// sendEvent writes one typed SSE event.
func sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
	flusher.Flush()
}

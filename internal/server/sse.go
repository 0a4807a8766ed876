package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"arccs/internal/progress"
)

// hub fans progress events out to the SSE subscribers of each session.
// Events are dropped when a subscriber's buffer is full; the stream is a
// live view, not a durable log.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[chan progress.Event]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[chan progress.Event]struct{})}
}

// sink returns a progress.Sink that broadcasts to the session's
// subscribers. Safe to use when nobody is listening.
func (h *hub) sink(sessionID string) progress.Sink {
	return progress.Func(func(ev progress.Event) {
		h.mu.Lock()
		defer h.mu.Unlock()
		for ch := range h.subs[sessionID] {
			select {
			case ch <- ev:
			default:
			}
		}
	})
}

func (h *hub) subscribe(sessionID string) chan progress.Event {
	ch := make(chan progress.Event, 64)
	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan progress.Event]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) unsubscribe(sessionID string, ch chan progress.Event) {
	h.mu.Lock()
	if set := h.subs[sessionID]; set != nil {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.subs, sessionID)
		}
	}
	h.mu.Unlock()
}

// sseEvent is the wire shape of one streamed log line.
type sseEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Index   int    `json:"index,omitempty"`
	Total   int    `json:"total,omitempty"`
}

// handleStreamLogs streams session progress as server-sent events, with
// a periodic keepalive so proxies do not drop the idle connection.
func (s *Server) handleStreamLogs(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.fail(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sessionID := s.sessionID(r)
	ch := s.hub.subscribe(sessionID)
	defer s.hub.unsubscribe(sessionID, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			writeSSE(w, sseEvent{Type: "keepalive"})
			flusher.Flush()
		case ev := <-ch:
			writeSSE(w, sseEvent{
				Type:    string(ev.Level),
				Message: ev.Message,
				Index:   ev.Index,
				Total:   ev.Total,
			})
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev sseEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

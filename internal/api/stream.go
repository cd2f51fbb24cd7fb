package api

import (
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nucleus/filingcore/internal/bronze"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamHub fans out admitted-filing events to every connected
// /feed/stream client.
type streamHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan bronze.AdmitResult
}

func newStreamHub() *streamHub {
	return &streamHub{clients: map[*websocket.Conn]chan bronze.AdmitResult{}}
}

func (h *streamHub) add(conn *websocket.Conn) chan bronze.AdmitResult {
	ch := make(chan bronze.AdmitResult, 16)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *streamHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *streamHub) broadcast(result bronze.AdmitResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- result:
		default:
			log.Printf("api: dropping feed stream event for slow client %s", conn.RemoteAddr())
		}
	}
}

func (s *Server) handleFeedStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("api: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ch := s.hub.add(conn)
	defer s.hub.remove(conn)

	for result := range ch {
		if err := conn.WriteJSON(result); err != nil {
			log.Printf("api: websocket write: %v", err)
			return
		}
	}
}

// handleSyncStream opens a Server-Sent Events stream for a job id,
// writes a single "queued" event carrying that id, and returns. It does
// not look up the Temporal workflow or report any later progress; the
// Server holds no Temporal client.
func (s *Server) handleSyncStream(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathSuffix(r, "/sync/")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: queued\ndata: {\"job_id\":%q}\n\n", jobID)
	flusher.Flush()
}

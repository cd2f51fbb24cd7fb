package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleHealthReturnsOK(t *testing.T) {
	s := &Server{hub: newStreamHub()}
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/health", nil)

	s.handleHealth(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected json content type, got %s", ct)
	}
}

func TestStreamHubAddRemove(t *testing.T) {
	hub := newStreamHub()
	ch := hub.add(nil)
	if len(hub.clients) != 1 {
		t.Fatalf("expected 1 client after add, got %d", len(hub.clients))
	}
	hub.remove(nil)
	if len(hub.clients) != 0 {
		t.Fatalf("expected 0 clients after remove, got %d", len(hub.clients))
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed after remove")
		}
	default:
		t.Error("expected closed channel to be immediately readable")
	}
}

// Package api exposes the REST, WebSocket, and SSE surface described
// by this core's external interface: filing/entity/graph lookups, a
// push channel for newly admitted filings, and a job-progress stream
// for ingestion runs.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/nucleus/filingcore/internal/bronze"
	"github.com/nucleus/filingcore/internal/entityspine"
	"github.com/nucleus/filingcore/internal/events"
	"github.com/nucleus/filingcore/internal/graph"
	"github.com/nucleus/filingcore/internal/mention"
	"github.com/nucleus/filingcore/internal/section"
	"github.com/nucleus/filingcore/internal/silver"
)

// Server holds every dependency the HTTP surface needs and owns the
// admitted-filing broadcast hub.
type Server struct {
	Records  *bronze.RecordStore
	Filings  *silver.Store
	Sections *section.Store
	Mentions *mention.Store
	Entities entityspine.Registry
	Matcher  *entityspine.Matcher
	Graph    *graph.PostgresStore
	Events   *events.Store
	hub      *streamHub

	httpServer *http.Server
}

// Deps bundles every storage/resolution collaborator NewServer wires
// onto the HTTP mux.
type Deps struct {
	Records  *bronze.RecordStore
	Filings  *silver.Store
	Sections *section.Store
	Mentions *mention.Store
	Entities entityspine.Registry
	Matcher  *entityspine.Matcher
	Graph    *graph.PostgresStore
	Events   *events.Store
}

// NewServer builds a Server and wires its routes onto a fresh
// ServeMux, following the same http.ServeMux + graceful shutdown
// idiom the teacher's metadata-api uses.
func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		Records:  deps.Records,
		Filings:  deps.Filings,
		Sections: deps.Sections,
		Mentions: deps.Mentions,
		Entities: deps.Entities,
		Matcher:  deps.Matcher,
		Graph:    deps.Graph,
		Events:   deps.Events,
		hub:      newStreamHub(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/filings", s.handleListFilings)
	mux.HandleFunc("/filings/", s.handleFilingsPath)
	mux.HandleFunc("/entities/resolve", s.handleResolveEntity)
	mux.HandleFunc("/entities/", s.handleEntitiesPath)
	mux.HandleFunc("/mentions/", s.handleMentionEvidence)
	mux.HandleFunc("/graph/suppliers/", s.handleGraphSuppliers)
	mux.HandleFunc("/feed/stream", s.handleFeedStream)
	mux.HandleFunc("/sync/", s.handleSyncStream)

	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Run starts the HTTP server and blocks until ctx is canceled, then
// shuts it down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("api: listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// BroadcastAdmission pushes an AdmitResult to every connected
// /feed/stream client. Nothing in this repository calls it: the
// scheduler runs in the collector process and holds no reference to the
// Server, so /feed/stream clients receive only what a caller in the
// apiserver process passes here.
func (s *Server) BroadcastAdmission(result bronze.AdmitResult) {
	s.hub.broadcast(result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, errorEnvelope{Code: code, Message: err.Error()})
}

func pathSuffix(r *http.Request, prefix string) (string, error) {
	id := r.URL.Path[len(prefix):]
	if id == "" {
		return "", fmt.Errorf("missing path parameter after %s", prefix)
	}
	return id, nil
}

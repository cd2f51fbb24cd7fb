// Command apiserver runs the REST/WebSocket/SSE surface described in
// this core's external interface.
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/nucleus/filingcore/internal/api"
	"github.com/nucleus/filingcore/internal/bronze"
	"github.com/nucleus/filingcore/internal/config"
	"github.com/nucleus/filingcore/internal/entityspine"
	"github.com/nucleus/filingcore/internal/events"
	"github.com/nucleus/filingcore/internal/graph"
	"github.com/nucleus/filingcore/internal/mention"
	"github.com/nucleus/filingcore/internal/section"
	"github.com/nucleus/filingcore/internal/silver"
	"github.com/nucleus/filingcore/internal/store"
)

func main() {
	cfg := config.Load()

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("apiserver: open database: %v", err)
	}
	defer db.Close()

	if err := store.Migrate(db, cfg.MigrationsPath); err != nil {
		log.Fatalf("apiserver: migrate: %v", err)
	}

	records := bronze.NewRecordStore(db)
	entities := entityspine.NewPostgresRegistry(db)
	matcher := entityspine.NewMatcher(entities, cfg.ResolverFuzzyThreshold, cfg.ResolverFuzzyMargin)
	graphStore := graph.NewPostgresStore(db)
	filings := silver.NewStore(db)
	sections := section.NewStore(db)
	mentions := mention.NewStore(db)
	eventsStore := events.NewStore(db)

	srv := api.NewServer(fmt.Sprintf(":%d", cfg.Port), api.Deps{
		Records:  records,
		Filings:  filings,
		Sections: sections,
		Mentions: mentions,
		Entities: entities,
		Matcher:  matcher,
		Graph:    graphStore,
		Events:   eventsStore,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("apiserver: run: %v", err)
	}
}

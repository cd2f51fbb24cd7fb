// Command worker runs the Temporal worker process that executes every
// filing ingestion workflow and activity this core registers.
package main

import (
	"log"
	"net/http"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/nucleus/filingcore/internal/bronze"
	"github.com/nucleus/filingcore/internal/config"
	"github.com/nucleus/filingcore/internal/entityspine"
	"github.com/nucleus/filingcore/internal/events"
	"github.com/nucleus/filingcore/internal/fetcher"
	"github.com/nucleus/filingcore/internal/graph"
	"github.com/nucleus/filingcore/internal/mention"
	"github.com/nucleus/filingcore/internal/pipeline"
	"github.com/nucleus/filingcore/internal/section"
	"github.com/nucleus/filingcore/internal/silver"
	"github.com/nucleus/filingcore/internal/store"
	"github.com/nucleus/filingcore/internal/validation"
)

func main() {
	cfg := config.Load()

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("worker: open database: %v", err)
	}
	defer db.Close()

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		log.Fatalf("worker: dial temporal: %v", err)
	}
	defer temporalClient.Close()

	f := fetcher.New(fetcher.Config{
		UserAgent:   cfg.SECUserAgent,
		RateLimit:   cfg.FetchRateLimit,
		RateBurst:   cfg.FetchRateBurst,
		Timeout:     cfg.FetchTimeout,
		MaxRetries:  cfg.FetchMaxRetries,
		ArchiveRoot: cfg.ArchiveRoot,
	}, &http.Client{Timeout: cfg.FetchTimeout})

	records := bronze.NewRecordStore(db)
	filings := silver.NewStore(db)
	sections := section.NewStore(db)
	mentions := mention.NewStore(db)
	entities := entityspine.NewPostgresRegistry(db)
	matcher := entityspine.NewMatcher(entities, cfg.ResolverFuzzyThreshold, cfg.ResolverFuzzyMargin)
	validationStore := validation.NewStore(db)
	graphStore := graph.NewPostgresStore(db)
	builder := graph.NewBuilder(&graph.MatcherResolver{Matcher: matcher}, graphStore)
	eventsStore := events.NewStore(db)

	dictionary, err := mention.Compile(nil)
	if err != nil {
		log.Fatalf("worker: compile dictionary: %v", err)
	}
	extractor := mention.NewExtractor(dictionary, nil)

	activities := &pipeline.Activities{
		Fetcher:    f,
		Records:    records,
		Filings:    filings,
		Sections:   sections,
		Mentions:   mentions,
		Entities:   entities,
		Matcher:    matcher,
		Extractor:  extractor,
		Builder:    builder,
		Validation: validationStore,
		Events:     eventsStore,
	}

	w := worker.New(temporalClient, cfg.TaskQueue, worker.Options{})
	w.RegisterWorkflow(pipeline.FilingIngestionWorkflow)
	w.RegisterActivity(activities.FetchDocument)
	w.RegisterActivity(activities.ParseSections)
	w.RegisterActivity(activities.ExtractMentions)
	w.RegisterActivity(activities.ResolveEntities)
	w.RegisterActivity(activities.BuildRelationships)

	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: run: %v", err)
	}
}

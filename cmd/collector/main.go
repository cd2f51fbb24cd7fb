// Command collector runs the feed adapters on their configured
// cadence, admitting newly observed filings into the Record Store and
// starting an ingestion workflow for each one.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"

	"github.com/nucleus/filingcore/internal/bronze"
	"github.com/nucleus/filingcore/internal/config"
	"github.com/nucleus/filingcore/internal/feed"
	"github.com/nucleus/filingcore/internal/fetcher"
	"github.com/nucleus/filingcore/internal/pipeline"
	"github.com/nucleus/filingcore/internal/store"
)

func main() {
	cfg := config.Load()

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("collector: open database: %v", err)
	}
	defer db.Close()

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		log.Fatalf("collector: dial temporal: %v", err)
	}
	defer temporalClient.Close()

	checkpoints := bronze.NewCheckpointStore(db)
	records := bronze.NewRecordStore(db)
	scheduler := pipeline.NewScheduler(checkpoints, records, temporalClient, cfg.TaskQueue)

	// Every feed adapter shares the same process-wide token bucket and
	// the same underlying http.Client/Transport it wraps, so the
	// collector's real-time, daily, and full-index polling never
	// collectively exceeds requests_per_second even though each runs on
	// its own cadence — per spec §4.4, "all HTTP clients used
	// anywhere in the core route through this bucket; direct bypass is
	// a defect."
	limiter := fetcher.NewLimiter(fetcher.Config{RateLimit: cfg.FetchRateLimit, RateBurst: cfg.FetchRateBurst})
	httpClient := &http.Client{
		Timeout:   cfg.FetchTimeout,
		Transport: fetcher.NewLimitedTransport(limiter, nil),
	}
	rssAdapter := feed.NewRSSAdapter("", cfg.SECUserAgent, httpClient)
	dailyAdapter := feed.NewDailyIndexAdapter(cfg.SECUserAgent, httpClient, nil)
	fullAdapter := feed.NewFullIndexAdapter(cfg.SECUserAgent, httpClient, nil)

	if err := scheduler.RegisterCron(cfg.DailyIndexCron, dailyAdapter); err != nil {
		log.Fatalf("collector: register daily index: %v", err)
	}
	if err := scheduler.RegisterCron(cfg.FullIndexCron, fullAdapter); err != nil {
		log.Fatalf("collector: register full index: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go scheduler.RunTicker(ctx, cfg.RealtimePoll, rssAdapter)
	<-ctx.Done()
	log.Println("collector: shutting down")
}

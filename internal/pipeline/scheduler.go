package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"go.temporal.io/sdk/client"

	"github.com/nucleus/filingcore/internal/bronze"
	"github.com/nucleus/filingcore/internal/feed"
)

// Scheduler drives feed adapters on their configured cadence
// (cron-scheduled daily/full index, short-ticker real-time RSS),
// advancing each feed's Checkpoint Store entry and
// starting a FilingIngestionWorkflow for every newly admitted record.
type Scheduler struct {
	cron        *cron.Cron
	checkpoints *bronze.CheckpointStore
	records     *bronze.RecordStore
	temporal    client.Client
	taskQueue   string
}

// NewScheduler builds a Scheduler. temporalClient may be nil in tests
// that only want to exercise admission logic.
func NewScheduler(checkpoints *bronze.CheckpointStore, records *bronze.RecordStore, temporalClient client.Client, taskQueue string) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		checkpoints: checkpoints,
		records:     records,
		temporal:    temporalClient,
		taskQueue:   taskQueue,
	}
}

// RegisterCron schedules adapter.Poll on the given cron expression.
func (s *Scheduler) RegisterCron(expr string, adapter feed.Adapter) error {
	_, err := s.cron.AddFunc(expr, func() {
		if err := s.pollOnce(context.Background(), adapter); err != nil {
			log.Printf("pipeline: scheduler poll %s: %v", adapter.Name(), err)
		}
	})
	if err != nil {
		return fmt.Errorf("pipeline: register cron for %s: %w", adapter.Name(), err)
	}
	return nil
}

// Start begins running every registered cron entry.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron scheduler, waiting for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunTicker polls adapter on a fixed interval until ctx is canceled,
// used for the real-time feed whose polling cadence is a small fixed
// duration rather than a cron schedule.
func (s *Scheduler) RunTicker(ctx context.Context, interval time.Duration, adapter feed.Adapter) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.pollOnce(ctx, adapter); err != nil {
				log.Printf("pipeline: scheduler ticker poll %s: %v", adapter.Name(), err)
			}
		}
	}
}

// pollOnce advances one feed adapter by one checkpointed poll,
// admitting every entry into the Record Store and starting an
// ingestion workflow for each newly admitted one. A version conflict
// on the checkpoint (another poll of the same feed already ran) is
// treated as a no-op rather than an error — the next scheduled tick
// will simply pick up from wherever that other poll left the cursor.
func (s *Scheduler) pollOnce(ctx context.Context, adapter feed.Adapter) error {
	cp, err := s.checkpoints.Get(ctx, adapter.Name())
	if err != nil {
		return fmt.Errorf("pipeline: get checkpoint: %w", err)
	}

	entries, nextCursor, err := adapter.Poll(ctx, feed.Cursor(cp.Cursor))
	if err != nil {
		return fmt.Errorf("pipeline: adapter poll: %w", err)
	}

	for _, entry := range entries {
		var filingDate time.Time
		if parsed, err := time.Parse("2006-01-02", entry.FilingDate); err == nil {
			filingDate = parsed
		}
		result, err := s.records.Admit(ctx, adapter.Name(), entry.NaturalKey, entry.SourceURL, entry.Raw, entry.CIK, filingDate, time.Now())
		if err != nil {
			return fmt.Errorf("pipeline: admit record: %w", err)
		}
		if s.temporal == nil {
			continue
		}
		switch result.Outcome {
		case bronze.OutcomeDuplicate:
			continue
		case bronze.OutcomeResighted:
			if !result.Record.WasModified {
				continue
			}
		}
		_, err = s.temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
			ID:        "filing-ingestion-" + entry.NaturalKey,
			TaskQueue: s.taskQueue,
		}, WorkflowNameFilingIngestion, FilingIngestionInput{
			RecordID:      result.Record.ID,
			CIK:           entry.CIK,
			AccessionNo:   entry.AccessionNo,
			FormType:      entry.FormType,
			FilingDate:    entry.FilingDate,
			PrimaryDocURL: entry.PrimaryDocURL,
		})
		if err != nil {
			return fmt.Errorf("pipeline: start ingestion workflow: %w", err)
		}
	}

	if _, err := s.checkpoints.Advance(ctx, adapter.Name(), nextCursor, cp.Version); err != nil {
		if err == bronze.ErrVersionConflict {
			return nil
		}
		return fmt.Errorf("pipeline: advance checkpoint: %w", err)
	}
	return nil
}

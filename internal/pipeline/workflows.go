package pipeline

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	WorkflowNameFilingIngestion = "FilingIngestionWorkflow"
	TaskQueueName               = "filingcore-pipeline"
)

// defaultActivityOptions governs every activity in the ingestion
// workflow: a bounded retry policy so a transient network failure
// retries, but a non-retryable application error (malformed source,
// programmer invariant violation) fails the activity immediately instead
// of burning the whole retry budget. Nothing in this package writes a
// failed filing to the dead-letter store; the workflow just returns the
// error.
var defaultActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 2 * time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    5,
	},
}

// FilingIngestionWorkflow carries one admitted Bronze record through
// fetch, parse, extract, resolve, and relationship-build. Each step's
// result feeds the next; a step that returns a non-retryable
// temporal.ApplicationError ends the workflow without exhausting the
// step's retry budget, and the caller is expected to dead-letter it.
func FilingIngestionWorkflow(ctx workflow.Context, in FilingIngestionInput) (FilingIngestionResult, error) {
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions)
	logger := workflow.GetLogger(ctx)

	var fetched FetchDocumentResult
	if err := workflow.ExecuteActivity(ctx, ActivityFetchDocument, in).Get(ctx, &fetched); err != nil {
		return FilingIngestionResult{}, fmt.Errorf("pipeline: fetch document activity: %w", err)
	}

	var parsed ParseSectionsResult
	if err := workflow.ExecuteActivity(ctx, ActivityParseSections, in, fetched).Get(ctx, &parsed); err != nil {
		return FilingIngestionResult{}, fmt.Errorf("pipeline: parse sections activity: %w", err)
	}

	totalMentions := 0
	totalResolved := 0
	totalValidation := 0
	for _, sectionID := range parsed.SectionIDs {
		var extracted ExtractMentionsResult
		if err := workflow.ExecuteActivity(ctx, ActivityExtractMentions, sectionID).Get(ctx, &extracted); err != nil {
			return FilingIngestionResult{}, fmt.Errorf("pipeline: extract mentions activity: %w", err)
		}
		totalMentions += extracted.MentionCount

		var resolved ResolveEntitiesResult
		if err := workflow.ExecuteActivity(ctx, ActivityResolveEntities, sectionID).Get(ctx, &resolved); err != nil {
			return FilingIngestionResult{}, fmt.Errorf("pipeline: resolve entities activity: %w", err)
		}
		totalResolved += resolved.ResolvedCount
		totalValidation += resolved.ValidationCount
	}

	var built BuildRelationshipsResult
	if err := workflow.ExecuteActivity(ctx, ActivityBuildRelationships, parsed.FilingID).Get(ctx, &built); err != nil {
		return FilingIngestionResult{}, fmt.Errorf("pipeline: build relationships activity: %w", err)
	}

	logger.Info("filing ingestion complete", "accession", in.AccessionNo, "sections", parsed.SectionCount, "mentions", totalMentions)

	return FilingIngestionResult{
		FilingID:        parsed.FilingID,
		SectionCount:    parsed.SectionCount,
		MentionCount:    totalMentions,
		ResolvedCount:   totalResolved,
		RelationCount:   built.RelationCount,
		EventCount:      built.EventCount,
		ValidationCount: totalValidation,
	}, nil
}

// NonRetryableError wraps err as a Temporal application error that
// skips the remaining retry budget entirely, for failures retrying
// can never fix (malformed source document, an invariant the pipeline
// itself violated).
func NonRetryableError(errType string, err error) error {
	return temporal.NewNonRetryableApplicationError(err.Error(), errType, err)
}

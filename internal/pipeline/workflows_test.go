package pipeline

import (
	"testing"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func TestFilingIngestionWorkflowHappyPath(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	env.RegisterActivityWithOptions(
		func(FilingIngestionInput) (FetchDocumentResult, error) { return FetchDocumentResult{}, nil },
		activity.RegisterOptions{Name: ActivityFetchDocument},
	)
	env.RegisterActivityWithOptions(
		func(FilingIngestionInput, FetchDocumentResult) (ParseSectionsResult, error) {
			return ParseSectionsResult{}, nil
		},
		activity.RegisterOptions{Name: ActivityParseSections},
	)
	env.RegisterActivityWithOptions(
		func(string) (ExtractMentionsResult, error) { return ExtractMentionsResult{}, nil },
		activity.RegisterOptions{Name: ActivityExtractMentions},
	)
	env.RegisterActivityWithOptions(
		func(string) (ResolveEntitiesResult, error) { return ResolveEntitiesResult{}, nil },
		activity.RegisterOptions{Name: ActivityResolveEntities},
	)
	env.RegisterActivityWithOptions(
		func(string) (BuildRelationshipsResult, error) { return BuildRelationshipsResult{}, nil },
		activity.RegisterOptions{Name: ActivityBuildRelationships},
	)

	in := FilingIngestionInput{
		RecordID:      "rec-1",
		CIK:           "0000320193",
		AccessionNo:   "0000320193-24-000010",
		FormType:      "10-Q",
		PrimaryDocURL: "https://example.com/doc.htm",
	}

	env.OnActivity(ActivityFetchDocument, in).Return(FetchDocumentResult{ArchivePath: "/archive/doc.htm", SizeBytes: 1024}, nil)
	env.OnActivity(ActivityParseSections, in, FetchDocumentResult{ArchivePath: "/archive/doc.htm", SizeBytes: 1024}).
		Return(ParseSectionsResult{FilingID: "filing-1", SectionIDs: []string{"sec-1"}, SectionCount: 1}, nil)
	env.OnActivity(ActivityExtractMentions, "sec-1").Return(ExtractMentionsResult{MentionCount: 2}, nil)
	env.OnActivity(ActivityResolveEntities, "sec-1").Return(ResolveEntitiesResult{ResolvedCount: 2, ValidationCount: 0}, nil)
	env.OnActivity(ActivityBuildRelationships, "filing-1").Return(BuildRelationshipsResult{RelationCount: 1}, nil)

	env.ExecuteWorkflow(FilingIngestionWorkflow, in)

	if !env.IsWorkflowCompleted() {
		t.Fatal("expected workflow to complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow returned error: %v", err)
	}

	var result FilingIngestionResult
	if err := env.GetWorkflowResult(&result); err != nil {
		t.Fatalf("GetWorkflowResult: %v", err)
	}
	if result.MentionCount != 2 || result.RelationCount != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
}

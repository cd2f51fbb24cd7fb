package graph

import (
	"context"
	"testing"
)

func TestParseExhibit21ExtractsRows(t *testing.T) {
	text := "Name of Subsidiary  Jurisdiction  Percent Owned\nWidget Manufacturing LLC  Delaware  100\nGlobal Sales Corp  Ireland  85.5"
	rows := ParseExhibit21(text)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(rows), rows)
	}
	if rows[0].SubsidiaryName != "Widget Manufacturing LLC" || rows[0].OwnershipPercent != 100 {
		t.Errorf("unexpected row: %+v", rows[0])
	}
	if rows[1].JurisdictionOfOrg != "Ireland" {
		t.Errorf("unexpected jurisdiction: %s", rows[1].JurisdictionOfOrg)
	}
}

func TestParseEventsSplitsOnItemHeaders(t *testing.T) {
	text := "Item 5.02 Departure of Directors. Jane Doe resigned. Item 8.01 Other Events. The company announced a new facility."
	items := ParseEvents(text)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(items), items)
	}
	if items[0].ItemNumber != "5.02" {
		t.Errorf("unexpected item number: %s", items[0].ItemNumber)
	}
	if items[0].CharStart != 0 || text[items[0].CharStart:items[0].CharStart+4] != "Item" {
		t.Errorf("expected first item's CharStart to anchor its own header, got %+v", items[0])
	}
	if items[1].CharEnd != len(text) {
		t.Errorf("expected last item's CharEnd to reach end of document, got %d want %d", items[1].CharEnd, len(text))
	}
}

type fakeLister struct {
	edges map[string][]Relation
}

func (f *fakeLister) Neighbors(ctx context.Context, entityID string, relType RelationType) ([]Relation, error) {
	return f.edges[entityID], nil
}

func TestExpanderStopsOnCycle(t *testing.T) {
	lister := &fakeLister{edges: map[string][]Relation{
		"a": {{FromEntity: "a", ToEntity: "b", Type: RelSupplierOf}},
		"b": {{FromEntity: "b", ToEntity: "a", Type: RelSupplierOf}}, // cycle back to seed
	}}
	exp := NewExpander(lister)

	result, err := exp.Expand(context.Background(), "a", RelSupplierOf)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(result.NodesByHop[0]) != 1 || result.NodesByHop[0][0] != "a" {
		t.Errorf("unexpected hop 0: %+v", result.NodesByHop[0])
	}
	if len(result.NodesByHop[1]) != 1 || result.NodesByHop[1][0] != "b" {
		t.Errorf("unexpected hop 1: %+v", result.NodesByHop[1])
	}
	if _, ok := result.NodesByHop[2]; ok {
		t.Errorf("expected no hop 2 since cycle closes back to seed, got %+v", result.NodesByHop[2])
	}
}

package types

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleOutline() *Outline {
	return &Outline{
		Title:          "Battery Market 2025",
		EstimatedWords: 3000,
		Sections: []OutlineSection{
			{Level1: "Overview", Level2: []string{"Scope", "Method"}},
			{Level1: "Demand"},
			{Level1: "Outlook", Level2: []string{"Risks", "Scenarios", "Signals"}},
		},
	}
}

func TestWorkItems(t *testing.T) {
	got := sampleOutline().WorkItems()
	want := []Section{
		{ID: "section_1", Level1: "Overview", Level2: []string{"Scope", "Method"}, Index: 0},
		{ID: "section_2", Level1: "Demand", Index: 1},
		{ID: "section_3", Level1: "Outlook", Level2: []string{"Risks", "Scenarios", "Signals"}, Index: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("WorkItems mismatch (-want +got):\n%s", diff)
	}
}

func TestOutlineMarkdown(t *testing.T) {
	md := sampleOutline().Markdown()
	for _, line := range []string{"# Battery Market 2025", "## Overview", "### Scope", "## Demand", "### Signals"} {
		if !strings.Contains(md, line+"\n") {
			t.Errorf("markdown missing %q:\n%s", line, md)
		}
	}
}

func TestValidateOutline(t *testing.T) {
	if err := ValidateOutline(sampleOutline()); err != nil {
		t.Fatalf("valid outline rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(o *Outline)
		problem string
	}{
		{"too few sections", func(o *Outline) { o.Sections = o.Sections[:1] }, "expected 2-4 top-level sections, got 1"},
		{"too many sections", func(o *Outline) {
			o.Sections = append(o.Sections, OutlineSection{Level1: "A"}, OutlineSection{Level1: "B"})
		}, "got 5"},
		{"single sub-heading", func(o *Outline) { o.Sections[1].Level2 = []string{"Only"} }, "has 1 sub-headings"},
		{"five sub-headings", func(o *Outline) { o.Sections[0].Level2 = []string{"a", "b", "c", "d", "e"} }, "has 5 sub-headings"},
		{"missing title", func(o *Outline) { o.Title = " " }, "missing title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := sampleOutline()
			tt.mutate(o)
			err := ValidateOutline(o)
			var se *StructuralError
			if !errors.As(err, &se) {
				t.Fatalf("expected StructuralError, got %v", err)
			}
			if !strings.Contains(se.Error(), tt.problem) {
				t.Errorf("error %q does not mention %q", se.Error(), tt.problem)
			}
		})
	}

	if err := ValidateOutline(nil); err == nil {
		t.Error("nil outline should be invalid")
	}
}

func TestRetrievedItemKey(t *testing.T) {
	a := RetrievedItem{Content: "same text", Source: SourceWeb, Title: "A"}
	b := RetrievedItem{Content: "same text", Source: SourceWeb, Title: "B", URL: "https://x"}
	c := RetrievedItem{Content: "same text", Source: SourceKnowledgeBase}

	if a.Key() != b.Key() {
		t.Error("key should depend only on content and source")
	}
	if a.Key() == c.Key() {
		t.Error("different sources must produce different keys")
	}
	if len(a.Key()) != 32 {
		t.Errorf("expected md5 hex key, got %q", a.Key())
	}
}

func TestChartRequirementDefaults(t *testing.T) {
	req := NewChartRequirement("Histogram", " sales by year ", " Growth ")
	want := &ChartRequirement{Type: ChartBar, Description: "sales by year", Anchor: "Growth", Width: 10, Height: 6}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Errorf("chart requirement mismatch (-want +got):\n%s", diff)
	}
	if NormalizeChartType("PIE") != ChartPie {
		t.Error("expected case-insensitive chart type")
	}
}

func TestWordBudget(t *testing.T) {
	b := WordBudget{TargetTotal: 3000, WrittenSoFar: 1000, SectionPosition: 1, TotalSections: 3}
	if b.Remaining() != 2000 {
		t.Errorf("Remaining = %d", b.Remaining())
	}
	if b.PerSection() != 1000 {
		t.Errorf("PerSection = %d", b.PerSection())
	}

	over := WordBudget{TargetTotal: 100, WrittenSoFar: 400, SectionPosition: 2, TotalSections: 3}
	if over.Remaining() != 0 || over.PerSection() != 0 {
		t.Errorf("overspent budget should clamp to zero: %+v", over)
	}
}

func TestCapabilityErrorUnwrap(t *testing.T) {
	root := errors.New("boom")
	err := error(&CapabilityError{Capability: "writer", Err: root})
	if !errors.Is(err, root) {
		t.Error("CapabilityError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "writer failed") {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !EventError.Terminal() || EventStateUpdate.Terminal() {
		t.Error("terminal classification wrong")
	}
}

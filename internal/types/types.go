// Package types holds the report domain model and the capability contracts
// shared by the orchestrator and its collaborators.
package types

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// =============================================================================
// OUTLINE
// =============================================================================

// Outline is the planned structure of a report.
type Outline struct {
	Title          string           `json:"title"`
	EstimatedWords int              `json:"estimated_words,omitempty"`
	Sections       []OutlineSection `json:"sections"`
}

// OutlineSection is one top-level heading with its sub-headings.
type OutlineSection struct {
	Level1 string   `json:"level1_title"`
	Level2 []string `json:"level2_titles,omitempty"`
}

// Markdown renders the outline as a heading tree.
func (o *Outline) Markdown() string {
	if o == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("# " + o.Title + "\n")
	for _, s := range o.Sections {
		sb.WriteString("\n## " + s.Level1 + "\n")
		for _, sub := range s.Level2 {
			sb.WriteString("### " + sub + "\n")
		}
	}
	return sb.String()
}

// WorkItems derives the ordered section list, one per top-level heading.
func (o *Outline) WorkItems() []Section {
	if o == nil {
		return nil
	}
	items := make([]Section, 0, len(o.Sections))
	for i, s := range o.Sections {
		items = append(items, Section{
			ID:     fmt.Sprintf("section_%d", i+1),
			Level1: s.Level1,
			Level2: append([]string(nil), s.Level2...),
			Index:  i,
		})
	}
	return items
}

// Section is the unit of work the writer produces per call.
type Section struct {
	ID     string   `json:"section_id"`
	Level1 string   `json:"level1_title"`
	Level2 []string `json:"level2_titles,omitempty"`
	Index  int      `json:"index"`
}

// Headings returns the section heading followed by its sub-headings.
func (s Section) Headings() []string {
	return append([]string{s.Level1}, s.Level2...)
}

// =============================================================================
// EVIDENCE
// =============================================================================

// Evidence sources.
const (
	SourceKnowledgeBase = "knowledge_base"
	SourceWeb           = "web"
	SourceEvidence      = "evidence"
)

// RetrievedItem is one piece of retrieved material.
type RetrievedItem struct {
	Content  string   `json:"content"`
	Source   string   `json:"source"`
	Title    string   `json:"title,omitempty"`
	URL      string   `json:"url,omitempty"`
	Filename string   `json:"filename,omitempty"`
	Score    *float64 `json:"score,omitempty"`
	RefID    string   `json:"ref_id,omitempty"`
}

// Key identifies an item by content and source for de-duplication.
func (r RetrievedItem) Key() string {
	sum := md5.Sum([]byte(r.Content + "|" + r.Source))
	return hex.EncodeToString(sum[:])
}

// Label returns the best human-readable name for the item's origin.
func (r RetrievedItem) Label() string {
	switch {
	case r.Title != "":
		return r.Title
	case r.Filename != "":
		return r.Filename
	case r.URL != "":
		return r.URL
	default:
		return r.Source
	}
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 { return &v }

// SufficiencyVerdict is the evaluator's judgment on an evidence set.
type SufficiencyVerdict struct {
	Sufficient     bool     `json:"sufficient"`
	Reason         string   `json:"reason"`
	Score          float64  `json:"score"`
	MissingPoints  []string `json:"missing_points,omitempty"`
	ShouldContinue bool     `json:"should_continue"`
}

// =============================================================================
// WRITING
// =============================================================================

// Chart types.
const (
	ChartBar     = "bar"
	ChartLine    = "line"
	ChartPie     = "pie"
	ChartScatter = "scatter"
)

// ChartRequirement asks for a chart to be rendered for a section.
type ChartRequirement struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Anchor      string `json:"anchor"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// NewChartRequirement builds a requirement with defaults applied.
func NewChartRequirement(chartType, description, anchor string) *ChartRequirement {
	return &ChartRequirement{
		Type:        NormalizeChartType(chartType),
		Description: strings.TrimSpace(description),
		Anchor:      strings.TrimSpace(anchor),
		Width:       10,
		Height:      6,
	}
}

// NormalizeChartType maps unknown chart types to bar.
func NormalizeChartType(t string) string {
	switch t = strings.ToLower(strings.TrimSpace(t)); t {
	case ChartBar, ChartLine, ChartPie, ChartScatter:
		return t
	default:
		return ChartBar
	}
}

// Draft is the writer's output for one section.
type Draft struct {
	Content string            `json:"content"`
	Cited   []RetrievedItem   `json:"cited"`
	Chart   *ChartRequirement `json:"chart,omitempty"`
}

// WordBudget carries length hints for the writer.
type WordBudget struct {
	TargetTotal     int `json:"target_total"`
	WrittenSoFar    int `json:"written_so_far"`
	SectionPosition int `json:"section_position"`
	TotalSections   int `json:"total_sections"`
}

// Remaining returns the words left for this and later sections.
func (b WordBudget) Remaining() int {
	if r := b.TargetTotal - b.WrittenSoFar; r > 0 {
		return r
	}
	return 0
}

// PerSection returns the suggested length of the current section.
func (b WordBudget) PerSection() int {
	left := b.TotalSections - b.SectionPosition
	if left <= 0 {
		return b.Remaining()
	}
	return b.Remaining() / left
}

// WrittenSection is a finished section.
type WrittenSection struct {
	SectionID       string            `json:"section_id"`
	Level1          string            `json:"level1_title"`
	Level2          []string          `json:"level2_titles,omitempty"`
	Content         string            `json:"content"`
	Cited           []RetrievedItem   `json:"cited"`
	Chart           *ChartRequirement `json:"chart,omitempty"`
	ChartURL        string            `json:"chart_url,omitempty"`
	ChartGenerating bool              `json:"chart_generating"`
}

// HistoryRef names a prior section worth reviewing.
type HistoryRef struct {
	Title string `json:"title"`
	ID    string `json:"id"`
}

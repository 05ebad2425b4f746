package agents

import (
	"context"
	"fmt"
	"strings"

	"deepreport/internal/llm"
	"deepreport/internal/logging"
	"deepreport/internal/types"
)

// MinSectionQueries is the floor on initial queries per section.
const MinSectionQueries = 3

// QueryGenerator writes retrieval queries for sections and evidence gaps.
type QueryGenerator struct {
	client     types.LLMClient
	minQueries int
}

// NewQueryGenerator creates a generator producing at least minQueries
// initial queries per section (0 selects MinSectionQueries).
func NewQueryGenerator(client types.LLMClient, minQueries int) *QueryGenerator {
	if minQueries <= 0 {
		minQueries = MinSectionQueries
	}
	return &QueryGenerator{client: client, minQueries: minQueries}
}

// SectionQueryCount is how many initial queries a section needs: at least
// minQueries and at least one per sub-heading. Long sections without
// sub-headings get one more.
func (g *QueryGenerator) SectionQueryCount(section types.Section, outline *types.Outline) int {
	n := g.minQueries
	if len(section.Level2) > n {
		n = len(section.Level2)
	}
	if len(section.Level2) == 0 && outline != nil && len(outline.Sections) > 0 {
		if outline.EstimatedWords/len(outline.Sections) >= 800 {
			n++
		}
	}
	return n
}

// ForSection returns de-duplicated queries for a section. A model failure
// degrades to queries built from the headings, so the result always holds
// SectionQueryCount entries.
func (g *QueryGenerator) ForSection(ctx context.Context, section types.Section, outline *types.Outline, requirement string) ([]string, error) {
	n := g.SectionQueryCount(section, outline)

	var sb strings.Builder
	sb.WriteString("Section:\n- Heading: " + section.Level1 + "\n")
	if len(section.Level2) > 0 {
		sb.WriteString("- Sub-headings: " + strings.Join(section.Level2, "; ") + "\n")
	}
	if requirement != "" {
		sb.WriteString("\nReport subject: " + requirement + "\n")
	}
	if outline != nil && outline.EstimatedWords > 0 && len(outline.Sections) > 0 {
		fmt.Fprintf(&sb, "\nEstimated section length: %d words.\n", outline.EstimatedWords/len(outline.Sections))
	}
	fmt.Fprintf(&sb, "\nWrite %d queries as a JSON array.", n)

	var queries []string
	resp, err := g.client.CompleteWithSystem(ctx, fmt.Sprintf(sectionQueriesSystemPrompt, n, n), sb.String())
	if err == nil {
		err = llm.DecodeJSON(resp, &queries)
	}
	if err != nil {
		logging.PlanningWarn("Query generation for %q failed, using headings: %v", section.Level1, err)
	}

	queries = DedupeQueries(queries)
	if len(queries) > n {
		queries = queries[:n]
	}
	queries = padQueries(queries, fallbackQueries(section, requirement), n)

	logging.PlanningDebug("Section %q queries: %v", section.Level1, queries)
	return queries, nil
}

// ForGaps returns up to count de-duplicated queries targeting missing points.
func (g *QueryGenerator) ForGaps(ctx context.Context, section types.Section, missingPoints []string, count int, requirement string) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString("Section:\n- Heading: " + section.Level1 + "\n")
	if len(section.Level2) > 0 {
		sb.WriteString("- Sub-headings: " + strings.Join(section.Level2, "; ") + "\n")
	}
	if requirement != "" {
		sb.WriteString("\nReport subject: " + requirement + "\n")
	}
	sb.WriteString("\nMissing information:\n")
	for i, p := range missingPoints {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, p)
	}
	fmt.Fprintf(&sb, "\nWrite %d queries as a JSON array.", count)

	resp, err := g.client.CompleteWithSystem(ctx, fmt.Sprintf(gapQueriesSystemPrompt, count, count), sb.String())
	if err != nil {
		return nil, fmt.Errorf("gap query generation failed: %w", err)
	}

	var queries []string
	if err := llm.DecodeJSON(resp, &queries); err != nil {
		return nil, fmt.Errorf("failed to parse gap queries: %w", err)
	}
	queries = DedupeQueries(queries)
	if len(queries) > count {
		queries = queries[:count]
	}
	return queries, nil
}

// DedupeQueries trims queries and drops blanks and repeats, keeping the
// order of first occurrence.
func DedupeQueries(queries []string) []string {
	seen := make(map[string]bool, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}

func fallbackQueries(section types.Section, requirement string) []string {
	candidates := []string{section.Level1}
	for _, sub := range section.Level2 {
		candidates = append(candidates, section.Level1+" "+sub)
	}
	if requirement != "" {
		candidates = append(candidates, truncateRunes(requirement, 60)+" "+section.Level1)
	}
	for _, aspect := range []string{"overview", "statistics", "trends", "analysis", "outlook"} {
		candidates = append(candidates, section.Level1+" "+aspect)
	}
	return candidates
}

// padQueries appends unseen fallbacks until queries holds n entries.
func padQueries(queries, fallbacks []string, n int) []string {
	for _, f := range fallbacks {
		if len(queries) >= n {
			break
		}
		queries = DedupeQueries(append(queries, f))
	}
	return queries
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

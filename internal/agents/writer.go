package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"deepreport/internal/logging"
	"deepreport/internal/types"
)

const (
	writerMaxEvidence  = 10
	writerSnippetChars = 300
)

var (
	chartMarker     = regexp.MustCompile(`\[CHART:([^:\]]+):([^:\]]+):([^\]]+)\]`)
	citationsLine   = regexp.MustCompile(`(?i)^\[?\s*CITATIONS\s*:(.*?)\]?\s*$`)
	inlineCitation  = regexp.MustCompile(`\[\^?(?:ref_)?\d+\]`)
	repeatedBlanks  = regexp.MustCompile(`[ \t]{2,}`)
	spaceBeforePunc = regexp.MustCompile(`[ \t]+([。，、；：,.;:])`)
	excessNewlines  = regexp.MustCompile(`\n{3,}`)
)

// Writer drafts report sections.
type Writer struct {
	client types.LLMClient
}

// NewWriter creates a section writer.
func NewWriter(client types.LLMClient) *Writer {
	return &Writer{client: client}
}

// WriteSection drafts one section from its evidence. Evidence items are
// expected to carry ref ids; items without one are labelled ref_<position>.
func (w *Writer) WriteSection(ctx context.Context, req types.WriteRequest) (*types.Draft, error) {
	if strings.TrimSpace(req.Section.Level1) == "" {
		return nil, fmt.Errorf("section heading is empty")
	}

	evidence := make([]types.RetrievedItem, len(req.Evidence))
	copy(evidence, req.Evidence)
	for i := range evidence {
		if evidence[i].RefID == "" {
			evidence[i].RefID = fmt.Sprintf("ref_%d", i+1)
		}
	}

	timer := logging.StartTimer(logging.CategoryWorkflow, "Writer.WriteSection")
	defer timer.Stop()

	resp, err := w.client.CompleteWithSystem(ctx, buildWriterSystem(req), buildWriterPrompt(req, evidence))
	if err != nil {
		return nil, fmt.Errorf("section writing failed: %w", err)
	}

	draft, err := parseDraft(resp, req.Section.Level1, evidence)
	if err != nil {
		return nil, err
	}
	logging.Workflow("Wrote section %q: %d chars, %d citations, chart=%v",
		req.Section.Level1, len(draft.Content), len(draft.Cited), draft.Chart != nil)
	return draft, nil
}

func buildWriterSystem(req types.WriteRequest) string {
	structure := writerStructureFlat
	if len(req.Section.Level2) > 0 {
		structure = writerStructureWithSubs
	}
	length := writerLengthFree
	if b := req.Budget; b != nil && b.TargetTotal > 0 {
		length = fmt.Sprintf(writerLengthBudget, b.TargetTotal, b.WrittenSoFar, b.SectionPosition+1, b.TotalSections, b.PerSection())
	}
	return fmt.Sprintf(writerSystemPrompt, structure, length)
}

func buildWriterPrompt(req types.WriteRequest, evidence []types.RetrievedItem) string {
	var sb strings.Builder
	if req.Outline != nil {
		sb.WriteString("## Report outline\n" + req.Outline.Markdown() + "\n")
	}
	if req.Requirement != "" {
		sb.WriteString("## Requirement\n" + req.Requirement + "\n\n")
	}
	if req.PriorSummary != "" {
		sb.WriteString("## Previously written\n" + req.PriorSummary + "\n\n")
	}
	if len(req.History) > 0 {
		sb.WriteString("## Related written sections (for continuity)\n")
		for i, h := range req.History {
			fmt.Fprintf(&sb, "### Written section %d\n%s\n\n", i+1, h)
		}
	}
	if len(evidence) > 0 {
		sb.WriteString("## Retrieved information\n")
		for i, item := range evidence {
			if i == writerMaxEvidence {
				break
			}
			fmt.Fprintf(&sb, "[%d] [%s] %s (%s)\n   %s\n", i+1, item.RefID, item.Label(), item.Source, preview(item.Content, writerSnippetChars))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Task\n")
	total := "?"
	if req.Budget != nil && req.Budget.TotalSections > 0 {
		total = fmt.Sprint(req.Budget.TotalSections)
	} else if req.Outline != nil {
		total = fmt.Sprint(len(req.Outline.Sections))
	}
	fmt.Fprintf(&sb, "- Section %d of %s\n- Heading: ## %s\n", req.Section.Index+1, total, req.Section.Level1)
	if len(req.Section.Level2) > 0 {
		sb.WriteString("- Sub-headings, in this order:\n")
		for _, sub := range req.Section.Level2 {
			sb.WriteString("  - ### " + sub + "\n")
		}
	}
	sb.WriteString("\nWrite the complete section now, ending with the CITATIONS line.")
	return sb.String()
}

// parseDraft splits a model response into section content, the cited
// evidence and an optional chart request.
func parseDraft(raw, level1 string, evidence []types.RetrievedItem) (*types.Draft, error) {
	content, refs := extractCitations(strings.TrimSpace(raw))
	content = ensureHeading(content, level1)
	content = removeInlineCitations(content)

	var chart *types.ChartRequirement
	if m := chartMarker.FindStringSubmatch(content); m != nil {
		chart = types.NewChartRequirement(m[1], m[2], m[3])
		content = chartMarker.ReplaceAllString(content, "")
	}
	content = strings.TrimSpace(excessNewlines.ReplaceAllString(content, "\n\n"))

	if strings.TrimSpace(strings.TrimPrefix(content, "## "+level1)) == "" {
		return nil, fmt.Errorf("writer returned empty content for %q", level1)
	}

	var cited []types.RetrievedItem
	for _, item := range evidence {
		if refs[item.RefID] {
			cited = append(cited, item)
		}
	}
	return &types.Draft{Content: content, Cited: cited, Chart: chart}, nil
}

// extractCitations removes the last CITATIONS line and returns the ref ids it names.
func extractCitations(content string) (string, map[string]bool) {
	lines := strings.Split(content, "\n")
	refs := make(map[string]bool)
	for i := len(lines) - 1; i >= 0; i-- {
		m := citationsLine.FindStringSubmatch(strings.ReplaceAll(strings.TrimSpace(lines[i]), "*", ""))
		if m == nil {
			continue
		}
		for _, id := range strings.Split(m[1], ",") {
			id = strings.Trim(strings.TrimSpace(id), "[]")
			if id != "" {
				refs[id] = true
			}
		}
		lines = append(lines[:i], lines[i+1:]...)
		break
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), refs
}

func ensureHeading(content, level1 string) string {
	if strings.Contains(content, "## "+level1) || strings.Contains(content, "#"+level1) {
		return content
	}
	return "## " + level1 + "\n\n" + content
}

// removeInlineCitations drops [ref_1], [^1] and [1] marks. A bare [n] that is
// part of a link ("[[1]](url)" or "[1](url)") is kept.
func removeInlineCitations(content string) string {
	var sb strings.Builder
	last := 0
	for _, loc := range inlineCitation.FindAllStringIndex(content, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && content[start-1] == '[' {
			continue
		}
		if end < len(content) && content[end] == '(' {
			continue
		}
		sb.WriteString(content[last:start])
		last = end
	}
	sb.WriteString(content[last:])

	lines := strings.Split(sb.String(), "\n")
	for i, line := range lines {
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		body := repeatedBlanks.ReplaceAllString(line[indent:], " ")
		body = spaceBeforePunc.ReplaceAllString(body, "$1")
		lines[i] = line[:indent] + strings.TrimRight(body, " \t")
	}
	return strings.Join(lines, "\n")
}

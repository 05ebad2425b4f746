package workflow

import (
	"fmt"
	"strings"

	"deepreport/internal/types"
)

// Report is the result of a completed task.
type Report struct {
	TaskID   string                 `json:"task_id"`
	Outline  *types.Outline         `json:"outline"`
	Sections []types.WrittenSection `json:"sections"`
}

// References returns the cited items of all sections, de-duplicated by
// content and source, in first-cited order.
func (r *Report) References() []types.RetrievedItem {
	if r == nil {
		return nil
	}
	seen := make(map[string]bool)
	var refs []types.RetrievedItem
	for _, s := range r.Sections {
		for _, item := range s.Cited {
			key := item.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			refs = append(refs, item)
		}
	}
	return refs
}

// WordCount estimates the length of the written sections.
func (r *Report) WordCount() int {
	if r == nil {
		return 0
	}
	total := 0
	for _, s := range r.Sections {
		total += EstimateWordCount(s.Content)
	}
	return total
}

// Markdown assembles the final document: title, sections in outline order,
// then a numbered reference list.
func (r *Report) Markdown() string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	if r.Outline != nil && r.Outline.Title != "" {
		sb.WriteString("# " + r.Outline.Title + "\n\n")
	}
	for _, s := range r.Sections {
		sb.WriteString(strings.TrimSpace(s.Content))
		sb.WriteString("\n\n")
	}

	refs := r.References()
	if len(refs) > 0 {
		sb.WriteString("## References\n\n")
		for i, item := range refs {
			line := fmt.Sprintf("%d. %s", i+1, item.Label())
			if item.URL != "" && item.URL != item.Label() {
				line += " - " + item.URL
			}
			sb.WriteString(line + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

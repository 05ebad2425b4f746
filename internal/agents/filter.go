package agents

import (
	"context"
	"fmt"
	"strings"

	"deepreport/internal/llm"
	"deepreport/internal/logging"
	"deepreport/internal/types"
)

// filterTailChars is how much of each result's content the filter sees.
const filterTailChars = 300

// Filter keeps the most useful subset of pooled search results.
type Filter struct {
	client types.LLMClient
}

// NewFilter creates a result filter.
func NewFilter(client types.LLMClient) *Filter {
	return &Filter{client: client}
}

// Select returns at most req.Target results in the model's order. Pools no
// larger than the target are returned whole without a model call. Any model
// or parse failure falls back to the first Target results.
func (f *Filter) Select(ctx context.Context, req types.FilterRequest) ([]types.RetrievedItem, error) {
	n := len(req.Results)
	target := req.Target
	if target > n {
		target = n
	}
	if target <= 0 {
		return nil, nil
	}
	if n <= target {
		return append([]types.RetrievedItem(nil), req.Results...), nil
	}

	system := fmt.Sprintf(filterSystemPrompt, target)
	if len(req.MissingPoints) > 0 {
		system = fmt.Sprintf(filterGapSystemPrompt, target)
	}

	resp, err := f.client.CompleteWithSystem(ctx, system, buildFilterPrompt(req, target))
	if err != nil {
		logging.RetrievalWarn("Result filter failed, keeping first %d of %d: %v", target, n, err)
		return fallbackSelection(req.Results, target), nil
	}

	var indexes []int
	if err := llm.DecodeJSON(resp, &indexes); err != nil {
		logging.RetrievalWarn("Result filter returned no index list, keeping first %d of %d: %v", target, n, err)
		return fallbackSelection(req.Results, target), nil
	}

	selected := make([]types.RetrievedItem, 0, target)
	seen := make(map[int]bool, len(indexes))
	for _, idx := range indexes {
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		selected = append(selected, req.Results[idx])
		if len(selected) == target {
			break
		}
	}
	if len(selected) == 0 {
		logging.RetrievalWarn("Result filter selected no valid indexes, keeping first %d of %d", target, n)
		return fallbackSelection(req.Results, target), nil
	}

	logging.RetrievalDebug("Filter kept %d of %d results for %q", len(selected), n, req.Section.Level1)
	return selected, nil
}

func buildFilterPrompt(req types.FilterRequest, target int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Select the %d most relevant and complete results below.\n\n", target)
	sb.WriteString("Section:\n- Heading: " + req.Section.Level1 + "\n")
	if len(req.Section.Level2) > 0 {
		sb.WriteString("- Sub-headings: " + strings.Join(req.Section.Level2, "; ") + "\n")
	}
	if len(req.Queries) > 0 {
		sb.WriteString("\nQueries used:\n")
		for _, q := range req.Queries {
			sb.WriteString("- " + q + "\n")
		}
	}
	if len(req.MissingPoints) > 0 {
		sb.WriteString("\nMissing information to cover first:\n")
		for i, p := range req.MissingPoints {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, p)
		}
	}
	sb.WriteString("\nResults:\n")
	for i, r := range req.Results {
		fmt.Fprintf(&sb, "\n[Result %d]\nTitle: %s\nSource: %s\nContent: %s\n", i, r.Label(), r.Source, tail(r.Content, filterTailChars))
	}
	return sb.String()
}

// tail returns the last n runes of s, prefixed with an ellipsis when cut.
func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "..." + string(r[len(r)-n:])
}

func fallbackSelection(results []types.RetrievedItem, target int) []types.RetrievedItem {
	return append([]types.RetrievedItem(nil), results[:target]...)
}

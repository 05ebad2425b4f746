package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"deepreport/internal/llm"
	"deepreport/internal/logging"
	"deepreport/internal/types"
)

// MaxPriorSections caps how many written sections are offered for review.
const MaxPriorSections = 3

// historyLine matches "## Title [written] (ID: abc)" entries of a history listing.
var historyLine = regexp.MustCompile(`^\s*#{1,3}\s+(.+?)\s+\[written\]\s+\(ID:\s*([^)\s]+)\)`)

// Selector chooses prior sections worth reviewing before writing.
type Selector struct {
	client types.LLMClient
	limit  int
}

// NewSelector creates a selector returning at most limit references
// (0 selects MaxPriorSections).
func NewSelector(client types.LLMClient, limit int) *Selector {
	if limit <= 0 || limit > MaxPriorSections {
		limit = MaxPriorSections
	}
	return &Selector{client: client, limit: limit}
}

// ChooseRelevantPrior returns up to limit references to already written
// sections. Only IDs present in the listing are accepted.
func (s *Selector) ChooseRelevantPrior(ctx context.Context, section types.Section, historyTitles string) ([]types.HistoryRef, error) {
	known := parseHistoryListing(historyTitles)
	if len(known) == 0 {
		return nil, nil
	}

	user := fmt.Sprintf("Section to write:\n- Heading: %s\n- Sub-headings: %s\n\nWritten sections:\n%s\n\nReturn the IDs of the sections to review (at most %d), or [].",
		section.Level1, strings.Join(section.Level2, "; "), historyTitles, s.limit)

	resp, err := s.client.CompleteWithSystem(ctx, fmt.Sprintf(selectorSystemPrompt, s.limit), user)
	if err != nil {
		return nil, fmt.Errorf("history selection failed: %w", err)
	}

	var ids []string
	if err := llm.DecodeJSON(resp, &ids); err != nil {
		return nil, fmt.Errorf("failed to parse history selection: %w", err)
	}

	titles := make(map[string]string, len(known))
	for _, ref := range known {
		titles[ref.ID] = ref.Title
	}

	var refs []types.HistoryRef
	seen := make(map[string]bool)
	for _, id := range ids {
		id = strings.TrimSpace(id)
		title, ok := titles[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		refs = append(refs, types.HistoryRef{Title: title, ID: id})
		if len(refs) == s.limit {
			break
		}
	}

	logging.PlanningDebug("Selected %d prior sections for %q", len(refs), section.Level1)
	return refs, nil
}

func parseHistoryListing(listing string) []types.HistoryRef {
	var refs []types.HistoryRef
	for _, line := range strings.Split(listing, "\n") {
		if m := historyLine.FindStringSubmatch(line); m != nil {
			refs = append(refs, types.HistoryRef{Title: m[1], ID: m[2]})
		}
	}
	return refs
}

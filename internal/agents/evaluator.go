package agents

import (
	"context"
	"fmt"
	"math"
	"strings"

	"deepreport/internal/llm"
	"deepreport/internal/logging"
	"deepreport/internal/types"
)

const (
	// SufficientScore is the score at or above which evidence is sufficient.
	SufficientScore = 0.7
	// DefaultMaxRounds is the evaluation budget per section.
	DefaultMaxRounds = 2

	evalPreviewItems = 5
	evalPreviewChars = 200
)

// Evaluator judges whether evidence supports writing a section.
type Evaluator struct {
	client types.LLMClient
}

// NewEvaluator creates a sufficiency evaluator.
func NewEvaluator(client types.LLMClient) *Evaluator {
	return &Evaluator{client: client}
}

type evaluation struct {
	Sufficient    bool     `json:"sufficient"`
	Reason        string   `json:"reason"`
	Score         float64  `json:"score"`
	MissingPoints []string `json:"missing_points"`
}

// Evaluate returns a verdict for req.Evidence. Empty evidence is judged
// insufficient without a model call, with the section headings as missing
// points. Model and parse failures are returned as errors.
func (e *Evaluator) Evaluate(ctx context.Context, req types.EvaluationRequest) (*types.SufficiencyVerdict, error) {
	round, maxRounds := req.Round, req.MaxRounds
	if round <= 0 {
		round = 1
	}
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}

	if len(req.Evidence) == 0 {
		reason := "no evidence retrieved"
		if round >= maxRounds {
			reason = fmt.Sprintf("no evidence retrieved after %d rounds", maxRounds)
		}
		return &types.SufficiencyVerdict{
			Sufficient:     false,
			Reason:         reason,
			Score:          0,
			MissingPoints:  req.Section.Headings(),
			ShouldContinue: round < maxRounds,
		}, nil
	}

	resp, err := e.client.CompleteWithSystem(ctx, evaluatorSystemPrompt, buildEvaluationPrompt(req, round, maxRounds))
	if err != nil {
		return nil, fmt.Errorf("sufficiency evaluation failed: %w", err)
	}

	var ev evaluation
	if err := llm.DecodeJSON(resp, &ev); err != nil {
		return nil, fmt.Errorf("failed to parse sufficiency evaluation: %w", err)
	}

	score := math.Max(0, math.Min(1, ev.Score))
	sufficient := ev.Sufficient || score >= SufficientScore

	var missing []string
	if !sufficient {
		for _, p := range ev.MissingPoints {
			if p = strings.TrimSpace(p); p != "" {
				missing = append(missing, p)
			}
		}
	}

	verdict := &types.SufficiencyVerdict{
		Sufficient:     sufficient,
		Reason:         strings.TrimSpace(ev.Reason),
		Score:          math.Round(score*100) / 100,
		MissingPoints:  missing,
		ShouldContinue: !sufficient && round < maxRounds,
	}
	logging.WorkflowDebug("Evaluation %q round %d/%d: sufficient=%v score=%.2f missing=%d",
		req.Section.Level1, round, maxRounds, verdict.Sufficient, verdict.Score, len(missing))
	return verdict, nil
}

func buildEvaluationPrompt(req types.EvaluationRequest, round, maxRounds int) string {
	var sb strings.Builder
	sb.WriteString("Is the following information enough to write this section?\n\n")
	sb.WriteString("Section:\n- Heading: " + req.Section.Level1 + "\n")
	if len(req.Section.Level2) > 0 {
		sb.WriteString("- Sub-headings: " + strings.Join(req.Section.Level2, "; ") + "\n")
	}
	if req.Outline != nil {
		sb.WriteString("\nOutline:\n" + req.Outline.Markdown() + "\n")
	}

	if len(req.History) > 0 {
		fmt.Fprintf(&sb, "\nRelated written sections (%d):\n", len(req.History))
		for i, h := range req.History {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, preview(h, evalPreviewChars))
		}
	}

	fmt.Fprintf(&sb, "\nRetrieved information (%d items):\n", len(req.Evidence))
	for i, item := range req.Evidence {
		if i == evalPreviewItems {
			fmt.Fprintf(&sb, "... %d more items\n", len(req.Evidence)-evalPreviewItems)
			break
		}
		fmt.Fprintf(&sb, "%d. [%s] %s\n   %s\n", i+1, item.Source, item.Label(), preview(item.Content, evalPreviewChars))
	}

	fmt.Fprintf(&sb, "\nRetrieval round: %d/%d\n", round, maxRounds)
	sb.WriteString("Return the evaluation as JSON.")
	return sb.String()
}

// preview returns the first n runes of s, with an ellipsis when cut.
func preview(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}

// Package agents implements the LLM-backed capabilities the report workflow
// depends on: outline planning, prior-section selection, query generation,
// result filtering, sufficiency evaluation and section writing.
package agents

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"deepreport/internal/llm"
	"deepreport/internal/logging"
	"deepreport/internal/types"
)

// DefaultEstimatedWords is used when the requirement names no target length.
const DefaultEstimatedWords = 1500

// Planner generates report outlines.
type Planner struct {
	client       types.LLMClient
	defaultWords int
}

// NewPlanner creates a planner. defaultWords <= 0 selects DefaultEstimatedWords.
func NewPlanner(client types.LLMClient, defaultWords int) *Planner {
	if defaultWords <= 0 {
		defaultWords = DefaultEstimatedWords
	}
	return &Planner{client: client, defaultWords: defaultWords}
}

type planResponse struct {
	types.Outline
	OutlineMarkdown string `json:"outline_markdown"`
}

// Generate asks the model for an outline. The result is normalized but not
// validated; callers run types.ValidateOutline.
func (p *Planner) Generate(ctx context.Context, requirement string) (*types.Outline, error) {
	requirement = strings.TrimSpace(requirement)
	if requirement == "" {
		return nil, fmt.Errorf("requirement is empty")
	}

	timer := logging.StartTimer(logging.CategoryPlanning, "Planner.Generate")
	defer timer.Stop()

	resp, err := p.client.CompleteWithSystem(ctx,
		fmt.Sprintf(plannerSystemPrompt, p.defaultWords),
		"Requirement:\n"+requirement+"\n\nReturn the outline as JSON.")
	if err != nil {
		return nil, fmt.Errorf("outline generation failed: %w", err)
	}

	var plan planResponse
	if err := llm.DecodeJSON(resp, &plan); err != nil {
		// Some models answer with the markdown outline only.
		if parsed, perr := ParseOutlineMarkdown(resp); perr == nil {
			logging.PlanningWarn("Outline JSON unparseable, using markdown headings: %v", err)
			parsed.EstimatedWords = p.defaultWords
			return normalizeOutline(parsed), nil
		}
		return nil, fmt.Errorf("failed to parse outline: %w", err)
	}

	outline := &plan.Outline
	if len(outline.Sections) == 0 && plan.OutlineMarkdown != "" {
		if parsed, perr := ParseOutlineMarkdown(plan.OutlineMarkdown); perr == nil {
			parsed.EstimatedWords = outline.EstimatedWords
			if parsed.Title == "" {
				parsed.Title = outline.Title
			}
			outline = parsed
		}
	}
	if outline.EstimatedWords <= 0 {
		outline.EstimatedWords = p.defaultWords
	}

	outline = normalizeOutline(outline)
	logging.Planning("Outline generated: %q, %d sections, ~%d words", outline.Title, len(outline.Sections), outline.EstimatedWords)
	return outline, nil
}

// ParseOutlineMarkdown reads an outline written as headings: "# " for the
// title, "## " for top-level sections and "### " for their sub-headings.
// Deeper headings and body text are ignored.
func ParseOutlineMarkdown(md string) (*types.Outline, error) {
	outline := &types.Outline{}
	scanner := bufio.NewScanner(strings.NewReader(md))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "### "):
			if len(outline.Sections) == 0 {
				continue
			}
			last := &outline.Sections[len(outline.Sections)-1]
			last.Level2 = append(last.Level2, strings.TrimSpace(line[4:]))
		case strings.HasPrefix(line, "## "):
			outline.Sections = append(outline.Sections, types.OutlineSection{Level1: strings.TrimSpace(line[3:])})
		case strings.HasPrefix(line, "# "):
			if outline.Title == "" {
				outline.Title = strings.TrimSpace(line[2:])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if outline.Title == "" && len(outline.Sections) == 0 {
		return nil, fmt.Errorf("no outline headings found")
	}
	return normalizeOutline(outline), nil
}

// normalizeOutline trims headings and drops empty sub-headings.
func normalizeOutline(o *types.Outline) *types.Outline {
	o.Title = strings.TrimSpace(strings.TrimLeft(o.Title, "# "))
	sections := o.Sections[:0]
	for _, s := range o.Sections {
		s.Level1 = strings.TrimSpace(strings.TrimLeft(s.Level1, "# "))
		if s.Level1 == "" {
			continue
		}
		var subs []string
		for _, sub := range s.Level2 {
			if sub = strings.TrimSpace(strings.TrimLeft(sub, "# ")); sub != "" {
				subs = append(subs, sub)
			}
		}
		s.Level2 = subs
		sections = append(sections, s)
	}
	o.Sections = sections
	return o
}

package types

import (
	"context"
)

// LLMClient defines the interface for LLM interactions.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OutlinePlanner produces a report outline for a requirement.
type OutlinePlanner interface {
	Generate(ctx context.Context, requirement string) (*Outline, error)
}

// SectionSelector picks prior finished sections worth reviewing.
type SectionSelector interface {
	// ChooseRelevantPrior returns at most three references drawn from the
	// formatted history listing.
	ChooseRelevantPrior(ctx context.Context, section Section, historyTitles string) ([]HistoryRef, error)
}

// QueryGenerator produces retrieval queries.
type QueryGenerator interface {
	ForSection(ctx context.Context, section Section, outline *Outline, requirement string) ([]string, error)
	ForGaps(ctx context.Context, section Section, missingPoints []string, count int, requirement string) ([]string, error)
}

// Retriever searches one evidence source.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]RetrievedItem, error)
}

// FilterRequest carries everything the filter needs to pick a subset.
type FilterRequest struct {
	Results       []RetrievedItem
	Section       Section
	Queries       []string
	Outline       *Outline
	Target        int
	MissingPoints []string
}

// ResultFilter keeps the most useful subset of pooled results.
type ResultFilter interface {
	Select(ctx context.Context, req FilterRequest) ([]RetrievedItem, error)
}

// EvaluationRequest carries the evidence under judgment.
type EvaluationRequest struct {
	Section   Section
	Evidence  []RetrievedItem
	History   []string
	Outline   *Outline
	Round     int
	MaxRounds int
}

// SufficiencyEvaluator judges whether evidence supports writing a section.
type SufficiencyEvaluator interface {
	Evaluate(ctx context.Context, req EvaluationRequest) (*SufficiencyVerdict, error)
}

// WriteRequest carries the writer's inputs for one section.
type WriteRequest struct {
	Section      Section
	Evidence     []RetrievedItem
	History      []string
	Outline      *Outline
	Requirement  string
	PriorSummary string
	Budget       *WordBudget
}

// Writer drafts one section.
type Writer interface {
	WriteSection(ctx context.Context, req WriteRequest) (*Draft, error)
}

// ChartRenderer turns a chart requirement into an image URL.
// An empty URL with a nil error means no chart could be produced.
type ChartRenderer interface {
	Render(ctx context.Context, content string, req ChartRequirement, section Section) (string, error)
}

package config

import (
	"fmt"
	"time"
)

// WorkflowConfig holds orchestrator policy knobs.
type WorkflowConfig struct {
	ChartWait            string  `yaml:"chart_wait" json:"chart_wait"`                       // Ceiling for joining chart tasks at Complete
	RetrievalParallelism int     `yaml:"retrieval_parallelism" json:"retrieval_parallelism"` // Max concurrent main-index/web calls per pass
	FetchK               int     `yaml:"fetch_k" json:"fetch_k"`                             // Results requested per query per source
	PerSourceK           int     `yaml:"per_source_k" json:"per_source_k"`                   // Unseen results kept per query per source
	EvidenceK            int     `yaml:"evidence_k" json:"evidence_k"`                       // Ephemeral index hits per query
	FilterRatio          float64 `yaml:"filter_ratio" json:"filter_ratio"`
	FilterMin            int     `yaml:"filter_min" json:"filter_min"`
	FilterMax            int     `yaml:"filter_max" json:"filter_max"`
	MinQueries           int     `yaml:"min_queries" json:"min_queries"`
	MaxPriorSections     int     `yaml:"max_prior_sections" json:"max_prior_sections"` // Prior sections offered for review
	SummarySections      int     `yaml:"summary_sections" json:"summary_sections"`     // Written sections summarized for the writer
	SummaryChars         int     `yaml:"summary_chars" json:"summary_chars"`
	DefaultWords         int     `yaml:"default_words" json:"default_words"`
	EventBuffer          int     `yaml:"event_buffer" json:"event_buffer"`
}

// DefaultWorkflowConfig returns the orchestrator defaults.
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		ChartWait:            "60s",
		RetrievalParallelism: 6,
		FetchK:               5,
		PerSourceK:           3,
		EvidenceK:            1,
		FilterRatio:          0.6,
		FilterMin:            3,
		FilterMax:            10,
		MinQueries:           3,
		MaxPriorSections:     3,
		SummarySections:      3,
		SummaryChars:         200,
		DefaultWords:         1500,
		EventBuffer:          64,
	}
}

// GetChartWait returns the chart join ceiling as a duration.
func (w WorkflowConfig) GetChartWait() time.Duration {
	return parseDuration(w.ChartWait, 60*time.Second)
}

// FilterTarget returns how many of n pooled results the filter keeps.
func (w WorkflowConfig) FilterTarget(n int) int {
	if n <= 0 {
		return 0
	}
	target := int(float64(n) * w.FilterRatio)
	if target < w.FilterMin {
		target = w.FilterMin
	}
	if target > w.FilterMax {
		target = w.FilterMax
	}
	if target > n {
		target = n
	}
	return target
}

// Validate checks that workflow knobs are within acceptable ranges.
func (w WorkflowConfig) Validate() error {
	if w.RetrievalParallelism < 1 {
		return fmt.Errorf("workflow.retrieval_parallelism must be >= 1")
	}
	if w.PerSourceK < 1 || w.FetchK < w.PerSourceK {
		return fmt.Errorf("workflow.fetch_k (%d) must be >= per_source_k (%d) >= 1", w.FetchK, w.PerSourceK)
	}
	if w.FilterRatio <= 0 || w.FilterRatio > 1 {
		return fmt.Errorf("workflow.filter_ratio must be in (0, 1]")
	}
	if w.FilterMin < 1 || w.FilterMax < w.FilterMin {
		return fmt.Errorf("workflow.filter_min/filter_max out of range: %d/%d", w.FilterMin, w.FilterMax)
	}
	if w.MaxPriorSections < 0 || w.SummarySections < 0 {
		return fmt.Errorf("workflow section counts must be >= 0")
	}
	return nil
}

package workflow

import (
	"testing"

	"deepreport/internal/types"

	"github.com/stretchr/testify/assert"
)

func TestReportMarkdown(t *testing.T) {
	shared := types.RetrievedItem{Content: "c1", Source: types.SourceWeb, Title: "Shares", URL: "https://a.example/1", RefID: "ref_1"}
	report := &Report{
		TaskID:  "t",
		Outline: &types.Outline{Title: "EV Battery Market"},
		Sections: []types.WrittenSection{
			{Content: "## Market\n\nText.\n", Cited: []types.RetrievedItem{shared}},
			{Content: "## Outlook\n\nMore.", Cited: []types.RetrievedItem{
				{Content: "c1", Source: types.SourceWeb, Title: "Shares", URL: "https://a.example/1", RefID: "ref_5"},
				{Content: "c2", Source: types.SourceKnowledgeBase, Filename: "prices.md"},
			}},
		},
	}

	want := "# EV Battery Market\n\n" +
		"## Market\n\nText.\n\n" +
		"## Outlook\n\nMore.\n\n" +
		"## References\n\n" +
		"1. Shares - https://a.example/1\n" +
		"2. prices.md\n"
	assert.Equal(t, want, report.Markdown())
	assert.Len(t, report.References(), 2)
	assert.Equal(t, 6, report.WordCount())
}

func TestReportMarkdownNil(t *testing.T) {
	var r *Report
	assert.Empty(t, r.Markdown())
	assert.Nil(t, r.References())
}

func TestEstimateWordCount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "   ", 0},
		{"english", "Battery prices fell sharply in 2024.", 6},
		{"chinese", "电池价格在二零二四年大幅下降", 14},
		{"mostly chinese", "电池价格 LFP 下降", 6},
		{"mostly english", "The 电池 market grew", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateWordCount(tt.text))
		})
	}
}

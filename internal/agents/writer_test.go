package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"deepreport/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refEvidence() []types.RetrievedItem {
	return []types.RetrievedItem{
		{Content: "Share data", Source: types.SourceWeb, Title: "Share", RefID: "ref_7"},
		{Content: "Price data", Source: types.SourceKnowledgeBase, Filename: "prices.md", RefID: "ref_8"},
		{Content: "Policy data", Source: types.SourceEvidence, Title: "Policy", RefID: "ref_9"},
	}
}

const draftResponse = `Intro without a heading [ref_7] text.

### Sub A

Facts [1] and [^2] here. See [[3]](http://example.com/3).

[CHART:pie:Market share 2024:### Sub A]

**CITATIONS:** ref_7, ref_9, ref_99`

func TestWriteSectionParsesDraft(t *testing.T) {
	client := reply(draftResponse)
	section := types.Section{ID: "section_1", Level1: "Market", Level2: []string{"Sub A", "Sub B"}}

	draft, err := NewWriter(client).WriteSection(context.Background(), types.WriteRequest{
		Section:  section,
		Evidence: refEvidence(),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(draft.Content, "## Market\n\nIntro without a heading text."), draft.Content)
	assert.Contains(t, draft.Content, "Facts and here. See [[3]](http://example.com/3).")
	assert.NotContains(t, draft.Content, "CHART")
	assert.NotContains(t, draft.Content, "CITATIONS")
	assert.NotContains(t, draft.Content, "\n\n\n")

	require.Len(t, draft.Cited, 2)
	assert.Equal(t, "ref_7", draft.Cited[0].RefID)
	assert.Equal(t, "ref_9", draft.Cited[1].RefID)

	require.NotNil(t, draft.Chart)
	assert.Equal(t, &types.ChartRequirement{Type: "pie", Description: "Market share 2024", Anchor: "### Sub A", Width: 10, Height: 6}, draft.Chart)

	user := client.Users[0]
	assert.Contains(t, user, "[1] [ref_7] Share (web)")
	assert.Contains(t, user, "[2] [ref_8] prices.md (knowledge_base)")
	assert.Contains(t, user, "  - ### Sub B")
	assert.Contains(t, client.Systems[0], "in the order given")
}

func TestWriteSectionWithoutCitations(t *testing.T) {
	draft, err := NewWriter(reply("## Outlook\n\nSteady growth.\n\n[CHART:radar:Growth:Outlook]")).WriteSection(context.Background(), types.WriteRequest{
		Section: types.Section{Level1: "Outlook"},
	})
	require.NoError(t, err)
	assert.Equal(t, "## Outlook\n\nSteady growth.", draft.Content)
	assert.Empty(t, draft.Cited)
	require.NotNil(t, draft.Chart)
	assert.Equal(t, types.ChartBar, draft.Chart.Type)
	assert.Equal(t, "Outlook", draft.Chart.Anchor)
}

func TestWriteSectionAssignsMissingRefIDs(t *testing.T) {
	client := reply("## A\n\nBody.\nCITATIONS: ref_2")
	evidence := []types.RetrievedItem{{Content: "one", Source: "web"}, {Content: "two", Source: "web"}}

	draft, err := NewWriter(client).WriteSection(context.Background(), types.WriteRequest{Section: types.Section{Level1: "A"}, Evidence: evidence})
	require.NoError(t, err)
	require.Len(t, draft.Cited, 1)
	assert.Equal(t, "two", draft.Cited[0].Content)
	assert.Empty(t, evidence[1].RefID, "caller evidence must not be mutated")
}

func TestWriteSectionBudgetPrompt(t *testing.T) {
	client := reply("## A\n\nBody.")
	_, err := NewWriter(client).WriteSection(context.Background(), types.WriteRequest{
		Section: types.Section{Level1: "A", Index: 1},
		Budget:  &types.WordBudget{TargetTotal: 3000, WrittenSoFar: 1000, SectionPosition: 1, TotalSections: 3},
	})
	require.NoError(t, err)
	assert.Contains(t, client.Systems[0], "targets about 3000 words; about 1000 have been written")
	assert.Contains(t, client.Systems[0], "This is section 2 of 3. Aim for roughly 1000 words")
	assert.Contains(t, client.Users[0], "- Section 2 of 3")
}

func TestWriteSectionErrors(t *testing.T) {
	_, err := NewWriter(reply("## A")).WriteSection(context.Background(), types.WriteRequest{Section: types.Section{}})
	require.Error(t, err)

	_, err = NewWriter(failing(errors.New("quota"))).WriteSection(context.Background(), types.WriteRequest{Section: types.Section{Level1: "A"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")

	_, err = NewWriter(reply("CITATIONS: ref_1")).WriteSection(context.Background(), types.WriteRequest{Section: types.Section{Level1: "A"}})
	require.Error(t, err)
}

func TestRemoveInlineCitations(t *testing.T) {
	in := "  - Value [ref_12] rose [3] sharply [^4].\n[5](http://x) and [[6]](http://y)"
	want := "  - Value rose sharply.\n[5](http://x) and [[6]](http://y)"
	assert.Equal(t, want, removeInlineCitations(in))
}

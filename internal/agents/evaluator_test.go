package agents

import (
	"context"
	"errors"
	"testing"

	"deepreport/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluatorEmptyEvidence(t *testing.T) {
	client := reply(`{"sufficient": true, "score": 1}`)
	e := NewEvaluator(client)

	v, err := e.Evaluate(context.Background(), types.EvaluationRequest{Section: supplySection, Round: 1, MaxRounds: 2})
	require.NoError(t, err)
	assert.False(t, v.Sufficient)
	assert.True(t, v.ShouldContinue)
	assert.Equal(t, []string{"Supply Chain", "Upstream", "Downstream"}, v.MissingPoints)
	assert.Zero(t, client.Calls())

	v, err = e.Evaluate(context.Background(), types.EvaluationRequest{Section: supplySection, Round: 2, MaxRounds: 2})
	require.NoError(t, err)
	assert.False(t, v.Sufficient)
	assert.False(t, v.ShouldContinue, "exhausted round budget must stop")
}

func TestEvaluatorScoreThreshold(t *testing.T) {
	client := reply(`{"sufficient": false, "reason": "covers the main points", "score": 0.75, "missing_points": ["minor detail"]}`)

	v, err := NewEvaluator(client).Evaluate(context.Background(), types.EvaluationRequest{
		Section:  supplySection,
		Evidence: pooledResults(2),
		Round:    1,
	})
	require.NoError(t, err)
	assert.True(t, v.Sufficient)
	assert.False(t, v.ShouldContinue)
	assert.Empty(t, v.MissingPoints)
	assert.Equal(t, 0.75, v.Score)
	assert.Equal(t, "covers the main points", v.Reason)
}

func TestEvaluatorInsufficient(t *testing.T) {
	client := reply("```json\n{\"sufficient\": false, \"reason\": \"thin\", \"score\": 0.4, \"missing_points\": [\" 2024 volumes \", \"\", \"prices\"]}\n```")
	e := NewEvaluator(client)
	req := types.EvaluationRequest{Section: supplySection, Evidence: pooledResults(7), Round: 1, MaxRounds: 2}

	v, err := e.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, v.Sufficient)
	assert.True(t, v.ShouldContinue)
	assert.Equal(t, []string{"2024 volumes", "prices"}, v.MissingPoints)
	assert.Contains(t, client.Users[0], "... 2 more items")
	assert.Contains(t, client.Users[0], "Retrieval round: 1/2")

	req.Round = 2
	v, err = e.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, v.ShouldContinue)
}

func TestEvaluatorClampsScore(t *testing.T) {
	v, err := NewEvaluator(reply(`{"sufficient": true, "score": 1.4}`)).Evaluate(context.Background(), types.EvaluationRequest{
		Section:  supplySection,
		Evidence: pooledResults(1),
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Score)
	assert.True(t, v.Sufficient)
}

func TestEvaluatorErrors(t *testing.T) {
	req := types.EvaluationRequest{Section: supplySection, Evidence: pooledResults(1)}

	_, err := NewEvaluator(failing(errors.New("503"))).Evaluate(context.Background(), req)
	require.Error(t, err)

	_, err = NewEvaluator(reply("looks fine to me")).Evaluate(context.Background(), req)
	require.Error(t, err)
}

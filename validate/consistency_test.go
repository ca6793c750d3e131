package validate

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Younthing/eagent-sub001/schema"
)

func consistencyPair() []schema.FusedEvidenceCandidate {
	return []schema.FusedEvidenceCandidate{
		{QuestionID: "q1", ParagraphID: "pA", Text: "The trial was randomized."},
		{QuestionID: "q1", ParagraphID: "pB", Text: "Assignment was not randomized."},
	}
}

func consistencyFailJSON(quoteA, quoteB string) string {
	return fmt.Sprintf(`{"label": "fail", "confidence": 0.9, "conflicts": [
		{"paragraph_id_a": "pA", "paragraph_id_b": "pB", "reason": "contradictory design", "quote_a": %q, "quote_b": %q}
	]}`, quoteA, quoteB)
}

func TestConsistencyFewCandidates(t *testing.T) {
	v, err := NewConsistencyValidator(nil, DefaultConsistencyConfig(), nil, nil)
	require.NoError(t, err)

	verdict, err := v.Evaluate(context.Background(), "q?", nil)
	require.NoError(t, err)
	assert.Equal(t, "unknown", verdict.Label)

	verdict, err = v.Evaluate(context.Background(), "q?", consistencyPair()[:1])
	require.NoError(t, err)
	assert.Equal(t, "pass", verdict.Label, "a single candidate cannot contradict itself")
}

func TestConsistencyNilJudgeUnknown(t *testing.T) {
	v, err := NewConsistencyValidator(nil, DefaultConsistencyConfig(), nil, nil)
	require.NoError(t, err)

	verdict, err := v.Evaluate(context.Background(), "q?", consistencyPair())
	require.NoError(t, err)
	assert.Equal(t, "unknown", verdict.Label)
}

func TestConsistencyFailWithGroundedQuotes(t *testing.T) {
	judge := &scriptedJudge{responses: []string{consistencyFailJSON("was randomized", "not randomized")}}
	v, err := NewConsistencyValidator(judge, DefaultConsistencyConfig(), nil, nil)
	require.NoError(t, err)

	verdict, err := v.Evaluate(context.Background(), "q?", consistencyPair())
	require.NoError(t, err)
	assert.Equal(t, "fail", verdict.Label)
	require.Len(t, verdict.Conflicts, 1)
	assert.Equal(t, "pA", verdict.Conflicts[0].ParagraphIDA)
	assert.Equal(t, "was randomized", verdict.Conflicts[0].QuoteA)
}

func TestConsistencyUngroundedQuoteDowngrades(t *testing.T) {
	// quote_b 不是 pB 原文子串: 引文置空，fail 随之降级 unknown。
	judge := &scriptedJudge{responses: []string{consistencyFailJSON("was randomized", "fabricated quote")}}
	v, err := NewConsistencyValidator(judge, DefaultConsistencyConfig(), nil, nil)
	require.NoError(t, err)

	verdict, err := v.Evaluate(context.Background(), "q?", consistencyPair())
	require.NoError(t, err)
	assert.Equal(t, "unknown", verdict.Label)
	assert.Empty(t, verdict.Conflicts)
}

func TestConsistencyLowConfidenceDowngrades(t *testing.T) {
	judge := &scriptedJudge{responses: []string{`{"label": "fail", "confidence": 0.3, "conflicts": [
		{"paragraph_id_a": "pA", "paragraph_id_b": "pB", "quote_a": "was randomized", "quote_b": "not randomized"}
	]}`}}
	v, err := NewConsistencyValidator(judge, DefaultConsistencyConfig(), nil, nil)
	require.NoError(t, err)

	verdict, err := v.Evaluate(context.Background(), "q?", consistencyPair())
	require.NoError(t, err)
	assert.Equal(t, "unknown", verdict.Label)
}

func TestConsistencyDropsMalformedConflicts(t *testing.T) {
	judge := &scriptedJudge{responses: []string{`{"label": "fail", "confidence": 0.9, "conflicts": [
		{"paragraph_id_a": "pA", "paragraph_id_b": "pA"},
		{"paragraph_id_a": "pA", "paragraph_id_b": "ghost"},
		{"paragraph_id_a": "", "paragraph_id_b": "pB"}
	]}`}}
	v, err := NewConsistencyValidator(judge, DefaultConsistencyConfig(), nil, nil)
	require.NoError(t, err)

	verdict, err := v.Evaluate(context.Background(), "q?", consistencyPair())
	require.NoError(t, err)
	assert.Equal(t, "unknown", verdict.Label, "fail without usable conflicts is unknown")
}

func TestConsistencyPass(t *testing.T) {
	judge := &scriptedJudge{responses: []string{`{"label": "pass", "confidence": 0.8, "conflicts": []}`}}
	v, err := NewConsistencyValidator(judge, DefaultConsistencyConfig(), nil, nil)
	require.NoError(t, err)

	verdict, err := v.Evaluate(context.Background(), "q?", consistencyPair())
	require.NoError(t, err)
	assert.Equal(t, "pass", verdict.Label)
	require.NotNil(t, verdict.Confidence)
	assert.InDelta(t, 0.8, *verdict.Confidence, 1e-9)
}

func TestConsistencyParseFailureIsHardError(t *testing.T) {
	judge := &scriptedJudge{responses: []string{"no json here"}}
	v, err := NewConsistencyValidator(judge, DefaultConsistencyConfig(), nil, nil)
	require.NoError(t, err)

	_, err = v.Evaluate(context.Background(), "q?", consistencyPair())
	assert.ErrorContains(t, err, "parse consistency response")
}

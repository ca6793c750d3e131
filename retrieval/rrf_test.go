package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRRFFuseRankingsCrossQueryAgreement(t *testing.T) {
	rankings := map[string][]RankedHit{
		"randomization":    {{DocIndex: 2, Score: 5.0}, {DocIndex: 0, Score: 1.0}},
		"sealed envelopes": {{DocIndex: 2, Score: 3.0}},
	}
	fused := RRFFuseRankings(rankings, 60)
	require.Len(t, fused, 2)

	assert.Equal(t, 2, fused[0].DocIndex, "doc hit by both queries wins")
	assert.InDelta(t, 2.0/61.0, fused[0].RRFScore, 1e-12)
	assert.Equal(t, 1, fused[0].BestRank)
	assert.Equal(t, "randomization", fused[0].BestQuery, "query with the best engine score")
	assert.Equal(t, 5.0, fused[0].BestEngineScore)
	assert.Equal(t, map[string]int{"randomization": 1, "sealed envelopes": 1}, fused[0].QueryRanks)

	assert.Equal(t, 0, fused[1].DocIndex)
	assert.InDelta(t, 1.0/62.0, fused[1].RRFScore, 1e-12)
}

func TestRRFFuseRankingsTieBreakByDocIndex(t *testing.T) {
	rankings := map[string][]RankedHit{
		"a": {{DocIndex: 7, Score: 1.0}},
		"b": {{DocIndex: 3, Score: 1.0}},
	}
	fused := RRFFuseRankings(rankings, 60)
	require.Len(t, fused, 2)
	assert.Equal(t, 3, fused[0].DocIndex)
	assert.Equal(t, 7, fused[1].DocIndex)
}

func TestRRFFuseRankingsDeterministic(t *testing.T) {
	rankings := map[string][]RankedHit{
		"q1": {{DocIndex: 1, Score: 2}, {DocIndex: 2, Score: 1}},
		"q2": {{DocIndex: 2, Score: 4}, {DocIndex: 3, Score: 3}},
		"q3": {{DocIndex: 3, Score: 6}, {DocIndex: 1, Score: 5}},
	}
	first := RRFFuseRankings(rankings, 60)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, RRFFuseRankings(rankings, 60))
	}
}

func TestRRFFuseRankingsEmpty(t *testing.T) {
	assert.Empty(t, RRFFuseRankings(nil, 60))
	assert.Empty(t, RRFFuseRankings(map[string][]RankedHit{"q": nil}, 60))
}

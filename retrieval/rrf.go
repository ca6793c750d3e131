package retrieval

import "sort"

// RankedHit 单条查询排名中的一个文档。
type RankedHit struct {
	DocIndex int     `json:"doc_index"`
	Score    float64 `json:"score"`
}

// RRFHit 多查询融合后的文档。
type RRFHit struct {
	DocIndex        int            `json:"doc_index"`
	RRFScore        float64        `json:"rrf_score"`
	BestRank        int            `json:"best_rank"`
	QueryRanks      map[string]int `json:"query_ranks,omitempty"`
	BestQuery       string         `json:"best_query,omitempty"`
	BestEngineScore float64        `json:"best_engine_score"`
}

// RRFFuseRankings 把同一引擎多条查询的排名融合成单一排名。
// 查询按名字排序后累加，保证浮点求和顺序稳定、输出可复现。
// 排序键 (-rrf_score, best_rank, -best_engine_score, doc_index)。
func RRFFuseRankings(rankings map[string][]RankedHit, k int) []RRFHit {
	queries := make([]string, 0, len(rankings))
	for query := range rankings {
		queries = append(queries, query)
	}
	sort.Strings(queries)

	byDoc := make(map[int]*RRFHit)
	for _, query := range queries {
		for i, hit := range rankings[query] {
			rank := i + 1
			state, ok := byDoc[hit.DocIndex]
			if !ok {
				state = &RRFHit{
					DocIndex:   hit.DocIndex,
					BestRank:   rank,
					QueryRanks: make(map[string]int),
				}
				byDoc[hit.DocIndex] = state
			}
			state.RRFScore += 1.0 / float64(k+rank)
			state.QueryRanks[query] = rank
			if rank < state.BestRank {
				state.BestRank = rank
			}
			if state.BestQuery == "" || hit.Score > state.BestEngineScore {
				state.BestEngineScore = hit.Score
				state.BestQuery = query
			}
		}
	}

	fused := make([]RRFHit, 0, len(byDoc))
	for _, state := range byDoc {
		fused = append(fused, *state)
	}
	sort.Slice(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.RRFScore != b.RRFScore {
			return a.RRFScore > b.RRFScore
		}
		if a.BestRank != b.BestRank {
			return a.BestRank < b.BestRank
		}
		if a.BestEngineScore != b.BestEngineScore {
			return a.BestEngineScore > b.BestEngineScore
		}
		return a.DocIndex < b.DocIndex
	})
	return fused
}

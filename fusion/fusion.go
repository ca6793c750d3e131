// Package fusion merges per-engine ranked candidate lists into one ranked,
// deduplicated, engine-attributed list per question using Reciprocal Rank
// Fusion, and re-merges partial retry results by question id.
package fusion

import (
	"fmt"
	"sort"

	"github.com/Younthing/eagent-sub001/schema"
)

// Config 融合配置。
type Config struct {
	// RRFK RRF 平滑常数，必须 >= 1。
	RRFK int `json:"rrf_k" yaml:"rrf_k"`
	// EngineWeights 引擎权重，缺省 1.0，必须 >= 0。
	EngineWeights map[string]float64 `json:"engine_weights,omitempty" yaml:"engine_weights,omitempty"`
}

// DefaultConfig 返回默认融合配置。
func DefaultConfig() Config {
	return Config{RRFK: 60}
}

// Validate 校验融合配置，非法值立即失败。
func (c Config) Validate() error {
	if c.RRFK < 1 {
		return fmt.Errorf("rrf_k must be >= 1, got %d", c.RRFK)
	}
	for engine, weight := range c.EngineWeights {
		if weight < 0 {
			return fmt.Errorf("engine_weights[%s] must be >= 0, got %v", engine, weight)
		}
	}
	return nil
}

// FuseForQuestion 用基于排名的 RRF 融合单个问题的多引擎候选。
// 每个段落在每个引擎内只保留最优（最小）排名作为支持；
// fusion_score = Σ weight(engine) * 1/(rrf_k + rank)。
// 排序键 (-fusion_score, -support_count, best_rank, paragraph_id) 保证确定性。
func FuseForQuestion(questionID string, candidatesByEngine map[string][]schema.EvidenceCandidate, cfg Config) ([]schema.FusedEvidenceCandidate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	type paragraphState struct {
		supports      map[string]schema.EvidenceSupport
		bestCandidate schema.EvidenceCandidate
		bestRank      int
	}
	states := make(map[string]*paragraphState)

	// 引擎按名字排序遍历，排名并列时 bestCandidate 取字典序最小的引擎，
	// 与 map 遍历顺序无关。
	engines := make([]string, 0, len(candidatesByEngine))
	for engine := range candidatesByEngine {
		engines = append(engines, engine)
	}
	sort.Strings(engines)

	for _, engine := range engines {
		for i, candidate := range candidatesByEngine[engine] {
			if candidate.QuestionID != questionID || candidate.ParagraphID == "" {
				continue
			}
			rank := i + 1
			state, ok := states[candidate.ParagraphID]
			if !ok {
				state = &paragraphState{supports: make(map[string]schema.EvidenceSupport), bestRank: rank, bestCandidate: candidate}
				states[candidate.ParagraphID] = state
			}

			support := schema.EvidenceSupport{Engine: engine, Rank: rank, Score: candidate.Score, Query: candidate.Query}
			if existing, dup := state.supports[engine]; !dup || rank < existing.Rank {
				state.supports[engine] = support
			}
			if rank < state.bestRank {
				state.bestRank = rank
				state.bestCandidate = candidate
			}
		}
	}

	type fusedRow struct {
		paragraphID  string
		fusionScore  float64
		supportCount int
		bestRank     int
	}
	rows := make([]fusedRow, 0, len(states))
	for pid, state := range states {
		// 支持项按引擎名排序后累加，保证浮点求和顺序稳定、分数可复现。
		supportEngines := make([]string, 0, len(state.supports))
		for engine := range state.supports {
			supportEngines = append(supportEngines, engine)
		}
		sort.Strings(supportEngines)

		bestRank := 0
		fusionScore := 0.0
		for _, engine := range supportEngines {
			support := state.supports[engine]
			weight := 1.0
			if w, ok := cfg.EngineWeights[engine]; ok {
				weight = w
			}
			fusionScore += weight / float64(cfg.RRFK+support.Rank)
			if bestRank == 0 || support.Rank < bestRank {
				bestRank = support.Rank
			}
		}
		rows = append(rows, fusedRow{
			paragraphID:  pid,
			fusionScore:  fusionScore,
			supportCount: len(state.supports),
			bestRank:     bestRank,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.fusionScore != b.fusionScore {
			return a.fusionScore > b.fusionScore
		}
		if a.supportCount != b.supportCount {
			return a.supportCount > b.supportCount
		}
		if a.bestRank != b.bestRank {
			return a.bestRank < b.bestRank
		}
		return a.paragraphID < b.paragraphID
	})

	fused := make([]schema.FusedEvidenceCandidate, 0, len(rows))
	for fusionRank, row := range rows {
		state := states[row.paragraphID]
		supports := make([]schema.EvidenceSupport, 0, len(state.supports))
		for _, support := range state.supports {
			supports = append(supports, support)
		}
		sort.Slice(supports, func(i, j int) bool {
			if supports[i].Rank != supports[j].Rank {
				return supports[i].Rank < supports[j].Rank
			}
			return supports[i].Engine < supports[j].Engine
		})

		candidate := state.bestCandidate
		var relevance *schema.RelevanceVerdict
		if candidate.SupportingQuote != "" {
			confidence := 1.0
			relevance = &schema.RelevanceVerdict{
				Label:           "relevant",
				Confidence:      &confidence,
				SupportingQuote: candidate.SupportingQuote,
			}
		}
		fused = append(fused, schema.FusedEvidenceCandidate{
			QuestionID:   questionID,
			ParagraphID:  row.paragraphID,
			Title:        candidate.Title,
			Page:         candidate.Page,
			Text:         candidate.Text,
			FusionScore:  row.fusionScore,
			FusionRank:   fusionRank + 1,
			SupportCount: row.supportCount,
			Supports:     supports,
			Relevance:    relevance,
		})
	}
	return fused, nil
}

// MergeByQuestion 部分重试后的合并：只有 activeIDs 中的问题被 newByQ 替换，
// 其余问题原样保留；activeIDs 为 nil 时整体采用 newByQ。
func MergeByQuestion(prevByQ, newByQ map[string][]schema.FusedEvidenceCandidate, activeIDs map[string]struct{}) map[string][]schema.FusedEvidenceCandidate {
	if activeIDs == nil {
		merged := make(map[string][]schema.FusedEvidenceCandidate, len(newByQ))
		for qid, candidates := range newByQ {
			merged[qid] = candidates
		}
		return merged
	}
	merged := make(map[string][]schema.FusedEvidenceCandidate, len(prevByQ)+len(newByQ))
	for qid, candidates := range prevByQ {
		merged[qid] = candidates
	}
	for qid := range activeIDs {
		merged[qid] = newByQ[qid]
	}
	return merged
}

// OrderQuestionIDs 按问题清单声明顺序排列 map 中出现的问题 ID，
// 清单之外的额外 ID 按字典序追加。
func OrderQuestionIDs[T any](byQuestion map[string]T, bank *schema.QuestionSet) []string {
	ordered := make([]string, 0, len(byQuestion))
	seen := make(map[string]struct{}, len(byQuestion))
	for _, q := range bank.Questions {
		if _, ok := byQuestion[q.QuestionID]; ok {
			ordered = append(ordered, q.QuestionID)
			seen[q.QuestionID] = struct{}{}
		}
	}
	var extras []string
	for qid := range byQuestion {
		if _, ok := seen[qid]; !ok {
			extras = append(extras, qid)
		}
	}
	sort.Strings(extras)
	return append(ordered, extras...)
}

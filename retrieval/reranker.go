package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/Younthing/eagent-sub001/schema"
)

// RerankResult 与输入段落对齐的分数，以及分数降序的下标排列。
type RerankResult struct {
	Scores []float64 `json:"scores"`
	Order  []int     `json:"order"`
}

// Reranker 可选的二阶段重排能力。
// 固定模型与参数下必须是确定性的（temperature-free）。
type Reranker interface {
	Name() string
	Rerank(ctx context.Context, query string, passages []string, maxLength, batchSize int) (RerankResult, error)
}

// ApplyReranker 仅对候选列表的头部窗口 topN 重排，尾部保持原序。
// 重排器返回的分数数量必须与窗口一致，排列必须是窗口下标的置换。
func ApplyReranker(ctx context.Context, reranker Reranker, query string, candidates []schema.EvidenceCandidate, topN, maxLength, batchSize int) ([]schema.EvidenceCandidate, error) {
	if topN < 1 {
		return nil, fmt.Errorf("top_n must be >= 1, got %d", topN)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	window := topN
	if window > len(candidates) {
		window = len(candidates)
	}
	head := candidates[:window]
	tail := candidates[window:]

	passages := make([]string, len(head))
	for i, candidate := range head {
		passages[i] = formatPassage(candidate)
	}

	result, err := reranker.Rerank(ctx, query, passages, maxLength, batchSize)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	if len(result.Scores) != len(head) {
		return nil, fmt.Errorf("reranker returned %d scores for %d passages", len(result.Scores), len(head))
	}
	if !isPermutation(result.Order, len(head)) {
		return nil, fmt.Errorf("reranker order must be a permutation of window indices")
	}

	reranked := make([]schema.EvidenceCandidate, 0, len(candidates))
	for newRank, oldIndex := range result.Order {
		candidate := head[oldIndex]
		score := result.Scores[oldIndex]
		candidate.Score = score
		candidate.Reranker = reranker.Name()
		candidate.RerankScore = &score
		candidate.RerankRank = newRank + 1
		reranked = append(reranked, candidate)
	}
	for i, candidate := range tail {
		candidate.Reranker = reranker.Name()
		candidate.RerankRank = window + i + 1
		reranked = append(reranked, candidate)
	}
	return reranked, nil
}

func formatPassage(candidate schema.EvidenceCandidate) string {
	title := strings.TrimSpace(candidate.Title)
	text := strings.TrimSpace(candidate.Text)
	if title != "" {
		return strings.TrimSpace(title + "\n\n" + text)
	}
	return text
}

func isPermutation(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	seen := make([]bool, n)
	for _, index := range order {
		if index < 0 || index >= n || seen[index] {
			return false
		}
		seen[index] = true
	}
	return true
}

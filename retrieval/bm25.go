package retrieval

import (
	"math"
	"sort"
)

// BM25Hit BM25 检索命中。
type BM25Hit struct {
	DocIndex int     `json:"doc_index"`
	Score    float64 `json:"score"`
}

// BM25Index 基于段落的轻量 BM25 倒排统计索引。
// 一次构建，多次查询；构建后只读。
type BM25Index struct {
	termFreqs  []map[string]int
	docLengths []int
	idf        map[string]float64
	avgdl      float64
	k1         float64
	b          float64
	tokenizer  TokenizerConfig
}

// BM25Params BM25 打分参数。
type BM25Params struct {
	K1 float64 `json:"k1" yaml:"k1"`
	B  float64 `json:"b" yaml:"b"`
}

// DefaultBM25Params 返回标准默认参数。
func DefaultBM25Params() BM25Params {
	return BM25Params{K1: 1.5, B: 0.75}
}

// BuildBM25Index 对段落文本构建 BM25 索引。
func BuildBM25Index(texts []string, params BM25Params, tokenizer TokenizerConfig) *BM25Index {
	termFreqs := make([]map[string]int, 0, len(texts))
	docLengths := make([]int, 0, len(texts))
	docFreq := make(map[string]int)

	for _, text := range texts {
		tokens := TokenizeText(text, tokenizer)
		tf := make(map[string]int, len(tokens))
		for _, token := range tokens {
			if tf[token] == 0 {
				docFreq[token]++
			}
			tf[token]++
		}
		termFreqs = append(termFreqs, tf)
		docLengths = append(docLengths, len(tokens))
	}

	nDocs := len(texts)
	if nDocs < 1 {
		nDocs = 1
	}
	var totalLen int
	for _, l := range docLengths {
		totalLen += l
	}
	avgdl := 0.0
	if len(docLengths) > 0 {
		avgdl = float64(totalLen) / float64(nDocs)
	}

	idf := make(map[string]float64, len(docFreq))
	for term, df := range docFreq {
		// +1 在 log 内，保证 idf 非负。
		idf[term] = math.Log((float64(nDocs)-float64(df)+0.5)/(float64(df)+0.5) + 1.0)
	}

	return &BM25Index{
		termFreqs:  termFreqs,
		docLengths: docLengths,
		idf:        idf,
		avgdl:      avgdl,
		k1:         params.K1,
		b:          params.B,
		tokenizer:  tokenizer,
	}
}

// Size 索引内文档数。
func (idx *BM25Index) Size() int { return len(idx.termFreqs) }

// Search 返回查询的 topN 命中，按 (-score, doc_index) 排序。
// 空查询返回空结果而不是错误；零分文档被丢弃。
func (idx *BM25Index) Search(query string, topN int) []BM25Hit {
	tokens := TokenizeText(query, idx.tokenizer)
	if len(tokens) == 0 {
		return nil
	}

	uniqueTerms := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		uniqueTerms = append(uniqueTerms, token)
	}

	hits := make([]BM25Hit, 0, len(idx.termFreqs))
	for docIndex, tf := range idx.termFreqs {
		score := idx.scoreDoc(tf, idx.docLengths[docIndex], uniqueTerms)
		if score <= 0 {
			continue
		}
		hits = append(hits, BM25Hit{DocIndex: docIndex, Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocIndex < hits[j].DocIndex
	})
	if topN >= 0 && len(hits) > topN {
		hits = hits[:topN]
	}
	return hits
}

func (idx *BM25Index) scoreDoc(tf map[string]int, docLen int, terms []string) float64 {
	denomNorm := idx.k1
	if idx.avgdl > 0 {
		denomNorm = idx.k1 * (1.0 - idx.b + idx.b*(float64(docLen)/idx.avgdl))
	}
	score := 0.0
	for _, term := range terms {
		f := tf[term]
		if f <= 0 {
			continue
		}
		termIDF, ok := idx.idf[term]
		if !ok {
			continue
		}
		score += termIDF * (float64(f) * (idx.k1 + 1.0)) / (float64(f) + denomNorm)
	}
	return score
}

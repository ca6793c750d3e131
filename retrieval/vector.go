package retrieval

import (
	"context"
	"fmt"
	"sort"
)

// Encoder 外部稠密/稀疏编码器能力。
// 固定模型与参数下必须是确定性的。
type Encoder interface {
	// Encode 返回 len(texts) x dim 的浮点矩阵。
	Encode(ctx context.Context, texts []string, maxLength, batchSize int) ([][]float32, error)
	// ModelID 用于缓存键。
	ModelID() string
}

// ErrDimensionMismatch 查询向量维度与索引维度不一致。
type ErrDimensionMismatch struct {
	QueryDim int
	IndexDim int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("query dim %d != index dim %d", e.QueryDim, e.IndexDim)
}

// VectorHit 向量检索命中。
type VectorHit struct {
	DocIndex int     `json:"doc_index"`
	Score    float64 `json:"score"`
}

// IPIndex 扁平内积最近邻索引。
type IPIndex struct {
	vectors [][]float32
	dim     int
}

// BuildIPIndex 基于段落向量构建内积索引。
func BuildIPIndex(vectors [][]float32) (*IPIndex, error) {
	idx := &IPIndex{}
	for _, v := range vectors {
		if idx.dim == 0 {
			idx.dim = len(v)
		}
		if len(v) != idx.dim {
			return nil, fmt.Errorf("inconsistent vector dims: %d and %d", idx.dim, len(v))
		}
	}
	idx.vectors = vectors
	return idx, nil
}

// Size 索引内向量数。
func (idx *IPIndex) Size() int { return len(idx.vectors) }

// Dim 索引维度，空索引为 0。
func (idx *IPIndex) Dim() int { return idx.dim }

// Search 对单条查询向量返回 topN 内积最近邻。
// 空索引返回零命中而非错误；维度不匹配返回 ErrDimensionMismatch。
func (idx *IPIndex) Search(query []float32, topN int) ([]VectorHit, error) {
	if topN < 1 {
		return nil, fmt.Errorf("top_n must be >= 1, got %d", topN)
	}
	if len(idx.vectors) == 0 {
		return nil, nil
	}
	if len(query) != idx.dim {
		return nil, &ErrDimensionMismatch{QueryDim: len(query), IndexDim: idx.dim}
	}

	hits := make([]VectorHit, len(idx.vectors))
	for i, vec := range idx.vectors {
		var dot float64
		for j, q := range query {
			dot += float64(q) * float64(vec[j])
		}
		hits[i] = VectorHit{DocIndex: i, Score: dot}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocIndex < hits[j].DocIndex
	})
	if len(hits) > topN {
		hits = hits[:topN]
	}
	return hits, nil
}

// VectorEngineConfig 向量引擎配置。
type VectorEngineConfig struct {
	DocMaxLength   int `json:"doc_max_length" yaml:"doc_max_length"`
	QueryMaxLength int `json:"query_max_length" yaml:"query_max_length"`
	BatchSize      int `json:"batch_size" yaml:"batch_size"`
}

// DefaultVectorEngineConfig 返回默认配置。
func DefaultVectorEngineConfig() VectorEngineConfig {
	return VectorEngineConfig{DocMaxLength: 512, QueryMaxLength: 64, BatchSize: 8}
}

// Validate 校验配置，非法值直接失败而不是静默钳制。
func (c VectorEngineConfig) Validate() error {
	if c.DocMaxLength < 1 {
		return fmt.Errorf("doc_max_length must be >= 1, got %d", c.DocMaxLength)
	}
	if c.QueryMaxLength < 1 {
		return fmt.Errorf("query_max_length must be >= 1, got %d", c.QueryMaxLength)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be >= 1, got %d", c.BatchSize)
	}
	return nil
}

// VectorEngine 编码器 + 内积索引的组合。
type VectorEngine struct {
	encoder Encoder
	config  VectorEngineConfig
	index   *IPIndex
}

// NewVectorEngine 创建向量引擎。
func NewVectorEngine(encoder Encoder, config VectorEngineConfig) (*VectorEngine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &VectorEngine{encoder: encoder, config: config}, nil
}

// IndexDocuments 编码全部段落并构建索引。
func (e *VectorEngine) IndexDocuments(ctx context.Context, texts []string) error {
	vectors, err := e.encoder.Encode(ctx, texts, e.config.DocMaxLength, e.config.BatchSize)
	if err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}
	return e.IndexVectors(vectors)
}

// IndexVectors 用已有向量构建索引（缓存命中路径）。
func (e *VectorEngine) IndexVectors(vectors [][]float32) error {
	index, err := BuildIPIndex(vectors)
	if err != nil {
		return err
	}
	e.index = index
	return nil
}

// Search 编码查询并检索 topN 最近段落。
func (e *VectorEngine) Search(ctx context.Context, query string, topN int) ([]VectorHit, error) {
	if e.index == nil {
		return nil, fmt.Errorf("vector engine index not built")
	}
	vectors, err := e.encoder.Encode(ctx, []string{query}, e.config.QueryMaxLength, e.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("encoder returned %d vectors for 1 query", len(vectors))
	}
	return e.index.Search(vectors[0], topN)
}

// ModelID 透出底层编码器模型标识。
func (e *VectorEngine) ModelID() string { return e.encoder.ModelID() }

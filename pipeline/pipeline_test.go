package pipeline

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Younthing/eagent-sub001/retrieval"
	"github.com/Younthing/eagent-sub001/schema"
)

// scriptedJudge 按 prompt 内容分流的确定性裁决桩：
// 只有包含 "sealed envelopes" 的段落被判相关。
type scriptedJudge struct{}

func (j *scriptedJudge) Invoke(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "keyword-style search queries"):
		return `{"query_plan":{}}`, nil
	case strings.Contains(prompt, "DIRECT evidence"):
		if strings.Contains(prompt, "sealed envelopes") {
			return `{"label":"relevant","confidence":0.9,"supporting_quote":null}`, nil
		}
		return `{"label":"irrelevant","confidence":0.8,"supporting_quote":null}`, nil
	case strings.Contains(prompt, "contradict each other"):
		return `{"label":"pass","confidence":0.9,"conflicts":[]}`, nil
	}
	return `{"label":"unknown"}`, nil
}

// fakeEncoder 26 维字符袋编码器，确定性且无外部依赖。
type fakeEncoder struct {
	docEncodes int32
}

func (e *fakeEncoder) ModelID() string { return "fake-splade" }

func (e *fakeEncoder) Encode(_ context.Context, texts []string, maxLength, _ int) ([][]float32, error) {
	if maxLength >= 512 {
		atomic.AddInt32(&e.docEncodes, 1)
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, 26)
		for _, r := range strings.ToLower(text) {
			if r >= 'a' && r <= 'z' {
				v[r-'a']++
			}
		}
		vectors[i] = v
	}
	return vectors, nil
}

type fakeReranker struct {
	calls int32
}

func (r *fakeReranker) Name() string { return "fake-reranker" }

func (r *fakeReranker) Rerank(_ context.Context, _ string, passages []string, _, _ int) (retrieval.RerankResult, error) {
	atomic.AddInt32(&r.calls, 1)
	scores := make([]float64, len(passages))
	order := make([]int, len(passages))
	for i := range passages {
		scores[i] = float64(len(passages) - i)
		order[i] = i
	}
	return retrieval.RerankResult{Scores: scores, Order: order}, nil
}

type memCache struct {
	mu      sync.Mutex
	vectors map[string][][]float32
	sets    int
}

func newMemCache() *memCache { return &memCache{vectors: make(map[string][][]float32)} }

func (c *memCache) EnabledFor(string) bool { return true }

func (c *memCache) GetVectors(stage, key string) ([][]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vectors, ok := c.vectors[stage+"/"+key]
	return vectors, ok, nil
}

func (c *memCache) SetVectors(stage, key string, vectors [][]float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors[stage+"/"+key] = vectors
	c.sets++
	return nil
}

func testDoc() *schema.DocStructure {
	page1, page2 := 1, 2
	return &schema.DocStructure{DocID: "doc-1", Sections: []schema.SectionSpan{
		{ParagraphID: "p1", Title: "Methods: Randomization", Page: &page1,
			Text: "Participants were randomly assigned using sealed envelopes."},
		{ParagraphID: "p2", Title: "Results", Page: &page2,
			Text: "Mean age was 54 years in both groups."},
		{ParagraphID: "p3", Title: "Discussion", Page: &page2,
			Text: "Limitations include a small sample size."},
	}}
}

func testBank(questions ...schema.Question) *schema.QuestionSet {
	return &schema.QuestionSet{Questions: questions}
}

var questionRandomization = schema.Question{
	QuestionID: "q1",
	Domain:     "randomization",
	Text:       "Was the allocation sequence random?",
}

var questionPreregistration = schema.Question{
	QuestionID: "q2",
	Domain:     "preregistration",
	Text:       "Did the study preregister xenon dosing?",
}

func testRules() *schema.LocatorRules {
	return &schema.LocatorRules{
		Domains: map[string]schema.DomainRules{
			"randomization": {
				SectionPriors: []string{"randomization", "methods"},
				Keywords:      []string{"sealed envelopes", "randomly assigned"},
			},
			"preregistration": {
				SectionPriors: []string{"registration"},
				Keywords:      []string{"xenon isotope"},
			},
		},
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.TopK = 0
	assert.ErrorContains(t, bad.Validate(), "top_k")

	bad = DefaultConfig()
	bad.JudgeConcurrency = 0
	assert.ErrorContains(t, bad.Validate(), "judge_concurrency")

	bad = DefaultConfig()
	bad.Fusion.RRFK = 0
	assert.ErrorContains(t, bad.Validate(), "rrf_k")
}

func TestRunDegradedWithoutJudge(t *testing.T) {
	pipe, err := New(DefaultConfig(), Deps{Logger: zap.NewNop()})
	require.NoError(t, err)

	result, err := pipe.Run(context.Background(), testDoc(), testBank(questionRandomization), testRules())
	require.NoError(t, err)

	assert.True(t, result.Degraded, "missing judge always degrades the run")
	assert.Equal(t, 1, result.Attempts)
	assert.True(t, result.CompletenessPassed, "completeness not enforced by default")
	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.Results, 1)

	candidates := result.Results[0].Candidates
	require.NotEmpty(t, candidates)
	top := candidates[0]
	assert.Equal(t, "p1", top.ParagraphID, "evidence paragraph ranks first")
	require.NotNil(t, top.Existence)
	assert.Equal(t, "pass", top.Existence.Label)
	require.NotNil(t, top.Relevance)
	assert.Equal(t, "unknown", top.Relevance.Label, "no judge means unknown relevance")

	engines := make(map[string]struct{})
	for _, support := range top.Supports {
		engines[support.Engine] = struct{}{}
	}
	assert.Contains(t, engines, EngineRuleBased)
	assert.Contains(t, engines, EngineBM25)
	assert.Equal(t, len(top.Supports), top.SupportCount)
}

func TestRunWithJudgeEncoderRerankerAndCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Completeness.Enforce = true

	encoder := &fakeEncoder{}
	reranker := &fakeReranker{}
	cache := newMemCache()
	pipe, err := New(cfg, Deps{
		Encoder:  encoder,
		Judge:    &scriptedJudge{},
		Reranker: reranker,
		Cache:    cache,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)

	result, err := pipe.Run(context.Background(), testDoc(), testBank(questionRandomization), testRules())
	require.NoError(t, err)

	assert.False(t, result.Degraded)
	assert.True(t, result.CompletenessPassed)
	assert.Equal(t, 1, result.Attempts)
	assert.Empty(t, result.RetryLog)

	require.Len(t, result.Results, 1)
	candidates := result.Results[0].Candidates
	require.NotEmpty(t, candidates)
	assert.Equal(t, "p1", candidates[0].ParagraphID)
	require.NotNil(t, candidates[0].Relevance)
	assert.Equal(t, "relevant", candidates[0].Relevance.Label)
	assert.Positive(t, atomic.LoadInt32(&reranker.calls))

	require.Len(t, result.Completeness, 1)
	assert.True(t, result.Completeness[0].Required)
	assert.Equal(t, "satisfied", result.Completeness[0].Status)

	// 第二次运行命中文档向量缓存，不再整篇编码。
	assert.Equal(t, int32(1), atomic.LoadInt32(&encoder.docEncodes))
	assert.Equal(t, 1, cache.sets)
	_, err = pipe.Run(context.Background(), testDoc(), testBank(questionRandomization), testRules())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&encoder.docEncodes), "doc vectors served from cache")
	assert.Equal(t, 1, cache.sets)
}

func TestRunPartialRetryThenFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Completeness.Enforce = true
	cfg.MaxRetries = 1

	pipe, err := New(cfg, Deps{Judge: &scriptedJudge{}, Logger: zap.NewNop()})
	require.NoError(t, err)

	bank := testBank(questionRandomization, questionPreregistration)
	result, err := pipe.Run(context.Background(), testDoc(), bank, testRules())
	require.NoError(t, err)

	assert.True(t, result.Degraded, "exhausted retries degrade instead of erroring")
	assert.False(t, result.CompletenessPassed)
	assert.Equal(t, 2, result.Attempts)

	require.Len(t, result.RetryLog, 2)
	assert.Equal(t, []string{"q2"}, result.RetryLog[0].RetriedQuestionIDs,
		"only the unsatisfied question is recomputed")
	assert.Equal(t, 1, result.RetryLog[0].Attempt)
	assert.Contains(t, result.RetryLog[1].Reason, "exhausted")

	require.Len(t, result.Results, 2)
	assert.Equal(t, "q1", result.Results[0].QuestionID)
	assert.Equal(t, "q2", result.Results[1].QuestionID)

	// 达标问题的结果在重试中原样保留。
	q1 := result.Results[0].Candidates
	require.NotEmpty(t, q1)
	assert.Equal(t, "p1", q1[0].ParagraphID)
	require.NotNil(t, q1[0].Relevance)
	assert.Equal(t, "relevant", q1[0].Relevance.Label)
	require.NotNil(t, result.Results[0].Consistency)
	assert.Equal(t, "pass", result.Results[0].Consistency.Label)

	byID := make(map[string]schema.CompletenessItem)
	for _, item := range result.Completeness {
		byID[item.QuestionID] = item
	}
	assert.Equal(t, "satisfied", byID["q1"].Status)
	assert.Equal(t, "missing", byID["q2"].Status)
}

func TestRunRejectsInvalidInput(t *testing.T) {
	pipe, err := New(DefaultConfig(), Deps{Logger: zap.NewNop()})
	require.NoError(t, err)

	_, err = pipe.Run(context.Background(), nil, testBank(questionRandomization), testRules())
	assert.ErrorContains(t, err, "required")

	dup := testBank(questionRandomization, questionRandomization)
	_, err = pipe.Run(context.Background(), testDoc(), dup, testRules())
	assert.ErrorContains(t, err, "duplicate question_id")
}

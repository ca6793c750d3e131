package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Younthing/eagent-sub001/fusion"
	"github.com/Younthing/eagent-sub001/internal/metrics"
	"github.com/Younthing/eagent-sub001/locator"
	"github.com/Younthing/eagent-sub001/persist"
	"github.com/Younthing/eagent-sub001/retrieval"
	"github.com/Younthing/eagent-sub001/schema"
	"github.com/Younthing/eagent-sub001/validate"
)

var tracer = otel.Tracer("github.com/Younthing/eagent-sub001/pipeline")

// 引擎标识，贯穿候选归属、融合权重与指标标签。
const (
	EngineRuleBased = "rule_based"
	EngineBM25      = "bm25"
	EngineSplade    = "splade"
)

// Config 管线配置。
type Config struct {
	// TopK 每个问题最终保留的融合候选数。
	TopK int `json:"top_k" yaml:"top_k"`
	// EngineTopK 每个引擎进入融合的候选数上限。
	EngineTopK int `json:"engine_top_k" yaml:"engine_top_k"`
	// PerQueryTopN 引擎内单条查询的召回深度。
	PerQueryTopN int `json:"per_query_top_n" yaml:"per_query_top_n"`

	MaxRetries        int  `json:"max_retries" yaml:"max_retries"`
	FailOnConsistency bool `json:"fail_on_consistency" yaml:"fail_on_consistency"`

	// EngineConcurrency 问题级引擎并行度；JudgeConcurrency 裁决并行度。
	EngineConcurrency int `json:"engine_concurrency" yaml:"engine_concurrency"`
	JudgeConcurrency  int `json:"judge_concurrency" yaml:"judge_concurrency"`

	RerankTopN      int `json:"rerank_top_n" yaml:"rerank_top_n"`
	RerankMaxLength int `json:"rerank_max_length" yaml:"rerank_max_length"`
	RerankBatchSize int `json:"rerank_batch_size" yaml:"rerank_batch_size"`

	// PromptMaxTokens 裁决 payload 中段落文本的 token 预算，0 表示不截断。
	PromptMaxTokens int `json:"prompt_max_tokens" yaml:"prompt_max_tokens"`

	// CodeVersion 参与缓存键，实现变更时主动失效旧缓存。
	CodeVersion string `json:"code_version" yaml:"code_version"`

	BM25         retrieval.BM25Params         `json:"bm25" yaml:"bm25"`
	Tokenizer    retrieval.TokenizerConfig    `json:"tokenizer" yaml:"tokenizer"`
	Planner      retrieval.PlannerConfig      `json:"planner" yaml:"planner"`
	Vector       retrieval.VectorEngineConfig `json:"vector" yaml:"vector"`
	Fusion       fusion.Config                `json:"fusion" yaml:"fusion"`
	Existence    validate.ExistenceConfig     `json:"existence" yaml:"existence"`
	Relevance    validate.RelevanceConfig     `json:"relevance" yaml:"relevance"`
	Consistency  validate.ConsistencyConfig   `json:"consistency" yaml:"consistency"`
	Completeness validate.CompletenessConfig  `json:"completeness" yaml:"completeness"`
}

// DefaultConfig 返回默认管线配置。
func DefaultConfig() Config {
	return Config{
		TopK:              10,
		EngineTopK:        10,
		PerQueryTopN:      50,
		MaxRetries:        1,
		FailOnConsistency: false,
		EngineConcurrency: 4,
		JudgeConcurrency:  4,
		RerankTopN:        10,
		RerankMaxLength:   512,
		RerankBatchSize:   16,
		BM25:              retrieval.DefaultBM25Params(),
		Tokenizer:         retrieval.DefaultTokenizerConfig(),
		Planner:           retrieval.DefaultPlannerConfig(),
		Vector:            retrieval.DefaultVectorEngineConfig(),
		Fusion:            fusion.DefaultConfig(),
		Existence:         validate.DefaultExistenceConfig(),
		Relevance:         validate.DefaultRelevanceConfig(),
		Consistency:       validate.DefaultConsistencyConfig(),
		Completeness:      validate.DefaultCompletenessConfig(),
	}
}

// Validate 校验管线配置，非法值立即失败。
func (c Config) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be >= 1, got %d", c.TopK)
	}
	if c.EngineTopK < 1 {
		return fmt.Errorf("engine_top_k must be >= 1, got %d", c.EngineTopK)
	}
	if c.PerQueryTopN < 1 {
		return fmt.Errorf("per_query_top_n must be >= 1, got %d", c.PerQueryTopN)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.EngineConcurrency < 1 {
		return fmt.Errorf("engine_concurrency must be >= 1, got %d", c.EngineConcurrency)
	}
	if c.JudgeConcurrency < 1 {
		return fmt.Errorf("judge_concurrency must be >= 1, got %d", c.JudgeConcurrency)
	}
	if c.RerankTopN < 1 {
		return fmt.Errorf("rerank_top_n must be >= 1, got %d", c.RerankTopN)
	}
	if c.PromptMaxTokens < 0 {
		return fmt.Errorf("prompt_max_tokens must be >= 0, got %d", c.PromptMaxTokens)
	}
	if err := c.Planner.Validate(); err != nil {
		return err
	}
	if err := c.Vector.Validate(); err != nil {
		return err
	}
	if err := c.Fusion.Validate(); err != nil {
		return err
	}
	if err := c.Relevance.Validate(); err != nil {
		return err
	}
	if err := c.Consistency.Validate(); err != nil {
		return err
	}
	return c.Completeness.Validate()
}

// StageCache 管线消费的缓存能力子集，*persist.CacheManager 满足该接口。
type StageCache interface {
	EnabledFor(stage string) bool
	GetVectors(stage, key string) ([][]float32, bool, error)
	SetVectors(stage, key string, vectors [][]float32) error
}

// Deps 管线的外部依赖，除 Logger 外均可为空：
// Encoder 为空跳过向量引擎，Judge 为空进入降级模式，
// Reranker 为空跳过重排，Cache 为空不做缓存。
type Deps struct {
	Encoder  retrieval.Encoder
	Judge    validate.Judge
	Reranker retrieval.Reranker
	Cache    StageCache
	Metrics  *metrics.Collector
	Logger   *zap.Logger
}

// Pipeline 证据定位管线。对单篇文档可重入，可并发调用 Run。
type Pipeline struct {
	config      Config
	encoder     retrieval.Encoder
	judge       validate.Judge
	reranker    retrieval.Reranker
	cache       StageCache
	metrics     *metrics.Collector
	relevance   *validate.RelevanceValidator
	consistency *validate.ConsistencyValidator
	logger      *zap.Logger
}

// New 创建管线。
func New(config Config, deps Deps) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "pipeline"))

	budget := validate.NewPromptBudget(config.PromptMaxTokens)
	relevance, err := validate.NewRelevanceValidator(deps.Judge, config.Relevance, budget, logger)
	if err != nil {
		return nil, err
	}
	consistency, err := validate.NewConsistencyValidator(deps.Judge, config.Consistency, budget, logger)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		config:      config,
		encoder:     deps.Encoder,
		judge:       deps.Judge,
		reranker:    deps.Reranker,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		relevance:   relevance,
		consistency: consistency,
		logger:      logger,
	}, nil
}

// Run 对单篇文档执行完整定位与验证流程。
// 完备性或一致性未过且还有重试预算时，只重算未达标的问题，
// 其余问题的结果原样保留。
func (p *Pipeline) Run(ctx context.Context, doc *schema.DocStructure, bank *schema.QuestionSet, rules *schema.LocatorRules) (*schema.PipelineResult, error) {
	if doc == nil || bank == nil || rules == nil {
		return nil, fmt.Errorf("pipeline run: document, question set and rules are required")
	}
	if err := bank.Validate(); err != nil {
		return nil, fmt.Errorf("question set: %w", err)
	}

	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("doc_id", doc.DocID),
		attribute.Int("questions", len(bank.Questions))))
	defer span.End()

	logger := p.logger.With(zap.String("run_id", runID), zap.String("doc_id", doc.DocID))
	logger.Info("pipeline run started",
		zap.Int("paragraphs", len(doc.Sections)),
		zap.Int("questions", len(bank.Questions)))

	indexStart := time.Now()
	bm25Index := retrieval.BuildBM25Index(doc.Texts(), p.config.BM25, p.config.Tokenizer)
	vectorEngine, err := p.buildVectorEngine(ctx, doc, logger)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordStage("index", time.Since(indexStart))

	var plannerJudge retrieval.PlannerJudge
	if p.judge != nil {
		plannerJudge = p.judge
	}
	planner, err := retrieval.NewQueryPlanner(rules, p.config.Planner, plannerJudge, p.logger)
	if err != nil {
		return nil, err
	}
	plan := planner.Plan(ctx, bank)

	mergedCandidates := make(map[string][]schema.FusedEvidenceCandidate)
	mergedConsistency := make(map[string]*schema.ConsistencyVerdict)
	var retryLog []schema.RetryLogEntry
	var activeIDs map[string]struct{}
	degraded := p.judge == nil
	attempt := 0

	for {
		activeBank := bank.Filter(activeIDs)
		newCandidates, newConsistency, err := p.runAttempt(ctx, doc, &activeBank, rules, bm25Index, vectorEngine, plan)
		if err != nil {
			p.metrics.RecordRunOutcome("error")
			return nil, err
		}
		mergedCandidates = fusion.MergeByQuestion(mergedCandidates, newCandidates, activeIDs)
		mergedConsistency = mergeConsistency(mergedConsistency, newConsistency, activeIDs)

		completenessStart := time.Now()
		passed, items, missingIDs, err := validate.ComputeCompleteness(bank, mergedCandidates, p.config.Completeness)
		if err != nil {
			return nil, err
		}
		p.metrics.RecordStage("completeness", time.Since(completenessStart))
		consistencyFailures := failedConsistencyIDs(mergedConsistency)

		decision := RouteValidation(RouteState{
			Attempt:                    attempt,
			MaxRetries:                 p.config.MaxRetries,
			CompletenessPassed:         passed,
			ConsistencyFailedQuestions: consistencyFailures,
			FailOnConsistency:          p.config.FailOnConsistency,
		})

		switch decision {
		case DecisionProceed:
			p.metrics.RecordRunOutcome("completed")
			return p.assembleResult(runID, bank, mergedCandidates, mergedConsistency, items, passed, degraded, attempt+1, retryLog), nil

		case DecisionRetry:
			activeIDs = retryTargets(missingIDs, consistencyFailures, p.config.FailOnConsistency)
			entry := schema.RetryLogEntry{
				Attempt:             attempt + 1,
				RetriedQuestionIDs:  sortedIDs(activeIDs),
				CompletenessPassed:  passed,
				ConsistencyFailures: consistencyFailures,
				Reason:              retryReason(passed, consistencyFailures, p.config.FailOnConsistency),
			}
			retryLog = append(retryLog, entry)
			p.metrics.RecordRetryAttempt()
			logger.Warn("validation gate failed, retrying",
				zap.Int("attempt", attempt+1),
				zap.Strings("question_ids", entry.RetriedQuestionIDs),
				zap.String("reason", entry.Reason))
			attempt++

		case DecisionFallback:
			degraded = true
			retryLog = append(retryLog, schema.RetryLogEntry{
				Attempt:             attempt + 1,
				CompletenessPassed:  passed,
				ConsistencyFailures: consistencyFailures,
				Reason:              "retry budget exhausted, returning degraded result",
			})
			logger.Warn("retry budget exhausted, falling back",
				zap.Int("attempts", attempt+1),
				zap.Strings("missing_question_ids", missingIDs))
			p.metrics.RecordRunOutcome("degraded")
			return p.assembleResult(runID, bank, mergedCandidates, mergedConsistency, items, passed, degraded, attempt+1, retryLog), nil
		}
	}
}

// buildVectorEngine 构建向量引擎，文档向量优先走缓存。
// 编码器缺席时返回 nil 引擎，调用方跳过向量通道。
func (p *Pipeline) buildVectorEngine(ctx context.Context, doc *schema.DocStructure, logger *zap.Logger) (*retrieval.VectorEngine, error) {
	if p.encoder == nil {
		return nil, nil
	}
	engine, err := retrieval.NewVectorEngine(p.encoder, p.config.Vector)
	if err != nil {
		return nil, err
	}
	texts := doc.Texts()

	if p.cache != nil && p.cache.EnabledFor(persist.StageDocVectors) {
		docHash, err := persist.HashPayload(texts)
		if err != nil {
			return nil, err
		}
		key, err := persist.VectorCacheKey(docHash, p.encoder.ModelID(), p.config.Vector.DocMaxLength, p.config.CodeVersion)
		if err != nil {
			return nil, err
		}
		vectors, hit, err := p.cache.GetVectors(persist.StageDocVectors, key)
		if err != nil {
			return nil, err
		}
		if hit && len(vectors) == len(texts) {
			p.metrics.RecordCacheHit(persist.StageDocVectors)
			if err := engine.IndexVectors(vectors); err != nil {
				return nil, err
			}
			return engine, nil
		}
		p.metrics.RecordCacheMiss(persist.StageDocVectors)

		encoded, err := p.encoder.Encode(ctx, texts, p.config.Vector.DocMaxLength, p.config.Vector.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("encode documents: %w", err)
		}
		if err := engine.IndexVectors(encoded); err != nil {
			return nil, err
		}
		if err := p.cache.SetVectors(persist.StageDocVectors, key, encoded); err != nil {
			// 缓存写失败不阻断运行。
			logger.Warn("doc vector cache write failed", zap.Error(err))
		}
		return engine, nil
	}

	if err := engine.IndexDocuments(ctx, texts); err != nil {
		return nil, err
	}
	return engine, nil
}

// runAttempt 对当前问题子集执行 定位 -> 融合 -> 存在性 -> 相关性 -> 一致性。
func (p *Pipeline) runAttempt(
	ctx context.Context,
	doc *schema.DocStructure,
	bank *schema.QuestionSet,
	rules *schema.LocatorRules,
	bm25Index *retrieval.BM25Index,
	vectorEngine *retrieval.VectorEngine,
	plan map[string][]string,
) (map[string][]schema.FusedEvidenceCandidate, map[string]*schema.ConsistencyVerdict, error) {
	ctx, span := tracer.Start(ctx, "pipeline.attempt",
		trace.WithAttributes(attribute.Int("active_questions", len(bank.Questions))))
	defer span.End()

	questions := bank.Questions
	candidateLists := make([][]schema.FusedEvidenceCandidate, len(questions))

	retrieveStart := time.Now()
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.config.EngineConcurrency)
	for i, q := range questions {
		i, q := i, q
		group.Go(func() error {
			fused, err := p.locateQuestion(groupCtx, doc, q, rules, bm25Index, vectorEngine, plan[q.QuestionID])
			if err != nil {
				return err
			}
			candidateLists[i] = fused
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	p.metrics.RecordStage("retrieval", time.Since(retrieveStart))

	existenceStart := time.Now()
	for i := range candidateLists {
		candidateLists[i] = validate.AnnotateExistence(doc, candidateLists[i], p.config.Existence)
		for _, candidate := range candidateLists[i] {
			if candidate.Existence != nil {
				p.metrics.RecordVerdict("existence", candidate.Existence.Label)
			}
		}
	}
	p.metrics.RecordStage("existence", time.Since(existenceStart))

	relevanceStart := time.Now()
	group, groupCtx = errgroup.WithContext(ctx)
	group.SetLimit(p.config.JudgeConcurrency)
	for i, q := range questions {
		i, q := i, q
		group.Go(func() error {
			annotated, err := p.relevance.Annotate(groupCtx, q.Text, candidateLists[i])
			if err != nil {
				return fmt.Errorf("relevance question %s: %w", q.QuestionID, err)
			}
			candidateLists[i] = annotated
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	for i := range candidateLists {
		for _, candidate := range candidateLists[i] {
			if candidate.Relevance != nil {
				p.metrics.RecordVerdict("relevance", candidate.Relevance.Label)
			}
		}
	}
	p.metrics.RecordStage("relevance", time.Since(relevanceStart))

	consistencyStart := time.Now()
	verdicts := make([]schema.ConsistencyVerdict, len(questions))
	group, groupCtx = errgroup.WithContext(ctx)
	group.SetLimit(p.config.JudgeConcurrency)
	for i, q := range questions {
		i, q := i, q
		group.Go(func() error {
			passed := validate.SelectPassedCandidates(candidateLists[i], p.config.Completeness)
			verdict, err := p.consistency.Evaluate(groupCtx, q.Text, passed)
			if err != nil {
				return fmt.Errorf("consistency question %s: %w", q.QuestionID, err)
			}
			verdicts[i] = verdict
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	p.metrics.RecordStage("consistency", time.Since(consistencyStart))

	candidatesByQ := make(map[string][]schema.FusedEvidenceCandidate, len(questions))
	consistencyByQ := make(map[string]*schema.ConsistencyVerdict, len(questions))
	for i, q := range questions {
		candidatesByQ[q.QuestionID] = candidateLists[i]
		verdict := verdicts[i]
		consistencyByQ[q.QuestionID] = &verdict
		p.metrics.RecordVerdict("consistency", verdict.Label)
	}
	return candidatesByQ, consistencyByQ, nil
}

// locateQuestion 跑齐单个问题的全部引擎并做跨引擎融合。
func (p *Pipeline) locateQuestion(
	ctx context.Context,
	doc *schema.DocStructure,
	q schema.Question,
	rules *schema.LocatorRules,
	bm25Index *retrieval.BM25Index,
	vectorEngine *retrieval.VectorEngine,
	queries []string,
) ([]schema.FusedEvidenceCandidate, error) {
	byEngine := make(map[string][]schema.EvidenceCandidate, 3)

	ruleCandidates := locator.LocateForQuestion(doc.Sections, q, rules)
	if len(ruleCandidates) > p.config.EngineTopK {
		ruleCandidates = ruleCandidates[:p.config.EngineTopK]
	}
	byEngine[EngineRuleBased] = ruleCandidates
	p.metrics.RecordEngineCandidates(EngineRuleBased, len(ruleCandidates))

	bm25Rankings := make(map[string][]retrieval.RankedHit, len(queries))
	for _, query := range queries {
		hits := bm25Index.Search(query, p.config.PerQueryTopN)
		ranked := make([]retrieval.RankedHit, len(hits))
		for i, hit := range hits {
			ranked[i] = retrieval.RankedHit{DocIndex: hit.DocIndex, Score: hit.Score}
		}
		bm25Rankings[query] = ranked
	}
	bm25Candidates, err := p.engineCandidates(ctx, EngineBM25, q, doc, bm25Rankings)
	if err != nil {
		return nil, err
	}
	byEngine[EngineBM25] = bm25Candidates
	p.metrics.RecordEngineCandidates(EngineBM25, len(bm25Candidates))

	if vectorEngine != nil {
		vectorRankings := make(map[string][]retrieval.RankedHit, len(queries))
		for _, query := range queries {
			hits, err := vectorEngine.Search(ctx, query, p.config.PerQueryTopN)
			if err != nil {
				return nil, fmt.Errorf("vector search %q: %w", query, err)
			}
			ranked := make([]retrieval.RankedHit, len(hits))
			for i, hit := range hits {
				ranked[i] = retrieval.RankedHit{DocIndex: hit.DocIndex, Score: hit.Score}
			}
			vectorRankings[query] = ranked
		}
		vectorCandidates, err := p.engineCandidates(ctx, EngineSplade, q, doc, vectorRankings)
		if err != nil {
			return nil, err
		}
		byEngine[EngineSplade] = vectorCandidates
		p.metrics.RecordEngineCandidates(EngineSplade, len(vectorCandidates))
	}

	fused, err := fusion.FuseForQuestion(q.QuestionID, byEngine, p.config.Fusion)
	if err != nil {
		return nil, err
	}
	if len(fused) > p.config.TopK {
		fused = fused[:p.config.TopK]
	}
	return fused, nil
}

// engineCandidates 把单引擎多查询排名融合成该引擎的候选列表，
// 然后按需对头部窗口重排。
func (p *Pipeline) engineCandidates(
	ctx context.Context,
	engine string,
	q schema.Question,
	doc *schema.DocStructure,
	rankings map[string][]retrieval.RankedHit,
) ([]schema.EvidenceCandidate, error) {
	fusedHits := retrieval.RRFFuseRankings(rankings, p.config.Fusion.RRFK)
	if len(fusedHits) > p.config.EngineTopK {
		fusedHits = fusedHits[:p.config.EngineTopK]
	}

	candidates := make([]schema.EvidenceCandidate, 0, len(fusedHits))
	for _, hit := range fusedHits {
		if hit.DocIndex < 0 || hit.DocIndex >= len(doc.Sections) {
			continue
		}
		span := doc.Sections[hit.DocIndex]
		candidates = append(candidates, schema.EvidenceCandidate{
			QuestionID:  q.QuestionID,
			ParagraphID: span.ParagraphID,
			Title:       span.Title,
			Page:        span.Page,
			Text:        span.Text,
			Source:      schema.SourceRetrieval,
			Score:       hit.RRFScore,
			Engine:      engine,
			Query:       hit.BestQuery,
		})
	}

	if p.reranker != nil && len(candidates) > 0 {
		reranked, err := retrieval.ApplyReranker(ctx, p.reranker, q.Text, candidates,
			p.config.RerankTopN, p.config.RerankMaxLength, p.config.RerankBatchSize)
		if err != nil {
			return nil, fmt.Errorf("rerank %s question %s: %w", engine, q.QuestionID, err)
		}
		candidates = reranked
	}
	return candidates, nil
}

func (p *Pipeline) assembleResult(
	runID string,
	bank *schema.QuestionSet,
	candidatesByQ map[string][]schema.FusedEvidenceCandidate,
	consistencyByQ map[string]*schema.ConsistencyVerdict,
	completeness []schema.CompletenessItem,
	completenessPassed, degraded bool,
	attempts int,
	retryLog []schema.RetryLogEntry,
) *schema.PipelineResult {
	ordered := fusion.OrderQuestionIDs(candidatesByQ, bank)
	results := make([]schema.QuestionResult, 0, len(ordered))
	for _, qid := range ordered {
		results = append(results, schema.QuestionResult{
			QuestionID:  qid,
			Candidates:  candidatesByQ[qid],
			Consistency: consistencyByQ[qid],
		})
	}
	return &schema.PipelineResult{
		RunID:              runID,
		Results:            results,
		Completeness:       completeness,
		CompletenessPassed: completenessPassed,
		Degraded:           degraded,
		Attempts:           attempts,
		RetryLog:           retryLog,
	}
}

func mergeConsistency(prev, next map[string]*schema.ConsistencyVerdict, activeIDs map[string]struct{}) map[string]*schema.ConsistencyVerdict {
	if activeIDs == nil {
		merged := make(map[string]*schema.ConsistencyVerdict, len(next))
		for qid, verdict := range next {
			merged[qid] = verdict
		}
		return merged
	}
	merged := make(map[string]*schema.ConsistencyVerdict, len(prev)+len(next))
	for qid, verdict := range prev {
		merged[qid] = verdict
	}
	for qid := range activeIDs {
		if verdict, ok := next[qid]; ok {
			merged[qid] = verdict
		}
	}
	return merged
}

func failedConsistencyIDs(byQ map[string]*schema.ConsistencyVerdict) []string {
	var failed []string
	for qid, verdict := range byQ {
		if verdict != nil && verdict.Label == "fail" {
			failed = append(failed, qid)
		}
	}
	sort.Strings(failed)
	return failed
}

// retryTargets 汇总需要重算的问题：完备性缺失的，加上
// 一致性门禁开启时一致性失败的。
func retryTargets(missingIDs, consistencyFailures []string, failOnConsistency bool) map[string]struct{} {
	targets := make(map[string]struct{}, len(missingIDs)+len(consistencyFailures))
	for _, qid := range missingIDs {
		targets[qid] = struct{}{}
	}
	if failOnConsistency {
		for _, qid := range consistencyFailures {
			targets[qid] = struct{}{}
		}
	}
	return targets
}

func retryReason(completenessPassed bool, consistencyFailures []string, failOnConsistency bool) string {
	switch {
	case !completenessPassed && failOnConsistency && len(consistencyFailures) > 0:
		return "completeness and consistency gates failed"
	case !completenessPassed:
		return "completeness gate failed"
	default:
		return "consistency gate failed"
	}
}

func sortedIDs(ids map[string]struct{}) []string {
	sorted := make([]string, 0, len(ids))
	for qid := range ids {
		sorted = append(sorted, qid)
	}
	sort.Strings(sorted)
	return sorted
}

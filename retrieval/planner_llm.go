package retrieval

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/Younthing/eagent-sub001/llmjson"
	"github.com/Younthing/eagent-sub001/schema"
)

// PlannerJudge 查询规划器消费的外部模型能力。
type PlannerJudge interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

const queryPlannerSystemPrompt = `You generate short keyword-style search queries for retrieving evidence snippets from RCT papers. Return ONLY valid JSON matching this schema:
{
  "query_plan": {
    "<question_id>": ["query 1", "query 2", "..."]
  }
}
Rules:
- Do NOT include the full question text as a query.
- Use short phrases likely to appear in Methods/Results.
- Prefer methodology terms (randomization, allocation concealment, ITT, missing data, blinding).
- No commentary, no markdown, no code blocks.`

// QueryPlanner 查询规划器。judge 为 nil 时退化为纯确定性模式。
type QueryPlanner struct {
	rules  *schema.LocatorRules
	config PlannerConfig
	judge  PlannerJudge
	logger *zap.Logger
}

// NewQueryPlanner 创建查询规划器。
func NewQueryPlanner(rules *schema.LocatorRules, config PlannerConfig, judge PlannerJudge, logger *zap.Logger) (*QueryPlanner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryPlanner{
		rules:  rules,
		config: config,
		judge:  judge,
		logger: logger.With(zap.String("component", "query_planner")),
	}, nil
}

// Plan 为全部问题生成查询计划。
// 模型辅助失败时对受影响问题静默回退到确定性计划，绝不报错。
func (p *QueryPlanner) Plan(ctx context.Context, questions *schema.QuestionSet) map[string][]string {
	deterministic := make(map[string][]string, len(questions.Questions))
	for _, q := range questions.Questions {
		deterministic[q.QuestionID] = GenerateQueriesForQuestion(q, p.rules, p.config)
	}
	if p.judge == nil || p.config.MaxQueriesPerQuestion == 1 {
		return deterministic
	}

	modelPlan := p.requestModelPlan(ctx, questions)

	merged := make(map[string][]string, len(questions.Questions))
	for _, q := range questions.Questions {
		candidates := []string{q.Text}
		candidates = append(candidates, modelPlan[q.QuestionID]...)
		for _, query := range deterministic[q.QuestionID] {
			if query != q.Text {
				candidates = append(candidates, query)
			}
		}
		plan := dedupeQueries(candidates)
		if len(plan) > p.config.MaxQueriesPerQuestion {
			plan = plan[:p.config.MaxQueriesPerQuestion]
		}
		merged[q.QuestionID] = plan
	}
	return merged
}

type queryPlanResponse struct {
	QueryPlan map[string][]string `json:"query_plan"`
}

type plannerQuestionPayload struct {
	QuestionID   string   `json:"question_id"`
	Domain       string   `json:"domain"`
	Text         string   `json:"text"`
	KeywordHints []string `json:"keyword_hints"`
	EffectType   string   `json:"effect_type,omitempty"`
}

// requestModelPlan 调用模型生成查询计划；任何失败都返回空计划。
func (p *QueryPlanner) requestModelPlan(ctx context.Context, questions *schema.QuestionSet) map[string][]string {
	payload := struct {
		Task        string                   `json:"task"`
		Constraints map[string]any           `json:"constraints"`
		Questions   []plannerQuestionPayload `json:"questions"`
	}{
		Task: "Generate retrieval queries per signaling question.",
		Constraints: map[string]any{
			"max_queries_per_question":     p.config.MaxQueriesPerQuestion - 1,
			"do_not_include_question_text": true,
			"no_explanations":              true,
			"plain_strings_only":           true,
		},
	}
	for _, q := range questions.Questions {
		hints := p.rules.EffectiveKeywords(q.QuestionID, q.Domain)
		if len(hints) > p.config.MaxKeywordHintsForModelPlans {
			hints = hints[:p.config.MaxKeywordHintsForModelPlans]
		}
		payload.Questions = append(payload.Questions, plannerQuestionPayload{
			QuestionID:   q.QuestionID,
			Domain:       q.Domain,
			Text:         q.Text,
			KeywordHints: hints,
			EffectType:   q.EffectType,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("marshal planner payload failed, using deterministic plan", zap.Error(err))
		return nil
	}

	response, err := p.judge.Invoke(ctx, queryPlannerSystemPrompt+"\n\n"+string(body))
	if err != nil {
		p.logger.Warn("model-assisted planning failed, using deterministic plan", zap.Error(err))
		return nil
	}

	var decoded queryPlanResponse
	if err := llmjson.DecodeObject(response, true, &decoded); err != nil {
		p.logger.Warn("planner response not parseable, using deterministic plan", zap.Error(err))
		return nil
	}

	allowed := make(map[string]struct{}, len(questions.Questions))
	for _, q := range questions.Questions {
		allowed[q.QuestionID] = struct{}{}
	}
	normalized := make(map[string][]string, len(decoded.QueryPlan))
	for rawID, queries := range decoded.QueryPlan {
		questionID := strings.TrimSpace(rawID)
		if questionID == "" {
			continue
		}
		if _, ok := allowed[questionID]; !ok {
			continue
		}
		var cleaned []string
		for _, query := range queries {
			if c := cleanQuery(query); c != "" {
				cleaned = append(cleaned, c)
			}
		}
		normalized[questionID] = cleaned
	}
	return normalized
}

package retrieval

import (
	"fmt"
	"strings"

	"github.com/Younthing/eagent-sub001/schema"
)

// PlannerConfig 查询规划配置。
type PlannerConfig struct {
	MaxQueriesPerQuestion        int `json:"max_queries_per_question" yaml:"max_queries_per_question"`
	MaxKeywordsPerCombinedQuery  int `json:"max_keywords_per_combined_query" yaml:"max_keywords_per_combined_query"`
	MaxSingleKeywordQueries      int `json:"max_single_keyword_queries" yaml:"max_single_keyword_queries"`
	MaxKeywordHintsForModelPlans int `json:"max_keyword_hints_for_model_plans" yaml:"max_keyword_hints_for_model_plans"`
}

// DefaultPlannerConfig 返回默认规划配置。
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		MaxQueriesPerQuestion:        5,
		MaxKeywordsPerCombinedQuery:  8,
		MaxSingleKeywordQueries:      3,
		MaxKeywordHintsForModelPlans: 10,
	}
}

// Validate 校验规划配置。
func (c PlannerConfig) Validate() error {
	if c.MaxQueriesPerQuestion < 1 {
		return fmt.Errorf("max_queries_per_question must be >= 1, got %d", c.MaxQueriesPerQuestion)
	}
	if c.MaxKeywordsPerCombinedQuery < 0 || c.MaxSingleKeywordQueries < 0 || c.MaxKeywordHintsForModelPlans < 0 {
		return fmt.Errorf("planner keyword limits must be >= 0")
	}
	return nil
}

// GenerateQueryPlan 为每个问题生成确定性查询集。
func GenerateQueryPlan(questions *schema.QuestionSet, rules *schema.LocatorRules, cfg PlannerConfig) (map[string][]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	plan := make(map[string][]string, len(questions.Questions))
	for _, q := range questions.Questions {
		plan[q.QuestionID] = GenerateQueriesForQuestion(q, rules, cfg)
	}
	return plan, nil
}

// GenerateQueriesForQuestion 为单个问题生成稳定的小查询集:
// 问题文本、若干单关键词查询、关键词组合短语、剩余关键词，
// 大小写不敏感去重后截断到 MaxQueriesPerQuestion。
func GenerateQueriesForQuestion(q schema.Question, rules *schema.LocatorRules, cfg PlannerConfig) []string {
	keywords := rules.EffectiveKeywords(q.QuestionID, q.Domain)

	combinedN := cfg.MaxKeywordsPerCombinedQuery
	if combinedN > len(keywords) {
		combinedN = len(keywords)
	}
	combined := strings.TrimSpace(strings.Join(keywords[:combinedN], " "))

	singleN := cfg.MaxSingleKeywordQueries
	if singleN > len(keywords) {
		singleN = len(keywords)
	}

	candidates := make([]string, 0, len(keywords)+2)
	candidates = append(candidates, q.Text)
	candidates = append(candidates, keywords[:singleN]...)
	if combined != "" {
		candidates = append(candidates, combined)
	}
	candidates = append(candidates, keywords[singleN:]...)

	deduped := dedupeQueries(candidates)
	if len(deduped) > cfg.MaxQueriesPerQuestion {
		deduped = deduped[:cfg.MaxQueriesPerQuestion]
	}
	return deduped
}

func dedupeQueries(queries []string) []string {
	seen := make(map[string]struct{}, len(queries))
	result := make([]string, 0, len(queries))
	for _, query := range queries {
		cleaned := cleanQuery(query)
		if cleaned == "" {
			continue
		}
		key := strings.ToLower(cleaned)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, cleaned)
	}
	return result
}

func cleanQuery(query string) string {
	cleaned := strings.Join(strings.Fields(query), " ")
	return strings.Trim(cleaned, "`\"'")
}

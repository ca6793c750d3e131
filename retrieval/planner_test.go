package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Younthing/eagent-sub001/schema"
)

func plannerRules() *schema.LocatorRules {
	return &schema.LocatorRules{
		Defaults: schema.LocatorDefaults{TopK: 5},
		Domains: map[string]schema.DomainRules{
			"d1": {
				SectionPriors: []string{"methods", "randomization"},
				Keywords:      []string{"random sequence", "allocation concealment", "sealed envelopes", "block randomization"},
			},
		},
		QuestionOverrides: map[string]schema.QuestionOverride{
			"q1": {Keywords: []string{"computer generated"}},
		},
	}
}

func plannerQuestions() *schema.QuestionSet {
	return &schema.QuestionSet{Questions: []schema.Question{
		{QuestionID: "q1", Domain: "d1", Text: "Was the allocation sequence random?"},
		{QuestionID: "q2", Domain: "d1", Text: "Was the allocation sequence concealed?"},
	}}
}

func TestGenerateQueriesDeterministicShape(t *testing.T) {
	queries := GenerateQueriesForQuestion(plannerQuestions().Questions[0], plannerRules(), DefaultPlannerConfig())
	require.NotEmpty(t, queries)
	assert.Equal(t, "Was the allocation sequence random?", queries[0], "question text comes first")
	assert.LessOrEqual(t, len(queries), 5)
	// 覆盖关键词优先于域默认关键词。
	assert.Equal(t, "computer generated", queries[1])

	again := GenerateQueriesForQuestion(plannerQuestions().Questions[0], plannerRules(), DefaultPlannerConfig())
	assert.Equal(t, queries, again, "planner output must be deterministic")
}

func TestGenerateQueryPlanDedupesCaseInsensitively(t *testing.T) {
	rules := plannerRules()
	rules.QuestionOverrides["q1"] = schema.QuestionOverride{
		Keywords: []string{"Sealed Envelopes"}, // duplicates a domain keyword, different case
	}
	queries := GenerateQueriesForQuestion(plannerQuestions().Questions[0], rules, DefaultPlannerConfig())
	lowered := map[string]int{}
	for _, q := range queries {
		lowered[q]++
	}
	for q, n := range lowered {
		assert.Equal(t, 1, n, "duplicate query: %s", q)
	}
}

func TestGenerateQueryPlanRejectsBadConfig(t *testing.T) {
	cfg := DefaultPlannerConfig()
	cfg.MaxQueriesPerQuestion = 0
	_, err := GenerateQueryPlan(plannerQuestions(), plannerRules(), cfg)
	assert.Error(t, err)
}

type fakePlannerJudge struct {
	response string
	err      error
	calls    int
}

func (f *fakePlannerJudge) Invoke(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.response, f.err
}

func TestQueryPlannerMergesModelQueries(t *testing.T) {
	judge := &fakePlannerJudge{
		response: `{"query_plan": {"q1": ["allocation sequence generation"], "q_unknown": ["dropped"]}}`,
	}
	planner, err := NewQueryPlanner(plannerRules(), DefaultPlannerConfig(), judge, zap.NewNop())
	require.NoError(t, err)

	plan := planner.Plan(context.Background(), plannerQuestions())
	require.Contains(t, plan, "q1")
	assert.Equal(t, "Was the allocation sequence random?", plan["q1"][0], "question text stays first")
	assert.Equal(t, "allocation sequence generation", plan["q1"][1], "model queries come before deterministic tail")
	assert.NotContains(t, plan, "q_unknown")
	assert.Equal(t, 1, judge.calls)
}

func TestQueryPlannerFallsBackOnJudgeError(t *testing.T) {
	judge := &fakePlannerJudge{err: errors.New("provider down")}
	planner, err := NewQueryPlanner(plannerRules(), DefaultPlannerConfig(), judge, zap.NewNop())
	require.NoError(t, err)

	plan := planner.Plan(context.Background(), plannerQuestions())
	deterministic, err := GenerateQueryPlan(plannerQuestions(), plannerRules(), DefaultPlannerConfig())
	require.NoError(t, err)
	assert.Equal(t, deterministic, plan, "fallback must match the deterministic plan")
}

func TestQueryPlannerFallsBackOnGarbageResponse(t *testing.T) {
	judge := &fakePlannerJudge{response: "not json at all"}
	planner, err := NewQueryPlanner(plannerRules(), DefaultPlannerConfig(), judge, zap.NewNop())
	require.NoError(t, err)

	plan := planner.Plan(context.Background(), plannerQuestions())
	deterministic, err := GenerateQueryPlan(plannerQuestions(), plannerRules(), DefaultPlannerConfig())
	require.NoError(t, err)
	assert.Equal(t, deterministic, plan)
}

func TestQueryPlannerDeterministicWhenNoJudge(t *testing.T) {
	planner, err := NewQueryPlanner(plannerRules(), DefaultPlannerConfig(), nil, nil)
	require.NoError(t, err)
	plan := planner.Plan(context.Background(), plannerQuestions())
	assert.Len(t, plan, 2)
}

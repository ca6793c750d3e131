// Package pipeline orchestrates the evidence run: parallel per-question
// location, fusion, validation, and the bounded partial-retry loop.
package pipeline

// Decision 验证后的路由结果。
type Decision string

const (
	// DecisionProceed 验证通过，终态成功。
	DecisionProceed Decision = "proceed"
	// DecisionRetry 验证失败且还有重试预算，回到定位层重算失败问题。
	DecisionRetry Decision = "retry"
	// DecisionFallback 预算耗尽，终态降级：带着现有证据继续，失败被记录而不抛出。
	DecisionFallback Decision = "fallback"
)

// RouteState 路由决策的全部输入。
type RouteState struct {
	Attempt                    int
	MaxRetries                 int
	CompletenessPassed         bool
	ConsistencyFailedQuestions []string
	FailOnConsistency          bool
}

// RouteValidation 纯决策函数：
// ok = completeness_passed && (!fail_on_consistency || 无一致性失败)。
// ok 则 proceed；否则还有预算就 retry，预算耗尽 fallback。
func RouteValidation(state RouteState) Decision {
	ok := state.CompletenessPassed &&
		(!state.FailOnConsistency || len(state.ConsistencyFailedQuestions) == 0)
	if ok {
		return DecisionProceed
	}
	if state.Attempt < state.MaxRetries {
		return DecisionRetry
	}
	return DecisionFallback
}

package validate

import (
	"fmt"

	"github.com/Younthing/eagent-sub001/schema"
)

// CompletenessConfig 完备性校验配置。
type CompletenessConfig struct {
	// Enforce 为 true 时全部问题默认必答。
	Enforce bool `json:"enforce" yaml:"enforce"`
	// RequiredQuestionIDs 显式必答问题清单，非 nil 时覆盖 Enforce 的默认集合。
	RequiredQuestionIDs []string `json:"required_question_ids,omitempty" yaml:"required_question_ids,omitempty"`
	// MinPassedPerQuestion 每个问题至少需要的通过候选数。
	MinPassedPerQuestion int `json:"min_passed_per_question" yaml:"min_passed_per_question"`
	// RequireRelevance 为 false 时只按落地性计数（相关性校验被关闭的运行）。
	RequireRelevance bool `json:"require_relevance" yaml:"require_relevance"`
	// MinRelevanceConfidence 计入通过所需的最低相关性置信度。
	MinRelevanceConfidence float64 `json:"min_relevance_confidence" yaml:"min_relevance_confidence"`
}

// DefaultCompletenessConfig 返回默认完备性配置。
func DefaultCompletenessConfig() CompletenessConfig {
	return CompletenessConfig{
		MinPassedPerQuestion:   1,
		RequireRelevance:       true,
		MinRelevanceConfidence: 0.6,
	}
}

// Validate 校验完备性配置。
func (c CompletenessConfig) Validate() error {
	if c.MinPassedPerQuestion < 1 {
		return fmt.Errorf("min_passed_per_question must be >= 1, got %d", c.MinPassedPerQuestion)
	}
	if c.MinRelevanceConfidence < 0 || c.MinRelevanceConfidence > 1 {
		return fmt.Errorf("min_relevance_confidence must be in [0, 1], got %v", c.MinRelevanceConfidence)
	}
	return nil
}

// SelectPassedCandidates 返回通过落地性与相关性双重约束的候选。
// 未被标注的维度视为通过，关闭相关性时只看落地性。
func SelectPassedCandidates(candidates []schema.FusedEvidenceCandidate, cfg CompletenessConfig) []schema.FusedEvidenceCandidate {
	var selected []schema.FusedEvidenceCandidate
	for _, candidate := range candidates {
		if candidate.Existence != nil && candidate.Existence.Label != "pass" {
			continue
		}
		if cfg.RequireRelevance {
			if candidate.Relevance == nil || candidate.Relevance.Label != "relevant" {
				continue
			}
			confidence := 0.0
			if candidate.Relevance.Confidence != nil {
				confidence = *candidate.Relevance.Confidence
			}
			if confidence < cfg.MinRelevanceConfidence {
				continue
			}
		}
		selected = append(selected, candidate)
	}
	return selected
}

// ComputeCompleteness 汇总每个问题的通过候选数并判定整体完备性。
// 未启用 enforce 且未给出显式必答清单时整体恒通过，仅产出报告。
func ComputeCompleteness(bank *schema.QuestionSet, candidatesByQ map[string][]schema.FusedEvidenceCandidate, cfg CompletenessConfig) (bool, []schema.CompletenessItem, []string, error) {
	if err := cfg.Validate(); err != nil {
		return false, nil, nil, err
	}

	required := make(map[string]struct{})
	if cfg.RequiredQuestionIDs != nil {
		for _, id := range cfg.RequiredQuestionIDs {
			required[id] = struct{}{}
		}
	} else if cfg.Enforce {
		for _, q := range bank.Questions {
			required[q.QuestionID] = struct{}{}
		}
	}

	var failed []string
	items := make([]schema.CompletenessItem, 0, len(bank.Questions))
	for _, q := range bank.Questions {
		count := len(SelectPassedCandidates(candidatesByQ[q.QuestionID], cfg))
		_, isRequired := required[q.QuestionID]
		status := "satisfied"
		if count < cfg.MinPassedPerQuestion {
			status = "missing"
		}
		items = append(items, schema.CompletenessItem{
			QuestionID:  q.QuestionID,
			Required:    isRequired,
			PassedCount: count,
			Status:      status,
		})
		if isRequired && status == "missing" {
			failed = append(failed, q.QuestionID)
		}
	}

	passed := len(failed) == 0
	if !cfg.Enforce && cfg.RequiredQuestionIDs == nil {
		passed = true
	}
	return passed, items, failed, nil
}

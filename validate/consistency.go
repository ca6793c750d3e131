package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Younthing/eagent-sub001/llmjson"
	"github.com/Younthing/eagent-sub001/schema"
)

// ConsistencyConfig 一致性校验配置。
type ConsistencyConfig struct {
	// MinConfidence fail 裁决低于该置信度时降级 unknown。
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`
	// RequireQuotesForFail fail 裁决的每个冲突必须双方都有可回溯引文。
	RequireQuotesForFail bool `json:"require_quotes_for_fail" yaml:"require_quotes_for_fail"`
}

// DefaultConsistencyConfig 返回默认一致性配置。
func DefaultConsistencyConfig() ConsistencyConfig {
	return ConsistencyConfig{MinConfidence: 0.6, RequireQuotesForFail: true}
}

// Validate 校验一致性配置。
func (c ConsistencyConfig) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be in [0, 1], got %v", c.MinConfidence)
	}
	return nil
}

const consistencySystemPrompt = `You check whether multiple paragraphs contradict each other about a ROB2 signaling question.
Return ONLY JSON with keys: label, confidence, conflicts.
label must be one of: pass, fail, unknown.
conflicts is a list of objects: paragraph_id_a, paragraph_id_b, reason, quote_a, quote_b.
If you mark fail, include at least one conflict and provide quote_a/quote_b as exact substrings.
No markdown, no explanations.`

type consistencyConflictResponse struct {
	ParagraphIDA string  `json:"paragraph_id_a"`
	ParagraphIDB string  `json:"paragraph_id_b"`
	Reason       string  `json:"reason"`
	QuoteA       *string `json:"quote_a"`
	QuoteB       *string `json:"quote_b"`
}

type consistencyResponse struct {
	Label      string                        `json:"label"`
	Confidence *float64                      `json:"confidence"`
	Conflicts  []consistencyConflictResponse `json:"conflicts"`
}

// ConsistencyValidator 对单个问题的候选集合做问题级矛盾检测。
type ConsistencyValidator struct {
	judge  Judge
	config ConsistencyConfig
	budget *PromptBudget
	logger *zap.Logger
}

// NewConsistencyValidator 创建一致性验证器。judge 为 nil 时恒返回 unknown。
func NewConsistencyValidator(judge Judge, config ConsistencyConfig, budget *PromptBudget, logger *zap.Logger) (*ConsistencyValidator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsistencyValidator{
		judge:  judge,
		config: config,
		budget: budget,
		logger: logger.With(zap.String("component", "consistency_validator")),
	}, nil
}

// Evaluate 返回问题级一致性裁决。
// 少于两个候选时无从矛盾：有候选即 pass，空集合为 unknown。
// judge 响应不可解析时报错，而不是静默 unknown。
func (v *ConsistencyValidator) Evaluate(ctx context.Context, questionText string, candidates []schema.FusedEvidenceCandidate) (schema.ConsistencyVerdict, error) {
	if len(candidates) < 2 {
		label := "unknown"
		if len(candidates) == 1 {
			label = "pass"
		}
		return schema.ConsistencyVerdict{Label: label, Conflicts: []schema.ConsistencyConflict{}}, nil
	}
	if v.judge == nil {
		return schema.ConsistencyVerdict{Label: "unknown", Conflicts: []schema.ConsistencyConflict{}}, nil
	}

	type paragraphPayload struct {
		ParagraphID     string  `json:"paragraph_id"`
		Title           string  `json:"title"`
		Page            *int    `json:"page"`
		Text            string  `json:"text"`
		SupportingQuote *string `json:"supporting_quote"`
	}
	payload := struct {
		Question   string             `json:"question"`
		Paragraphs []paragraphPayload `json:"paragraphs"`
	}{Question: questionText}
	for _, candidate := range candidates {
		p := paragraphPayload{
			ParagraphID: candidate.ParagraphID,
			Title:       candidate.Title,
			Page:        candidate.Page,
			Text:        v.budget.TruncateText(candidate.Text),
		}
		if candidate.Relevance != nil && candidate.Relevance.SupportingQuote != "" {
			quote := candidate.Relevance.SupportingQuote
			p.SupportingQuote = &quote
		}
		payload.Paragraphs = append(payload.Paragraphs, p)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return schema.ConsistencyVerdict{}, fmt.Errorf("marshal consistency payload: %w", err)
	}

	raw, err := v.judge.Invoke(ctx, consistencySystemPrompt+"\n\n"+string(body))
	if err != nil {
		return schema.ConsistencyVerdict{}, fmt.Errorf("judge invoke: %w", err)
	}

	var response consistencyResponse
	if err := llmjson.DecodeObject(raw, true, &response); err != nil {
		return schema.ConsistencyVerdict{}, fmt.Errorf("parse consistency response: %w", err)
	}
	return v.normalizeVerdict(response, candidates), nil
}

// normalizeVerdict 收敛裁决:
// 冲突对丢弃未知或自引用的段落 ID，不可回溯的引文置空；
// fail 裁决缺置信度、缺冲突或缺引文时降级 unknown。
func (v *ConsistencyValidator) normalizeVerdict(response consistencyResponse, candidates []schema.FusedEvidenceCandidate) schema.ConsistencyVerdict {
	label := strings.ToLower(strings.TrimSpace(response.Label))
	switch label {
	case "pass", "fail", "unknown":
	default:
		label = "unknown"
	}

	var confidence *float64
	if label != "unknown" && response.Confidence != nil {
		confidence = float64Ptr(clamp01(*response.Confidence))
	}

	textByPID := make(map[string]string, len(candidates))
	for _, candidate := range candidates {
		textByPID[candidate.ParagraphID] = candidate.Text
	}

	conflicts := make([]schema.ConsistencyConflict, 0, len(response.Conflicts))
	for _, conflict := range response.Conflicts {
		pidA := strings.TrimSpace(conflict.ParagraphIDA)
		pidB := strings.TrimSpace(conflict.ParagraphIDB)
		if pidA == "" || pidB == "" || pidA == pidB {
			continue
		}
		textA, okA := textByPID[pidA]
		textB, okB := textByPID[pidB]
		if !okA || !okB {
			continue
		}
		quoteA := ""
		if conflict.QuoteA != nil && strings.Contains(textA, *conflict.QuoteA) {
			quoteA = *conflict.QuoteA
		}
		quoteB := ""
		if conflict.QuoteB != nil && strings.Contains(textB, *conflict.QuoteB) {
			quoteB = *conflict.QuoteB
		}
		conflicts = append(conflicts, schema.ConsistencyConflict{
			ParagraphIDA: pidA,
			ParagraphIDB: pidB,
			Reason:       conflict.Reason,
			QuoteA:       quoteA,
			QuoteB:       quoteB,
		})
	}

	switch label {
	case "pass":
		return schema.ConsistencyVerdict{Label: "pass", Confidence: confidence, Conflicts: []schema.ConsistencyConflict{}}
	case "unknown":
		return schema.ConsistencyVerdict{Label: "unknown", Conflicts: []schema.ConsistencyConflict{}}
	}

	if confidence == nil || *confidence < v.config.MinConfidence || len(conflicts) == 0 {
		return schema.ConsistencyVerdict{Label: "unknown", Conflicts: []schema.ConsistencyConflict{}}
	}
	if v.config.RequireQuotesForFail {
		for _, conflict := range conflicts {
			if conflict.QuoteA == "" || conflict.QuoteB == "" {
				return schema.ConsistencyVerdict{Label: "unknown", Conflicts: []schema.ConsistencyConflict{}}
			}
		}
	}
	return schema.ConsistencyVerdict{Label: "fail", Confidence: confidence, Conflicts: conflicts}
}

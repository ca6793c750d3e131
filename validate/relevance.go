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

// RelevanceConfig 相关性校验配置。
type RelevanceConfig struct {
	// MinConfidence 候选进入完备性统计所需的最低置信度。
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`
	// RequireSupportingQuote relevant 裁决必须附带段落原文引文，否则降级 unknown。
	RequireSupportingQuote bool `json:"require_supporting_quote" yaml:"require_supporting_quote"`
}

// DefaultRelevanceConfig 返回默认相关性配置。
func DefaultRelevanceConfig() RelevanceConfig {
	return RelevanceConfig{MinConfidence: 0.6, RequireSupportingQuote: true}
}

// Validate 校验相关性配置。
func (c RelevanceConfig) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be in [0, 1], got %v", c.MinConfidence)
	}
	return nil
}

const relevanceSystemPrompt = `You judge whether a paragraph contains DIRECT evidence to answer a ROB2 signaling question.
Return ONLY valid JSON with keys: label, confidence, supporting_quote.
label must be one of: relevant, irrelevant, unknown.
confidence must be a number between 0 and 1.
supporting_quote must be an EXACT substring copied from the paragraph, or null.
If the paragraph does not contain an explicit statement answering the question, choose irrelevant.
If you are unsure, choose unknown.
No markdown, no explanations.`

type relevanceResponse struct {
	Label           string   `json:"label"`
	Confidence      *float64 `json:"confidence"`
	SupportingQuote *string  `json:"supporting_quote"`
}

// RelevanceValidator 逐候选调用 judge 做语义相关性裁决。
type RelevanceValidator struct {
	judge  Judge
	config RelevanceConfig
	budget *PromptBudget
	logger *zap.Logger
}

// NewRelevanceValidator 创建相关性验证器。judge 为 nil 时所有候选标 unknown。
// budget 可选，用于截断进入 prompt 的段落文本。
func NewRelevanceValidator(judge Judge, config RelevanceConfig, budget *PromptBudget, logger *zap.Logger) (*RelevanceValidator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelevanceValidator{
		judge:  judge,
		config: config,
		budget: budget,
		logger: logger.With(zap.String("component", "relevance_validator")),
	}, nil
}

// Annotate 给每个候选打相关性裁决。
// judge 返回不可解析内容时直接报错，未裁决的候选绝不默许通过。
func (v *RelevanceValidator) Annotate(ctx context.Context, questionText string, candidates []schema.FusedEvidenceCandidate) ([]schema.FusedEvidenceCandidate, error) {
	annotated := make([]schema.FusedEvidenceCandidate, len(candidates))
	for i, candidate := range candidates {
		if v.judge == nil {
			candidate.Relevance = &schema.RelevanceVerdict{Label: "unknown"}
			annotated[i] = candidate
			continue
		}

		verdict, err := v.judgeCandidate(ctx, questionText, candidate)
		if err != nil {
			return nil, fmt.Errorf("relevance verdict for question %s paragraph %s: %w",
				candidate.QuestionID, candidate.ParagraphID, err)
		}
		candidate.Relevance = &verdict
		annotated[i] = candidate
	}
	return annotated, nil
}

func (v *RelevanceValidator) judgeCandidate(ctx context.Context, questionText string, candidate schema.FusedEvidenceCandidate) (schema.RelevanceVerdict, error) {
	payload := struct {
		Question  string `json:"question"`
		Paragraph struct {
			ParagraphID string `json:"paragraph_id"`
			Title       string `json:"title"`
			Page        *int   `json:"page"`
			Text        string `json:"text"`
		} `json:"paragraph"`
	}{Question: questionText}
	payload.Paragraph.ParagraphID = candidate.ParagraphID
	payload.Paragraph.Title = candidate.Title
	payload.Paragraph.Page = candidate.Page
	payload.Paragraph.Text = v.budget.TruncateText(candidate.Text)

	body, err := json.Marshal(payload)
	if err != nil {
		return schema.RelevanceVerdict{}, fmt.Errorf("marshal relevance payload: %w", err)
	}

	raw, err := v.judge.Invoke(ctx, relevanceSystemPrompt+"\n\n"+string(body))
	if err != nil {
		return schema.RelevanceVerdict{}, fmt.Errorf("judge invoke: %w", err)
	}

	var response relevanceResponse
	if err := llmjson.DecodeObject(raw, true, &response); err != nil {
		return schema.RelevanceVerdict{}, fmt.Errorf("parse relevance response: %w", err)
	}
	return normalizeRelevanceVerdict(response, candidate.Text, v.config.RequireSupportingQuote), nil
}

// normalizeRelevanceVerdict 把裁决收敛到白名单标签:
// 未知标签归 unknown，unknown 不带置信度，置信度截断到 [0, 1]，
// require_quote 下没有可回溯引文的 relevant 降级 unknown。
func normalizeRelevanceVerdict(response relevanceResponse, paragraphText string, requireQuote bool) schema.RelevanceVerdict {
	label := strings.ToLower(strings.TrimSpace(response.Label))
	switch label {
	case "relevant", "irrelevant", "unknown":
	default:
		label = "unknown"
	}

	var confidence *float64
	if label != "unknown" && response.Confidence != nil {
		confidence = float64Ptr(clamp01(*response.Confidence))
	}

	quote := ""
	if response.SupportingQuote != nil {
		quote = strings.Join(strings.Fields(*response.SupportingQuote), " ")
	}

	if requireQuote && label == "relevant" {
		if quote == "" || !strings.Contains(paragraphText, quote) {
			return schema.RelevanceVerdict{Label: "unknown"}
		}
	}

	return schema.RelevanceVerdict{Label: label, Confidence: confidence, SupportingQuote: quote}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func float64Ptr(v float64) *float64 { return &v }

package validate

import (
	"strings"

	"github.com/Younthing/eagent-sub001/schema"
)

// ExistenceConfig 落地性校验配置。
type ExistenceConfig struct {
	// RequireTextMatch 候选文本必须与源段落规范化后互为包含。
	RequireTextMatch bool `json:"require_text_match" yaml:"require_text_match"`
	// RequireQuoteInSource 支撑引文必须是源段落原文的字面子串。
	RequireQuoteInSource bool `json:"require_quote_in_source" yaml:"require_quote_in_source"`
}

// DefaultExistenceConfig 返回默认配置，两项约束全开。
func DefaultExistenceConfig() ExistenceConfig {
	return ExistenceConfig{RequireTextMatch: true, RequireQuoteInSource: true}
}

// AnnotateExistence 给每个融合候选打落地性裁决。完全确定性，不触网。
// fail 是正常的否定结果而非错误，由完备性验证器统一消费。
func AnnotateExistence(doc *schema.DocStructure, candidates []schema.FusedEvidenceCandidate, cfg ExistenceConfig) []schema.FusedEvidenceCandidate {
	spans := doc.SpanIndex()
	annotated := make([]schema.FusedEvidenceCandidate, len(candidates))
	for i, candidate := range candidates {
		span, found := spans[candidate.ParagraphID]
		verdict := judgeExistence(span, found, candidate, cfg)
		candidate.Existence = &verdict
		annotated[i] = candidate
	}
	return annotated
}

func judgeExistence(span schema.SectionSpan, found bool, candidate schema.FusedEvidenceCandidate, cfg ExistenceConfig) schema.ExistenceVerdict {
	if !found {
		return schema.ExistenceVerdict{
			Label:            "fail",
			Reason:           "paragraph_id_not_found",
			ParagraphIDFound: false,
		}
	}

	// 文本比对大小写不敏感，引文比对保持字面。
	sourceNorm := strings.ToLower(normalizeBlock(span.Text))
	candidateNorm := strings.ToLower(normalizeBlock(candidate.Text))

	textMatch := false
	if sourceNorm != "" && candidateNorm != "" {
		textMatch = candidateNorm == sourceNorm ||
			strings.Contains(sourceNorm, candidateNorm) ||
			strings.Contains(candidateNorm, sourceNorm)
	}

	if cfg.RequireTextMatch && !textMatch {
		return schema.ExistenceVerdict{
			Label:            "fail",
			Reason:           "text_mismatch",
			ParagraphIDFound: true,
			TextMatch:        boolPtr(textMatch),
		}
	}

	var quoteFound *bool
	quote := ""
	if candidate.Relevance != nil {
		quote = candidate.Relevance.SupportingQuote
	}
	if quote != "" {
		// 引文校验针对未规范化的源文本，保证字面可回溯。
		quoteFound = boolPtr(strings.Contains(span.Text, quote))
		if cfg.RequireQuoteInSource && !*quoteFound {
			return schema.ExistenceVerdict{
				Label:            "fail",
				Reason:           "quote_not_found",
				ParagraphIDFound: true,
				TextMatch:        boolPtr(textMatch),
				QuoteFound:       quoteFound,
			}
		}
	}

	verdict := schema.ExistenceVerdict{
		Label:            "pass",
		ParagraphIDFound: true,
		QuoteFound:       quoteFound,
	}
	if sourceNorm != "" && candidateNorm != "" {
		verdict.TextMatch = boolPtr(textMatch)
	}
	return verdict
}

// normalizeBlock 折叠空白但保留换行：\r\n 与换页归一成 \n，
// 每行去掉尾部空白，整体去掉首尾空白。
func normalizeBlock(text string) string {
	cleaned := strings.ReplaceAll(text, "\r\n", "\n")
	cleaned = strings.ReplaceAll(cleaned, "\x0c", "\n")
	lines := strings.Split(cleaned, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r\v\f")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func boolPtr(v bool) *bool { return &v }

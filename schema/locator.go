package schema

import "strings"

// DomainRules 某个问题域的定位规则：章节先验与关键词。
type DomainRules struct {
	SectionPriors []string `json:"section_priors" yaml:"section_priors"`
	Keywords      []string `json:"keywords" yaml:"keywords"`
}

// QuestionOverride 单个问题对域默认规则的覆盖。
type QuestionOverride struct {
	SectionPriors []string `json:"section_priors,omitempty" yaml:"section_priors,omitempty"`
	Keywords      []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// LocatorDefaults 定位器全局默认值。
type LocatorDefaults struct {
	TopK int `json:"top_k" yaml:"top_k"`
}

// LocatorRules 规则引擎与查询规划器共享的规则表。
type LocatorRules struct {
	Version           string                      `json:"version,omitempty" yaml:"version,omitempty"`
	Defaults          LocatorDefaults             `json:"defaults" yaml:"defaults"`
	Domains           map[string]DomainRules      `json:"domains" yaml:"domains"`
	QuestionOverrides map[string]QuestionOverride `json:"question_overrides,omitempty" yaml:"question_overrides,omitempty"`
}

// EffectiveKeywords 合并问题覆盖与域默认关键词。
// 覆盖优先、域默认追加，大小写不敏感去重。
func (r *LocatorRules) EffectiveKeywords(questionID, domain string) []string {
	var override []string
	if o, ok := r.QuestionOverrides[questionID]; ok {
		override = o.Keywords
	}
	return mergeUnique(override, r.Domains[domain].Keywords)
}

// EffectiveSectionPriors 合并问题覆盖与域默认章节先验。
func (r *LocatorRules) EffectiveSectionPriors(questionID, domain string) []string {
	var override []string
	if o, ok := r.QuestionOverrides[questionID]; ok {
		override = o.SectionPriors
	}
	return mergeUnique(override, r.Domains[domain].SectionPriors)
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	merged := make([]string, 0, len(a)+len(b))
	for _, item := range append(append([]string{}, a...), b...) {
		cleaned := strings.TrimSpace(item)
		if cleaned == "" {
			continue
		}
		key := strings.ToLower(cleaned)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, cleaned)
	}
	return merged
}

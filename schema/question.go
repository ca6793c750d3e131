package schema

import "fmt"

// Question 一条结构化信号问题。
type Question struct {
	QuestionID string   `json:"question_id" yaml:"question_id"`
	Domain     string   `json:"domain" yaml:"domain"`
	Text       string   `json:"text" yaml:"text"`
	Options    []string `json:"options,omitempty" yaml:"options,omitempty"`
	EffectType string   `json:"effect_type,omitempty" yaml:"effect_type,omitempty"`
	Order      int      `json:"order,omitempty" yaml:"order,omitempty"`
}

// QuestionSet 有序问题清单。问题 ID 必须唯一。
type QuestionSet struct {
	Version   string     `json:"version,omitempty" yaml:"version,omitempty"`
	Variant   string     `json:"variant,omitempty" yaml:"variant,omitempty"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Validate 校验问题清单的基本不变式。
func (qs *QuestionSet) Validate() error {
	seen := make(map[string]struct{}, len(qs.Questions))
	for i, q := range qs.Questions {
		if q.QuestionID == "" {
			return fmt.Errorf("question %d: question_id is required", i)
		}
		if q.Text == "" {
			return fmt.Errorf("question %s: text is required", q.QuestionID)
		}
		if _, dup := seen[q.QuestionID]; dup {
			return fmt.Errorf("duplicate question_id: %s", q.QuestionID)
		}
		seen[q.QuestionID] = struct{}{}
	}
	return nil
}

// QuestionIDs 按声明顺序返回全部问题 ID。
func (qs *QuestionSet) QuestionIDs() []string {
	ids := make([]string, len(qs.Questions))
	for i, q := range qs.Questions {
		ids[i] = q.QuestionID
	}
	return ids
}

// ByID 按 ID 查找问题。
func (qs *QuestionSet) ByID(questionID string) (Question, bool) {
	for _, q := range qs.Questions {
		if q.QuestionID == questionID {
			return q, true
		}
	}
	return Question{}, false
}

// Filter 返回仅包含 allowed 中问题的副本；allowed 为 nil 时原样返回。
func (qs *QuestionSet) Filter(allowed map[string]struct{}) QuestionSet {
	if allowed == nil {
		return *qs
	}
	filtered := QuestionSet{Version: qs.Version, Variant: qs.Variant}
	for _, q := range qs.Questions {
		if _, ok := allowed[q.QuestionID]; ok {
			filtered.Questions = append(filtered.Questions, q)
		}
	}
	return filtered
}

// Package rob2 carries the built-in signaling question bank and the locator
// rule tables, both loadable from YAML with compiled-in defaults.
package rob2

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Younthing/eagent-sub001/schema"
)

//go:embed questions.yaml
var defaultQuestionsYAML []byte

//go:embed locator_rules.yaml
var defaultRulesYAML []byte

// LoadQuestionBank 从 YAML 加载问题清单；path 为空时使用内置默认。
func LoadQuestionBank(path string) (*schema.QuestionSet, error) {
	raw := defaultQuestionsYAML
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read question bank: %w", err)
		}
		raw = data
	}

	var bank schema.QuestionSet
	if err := yaml.Unmarshal(raw, &bank); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	if len(bank.Questions) == 0 {
		return nil, fmt.Errorf("question bank must include a questions list")
	}
	for i := range bank.Questions {
		if bank.Questions[i].Order == 0 {
			bank.Questions[i].Order = i + 1
		}
	}
	if err := bank.Validate(); err != nil {
		return nil, fmt.Errorf("invalid question bank: %w", err)
	}
	return &bank, nil
}

// LoadLocatorRules 从 YAML 加载定位规则；path 为空时使用内置默认。
func LoadLocatorRules(path string) (*schema.LocatorRules, error) {
	raw := defaultRulesYAML
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read locator rules: %w", err)
		}
		raw = data
	}

	var rules schema.LocatorRules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("parse locator rules: %w", err)
	}
	if len(rules.Domains) == 0 {
		return nil, fmt.Errorf("locator rules must define at least one domain")
	}
	if rules.Defaults.TopK < 1 {
		rules.Defaults.TopK = 5
	}
	return &rules, nil
}

// ValidateAgainstBank 校验问题清单引用的域都有规则定义。
func ValidateAgainstBank(rules *schema.LocatorRules, bank *schema.QuestionSet) error {
	for _, q := range bank.Questions {
		if _, ok := rules.Domains[q.Domain]; !ok {
			return fmt.Errorf("question %s references unknown domain %q", q.QuestionID, q.Domain)
		}
	}
	return nil
}

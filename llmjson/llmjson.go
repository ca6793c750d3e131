// Package llmjson extracts well-formed JSON objects from noisy LLM output.
//
// 模型返回往往夹带说明文字或代码块围栏，这里先扫描代码块、再扫描全文，
// 通过跟踪字符串字面量状态的括号匹配找到第一个可解析为对象的候选。
package llmjson

import (
	"encoding/json"
	"errors"
	"regexp"
)

// ErrNoJSONObject 表示响应中找不到任何可解析的 JSON 对象。
var ErrNoJSONObject = errors.New("no JSON object found in LLM response")

var codeBlockRe = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)```")

// ExtractObject 返回文本中第一个合法 JSON 对象的原始字符串。
// preferCodeBlock 为 true 时优先扫描 ``` 围栏内部。
func ExtractObject(text string, preferCodeBlock bool) (string, error) {
	if preferCodeBlock {
		for _, match := range codeBlockRe.FindAllStringSubmatch(text, -1) {
			if candidate, ok := firstObject(match[1]); ok {
				return candidate, nil
			}
		}
	}
	if candidate, ok := firstObject(text); ok {
		return candidate, nil
	}
	return "", ErrNoJSONObject
}

// DecodeObject 提取并反序列化第一个 JSON 对象。
func DecodeObject(text string, preferCodeBlock bool, out any) error {
	raw, err := ExtractObject(text, preferCodeBlock)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), out)
}

func firstObject(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		end, ok := matchingBrace(text, start)
		if !ok {
			continue
		}
		candidate := text[start : end+1]
		var decoded map[string]any
		if err := json.Unmarshal([]byte(candidate), &decoded); err == nil {
			return candidate, true
		}
	}
	return "", false
}

// matchingBrace 返回与 start 处 '{' 配对的 '}' 下标。
// 字符串字面量内的括号不参与深度计数，避免失配。
func matchingBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

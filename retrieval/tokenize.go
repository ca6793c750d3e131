package retrieval

import (
	"strings"
	"unicode"
)

// TokenizerMode 分词模式。
type TokenizerMode string

const (
	// TokenizerAuto 根据文本是否含 CJK 自动选择。
	TokenizerAuto TokenizerMode = "auto"
	// TokenizerEnglish 仅做小写化的英文分词。
	TokenizerEnglish TokenizerMode = "english"
	// TokenizerChar CJK 字符 n-gram + 英文 token 合并。
	TokenizerChar TokenizerMode = "char"
)

// TokenizerConfig 分词配置。
type TokenizerConfig struct {
	Mode      TokenizerMode `json:"mode" yaml:"mode"`
	CharNgram int           `json:"char_ngram" yaml:"char_ngram"`
}

// DefaultTokenizerConfig 返回默认分词配置。
func DefaultTokenizerConfig() TokenizerConfig {
	return TokenizerConfig{Mode: TokenizerAuto, CharNgram: 2}
}

// ResolveTokenizerConfig 归一化外部传入的分词配置，未知模式回退 auto。
func ResolveTokenizerConfig(mode string, charNgram int) TokenizerConfig {
	resolved := TokenizerMode(strings.ToLower(strings.TrimSpace(mode)))
	switch resolved {
	case TokenizerAuto, TokenizerEnglish, TokenizerChar:
	case "":
		resolved = TokenizerAuto
	default:
		resolved = TokenizerAuto
	}
	if charNgram < 1 {
		charNgram = 2
	}
	return TokenizerConfig{Mode: resolved, CharNgram: charNgram}
}

// TokenizeText 按配置切分文本为检索用 term 序列。
func TokenizeText(text string, cfg TokenizerConfig) []string {
	if text == "" {
		return nil
	}
	if cfg.CharNgram < 1 {
		cfg.CharNgram = 2
	}
	switch cfg.Mode {
	case TokenizerEnglish:
		return tokenizeEnglish(text)
	case TokenizerChar:
		return mergeTokens(tokenizeCJKNgrams(text, cfg.CharNgram), tokenizeEnglish(text))
	default: // auto
		if ContainsCJK(text) {
			return mergeTokens(tokenizeCJKNgrams(text, cfg.CharNgram), tokenizeEnglish(text))
		}
		return tokenizeEnglish(text)
	}
}

// ContainsCJK 判断文本是否包含 CJK 字符。
func ContainsCJK(text string) bool {
	for _, r := range text {
		if isCJK(r) {
			return true
		}
	}
	return false
}

// NormalizeForMatch 规则匹配用的归一化：CJK 原样保留，
// 其余字母数字小写化，非字母数字折叠为单个空格。
func NormalizeForMatch(text string) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case isCJK(r):
			b.WriteRune(r)
		case r < 128:
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteByte(' ')
			}
		default:
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			} else {
				b.WriteByte(' ')
			}
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func tokenizeEnglish(text string) []string {
	lowered := strings.ToLower(text)
	lowered = strings.NewReplacer("-", " ", "–", " ", "—", " ").Replace(lowered)
	return strings.FieldsFunc(lowered, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

func tokenizeCJKNgrams(text string, ngram int) []string {
	var chars []rune
	for _, r := range text {
		if isCJK(r) {
			chars = append(chars, r)
		}
	}
	if len(chars) == 0 {
		return nil
	}
	if ngram <= 1 {
		tokens := make([]string, len(chars))
		for i, r := range chars {
			tokens[i] = string(r)
		}
		return tokens
	}
	if len(chars) < ngram {
		return nil
	}
	tokens := make([]string, 0, len(chars)-ngram+1)
	for i := 0; i+ngram <= len(chars); i++ {
		tokens = append(tokens, string(chars[i:i+ngram]))
	}
	return tokens
}

func mergeTokens(primary, secondary []string) []string {
	seen := make(map[string]struct{}, len(primary)+len(secondary))
	merged := make([]string, 0, len(primary)+len(secondary))
	for _, token := range append(append([]string{}, primary...), secondary...) {
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		merged = append(merged, token)
	}
	return merged
}

func isCJK(r rune) bool {
	switch {
	case r >= 0x3400 && r <= 0x4DBF,
		r >= 0x4E00 && r <= 0x9FFF,
		r >= 0xF900 && r <= 0xFAFF,
		r >= 0x20000 && r <= 0x2A6DF,
		r >= 0x2A700 && r <= 0x2B73F,
		r >= 0x2B740 && r <= 0x2B81F,
		r >= 0x2B820 && r <= 0x2CEAF,
		r >= 0x2F800 && r <= 0x2FA1F:
		return true
	}
	return false
}

// Package locator implements the rule-based evidence engine: paragraphs are
// scored against section-title priors and keyword hits, with no learned model.
package locator

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Younthing/eagent-sub001/retrieval"
	"github.com/Younthing/eagent-sub001/schema"
)

// 无页码的候选排在所有有页码候选之后。
const pageSentinel = 10_000

// Locate 为每个问题产出规则候选，按 (-score, page, position) 排序。
// 文档与规则的纯函数。
func Locate(doc *schema.DocStructure, questions *schema.QuestionSet, rules *schema.LocatorRules) map[string][]schema.EvidenceCandidate {
	byQuestion := make(map[string][]schema.EvidenceCandidate, len(questions.Questions))
	for _, q := range questions.Questions {
		byQuestion[q.QuestionID] = LocateForQuestion(doc.Sections, q, rules)
	}
	return byQuestion
}

// LocateForQuestion 对单个问题打分全部段落。
func LocateForQuestion(spans []schema.SectionSpan, q schema.Question, rules *schema.LocatorRules) []schema.EvidenceCandidate {
	priors := rules.EffectiveSectionPriors(q.QuestionID, q.Domain)
	keywords := rules.EffectiveKeywords(q.QuestionID, q.Domain)

	type rankedCandidate struct {
		position  int
		candidate schema.EvidenceCandidate
	}
	var ranked []rankedCandidate

	for position, span := range spans {
		sectionRank, matchedPriors := scoreSection(span.Title, priors)
		matchedKeywords := matchKeywords(span.Text, keywords)
		keywordScore := float64(len(matchedKeywords))
		// 章节先验按优先级放大，保证先验命中压过单纯的关键词计数。
		sectionScore := float64(sectionRank) * 10.0
		if sectionScore == 0 && keywordScore == 0 {
			continue
		}

		ranked = append(ranked, rankedCandidate{
			position: position,
			candidate: schema.EvidenceCandidate{
				QuestionID:           q.QuestionID,
				ParagraphID:          span.ParagraphID,
				Title:                span.Title,
				Page:                 span.Page,
				Text:                 span.Text,
				Source:               schema.SourceRuleBased,
				Score:                sectionScore + keywordScore,
				SectionScore:         sectionScore,
				KeywordScore:         keywordScore,
				MatchedKeywords:      matchedKeywords,
				MatchedSectionPriors: matchedPriors,
			},
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.candidate.Score != b.candidate.Score {
			return a.candidate.Score > b.candidate.Score
		}
		if pa, pb := pageOrSentinel(a.candidate.Page), pageOrSentinel(b.candidate.Page); pa != pb {
			return pa < pb
		}
		return a.position < b.position
	})

	candidates := make([]schema.EvidenceCandidate, len(ranked))
	for i, r := range ranked {
		candidates[i] = r.candidate
	}
	return candidates
}

func pageOrSentinel(page *int) int {
	if page == nil {
		return pageSentinel
	}
	return *page
}

// scoreSection 标题对章节先验打分：得分为最高优先级命中的排名
// (len(priors)-index)，同时返回全部命中的先验。
func scoreSection(title string, priors []string) (int, []string) {
	if len(priors) == 0 {
		return 0, nil
	}
	normalizedTitle := retrieval.NormalizeForMatch(title)
	if normalizedTitle == "" {
		return 0, nil
	}

	var matched []string
	score := 0
	for index, prior := range priors {
		needle := retrieval.NormalizeForMatch(prior)
		if needle == "" {
			continue
		}
		if strings.Contains(normalizedTitle, needle) {
			matched = append(matched, prior)
			if rank := len(priors) - index; rank > score {
				score = rank
			}
		}
	}
	return score, matched
}

// matchKeywords 返回正文命中的关键词（原始拼写，去重）。
// 短 ASCII token 需要词边界匹配，避免 "itt" 命中无关单词内部。
func matchKeywords(text string, keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}
	haystack := retrieval.NormalizeForMatch(text)
	if haystack == "" {
		return nil
	}

	var matched []string
	seen := make(map[string]struct{}, len(keywords))
	for _, keyword := range keywords {
		needle := retrieval.NormalizeForMatch(keyword)
		if needle == "" {
			continue
		}

		hit := false
		if isShortToken(needle) {
			pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(needle) + `\b`)
			hit = pattern.MatchString(haystack)
		} else {
			hit = strings.Contains(haystack, needle)
		}
		if !hit {
			continue
		}
		key := strings.ToLower(keyword)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		matched = append(matched, keyword)
	}
	return matched
}

func isShortToken(token string) bool {
	if len(token) == 0 || len(token) > 4 {
		return false
	}
	for _, r := range token {
		if r >= 128 || !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

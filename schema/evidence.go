package schema

// EvidenceSource 候选证据的产出来源。
type EvidenceSource string

const (
	SourceRuleBased EvidenceSource = "rule_based"
	SourceRetrieval EvidenceSource = "retrieval"
	SourceFulltext  EvidenceSource = "fulltext"
)

// EvidenceCandidate 单个引擎为单个问题提出的一个段落证据。
// 产出后不可变。
type EvidenceCandidate struct {
	QuestionID  string         `json:"question_id"`
	ParagraphID string         `json:"paragraph_id"`
	Title       string         `json:"title"`
	Page        *int           `json:"page,omitempty"`
	Text        string         `json:"text"`
	Source      EvidenceSource `json:"source"`
	Score       float64        `json:"score"`

	// 检索引擎附加信息
	Engine string `json:"engine,omitempty"`
	Query  string `json:"query,omitempty"`

	// 规则引擎附加信息
	SectionScore         float64  `json:"section_score,omitempty"`
	KeywordScore         float64  `json:"keyword_score,omitempty"`
	MatchedKeywords      []string `json:"matched_keywords,omitempty"`
	MatchedSectionPriors []string `json:"matched_section_priors,omitempty"`

	// 重排器附加信息
	Reranker    string   `json:"reranker,omitempty"`
	RerankScore *float64 `json:"rerank_score,omitempty"`
	RerankRank  int      `json:"rerank_rank,omitempty"`

	SupportingQuote string `json:"supporting_quote,omitempty"`
}

// EvidenceSupport 某引擎对一条融合候选的贡献。
type EvidenceSupport struct {
	Engine string  `json:"engine"`
	Rank   int     `json:"rank"`
	Score  float64 `json:"score"`
	Query  string  `json:"query,omitempty"`
}

// FusedEvidenceCandidate 融合后的证据候选，流经全部验证器。
// 不变式: SupportCount == len(Supports)，且 Supports 内引擎唯一。
type FusedEvidenceCandidate struct {
	QuestionID   string            `json:"question_id"`
	ParagraphID  string            `json:"paragraph_id"`
	Title        string            `json:"title"`
	Page         *int              `json:"page,omitempty"`
	Text         string            `json:"text"`
	FusionScore  float64           `json:"fusion_score"`
	FusionRank   int               `json:"fusion_rank"`
	SupportCount int               `json:"support_count"`
	Supports     []EvidenceSupport `json:"supports"`

	Relevance *RelevanceVerdict `json:"relevance,omitempty"`
	Existence *ExistenceVerdict `json:"existence,omitempty"`
}

// RelevanceVerdict 语义相关性裁决。
type RelevanceVerdict struct {
	Label           string   `json:"label"` // relevant | irrelevant | unknown
	Confidence      *float64 `json:"confidence,omitempty"`
	SupportingQuote string   `json:"supporting_quote,omitempty"`
}

// ExistenceVerdict 证据落地性裁决（确定性检查）。
type ExistenceVerdict struct {
	Label            string `json:"label"` // pass | fail
	Reason           string `json:"reason,omitempty"`
	ParagraphIDFound bool   `json:"paragraph_id_found"`
	TextMatch        *bool  `json:"text_match,omitempty"`
	QuoteFound       *bool  `json:"quote_found,omitempty"`
}

// ConsistencyConflict 一对互相矛盾的段落。
type ConsistencyConflict struct {
	ParagraphIDA string `json:"paragraph_id_a"`
	ParagraphIDB string `json:"paragraph_id_b"`
	Reason       string `json:"reason,omitempty"`
	QuoteA       string `json:"quote_a,omitempty"`
	QuoteB       string `json:"quote_b,omitempty"`
}

// ConsistencyVerdict 问题级别的一致性裁决。
type ConsistencyVerdict struct {
	Label      string                `json:"label"` // pass | fail | unknown
	Confidence *float64              `json:"confidence,omitempty"`
	Conflicts  []ConsistencyConflict `json:"conflicts"`
}

// CompletenessItem 单个问题的完备性汇总。
type CompletenessItem struct {
	QuestionID  string `json:"question_id"`
	Required    bool   `json:"required"`
	PassedCount int    `json:"passed_count"`
	Status      string `json:"status"` // satisfied | missing
}

// RetryLogEntry 一次重试尝试的记录：重算了哪些问题、原因。
type RetryLogEntry struct {
	Attempt             int      `json:"attempt"`
	RetriedQuestionIDs  []string `json:"retried_question_ids"`
	CompletenessPassed  bool     `json:"completeness_passed"`
	ConsistencyFailures []string `json:"consistency_failures,omitempty"`
	Reason              string   `json:"reason"`
}

// QuestionResult 单个问题的最终产出：融合候选 + 各验证裁决。
type QuestionResult struct {
	QuestionID  string                   `json:"question_id"`
	Candidates  []FusedEvidenceCandidate `json:"candidates"`
	Consistency *ConsistencyVerdict      `json:"consistency,omitempty"`
}

// PipelineResult 下游消费者收到的完整产出。
type PipelineResult struct {
	RunID              string             `json:"run_id,omitempty"`
	Results            []QuestionResult   `json:"results"`
	Completeness       []CompletenessItem `json:"completeness"`
	CompletenessPassed bool               `json:"completeness_passed"`
	Degraded           bool               `json:"degraded"`
	Attempts           int                `json:"attempts"`
	RetryLog           []RetryLogEntry    `json:"retry_log,omitempty"`
}

package schema

// SectionSpan 文档中的一个段落跨度，由上游解析器产出。
// 核心流程从不修改 span 内容。
type SectionSpan struct {
	ParagraphID string `json:"paragraph_id"`
	Title       string `json:"title"`
	Page        *int   `json:"page,omitempty"`
	Text        string `json:"text"`
}

// DocStructure 单篇文档的段落级结构。
type DocStructure struct {
	DocID    string        `json:"doc_id,omitempty"`
	Sections []SectionSpan `json:"sections"`
}

// SpanIndex 返回 paragraph_id 到 span 的索引。
func (d *DocStructure) SpanIndex() map[string]SectionSpan {
	index := make(map[string]SectionSpan, len(d.Sections))
	for _, span := range d.Sections {
		index[span.ParagraphID] = span
	}
	return index
}

// Texts 按原始顺序返回全部段落文本。
func (d *DocStructure) Texts() []string {
	texts := make([]string, len(d.Sections))
	for i, span := range d.Sections {
		texts[i] = span.Text
	}
	return texts
}

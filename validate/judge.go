package validate

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"golang.org/x/time/rate"
)

// Judge 验证器消费的外部模型能力：单 prompt 进、文本出。
// 与检索侧的查询规划器共享同一形状，便于复用同一个适配器。
type Judge interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// RateLimitedJudge 给底层 judge 加 QPS 限流。
// 模型调用主导整条流水线的墙钟时间，限流保护上游配额。
type RateLimitedJudge struct {
	inner   Judge
	limiter *rate.Limiter
}

// NewRateLimitedJudge 包装 judge；qps <= 0 表示不限流。
func NewRateLimitedJudge(inner Judge, qps float64, burst int) *RateLimitedJudge {
	limit := rate.Inf
	if qps > 0 {
		limit = rate.Limit(qps)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedJudge{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

func (j *RateLimitedJudge) Invoke(ctx context.Context, prompt string) (string, error) {
	if err := j.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("judge rate limit wait: %w", err)
	}
	return j.inner.Invoke(ctx, prompt)
}

// PromptBudget 按 token 预算截断进入 judge prompt 的段落文本。
// tiktoken 编码懒初始化；编码不可用时退化为 4 字节/token 近似。
type PromptBudget struct {
	maxTokens int
	encoding  string

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewPromptBudget 创建 token 预算器。maxTokens < 1 时不截断。
func NewPromptBudget(maxTokens int) *PromptBudget {
	return &PromptBudget{maxTokens: maxTokens, encoding: "cl100k_base"}
}

func (b *PromptBudget) init() error {
	b.once.Do(func() {
		enc, err := tiktoken.GetEncoding(b.encoding)
		if err != nil {
			b.initErr = fmt.Errorf("init tiktoken encoding %s: %w", b.encoding, err)
			return
		}
		b.enc = enc
	})
	return b.initErr
}

// CountTokens 估算文本 token 数。
func (b *PromptBudget) CountTokens(text string) int {
	if err := b.init(); err != nil {
		return approxTokens(text)
	}
	return len(b.enc.Encode(text, nil, nil))
}

// TruncateText 把文本截断到预算之内，超预算时保留前缀。
func (b *PromptBudget) TruncateText(text string) string {
	if b == nil || b.maxTokens < 1 || text == "" {
		return text
	}
	if err := b.init(); err != nil {
		return truncateApprox(text, b.maxTokens)
	}
	tokens := b.enc.Encode(text, nil, nil)
	if len(tokens) <= b.maxTokens {
		return text
	}
	return b.enc.Decode(tokens[:b.maxTokens])
}

func approxTokens(text string) int {
	return (len(text) + 3) / 4
}

// truncateApprox 按 4 字节/token 近似截断，对齐到 rune 边界。
func truncateApprox(text string, maxTokens int) string {
	limit := maxTokens * 4
	if len(text) <= limit {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}

package persist

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Sha256Bytes 返回原始字节的十六进制 sha256。
func Sha256Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Sha256File 流式计算文件的 sha256。
func Sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// StableJSON 以稳定顺序序列化负载用于哈希。
// map 键由 encoding/json 排序，调用方用 map 而不是 struct 传字段。
func StableJSON(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("stable json: %w", err)
	}
	return string(raw), nil
}

// HashPayload 返回 JSON 负载的 sha256。相同输入必然得到相同键，
// 与字段书写顺序无关。
func HashPayload(payload any) (string, error) {
	text, err := StableJSON(payload)
	if err != nil {
		return "", err
	}
	return Sha256Bytes([]byte(text)), nil
}

// PreprocessCacheKey 段落解析阶段的缓存键。
func PreprocessCacheKey(docHash string, parserConfig, scopeConfig map[string]any, codeVersion string) (string, error) {
	payload := map[string]any{
		"stage":     StagePreprocess,
		"doc_hash":  docHash,
		"parser":    parserConfig,
		"doc_scope": scopeConfig,
	}
	if codeVersion != "" {
		payload["code_version"] = codeVersion
	}
	return HashPayload(payload)
}

// BM25CacheKey 词法索引构建阶段的缓存键。
func BM25CacheKey(docHash string, tokenizerConfig map[string]any, codeVersion string) (string, error) {
	payload := map[string]any{
		"stage":     StageBM25Index,
		"doc_hash":  docHash,
		"tokenizer": tokenizerConfig,
	}
	if codeVersion != "" {
		payload["code_version"] = codeVersion
	}
	return HashPayload(payload)
}

// VectorCacheKey 文档向量编码阶段的缓存键。
func VectorCacheKey(docHash, modelID string, docMaxLength int, codeVersion string) (string, error) {
	payload := map[string]any{
		"stage":          StageDocVectors,
		"doc_hash":       docHash,
		"model_id":       modelID,
		"doc_max_length": docMaxLength,
	}
	if codeVersion != "" {
		payload["code_version"] = codeVersion
	}
	return HashPayload(payload)
}

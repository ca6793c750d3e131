// Package retrieval implements the per-question evidence locator engines:
// a multi-script tokenizer, a BM25 lexical index, an inner-product vector
// engine over an injected encoder, a deterministic/model-assisted query
// planner and an optional head-window reranker.
package retrieval

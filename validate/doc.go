// Package validate implements the evidence validators: deterministic
// existence grounding, judge-backed relevance and consistency checks, and
// the completeness report consumed by the retry router.
package validate

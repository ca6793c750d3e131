// Package schema defines the shared data model for the evidence pipeline:
// document spans, signaling questions, evidence candidates and validator
// verdicts. All values are treated as immutable once produced.
package schema

// Package persist provides run/document/artifact provenance records, the
// content-addressed deterministic cache, and its metadata stores (SQL via
// gorm, Redis as an alternative entry store).
package persist

// Package policy maps one Assessor judgment to one compliance label.
// The mapping is pure and deterministic; tuning happens only through
// Config, never by reordering the rules.
package policy

import "arccs/internal/schema"

// DefaultConfidenceThreshold is the confidence below which an otherwise
// compliant judgment is routed to a human.
const DefaultConfidenceThreshold = 0.70

// Config holds the tunable parameters of the classification policy.
type Config struct {
	// ConfidenceThreshold is the minimum confidence for COMPLIANT.
	ConfidenceThreshold float64
}

// DefaultConfig returns the recommended deployment configuration.
func DefaultConfig() Config {
	return Config{ConfidenceThreshold: DefaultConfidenceThreshold}
}

// Classify returns exactly one status for any well-formed judgment.
// Rules are evaluated in fixed priority order; the first match wins:
//
//  1. contradiction found            → NON_COMPLIANT
//  2. no relevant information        → INSUFFICIENT_INFORMATION
//  3. confidence below the threshold → HUMAN_REQUIRED
//  4. otherwise                      → COMPLIANT
func Classify(j schema.Judgment, cfg Config) schema.Status {
	if j.ContradictionFound {
		return schema.StatusNonCompliant
	}
	if !j.HasRelevantInformation {
		return schema.StatusInsufficientInfo
	}
	if j.ConfidenceScore < cfg.ConfidenceThreshold {
		return schema.StatusHumanRequired
	}
	return schema.StatusCompliant
}

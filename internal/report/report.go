// Package report rolls per-regulation results into a compliance report.
// Aggregation is pure and order-preserving: detailed results keep the
// input order, and violations/needs-review are subsequences of it.
package report

import (
	"fmt"
	"math"
	"time"

	"arccs/internal/schema"
)

// Aggregate builds a ComplianceReport from an ordered result sequence.
// Invariants: summary.total equals len(results), the four counts sum to
// total, and compliance_rate is 100*compliant/total (0 for an empty run).
func Aggregate(results []schema.ComplianceResult, now time.Time) schema.ComplianceReport {
	var s schema.Summary
	violations := []schema.ComplianceResult{}
	needsReview := []schema.ComplianceResult{}

	for _, r := range results {
		switch r.ComplianceStatus {
		case schema.StatusCompliant:
			s.Compliant++
		case schema.StatusNonCompliant:
			s.NonCompliant++
			violations = append(violations, r)
		case schema.StatusInsufficientInfo:
			s.InsufficientInfo++
			needsReview = append(needsReview, r)
		case schema.StatusHumanRequired:
			s.HumanRequired++
			needsReview = append(needsReview, r)
		}
	}
	s.Total = len(results)
	if s.Total > 0 {
		s.ComplianceRate = math.Round(float64(s.Compliant)/float64(s.Total)*1000) / 10
	}

	detailed := make([]schema.ComplianceResult, len(results))
	copy(detailed, results)

	return schema.ComplianceReport{
		OverallStatus:   overallStatus(s),
		Summary:         s,
		Violations:      violations,
		NeedsReview:     needsReview,
		DetailedResults: detailed,
		GeneratedAt:     now,
	}
}

func overallStatus(s schema.Summary) string {
	switch {
	case s.NonCompliant > 0:
		return fmt.Sprintf("NON-COMPLIANT - %d violation(s) found", s.NonCompliant)
	case s.InsufficientInfo+s.HumanRequired > 0:
		return fmt.Sprintf("REVIEW REQUIRED - %d item(s) need attention", s.InsufficientInfo+s.HumanRequired)
	default:
		return fmt.Sprintf("COMPLIANT - No violations found in %d regulations", s.Total)
	}
}

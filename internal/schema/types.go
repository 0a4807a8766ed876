package schema

import "time"

// Regulation is a single structured obligation extracted from a regulatory
// source document. The JSON field names match the persisted regulation-set
// format produced by the extraction pipeline.
type Regulation struct {
	ID            string       `json:"regulation_id"`
	Name          string       `json:"regulation_name"`
	SourceSection string       `json:"source_section,omitempty"`
	Description   Description  `json:"description"`
	Requirements  Requirements `json:"requirements"`
	Restrictions  Restrictions `json:"restrictions"`
	Domain        Domain       `json:"domain"`
	Keywords      []string     `json:"keywords,omitempty"`

	// QualityScore is assigned by the quality filter; nil before filtering.
	QualityScore *int `json:"quality_score,omitempty"`
}

// Description holds the two-level summary of a regulation.
type Description struct {
	BriefSummary        string `json:"brief_summary,omitempty"`
	DetailedExplanation string `json:"detailed_explanation,omitempty"`
}

// Requirements lists what a regulation obliges.
type Requirements struct {
	Mandatory   []string `json:"mandatory,omitempty"`
	Conditional []string `json:"conditional,omitempty"`
}

// Restrictions lists what a regulation forbids or limits.
type Restrictions struct {
	ProhibitedActions []string `json:"prohibited_actions,omitempty"`
	Limitations       []string `json:"limitations,omitempty"`
}

// Domain places a regulation in a subject area.
type Domain struct {
	PrimaryDomain string   `json:"primary_domain,omitempty"`
	SubDomains    []string `json:"sub_domains,omitempty"`
}

// Judgment is the structured assessment of one regulation against one
// document, as returned by an Assessor. Classification is computed
// externally by the policy package — a Judgment never carries a status.
type Judgment struct {
	HasRelevantInformation bool    `json:"has_relevant_information"`
	ContradictionFound     bool    `json:"contradiction_found"`
	ContradictionDetails   string  `json:"contradiction_details,omitempty"`
	MissingInformation     string  `json:"missing_information,omitempty"`
	Evidence               string  `json:"evidence,omitempty"`
	Explanation            string  `json:"explanation"`
	ConfidenceScore        float64 `json:"confidence_score"`
}

// Status is the compliance label for one regulation/document pair.
type Status string

const (
	StatusCompliant        Status = "COMPLIANT"
	StatusNonCompliant     Status = "NON_COMPLIANT"
	StatusInsufficientInfo Status = "INSUFFICIENT_INFORMATION"
	StatusHumanRequired    Status = "HUMAN_REQUIRED"
)

// IsValidStatus reports whether s is one of the four defined labels.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusCompliant, StatusNonCompliant, StatusInsufficientInfo, StatusHumanRequired:
		return true
	}
	return false
}

// ComplianceResult is one classified regulation check. Created once by the
// classification step and immutable thereafter; all Judgment fields are
// carried through unchanged for traceability.
type ComplianceResult struct {
	RegulationID   string `json:"regulation_id"`
	RegulationName string `json:"regulation_name"`
	Domain         Domain `json:"domain"`

	ComplianceStatus Status `json:"compliance_status"`

	HasRelevantInformation bool    `json:"has_relevant_information"`
	ContradictionFound     bool    `json:"contradiction_found"`
	ContradictionDetails   string  `json:"contradiction_details,omitempty"`
	MissingInformation     string  `json:"missing_information,omitempty"`
	Evidence               string  `json:"evidence,omitempty"`
	Explanation            string  `json:"explanation"`
	ConfidenceScore        float64 `json:"confidence_score"`
}

// Summary holds the per-status counts of one compliance run.
// The four category counts always sum to Total.
type Summary struct {
	Compliant        int     `json:"compliant"`
	NonCompliant     int     `json:"non_compliant"`
	InsufficientInfo int     `json:"insufficient_info"`
	HumanRequired    int     `json:"human_required"`
	Total            int     `json:"total"`
	ComplianceRate   float64 `json:"compliance_rate"`
}

// ComplianceReport is the aggregated output of one compliance run.
// DetailedResults preserves the original regulation order; Violations and
// NeedsReview are subsequences of it.
type ComplianceReport struct {
	OverallStatus   string             `json:"overall_status"`
	Summary         Summary            `json:"summary"`
	Violations      []ComplianceResult `json:"violations"`
	NeedsReview     []ComplianceResult `json:"needs_review"`
	DetailedResults []ComplianceResult `json:"detailed_results"`
	GeneratedAt     time.Time          `json:"generated_at"`
}

// NewResult builds a ComplianceResult from a regulation, its judgment, and
// the computed status.
func NewResult(reg Regulation, j Judgment, status Status) ComplianceResult {
	return ComplianceResult{
		RegulationID:           reg.ID,
		RegulationName:         reg.Name,
		Domain:                 reg.Domain,
		ComplianceStatus:       status,
		HasRelevantInformation: j.HasRelevantInformation,
		ContradictionFound:     j.ContradictionFound,
		ContradictionDetails:   j.ContradictionDetails,
		MissingInformation:     j.MissingInformation,
		Evidence:               j.Evidence,
		Explanation:            j.Explanation,
		ConfidenceScore:        j.ConfidenceScore,
	}
}

package validate

import (
	"encoding/json"
	"fmt"
	"strings"

	"arccs/internal/schema"
)

// rawJudgment mirrors schema.Judgment with pointer fields so that missing
// and present-but-false booleans can be told apart.
type rawJudgment struct {
	HasRelevantInformation *bool    `json:"has_relevant_information"`
	ContradictionFound     *bool    `json:"contradiction_found"`
	ContradictionDetails   *string  `json:"contradiction_details"`
	MissingInformation     *string  `json:"missing_information"`
	Evidence               *string  `json:"evidence"`
	Explanation            string   `json:"explanation"`
	ConfidenceScore        *float64 `json:"confidence_score"`
}

// Judgment strips markdown fences, unmarshals JSON, and validates the shape
// of an Assessor response. Required fields: has_relevant_information,
// contradiction_found, confidence_score in [0,1]. A contradiction in a
// document with no relevant information is rejected as contradictory output.
func Judgment(raw string) (schema.Judgment, error) {
	cleaned := StripFences(raw)

	var rj rawJudgment
	if err := json.Unmarshal([]byte(cleaned), &rj); err != nil {
		return schema.Judgment{}, fmt.Errorf("JSON parse failed: %w", err)
	}

	if rj.HasRelevantInformation == nil {
		return schema.Judgment{}, fmt.Errorf("has_relevant_information is required")
	}
	if rj.ContradictionFound == nil {
		return schema.Judgment{}, fmt.Errorf("contradiction_found is required")
	}
	if rj.ConfidenceScore == nil {
		return schema.Judgment{}, fmt.Errorf("confidence_score is required")
	}
	if *rj.ConfidenceScore < 0 || *rj.ConfidenceScore > 1 {
		return schema.Judgment{}, fmt.Errorf("confidence_score %g out of range [0,1]", *rj.ConfidenceScore)
	}
	if *rj.ContradictionFound && !*rj.HasRelevantInformation {
		return schema.Judgment{}, fmt.Errorf("contradiction_found without has_relevant_information")
	}

	j := schema.Judgment{
		HasRelevantInformation: *rj.HasRelevantInformation,
		ContradictionFound:     *rj.ContradictionFound,
		ContradictionDetails:   deref(rj.ContradictionDetails),
		MissingInformation:     deref(rj.MissingInformation),
		Evidence:               deref(rj.Evidence),
		Explanation:            rj.Explanation,
		ConfidenceScore:        *rj.ConfidenceScore,
	}

	// missing_information is only meaningful when no relevant information
	// was found; drop stray values rather than failing the whole item.
	if j.HasRelevantInformation {
		j.MissingInformation = ""
	}
	return j, nil
}

// JudgmentShape checks the invariants of an already-decoded Judgment.
// Assessor implementations outside this module (including test doubles)
// pass through here before classification.
func JudgmentShape(j schema.Judgment) error {
	if j.ConfidenceScore < 0 || j.ConfidenceScore > 1 {
		return fmt.Errorf("confidence_score %g out of range [0,1]", j.ConfidenceScore)
	}
	if j.ContradictionFound && !j.HasRelevantInformation {
		return fmt.Errorf("contradiction_found without has_relevant_information")
	}
	return nil
}

// Regulation validates the minimum shape a regulation needs before it can
// be assessed: a stable id and a name.
func Regulation(reg schema.Regulation) error {
	if strings.TrimSpace(reg.ID) == "" {
		return fmt.Errorf("regulation_id is required")
	}
	if strings.TrimSpace(reg.Name) == "" {
		return fmt.Errorf("regulation %s: regulation_name is required", reg.ID)
	}
	return nil
}

// StripFences removes leading/trailing markdown code fences
// (```json ... ``` or ``` ... ```).
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		// Remove first line (the fence opener)
		idx := strings.Index(s, "\n")
		if idx >= 0 {
			s = s[idx+1:]
		}
	}
	if strings.HasSuffix(s, "```") {
		idx := strings.LastIndex(s, "\n```")
		if idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	// Models frequently emit the literal string "null" for absent fields.
	if *s == "null" {
		return ""
	}
	return *s
}

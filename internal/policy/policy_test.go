package policy

import (
	"testing"

	"arccs/internal/schema"
)

func classify(t *testing.T, j schema.Judgment) schema.Status {
	t.Helper()
	return Classify(j, DefaultConfig())
}

func TestClassify_ContradictionWinsRegardlessOfOtherFields(t *testing.T) {
	j := schema.Judgment{
		ContradictionFound:     true,
		HasRelevantInformation: true,
		ContradictionDetails:   "30-day vs undue delay",
		ConfidenceScore:        0.9,
	}
	if got := classify(t, j); got != schema.StatusNonCompliant {
		t.Errorf("Classify = %q, want NON_COMPLIANT", got)
	}
}

func TestClassify_ContradictionBeatsLowConfidence(t *testing.T) {
	j := schema.Judgment{
		ContradictionFound:     true,
		HasRelevantInformation: true,
		ConfidenceScore:        0.1,
	}
	if got := classify(t, j); got != schema.StatusNonCompliant {
		t.Errorf("Classify = %q, want NON_COMPLIANT even at confidence 0.1", got)
	}
}

func TestClassify_NoRelevantInformation(t *testing.T) {
	j := schema.Judgment{
		ContradictionFound:     false,
		HasRelevantInformation: false,
		MissingInformation:     "no retention policy stated",
		ConfidenceScore:        0.95,
	}
	if got := classify(t, j); got != schema.StatusInsufficientInfo {
		t.Errorf("Classify = %q, want INSUFFICIENT_INFORMATION", got)
	}
}

func TestClassify_LowConfidence(t *testing.T) {
	j := schema.Judgment{
		ContradictionFound:     false,
		HasRelevantInformation: true,
		ConfidenceScore:        0.55,
	}
	if got := classify(t, j); got != schema.StatusHumanRequired {
		t.Errorf("Classify = %q, want HUMAN_REQUIRED", got)
	}
}

func TestClassify_Compliant(t *testing.T) {
	j := schema.Judgment{
		ContradictionFound:     false,
		HasRelevantInformation: true,
		ConfidenceScore:        0.95,
	}
	if got := classify(t, j); got != schema.StatusCompliant {
		t.Errorf("Classify = %q, want COMPLIANT", got)
	}
}

func TestClassify_ConfidenceExactlyAtThreshold(t *testing.T) {
	j := schema.Judgment{
		ContradictionFound:     false,
		HasRelevantInformation: true,
		ConfidenceScore:        DefaultConfidenceThreshold,
	}
	if got := classify(t, j); got != schema.StatusCompliant {
		t.Errorf("Classify = %q at threshold, want COMPLIANT (rule is strict <)", got)
	}
}

func TestClassify_CustomThreshold(t *testing.T) {
	j := schema.Judgment{
		ContradictionFound:     false,
		HasRelevantInformation: true,
		ConfidenceScore:        0.8,
	}
	got := Classify(j, Config{ConfidenceThreshold: 0.9})
	if got != schema.StatusHumanRequired {
		t.Errorf("Classify = %q with threshold 0.9, want HUMAN_REQUIRED", got)
	}
}

func TestClassify_Pure(t *testing.T) {
	j := schema.Judgment{
		ContradictionFound:     false,
		HasRelevantInformation: true,
		ConfidenceScore:        0.72,
	}
	first := classify(t, j)
	second := classify(t, j)
	if first != second {
		t.Errorf("Classify not idempotent: %q then %q", first, second)
	}
}

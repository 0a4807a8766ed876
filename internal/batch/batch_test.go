package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"arccs/internal/assessor"
	"arccs/internal/progress"
	"arccs/internal/schema"
)

// fakeAssessor is a deterministic Assessor double. Judgments and errors
// are keyed by regulation id; Delay lets tests reorder completions.
type fakeAssessor struct {
	mu        sync.Mutex
	judgments map[string]schema.Judgment
	errs      map[string]error
	delays    map[string]time.Duration
	calls     []string
}

func (f *fakeAssessor) Assess(ctx context.Context, reg schema.Regulation, _ string) (schema.Judgment, error) {
	f.mu.Lock()
	f.calls = append(f.calls, reg.ID)
	f.mu.Unlock()

	if d, ok := f.delays[reg.ID]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return schema.Judgment{}, &assessor.ServiceError{Kind: assessor.KindTimeout, Err: ctx.Err()}
		}
	}
	if err, ok := f.errs[reg.ID]; ok {
		return schema.Judgment{}, err
	}
	if j, ok := f.judgments[reg.ID]; ok {
		return j, nil
	}
	return compliantJudgment(), nil
}

func compliantJudgment() schema.Judgment {
	return schema.Judgment{
		HasRelevantInformation: true,
		ConfidenceScore:        0.95,
		Explanation:            "no conflict found",
	}
}

func regs(n int) []schema.Regulation {
	out := make([]schema.Regulation, n)
	for i := range out {
		out[i] = schema.Regulation{
			ID:   fmt.Sprintf("reg-%d", i),
			Name: fmt.Sprintf("Regulation %d", i),
		}
	}
	return out
}

func TestRun_AllCompliant(t *testing.T) {
	o := New(&fakeAssessor{}, Options{}, nil)
	results, err := o.Run(context.Background(), regs(5), "document text")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	for i, r := range results {
		if r.ComplianceStatus != schema.StatusCompliant {
			t.Errorf("result %d status = %q, want COMPLIANT", i, r.ComplianceStatus)
		}
	}
}

func TestRun_SingleFailureDoesNotAbortBatch(t *testing.T) {
	fa := &fakeAssessor{
		errs: map[string]error{
			"reg-2": &assessor.ServiceError{Kind: assessor.KindRateLimited, Err: errors.New("429")},
		},
	}
	o := New(fa, Options{}, nil)
	results, err := o.Run(context.Background(), regs(4), "document text")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}

	failed := results[2]
	if failed.ComplianceStatus != schema.StatusHumanRequired {
		t.Errorf("failed item status = %q, want HUMAN_REQUIRED", failed.ComplianceStatus)
	}
	if failed.ConfidenceScore != 0.0 {
		t.Errorf("failed item confidence = %g, want 0.0", failed.ConfidenceScore)
	}
	if failed.Explanation == "" || !strings.Contains(failed.Explanation, "rate-limited") {
		t.Errorf("explanation %q should carry the failure kind", failed.Explanation)
	}
	for _, i := range []int{0, 1, 3} {
		if results[i].ComplianceStatus != schema.StatusCompliant {
			t.Errorf("result %d affected by unrelated failure: %q", i, results[i].ComplianceStatus)
		}
	}
}

func TestRun_MalformedJudgmentDowngradesToInsufficientInfo(t *testing.T) {
	fa := &fakeAssessor{
		judgments: map[string]schema.Judgment{
			// Contradiction claimed in a document with no relevant info.
			"reg-0": {ContradictionFound: true, HasRelevantInformation: false, ConfidenceScore: 0.9},
			// Confidence outside [0,1].
			"reg-1": {HasRelevantInformation: true, ConfidenceScore: 1.7},
		},
	}
	o := New(fa, Options{}, nil)
	results, err := o.Run(context.Background(), regs(2), "document text")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, r := range results {
		if r.ComplianceStatus != schema.StatusInsufficientInfo {
			t.Errorf("result %d status = %q, want INSUFFICIENT_INFORMATION", i, r.ComplianceStatus)
		}
	}
}

func TestRun_UnparseableResponseDowngradesToInsufficientInfo(t *testing.T) {
	fa := &fakeAssessor{
		errs: map[string]error{
			"reg-1": &assessor.ParseError{Err: errors.New("response is not JSON")},
		},
	}
	o := New(fa, Options{}, nil)
	results, err := o.Run(context.Background(), regs(2), "document text")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// An answer that arrived but cannot be read carries no information;
	// only failed calls escalate to a human.
	if results[1].ComplianceStatus != schema.StatusInsufficientInfo {
		t.Errorf("unparseable response status = %q, want INSUFFICIENT_INFORMATION", results[1].ComplianceStatus)
	}
	if results[0].ComplianceStatus != schema.StatusCompliant {
		t.Errorf("result 0 affected by unrelated parse failure: %q", results[0].ComplianceStatus)
	}
}

func TestRun_InvalidRegulationDowngraded(t *testing.T) {
	input := regs(2)
	input[1].ID = "" // malformed: no stable id
	o := New(&fakeAssessor{}, Options{}, nil)
	results, err := o.Run(context.Background(), input, "document text")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[1].ComplianceStatus != schema.StatusInsufficientInfo {
		t.Errorf("malformed regulation status = %q, want INSUFFICIENT_INFORMATION", results[1].ComplianceStatus)
	}
}

func TestRun_OutputOrderMatchesInputOrder(t *testing.T) {
	// Earlier regulations finish last.
	fa := &fakeAssessor{
		delays: map[string]time.Duration{
			"reg-0": 60 * time.Millisecond,
			"reg-1": 40 * time.Millisecond,
			"reg-2": 20 * time.Millisecond,
		},
		judgments: map[string]schema.Judgment{
			"reg-0": {HasRelevantInformation: true, ContradictionFound: true, ConfidenceScore: 0.9},
		},
	}
	o := New(fa, Options{Concurrency: 3}, nil)
	results, err := o.Run(context.Background(), regs(3), "document text")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, r := range results {
		want := fmt.Sprintf("reg-%d", i)
		if r.RegulationID != want {
			t.Errorf("results[%d] = %s, want %s", i, r.RegulationID, want)
		}
	}
	if results[0].ComplianceStatus != schema.StatusNonCompliant {
		t.Errorf("slowest item lost its judgment: %q", results[0].ComplianceStatus)
	}
}

func TestRun_EmptyRegulationSetIsConfigError(t *testing.T) {
	o := New(&fakeAssessor{}, Options{}, nil)
	_, err := o.Run(context.Background(), nil, "document text")
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Errorf("error = %v, want ConfigError", err)
	}
}

func TestRun_EmptyDocumentIsConfigError(t *testing.T) {
	o := New(&fakeAssessor{}, Options{}, nil)
	_, err := o.Run(context.Background(), regs(1), "   \n")
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Errorf("error = %v, want ConfigError", err)
	}
}

func TestRun_QualityGate(t *testing.T) {
	low := 12
	input := regs(2)
	input[1].QualityScore = &low
	o := New(&fakeAssessor{}, Options{MinQualityScore: 40}, nil)
	_, err := o.Run(context.Background(), input, "document text")
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want ConfigError for under-threshold regulation", err)
	}
}

func TestRun_CancellationStopsDispatch(t *testing.T) {
	fa := &fakeAssessor{
		delays: map[string]time.Duration{"reg-0": 30 * time.Millisecond},
	}
	ctx, cancel := context.WithCancel(context.Background())

	var once sync.Once
	sink := progress.Func(func(progress.Event) {
		once.Do(cancel) // cancel as soon as the first item completes
	})

	o := New(fa, Options{Concurrency: 1}, sink)
	results, err := o.Run(ctx, regs(10), "document text")
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want wrapped context.Canceled", err)
	}
	if len(results) == 0 || len(results) == 10 {
		t.Errorf("got %d completed results, want a partial run", len(results))
	}
	fa.mu.Lock()
	dispatched := len(fa.calls)
	fa.mu.Unlock()
	if dispatched == 10 {
		t.Error("dispatch continued after cancellation")
	}
}

func TestRun_ProgressEvents(t *testing.T) {
	var mu sync.Mutex
	var events []progress.Event
	sink := progress.Func(func(ev progress.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	o := New(&fakeAssessor{}, Options{Concurrency: 2}, sink)
	if _, err := o.Run(context.Background(), regs(3), "document text"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d progress events, want 3", len(events))
	}
	for _, ev := range events {
		if ev.Total != 3 || ev.Index < 1 || ev.Index > 3 {
			t.Errorf("event %+v has invalid index/total", ev)
		}
	}
}

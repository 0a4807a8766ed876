// Package batch runs the compliance check across a regulation set with
// per-item isolation: a single failed assessment downgrades that item to
// a fallback status, never the run.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"arccs/internal/assessor"
	"arccs/internal/policy"
	"arccs/internal/progress"
	"arccs/internal/schema"
	"arccs/internal/schema/validate"
)

// ConfigError is a configuration problem detected before any batch work
// begins. A run that returns one has produced no partial results.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("configuration: %v", e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(format string, args ...any) error {
	return &ConfigError{Err: fmt.Errorf(format, args...)}
}

// Options configures one run.
type Options struct {
	// Concurrency caps parallel Assessor calls. Defaults to 4.
	Concurrency int
	// CallTimeout bounds each Assessor call. Defaults to 2 minutes.
	CallTimeout time.Duration
	// MinQualityScore guards the quality gate: a scored regulation below
	// this threshold is a caller bug and fails the run up front.
	MinQualityScore int
	// Policy holds the classification thresholds.
	Policy policy.Config
}

const (
	defaultConcurrency = 4
	defaultCallTimeout = 2 * time.Minute
)

// Orchestrator applies one Assessor and one classification policy across
// regulation sets.
type Orchestrator struct {
	assessor assessor.Assessor
	opts     Options
	sink     progress.Sink
}

// New returns an Orchestrator. A nil sink is valid.
func New(a assessor.Assessor, opts Options, sink progress.Sink) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.Policy == (policy.Config{}) {
		opts.Policy = policy.DefaultConfig()
	}
	return &Orchestrator{assessor: a, opts: opts, sink: progress.OrNoop(sink)}
}

// Run checks every regulation against the document and returns one result
// per regulation in input order. Assessor failures and malformed judgments
// downgrade the affected item; only configuration problems or cancellation
// make Run return an error. On cancellation the completed results are
// returned (input order, incomplete items omitted) alongside the error.
func (o *Orchestrator) Run(ctx context.Context, regs []schema.Regulation, document string) ([]schema.ComplianceResult, error) {
	if len(regs) == 0 {
		return nil, configErr("empty regulation set")
	}
	if strings.TrimSpace(document) == "" {
		return nil, configErr("document is empty")
	}
	if o.opts.Policy.ConfidenceThreshold < 0 || o.opts.Policy.ConfidenceThreshold > 1 {
		return nil, configErr("confidence threshold %g out of range [0,1]", o.opts.Policy.ConfidenceThreshold)
	}
	for _, reg := range regs {
		if reg.QualityScore != nil && *reg.QualityScore < o.opts.MinQualityScore {
			return nil, configErr("regulation %s has quality score %d below threshold %d; filter before checking",
				reg.ID, *reg.QualityScore, o.opts.MinQualityScore)
		}
	}

	// Index-addressed slots: each is written exactly once by exactly one
	// completion, so output order never depends on completion order.
	slots := make([]*schema.ComplianceResult, len(regs))

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)

	total := len(regs)
dispatch:
	for i, reg := range regs {
		// No new calls after a cancellation signal; in-flight calls
		// are allowed to finish.
		select {
		case <-ctx.Done():
			break dispatch
		default:
		}

		i, reg := i, reg
		g.Go(func() error {
			res := o.checkOne(ctx, reg, document)
			slots[i] = &res
			o.sink.Emit(progress.Event{
				Index:   i + 1,
				Total:   total,
				Message: fmt.Sprintf("[%d/%d] %s: %s", i+1, total, reg.Name, res.ComplianceStatus),
				Level:   levelFor(res.ComplianceStatus),
			})
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; isolation is per item

	if err := ctx.Err(); err != nil {
		completed := make([]schema.ComplianceResult, 0, len(slots))
		for _, s := range slots {
			if s != nil {
				completed = append(completed, *s)
			}
		}
		return completed, fmt.Errorf("compliance run canceled after %d/%d regulations: %w", len(completed), total, err)
	}

	results := make([]schema.ComplianceResult, len(slots))
	for i, s := range slots {
		results[i] = *s
	}
	return results, nil
}

// checkOne produces a result for a single regulation, falling back to a
// safe status instead of failing.
func (o *Orchestrator) checkOne(ctx context.Context, reg schema.Regulation, document string) schema.ComplianceResult {
	if err := validate.Regulation(reg); err != nil {
		return fallback(reg, schema.StatusInsufficientInfo,
			fmt.Sprintf("Regulation could not be assessed: %v", err))
	}

	callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()

	j, err := o.assessor.Assess(callCtx, reg, document)
	if err != nil {
		// A response that arrived but could not be read as a judgment
		// carries no information about the document; a failed call says
		// nothing at all and needs a human.
		var pe *assessor.ParseError
		if errors.As(err, &pe) {
			return fallback(reg, schema.StatusInsufficientInfo,
				fmt.Sprintf("Assessor returned an unusable response: %v", err))
		}
		kind := assessor.ErrorKind("error")
		var se *assessor.ServiceError
		if errors.As(err, &se) {
			kind = se.Kind
		}
		return fallback(reg, schema.StatusHumanRequired,
			fmt.Sprintf("Assessment failed (%s): %v. A human must review this regulation.", kind, err))
	}

	if err := validate.JudgmentShape(j); err != nil {
		return fallback(reg, schema.StatusInsufficientInfo,
			fmt.Sprintf("Assessor returned an invalid judgment: %v", err))
	}

	status := policy.Classify(j, o.opts.Policy)
	return schema.NewResult(reg, j, status)
}

// fallback builds the downgraded result for a failed item.
func fallback(reg schema.Regulation, status schema.Status, explanation string) schema.ComplianceResult {
	return schema.NewResult(reg, schema.Judgment{
		Explanation:     explanation,
		ConfidenceScore: 0.0,
	}, status)
}

func levelFor(s schema.Status) progress.Level {
	switch s {
	case schema.StatusNonCompliant:
		return progress.LevelError
	case schema.StatusCompliant:
		return progress.LevelSuccess
	default:
		return progress.LevelWarning
	}
}

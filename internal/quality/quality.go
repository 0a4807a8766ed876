// Package quality scores extracted regulations for completeness and
// partitions a set into regulations fit for compliance checking and
// regulations that need human review first.
package quality

import (
	"fmt"
	"strings"

	"arccs/internal/progress"
	"arccs/internal/schema"
)

// DefaultMinScore is the default keep threshold. Recommended range 40-60.
const DefaultMinScore = 40

// Scoring weights. The score is a completeness measure in [0,100]:
// longhand fields are worth a fixed presence bonus, list fields accrue
// per-entry points up to a cap.
const (
	nameWeight     = 10 // regulation_name non-empty
	briefWeight    = 10 // description.brief_summary non-empty
	detailedWeight = 20 // description.detailed_explanation non-empty
	domainWeight   = 10 // domain.primary_domain non-empty
	mandatoryPer   = 8  // per requirements.mandatory entry
	mandatoryCap   = 20
	restrictionPer = 5 // per restrictions entry (prohibited + limitations)
	restrictionCap = 15
	keywordPer     = 3 // per keyword
	keywordCap     = 15
)

// Score computes the completeness score for one regulation.
func Score(reg schema.Regulation) int {
	score := 0
	if strings.TrimSpace(reg.Name) != "" {
		score += nameWeight
	}
	if strings.TrimSpace(reg.Description.BriefSummary) != "" {
		score += briefWeight
	}
	if strings.TrimSpace(reg.Description.DetailedExplanation) != "" {
		score += detailedWeight
	}
	if strings.TrimSpace(reg.Domain.PrimaryDomain) != "" {
		score += domainWeight
	}
	score += capped(len(nonEmpty(reg.Requirements.Mandatory))*mandatoryPer, mandatoryCap)

	restrictions := len(nonEmpty(reg.Restrictions.ProhibitedActions)) + len(nonEmpty(reg.Restrictions.Limitations))
	score += capped(restrictions*restrictionPer, restrictionCap)

	score += capped(len(nonEmpty(reg.Keywords))*keywordPer, keywordCap)
	return score
}

// Partition is the output of Filter. Kept and Review preserve input
// order; every regulation carries its computed score.
type Partition struct {
	Kept   []schema.Regulation
	Review []schema.Regulation
	Stats  Stats
}

// Stats summarizes a filter run. Observational only.
type Stats struct {
	Total          int     `json:"total"`
	KeptCount      int     `json:"kept_count"`
	ReviewCount    int     `json:"review_count"`
	KeptPercentage float64 `json:"kept_percentage"`
	AverageScore   float64 `json:"avg_score"`
}

// Filter scores every regulation and splits the set at minScore:
// score >= minScore is kept, everything below goes to review. The
// partition depends only on the input and threshold; the sink receives
// per-regulation and summary events but never influences the result.
func Filter(regs []schema.Regulation, minScore int, sink progress.Sink) Partition {
	sink = progress.OrNoop(sink)

	var p Partition
	scoreSum := 0
	for i, reg := range regs {
		score := Score(reg)
		scoreSum += score
		reg.QualityScore = &score

		level := progress.LevelSuccess
		if score >= minScore {
			p.Kept = append(p.Kept, reg)
		} else {
			p.Review = append(p.Review, reg)
			level = progress.LevelWarning
		}
		sink.Emit(progress.Event{
			Index:   i + 1,
			Total:   len(regs),
			Message: fmt.Sprintf("quality %d/100: %s", score, reg.Name),
			Level:   level,
		})
	}

	p.Stats = Stats{
		Total:       len(regs),
		KeptCount:   len(p.Kept),
		ReviewCount: len(p.Review),
	}
	if len(regs) > 0 {
		p.Stats.KeptPercentage = round1(float64(len(p.Kept)) / float64(len(regs)) * 100)
		p.Stats.AverageScore = round1(float64(scoreSum) / float64(len(regs)))
	}
	sink.Emit(progress.Event{
		Message: fmt.Sprintf("quality filter: %d kept, %d for review (min score %d)",
			p.Stats.KeptCount, p.Stats.ReviewCount, minScore),
		Level: progress.LevelInfo,
	})
	return p
}

func capped(v, limit int) int {
	if v > limit {
		return limit
	}
	return v
}

func nonEmpty(items []string) []string {
	out := items[:0:0]
	for _, s := range items {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

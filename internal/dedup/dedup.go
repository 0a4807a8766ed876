// Package dedup merges near-duplicate regulations produced when adjacent
// document sections overlap in content. An introductory chapter and a
// detailed article often yield two extractions of the same obligation;
// only one should reach the compliance check.
package dedup

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"arccs/internal/schema"
)

// Config holds the similarity thresholds. Two regulations are duplicates
// when their names are near-identical, or when both their keyword sets
// and their brief summaries overlap strongly.
type Config struct {
	// NameSimilarity: minimum normalized name similarity for a
	// name-based duplicate match.
	NameSimilarity float64
	// KeywordOverlap: minimum Jaccard overlap of keyword sets.
	KeywordOverlap float64
	// SummarySimilarity: minimum normalized similarity of brief summaries.
	SummarySimilarity float64
}

// DefaultConfig returns the recommended thresholds.
func DefaultConfig() Config {
	return Config{
		NameSimilarity:    0.85,
		KeywordOverlap:    0.5,
		SummarySimilarity: 0.6,
	}
}

// Merged records one merge decision for the deletion log.
type Merged struct {
	MergedID     string `json:"merged_regulation_id"`
	MergedName   string `json:"merged_regulation_name"`
	SurvivorID   string `json:"kept_regulation_id"`
	SurvivorName string `json:"kept_regulation_name"`
	Reason       string `json:"reason"`
}

// Result is the output of Deduplicate.
type Result struct {
	Regulations []schema.Regulation
	Log         []Merged
}

// Deduplicate collapses duplicates under cfg. Surviving regulations keep
// the order of first occurrence. When two regulations merge, the one with
// the higher quality score supplies the surviving identity (tie: earlier
// in input order); keywords, requirement and restriction lists, and
// sub-domains are unioned with string-level de-duplication.
func Deduplicate(regs []schema.Regulation, cfg Config) Result {
	var res Result
	dmp := diffmatchpatch.New()

	for _, incoming := range regs {
		merged := false
		for i := range res.Regulations {
			reason, dup := duplicateReason(dmp, res.Regulations[i], incoming, cfg)
			if !dup {
				continue
			}
			survivor, absorbed := pick(res.Regulations[i], incoming)
			res.Log = append(res.Log, Merged{
				MergedID:     absorbed.ID,
				MergedName:   absorbed.Name,
				SurvivorID:   survivor.ID,
				SurvivorName: survivor.Name,
				Reason:       reason,
			})
			res.Regulations[i] = merge(survivor, absorbed)
			merged = true
			break
		}
		if !merged {
			res.Regulations = append(res.Regulations, incoming)
		}
	}
	return res
}

// duplicateReason applies the similarity test and, on a match, describes
// which signal fired.
func duplicateReason(dmp *diffmatchpatch.DiffMatchPatch, a, b schema.Regulation, cfg Config) (string, bool) {
	nameSim := textSimilarity(dmp, a.Name, b.Name)
	if nameSim >= cfg.NameSimilarity {
		return fmt.Sprintf("name similarity %.2f", nameSim), true
	}

	overlap := jaccard(a.Keywords, b.Keywords)
	if overlap < cfg.KeywordOverlap {
		return "", false
	}
	summarySim := textSimilarity(dmp, a.Description.BriefSummary, b.Description.BriefSummary)
	if summarySim < cfg.SummarySimilarity {
		return "", false
	}
	return fmt.Sprintf("keyword overlap %.2f, summary similarity %.2f", overlap, summarySim), true
}

// pick chooses the surviving identity: higher quality score wins, the
// earlier regulation (a) wins ties and missing scores.
func pick(a, b schema.Regulation) (survivor, absorbed schema.Regulation) {
	if qualityOf(b) > qualityOf(a) {
		return b, a
	}
	return a, b
}

func qualityOf(r schema.Regulation) int {
	if r.QualityScore == nil {
		return -1
	}
	return *r.QualityScore
}

// merge unions the absorbed regulation's list fields into the survivor.
func merge(survivor, absorbed schema.Regulation) schema.Regulation {
	survivor.Keywords = unionStrings(survivor.Keywords, absorbed.Keywords)
	survivor.Requirements.Mandatory = unionStrings(survivor.Requirements.Mandatory, absorbed.Requirements.Mandatory)
	survivor.Requirements.Conditional = unionStrings(survivor.Requirements.Conditional, absorbed.Requirements.Conditional)
	survivor.Restrictions.ProhibitedActions = unionStrings(survivor.Restrictions.ProhibitedActions, absorbed.Restrictions.ProhibitedActions)
	survivor.Restrictions.Limitations = unionStrings(survivor.Restrictions.Limitations, absorbed.Restrictions.Limitations)
	survivor.Domain.SubDomains = unionStrings(survivor.Domain.SubDomains, absorbed.Domain.SubDomains)
	return survivor
}

// textSimilarity returns 1 - levenshtein/maxLen over normalized text.
// Two empty strings are not similar: absence of a field is no evidence
// of duplication.
func textSimilarity(dmp *diffmatchpatch.DiffMatchPatch, a, b string) float64 {
	a = normalize(a)
	b = normalize(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	diffs := dmp.DiffMain(a, b, false)
	dist := dmp.DiffLevenshtein(diffs)
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	return 1 - float64(dist)/float64(longest)
}

// jaccard computes |A∩B| / |A∪B| over normalized keywords.
func jaccard(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for k := range setA {
		if _, ok := setB[k]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		if n := normalize(s); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// unionStrings appends entries of b not already in a, comparing
// normalized text, preserving first-seen order and original casing.
func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		n := normalize(s)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, s)
	}
	for _, s := range b {
		n := normalize(s)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

package compat

import (
	"math"
	"strconv"
	"strings"
)

// Display values for unanswered or empty fields.
const (
	NotSet      = "Not set"
	NoInterests = "None"
)

const (
	ordinalStep = 20 // points lost per step of distance on the 1..5 scale
	maxPercent  = 100
	minPercent  = 0
)

// CategoryScore is what a single scorer produces for one dimension.
type CategoryScore struct {
	YourValue     string
	TheirValue    string
	Compatibility int
	Description   string
}

// ScoreOrdinal scores two answers on the 1..5 scale as 100 - 20*distance,
// so identical answers give 100 and opposite ends give 20.
// A missing answer counts as the midpoint.
func ScoreOrdinal(a, b *int) int {
	d := ordinalOrMidpoint(a) - ordinalOrMidpoint(b)
	if d < 0 {
		d = -d
	}
	return clampPercent(maxPercent - d*ordinalStep)
}

// ScoreCategorical scores two yes/no answers. Equal answers give 100,
// different answers give the category's mismatch score, and a missing
// answer on either side lands halfway between the two.
func ScoreCategorical(a, b *bool, mismatch int) int {
	mismatch = clampPercent(mismatch)
	if a == nil || b == nil {
		return roundPercent(float64(maxPercent+mismatch) / 2)
	}
	if *a == *b {
		return maxPercent
	}
	return mismatch
}

// ScoreInterests is the Jaccard overlap of the two interest sets in percent.
// Both sets empty count as fully compatible; one empty set scores 0.
func ScoreInterests(a, b []string) int {
	setA := interestSet(a)
	setB := interestSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return maxPercent
	}
	shared := 0
	for k := range setA {
		if _, ok := setB[k]; ok {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	return roundPercent(float64(shared) / float64(union) * 100)
}

// NormalizeInterests lower-cases and trims interests, drops blanks and
// duplicates, and keeps first-seen order.
func NormalizeInterests(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		k := strings.ToLower(strings.TrimSpace(s))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// SharedInterests returns the normalized interests present on both sides,
// in a's order.
func SharedInterests(a, b []string) []string {
	setB := interestSet(b)
	shared := make([]string, 0)
	for _, k := range NormalizeInterests(a) {
		if _, ok := setB[k]; ok {
			shared = append(shared, k)
		}
	}
	return shared
}

func interestSet(in []string) map[string]struct{} {
	norm := NormalizeInterests(in)
	set := make(map[string]struct{}, len(norm))
	for _, k := range norm {
		set[k] = struct{}{}
	}
	return set
}

func ordinalOrMidpoint(v *int) int {
	if v == nil {
		return ScaleMidpoint
	}
	return *v
}

func ordinalLabel(v *int) string {
	if v == nil {
		return NotSet
	}
	return strconv.Itoa(*v)
}

func boolLabel(v *bool) string {
	if v == nil {
		return NotSet
	}
	if *v {
		return "Yes"
	}
	return "No"
}

func interestsLabel(in []string) string {
	norm := NormalizeInterests(in)
	if len(norm) == 0 {
		return NoInterests
	}
	return strings.Join(norm, ", ")
}

// roundPercent rounds half away from zero and clamps into [0,100].
func roundPercent(v float64) int {
	return clampPercent(int(math.Round(v)))
}

func clampPercent(v int) int {
	if v < minPercent {
		return minPercent
	}
	if v > maxPercent {
		return maxPercent
	}
	return v
}

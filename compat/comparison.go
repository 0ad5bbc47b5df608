package compat

import (
	"math"
)

// Mismatch scores for the yes/no dimensions. Smoking is the hardest to live with.
const (
	SmokingMismatch  = 20
	DrinkingMismatch = 60
	PetsMismatch     = 50
)

// CategoryBreakdown is one row of a comparison, in display order.
type CategoryBreakdown struct {
	Category      string `json:"category"`
	YourValue     string `json:"yourValue"`
	TheirValue    string `json:"theirValue"`
	Compatibility int    `json:"compatibility"`
	Description   string `json:"description"`
}

// ComparisonData is built fresh for every request and never stored.
type ComparisonData struct {
	CurrentUser       *UserProfile        `json:"currentUser"`
	MatchUser         *UserProfile        `json:"matchUser"`
	Match             Match               `json:"match"`
	CategoryBreakdown []CategoryBreakdown `json:"categoryBreakdown"`
	OverallScore      int                 `json:"overallScore"`
}

// Dimension is one row of the scoring table.
type Dimension struct {
	Key         string
	Category    string
	Description string
	Score       func(you, them *UserProfile) CategoryScore
}

func ordinalDimension(key, category, description string, get func(*UserProfile) *int) Dimension {
	return Dimension{
		Key:         key,
		Category:    category,
		Description: description,
		Score: func(you, them *UserProfile) CategoryScore {
			a, b := get(you), get(them)
			return CategoryScore{
				YourValue:     ordinalLabel(a),
				TheirValue:    ordinalLabel(b),
				Compatibility: ScoreOrdinal(a, b),
				Description:   description,
			}
		},
	}
}

func categoricalDimension(key, category, description string, mismatch int, get func(*UserProfile) *bool) Dimension {
	return Dimension{
		Key:         key,
		Category:    category,
		Description: description,
		Score: func(you, them *UserProfile) CategoryScore {
			a, b := get(you), get(them)
			return CategoryScore{
				YourValue:     boolLabel(a),
				TheirValue:    boolLabel(b),
				Compatibility: ScoreCategorical(a, b, mismatch),
				Description:   description,
			}
		},
	}
}

// dimensions is the ordered scoring table. The order is the display order.
// It is fixed at init; DefaultEngine's weights are derived from it.
var dimensions = []Dimension{
	ordinalDimension("sleepSchedule", "Sleep Schedule",
		"How closely your sleep and wake times line up.",
		func(p *UserProfile) *int { return p.Lifestyle.SleepSchedule }),
	ordinalDimension("cleanliness", "Cleanliness",
		"How similar your standards are for keeping shared spaces tidy.",
		func(p *UserProfile) *int { return p.Lifestyle.Cleanliness }),
	ordinalDimension("socialLevel", "Social Level",
		"How much social energy you each bring home.",
		func(p *UserProfile) *int { return p.Lifestyle.SocialLevel }),
	ordinalDimension("guestFrequency", "Guest Frequency",
		"How often you each expect to have guests over.",
		func(p *UserProfile) *int { return p.Lifestyle.GuestFrequency }),
	categoricalDimension("smoking", "Smoking",
		"Whether smoking habits are compatible under one roof.",
		SmokingMismatch,
		func(p *UserProfile) *bool { return p.Lifestyle.Smoking }),
	categoricalDimension("drinking", "Drinking",
		"Whether your attitudes toward drinking at home match.",
		DrinkingMismatch,
		func(p *UserProfile) *bool { return p.Lifestyle.Drinking }),
	categoricalDimension("pets", "Pets",
		"Whether you agree on living with pets.",
		PetsMismatch,
		func(p *UserProfile) *bool { return p.Lifestyle.Pets }),
	{
		Key:         "interests",
		Category:    "Interests",
		Description: "How many of your interests you share.",
		Score: func(you, them *UserProfile) CategoryScore {
			return CategoryScore{
				YourValue:     interestsLabel(you.Interests),
				TheirValue:    interestsLabel(them.Interests),
				Compatibility: ScoreInterests(you.Interests, them.Interests),
				Description:   "How many of your interests you share.",
			}
		},
	},
}

// Dimensions returns a copy of the scoring table in display order.
func Dimensions() []Dimension {
	out := make([]Dimension, len(dimensions))
	copy(out, dimensions)
	return out
}

// Engine scores profile pairs with a fixed set of dimension weights.
type Engine struct {
	weights map[string]float64
}

// DefaultEngine weighs every dimension equally.
var DefaultEngine = &Engine{weights: defaultWeights()}

// NewEngine builds an engine from weight overrides. Dimensions missing from w keep weight 1.
func NewEngine(w Weights) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	weights := defaultWeights()
	for k, v := range w {
		weights[k] = v
	}
	return &Engine{weights: weights}, nil
}

// Weight returns the weight used for a dimension key.
func (e *Engine) Weight(key string) float64 {
	return e.weights[key]
}

// BuildComparison scores current against other across every dimension.
// It either returns the full breakdown or an error.
func (e *Engine) BuildComparison(current, other *UserProfile, match Match) (*ComparisonData, error) {
	if err := current.Validate(); err != nil {
		return nil, err
	}
	if err := other.Validate(); err != nil {
		return nil, err
	}

	breakdown := make([]CategoryBreakdown, 0, len(dimensions))
	scores := make([]int, 0, len(dimensions))
	for _, d := range dimensions {
		s := d.Score(current, other)
		breakdown = append(breakdown, CategoryBreakdown{
			Category:      d.Category,
			YourValue:     s.YourValue,
			TheirValue:    s.TheirValue,
			Compatibility: clampPercent(s.Compatibility),
			Description:   s.Description,
		})
		scores = append(scores, clampPercent(s.Compatibility))
	}

	return &ComparisonData{
		CurrentUser:       current,
		MatchUser:         other,
		Match:             match,
		CategoryBreakdown: breakdown,
		OverallScore:      e.overall(scores),
	}, nil
}

// Score returns only the overall score for a pair, skipping display strings.
func (e *Engine) Score(a, b *UserProfile) (int, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}
	scores := make([]int, len(dimensions))
	for i, d := range dimensions {
		scores[i] = clampPercent(d.Score(a, b).Compatibility)
	}
	return e.overall(scores), nil
}

// overall is the weighted mean of the category scores, in table order.
func (e *Engine) overall(scores []int) int {
	var sum, total float64
	for i, d := range dimensions {
		w := e.weights[d.Key]
		sum += w * float64(scores[i])
		total += w
	}
	if total == 0 {
		return 0
	}
	return clampPercent(int(math.Round(sum / total)))
}

// BuildComparison runs DefaultEngine.BuildComparison.
func BuildComparison(current, other *UserProfile, match Match) (*ComparisonData, error) {
	return DefaultEngine.BuildComparison(current, other, match)
}

// Score runs DefaultEngine.Score.
func Score(a, b *UserProfile) (int, error) {
	return DefaultEngine.Score(a, b)
}

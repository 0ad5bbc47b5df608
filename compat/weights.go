package compat

import (
	"fmt"
	"io"
	"math"

	"gopkg.in/yaml.v3"
)

// Weights maps a dimension key to its weight in the overall score.
type Weights map[string]float64

type weightsFile struct {
	Weights Weights `yaml:"weights"`
}

// LoadWeights reads weight overrides from YAML of the form
//
//	weights:
//	  cleanliness: 2
//	  interests: 0.5
func LoadWeights(r io.Reader) (Weights, error) {
	var f weightsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode weights: %w", err)
	}
	if f.Weights == nil {
		f.Weights = Weights{}
	}
	if err := f.Weights.Validate(); err != nil {
		return nil, err
	}
	return f.Weights, nil
}

// Validate rejects unknown keys, non-finite or negative weights and a zero total.
func (w Weights) Validate() error {
	merged := defaultWeights()
	for k, v := range w {
		if _, ok := merged[k]; !ok {
			return &InvalidInputError{Field: "weights." + k, Reason: "unknown dimension"}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &InvalidInputError{Field: "weights." + k, Reason: "must be a finite number"}
		}
		if v < 0 {
			return &InvalidInputError{Field: "weights." + k, Reason: "must not be negative"}
		}
		merged[k] = v
	}
	var total float64
	for _, v := range merged {
		total += v
	}
	if total == 0 {
		return &InvalidInputError{Field: "weights", Reason: "at least one weight must be positive"}
	}
	return nil
}

func defaultWeights() map[string]float64 {
	w := make(map[string]float64, len(dimensions))
	for _, d := range dimensions {
		w[d.Key] = 1
	}
	return w
}

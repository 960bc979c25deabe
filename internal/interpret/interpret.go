// Package interpret maps a model's class-probability vector to a primary
// pattern, a risk tier and a templated recommendation, and ranks input
// features by how far they sit from the vector mean.
//
// Every function here is pure: no I/O and no shared state, so callers may
// use them from any number of goroutines.
package interpret

import (
	"fmt"
	"math"
	"sort"
)

const (
	// deviationEpsilon keeps normalization finite when the mean is zero.
	deviationEpsilon = 1e-6

	// TopDeviations is how many features the deviation profile highlights.
	TopDeviations = 5

	probabilitySumTolerance = 1e-3
)

// ClassifyPrimary returns the arg-max class and its probability. Ties go to
// the lowest class index.
func ClassifyPrimary(probs []float64) (ClassLabel, float64, error) {
	if err := checkLength(probs); err != nil {
		return 0, 0, err
	}
	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	return ClassLabel(best), probs[best], nil
}

// RankClasses orders all classes by descending probability, breaking ties by
// ascending class index.
func RankClasses(probs []float64) ([]ClassProbability, error) {
	if err := checkLength(probs); err != nil {
		return nil, err
	}
	ranked := make([]ClassProbability, len(probs))
	for i, p := range probs {
		ranked[i] = ClassProbability{Label: ClassLabel(i), Probability: p}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Probability > ranked[j].Probability
	})
	return ranked, nil
}

// BucketRisk applies the default 0.45/0.75 thresholds. Lower bounds are
// closed.
func BucketRisk(confidence float64) RiskBucket {
	return PolicyConfidence.bucket(confidence)
}

// ChronicLeanStrength is the combined mass of Fibrosis and Suspected Liver
// Disorder.
func ChronicLeanStrength(probs []float64) (float64, error) {
	if err := checkLength(probs); err != nil {
		return 0, err
	}
	return probs[Fibrosis] + probs[SuspectedLiverDisorder], nil
}

// PatternGroups collapses the five classes into healthy, acute and chronic
// mass.
type PatternGroups struct {
	Healthy float64 `json:"healthy"`
	Acute   float64 `json:"acute"`
	Chronic float64 `json:"chronic"`
}

func GroupedPatterns(probs []float64) (PatternGroups, error) {
	if err := checkLength(probs); err != nil {
		return PatternGroups{}, err
	}
	return PatternGroups{
		Healthy: probs[HealthyLiver],
		Acute:   probs[Cirrhosis] + probs[Hepatitis],
		Chronic: probs[Fibrosis] + probs[SuspectedLiverDisorder],
	}, nil
}

// ValidateProbabilities checks that probs is a distribution over exactly
// NumClasses classes.
func ValidateProbabilities(probs []float64) error {
	if err := checkLength(probs); err != nil {
		return err
	}
	var sum float64
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 1 {
			return fmt.Errorf("%w: probability %d is %v", ErrConfigMismatch, i, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > probabilitySumTolerance {
		return fmt.Errorf("%w: probabilities sum to %.6f", ErrConfigMismatch, sum)
	}
	return nil
}

func checkLength(probs []float64) error {
	if len(probs) != NumClasses {
		return fmt.Errorf("%w: model returned %d probabilities, class map has %d",
			ErrConfigMismatch, len(probs), NumClasses)
	}
	return nil
}

// Deviation is one feature's mean-normalized value and its distance from 1.
type Deviation struct {
	Feature   string  `json:"feature"`
	Value     float64 `json:"value"`
	Ratio     float64 `json:"ratio"`
	Deviation float64 `json:"deviation"`
}

// DeviationProfile is a proxy explanation, not a feature attribution.
type DeviationProfile struct {
	Mean   float64     `json:"mean"`
	Ratios []Deviation `json:"ratios"`
	Top    []Deviation `json:"top"`
}

// DeviationProfileOf normalizes every value by the vector mean and returns the
// TopDeviations features furthest from 1.0. Equal deviations keep input order.
func DeviationProfileOf(names []string, values []float64) (DeviationProfile, error) {
	if len(values) == 0 {
		return DeviationProfile{}, fmt.Errorf("%w: empty feature vector", ErrInvalidInput)
	}
	if len(names) != len(values) {
		return DeviationProfile{}, fmt.Errorf("%w: %d names for %d values", ErrInvalidInput, len(names), len(values))
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	denom := mean
	if math.Abs(denom) < deviationEpsilon {
		denom += deviationEpsilon
	}

	ratios := make([]Deviation, len(values))
	for i, v := range values {
		r := v / denom
		ratios[i] = Deviation{
			Feature:   names[i],
			Value:     v,
			Ratio:     r,
			Deviation: math.Abs(r - 1),
		}
	}

	top := make([]Deviation, len(ratios))
	copy(top, ratios)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Deviation > top[j].Deviation
	})
	if len(top) > TopDeviations {
		top = top[:TopDeviations]
	}

	return DeviationProfile{Mean: mean, Ratios: ratios, Top: top}, nil
}

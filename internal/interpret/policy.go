package interpret

import (
	"fmt"
	"strings"
)

// Signal selects which scalar a Policy thresholds.
type Signal string

const (
	// SignalConfidence uses the arg-max probability.
	SignalConfidence Signal = "confidence"
	// SignalChronicLean uses Fibrosis + Suspected Liver Disorder.
	SignalChronicLean Signal = "chronic_lean"
)

// Policy turns a probability vector into a risk tier. MediumAt and HighAt are
// closed lower bounds.
type Policy struct {
	Name     string  `json:"name"`
	Signal   Signal  `json:"signal"`
	MediumAt float64 `json:"medium_at"`
	HighAt   float64 `json:"high_at"`
}

var (
	PolicyConfidence = Policy{
		Name:     "confidence",
		Signal:   SignalConfidence,
		MediumAt: 0.45,
		HighAt:   0.75,
	}
	PolicyTopProbability = Policy{
		Name:     "top_probability",
		Signal:   SignalConfidence,
		MediumAt: 0.50,
		HighAt:   0.80,
	}
	PolicyChronicLean = Policy{
		Name:     "chronic_lean",
		Signal:   SignalChronicLean,
		MediumAt: 0.45,
		HighAt:   0.75,
	}
)

// ParsePolicy resolves a configured policy name. Empty selects the default.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyConfidence.Name:
		return PolicyConfidence, nil
	case PolicyTopProbability.Name, "top-probability":
		return PolicyTopProbability, nil
	case PolicyChronicLean.Name, "chronic-lean":
		return PolicyChronicLean, nil
	default:
		return Policy{}, fmt.Errorf("unknown risk policy %q", name)
	}
}

// Bucket returns the tier and the signal value it was derived from.
func (p Policy) Bucket(probs []float64) (RiskBucket, float64, error) {
	var (
		signal float64
		err    error
	)
	switch p.Signal {
	case SignalChronicLean:
		signal, err = ChronicLeanStrength(probs)
	default:
		_, signal, err = ClassifyPrimary(probs)
	}
	if err != nil {
		return RiskLow, 0, err
	}
	return p.bucket(signal), signal, nil
}

func (p Policy) bucket(signal float64) RiskBucket {
	switch {
	case signal >= p.HighAt:
		return RiskHigh
	case signal >= p.MediumAt:
		return RiskMedium
	default:
		return RiskLow
	}
}

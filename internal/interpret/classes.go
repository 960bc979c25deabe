package interpret

import (
	"encoding/json"
	"fmt"
)

// ClassLabel is one of the five disease-pattern classes, index-aligned with
// the model's probability output.
type ClassLabel int

const (
	HealthyLiver ClassLabel = iota
	Cirrhosis
	Hepatitis
	Fibrosis
	SuspectedLiverDisorder
)

// NumClasses is the output cardinality every model artifact must produce.
const NumClasses = 5

var classNames = [NumClasses]string{
	"Healthy Liver",
	"Cirrhosis",
	"Hepatitis",
	"Fibrosis",
	"Suspected Liver Disorder",
}

func (c ClassLabel) String() string {
	if c < 0 || int(c) >= NumClasses {
		return fmt.Sprintf("ClassLabel(%d)", int(c))
	}
	return classNames[c]
}

func (c ClassLabel) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// Classes returns the labels in probability-index order.
func Classes() []ClassLabel {
	out := make([]ClassLabel, NumClasses)
	for i := range out {
		out[i] = ClassLabel(i)
	}
	return out
}

// ClassProbability pairs a label with its model probability.
type ClassProbability struct {
	Label       ClassLabel `json:"label"`
	Probability float64    `json:"probability"`
}

// RiskBucket is the discretized tier derived from a risk signal.
type RiskBucket int

const (
	RiskLow RiskBucket = iota
	RiskMedium
	RiskHigh
)

func (b RiskBucket) String() string {
	switch b {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return fmt.Sprintf("RiskBucket(%d)", int(b))
	}
}

func (b RiskBucket) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

package interpret

// Interpretation is everything the output view renders for one prediction.
type Interpretation struct {
	Primary        ClassProbability   `json:"primary"`
	Secondary      ClassProbability   `json:"secondary"`
	Ranking        []ClassProbability `json:"ranking"`
	Policy         string             `json:"policy"`
	Signal         float64            `json:"signal"`
	Risk           RiskBucket         `json:"risk"`
	ChronicLean    float64            `json:"chronic_lean"`
	Groups         PatternGroups      `json:"groups"`
	Deviations     DeviationProfile   `json:"deviations"`
	Recommendation Recommendation     `json:"recommendation"`
	Disclaimer     string             `json:"disclaimer"`
}

// Interpret validates probs and derives the full interpretation. names and
// values describe the feature vector that produced probs.
func Interpret(probs []float64, names []string, values []float64, policy Policy) (*Interpretation, error) {
	if err := ValidateProbabilities(probs); err != nil {
		return nil, err
	}
	ranking, err := RankClasses(probs)
	if err != nil {
		return nil, err
	}
	risk, signal, err := policy.Bucket(probs)
	if err != nil {
		return nil, err
	}
	lean, err := ChronicLeanStrength(probs)
	if err != nil {
		return nil, err
	}
	groups, err := GroupedPatterns(probs)
	if err != nil {
		return nil, err
	}
	deviations, err := DeviationProfileOf(names, values)
	if err != nil {
		return nil, err
	}

	primary, secondary := ranking[0], ranking[1]
	return &Interpretation{
		Primary:        primary,
		Secondary:      secondary,
		Ranking:        ranking,
		Policy:         policy.Name,
		Signal:         signal,
		Risk:           risk,
		ChronicLean:    lean,
		Groups:         groups,
		Deviations:     deviations,
		Recommendation: RecommendationFor(risk, primary.Label, secondary.Label),
		Disclaimer:     Disclaimer,
	}, nil
}

package interpret

import "strings"

// Disclaimer accompanies every rendered interpretation.
const Disclaimer = "This system performs statistical pattern similarity analysis and does not provide a medical diagnosis."

// Recommendation is the rendered narrative for one tier.
type Recommendation struct {
	Tier     RiskBucket `json:"tier"`
	Headline string     `json:"headline"`
	Detail   string     `json:"detail"`
	Action   string     `json:"action"`
}

type template struct {
	headline string
	detail   string
	action   string
}

// {primary} and {secondary} are replaced with class names.
var templates = map[RiskBucket]template{
	RiskHigh: {
		headline: "High confidence pattern detected: {primary}.",
		detail:   "The model shows strong alignment with historical cases labeled as {primary}, with limited overlap from other classes.",
		action:   "Prompt clinical evaluation and specialist referral aligned with this pattern is advised.",
	},
	RiskMedium: {
		headline: "Moderate confidence leaning toward {primary}.",
		detail:   "There is notable overlap with {secondary}, indicating uncertainty.",
		action:   "Additional diagnostic testing and short-term follow-up monitoring are recommended.",
	},
	RiskLow: {
		headline: "Diffuse probability distribution detected.",
		detail:   "The model does not strongly associate the patient with a single disease pattern.",
		action:   "Routine care with continued monitoring; repeat testing if symptoms persist.",
	},
}

// RecommendationFor looks up the tier's template. Tiers outside the enum fall
// back to the low-confidence template.
func RecommendationFor(tier RiskBucket, primary, secondary ClassLabel) Recommendation {
	t, ok := templates[tier]
	if !ok {
		tier = RiskLow
		t = templates[RiskLow]
	}
	r := strings.NewReplacer("{primary}", primary.String(), "{secondary}", secondary.String())
	return Recommendation{
		Tier:     tier,
		Headline: r.Replace(t.headline),
		Detail:   r.Replace(t.detail),
		Action:   r.Replace(t.action),
	}
}

// Text joins the recommendation into a single paragraph.
func (r Recommendation) Text() string {
	return r.Headline + " " + r.Detail + " Recommendation: " + r.Action
}

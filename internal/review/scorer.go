package review

const (
	MinScore = 0
	MaxScore = 10
)

// WeightedScorer subtracts a penalty per risk and per compliance finding from
// MaxScore. MaxPenalty caps the total penalty when positive.
type WeightedScorer struct {
	High       int `json:"high" yaml:"high"`
	Medium     int `json:"medium" yaml:"medium"`
	Low        int `json:"low" yaml:"low"`
	Gap        int `json:"gap" yaml:"gap"`
	Unverified int `json:"unverified" yaml:"unverified"`
	MaxPenalty int `json:"max_penalty" yaml:"max_penalty"`
}

func DefaultScorer() WeightedScorer {
	return WeightedScorer{High: 3, Medium: 2, Low: 0, Gap: 2, Unverified: 1}
}

func (w WeightedScorer) Validate() error {
	if w.High < 0 || w.Medium < 0 || w.Low < 0 || w.Gap < 0 || w.Unverified < 0 || w.MaxPenalty < 0 {
		return configErrorf("scoring weights must be non-negative")
	}
	if w.High < w.Medium || w.Medium < w.Low {
		return configErrorf("scoring weights must satisfy high >= medium >= low (got %d, %d, %d)", w.High, w.Medium, w.Low)
	}
	return nil
}

func (w WeightedScorer) Penalty(risks []RiskItem, compliance []string) int {
	penalty := 0
	for _, r := range risks {
		switch r.Severity {
		case SeverityHigh:
			penalty += w.High
		case SeverityMedium:
			penalty += w.Medium
		case SeverityLow:
			penalty += w.Low
		}
	}
	for _, f := range compliance {
		switch ClassifyFinding(f) {
		case FindingGap:
			penalty += w.Gap
		case FindingUnverified:
			penalty += w.Unverified
		}
	}
	if w.MaxPenalty > 0 && penalty > w.MaxPenalty {
		penalty = w.MaxPenalty
	}
	return penalty
}

func (w WeightedScorer) Score(risks []RiskItem, compliance []string) int {
	return min(max(MaxScore-w.Penalty(risks, compliance), MinScore), MaxScore)
}

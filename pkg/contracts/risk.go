package contracts

// RiskLevel is the discrete scrutiny tier derived from a risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Level boundaries. Scores exactly at a boundary round to the higher level:
// MEDIUM absorbs 0.30, HIGH absorbs 0.70.
const (
	MediumThreshold = 0.30
	HighThreshold   = 0.70
)

// RiskAssessment summarizes how much scrutiny a plan requires before
// execution. Level is always a total, deterministic function of Score.
type RiskAssessment struct {
	Score float64   `json:"score"`
	Level RiskLevel `json:"level"`
}

// LevelForScore maps a score in [0,1] to its risk level. Total over all
// float inputs; out-of-range scores clamp to the nearest level.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score >= HighThreshold:
		return RiskHigh
	case score >= MediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

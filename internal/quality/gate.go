package quality

import "fmt"

// Verdict is the Quality Gate's classification of a score.
type Verdict string

const (
	VerdictAdvance    Verdict = "advance"
	VerdictLowQuality Verdict = "low_quality"
)

// Gate compares scores against a stage threshold.
type Gate struct {
	Threshold float64
}

// Decide returns VerdictAdvance when score reaches the threshold.
func (g Gate) Decide(score float64) Verdict {
	if score >= g.Threshold {
		return VerdictAdvance
	}
	return VerdictLowQuality
}

// Reason describes a low-quality verdict for the item's status_reason.
func (g Gate) Reason(score float64) string {
	return fmt.Sprintf("quality score %.2f below threshold %.2f", score, g.Threshold)
}

package monitor

import "fmt"

// FailureStreak fires once every Threshold consecutive failed executions.
// A success resets the count.
type FailureStreak struct {
	Threshold int
	streak    int
}

// Observe feeds one execution outcome and reports whether to alert.
func (r *FailureStreak) Observe(success bool) (bool, string) {
	if success {
		r.streak = 0
		return false, ""
	}
	r.streak++
	if r.Threshold > 0 && r.streak%r.Threshold == 0 {
		return true, fmt.Sprintf("%d consecutive trade executions failed", r.streak)
	}
	return false, ""
}

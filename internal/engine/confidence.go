package engine

// Confidence is 0 for no notes, otherwise the mean score plus a bonus of 0.05
// per note (at most 0.2), capped at 1.
func Confidence(notes []ScoredNote) float64 {
	if len(notes) == 0 {
		return 0
	}
	var sum float64
	for _, n := range notes {
		sum += clamp01(n.Score)
	}
	mean := sum / float64(len(notes))
	bonus := min(0.2, 0.05*float64(len(notes)))
	return min(1, mean+bonus)
}

package tui

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// nextIndex steps i by delta and wraps it into [0, n).
func nextIndex(i, delta, n int) int {
	if n <= 0 {
		return 0
	}
	return ((i+delta)%n + n) % n
}

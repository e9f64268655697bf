package indicators

// RSI computes the Relative Strength Index over the last period deltas of
// values, without Wilder smoothing. Returns 0 when values is too short to
// hold period deltas, and 100 when the window has no losses.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 0
	}

	var gains, losses float64
	for i := len(values) - period; i < len(values); i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	if losses == 0 {
		return 100
	}
	return 100 - 100/(1+gains/losses)
}

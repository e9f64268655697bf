package market

import "time"

// Kline is one fixed-interval OHLCV candlestick. StartTime is the bucket
// open in unix seconds; TimeframeMinutes is 1 for raw exchange klines and
// larger for aggregated timeframes.
type Kline struct {
	Symbol           string  `json:"symbol"`
	TimeframeMinutes int     `json:"timeframe_minutes"`
	StartTime        int64   `json:"start_time"`
	Open             float64 `json:"open"`
	High             float64 `json:"high"`
	Low              float64 `json:"low"`
	Close            float64 `json:"close"`
	Volume           float64 `json:"volume"`
}

// End returns the first instant after the kline's interval.
func (k Kline) End() int64 {
	return k.StartTime + int64(k.TimeframeMinutes)*60
}

// BucketStart aligns ts down to the start of its timeframe bucket.
func BucketStart(ts int64, timeframeMinutes int) int64 {
	span := int64(timeframeMinutes) * 60
	return ts - ts%span
}

// MissingCount returns how many 1m klines separate the last stored kline
// from now, capped at max. A zero lastStart means no history at all.
func MissingCount(lastStart int64, now time.Time, max int) int {
	if lastStart == 0 {
		return max
	}
	gap := int((now.Unix() - lastStart) / 60)
	if gap > max {
		return max
	}
	if gap < 0 {
		return 0
	}
	return gap
}

package market

import "sort"

// Aggregator rolls finished 1m klines up into the configured larger
// timeframes. A timeframe kline is emitted once a 1m kline belonging to a
// later bucket arrives, so partial buckets are never published.
type Aggregator struct {
	timeframes []int
	buckets    map[int]*Kline
}

// NewAggregator builds an aggregator for the given timeframe sizes in
// minutes. Duplicates are dropped, 1 is ignored; raw klines pass through the
// feed untouched.
func NewAggregator(timeframes []int) *Aggregator {
	seen := map[int]bool{}
	var tfs []int
	for _, tf := range timeframes {
		if tf > 1 && !seen[tf] {
			seen[tf] = true
			tfs = append(tfs, tf)
		}
	}
	sort.Ints(tfs)
	return &Aggregator{timeframes: tfs, buckets: make(map[int]*Kline)}
}

// Push ingests one finished 1m kline and returns any timeframe klines it
// completed, ordered by timeframe size.
func (a *Aggregator) Push(k Kline) []Kline {
	var done []Kline
	for _, tf := range a.timeframes {
		if out := a.push(tf, k); out != nil {
			done = append(done, *out)
		}
	}
	return done
}

func (a *Aggregator) push(tf int, k Kline) *Kline {
	start := BucketStart(k.StartTime, tf)
	cur := a.buckets[tf]

	if cur != nil && start > cur.StartTime {
		finished := *cur
		a.buckets[tf] = newBucket(tf, start, k)
		return &finished
	}

	if cur == nil {
		a.buckets[tf] = newBucket(tf, start, k)
		return nil
	}
	if start < cur.StartTime {
		// stale 1m kline from before the open bucket; drop it
		return nil
	}

	cur.High = max(cur.High, k.High)
	cur.Low = min(cur.Low, k.Low)
	cur.Close = k.Close
	cur.Volume += k.Volume
	return nil
}

func newBucket(tf int, start int64, k Kline) *Kline {
	return &Kline{
		Symbol:           k.Symbol,
		TimeframeMinutes: tf,
		StartTime:        start,
		Open:             k.Open,
		High:             k.High,
		Low:              k.Low,
		Close:            k.Close,
		Volume:           k.Volume,
	}
}

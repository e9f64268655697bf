package market

import (
	"log"
	"math/rand"
	"time"
)

// MockStream emits synthetic finished 1m klines as a random walk. Used in
// paper mode where no exchange stream is available. The returned channel is
// closed when stop is called.
type MockStream struct {
	Symbol     string
	StartPrice float64
	Step       float64
	Interval   time.Duration // wall time between klines, defaults to 1s
}

func (m *MockStream) Start() (<-chan Kline, func()) {
	if m.StartPrice == 0 {
		m.StartPrice = 100.0
	}
	if m.Step == 0 {
		m.Step = 0.5
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}

	out := make(chan Kline, 16)
	done := make(chan struct{})

	go func() {
		defer close(out)
		t := time.NewTicker(m.Interval)
		defer t.Stop()

		price := m.StartPrice
		start := BucketStart(time.Now().Unix(), 1)
		for {
			select {
			case <-done:
				return
			case <-t.C:
				// random walk with a candle built around the walk
				open := price
				price += (rand.Float64()*2 - 1) * m.Step
				high := max(open, price) + rand.Float64()*m.Step
				low := min(open, price) - rand.Float64()*m.Step
				k := Kline{
					Symbol:           m.Symbol,
					TimeframeMinutes: 1,
					StartTime:        start,
					Open:             open,
					High:             high,
					Low:              low,
					Close:            price,
					Volume:           rand.Float64() * 10,
				}
				start += 60
				select {
				case out <- k:
				default:
					log.Printf("⚠️ mock stream buffer full, dropping kline %s", m.Symbol)
				}
			}
		}
	}()

	return out, func() { close(done) }
}

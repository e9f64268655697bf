package indicators

import (
	"fmt"
	"sync"
)

// Reading is the RSI value at the latest close together with the value one
// close earlier, so callers can detect threshold crossings.
type Reading struct {
	Current  float64
	Previous float64
	Ready    bool
}

// Engine maintains per symbol-and-timeframe close windows and computes RSI
// over them. Windows are bounded; only the last `window` closes are kept.
type Engine struct {
	mu     sync.Mutex
	closes map[string][]float64
	window int
	period int
}

// NewEngine builds an indicator engine. The window must hold at least
// period+2 closes so a previous reading exists alongside the current one.
func NewEngine(rsiPeriod, window int) *Engine {
	if window < rsiPeriod+2 {
		window = rsiPeriod + 2
	}
	return &Engine{
		closes: make(map[string][]float64),
		window: window,
		period: rsiPeriod,
	}
}

func key(symbol string, timeframeMinutes int) string {
	return fmt.Sprintf("%s:%d", symbol, timeframeMinutes)
}

// Update ingests a finished close for one symbol and timeframe and returns
// the RSI reading. Ready is false until enough closes have accumulated for
// both the current and the previous value.
func (e *Engine) Update(symbol string, timeframeMinutes int, close float64) Reading {
	e.mu.Lock()
	defer e.mu.Unlock()

	k := key(symbol, timeframeMinutes)
	arr := append(e.closes[k], close)
	if len(arr) > e.window {
		arr = arr[len(arr)-e.window:]
	}
	e.closes[k] = arr

	if len(arr) < e.period+2 {
		return Reading{}
	}
	return Reading{
		Current:  RSI(arr, e.period),
		Previous: RSI(arr[:len(arr)-1], e.period),
		Ready:    true,
	}
}

// Warm preloads a window of historical closes without producing readings.
func (e *Engine) Warm(symbol string, timeframeMinutes int, closes []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	k := key(symbol, timeframeMinutes)
	arr := append(e.closes[k], closes...)
	if len(arr) > e.window {
		arr = arr[len(arr)-e.window:]
	}
	e.closes[k] = arr
}

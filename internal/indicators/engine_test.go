package indicators

import "testing"

func TestRSI(t *testing.T) {
	cases := []struct {
		name   string
		values []float64
		period int
		want   float64
	}{
		{name: "too few values", values: []float64{1, 2}, period: 14, want: 0},
		{name: "all gains", values: []float64{1, 2, 3, 4}, period: 3, want: 100},
		{name: "all losses", values: []float64{4, 3, 2, 1}, period: 3, want: 0},
		{name: "balanced", values: []float64{10, 11, 10, 11, 10}, period: 4, want: 50},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := RSI(c.values, c.period)
			if got != c.want {
				t.Errorf("RSI(%v, %d) = %v, want %v", c.values, c.period, got, c.want)
			}
		})
	}
}

func TestEngineReadyAfterWindowFills(t *testing.T) {
	e := NewEngine(3, 10)

	closes := []float64{100, 101, 102, 103}
	for i, c := range closes {
		r := e.Update("PERP_BTC_USDT", 15, c)
		if r.Ready {
			t.Fatalf("reading ready after %d closes", i+1)
		}
	}

	r := e.Update("PERP_BTC_USDT", 15, 104)
	if !r.Ready {
		t.Fatal("reading not ready after period+2 closes")
	}
	if r.Current != 100 || r.Previous != 100 {
		t.Errorf("rising closes should peg RSI at 100, got current=%v previous=%v", r.Current, r.Previous)
	}
}

func TestEnginePreviousTracksPriorClose(t *testing.T) {
	e := NewEngine(3, 10)
	e.Warm("PERP_BTC_USDT", 15, []float64{100, 101, 102, 103, 104})

	r := e.Update("PERP_BTC_USDT", 15, 90)
	if !r.Ready {
		t.Fatal("reading not ready after warmup")
	}
	if r.Previous != 100 {
		t.Errorf("Previous = %v, want 100", r.Previous)
	}
	if r.Current >= r.Previous {
		t.Errorf("drop to 90 should pull RSI below previous: current=%v previous=%v", r.Current, r.Previous)
	}
}

func TestEngineWindowsAreIndependent(t *testing.T) {
	e := NewEngine(3, 10)
	e.Warm("PERP_BTC_USDT", 15, []float64{100, 101, 102, 103, 104})

	if r := e.Update("PERP_BTC_USDT", 60, 100); r.Ready {
		t.Fatal("fresh timeframe window produced a ready reading")
	}
	if r := e.Update("PERP_ETH_USDT", 15, 100); r.Ready {
		t.Fatal("fresh symbol window produced a ready reading")
	}
}

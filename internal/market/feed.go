package market

import (
	"context"
	"log"
	"time"

	"woox-trader/internal/events"
)

// Source serves historical 1m klines over REST, oldest first.
type Source interface {
	Klines(ctx context.Context, symbol string, limit int) ([]Kline, error)
}

// Writer persists klines; the batched writer in internal/persistence
// implements it.
type Writer interface {
	WriteKline(k Kline)
}

// Feed backfills missing 1m history on startup, then consumes the exchange
// kline stream, persisting every finished kline and publishing it on the
// bus. Aggregated timeframe klines are published under the same topic with
// their TimeframeMinutes set.
type Feed struct {
	Source      Source
	Stream      <-chan Kline
	Writer      Writer
	Bus         *events.Bus
	Symbol      string
	Aggregator  *Aggregator
	LatestStart int64 // start of the newest stored 1m kline, 0 if none
	BackfillMax int
}

// Start backfills, then consumes the stream until ctx is cancelled. The
// backfilled klines run through the aggregator first so timeframe state is
// warm before live data arrives.
func (f *Feed) Start(ctx context.Context) error {
	if f.BackfillMax <= 0 {
		f.BackfillMax = 1000
	}

	if f.Source != nil {
		missing := MissingCount(f.LatestStart, time.Now(), f.BackfillMax)
		if missing > 0 {
			klines, err := f.Source.Klines(ctx, f.Symbol, missing)
			if err != nil {
				return err
			}
			n := 0
			for _, k := range klines {
				if k.StartTime <= f.LatestStart {
					continue
				}
				f.ingest(k)
				n++
			}
			log.Printf("📈 backfilled %d 1m klines for %s", n, f.Symbol)
		}
	}

	go f.consume(ctx)
	return nil
}

func (f *Feed) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case k, ok := <-f.Stream:
			if !ok {
				log.Printf("⚠️ kline stream for %s closed", f.Symbol)
				return
			}
			f.ingest(k)
		}
	}
}

func (f *Feed) ingest(k Kline) {
	if f.Writer != nil {
		f.Writer.WriteKline(k)
	}
	if f.Bus != nil {
		f.Bus.Publish(events.EventKlineClosed, k)
	}
	if f.Aggregator == nil {
		return
	}
	for _, agg := range f.Aggregator.Push(k) {
		if f.Writer != nil {
			f.Writer.WriteKline(agg)
		}
		if f.Bus != nil {
			f.Bus.Publish(events.EventKlineClosed, agg)
		}
	}
}

package persistence

import (
	"database/sql"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"woox-trader/internal/market"
)

// KlineWriter buffers finished klines and flushes them to sqlite in batched
// transactions, keeping the hot kline path off the single-writer connection.
// Re-writes of the same bucket overwrite within the buffer so only the last
// version of a kline reaches the database.
type KlineWriter struct {
	db          *sql.DB
	mu          sync.Mutex
	buffer      []market.Kline
	index       map[klineKey]int
	maxSize     int
	flushIntval time.Duration
	done        chan struct{}
	wg          sync.WaitGroup
	metrics     KlineWriterMetrics
}

type klineKey struct {
	symbol    string
	timeframe int
	start     int64
}

// KlineWriterMetrics provides statistics about batch flushes.
type KlineWriterMetrics struct {
	TotalWrites   uint64    `json:"total_writes"`
	TotalBatches  uint64    `json:"total_batches"`
	TotalErrors   uint64    `json:"total_errors"`
	LastBatchSize int       `json:"last_batch_size"`
	LastFlushTime time.Time `json:"last_flush_time"`
}

// NewKlineWriter creates a writer that flushes after maxSize klines or every
// interval, whichever comes first.
func NewKlineWriter(db *sql.DB, maxSize int, interval time.Duration) *KlineWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	w := &KlineWriter{
		db:          db,
		buffer:      make([]market.Kline, 0, maxSize),
		index:       make(map[klineKey]int),
		maxSize:     maxSize,
		flushIntval: interval,
		done:        make(chan struct{}),
	}

	w.wg.Add(1)
	go w.backgroundFlush()

	return w
}

// WriteKline buffers one kline. Implements the market feed's Writer.
func (w *KlineWriter) WriteKline(k market.Kline) {
	key := klineKey{symbol: k.Symbol, timeframe: k.TimeframeMinutes, start: k.StartTime}

	w.mu.Lock()
	if i, ok := w.index[key]; ok {
		w.buffer[i] = k
		w.mu.Unlock()
		return
	}
	w.index[key] = len(w.buffer)
	w.buffer = append(w.buffer, k)
	shouldFlush := len(w.buffer) >= w.maxSize
	w.mu.Unlock()

	if shouldFlush {
		w.Flush()
	}
}

// Flush writes all buffered klines to the database in one transaction.
func (w *KlineWriter) Flush() error {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := w.buffer
	w.buffer = make([]market.Kline, 0, w.maxSize)
	w.index = make(map[klineKey]int)
	w.mu.Unlock()

	return w.writeBatch(batch)
}

func (w *KlineWriter) writeBatch(batch []market.Kline) error {
	atomic.AddUint64(&w.metrics.TotalWrites, uint64(len(batch)))
	atomic.AddUint64(&w.metrics.TotalBatches, 1)
	w.metrics.LastBatchSize = len(batch)
	w.metrics.LastFlushTime = time.Now()

	tx, err := w.db.Begin()
	if err != nil {
		atomic.AddUint64(&w.metrics.TotalErrors, 1)
		log.Printf("❌ kline writer: failed to begin transaction: %v", err)
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO klines (symbol, timeframe_minutes, start_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		atomic.AddUint64(&w.metrics.TotalErrors, 1)
		log.Printf("❌ kline writer: prepare failed: %v", err)
		return err
	}
	defer stmt.Close()

	for _, k := range batch {
		if _, err := stmt.Exec(k.Symbol, k.TimeframeMinutes, k.StartTime, k.Open, k.High, k.Low, k.Close, k.Volume); err != nil {
			tx.Rollback()
			atomic.AddUint64(&w.metrics.TotalErrors, 1)
			log.Printf("❌ kline writer: insert failed, rolling back: %v", err)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		atomic.AddUint64(&w.metrics.TotalErrors, 1)
		log.Printf("❌ kline writer: commit failed: %v", err)
		return err
	}

	log.Printf("💾 kline writer: flushed %d klines", len(batch))
	return nil
}

func (w *KlineWriter) backgroundFlush() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.flushIntval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				log.Printf("⚠️ kline writer: background flush error: %v", err)
			}
		case <-w.done:
			if err := w.Flush(); err != nil {
				log.Printf("⚠️ kline writer: final flush error: %v", err)
			}
			return
		}
	}
}

// Pending returns the number of buffered klines.
func (w *KlineWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

// GetMetrics returns a snapshot of the writer's counters.
func (w *KlineWriter) GetMetrics() KlineWriterMetrics {
	return KlineWriterMetrics{
		TotalWrites:   atomic.LoadUint64(&w.metrics.TotalWrites),
		TotalBatches:  atomic.LoadUint64(&w.metrics.TotalBatches),
		TotalErrors:   atomic.LoadUint64(&w.metrics.TotalErrors),
		LastBatchSize: w.metrics.LastBatchSize,
		LastFlushTime: w.metrics.LastFlushTime,
	}
}

// Close flushes remaining klines and stops the background loop.
func (w *KlineWriter) Close() error {
	close(w.done)
	w.wg.Wait()
	return nil
}

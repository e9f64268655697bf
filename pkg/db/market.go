package db

import (
	"context"
	"database/sql"
	"fmt"

	"woox-trader/internal/market"
	"woox-trader/internal/strategy"
)

// LatestKlineStart returns the start time of the newest stored 1m kline for
// a symbol, or 0 when no history exists. The feed uses it to size the REST
// backfill on startup.
func (s *Store) LatestKlineStart(ctx context.Context, symbol string) (int64, error) {
	var start sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(start_time) FROM klines WHERE symbol = ? AND timeframe_minutes = 1
	`, symbol).Scan(&start)
	if err != nil {
		return 0, fmt.Errorf("latest kline start for %s: %w", symbol, err)
	}
	if !start.Valid {
		return 0, nil
	}
	return start.Int64, nil
}

// RecentCloses returns the last n closes for a symbol and timeframe in
// chronological order, used to warm the indicator windows before live data.
func (s *Store) RecentCloses(ctx context.Context, symbol string, timeframeMinutes, n int) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT close FROM klines
		WHERE symbol = ? AND timeframe_minutes = ?
		ORDER BY start_time DESC LIMIT ?
	`, symbol, timeframeMinutes, n)
	if err != nil {
		return nil, fmt.Errorf("recent closes for %s/%dm: %w", symbol, timeframeMinutes, err)
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		closes = append(closes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// query runs newest-first; flip to chronological
	for i, j := 0, len(closes)-1; i < j; i, j = i+1, j-1 {
		closes[i], closes[j] = closes[j], closes[i]
	}
	return closes, nil
}

// Klines returns stored klines for a symbol and timeframe in chronological
// order, newest window of at most limit rows.
func (s *Store) Klines(ctx context.Context, symbol string, timeframeMinutes, limit int) ([]market.Kline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, timeframe_minutes, start_time, open, high, low, close, volume
		FROM (
			SELECT * FROM klines
			WHERE symbol = ? AND timeframe_minutes = ?
			ORDER BY start_time DESC LIMIT ?
		) ORDER BY start_time ASC
	`, symbol, timeframeMinutes, limit)
	if err != nil {
		return nil, fmt.Errorf("klines for %s/%dm: %w", symbol, timeframeMinutes, err)
	}
	defer rows.Close()

	var out []market.Kline
	for rows.Next() {
		var k market.Kline
		if err := rows.Scan(&k.Symbol, &k.TimeframeMinutes, &k.StartTime,
			&k.Open, &k.High, &k.Low, &k.Close, &k.Volume); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// TimeframeGroupRow is one configured timeframe group as stored, with its
// params left as raw JSON for the diagnostics API.
type TimeframeGroupRow struct {
	ID               string `json:"id"`
	Symbol           string `json:"symbol"`
	TimeframeMinutes int    `json:"timeframe_minutes"`
	Params           string `json:"params"`
	IsActive         bool   `json:"is_active"`
}

// TimeframeGroups lists all configured timeframe groups.
func (s *Store) TimeframeGroups(ctx context.Context) ([]TimeframeGroupRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, timeframe_minutes, params, is_active
		FROM timeframe_groups ORDER BY symbol, timeframe_minutes
	`)
	if err != nil {
		return nil, fmt.Errorf("list timeframe groups: %w", err)
	}
	defer rows.Close()

	var out []TimeframeGroupRow
	for rows.Next() {
		var r TimeframeGroupRow
		var active int
		if err := rows.Scan(&r.ID, &r.Symbol, &r.TimeframeMinutes, &r.Params, &active); err != nil {
			return nil, err
		}
		r.IsActive = active != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// SyncTimeframeGroups mirrors the YAML timeframe group config into sqlite.
func (s *Store) SyncTimeframeGroups(groups []strategy.GroupConfig) error {
	return strategy.SyncConfigToDB(s.db, groups)
}

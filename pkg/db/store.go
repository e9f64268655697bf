package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"woox-trader/internal/order"
	"woox-trader/internal/strategy"
	"woox-trader/pkg/exchange"
)

// Store is the sqlite-backed order.Store. Lookups rebuild the aggregate
// graph on every call: a group comes back with its members wired to their
// algo order mirrors and back-pointers, matching what the engine expects.
type Store struct {
	db *sql.DB
}

func NewStore(d *Database) *Store {
	return &Store{db: d.DB}
}

// ----------------------------------------
// Algo orders
// ----------------------------------------

const algoColumns = `order_id, symbol, type, algo_type, side, quantity, reduce_only,
	is_triggered, trigger_price, trigger_trade_price, trigger_status, trigger_time,
	status, order_tag, trade_id, create_time, updated_time,
	total_executed_quantity, average_executed_price, realized_pnl, created_at`

func (s *Store) SaveAlgoOrder(ctx context.Context, a *order.AlgoOrder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO algo_orders (`+algoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.OrderID, a.Symbol, string(a.Type), string(a.AlgoType), string(a.Side), a.Quantity,
		boolToInt(a.ReduceOnly), boolToInt(a.IsTriggered), a.TriggerPrice, a.TriggerTradePrice,
		a.TriggerStatus, a.TriggerTime, string(a.Status), a.OrderTag, a.TradeID,
		a.CreateTime, a.UpdatedTime, a.TotalExecutedQuantity, a.AverageExecutedPrice,
		a.RealizedPnl, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert algo order %d: %w", a.OrderID, err)
	}
	return nil
}

func (s *Store) UpdateAlgoOrder(ctx context.Context, a *order.AlgoOrder) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE algo_orders SET
			symbol = ?, type = ?, algo_type = ?, side = ?, quantity = ?, reduce_only = ?,
			is_triggered = ?, trigger_price = ?, trigger_trade_price = ?, trigger_status = ?,
			trigger_time = ?, status = ?, order_tag = ?, trade_id = ?, create_time = ?,
			updated_time = ?, total_executed_quantity = ?, average_executed_price = ?,
			realized_pnl = ?
		WHERE order_id = ?
	`, a.Symbol, string(a.Type), string(a.AlgoType), string(a.Side), a.Quantity,
		boolToInt(a.ReduceOnly), boolToInt(a.IsTriggered), a.TriggerPrice, a.TriggerTradePrice,
		a.TriggerStatus, a.TriggerTime, string(a.Status), a.OrderTag, a.TradeID,
		a.CreateTime, a.UpdatedTime, a.TotalExecutedQuantity, a.AverageExecutedPrice,
		a.RealizedPnl, a.OrderID)
	if err != nil {
		return fmt.Errorf("update algo order %d: %w", a.OrderID, err)
	}
	return nil
}

func (s *Store) AlgoOrderByID(ctx context.Context, orderID int64) (*order.AlgoOrder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+algoColumns+` FROM algo_orders WHERE order_id = ?`, orderID)
	a, err := scanAlgo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlgo(row rowScanner) (*order.AlgoOrder, error) {
	var (
		a                      order.AlgoOrder
		typ, algoType, side    string
		status                 string
		reduceOnly, triggered  int
	)
	err := row.Scan(&a.OrderID, &a.Symbol, &typ, &algoType, &side, &a.Quantity, &reduceOnly,
		&triggered, &a.TriggerPrice, &a.TriggerTradePrice, &a.TriggerStatus, &a.TriggerTime,
		&status, &a.OrderTag, &a.TradeID, &a.CreateTime, &a.UpdatedTime,
		&a.TotalExecutedQuantity, &a.AverageExecutedPrice, &a.RealizedPnl, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Type = exchange.OrderType(typ)
	a.AlgoType = exchange.AlgoType(algoType)
	a.Side = exchange.Side(side)
	a.Status = exchange.Status(status)
	a.ReduceOnly = reduceOnly != 0
	a.IsTriggered = triggered != 0
	return &a, nil
}

// ----------------------------------------
// Orders
// ----------------------------------------

func (s *Store) SaveOrder(ctx context.Context, o *order.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, entry_order_id, stop_order_id, signal_id, group_id, force_close, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.Entry.OrderID, stopID(o), o.Signal.ID, o.GroupID, boolToInt(o.ForceClose), o.Note, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	if err := writeSignalHistory(ctx, tx, o); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) UpdateOrder(ctx context.Context, o *order.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET entry_order_id = ?, stop_order_id = ?, signal_id = ?, group_id = ?,
			force_close = ?, note = ?
		WHERE id = ?
	`, o.Entry.OrderID, stopID(o), o.Signal.ID, o.GroupID, boolToInt(o.ForceClose), o.Note, o.ID)
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.ID, err)
	}
	if err := writeSignalHistory(ctx, tx, o); err != nil {
		return err
	}
	return tx.Commit()
}

func stopID(o *order.Order) any {
	if o.Stop == nil {
		return nil
	}
	return o.Stop.OrderID
}

func writeSignalHistory(ctx context.Context, tx *sql.Tx, o *order.Order) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM order_signal_history WHERE order_id = ?`, o.ID); err != nil {
		return err
	}
	for i, sigID := range o.PreviousSignalIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_signal_history (order_id, position, signal_id) VALUES (?, ?, ?)
		`, o.ID, i, sigID); err != nil {
			return fmt.Errorf("insert signal history for %s: %w", o.ID, err)
		}
	}
	return nil
}

// loadOrder hydrates one order without its group back-pointer.
func (s *Store) loadOrder(ctx context.Context, id string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entry_order_id, stop_order_id, signal_id, group_id, force_close, note, created_at
		FROM orders WHERE id = ?
	`, id)

	var (
		o          order.Order
		entryID    int64
		stopOrder  sql.NullInt64
		signalID   string
		forceClose int
	)
	err := row.Scan(&o.ID, &entryID, &stopOrder, &signalID, &o.GroupID, &forceClose, &o.Note, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.ForceClose = forceClose != 0

	if o.Entry, err = s.AlgoOrderByID(ctx, entryID); err != nil {
		return nil, err
	}
	if o.Entry == nil {
		return nil, fmt.Errorf("order %s references missing algo order %d", o.ID, entryID)
	}
	if stopOrder.Valid {
		if o.Stop, err = s.AlgoOrderByID(ctx, stopOrder.Int64); err != nil {
			return nil, err
		}
	}
	if o.Signal, err = s.signalByID(ctx, signalID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT signal_id FROM order_signal_history WHERE order_id = ? ORDER BY position
	`, o.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sigID string
		if err := rows.Scan(&sigID); err != nil {
			return nil, err
		}
		o.PreviousSignalIDs = append(o.PreviousSignalIDs, sigID)
	}
	return &o, rows.Err()
}

func (s *Store) OrderByAlgoOrderID(ctx context.Context, orderID int64) (*order.Order, error) {
	var id, groupID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, group_id FROM orders WHERE entry_order_id = ? OR stop_order_id = ? LIMIT 1
	`, orderID, orderID).Scan(&id, &groupID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if groupID == "" {
		return s.loadOrder(ctx, id)
	}
	// return the member instance so the caller sees one consistent graph
	g, err := s.GroupByID(ctx, groupID)
	if err != nil || g == nil {
		return nil, err
	}
	for _, o := range g.Orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, nil
}

func (s *Store) ordersWhere(ctx context.Context, clause string, args ...any) ([]*order.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id FROM orders o `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []*order.Order
	for _, id := range ids {
		o, err := s.loadOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		if o != nil {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Store) PendingEntryOrdersForSide(ctx context.Context, side exchange.Side) ([]*order.Order, error) {
	return s.ordersWhere(ctx, `
		JOIN algo_orders a ON a.order_id = o.entry_order_id
		WHERE a.status = 'NEW' AND a.reduce_only = 0 AND a.side = ?
	`, string(side))
}

func (s *Store) PendingStopOrdersForSide(ctx context.Context, side exchange.Side) ([]*order.Order, error) {
	return s.ordersWhere(ctx, `
		JOIN algo_orders a ON a.order_id = o.stop_order_id
		WHERE a.status = 'NEW' AND a.reduce_only = 1 AND a.side = ?
	`, string(side))
}

// ----------------------------------------
// Order groups
// ----------------------------------------

func (s *Store) SaveGroup(ctx context.Context, g *order.OrderGroup) error {
	params, err := json.Marshal(g.Params)
	if err != nil {
		return fmt.Errorf("marshal group params: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO order_groups (id, timeframe_group_id, side, stop_order_id, params, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, g.ID, g.TimeframeGroupID, string(g.Side), groupStopID(g), string(params), g.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert group %s: %w", g.ID, err)
	}
	return nil
}

func (s *Store) UpdateGroup(ctx context.Context, g *order.OrderGroup) error {
	params, err := json.Marshal(g.Params)
	if err != nil {
		return fmt.Errorf("marshal group params: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE order_groups SET timeframe_group_id = ?, side = ?, stop_order_id = ?, params = ?
		WHERE id = ?
	`, g.TimeframeGroupID, string(g.Side), groupStopID(g), string(params), g.ID)
	if err != nil {
		return fmt.Errorf("update group %s: %w", g.ID, err)
	}
	return nil
}

func groupStopID(g *order.OrderGroup) any {
	if g.Stop == nil {
		return nil
	}
	return g.Stop.OrderID
}

func (s *Store) GroupByID(ctx context.Context, id string) (*order.OrderGroup, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, timeframe_group_id, side, stop_order_id, params, created_at
		FROM order_groups WHERE id = ?
	`, id)

	var (
		g      order.OrderGroup
		side   string
		stop   sql.NullInt64
		params string
	)
	err := row.Scan(&g.ID, &g.TimeframeGroupID, &side, &stop, &params, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	g.Side = exchange.Side(side)
	if err := json.Unmarshal([]byte(params), &g.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params for group %s: %w", g.ID, err)
	}
	if stop.Valid {
		if g.Stop, err = s.AlgoOrderByID(ctx, stop.Int64); err != nil {
			return nil, err
		}
	}

	members, err := s.ordersWhere(ctx, `WHERE o.group_id = ? ORDER BY o.created_at, o.rowid`, g.ID)
	if err != nil {
		return nil, err
	}
	for _, o := range members {
		o.Group = &g
	}
	g.Orders = members
	return &g, nil
}

func (s *Store) groupIDWhere(ctx context.Context, clause string, args ...any) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT g.id FROM order_groups g `+clause, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return id, err
}

func (s *Store) GroupByOrderID(ctx context.Context, orderID int64) (*order.OrderGroup, error) {
	id, err := s.groupIDWhere(ctx, `
		JOIN orders o ON o.group_id = g.id
		WHERE o.entry_order_id = ? OR o.stop_order_id = ?
		LIMIT 1
	`, orderID, orderID)
	if err != nil || id == "" {
		return nil, err
	}
	return s.GroupByID(ctx, id)
}

func (s *Store) GroupByStopOrderID(ctx context.Context, stopOrderID int64) (*order.OrderGroup, error) {
	id, err := s.groupIDWhere(ctx, `WHERE g.stop_order_id = ? LIMIT 1`, stopOrderID)
	if err != nil || id == "" {
		return nil, err
	}
	return s.GroupByID(ctx, id)
}

func (s *Store) LatestGroupForSide(ctx context.Context, timeframeGroupID string, side exchange.Side) (*order.OrderGroup, error) {
	id, err := s.groupIDWhere(ctx, `
		WHERE g.timeframe_group_id = ? AND g.side = ?
		ORDER BY g.created_at DESC, g.rowid DESC
		LIMIT 1
	`, timeframeGroupID, string(side))
	if err != nil || id == "" {
		return nil, err
	}
	return s.GroupByID(ctx, id)
}

// CurrentActiveGroup keys on raw entry statuses, so the newest group with a
// fill shadows older open groups even once it closes. See order.Store.
func (s *Store) CurrentActiveGroup(ctx context.Context, timeframeGroupID string) (*order.OrderGroup, error) {
	id, err := s.groupIDWhere(ctx, `
		JOIN orders o ON o.group_id = g.id
		JOIN algo_orders a ON a.order_id = o.entry_order_id
		WHERE g.timeframe_group_id = ? AND a.status = 'FILLED'
		ORDER BY g.created_at DESC, g.rowid DESC
		LIMIT 1
	`, timeframeGroupID)
	if err != nil || id == "" {
		return nil, err
	}
	g, err := s.GroupByID(ctx, id)
	if err != nil || g == nil {
		return nil, err
	}
	if g.IsClosed() {
		return nil, nil
	}
	return g, nil
}

func (s *Store) AllGroups(ctx context.Context) ([]*order.OrderGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM order_groups ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []*order.OrderGroup
	for _, id := range ids {
		g, err := s.GroupByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if g != nil {
			out = append(out, g)
		}
	}
	return out, nil
}

// ----------------------------------------
// Signals
// ----------------------------------------

func (s *Store) SaveSignal(ctx context.Context, sig strategy.Signal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO signals (id, timeframe_group_id, symbol, side, kline_low, kline_high, rsi, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sig.ID, sig.TimeframeGroupID, sig.Symbol, string(sig.Side), sig.KlineLow, sig.KlineHigh, sig.RSI, sig.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert signal %s: %w", sig.ID, err)
	}
	return nil
}

func (s *Store) signalByID(ctx context.Context, id string) (strategy.Signal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, timeframe_group_id, symbol, side, kline_low, kline_high, rsi, created_at
		FROM signals WHERE id = ?
	`, id)

	var (
		sig  strategy.Signal
		side string
	)
	err := row.Scan(&sig.ID, &sig.TimeframeGroupID, &sig.Symbol, &side, &sig.KlineLow, &sig.KlineHigh, &sig.RSI, &sig.CreatedAt)
	if err == sql.ErrNoRows {
		// tolerate a missing signal row; the id is all the entity needs
		return strategy.Signal{ID: id}, nil
	}
	if err != nil {
		return strategy.Signal{}, err
	}
	sig.Side = exchange.Side(side)
	return sig, nil
}

// ----------------------------------------
// Gateway error audit trail
// ----------------------------------------

// RecordGatewayError implements exchange.ErrorRecorder. Failures to record
// are logged, never returned; audit writes must not fail the operation that
// triggered them.
func (s *Store) RecordGatewayError(ctx context.Context, kind exchange.ErrorKind, url, params, detail string) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gateway_errors (kind, url, params, detail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, string(kind), url, params, detail, time.Now())
	if err != nil {
		log.Printf("❌ failed to record gateway error: %v", err)
	}
}

// GatewayError is one recorded exchange failure.
type GatewayError struct {
	ID        int64
	Kind      string
	URL       string
	Params    string
	Detail    string
	CreatedAt time.Time
}

// RecentGatewayErrors returns up to limit errors, newest first.
func (s *Store) RecentGatewayErrors(ctx context.Context, limit int) ([]GatewayError, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, url, params, detail, created_at
		FROM gateway_errors ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GatewayError
	for rows.Next() {
		var e GatewayError
		if err := rows.Scan(&e.ID, &e.Kind, &e.URL, &e.Params, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

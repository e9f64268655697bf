package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"woox-trader/internal/order"
)

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// View types break the Order <-> OrderGroup back-pointer cycle so the
// entity graph can be marshalled safely.

type algoOrderView struct {
	OrderID               int64   `json:"order_id"`
	Symbol                string  `json:"symbol"`
	Side                  string  `json:"side"`
	Quantity              float64 `json:"quantity"`
	ReduceOnly            bool    `json:"reduce_only"`
	IsTriggered           bool    `json:"is_triggered"`
	TriggerPrice          float64 `json:"trigger_price"`
	TriggerTradePrice     float64 `json:"trigger_trade_price,omitempty"`
	TriggerTime           float64 `json:"trigger_time,omitempty"`
	Status                string  `json:"status"`
	TotalExecutedQuantity float64 `json:"total_executed_quantity,omitempty"`
	AverageExecutedPrice  float64 `json:"average_executed_price,omitempty"`
	RealizedPnl           float64 `json:"realized_pnl,omitempty"`
}

type orderView struct {
	ID                string         `json:"id"`
	GroupID           string         `json:"group_id"`
	Status            string         `json:"status"`
	Quantity          float64        `json:"quantity"`
	IsClosed          bool           `json:"is_closed"`
	IsStoppedOut      bool           `json:"is_stopped_out"`
	Entry             *algoOrderView `json:"entry"`
	Stop              *algoOrderView `json:"stop,omitempty"`
	SignalID          string         `json:"signal_id,omitempty"`
	PreviousSignalIDs []string       `json:"previous_signal_ids,omitempty"`
	CreatedAt         string         `json:"created_at"`
}

type groupView struct {
	ID               string         `json:"id"`
	TimeframeGroupID string         `json:"timeframe_group_id"`
	Side             string         `json:"side"`
	Quantity         float64        `json:"quantity"`
	IsPending        bool           `json:"is_pending"`
	IsActive         bool           `json:"is_active"`
	IsClosed         bool           `json:"is_closed"`
	IsStoppedOut     bool           `json:"is_stopped_out"`
	Stop             *algoOrderView `json:"stop,omitempty"`
	Orders           []orderView    `json:"orders"`
	CreatedAt        string         `json:"created_at"`
}

func newAlgoOrderView(a *order.AlgoOrder) *algoOrderView {
	if a == nil {
		return nil
	}
	return &algoOrderView{
		OrderID:               a.OrderID,
		Symbol:                a.Symbol,
		Side:                  string(a.Side),
		Quantity:              a.Quantity,
		ReduceOnly:            a.ReduceOnly,
		IsTriggered:           a.IsTriggered,
		TriggerPrice:          a.TriggerPrice,
		TriggerTradePrice:     a.TriggerTradePrice,
		TriggerTime:           a.TriggerTime,
		Status:                string(a.Status),
		TotalExecutedQuantity: a.TotalExecutedQuantity,
		AverageExecutedPrice:  a.AverageExecutedPrice,
		RealizedPnl:           a.RealizedPnl,
	}
}

func newOrderView(o *order.Order) orderView {
	return orderView{
		ID:                o.ID,
		GroupID:           o.GroupID,
		Status:            string(o.Status()),
		Quantity:          o.Quantity(),
		IsClosed:          o.IsClosed(),
		IsStoppedOut:      o.IsStoppedOut(),
		Entry:             newAlgoOrderView(o.Entry),
		Stop:              newAlgoOrderView(o.Stop),
		SignalID:          o.Signal.ID,
		PreviousSignalIDs: o.PreviousSignalIDs,
		CreatedAt:         o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func newGroupView(g *order.OrderGroup) groupView {
	orders := make([]orderView, 0, len(g.Orders))
	for _, o := range g.Orders {
		orders = append(orders, newOrderView(o))
	}
	return groupView{
		ID:               g.ID,
		TimeframeGroupID: g.TimeframeGroupID,
		Side:             string(g.Side),
		Quantity:         g.Quantity(),
		IsPending:        g.IsPending(),
		IsActive:         g.IsActive(),
		IsClosed:         g.IsClosed(),
		IsStoppedOut:     g.IsStoppedOut(),
		Stop:             newAlgoOrderView(g.Stop),
		Orders:           orders,
		CreatedAt:        g.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func (s *Server) getSystemStatus(c *gin.Context) {
	resp := gin.H{
		"status":        "running",
		"paper_trading": s.Meta.PaperTrading,
		"symbol":        s.Meta.Symbol,
		"timeframes":    s.Meta.Timeframes,
		"version":       s.Meta.Version,
	}
	if s.Prices != nil {
		if price, age, ok := s.Prices.GetWithAge(s.Meta.Symbol); ok {
			resp["last_price"] = price
			resp["price_age_seconds"] = age.Seconds()
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}

func (s *Server) listGroups(c *gin.Context) {
	groups, err := s.Store.AllGroups(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	views := make([]groupView, 0, len(groups))
	for _, g := range groups {
		v := newGroupView(g)
		if c.Query("open") == "true" && v.IsClosed {
			continue
		}
		views = append(views, v)
	}
	c.JSON(http.StatusOK, gin.H{"groups": views, "count": len(views)})
}

func (s *Server) getGroup(c *gin.Context) {
	g, err := s.Store.GroupByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if g == nil {
		respondError(c, http.StatusNotFound, "GROUP_NOT_FOUND", "group not found")
		return
	}
	c.JSON(http.StatusOK, newGroupView(g))
}

// getOrder looks up an order by the exchange-assigned algo order ID of
// either its entry or stop leg.
func (s *Server) getOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ORDER_ID", "order id must be numeric")
		return
	}

	o, err := s.Store.OrderByAlgoOrderID(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if o == nil {
		respondError(c, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found")
		return
	}
	c.JSON(http.StatusOK, newOrderView(o))
}

func (s *Server) listTimeframeGroups(c *gin.Context) {
	rows, err := s.Store.TimeframeGroups(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeframe_groups": rows, "count": len(rows)})
}

func (s *Server) listKlines(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		symbol = s.Meta.Symbol
	}

	timeframe, err := strconv.Atoi(c.DefaultQuery("timeframe", "1"))
	if err != nil || timeframe < 1 {
		respondError(c, http.StatusBadRequest, "INVALID_TIMEFRAME", "timeframe must be a positive integer")
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	klines, err := s.Store.Klines(c.Request.Context(), symbol, timeframe, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"timeframe": timeframe,
		"klines":    klines,
		"count":     len(klines),
	})
}

func (s *Server) listGatewayErrors(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	errs, err := s.Store.RecentGatewayErrors(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"gateway_errors": errs, "count": len(errs)})
}

func (s *Server) getAuditReport(c *gin.Context) {
	if s.Auditor == nil {
		respondError(c, http.StatusServiceUnavailable, "AUDITOR_DISABLED", "auditor not running")
		return
	}
	report := s.Auditor.LastReport()
	if report == nil {
		c.JSON(http.StatusOK, gin.H{"report": nil, "message": "no audit pass completed yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

package woox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"woox-trader/internal/market"
	"woox-trader/pkg/exchange"
)

const (
	defaultMarketWS  = "wss://wss.woo.org/ws/stream/"
	defaultPrivateWS = "wss://wss.woo.org/v2/ws/private/stream/"

	topicAlgoReport = "algoexecutionreportv2"

	reconnectDelay = 5 * time.Second
)

// flexFloat decodes WOO X numeric fields that arrive either as numbers or
// quoted strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type wsEnvelope struct {
	ID      string          `json:"id"`
	Event   string          `json:"event"`
	Topic   string          `json:"topic"`
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// PrivateStream consumes the authenticated websocket and emits normalized
// algo order status events. It reconnects on errors until ctx is cancelled;
// events across a reconnect gap are recovered by the at-least-once exchange
// replay, not by this client.
type PrivateStream struct {
	Config
	URL    string
	Dialer *websocket.Dialer
}

// Start returns the event channel. The channel is closed when ctx ends.
func (s *PrivateStream) Start(ctx context.Context) <-chan exchange.OrderStatusEvent {
	if s.URL == "" {
		s.URL = defaultPrivateWS
	}
	if s.Dialer == nil {
		s.Dialer = websocket.DefaultDialer
	}

	out := make(chan exchange.OrderStatusEvent, 64)
	go func() {
		defer close(out)
		for {
			if err := s.run(ctx, out); err != nil {
				log.Printf("⚠️ private stream: %v", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()
	return out
}

func (s *PrivateStream) run(ctx context.Context, out chan<- exchange.OrderStatusEvent) error {
	conn, _, err := s.Dialer.DialContext(ctx, s.URL+s.ApplicationID, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if err := s.authenticate(conn); err != nil {
		return err
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var env wsEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			log.Printf("⚠️ private stream: bad message: %v", err)
			continue
		}

		switch {
		case env.Event == "ping":
			writePong(conn)
		case env.Event == "auth":
			if env.Success == nil || !*env.Success {
				return fmt.Errorf("auth rejected: %s", string(msg))
			}
			if err := subscribe(conn, wsID(s.ApplicationID), topicAlgoReport); err != nil {
				return err
			}
			log.Printf("✓ private stream authenticated")
		case env.Topic == topicAlgoReport:
			for _, ev := range parseAlgoReports(env.Data) {
				select {
				case out <- ev:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (s *PrivateStream) authenticate(conn *websocket.Conn) error {
	ts := timestampMS()
	return conn.WriteJSON(map[string]any{
		"id":    wsID(s.ApplicationID),
		"event": "auth",
		"params": map[string]string{
			"apikey":    s.APIKey,
			"sign":      signV1(s.APISecret, ts, nil),
			"timestamp": ts,
		},
	})
}

type algoReport struct {
	AlgoOrderID           int64     `json:"algoOrderId"`
	Symbol                string    `json:"symbol"`
	Side                  string    `json:"side"`
	ReduceOnly            bool      `json:"reduceOnly"`
	AlgoStatus            string    `json:"algoStatus"`
	IsTriggered           bool      `json:"isTriggered"`
	TriggerPrice          flexFloat `json:"triggerPrice"`
	TriggerTradePrice     flexFloat `json:"triggerTradePrice"`
	TriggerStatus         string    `json:"triggerStatus"`
	TriggerTime           flexFloat `json:"triggerTime"`
	Quantity              flexFloat `json:"quantity"`
	TradeID               int64     `json:"tradeId"`
	TotalExecutedQuantity flexFloat `json:"totalExecutedQuantity"`
	AverageExecutedPrice  flexFloat `json:"averageExecutedPrice"`
	RealizedPnl           flexFloat `json:"realizedPnl"`
	CreatedTime           flexFloat `json:"createdTime"`
	UpdatedTime           flexFloat `json:"updatedTime"`
}

// parseAlgoReports tolerates both a bare report object and the batched list
// form the v2 topic uses.
func parseAlgoReports(data json.RawMessage) []exchange.OrderStatusEvent {
	var reports []algoReport
	if err := json.Unmarshal(data, &reports); err != nil {
		var single algoReport
		if err := json.Unmarshal(data, &single); err != nil {
			log.Printf("⚠️ private stream: bad algo report: %v", err)
			return nil
		}
		reports = append(reports, single)
	}

	out := make([]exchange.OrderStatusEvent, 0, len(reports))
	for _, r := range reports {
		out = append(out, exchange.OrderStatusEvent{
			OrderID:               r.AlgoOrderID,
			Symbol:                r.Symbol,
			Side:                  exchange.Side(r.Side),
			ReduceOnly:            r.ReduceOnly,
			Status:                exchange.Status(r.AlgoStatus),
			IsTriggered:           r.IsTriggered,
			TriggerPrice:          float64(r.TriggerPrice),
			TriggerTradePrice:     float64(r.TriggerTradePrice),
			TriggerStatus:         r.TriggerStatus,
			TriggerTime:           float64(r.TriggerTime) / 1000,
			Quantity:              float64(r.Quantity),
			TradeID:               r.TradeID,
			TotalExecutedQuantity: float64(r.TotalExecutedQuantity),
			AverageExecutedPrice:  float64(r.AverageExecutedPrice),
			RealizedPnl:           float64(r.RealizedPnl),
			CreatedTime:           float64(r.CreatedTime),
			UpdatedTime:           float64(r.UpdatedTime),
		})
	}
	return out
}

// MarketStream consumes the public websocket's 1m kline topic. Only finished
// klines are emitted: the exchange pushes the live bucket repeatedly, so a
// kline is released once a later bucket appears.
type MarketStream struct {
	Config
	URL    string
	Symbol string
	Dialer *websocket.Dialer
}

// Start returns the finished-kline channel, closed when ctx ends.
func (s *MarketStream) Start(ctx context.Context) <-chan market.Kline {
	if s.URL == "" {
		s.URL = defaultMarketWS
	}
	if s.Dialer == nil {
		s.Dialer = websocket.DefaultDialer
	}

	out := make(chan market.Kline, 64)
	go func() {
		defer close(out)
		var partial *market.Kline
		for {
			if err := s.run(ctx, out, &partial); err != nil {
				log.Printf("⚠️ market stream: %v", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()
	return out
}

type wsKline struct {
	Symbol    string    `json:"symbol"`
	StartTime int64     `json:"startTime"`
	EndTime   int64     `json:"endTime"`
	Open      flexFloat `json:"open"`
	High      flexFloat `json:"high"`
	Low       flexFloat `json:"low"`
	Close     flexFloat `json:"close"`
	Volume    flexFloat `json:"volume"`
}

func (s *MarketStream) run(ctx context.Context, out chan<- market.Kline, partial **market.Kline) error {
	conn, _, err := s.Dialer.DialContext(ctx, s.URL+s.ApplicationID, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	topic := s.Symbol + "@kline_1m"
	if err := subscribe(conn, wsID(s.ApplicationID), topic); err != nil {
		return err
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var env wsEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}
		if env.Event == "ping" {
			writePong(conn)
			continue
		}
		if env.Topic != topic || len(env.Data) == 0 {
			continue
		}

		var wk wsKline
		if err := json.Unmarshal(env.Data, &wk); err != nil {
			log.Printf("⚠️ market stream: bad kline: %v", err)
			continue
		}
		k := market.Kline{
			Symbol:           wk.Symbol,
			TimeframeMinutes: 1,
			StartTime:        wk.StartTime / 1000,
			Open:             float64(wk.Open),
			High:             float64(wk.High),
			Low:              float64(wk.Low),
			Close:            float64(wk.Close),
			Volume:           float64(wk.Volume),
		}

		if *partial != nil && k.StartTime > (*partial).StartTime {
			select {
			case out <- **partial:
			case <-ctx.Done():
				return nil
			}
		}
		cp := k
		*partial = &cp
	}
}

func subscribe(conn *websocket.Conn, id, topic string) error {
	return conn.WriteJSON(map[string]any{
		"id":    id,
		"topic": topic,
		"event": "subscribe",
	})
}

func writePong(conn *websocket.Conn) {
	_ = conn.WriteJSON(map[string]any{
		"event": "pong",
		"ts":    timestampMS(),
	})
}

func wsID(applicationID string) string {
	return strings.ReplaceAll(applicationID, "-", "")
}

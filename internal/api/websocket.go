package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"woox-trader/internal/events"
	"woox-trader/internal/order"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsMessage struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// wsPayload flattens entities whose back-pointers would cycle during
// JSON marshalling.
func wsPayload(msg any) any {
	switch v := msg.(type) {
	case *order.OrderGroup:
		return newGroupView(v)
	case *order.Order:
		return newOrderView(v)
	default:
		return msg
	}
}

// websocket streams live klines, signals and group lifecycle events to the UI.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	topics := []events.Event{
		events.EventKlineClosed,
		events.EventSignal,
		events.EventGroupOpened,
		events.EventGroupStopUpdated,
		events.EventGroupClosed,
		events.EventGatewayError,
	}

	merged := make(chan wsMessage, 100)
	done := make(chan struct{})
	defer close(done)

	for _, topic := range topics {
		stream, unsub := s.Bus.Subscribe(topic, 100)
		defer unsub()

		go func(topic events.Event, stream <-chan any) {
			for msg := range stream {
				select {
				case merged <- wsMessage{Topic: string(topic), Payload: wsPayload(msg)}:
				case <-done:
					return
				}
			}
		}(topic, stream)
	}

	// Drain client reads so pings and close frames are processed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-merged:
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-clientGone:
			return
		}
	}
}

package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Johanpmeert/SMA-multicast-decode/internal/core/domain"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	hubBufferSize = 64
	writeTimeout  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub pushes every published meter reading to the connected websocket
// clients. Writes happen on a single goroutine.
type Hub struct {
	mu           sync.RWMutex
	clients      map[*websocket.Conn]bool
	readings     chan domain.MeterReading
	done         chan struct{}
	closeOnce    sync.Once
	eventStream  *eventstream.EventStream
	subscription *eventstream.Subscription
	logger       *zap.Logger
}

func NewHub(eventStream *eventstream.EventStream, logger *zap.Logger) *Hub {
	hub := &Hub{
		clients:     make(map[*websocket.Conn]bool),
		readings:    make(chan domain.MeterReading, hubBufferSize),
		done:        make(chan struct{}),
		eventStream: eventStream,
		logger:      logger.With(zap.String("component", "websocket")),
	}
	if eventStream != nil {
		hub.subscription = eventStream.SubscribeWithPredicate(func(evt any) {
			hub.Offer(evt.(domain.MeterReadingEvent).Reading)
		}, func(evt any) bool {
			_, ok := evt.(domain.MeterReadingEvent)
			return ok
		})
	}
	go hub.run()
	return hub
}

// Offer queues a reading for broadcast. Readings are dropped while the
// queue is full so the publisher never blocks.
func (h *Hub) Offer(reading domain.MeterReading) {
	select {
	case h.readings <- reading:
	case <-h.done:
	default:
		h.logger.Debug("websocket: queue full, dropped reading", zap.Uint32("serial", reading.Serial))
	}
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return
		case reading := <-h.readings:
			h.broadcast(reading)
		}
	}
}

func (h *Hub) broadcast(reading domain.MeterReading) {
	data, err := json.Marshal(domain.NewMeterReadingJSON(reading))
	if err != nil {
		h.logger.Error("websocket: could not encode reading", zap.Error(err))
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			h.logger.Debug("websocket: dropping client", zap.Error(err))
			h.Remove(client)
			continue
		}
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("websocket: dropping client", zap.Error(err))
			h.Remove(client)
		}
	}
}

func (h *Hub) Add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
}

// Remove disconnects a client. Clients that are already gone are ignored.
func (h *Hub) Remove(conn *websocket.Conn) bool {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if !ok {
		return false
	}
	conn.Close()
	return true
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and stops the broadcast loop.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		if h.subscription != nil {
			h.eventStream.Unsubscribe(h.subscription)
		}
		close(h.done)

		h.mu.Lock()
		for client := range h.clients {
			client.Close()
		}
		h.clients = make(map[*websocket.Conn]bool)
		h.mu.Unlock()
	})
}

func (s *Server) WebSocketHandler(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("websocket: upgrade failed", zap.Error(err))
		return nil
	}

	// current state first, before the hub may write to this connection
	if readings, err := s.meterReadings(); err == nil {
		for _, r := range readings {
			data, err := json.Marshal(domain.NewMeterReadingJSON(r))
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				conn.Close()
				return nil
			}
		}
	}

	s.hub.Add(conn)

	// keep the connection until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.Remove(conn)
			return nil
		}
	}
}

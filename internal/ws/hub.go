// Package ws streams live payment, refund and payout events to merchant dashboards.
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Client is one dashboard connection. A merchant may hold several.
type Client struct {
	MerchantID string
	Role       string
	Send       chan []byte
	hub        *Hub
	mu         sync.Mutex
	closed     bool
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
	if c.hub != nil {
		c.hub.unregister(c)
	}
}

// Event is the frame sent to clients.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub tracks connected clients by merchant. Slow clients drop frames rather than block publishers.
type Hub struct {
	mu         sync.RWMutex
	byMerchant map[string]map[*Client]struct{}
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		byMerchant: make(map[string]map[*Client]struct{}),
		log:        log.Named("ws"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.hub = h
	if h.byMerchant[c.MerchantID] == nil {
		h.byMerchant[c.MerchantID] = make(map[*Client]struct{})
	}
	h.byMerchant[c.MerchantID][c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.byMerchant[c.MerchantID]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.byMerchant, c.MerchantID)
		}
	}
}

// Publish sends an event to every connection of merchantID.
func (h *Hub) Publish(merchantID, event string, data any) {
	h.mu.RLock()
	m := h.byMerchant[merchantID]
	clients := make([]*Client, 0, len(m))
	for c := range m {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return
	}
	frame, err := json.Marshal(Event{Type: event, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		h.log.Warn("encode event failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.deliver(clients, frame)
}

// Broadcast sends an event to every connection.
func (h *Hub) Broadcast(event string, data any) {
	frame, err := json.Marshal(Event{Type: event, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		h.log.Warn("encode event failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	var clients []*Client
	for _, m := range h.byMerchant {
		for c := range m {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()
	h.deliver(clients, frame)
}

func (h *Hub) deliver(clients []*Client, frame []byte) {
	for _, c := range clients {
		c.mu.Lock()
		if !c.closed {
			select {
			case c.Send <- frame:
			default:
				h.log.Debug("dropping frame for slow client", zap.String("merchant_id", c.MerchantID))
			}
		}
		c.mu.Unlock()
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, m := range h.byMerchant {
		n += len(m)
	}
	return n
}

func (h *Hub) MerchantConnections(merchantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byMerchant[merchantID])
}

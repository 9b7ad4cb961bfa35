package realtime

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcoot/escaperoom/internal/metrics"
	"github.com/mcoot/escaperoom/internal/model"
)

const hubBufferSize = 256

type opKind int

const (
	opRegister opKind = iota
	opUnregister
	opDeliver
)

type hubOp struct {
	kind      opKind
	client    *Client
	recipient model.PlayerID // opDeliver; empty means everyone
	departed  model.PlayerID // opDeliver; connections unbound before delivery
	frame     Frame
	ack       chan struct{}
}

// Hub manages the connections of a single room. Every operation goes
// through one queue, so clients see messages in the order they were
// submitted and a registered client sees everything submitted after it.
// A client that misses a message is disconnected, and gets a fresh
// snapshot when it joins again.
type Hub struct {
	roomCode model.RoomCode
	clients  map[*Client]bool
	mu       sync.RWMutex
	logger   *slog.Logger

	ops       chan hubOp
	overflow  atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a new Hub for a room
func NewHub(roomCode model.RoomCode, logger *slog.Logger) *Hub {
	return &Hub{
		roomCode: roomCode,
		clients:  make(map[*Client]bool),
		logger:   logger.With(slog.String("room", string(roomCode))),
		ops:      make(chan hubOp, hubBufferSize),
		done:     make(chan struct{}),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	h.logger.Debug("hub started")
	for {
		select {
		case op := <-h.ops:
			h.apply(op)
			if h.overflow.Swap(false) {
				h.dropAll()
			}

		case <-h.done:
			h.mu.Lock()
			clientCount := len(h.clients)
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("hub stopped", slog.Int("disconnected_clients", clientCount))
			return
		}
	}
}

func (h *Hub) apply(op hubOp) {
	switch op.kind {
	case opRegister:
		h.mu.Lock()
		h.clients[op.client] = true
		clientCount := len(h.clients)
		h.mu.Unlock()
		h.logger.Info("client registered",
			slog.String("player_id", string(op.client.PlayerID())),
			slog.Int("total_clients", clientCount))

	case opUnregister:
		h.mu.Lock()
		_, ok := h.clients[op.client]
		delete(h.clients, op.client)
		clientCount := len(h.clients)
		h.mu.Unlock()
		if ok {
			h.logger.Info("client unregistered",
				slog.String("player_id", string(op.client.PlayerID())),
				slog.Duration("connection_duration", time.Since(op.client.connectedAt)),
				slog.Int("total_clients", clientCount))
		}

	case opDeliver:
		h.mu.Lock()
		var lagging []*Client
		targets := make([]*Client, 0, len(h.clients))
		for client := range h.clients {
			if op.recipient != "" && client.PlayerID() != op.recipient {
				continue
			}
			targets = append(targets, client)
		}
		if op.departed != "" {
			h.unbind(op.departed)
		}
		for _, client := range targets {
			if !client.Enqueue(op.frame) {
				lagging = append(lagging, client)
			}
		}
		for _, client := range lagging {
			delete(h.clients, client)
			client.Close()
			metrics.DroppedFramesTotal.WithLabelValues("client").Inc()
			h.logger.Warn("client disconnected - send buffer full",
				slog.String("player_id", string(client.PlayerID())))
		}
		h.mu.Unlock()
	}

	if op.ack != nil {
		close(op.ack)
	}
}

// unbind removes every connection of a player that left the room. The
// connections stay open and may join again. Must hold h.mu.
func (h *Hub) unbind(playerID model.PlayerID) {
	for client := range h.clients {
		if client.PlayerID() == playerID {
			delete(h.clients, client)
			client.setPlayerID("")
			h.logger.Info("client unbound", slog.String("player_id", string(playerID)))
		}
	}
}

// dropAll disconnects every client after a message could not be queued
func (h *Hub) dropAll() {
	h.mu.Lock()
	clientCount := len(h.clients)
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
	h.mu.Unlock()
	h.logger.Warn("clients disconnected - hub buffer full", slog.Int("disconnected_clients", clientCount))
}

// submit queues an op and waits until the hub has applied it. It returns
// false if the hub is closed.
func (h *Hub) submit(op hubOp) bool {
	op.ack = make(chan struct{})
	select {
	case h.ops <- op:
	case <-h.done:
		return false
	}
	select {
	case <-op.ack:
		return true
	case <-h.done:
		return false
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) bool {
	return h.submit(hubOp{kind: opRegister, client: client})
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.submit(hubOp{kind: opUnregister, client: client})
}

// Broadcast sends a frame to every client
func (h *Hub) Broadcast(frame Frame) {
	h.deliver(hubOp{kind: opDeliver, frame: frame})
}

// SendTo sends a frame to the clients of one player
func (h *Hub) SendTo(playerID model.PlayerID, frame Frame) {
	h.deliver(hubOp{kind: opDeliver, recipient: playerID, frame: frame})
}

// BroadcastDeparture sends a frame to every client and unbinds the
// connections of the departed player. Those connections receive the frame
// but nothing after it.
func (h *Hub) BroadcastDeparture(playerID model.PlayerID, frame Frame) {
	h.deliver(hubOp{kind: opDeliver, departed: playerID, frame: frame})
}

// deliver never blocks, since it runs inside room operations. If the queue
// is full the frame is lost and every client is disconnected.
func (h *Hub) deliver(op hubOp) {
	select {
	case <-h.done:
	case h.ops <- op:
	default:
		metrics.DroppedFramesTotal.WithLabelValues("hub").Inc()
		h.overflow.Store(true)
		h.logger.Warn("broadcast dropped - hub buffer full")
	}
}

// Close shuts down the hub and disconnects its clients
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HasPlayer reports whether any connection of the player is registered
func (h *Hub) HasPlayer(playerID model.PlayerID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.PlayerID() == playerID {
			return true
		}
	}
	return false
}

// HubManager manages hubs for all rooms
type HubManager struct {
	hubs   map[model.RoomCode]*Hub
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewHubManager creates a new HubManager
func NewHubManager(logger *slog.Logger) *HubManager {
	return &HubManager{
		hubs:   make(map[model.RoomCode]*Hub),
		logger: logger.With(slog.String("component", "realtime")),
	}
}

// GetOrCreateHub returns the hub for a room, creating one if it doesn't exist
func (m *HubManager) GetOrCreateHub(roomCode model.RoomCode) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[roomCode]; ok {
		return hub
	}

	hub := NewHub(roomCode, m.logger)
	m.hubs[roomCode] = hub
	metrics.LiveHubs.Set(float64(len(m.hubs)))
	go hub.Run()
	return hub
}

// GetHub returns the hub for a room, or nil if it doesn't exist
func (m *HubManager) GetHub(roomCode model.RoomCode) *Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hubs[roomCode]
}

// RemoveHub removes and closes a hub
func (m *HubManager) RemoveHub(roomCode model.RoomCode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[roomCode]; ok {
		hub.Close()
		delete(m.hubs, roomCode)
		metrics.LiveHubs.Set(float64(len(m.hubs)))
		m.logger.Info("hub removed", slog.String("room", string(roomCode)))
	}
}

// Count returns the number of live hubs
func (m *HubManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hubs)
}

// ClientCount returns the number of clients across all hubs
func (m *HubManager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, hub := range m.hubs {
		total += hub.ClientCount()
	}
	return total
}

// CloseAll closes every hub, disconnecting all clients
func (m *HubManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, hub := range m.hubs {
		hub.Close()
		delete(m.hubs, code)
	}
	metrics.LiveHubs.Set(0)
}

// Package signal provides the room-scoped signaling transports (in-process,
// redis pub/sub, websocket) and the presence trackers behind them.
package signal

import (
	"context"
	"sort"
	"sync"

	"debatemesh/internal/core/domain"
	"debatemesh/internal/core/ports"
	"debatemesh/pkg/emitter"
)

// Hub is the in-process signaling and presence fabric. Deliveries are queued
// per client and handed out by Drain, never on the sender's call stack, so
// two negotiators wired to the same hub cannot deadlock on each other.
type Hub struct {
	mu      sync.Mutex
	clients map[domain.ParticipantID]*Client
	roster  map[domain.ParticipantID]domain.Participant
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[domain.ParticipantID]*Client),
		roster:  make(map[domain.ParticipantID]domain.Participant),
	}
}

// Join registers a participant endpoint. Joining the same id twice replaces
// the previous endpoint.
func (h *Hub) Join(id domain.ParticipantID) *Client {
	c := &Client{
		hub:     h,
		id:      id,
		signals: emitter.New[domain.SignalMessage](),
		rosters: emitter.New[[]domain.Participant](),
	}
	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	return c
}

// DrainAll delivers queued messages across every client until the hub is
// quiet, so cascaded replies (answer after offer after roster) settle in one
// call.
func (h *Hub) DrainAll() {
	for {
		h.mu.Lock()
		clients := make([]*Client, 0, len(h.clients))
		for _, c := range h.clients {
			clients = append(clients, c)
		}
		h.mu.Unlock()

		delivered := false
		for _, c := range clients {
			if c.Drain() {
				delivered = true
			}
		}
		if !delivered {
			return
		}
	}
}

func (h *Hub) route(msg domain.SignalMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.clients {
		if id == msg.From {
			continue
		}
		if msg.To != "" && msg.To != id {
			continue
		}
		target, m := c, msg
		target.enqueue(func() { target.signals.Emit(m) })
	}
}

func (h *Hub) updatePresence(p domain.Participant) {
	h.mu.Lock()
	h.roster[p.ID] = p
	h.notifyRosterLocked()
	h.mu.Unlock()
}

func (h *Hub) removePresence(id domain.ParticipantID) {
	h.mu.Lock()
	delete(h.roster, id)
	h.notifyRosterLocked()
	h.mu.Unlock()
}

func (h *Hub) notifyRosterLocked() {
	roster := h.snapshotLocked()
	for _, c := range h.clients {
		target := c
		target.enqueue(func() { target.rosters.Emit(roster) })
	}
}

func (h *Hub) snapshotLocked() []domain.Participant {
	roster := make([]domain.Participant, 0, len(h.roster))
	for _, p := range h.roster {
		roster = append(roster, p)
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].ID < roster[j].ID })
	return roster
}

// Client is one participant's endpoint on the hub. Channel and Presence views
// share its delivery queue, so signal and roster ordering is preserved.
type Client struct {
	hub *Hub
	id  domain.ParticipantID

	mu      sync.Mutex
	pending []func()
	closed  bool

	signals *emitter.Emitter[domain.SignalMessage]
	rosters *emitter.Emitter[[]domain.Participant]
}

func (c *Client) enqueue(fn func()) {
	c.mu.Lock()
	if !c.closed {
		c.pending = append(c.pending, fn)
	}
	c.mu.Unlock()
}

// Drain delivers every queued message and reports whether any was delivered.
// Handlers run outside the client lock; messages they generate queue for a
// later Drain.
func (c *Client) Drain() bool {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
	return len(pending) > 0
}

// Channel returns the signaling view of this endpoint.
func (c *Client) Channel() ports.SignalingChannel {
	return &memoryChannel{client: c}
}

// Presence returns the presence view of this endpoint.
func (c *Client) Presence() ports.PresenceTracker {
	return &memoryPresence{client: c}
}

func (c *Client) close() {
	c.mu.Lock()
	c.closed = true
	c.pending = nil
	c.mu.Unlock()
}

type memoryChannel struct {
	client *Client
}

func (m *memoryChannel) SendTo(_ context.Context, to domain.ParticipantID, msg domain.SignalMessage) error {
	msg.From = m.client.id
	msg.To = to
	m.client.hub.route(msg)
	return nil
}

func (m *memoryChannel) Broadcast(_ context.Context, msg domain.SignalMessage) error {
	msg.From = m.client.id
	msg.To = ""
	m.client.hub.route(msg)
	return nil
}

func (m *memoryChannel) Subscribe(fn func(domain.SignalMessage)) (cancel func()) {
	return m.client.signals.Subscribe(fn)
}

func (m *memoryChannel) Close() error {
	m.client.close()
	m.client.signals.Close()
	m.client.hub.mu.Lock()
	delete(m.client.hub.clients, m.client.id)
	m.client.hub.mu.Unlock()
	return nil
}

type memoryPresence struct {
	client *Client
}

func (m *memoryPresence) Track(_ context.Context, p domain.Participant) error {
	m.client.hub.updatePresence(p)
	return nil
}

func (m *memoryPresence) Leave(_ context.Context) error {
	m.client.hub.removePresence(m.client.id)
	return nil
}

func (m *memoryPresence) Snapshot(_ context.Context) ([]domain.Participant, error) {
	m.client.hub.mu.Lock()
	defer m.client.hub.mu.Unlock()
	return m.client.hub.snapshotLocked(), nil
}

func (m *memoryPresence) Subscribe(fn func([]domain.Participant)) (cancel func()) {
	return m.client.rosters.Subscribe(fn)
}

func (m *memoryPresence) Close() error {
	m.client.rosters.Close()
	return nil
}

// Package eventhub publishes die events to WebSocket clients as JSON and
// accepts control commands from them.
package eventhub

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chaz8081/dicelink/internal/ble"
	"github.com/chaz8081/dicelink/internal/ble/protocol"
)

// Event is one outbound message.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// SlotPayload identifies the slot of a disconnected or rolling die.
type SlotPayload struct {
	Slot int `json:"slot"`
}

// ConnectedPayload announces a newly linked die.
type ConnectedPayload struct {
	Slot    int    `json:"slot"`
	Address string `json:"address"`
	Name    string `json:"name"`
}

// ConnectFailedPayload reports a die that could not be linked.
type ConnectFailedPayload struct {
	Address string `json:"address"`
	Error   string `json:"error"`
}

// ColorPayload carries a die's shell color.
type ColorPayload struct {
	Slot  int    `json:"slot"`
	Color string `json:"color"`
}

// StablePayload carries the face a die settled on.
type StablePayload struct {
	Slot int `json:"slot"`
	Face int `json:"face"`
}

// BatteryPayload carries a battery level in percent.
type BatteryPayload struct {
	Slot  int   `json:"slot"`
	Level uint8 `json:"level"`
}

// ChargingPayload reports whether a die is on its charger.
type ChargingPayload struct {
	Slot     int  `json:"slot"`
	Charging bool `json:"charging"`
}

// ErrorPayload is the reply to a command that failed.
type ErrorPayload struct {
	Error string `json:"error"`
}

// SlotState is the wire form of ble.SlotInfo.
type SlotState struct {
	Slot     int    `json:"slot"`
	Address  string `json:"address,omitempty"`
	Name     string `json:"name,omitempty"`
	Linked   bool   `json:"linked"`
	MaxFace  int    `json:"max_face,omitempty"`
	Color    string `json:"color,omitempty"`
	Battery  int    `json:"battery"`
	Charging bool   `json:"charging"`
	Rolling  bool   `json:"rolling"`
	Face     int    `json:"face,omitempty"`
}

const writeTimeout = 100 * time.Millisecond

// client serializes writes to one connection; gorilla allows a single
// concurrent writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(ev)
}

// Hub fans die events out to every connected client. It implements
// ble.EventHandler.
type Hub struct {
	cmd      Commander
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// New creates a Hub. cmd may be nil, in which case inbound commands are
// rejected.
func New(cmd Commander) *Hub {
	return &Hub{
		cmd: cmd,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

var _ ble.EventHandler = (*Hub)(nil)

// ServeHTTP upgrades the request and serves the client until it goes away.
// The first message on every connection is a "slots" snapshot.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[HUB] upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := &client{conn: conn}

	if h.cmd != nil {
		if err := c.send(Event{Type: "slots", Payload: slotStates(h.cmd.Slots())}); err != nil {
			conn.Close()
			return
		}
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	slog.Info("[HUB] client connected", "remote", r.RemoteAddr, "clients", n)

	defer h.remove(c)
	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("[HUB] read", "remote", r.RemoteAddr, "error", err)
			}
			return
		}
		if err := h.handle(c, cmd); err != nil {
			slog.Info("[HUB] dropping client", "remote", r.RemoteAddr, "error", err)
			return
		}
	}
}

// handle runs cmd and writes its reply. It returns an error only when the
// reply cannot be written, at which point the client is gone.
func (h *Hub) handle(c *client, cmd Command) error {
	reply, err := h.execute(cmd)
	if err != nil {
		slog.Warn("[HUB] command failed", "type", cmd.Type, "error", err)
		return c.send(Event{Type: "error", Payload: ErrorPayload{Error: err.Error()}})
	}
	if reply == nil {
		return nil
	}
	return c.send(*reply)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.conn.Close()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends ev to every client. Clients that cannot keep up within
// the write deadline are dropped.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	var (
		wg       sync.WaitGroup
		failedMu sync.Mutex
		failed   []*client
	)
	for _, c := range clients {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.send(ev); err != nil {
				failedMu.Lock()
				failed = append(failed, c)
				failedMu.Unlock()
			}
		}()
	}
	wg.Wait()

	for _, c := range failed {
		slog.Info("[HUB] dropping slow client", "remote", c.conn.RemoteAddr())
		h.remove(c)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
		delete(h.clients, c)
	}
}

func (h *Hub) DieConnected(slot int, address, name string) {
	h.Broadcast(Event{Type: "connected", Payload: ConnectedPayload{Slot: slot, Address: address, Name: name}})
}

func (h *Hub) DieDisconnected(slot int) {
	h.Broadcast(Event{Type: "disconnected", Payload: SlotPayload{Slot: slot}})
}

func (h *Hub) DieConnectFailed(address string, err error) {
	h.Broadcast(Event{Type: "connect_failed", Payload: ConnectFailedPayload{Address: address, Error: err.Error()}})
}

func (h *Hub) DieColor(slot int, color protocol.Color) {
	h.Broadcast(Event{Type: "color", Payload: ColorPayload{Slot: slot, Color: color.String()}})
}

func (h *Hub) DieRolling(slot int) {
	h.Broadcast(Event{Type: "rolling", Payload: SlotPayload{Slot: slot}})
}

func (h *Hub) DieStable(slot int, face int) {
	h.Broadcast(Event{Type: "stable", Payload: StablePayload{Slot: slot, Face: face}})
}

func (h *Hub) DieBattery(slot int, level uint8) {
	h.Broadcast(Event{Type: "battery", Payload: BatteryPayload{Slot: slot, Level: level}})
}

func (h *Hub) DieCharging(slot int, charging bool) {
	h.Broadcast(Event{Type: "charging", Payload: ChargingPayload{Slot: slot, Charging: charging}})
}

func slotStates(slots []ble.SlotInfo) []SlotState {
	out := make([]SlotState, len(slots))
	for i, s := range slots {
		st := SlotState{
			Slot:     s.Index,
			Address:  s.Address,
			Name:     s.Name,
			Linked:   s.Linked,
			Battery:  s.Battery,
			Charging: s.Charging,
			Rolling:  s.Rolling,
			Face:     s.LastFace,
		}
		if s.Linked {
			st.MaxFace = s.MaxFace
		}
		if s.ColorKnown {
			st.Color = s.Color.String()
		}
		out[i] = st
	}
	return out
}

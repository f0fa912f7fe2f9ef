package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/dicelink/internal/ble/geometry"
	"github.com/chaz8081/dicelink/internal/ble/protocol"
)

// ChannelID identifies a notification subscription. Notifications are
// routed to slots by ChannelID; IDs are never reused within a Manager.
type ChannelID uint32

// ManagerOptions configures connection and initialization behavior.
// Zero delays mean no delay.
type ManagerOptions struct {
	Capacity        int           // number of slots (default 2)
	MaxFace         int           // geometry assigned to new links (default 6)
	ConnectAttempts int           // attempts with the advertised address kind (default 3)
	ConnectTimeout  time.Duration // per attempt (default 15s)
	RetryDelay      time.Duration // between attempts
	SettleDelay     time.Duration // after stopping discovery, before connecting
	CommandDelay    time.Duration // between initialization commands
	Sensitivity     int
	InitBlink       protocol.Blink
	// Detection, if set, is sent after the initialization sequence.
	Detection *protocol.DetectionSettings
}

// DefaultManagerOptions returns the timings the dice firmware is tuned for.
func DefaultManagerOptions() ManagerOptions {
	return ManagerOptions{
		Capacity:        2,
		MaxFace:         6,
		ConnectAttempts: 3,
		ConnectTimeout:  15 * time.Second,
		RetryDelay:      2 * time.Second,
		SettleDelay:     1 * time.Second,
		CommandDelay:    100 * time.Millisecond,
		Sensitivity:     protocol.DefaultSensitivity,
		InitBlink:       DefaultInitBlink(),
	}
}

// DefaultInitBlink is the connect acknowledgement: three short green
// blinks on both LEDs.
func DefaultInitBlink() protocol.Blink {
	return protocol.Blink{
		Blinks: 3,
		On:     50,
		Off:    50,
		Color:  protocol.RGB{G: 255},
		Mode:   protocol.BlinkParallel,
		LEDs:   protocol.LEDsBoth,
	}
}

// SlotInfo is a snapshot of one slot.
type SlotInfo struct {
	Index        int
	Address      string
	Name         string
	AddressKind  AddressKind
	Connecting   bool
	Linked       bool
	Initialized  bool
	Channel      ChannelID
	MaxFace      int
	Color        protocol.Color
	ColorKnown   bool
	Battery      int // -1 until reported
	Charging     bool
	Rolling      bool
	LastFace     int // 0 until the first stable event
	LastActivity time.Time
}

type slot struct {
	address     string
	name        string
	kind        AddressKind
	connecting  bool
	linked      bool
	initialized bool
	ready       bool // DieConnected has been emitted
	lost        bool // link dropped before the connect finished
	conn        Connection
	write       Characteristic
	channel     ChannelID
	maxFace     int

	color        protocol.Color
	colorKnown   bool
	battery      int
	charging     bool
	rolling      bool
	lastFace     int
	lastActivity time.Time
}

func (s *slot) reset() {
	*s = slot{battery: -1}
}

// Manager owns the fixed slot table. It is safe for concurrent use; the
// event handler is always called without the lock held.
type Manager struct {
	adapter Adapter
	handler EventHandler
	opts    ManagerOptions

	now   func() time.Time
	sleep func(time.Duration)

	mu          sync.Mutex
	slots       []slot
	nextChannel ChannelID
}

// NewManager creates a Manager. A nil handler discards events.
func NewManager(adapter Adapter, handler EventHandler, opts ManagerOptions) *Manager {
	if handler == nil {
		handler = NopHandler{}
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 2
	}
	if opts.MaxFace == 0 {
		opts.MaxFace = 6
	}
	if opts.ConnectAttempts <= 0 {
		opts.ConnectAttempts = 3
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 15 * time.Second
	}
	m := &Manager{
		adapter: adapter,
		handler: handler,
		opts:    opts,
		now:     time.Now,
		sleep:   sleep,
		slots:   make([]slot, opts.Capacity),
	}
	for i := range m.slots {
		m.slots[i].reset()
	}
	return m
}

func sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// Capacity returns the number of slots.
func (m *Manager) Capacity() int { return len(m.slots) }

// Connect links the die at address into a free slot, resolves its service,
// subscribes to notifications and runs the initialization sequence. It
// blocks for the whole retry schedule and cannot be cancelled. On failure
// the slot is released and DieConnectFailed fires once.
func (m *Manager) Connect(address, name string, kind AddressKind) (int, error) {
	idx, err := m.reserve(address, name, kind)
	if err != nil {
		return -1, m.fail(address, err)
	}

	conn, kind, err := m.dial(address, kind)
	if err != nil {
		m.release(idx)
		return -1, m.fail(address, err)
	}

	m.mu.Lock()
	m.nextChannel++
	ch := m.nextChannel
	m.slots[idx].channel = ch
	m.mu.Unlock()
	conn.OnDisconnect(func() { m.remoteDisconnect(idx, ch) })

	write, err := m.resolve(conn, ch)
	if err != nil {
		if derr := conn.Disconnect(); derr != nil {
			slog.Debug("[BLE] disconnect after failed resolve", "address", address, "error", derr)
		}
		m.release(idx)
		return -1, m.fail(address, err)
	}

	m.mu.Lock()
	s := &m.slots[idx]
	if s.lost {
		s.reset()
		m.mu.Unlock()
		if derr := conn.Disconnect(); derr != nil {
			slog.Debug("[BLE] disconnect after lost link", "address", address, "error", derr)
		}
		return -1, m.fail(address, fmt.Errorf("ble: %s dropped during discovery: %w", address, ErrNotLinked))
	}
	s.connecting = false
	s.linked = true
	s.kind = kind
	s.conn = conn
	s.write = write
	s.lastActivity = m.now()
	m.mu.Unlock()

	slog.Info("[BLE] linked", "slot", idx, "address", address, "kind", kind, "channel", ch)

	m.initialize(idx, ch)

	m.mu.Lock()
	alive := m.slots[idx].linked && m.slots[idx].channel == ch
	m.slots[idx].ready = alive
	m.mu.Unlock()
	if !alive {
		return -1, m.fail(address, fmt.Errorf("ble: %s dropped during init: %w", address, ErrNotLinked))
	}

	m.handler.DieConnected(idx, address, name)
	return idx, nil
}

func (m *Manager) fail(address string, err error) error {
	slog.Error("[BLE] connect failed", "address", address, "error", err)
	m.handler.DieConnectFailed(address, err)
	return err
}

// reserve claims the lowest free slot for address.
func (m *Manager) reserve(address, name string, kind AddressKind) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	free := -1
	for i := range m.slots {
		s := &m.slots[i]
		if (s.linked || s.connecting) && s.address == address {
			return -1, fmt.Errorf("ble: %s in slot %d: %w", address, i, ErrAlreadyLinked)
		}
		if free < 0 && !s.linked && !s.connecting {
			free = i
		}
	}
	if free < 0 {
		return -1, fmt.Errorf("ble: connect %s: %w", address, ErrNoFreeSlot)
	}

	s := &m.slots[free]
	s.reset()
	s.connecting = true
	s.address = address
	s.name = name
	s.kind = kind
	s.maxFace = m.opts.MaxFace
	return free, nil
}

func (m *Manager) release(idx int) {
	m.mu.Lock()
	m.slots[idx].reset()
	m.mu.Unlock()
}

// dial runs the retry schedule: ConnectAttempts tries with the advertised
// address kind, then one try with the other kind.
func (m *Manager) dial(address string, kind AddressKind) (Connection, AddressKind, error) {
	for attempt := 1; attempt <= m.opts.ConnectAttempts; attempt++ {
		conn, err := m.dialOnce(address, kind)
		if err == nil {
			return conn, kind, nil
		}
		slog.Warn("[BLE] connect attempt failed", "address", address, "kind", kind, "attempt", attempt, "error", err)
		if attempt < m.opts.ConnectAttempts {
			m.sleep(m.opts.RetryDelay)
		}
	}

	alt := kind.Alternate()
	m.sleep(m.opts.RetryDelay)
	slog.Info("[BLE] retrying with alternate address kind", "address", address, "kind", alt)
	conn, err := m.dialOnce(address, alt)
	if err == nil {
		return conn, alt, nil
	}
	slog.Warn("[BLE] connect attempt failed", "address", address, "kind", alt, "error", err)
	return nil, kind, fmt.Errorf("ble: connect %s: %w: %w", address, ErrConnectFailed, err)
}

func (m *Manager) dialOnce(address string, kind AddressKind) (Connection, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ConnectTimeout)
	defer cancel()
	return m.adapter.Connect(ctx, address, kind)
}

// resolve finds the die service and both characteristics and subscribes
// notifications to ch. A die that refuses notifications still links, it
// just never reports telemetry.
func (m *Manager) resolve(conn Connection, ch ChannelID) (Characteristic, error) {
	svc, err := conn.DiscoverService(ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: resolve: %w: %w", ErrServiceNotFound, err)
	}
	write, err := svc.DiscoverCharacteristic(WriteCharUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: resolve write characteristic: %w: %w", ErrCharacteristicNotFound, err)
	}
	notify, err := svc.DiscoverCharacteristic(NotifyCharUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: resolve notify characteristic: %w: %w", ErrCharacteristicNotFound, err)
	}

	if mtu, err := write.MTU(); err == nil {
		slog.Debug("[BLE] link MTU", "mtu", mtu)
	}

	if err := notify.Subscribe(func(data []byte) { m.Dispatch(ch, data) }); err != nil {
		slog.Warn("[BLE] notifications unavailable, die will not report telemetry", "channel", ch, "error", err)
	}
	return write, nil
}

// initialize sends the connect sequence. Write errors are logged; the link
// stays up either way.
func (m *Manager) initialize(idx int, ch ChannelID) {
	cmd := protocol.Init{Sensitivity: m.opts.Sensitivity, Blink: m.opts.InitBlink}
	if err := m.send(idx, cmd); err != nil {
		slog.Warn("[BLE] init failed", "slot", idx, "error", err)
	} else {
		m.mu.Lock()
		if s := &m.slots[idx]; s.linked && s.channel == ch {
			s.initialized = true
		}
		m.mu.Unlock()
	}

	m.sleep(m.opts.CommandDelay)
	if err := m.send(idx, protocol.RequestColor{}); err != nil {
		slog.Warn("[BLE] request color failed", "slot", idx, "error", err)
	}
	m.sleep(m.opts.CommandDelay)
	if err := m.send(idx, protocol.RequestBattery{}); err != nil {
		slog.Warn("[BLE] request battery failed", "slot", idx, "error", err)
	}

	if m.opts.Detection != nil {
		m.sleep(m.opts.CommandDelay)
		if err := m.send(idx, protocol.UpdateDetectionSettings{Settings: *m.opts.Detection}); err != nil {
			slog.Warn("[BLE] detection settings failed", "slot", idx, "error", err)
		}
	}
}

// Disconnect tears down the link in slot and frees it. It is a no-op for a
// free slot. A slot whose connect is still in flight is left alone.
func (m *Manager) Disconnect(idx int) error {
	m.mu.Lock()
	if idx < 0 || idx >= len(m.slots) {
		m.mu.Unlock()
		return fmt.Errorf("ble: disconnect slot %d: %w", idx, ErrInvalidSlot)
	}
	s := &m.slots[idx]
	if s.connecting {
		m.mu.Unlock()
		slog.Debug("[BLE] disconnect ignored, connect in progress", "slot", idx)
		return nil
	}
	wasReady := s.ready
	conn := s.conn
	address := s.address
	s.reset()
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			slog.Warn("[BLE] disconnect", "slot", idx, "error", err)
		}
	}
	if wasReady {
		slog.Info("[BLE] disconnected", "slot", idx, "address", address)
		m.handler.DieDisconnected(idx)
	}
	return nil
}

// DisconnectAll disconnects every linked slot.
func (m *Manager) DisconnectAll() {
	for i := range m.slots {
		_ = m.Disconnect(i)
	}
}

// remoteDisconnect handles a link drop reported by the radio stack. It is
// ignored if the slot has since been reused by another link. A drop while
// the connect is still resolving marks the slot lost and Connect fails it.
func (m *Manager) remoteDisconnect(idx int, ch ChannelID) {
	m.mu.Lock()
	s := &m.slots[idx]
	if s.channel != ch {
		m.mu.Unlock()
		return
	}
	if s.connecting {
		s.lost = true
		address := s.address
		m.mu.Unlock()
		slog.Warn("[BLE] die dropped link while connecting", "slot", idx, "address", address)
		return
	}
	if !s.linked {
		m.mu.Unlock()
		return
	}
	address := s.address
	wasReady := s.ready
	s.reset()
	m.mu.Unlock()

	slog.Warn("[BLE] die dropped link", "slot", idx, "address", address)
	if wasReady {
		m.handler.DieDisconnected(idx)
	}
}

// send encodes cmd and writes it to the slot's write characteristic.
func (m *Manager) send(idx int, cmd protocol.Command) error {
	m.mu.Lock()
	if idx < 0 || idx >= len(m.slots) {
		m.mu.Unlock()
		return fmt.Errorf("ble: slot %d: %w", idx, ErrInvalidSlot)
	}
	s := &m.slots[idx]
	if !s.linked || s.write == nil {
		m.mu.Unlock()
		return fmt.Errorf("ble: slot %d: %w", idx, ErrNotLinked)
	}
	write := s.write
	m.mu.Unlock()

	var buf [protocol.MaxCommandSize]byte
	n, err := protocol.Encode(cmd, buf[:])
	if err != nil {
		return fmt.Errorf("ble: encode %#02x: %w", cmd.Opcode(), err)
	}
	if err := write.Write(buf[:n]); err != nil {
		return fmt.Errorf("ble: write %#02x to slot %d: %w", cmd.Opcode(), idx, err)
	}
	return nil
}

// SetStaticColor sets both LEDs to fixed colors.
func (m *Manager) SetStaticColor(idx int, led1, led2 protocol.RGB) error {
	return m.send(idx, protocol.SetStaticColor{LED1: led1, LED2: led2})
}

// Blink starts a blink pattern.
func (m *Manager) Blink(idx int, b protocol.Blink) error {
	return m.send(idx, protocol.ToggleBlink{Blink: b})
}

// StopBlink stops any running blink pattern.
func (m *Manager) StopBlink(idx int) error {
	return m.send(idx, protocol.StopBlink{})
}

// RequestColor asks the die to report its shell color.
func (m *Manager) RequestColor(idx int) error {
	return m.send(idx, protocol.RequestColor{})
}

// RequestBattery asks the die to report its battery level.
func (m *Manager) RequestBattery(idx int) error {
	return m.send(idx, protocol.RequestBattery{})
}

// UpdateDetectionSettings retunes the die's roll detection.
func (m *Manager) UpdateDetectionSettings(idx int, settings protocol.DetectionSettings) error {
	return m.send(idx, protocol.UpdateDetectionSettings{Settings: settings})
}

// SetDieType changes the geometry used to classify stable events for slot.
func (m *Manager) SetDieType(idx int, maxFace int) error {
	if _, ok := geometry.Lookup(maxFace); !ok {
		return fmt.Errorf("ble: set die type %d: %w", maxFace, protocol.ErrUnknownGeometry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx < 0 || idx >= len(m.slots) {
		return fmt.Errorf("ble: slot %d: %w", idx, ErrInvalidSlot)
	}
	if !m.slots[idx].linked {
		return fmt.Errorf("ble: slot %d: %w", idx, ErrNotLinked)
	}
	m.slots[idx].maxFace = maxFace
	return nil
}

// FindFreeSlot returns the lowest slot that is neither linked nor connecting.
func (m *Manager) FindFreeSlot() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		if !m.slots[i].linked && !m.slots[i].connecting {
			return i, true
		}
	}
	return -1, false
}

// FindSlotByAddress returns the linked slot holding address.
func (m *Manager) FindSlotByAddress(address string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		if m.slots[i].linked && m.slots[i].address == address {
			return i, true
		}
	}
	return -1, false
}

// IsLinked reports whether address is linked or being connected.
func (m *Manager) IsLinked(address string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		s := &m.slots[i]
		if (s.linked || s.connecting) && s.address == address {
			return true
		}
	}
	return false
}

// ConnectedCount returns the number of linked slots.
func (m *Manager) ConnectedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.slots {
		if m.slots[i].linked {
			n++
		}
	}
	return n
}

// Slot returns a snapshot of slot idx.
func (m *Manager) Slot(idx int) (SlotInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx < 0 || idx >= len(m.slots) {
		return SlotInfo{}, false
	}
	return m.slots[idx].info(idx), true
}

// Slots returns a snapshot of every slot.
func (m *Manager) Slots() []SlotInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SlotInfo, len(m.slots))
	for i := range m.slots {
		out[i] = m.slots[i].info(i)
	}
	return out
}

func (s *slot) info(idx int) SlotInfo {
	return SlotInfo{
		Index:        idx,
		Address:      s.address,
		Name:         s.name,
		AddressKind:  s.kind,
		Connecting:   s.connecting,
		Linked:       s.linked,
		Initialized:  s.initialized,
		Channel:      s.channel,
		MaxFace:      s.maxFace,
		Color:        s.color,
		ColorKnown:   s.colorKnown,
		Battery:      s.battery,
		Charging:     s.charging,
		Rolling:      s.rolling,
		LastFace:     s.lastFace,
		LastActivity: s.lastActivity,
	}
}

package protocol

// Handlers receives decoded events. Rolling, Stable, Battery, Charging and
// Color are required for their events; a nil one makes Handle return
// ErrInvalidCallback. Tap and DoubleTap are optional.
type Handlers struct {
	Rolling   func()
	Stable    func(face int, ev Event)
	Battery   func(level uint8)
	Charging  func(charging bool)
	Color     func(c Color)
	Tap       func()
	DoubleTap func()
}

func (h *Handlers) has(kind EventKind) bool {
	switch kind {
	case EventRolling:
		return h.Rolling != nil
	case EventStable:
		return h.Stable != nil
	case EventBattery:
		return h.Battery != nil
	case EventCharging:
		return h.Charging != nil
	case EventColor:
		return h.Color != nil
	default:
		return true
	}
}

// Handle decodes packet and invokes the matching handler. The handler
// check happens before payload validation, so a packet for an event with
// no handler reports ErrInvalidCallback even if it is malformed.
func (h *Handlers) Handle(packet []byte, maxFace int) (Event, error) {
	if h == nil {
		return Event{}, ErrInvalidCallback
	}
	kind, ok := Kind(packet)
	if !ok {
		return Event{}, ErrUnknownPrefix
	}
	if !h.has(kind) {
		return Event{}, ErrInvalidCallback
	}

	ev, err := Decode(packet, maxFace)
	if err != nil {
		return Event{}, err
	}

	switch ev.Kind {
	case EventRolling:
		h.Rolling()
	case EventStable:
		h.Stable(ev.Face, ev)
	case EventBattery:
		h.Battery(ev.Level)
	case EventCharging:
		h.Charging(ev.Charging)
	case EventColor:
		h.Color(ev.Color)
	case EventTap:
		if h.Tap != nil {
			h.Tap()
		}
	case EventDoubleTap:
		if h.DoubleTap != nil {
			h.DoubleTap()
		}
	}
	return ev, nil
}

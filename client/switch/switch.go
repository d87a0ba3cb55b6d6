package _switch

import (
	"github.com/adwski/watchparty/client/model"
	"github.com/rs/zerolog"
)

// Handler consumes a single inbound event.
type Handler func(model.Event)

// Switch routes inbound events to the listener set of the current
// connection epoch. Attaching a new set always detaches the previous
// one first, so an event is never delivered by two epochs' listeners.
//
// Switch is not safe for concurrent use; it is driven from the service loop.
type Switch struct {
	logger   zerolog.Logger
	fwd      map[string]Handler
	epoch    uint64
	attached bool
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger: logger.With().Str("component", "switch").Logger(),
		fwd:    make(map[string]Handler),
	}
}

// Attach installs handlers for the given epoch.
func (sw *Switch) Attach(epoch uint64, handlers map[string]Handler) {
	sw.Detach()

	for name, h := range handlers {
		sw.fwd[name] = h
	}
	sw.epoch = epoch
	sw.attached = true
	sw.logger.Debug().
		Uint64("epoch", epoch).
		Int("listeners", len(sw.fwd)).
		Msg("listeners attached")
}

// Detach removes every handler of the current epoch.
func (sw *Switch) Detach() {
	if !sw.attached {
		return
	}
	sw.fwd = make(map[string]Handler)
	sw.attached = false
	sw.logger.Debug().Uint64("epoch", sw.epoch).Msg("listeners detached")
}

// Epoch returns the epoch whose listeners are attached and whether any are.
func (sw *Switch) Epoch() (uint64, bool) {
	return sw.epoch, sw.attached
}

// Forward delivers the event if it belongs to the attached epoch and
// somebody listens for it.
func (sw *Switch) Forward(in model.Inbound) bool {
	logger := sw.logger.With().
		Uint64("epoch", in.Epoch).
		Str("type", in.Event.Name()).
		Logger()

	if !sw.attached || in.Epoch != sw.epoch {
		logger.Debug().Uint64("current", sw.epoch).Msg("stale event dropped")
		return false
	}
	h, ok := sw.fwd[in.Event.Name()]
	if !ok {
		logger.Debug().Msg("no listener for event")
		return false
	}
	h(in.Event)
	logger.Trace().Msg("event forwarded")
	return true
}

package filesync

import (
	"errors"
	"fmt"

	"github.com/adwski/watchparty/client/model"
	"github.com/rs/zerolog"
)

type State int

const (
	StateNoFile State = iota
	StateSelecting
	StateDescriptorBroadcast
	StateAwaitingPeers
	StateSynced
)

func (s State) String() string {
	switch s {
	case StateNoFile:
		return "no-file"
	case StateSelecting:
		return "selecting"
	case StateDescriptorBroadcast:
		return "descriptor-broadcast"
	case StateAwaitingPeers:
		return "awaiting-peers"
	case StateSynced:
		return "synced"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var ErrNotSynced = errors.New("file can only be updated once synced")

type (
	// Negotiator receives the local descriptor.
	Negotiator interface {
		SetLocalDescriptor(d model.FileDescriptor, scope model.Scope) (bool, error)
		AllReady() bool
	}

	Sender interface {
		Send(name string, payload any) error
	}

	Config struct {
		Logger     *zerolog.Logger
		Negotiator Negotiator
		Sender     Sender
		// Describe defaults to the package-level Describe.
		Describe func(FileHandle) (model.FileDescriptor, error)
	}

	// Coordinator drives the select / broadcast / await handshake. It only
	// keeps the workflow cursor; descriptors live in the negotiator.
	Coordinator struct {
		rn       Negotiator
		tx       Sender
		describe func(FileHandle) (model.FileDescriptor, error)
		logger   zerolog.Logger

		state State
	}
)

func NewCoordinator(cfg Config) *Coordinator {
	c := &Coordinator{
		rn:       cfg.Negotiator,
		tx:       cfg.Sender,
		describe: cfg.Describe,
		logger:   cfg.Logger.With().Str("component", "filesync").Logger(),
	}
	if c.describe == nil {
		c.describe = Describe
	}
	return c
}

func (c *Coordinator) State() State {
	return c.state
}

// SelectFile describes h and announces it to the room.
func (c *Coordinator) SelectFile(h FileHandle, scope model.Scope) error {
	return c.announce(h, scope)
}

// UpdateFile replaces the file of an already synced room. The new
// descriptor is broadcast before update-file is sent; if only the
// latter fails, the error is returned but the new descriptor and the
// resulting state stay in effect.
func (c *Coordinator) UpdateFile(h FileHandle, scope model.Scope) error {
	if c.state != StateSynced {
		return errors.Join(model.ErrInvalidTransition, ErrNotSynced)
	}
	if err := c.announce(h, scope); err != nil {
		return err
	}
	if err := c.tx.Send(model.RequestUpdateFile, nil); err != nil {
		c.logger.Warn().Err(err).Msg("update-file not sent")
		return err
	}
	return nil
}

func (c *Coordinator) announce(h FileHandle, scope model.Scope) error {
	prev := c.state
	c.setState(StateSelecting)
	d, err := c.describe(h)
	if err != nil {
		c.setState(prev)
		return err
	}

	c.setState(StateDescriptorBroadcast)
	if _, err = c.rn.SetLocalDescriptor(d, scope); err != nil {
		c.setState(prev)
		return err
	}
	c.setState(StateAwaitingPeers)
	c.OnReadiness(c.rn.AllReady())
	return nil
}

// OnReadiness follows the negotiator's AllReady signal.
func (c *Coordinator) OnReadiness(allReady bool) {
	switch {
	case c.state == StateAwaitingPeers && allReady:
		c.setState(StateSynced)
	case c.state == StateSynced && !allReady:
		c.setState(StateAwaitingPeers)
	}
}

// Reset returns to NoFile, e.g. after a room change.
func (c *Coordinator) Reset() {
	c.setState(StateNoFile)
}

func (c *Coordinator) setState(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug().
		Stringer("from", c.state).
		Stringer("to", s).
		Msg("file sync transition")
	c.state = s
}

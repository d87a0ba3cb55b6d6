package session

import (
	"errors"
	"fmt"

	"github.com/adwski/watchparty/client/model"
	"github.com/rs/zerolog"
)

type State int

const (
	StateDisconnected State = iota
	StateIdle
	StateJoining
	StateInRoom
	StateLeaving
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StateInRoom:
		return "in-room"
	case StateLeaving:
		return "leaving"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrAlreadyInRoom = errors.New("already in this room")
	ErrEmptyRoom     = errors.New("room id is empty")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrNotInRoom     = errors.New("not in a shared room")
)

type (
	// Sender emits protocol requests.
	Sender interface {
		Send(name string, payload any) error
		Request(name string, payload any) (string, error)
	}

	Config struct {
		Logger *zerolog.Logger
		Sender Sender
		// Username overrides the default of using the session id as the name.
		Username string
	}

	// Manager owns identity and room membership.
	//
	// A join is never gated on a preceding leave: the leave is sent, the
	// join follows immediately, and whatever room-joined reports wins.
	Manager struct {
		tx     Sender
		logger zerolog.Logger

		fixedUsername string

		state         State
		selfID        string
		username      string
		currentRoomID string
		pendingRoomID string
		leavingRoomID string
		leaveAcks     map[string]string
	}
)

func NewManager(cfg Config) *Manager {
	return &Manager{
		tx:            cfg.Sender,
		logger:        cfg.Logger.With().Str("component", "session").Logger(),
		fixedUsername: cfg.Username,
		leaveAcks:     make(map[string]string),
	}
}

// OnConnect starts a fresh identity. The peer begins in its own
// private room named after the session id.
func (m *Manager) OnConnect(selfID string) {
	m.reset()
	m.state = StateIdle
	m.selfID = selfID
	m.username = selfID
	if m.fixedUsername != "" {
		m.username = m.fixedUsername
	}
	m.currentRoomID = selfID

	m.logger.Debug().
		Str("selfID", selfID).
		Str("username", m.username).
		Msg("session started")
}

// OnDisconnect drops all membership; nothing survives a lost connection.
func (m *Manager) OnDisconnect() {
	m.reset()
	m.logger.Debug().Msg("session dropped")
}

func (m *Manager) reset() {
	m.state = StateDisconnected
	m.selfID = ""
	m.username = ""
	m.currentRoomID = ""
	m.pendingRoomID = ""
	m.leavingRoomID = ""
	m.leaveAcks = make(map[string]string)
}

func (m *Manager) Connected() bool {
	return m.state != StateDisconnected
}

func (m *Manager) isDefaultRoom(roomID string) bool {
	return roomID == m.selfID
}

// CanJoin reports whether RequestJoin(target) would be accepted.
func (m *Manager) CanJoin(target string) bool {
	return m.Connected() && target != "" && target != m.currentRoomID
}

// CanSend reports whether a chat message may be sent right now.
func (m *Manager) CanSend() bool {
	return m.Connected() && m.currentRoomID != ""
}

// RequestJoin asks the server to move this peer into target. A pending
// join for another room is superseded.
func (m *Manager) RequestJoin(target string) error {
	if !m.Connected() {
		return model.ErrNotConnected
	}
	if target == "" {
		return errors.Join(model.ErrInvalidTransition, ErrEmptyRoom)
	}
	if target == m.currentRoomID {
		return errors.Join(model.ErrInvalidTransition, ErrAlreadyInRoom)
	}

	leaving := m.state == StateLeaving && m.leavingRoomID == m.currentRoomID
	if !leaving && m.currentRoomID != "" && !m.isDefaultRoom(m.currentRoomID) {
		if m.sendLeave(m.currentRoomID) {
			m.state = StateLeaving
			m.leavingRoomID = m.currentRoomID
			leaving = true
		}
	}

	err := m.tx.Send(model.RequestJoinRoom, model.RoomRequest{
		Username: m.username,
		Room:     target,
	})
	if err != nil {
		if leaving {
			// the leave is on the wire; let it complete into the private room
			m.state = StateLeaving
			m.pendingRoomID = ""
		}
		return err
	}
	if m.pendingRoomID != "" && m.pendingRoomID != target {
		m.logger.Debug().
			Str("superseded", m.pendingRoomID).
			Str("roomID", target).
			Msg("pending join superseded")
	}
	m.pendingRoomID = target
	m.state = StateJoining

	m.logger.Debug().
		Str("roomID", target).
		Str("from", m.currentRoomID).
		Msg("join requested")
	return nil
}

// Leave exits the current shared room and returns to the private one.
func (m *Manager) Leave() error {
	if !m.Connected() {
		return model.ErrNotConnected
	}
	if m.state == StateLeaving || m.isDefaultRoom(m.currentRoomID) {
		return errors.Join(model.ErrInvalidTransition, ErrNotInRoom)
	}
	if !m.sendLeave(m.currentRoomID) {
		return model.ErrNotConnected
	}
	m.state = StateLeaving
	m.leavingRoomID = m.currentRoomID
	m.pendingRoomID = ""
	return nil
}

func (m *Manager) sendLeave(roomID string) bool {
	id, err := m.tx.Request(model.RequestLeaveRoom, model.RoomRequest{
		Username: m.username,
		Room:     roomID,
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("roomID", roomID).Msg("leave request not sent")
		return false
	}
	m.leaveAcks[id] = roomID
	m.logger.Debug().Str("roomID", roomID).Msg("leave requested")
	return true
}

// OnRoomJoined applies a server confirmation. The confirmed id is taken
// as is, even when it is not the room that was asked for. It reports
// whether the current room changed.
func (m *Manager) OnRoomJoined(roomID string) bool {
	if !m.Connected() {
		return false
	}
	if m.pendingRoomID != "" && m.pendingRoomID != roomID {
		m.logger.Warn().
			Str("requested", m.pendingRoomID).
			Str("roomID", roomID).
			Msg("server confirmed a different room")
	}

	prev := m.currentRoomID
	m.currentRoomID = roomID
	m.pendingRoomID = ""
	m.leavingRoomID = ""
	if m.isDefaultRoom(roomID) {
		m.state = StateIdle
	} else {
		m.state = StateInRoom
	}

	m.logger.Info().Str("roomID", roomID).Msg("joined room")
	return prev != roomID
}

// OnRoomLeft is informational unless an explicit leave is waiting for it.
func (m *Manager) OnRoomLeft(roomID string) {
	m.logger.Info().Str("roomID", roomID).Msg("left room")
	m.finishLeave(roomID)
}

// OnAck consumes acknowledgments of leave requests. It reports whether
// the ack belonged to this manager.
func (m *Manager) OnAck(ack model.Acked) bool {
	roomID, ok := m.leaveAcks[ack.ID]
	if !ok {
		return false
	}
	delete(m.leaveAcks, ack.ID)
	m.logger.Debug().
		Str("roomID", roomID).
		Bool("ok", ack.OK).
		Str("error", ack.Error).
		Msg("leave acknowledged")
	if ack.OK {
		m.finishLeave(roomID)
	} else if m.state == StateLeaving && m.leavingRoomID == roomID && m.pendingRoomID == "" {
		// server refused; membership is unchanged
		m.leavingRoomID = ""
		m.state = StateInRoom
	}
	return true
}

func (m *Manager) finishLeave(roomID string) {
	// only an explicit leave (no join in flight) returns to the private room
	if m.state != StateLeaving || m.leavingRoomID != roomID || m.pendingRoomID != "" {
		return
	}
	m.leavingRoomID = ""
	m.currentRoomID = m.selfID
	m.state = StateIdle
}

// SendMessage posts text to the current room. The entry shows up in the
// history only once the server echoes it back.
func (m *Manager) SendMessage(text string) error {
	if !m.Connected() {
		return model.ErrNotConnected
	}
	if text == "" {
		return errors.Join(model.ErrInvalidTransition, ErrEmptyMessage)
	}
	return m.tx.Send(model.RequestSendMessage, model.MessageRequest{
		Username: m.username,
		Room:     m.currentRoomID,
		Message:  text,
	})
}

func (m *Manager) Scope() model.Scope {
	return model.Scope{Username: m.username, Room: m.currentRoomID}
}

func (m *Manager) State() State { return m.state }
func (m *Manager) SelfID() string { return m.selfID }
func (m *Manager) Username() string { return m.username }
func (m *Manager) CurrentRoomID() string { return m.currentRoomID }
func (m *Manager) PendingRoomID() string { return m.pendingRoomID }
func (m *Manager) LeavingRoomID() string { return m.leavingRoomID }

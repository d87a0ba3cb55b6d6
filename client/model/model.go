package model

import (
	"encoding/json"
)

// Outbound request names.
const (
	RequestJoinRoom            = "join-room"
	RequestLeaveRoom           = "leave-room"
	RequestSendMessage         = "send-message"
	RequestDescriptorBroadcast = "descriptor-broadcast"
	RequestUpdateFile          = "update-file"
)

// Inbound event names.
const (
	EventSession            = "session"
	EventRoomJoined         = "room-joined"
	EventRoomLeft           = "room-left"
	EventMessageReceived    = "message-received"
	EventReadinessChanged   = "readiness-changed"
	EventDescriptorReceived = "descriptor-received"
	EventPeerLeft           = "peer-left"
	EventAck                = "ack"

	// Synthetic events produced by the transport itself.
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
)

// Envelope is a single frame on the wire.
type Envelope struct {
	Type    string          `json:"type"`
	Ack     string          `json:"ack,omitempty"` // request correlation id, echoed back by the server in "ack" frames
	Payload json.RawMessage `json:"payload,omitempty"`
}

type (
	RoomRequest struct {
		Username string `json:"username"`
		Room     string `json:"room"`
	}

	MessageRequest struct {
		Username string `json:"username"`
		Room     string `json:"room"`
		Message  string `json:"message"`
	}

	DescriptorAnnouncement struct {
		Username   string         `json:"username"`
		Room       string         `json:"room"`
		Descriptor FileDescriptor `json:"descriptor"`
	}
)

// Scope identifies who is talking and where.
type Scope struct {
	Username string
	Room     string
}

// HistoryEntry is a chat or system line. SequenceIndex is assigned by the history log.
type HistoryEntry struct {
	SenderID      string `json:"sid"`
	Username      string `json:"username"`
	Message       string `json:"message"`
	SequenceIndex uint64 `json:"-"`
}

// FileDescriptor identifies a media file for matching without carrying its content.
type FileDescriptor struct {
	MediaType   string `json:"type"`
	Name        string `json:"name"`
	SizeBytes   *int64 `json:"size,omitempty"`
	ContentHash string `json:"hash,omitempty"`
}

// Matches compares by content hash when both sides have one,
// otherwise by media type, name and size.
func (d FileDescriptor) Matches(other FileDescriptor) bool {
	if d.ContentHash != "" && other.ContentHash != "" {
		return d.ContentHash == other.ContentHash
	}
	if d.MediaType != other.MediaType || d.Name != other.Name {
		return false
	}
	switch {
	case d.SizeBytes == nil && other.SizeBytes == nil:
		return true
	case d.SizeBytes == nil || other.SizeBytes == nil:
		return false
	default:
		return *d.SizeBytes == *other.SizeBytes
	}
}

// Wire is the event feed a transport hands to the core.
type Wire struct {
	RX chan Inbound
}

func NewWire(size int) Wire {
	return Wire{
		RX: make(chan Inbound, size),
	}
}

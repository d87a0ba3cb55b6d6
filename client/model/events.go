package model

// Event is a decoded inbound frame or transport lifecycle change.
type Event interface {
	Name() string
}

// Inbound tags an event with the connection epoch it was received in.
type Inbound struct {
	Epoch uint64
	Event Event
}

type (
	Connected struct {
		SelfID string
	}

	Disconnected struct {
		Err error
	}

	RoomJoined struct {
		RoomID string
	}

	RoomLeft struct {
		RoomID string
	}

	MessageReceived struct {
		Entry HistoryEntry
	}

	ReadinessChanged struct {
		Ready bool
	}

	DescriptorReceived struct {
		PeerID     string         `json:"sid"`
		Username   string         `json:"username"`
		Descriptor FileDescriptor `json:"descriptor"`
	}

	PeerLeft struct {
		PeerID string `json:"sid"`
	}

	Acked struct {
		ID    string
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}
)

func (Connected) Name() string { return EventConnected }
func (Disconnected) Name() string { return EventDisconnected }
func (RoomJoined) Name() string { return EventRoomJoined }
func (RoomLeft) Name() string { return EventRoomLeft }
func (MessageReceived) Name() string { return EventMessageReceived }
func (ReadinessChanged) Name() string { return EventReadinessChanged }
func (DescriptorReceived) Name() string { return EventDescriptorReceived }
func (PeerLeft) Name() string { return EventPeerLeft }
func (Acked) Name() string { return EventAck }

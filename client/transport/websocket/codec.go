package websocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adwski/watchparty/client/model"
)

var (
	ErrUnknownEvent     = errors.New("unknown event")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Encode wraps a request payload into an envelope.
func Encode(name, ack string, payload any) (model.Envelope, error) {
	env := model.Envelope{Type: name, Ack: ack}
	if payload == nil {
		return env, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return env, err
	}
	env.Payload = b
	return env, nil
}

// DecodeSession parses the handshake frame and returns the assigned id.
func DecodeSession(b []byte) (string, error) {
	var env model.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return "", errors.Join(ErrMalformedPayload, err)
	}
	if env.Type != model.EventSession {
		return "", fmt.Errorf("%w: expected %q, got %q", ErrUnknownEvent, model.EventSession, env.Type)
	}
	var p struct {
		SID string `json:"sid"`
	}
	if err := unmarshalPayload(env, &p); err != nil {
		return "", err
	}
	if p.SID == "" {
		return "", fmt.Errorf("%w: empty session id", ErrMalformedPayload)
	}
	return p.SID, nil
}

// Decode narrows an inbound frame into its typed event.
func Decode(b []byte) (model.Event, error) {
	var env model.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}

	switch env.Type {
	case model.EventRoomJoined:
		var id string
		if err := unmarshalPayload(env, &id); err != nil {
			return nil, err
		}
		if id == "" {
			return nil, fmt.Errorf("%w: %s without room id", ErrMalformedPayload, env.Type)
		}
		return model.RoomJoined{RoomID: id}, nil

	case model.EventRoomLeft:
		var id string
		if err := unmarshalPayload(env, &id); err != nil {
			return nil, err
		}
		return model.RoomLeft{RoomID: id}, nil

	case model.EventMessageReceived:
		var entry model.HistoryEntry
		if err := unmarshalPayload(env, &entry); err != nil {
			return nil, err
		}
		if entry.SenderID == "" {
			return nil, fmt.Errorf("%w: %s without sender", ErrMalformedPayload, env.Type)
		}
		return model.MessageReceived{Entry: entry}, nil

	case model.EventReadinessChanged:
		var ready bool
		if err := unmarshalPayload(env, &ready); err != nil {
			return nil, err
		}
		return model.ReadinessChanged{Ready: ready}, nil

	case model.EventDescriptorReceived:
		var ev model.DescriptorReceived
		if err := unmarshalPayload(env, &ev); err != nil {
			return nil, err
		}
		if ev.PeerID == "" || ev.Descriptor.Name == "" {
			return nil, fmt.Errorf("%w: incomplete %s", ErrMalformedPayload, env.Type)
		}
		return ev, nil

	case model.EventPeerLeft:
		var ev model.PeerLeft
		if err := unmarshalPayload(env, &ev); err != nil {
			return nil, err
		}
		if ev.PeerID == "" {
			return nil, fmt.Errorf("%w: %s without sender", ErrMalformedPayload, env.Type)
		}
		return ev, nil

	case model.EventAck:
		if env.Ack == "" {
			return nil, fmt.Errorf("%w: ack without id", ErrMalformedPayload)
		}
		ev := model.Acked{ID: env.Ack, OK: true}
		if len(env.Payload) > 0 {
			if err := unmarshalPayload(env, &ev); err != nil {
				return nil, err
			}
			ev.ID = env.Ack
		}
		return ev, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
}

func unmarshalPayload(env model.Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%w: %s without payload", ErrMalformedPayload, env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return errors.Join(ErrMalformedPayload, err)
	}
	return nil
}

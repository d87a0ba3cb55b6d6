package websocket

import (
	"encoding/json"
	"testing"

	"github.com/adwski/watchparty/client/model"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  model.Event
	}{
		{
			name:  "room joined",
			frame: `{"type":"room-joined","payload":"room1"}`,
			want:  model.RoomJoined{RoomID: "room1"},
		},
		{
			name:  "room left",
			frame: `{"type":"room-left","payload":"room1"}`,
			want:  model.RoomLeft{RoomID: "room1"},
		},
		{
			name:  "message",
			frame: `{"type":"message-received","payload":{"sid":"s1","username":"alice","message":"hi"}}`,
			want:  model.MessageReceived{Entry: model.HistoryEntry{SenderID: "s1", Username: "alice", Message: "hi"}},
		},
		{
			name:  "readiness",
			frame: `{"type":"readiness-changed","payload":true}`,
			want:  model.ReadinessChanged{Ready: true},
		},
		{
			name:  "descriptor",
			frame: `{"type":"descriptor-received","payload":{"sid":"s2","username":"bob","descriptor":{"type":"video/mp4","name":"a.mp4","hash":"h1"}}}`,
			want: model.DescriptorReceived{
				PeerID:     "s2",
				Username:   "bob",
				Descriptor: model.FileDescriptor{MediaType: "video/mp4", Name: "a.mp4", ContentHash: "h1"},
			},
		},
		{
			name:  "peer left",
			frame: `{"type":"peer-left","payload":{"sid":"s2"}}`,
			want:  model.PeerLeft{PeerID: "s2"},
		},
		{
			name:  "bare ack",
			frame: `{"type":"ack","ack":"id-1"}`,
			want:  model.Acked{ID: "id-1", OK: true},
		},
		{
			name:  "failed ack",
			frame: `{"type":"ack","ack":"id-1","payload":{"ok":false,"error":"not a member"}}`,
			want:  model.Acked{ID: "id-1", OK: false, Error: "not a member"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		err   error
	}{
		{"not json", `{`, ErrMalformedPayload},
		{"unknown type", `{"type":"server/whatever"}`, ErrUnknownEvent},
		{"room joined without id", `{"type":"room-joined","payload":""}`, ErrMalformedPayload},
		{"room joined wrong type", `{"type":"room-joined","payload":42}`, ErrMalformedPayload},
		{"message without sender", `{"type":"message-received","payload":{"message":"hi"}}`, ErrMalformedPayload},
		{"readiness without payload", `{"type":"readiness-changed"}`, ErrMalformedPayload},
		{"descriptor without name", `{"type":"descriptor-received","payload":{"sid":"s2","descriptor":{}}}`, ErrMalformedPayload},
		{"peer left without sender", `{"type":"peer-left","payload":{}}`, ErrMalformedPayload},
		{"ack without id", `{"type":"ack"}`, ErrMalformedPayload},
		{"session mid-connection", `{"type":"session","payload":{"sid":"s1"}}`, ErrUnknownEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDecodeSession(t *testing.T) {
	sid, err := DecodeSession([]byte(`{"type":"session","payload":{"sid":"s1"}}`))
	require.NoError(t, err)
	require.Equal(t, "s1", sid)

	_, err = DecodeSession([]byte(`{"type":"session","payload":{"sid":""}}`))
	require.ErrorIs(t, err, ErrMalformedPayload)

	_, err = DecodeSession([]byte(`{"type":"room-joined","payload":"r"}`))
	require.ErrorIs(t, err, ErrUnknownEvent)
}

func TestEncode(t *testing.T) {
	env, err := Encode(model.RequestJoinRoom, "", model.RoomRequest{Username: "alice", Room: "room1"})
	require.NoError(t, err)
	b, err := json.Marshal(env)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"join-room","payload":{"username":"alice","room":"room1"}}`, string(b))

	env, err = Encode(model.RequestUpdateFile, "", nil)
	require.NoError(t, err)
	b, err = json.Marshal(env)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"update-file"}`, string(b))

	env, err = Encode(model.RequestLeaveRoom, "id-1", model.RoomRequest{Username: "alice", Room: "room1"})
	require.NoError(t, err)
	require.Equal(t, "id-1", env.Ack)
}

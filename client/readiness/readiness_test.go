package readiness

import (
	"errors"
	"testing"

	"github.com/adwski/watchparty/client/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type sent struct {
	name    string
	payload any
}

type fakeBroadcaster struct {
	sent []sent
	err  error
}

func (f *fakeBroadcaster) Send(name string, payload any) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{name: name, payload: payload})
	return nil
}

func newNegotiator(t *testing.T) (*Negotiator, *fakeBroadcaster) {
	t.Helper()
	logger := zerolog.Nop()
	tx := &fakeBroadcaster{}
	return NewNegotiator(Config{Logger: &logger, Broadcaster: tx}), tx
}

var (
	scope = model.Scope{Username: "alice", Room: "room1"}
	mp4   = model.FileDescriptor{MediaType: "video/mp4", Name: "a.mp4", ContentHash: "h1"}
)

func TestNegotiator_HashScenario(t *testing.T) {
	n, tx := newNegotiator(t)

	changed, err := n.SetLocalDescriptor(mp4, scope)
	require.NoError(t, err)
	require.False(t, changed)
	require.False(t, n.AllReady(), "no peers yet")

	require.Len(t, tx.sent, 1)
	require.Equal(t, model.RequestDescriptorBroadcast, tx.sent[0].name)
	require.Equal(t, model.DescriptorAnnouncement{
		Username:   "alice",
		Room:       "room1",
		Descriptor: mp4,
	}, tx.sent[0].payload)

	require.True(t, n.OnRemoteDescriptor("bob", mp4))
	require.True(t, n.AllReady())

	other := mp4
	other.ContentHash = "h2"
	require.True(t, n.OnRemoteDescriptor("bob", other))
	require.False(t, n.AllReady())
	require.Len(t, tx.sent, 1, "remote updates never broadcast")
}

func TestNegotiator_EveryPeerMustMatch(t *testing.T) {
	n, _ := newNegotiator(t)
	_, err := n.SetLocalDescriptor(mp4, scope)
	require.NoError(t, err)

	n.OnRemoteDescriptor("bob", mp4)
	other := mp4
	other.ContentHash = "h2"
	n.OnRemoteDescriptor("carol", other)
	require.False(t, n.AllReady())

	require.True(t, n.OnPeerLeft("carol"))
	require.True(t, n.AllReady())

	require.True(t, n.OnPeerLeft("bob"))
	require.False(t, n.AllReady(), "empty peer set is never ready")

	require.False(t, n.OnPeerLeft("nobody"))
}

func TestNegotiator_RemoteBeforeLocal(t *testing.T) {
	n, _ := newNegotiator(t)

	n.OnRemoteDescriptor("bob", mp4)
	require.False(t, n.AllReady())

	changed, err := n.SetLocalDescriptor(mp4, scope)
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, n.AllReady())
}

func TestNegotiator_SendFailureKeepsState(t *testing.T) {
	n, tx := newNegotiator(t)
	tx.err = model.ErrNotConnected

	_, err := n.SetLocalDescriptor(mp4, scope)
	require.True(t, errors.Is(err, model.ErrNotConnected))
	require.Nil(t, n.Local())
}

func TestNegotiator_AdvisoryDoesNotGate(t *testing.T) {
	n, _ := newNegotiator(t)

	n.OnAdvisory(true)
	require.False(t, n.AllReady())
	require.True(t, n.View().Advisory)
}

func TestNegotiator_Reset(t *testing.T) {
	n, _ := newNegotiator(t)
	_, err := n.SetLocalDescriptor(mp4, scope)
	require.NoError(t, err)
	n.OnRemoteDescriptor("bob", mp4)
	require.True(t, n.AllReady())

	n.Reset()
	view := n.View()
	require.Nil(t, view.Local)
	require.Empty(t, view.Remote)
	require.False(t, view.AllReady)
}

func TestComputeAllReady(t *testing.T) {
	require.False(t, ComputeAllReady(nil, map[string]model.FileDescriptor{"bob": mp4}))
	require.False(t, ComputeAllReady(&mp4, nil))
	require.True(t, ComputeAllReady(&mp4, map[string]model.FileDescriptor{"bob": mp4, "carol": mp4}))
}

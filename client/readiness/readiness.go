package readiness

import (
	"github.com/adwski/watchparty/client/model"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

type (
	// Broadcaster announces the local descriptor to the room.
	Broadcaster interface {
		Send(name string, payload any) error
	}

	Config struct {
		Logger      *zerolog.Logger
		Broadcaster Broadcaster
	}

	// Negotiator tracks local and remote descriptors of the active room.
	// AllReady is the only signal that may enable playback; the server's
	// readiness-changed value is kept as advisory.
	Negotiator struct {
		tx     Broadcaster
		logger zerolog.Logger

		local    *model.FileDescriptor
		remote   map[string]model.FileDescriptor
		allReady bool
		advisory bool
	}
)

func NewNegotiator(cfg Config) *Negotiator {
	return &Negotiator{
		tx:     cfg.Broadcaster,
		logger: cfg.Logger.With().Str("component", "readiness").Logger(),
		remote: make(map[string]model.FileDescriptor),
	}
}

// ComputeAllReady is true iff local is set, there is at least one peer
// and every peer's descriptor matches local.
func ComputeAllReady(local *model.FileDescriptor, remote map[string]model.FileDescriptor) bool {
	if local == nil || len(remote) == 0 {
		return false
	}
	return lo.EveryBy(lo.Values(remote), func(d model.FileDescriptor) bool {
		return local.Matches(d)
	})
}

// SetLocalDescriptor broadcasts d to the room and, once it is sent,
// makes it the local descriptor. It reports whether AllReady changed.
func (n *Negotiator) SetLocalDescriptor(d model.FileDescriptor, scope model.Scope) (bool, error) {
	err := n.tx.Send(model.RequestDescriptorBroadcast, model.DescriptorAnnouncement{
		Username:   scope.Username,
		Room:       scope.Room,
		Descriptor: d,
	})
	if err != nil {
		return false, err
	}
	n.local = &d
	n.logger.Debug().
		Str("roomID", scope.Room).
		Str("name", d.Name).
		Str("hash", d.ContentHash).
		Msg("local descriptor set")
	return n.recompute(), nil
}

// OnRemoteDescriptor upserts a peer's descriptor.
func (n *Negotiator) OnRemoteDescriptor(peerID string, d model.FileDescriptor) bool {
	n.remote[peerID] = d
	n.logger.Debug().
		Str("peerID", peerID).
		Str("name", d.Name).
		Str("hash", d.ContentHash).
		Msg("remote descriptor updated")
	return n.recompute()
}

// OnPeerLeft forgets a peer.
func (n *Negotiator) OnPeerLeft(peerID string) bool {
	if _, ok := n.remote[peerID]; !ok {
		return false
	}
	delete(n.remote, peerID)
	n.logger.Debug().Str("peerID", peerID).Msg("peer removed")
	return n.recompute()
}

// OnAdvisory records the server's view of group readiness. It does not
// affect AllReady.
func (n *Negotiator) OnAdvisory(ready bool) {
	if ready != n.allReady {
		n.logger.Warn().
			Bool("advisory", ready).
			Bool("allReady", n.allReady).
			Msg("server readiness disagrees with local computation")
	}
	n.advisory = ready
}

func (n *Negotiator) recompute() bool {
	prev := n.allReady
	n.allReady = ComputeAllReady(n.local, n.remote)
	if prev != n.allReady {
		n.logger.Info().
			Bool("allReady", n.allReady).
			Int("peers", len(n.remote)).
			Msg("readiness changed")
	}
	return prev != n.allReady
}

// Reset discards all descriptors.
func (n *Negotiator) Reset() {
	n.local = nil
	n.remote = make(map[string]model.FileDescriptor)
	n.allReady = false
	n.advisory = false
}

func (n *Negotiator) AllReady() bool {
	return n.allReady
}

func (n *Negotiator) Local() *model.FileDescriptor {
	if n.local == nil {
		return nil
	}
	d := *n.local
	return &d
}

func (n *Negotiator) View() model.ReadinessView {
	remote := make(map[string]model.FileDescriptor, len(n.remote))
	for id, d := range n.remote {
		remote[id] = d
	}
	return model.ReadinessView{
		Local:    n.Local(),
		Remote:   remote,
		AllReady: n.allReady,
		Advisory: n.advisory,
	}
}

package service

import (
	"context"
	"errors"
	"sync"

	"github.com/adwski/watchparty/client/filesync"
	"github.com/adwski/watchparty/client/history"
	"github.com/adwski/watchparty/client/model"
	"github.com/adwski/watchparty/client/readiness"
	"github.com/adwski/watchparty/client/session"
	_switch "github.com/adwski/watchparty/client/switch"
	"github.com/rs/zerolog"
)

var (
	ErrJoin       = errors.New("unable to join room")
	ErrLeave      = errors.New("unable to leave room")
	ErrSend       = errors.New("unable to send message")
	ErrSelectFile = errors.New("unable to select file")
	ErrUpdateFile = errors.New("unable to update file")
)

type (
	Transport interface {
		Send(name string, payload any) error
		Request(name string, payload any) (string, error)
	}

	// Player is the media sink. It is only ever told whether playback is allowed.
	Player interface {
		SetPlaybackEnabled(enabled bool)
	}

	Config struct {
		Logger    *zerolog.Logger
		Transport Transport
		Wire      model.Wire
		Player    Player
		Username  string
	}

	// Service runs every core component on a single goroutine. Transport
	// events and user actions are both serialized through Run, so the
	// components themselves carry no locks.
	Service struct {
		rx        <-chan model.Inbound
		sw        *_switch.Switch
		session   *session.Manager
		history   *history.Log
		readiness *readiness.Negotiator
		files     *filesync.Coordinator
		player    Player

		actions     chan func()
		subscribers []func(model.Snapshot)
		canPlay     bool

		logger zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	rn := readiness.NewNegotiator(readiness.Config{
		Logger:      cfg.Logger,
		Broadcaster: cfg.Transport,
	})
	svc := &Service{
		rx: cfg.Wire.RX,
		sw: _switch.NewSwitch(cfg.Logger),
		session: session.NewManager(session.Config{
			Logger:   cfg.Logger,
			Sender:   cfg.Transport,
			Username: cfg.Username,
		}),
		history:   history.NewLog(),
		readiness: rn,
		files: filesync.NewCoordinator(filesync.Config{
			Logger:     cfg.Logger,
			Negotiator: rn,
			Sender:     cfg.Transport,
		}),
		player:  cfg.Player,
		actions: make(chan func()),
		logger:  cfg.Logger.With().Str("component", "core").Logger(),
	}
	if svc.player == nil {
		svc.player = nopPlayer{}
	}
	return svc
}

// Subscribe registers a render callback. It must be called before Run;
// callbacks are invoked on the loop goroutine.
func (svc *Service) Subscribe(fn func(model.Snapshot)) {
	svc.subscribers = append(svc.subscribers, fn)
}

func (svc *Service) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer func() {
		svc.logger.Debug().Msg("core loop stopped")
		wg.Done()
	}()

	svc.logger.Debug().Msg("core loop started")
	for {
		select {
		case <-ctx.Done():
			svc.sw.Detach()
			svc.player.SetPlaybackEnabled(false)
			return
		case in := <-svc.rx:
			svc.handle(in)
			svc.publish()
		case act := <-svc.actions:
			act()
			svc.publish()
		}
	}
}

func (svc *Service) handle(in model.Inbound) {
	switch ev := in.Event.(type) {
	case model.Connected:
		if epoch, ok := svc.sw.Epoch(); ok && in.Epoch < epoch {
			svc.logger.Debug().Uint64("epoch", in.Epoch).Msg("stale connect dropped")
			return
		}
		svc.sw.Detach()
		svc.resetRoom()
		svc.session.OnConnect(ev.SelfID)
		svc.sw.Attach(in.Epoch, svc.listeners())

	case model.Disconnected:
		if epoch, ok := svc.sw.Epoch(); !ok || epoch != in.Epoch {
			svc.logger.Debug().Uint64("epoch", in.Epoch).Msg("stale disconnect dropped")
			return
		}
		svc.sw.Detach()
		svc.resetRoom()
		svc.session.OnDisconnect()

	default:
		svc.sw.Forward(in)
	}
}

func (svc *Service) listeners() map[string]_switch.Handler {
	return map[string]_switch.Handler{
		model.EventRoomJoined: func(e model.Event) {
			if svc.session.OnRoomJoined(e.(model.RoomJoined).RoomID) {
				svc.resetRoom()
			}
		},
		model.EventRoomLeft: func(e model.Event) {
			svc.followRoom(func() {
				svc.session.OnRoomLeft(e.(model.RoomLeft).RoomID)
			})
		},
		model.EventMessageReceived: func(e model.Event) {
			entry := svc.history.Append(e.(model.MessageReceived).Entry)
			svc.logger.Trace().
				Str("sid", entry.SenderID).
				Uint64("index", entry.SequenceIndex).
				Msg("message appended")
		},
		model.EventReadinessChanged: func(e model.Event) {
			svc.readiness.OnAdvisory(e.(model.ReadinessChanged).Ready)
		},
		model.EventDescriptorReceived: func(e model.Event) {
			ev := e.(model.DescriptorReceived)
			if ev.PeerID == svc.session.SelfID() {
				return
			}
			svc.readiness.OnRemoteDescriptor(ev.PeerID, ev.Descriptor)
			svc.files.OnReadiness(svc.readiness.AllReady())
		},
		model.EventPeerLeft: func(e model.Event) {
			svc.readiness.OnPeerLeft(e.(model.PeerLeft).PeerID)
			svc.files.OnReadiness(svc.readiness.AllReady())
		},
		model.EventAck: func(e model.Event) {
			svc.followRoom(func() {
				if ack := e.(model.Acked); !svc.session.OnAck(ack) {
					svc.logger.Debug().Str("ack", ack.ID).Msg("unmatched ack")
				}
			})
		},
	}
}

// followRoom runs fn and drops room-scoped state if fn moved the
// session to another room.
func (svc *Service) followRoom(fn func()) {
	prev := svc.session.CurrentRoomID()
	fn()
	if svc.session.CurrentRoomID() != prev {
		svc.resetRoom()
	}
}

func (svc *Service) resetRoom() {
	svc.history.Reset()
	svc.readiness.Reset()
	svc.files.Reset()
}

func (svc *Service) publish() {
	snap := svc.snapshot()
	if snap.CanPlay != svc.canPlay {
		svc.canPlay = snap.CanPlay
		svc.player.SetPlaybackEnabled(snap.CanPlay)
		svc.logger.Info().Bool("enabled", snap.CanPlay).Msg("playback gate changed")
	}
	for _, fn := range svc.subscribers {
		fn(snap)
	}
}

func (svc *Service) snapshot() model.Snapshot {
	return model.Snapshot{
		SelfID:      svc.session.SelfID(),
		Session:     svc.session.State().String(),
		CurrentRoom: svc.session.CurrentRoomID(),
		PendingRoom: svc.session.PendingRoomID(),
		History:     svc.history.Render(svc.session.SelfID()),
		Readiness:   svc.readiness.View(),
		FileSync:    svc.files.State().String(),
		CanPlay:     svc.readiness.AllReady(),
	}
}

// do runs fn on the loop goroutine and waits for its result.
func (svc *Service) do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	act := func() {
		res <- fn()
	}
	select {
	case svc.actions <- act:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (svc *Service) JoinRoom(ctx context.Context, roomID string) error {
	return svc.do(ctx, func() error {
		if err := svc.session.RequestJoin(roomID); err != nil {
			return errors.Join(ErrJoin, err)
		}
		return nil
	})
}

// LeaveRoom asks to leave the current shared room. Room state is kept
// until the server confirms, so a refused leave loses nothing.
func (svc *Service) LeaveRoom(ctx context.Context) error {
	return svc.do(ctx, func() error {
		if err := svc.session.Leave(); err != nil {
			return errors.Join(ErrLeave, err)
		}
		return nil
	})
}

func (svc *Service) SendMessage(ctx context.Context, text string) error {
	return svc.do(ctx, func() error {
		if err := svc.session.SendMessage(text); err != nil {
			return errors.Join(ErrSend, err)
		}
		return nil
	})
}

func (svc *Service) SelectFile(ctx context.Context, h filesync.FileHandle) error {
	return svc.do(ctx, func() error {
		if !svc.session.Connected() {
			return errors.Join(ErrSelectFile, model.ErrNotConnected)
		}
		if err := svc.files.SelectFile(h, svc.session.Scope()); err != nil {
			return errors.Join(ErrSelectFile, err)
		}
		return nil
	})
}

func (svc *Service) UpdateFile(ctx context.Context, h filesync.FileHandle) error {
	return svc.do(ctx, func() error {
		if !svc.session.Connected() {
			return errors.Join(ErrUpdateFile, model.ErrNotConnected)
		}
		if err := svc.files.UpdateFile(h, svc.session.Scope()); err != nil {
			return errors.Join(ErrUpdateFile, err)
		}
		return nil
	})
}

// Snapshot returns the current render state.
func (svc *Service) Snapshot(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	err := svc.do(ctx, func() error {
		snap = svc.snapshot()
		return nil
	})
	return snap, err
}

type nopPlayer struct{}

func (nopPlayer) SetPlaybackEnabled(bool) {}

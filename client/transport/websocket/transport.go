package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/adwski/watchparty/client/model"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultReconnectAttempts = 3
	defaultTimeout           = 10 * time.Second
	defaultReconnectDelay    = time.Second
	defaultSendQueueSize     = 64

	defaultWebsocketReadBufferSize     = 10000
	defaultWebsocketWriteBufferSize    = 10000
	defaultWebSocketMaxMessageSize     = 16384
	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second

	// defaultPongWait - defaultPingInterval == is how long we give server to respond
	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 7 * time.Second
)

var (
	ErrDial               = errors.New("unable to dial signaling server")
	ErrHandshake          = errors.New("session handshake failed")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrBackpressure       = errors.New("send queue is full")
	ErrEncode             = errors.New("unable to encode outgoing message")
)

type (
	Config struct {
		Logger            *zerolog.Logger
		Wire              model.Wire
		URL               string
		ReconnectAttempts int
		Timeout           time.Duration
		ReconnectDelay    time.Duration
	}

	// Transport owns the websocket connection lifecycle. Every successful
	// handshake starts a new epoch; inbound events are tagged with it so
	// consumers can discard frames from a connection that is already gone.
	Transport struct {
		dialer   *websocket.Dialer
		rx       chan<- model.Inbound
		url      string
		attempts int
		timeout  time.Duration
		delay    time.Duration

		mx    *sync.RWMutex
		tx    chan model.Envelope // nil while disconnected
		epoch uint64

		logger zerolog.Logger
	}
)

func NewTransport(cfg Config) *Transport {
	t := &Transport{
		logger:   cfg.Logger.With().Str("component", "transport").Logger(),
		rx:       cfg.Wire.RX,
		url:      cfg.URL,
		attempts: cfg.ReconnectAttempts,
		timeout:  cfg.Timeout,
		delay:    cfg.ReconnectDelay,
		mx:       &sync.RWMutex{},
	}
	if t.attempts <= 0 {
		t.attempts = defaultReconnectAttempts
	}
	if t.timeout <= 0 {
		t.timeout = defaultTimeout
	}
	if t.delay <= 0 {
		t.delay = defaultReconnectDelay
	}
	t.dialer = &websocket.Dialer{
		HandshakeTimeout: t.timeout,
		ReadBufferSize:   defaultWebsocketReadBufferSize,
		WriteBufferSize:  defaultWebsocketWriteBufferSize,
	}
	return t
}

// Connected reports whether a session handshake has completed and the
// connection is still up.
func (t *Transport) Connected() bool {
	t.mx.RLock()
	defer t.mx.RUnlock()
	return t.tx != nil
}

// Send enqueues a fire-and-forget request.
func (t *Transport) Send(name string, payload any) error {
	return t.enqueue(name, "", payload)
}

// Request enqueues a request that the server acknowledges with an "ack"
// frame carrying the returned id.
func (t *Transport) Request(name string, payload any) (string, error) {
	id := uuid.NewString()
	if err := t.enqueue(name, id, payload); err != nil {
		return "", err
	}
	return id, nil
}

func (t *Transport) enqueue(name, ack string, payload any) error {
	env, err := Encode(name, ack, payload)
	if err != nil {
		return errors.Join(ErrEncode, err)
	}

	t.mx.RLock()
	defer t.mx.RUnlock()
	if t.tx == nil {
		return model.ErrNotConnected
	}
	select {
	case t.tx <- env:
	default:
		return ErrBackpressure
	}
	t.logger.Trace().Str("type", name).Uint64("epoch", t.epoch).Msg("request queued")
	return nil
}

// Run keeps the connection alive until ctx is done. Consecutive failed
// connection attempts beyond the configured limit are reported to errc.
func (t *Transport) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		t.logger.Debug().Msg("transport stopped")
		wg.Done()
	}()

	failures := 0
	for {
		connected, err := t.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			failures = 0
		} else {
			failures++
			t.logger.Warn().Err(err).
				Int("attempt", failures).
				Int("maxAttempts", t.attempts).
				Msg("connection attempt failed")
			if failures > t.attempts {
				errc <- errors.Join(ErrReconnectExhausted, err)
				return
			}
		}

		timer := time.NewTimer(t.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session runs a single connection epoch. It reports whether the
// handshake succeeded.
func (t *Transport) session(ctx context.Context) (bool, error) {
	dialCtx, dialCancel := context.WithTimeout(ctx, t.timeout)
	conn, _, err := t.dialer.DialContext(dialCtx, t.url, nil)
	dialCancel()
	if err != nil {
		return false, errors.Join(ErrDial, err)
	}

	selfID, err := handshake(conn, t.timeout)
	if err != nil {
		webSocketCloser(conn, &t.logger)
		return false, errors.Join(ErrHandshake, err)
	}

	tx := make(chan model.Envelope, defaultSendQueueSize)
	t.mx.Lock()
	t.epoch++
	epoch := t.epoch
	t.tx = tx
	t.mx.Unlock()

	logger := t.logger.With().
		Uint64("epoch", epoch).
		Str("selfID", selfID).
		Logger()
	logger.Info().Str("url", t.url).Msg("connected")

	deliver(ctx, t.rx, model.Inbound{Epoch: epoch, Event: model.Connected{SelfID: selfID}})

	connCtx, connCancel := context.WithCancel(ctx)
	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func() {
		webSocketReceiver(connCtx, wg, conn, epoch, t.rx, &logger)
		connCancel()
	}()
	go func() {
		webSocketSender(connCtx, wg, conn, tx, &logger)
		connCancel()
	}()
	go func() {
		// unblocks a receiver parked in ReadMessage
		<-connCtx.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()

	wg.Wait()

	t.mx.Lock()
	t.tx = nil
	t.mx.Unlock()

	webSocketCloser(conn, &logger)
	logger.Warn().Msg("disconnected")

	if ctx.Err() == nil {
		deliver(ctx, t.rx, model.Inbound{Epoch: epoch, Event: model.Disconnected{}})
	}
	return true, nil
}

func handshake(conn *websocket.Conn, timeout time.Duration) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	selfID, err := DecodeSession(msg)
	if err != nil {
		return "", err
	}
	return selfID, conn.SetReadDeadline(time.Time{})
}

func deliver(ctx context.Context, rx chan<- model.Inbound, in model.Inbound) bool {
	select {
	case rx <- in:
		return true
	case <-ctx.Done():
		return false
	}
}

func webSocketSender(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	tx <-chan model.Envelope,
	logger *zerolog.Logger,
) {
	pingTicker := time.NewTicker(defaultPingInterval)
	defer func() {
		pingTicker.Stop()
		wg.Done()
	}()
SendLoop:
	for {
		select {
		case <-ctx.Done():
			break SendLoop
		case <-pingTicker.C:
			wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			wsErr = conn.WriteMessage(websocket.PingMessage, []byte{})
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to send ping")
				break SendLoop
			}
			logger.Trace().Msg("ping sent")

		case env := <-tx:
			b, wsErr := json.Marshal(&env)
			if wsErr != nil {
				logger.Error().Err(wsErr).Str("type", env.Type).Msg("failed to marshall outgoing message")
				continue
			}

			wsErr = conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			if wsErr = conn.WriteMessage(websocket.TextMessage, b); wsErr != nil {
				logger.Error().Err(wsErr).Str("type", env.Type).Msg("failed to write outgoing message")
				break SendLoop
			}
			logger.Trace().Str("type", env.Type).Msg("message sent")
		}
	}
}

func webSocketReceiver(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	epoch uint64,
	rx chan<- model.Inbound,
	logger *zerolog.Logger,
) {
	defer wg.Done()

	conn.SetReadLimit(defaultWebSocketMaxMessageSize)
	readDeadLineFunc := func(deadline time.Duration) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	}
	conn.SetPongHandler(func(string) error {
		logger.Trace().Msg("got pong")
		return readDeadLineFunc(defaultPongWait)
	})
	err := readDeadLineFunc(defaultPongWait)
	if err != nil {
		logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return
	}

RecvLoop:
	for {
		select {
		case <-ctx.Done():
			break RecvLoop
		default:
			_, msg, wsErr := conn.ReadMessage()
			if wsErr != nil {
				if ctx.Err() != nil {
					break RecvLoop
				}
				if websocket.IsCloseError(wsErr,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway) {
					logger.Warn().Err(wsErr).Msg("connection closed")
				} else {
					logger.Error().Err(wsErr).Msg("unexpected error during receive")
				}
				break RecvLoop
			}
			// any frame proves the peer is alive
			if wsErr = readDeadLineFunc(defaultPongWait); wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket read deadline")
				break RecvLoop
			}

			ev, wsErr := Decode(msg)
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("dropping incoming message")
				continue
			}
			logger.Trace().Str("type", ev.Name()).Msg("message received")
			if !deliver(ctx, rx, model.Inbound{Epoch: epoch, Event: ev}) {
				break RecvLoop
			}
		}
	}
}

func webSocketCloser(conn *websocket.Conn, logger *zerolog.Logger) {
	wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketCloseWriteDeadline))
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to set websocket write deadline during closing")
	} else {
		wsErr = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if wsErr != nil && !errors.Is(wsErr, websocket.ErrCloseSent) {
			logger.Debug().Err(wsErr).Msg("failed to send close frame")
		}
	}
	wsErr = conn.Close()
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to close websocket connection")
	}
}

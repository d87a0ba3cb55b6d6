package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/adwski/watchparty/client/filesync"
	"github.com/adwski/watchparty/client/model"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second
	defaultMaxBodySize      = 1 << 16
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type Core interface {
	JoinRoom(ctx context.Context, roomID string) error
	LeaveRoom(ctx context.Context) error
	SendMessage(ctx context.Context, text string) error
	SelectFile(ctx context.Context, h filesync.FileHandle) error
	UpdateFile(ctx context.Context, h filesync.FileHandle) error
	Snapshot(ctx context.Context) (model.Snapshot, error)
}

type JoinRequest struct {
	RoomID string `json:"room_id"`
}

type MessageRequest struct {
	Message string `json:"message"`
}

type FileRequest struct {
	Path string `json:"path"`
}

type GenericResponse struct {
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Server is the local API the view layer talks to.
type Server struct {
	logger zerolog.Logger
	core   Core
	*http.Server
}

type Config struct {
	Logger     *zerolog.Logger
	Core       Core
	ListenAddr string
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "api-server").Logger(),
		core:   cfg.Core,
	}

	r := http.NewServeMux()
	r.HandleFunc("GET /api/state", srv.state)
	r.HandleFunc("POST /api/room", srv.joinRoom)
	r.HandleFunc("DELETE /api/room", srv.leaveRoom)
	r.HandleFunc("POST /api/message", srv.sendMessage)
	r.HandleFunc("POST /api/file", srv.selectFile)
	r.HandleFunc("PUT /api/file", srv.updateFile)
	r.HandleFunc("OPTIONS /", corsHandler)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	return srv
}

func corsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) state(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	snap, err := srv.core.Snapshot(r.Context())
	if err != nil {
		srv.writeError(w, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, &GenericResponse{Data: snap})
}

func (srv *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	var req JoinRequest
	if !srv.readJSON(w, r, &req) {
		return
	}
	srv.logger.Trace().Any("request", req).Msg("got join request")
	srv.reply(w, srv.core.JoinRoom(r.Context(), req.RoomID))
}

func (srv *Server) leaveRoom(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	srv.logger.Trace().Msg("got leave request")
	srv.reply(w, srv.core.LeaveRoom(r.Context()))
}

func (srv *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	var req MessageRequest
	if !srv.readJSON(w, r, &req) {
		return
	}
	srv.reply(w, srv.core.SendMessage(r.Context(), req.Message))
}

func (srv *Server) selectFile(w http.ResponseWriter, r *http.Request) {
	srv.file(w, r, srv.core.SelectFile)
}

func (srv *Server) updateFile(w http.ResponseWriter, r *http.Request) {
	srv.file(w, r, srv.core.UpdateFile)
}

func (srv *Server) file(
	w http.ResponseWriter,
	r *http.Request,
	action func(context.Context, filesync.FileHandle) error,
) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	var req FileRequest
	if !srv.readJSON(w, r, &req) {
		return
	}
	srv.logger.Trace().Any("request", req).Msg("got file request")
	h, err := filesync.OpenLocalFile(req.Path)
	if err != nil {
		srv.writeError(w, err)
		return
	}
	srv.reply(w, action(r.Context(), h))
}

func (srv *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, defaultMaxBodySize))
	defer func() {
		_ = r.Body.Close()
	}()
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	if err = json.Unmarshal(body, v); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	return true
}

func (srv *Server) reply(w http.ResponseWriter, err error) {
	if err != nil {
		srv.writeError(w, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, &GenericResponse{Message: "OK"})
}

func (srv *Server) writeError(w http.ResponseWriter, err error) {
	srv.logger.Debug().Err(err).Msg("request failed")
	srv.writeJSON(w, statusFor(err), &GenericResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, model.ErrDescriptorCompute):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (srv *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	if _, err = w.Write(b); err != nil {
		srv.logger.Error().Err(err).Msg("failed to write response")
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error, 1)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}

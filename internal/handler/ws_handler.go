package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/session"
	"github.com/stemsi/exstem-assessment/internal/validator"
	ws "github.com/stemsi/exstem-assessment/internal/websocket"
	"golang.org/x/time/rate"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

const (
	msgInvalidInput  = "invalid input"
	msgSessionClosed = "session closed"
	msgRateLimited   = "too many commands"
)

// WSHandler hosts the take-assessment view over WebSocket.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
	commandRate    rate.Limit
	commandBurst   int
	pongWait       time.Duration
	pingPeriod     time.Duration

	// base parents every live attempt; CloseAll cancels it.
	base     context.Context
	closeAll context.CancelFunc
	mu       sync.Mutex
	active   sync.WaitGroup
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string, commandsPerSecond int) *WSHandler {
	if commandsPerSecond <= 0 {
		commandsPerSecond = 20
	}
	base, closeAll := context.WithCancel(context.Background())
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
		commandRate:    rate.Limit(commandsPerSecond),
		commandBurst:   commandsPerSecond * 2,
		pongWait:       ws.PongWait,
		pingPeriod:     ws.PingPeriod,
		base:           base,
		closeAll:       closeAll,
	}
}

// CloseAll stops every live attempt and refuses new ones. Connections are
// hijacked, so http.Server.Shutdown does not reach them; register this with
// RegisterOnShutdown.
func (h *WSHandler) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeAll()
}

// admit registers a new attempt unless CloseAll has run.
func (h *WSHandler) admit() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.base.Err() != nil {
		return false
	}
	h.active.Add(1)
	return true
}

// Wait blocks until every attempt opened by TakeAssessment has torn down,
// including in-flight result notifications, or until ctx is done.
func (h *WSHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TakeAssessment godoc
// WS /ws/v1/student/assessments/:assessment_id/take
// Starts a fresh timed session for the connection. Closing the connection
// stops the countdown; the session is not resumable.
func (h *WSHandler) TakeAssessment(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assessmentID, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if !h.admit() {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal)
		return
	}
	defer h.active.Done()

	// Hooks only fire once Run starts, which is after the upgrade.
	var conn *ws.Conn
	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("assessment_id", assessmentID.String()).
		Logger()

	att, err := h.attemptService.Open(c.Request.Context(), assessmentID, claims.UserID, service.AttemptHooks{
		OnTick: func(st session.State) {
			h.send(conn, wsLog, ws.TickResponse{
				Event:            ws.EventTick,
				RemainingSeconds: st.RemainingSeconds,
				LowTime:          st.LowTime,
			})
		},
		OnResult: func(res session.Result) {
			h.send(conn, wsLog, ws.NewGradedResponse(res))
		},
		OnNotifyFailure: func(error) {
			h.send(conn, wsLog, ws.WarningResponse{
				Event:   ws.EventWarning,
				Code:    string(response.ErrNotificationFailed),
				Message: response.GetMessage(response.ErrNotificationFailed),
			})
		},
	})
	if err != nil {
		wsLog.Warn().Err(err).Msg("Cannot open attempt")
		failFromError(c, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		wsLog.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn = ws.NewConn(raw, h.pongWait)
	defer conn.Close()

	wsLog = wsLog.With().Str("attempt_id", att.ID).Logger()
	wsLog.Info().Msg("Student connected")

	ctx, cancel := context.WithCancel(h.base)
	// Closing the socket is the only way to unblock the reader on shutdown.
	context.AfterFunc(ctx, func() { _ = conn.Close() })
	go conn.KeepAlive(ctx, h.pingPeriod)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := att.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			wsLog.Error().Err(err).Msg("Attempt loop failed")
		}
	}()
	// The countdown never outlives the view, and the view is not done until
	// the result notification has settled.
	defer func() {
		cancel()
		<-runDone
		att.Wait()
	}()

	exec := func(fn func(*session.Session) error) error {
		err := att.Do(ctx, fn)
		if errors.Is(err, session.ErrRunnerStopped) {
			// The loop has exited, so the session has no other caller.
			return fn(att.Session())
		}
		return err
	}

	writeState := func(s *session.Session) error {
		h.send(conn, wsLog, ws.NewStateResponse(s))
		return nil
	}
	_ = exec(writeState)

	limiter := rate.NewLimiter(h.commandRate, h.commandBurst)

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if !limiter.Allow() {
			h.send(conn, wsLog, ws.ErrorResponse{Event: ws.EventError, Error: msgRateLimited})
			continue
		}

		var req ws.Request
		if fields := validator.Decode(data, &req); fields != nil {
			conn.WriteFieldErrors(msgInvalidInput, fields)
			continue
		}

		switch req.Action {
		case ws.ActionPing:
			h.send(conn, wsLog, ws.PongResponse{Event: ws.EventPong})
			continue
		case ws.ActionState:
			err = exec(writeState)
		case ws.ActionSubmit:
			err = exec(func(s *session.Session) error {
				// The first submit is answered by OnResult.
				if res, first := s.Submit(); !first {
					h.send(conn, wsLog, ws.NewGradedResponse(res))
				}
				return nil
			})
		default:
			err = exec(func(s *session.Session) error {
				if err := apply(s, &req); err != nil {
					return err
				}
				return writeState(s)
			})
		}

		switch {
		case err == nil:
		case errors.Is(err, session.ErrInvalidInput):
			wsLog.Debug().Err(err).Msg("Rejected command")
			h.send(conn, wsLog, ws.ErrorResponse{Event: ws.EventError, Error: msgInvalidInput})
		case errors.Is(err, session.ErrSessionClosed):
			h.send(conn, wsLog, ws.ErrorResponse{Event: ws.EventError, Error: msgSessionClosed})
		default:
			wsLog.Error().Err(err).Str("action", string(req.Action)).Msg("Command failed")
			return
		}
	}
}

// apply maps a navigation or answer command onto the session.
func apply(s *session.Session, req *ws.Request) error {
	switch req.Action {
	case ws.ActionSelect:
		return s.SelectAnswer(req.QID, req.OptionID)
	case ws.ActionFlag:
		return s.ToggleFlag(req.QID)
	case ws.ActionNext:
		return s.Next()
	case ws.ActionPrev:
		return s.Previous()
	case ws.ActionGoTo:
		return s.GoTo(*req.Index)
	}
	return session.ErrInvalidInput
}

func (h *WSHandler) send(conn *ws.Conn, log zerolog.Logger, v interface{}) {
	if conn == nil {
		return
	}
	if err := conn.WriteTyped(v); err != nil {
		log.Debug().Err(err).Msg("Write failed")
	}
}

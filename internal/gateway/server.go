package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/squadlink/voice-backend/internal/auth"
	"github.com/squadlink/voice-backend/internal/presence"
	"github.com/squadlink/voice-backend/internal/sfu"
	"github.com/squadlink/voice-backend/internal/user"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server owns the websocket endpoint: it authenticates the socket,
// pumps messages and dispatches media ops into the session engine.
type Server struct {
	validator  *auth.JWTValidator
	hub        *Hub
	registry   *sfu.Registry
	reconciler *sfu.Reconciler
	monitor    *sfu.Monitor
	presence   *presence.Store
	users      *user.Store
	logger     *slog.Logger
}

func NewServer(validator *auth.JWTValidator, hub *Hub, registry *sfu.Registry, reconciler *sfu.Reconciler, monitor *sfu.Monitor, presenceStore *presence.Store, users *user.Store, logger *slog.Logger) *Server {
	return &Server{
		validator:  validator,
		hub:        hub,
		registry:   registry,
		reconciler: reconciler,
		monitor:    monitor,
		presence:   presenceStore,
		users:      users,
		logger:     logger.With("component", "gateway"),
	}
}

// HandleConnection upgrades the request and runs the connection to
// completion. The token rides a query param since browsers cannot set
// headers on websocket dials.
func (s *Server) HandleConnection(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		token = c.Request().Header.Get("Authorization")
	}
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}

	claims, err := s.validator.Validate(token)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return err
	}

	conn := newConn(ws, claims.UserID, s.logger)
	s.hub.Register(conn)
	s.logger.Info("user connected", "user_id", claims.UserID)

	go conn.writePump()
	conn.readPump(s)

	s.teardown(conn)
	s.logger.Info("user disconnected", "user_id", claims.UserID)
	return nil
}

// teardown releases everything the connection held: hub registration,
// presence and the user's media state. Room membership in the database
// survives so the user can reconnect.
func (s *Server) teardown(conn *Conn) {
	s.hub.Unregister(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.presence.Disconnect(ctx, conn.UserID()); err != nil {
		s.logger.Error("presence disconnect failed", "error", err, "user_id", conn.UserID())
	}

	if roomID := conn.RoomID(); roomID != "" {
		s.registry.RemoveUser(roomID, conn.UserID())
		s.reconciler.Trigger(roomID)
	}
}

func (s *Server) dispatch(conn *Conn, msg *Message) {
	switch msg.Op {
	case OpSubscribe:
		s.handleSubscribe(conn, msg)
	case OpHeartbeat:
		s.handleHeartbeat(conn, msg)
	case OpTransportCreate:
		s.handleTransportCreate(conn, msg)
	case OpTransportConnect:
		s.handleTransportConnect(conn, msg)
	case OpTransportAnswer:
		s.handleTransportAnswer(conn, msg)
	case OpProduce:
		s.handleProduce(conn, msg)
	case OpConsume:
		s.handleConsume(conn, msg)
	case OpConsumerResume:
		s.handleConsumerResume(conn, msg)
	default:
		conn.Send(NewError(msg.Ref, "unknown_op", "unknown operation"))
	}
}

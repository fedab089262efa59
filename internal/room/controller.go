package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/intellimeet/signal-server/internal/insights"
	"github.com/intellimeet/signal-server/pkg/protocol"
	"github.com/intellimeet/signal-server/pkg/variables"
	"github.com/intellimeet/signal-server/pkg/wsutils"
)

type signalController struct {
	roomService  *Service
	insights     *insights.Service
	notifier     *Notifier
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
}

// SignalControllerAttach is the signaling transport endpoint. Identity is
// carried in the path as (roomId, userId, percent-encoded username); a
// connection with an undecodable or blank name is refused with a policy
// close before any room mutation happens.
func (ctrl *signalController) SignalControllerAttach(ctx echo.Context) error {
	roomID := ctx.Param("roomId")
	userID := ctx.Param("userId")
	usernameEncoded := ctx.Param("username")

	conn, err := ctrl.upgrader.Upgrade(ctx.Response().Writer, ctx.Request(), nil)
	if err != nil {
		ctrl.logger.Error(fmt.Sprintf("Unable upgrade request %+v", ctx.Request()))
		return err
	}

	w := wsutils.NewThreadSafeWriter(conn, ctrl.writeTimeout)

	username, err := url.PathUnescape(usernameEncoded)
	if err != nil {
		ctrl.logger.Error("username decode failed",
			slog.String("encoded", usernameEncoded),
			slog.String("err", err.Error()))
		return w.ClosePolicyViolation("Invalid username encoding")
	}
	if strings.TrimSpace(username) == "" {
		ctrl.logger.Error("empty username refused",
			slog.String("room", roomID),
			slog.String("user", userID))
		return w.ClosePolicyViolation("Username cannot be empty")
	}

	if err := ctrl.roomService.Connect(roomID, userID, username, w); err != nil {
		return w.ClosePolicyViolation(err.Error())
	}

	// The single cleanup path for this connection: clean close, transport
	// error, and handler panic all funnel through here exactly once.
	defer func() {
		ctrl.roomService.Disconnect(roomID, userID, w)
		_ = w.Close()
		ctrl.logger.Info("connection finalized",
			slog.String("room", roomID),
			slog.String("user", userID))
	}()

	ctrl.readLoop(ctx.Request().Context(), w, roomID, userID, username)
	return nil
}

// readLoop routes inbound envelopes until the transport closes. Malformed
// payloads are dropped; they are never fatal to the connection.
func (ctrl *signalController) readLoop(ctx context.Context, w *wsutils.ThreadSafeWriter, roomID, userID, username string) {
	for {
		_, data, err := w.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ctrl.logger.Warn("transport closed abnormally",
					slog.String("room", roomID),
					slog.String("user", userID),
					slog.String("err", err.Error()))
			}
			return
		}

		var envelope protocol.Relay
		if err := json.Unmarshal(data, &envelope); err != nil {
			ctrl.logger.Warn("malformed envelope dropped",
				slog.String("room", roomID),
				slog.String("user", userID),
				slog.String("err", err.Error()))
			continue
		}

		switch envelope.Type() {
		case protocol.EventInsightsRequest:
			go ctrl.answerInsights(ctx, roomID, userID, username)

		case protocol.EventToolInteraction:
			ctrl.relayToolInteraction(envelope, roomID, userID, username)

		default:
			ctrl.relay(envelope, roomID, userID, username)
		}
	}
}

// answerInsights replies asynchronously, and only to the requester. If
// the requester left while the synthesis ran, the unicast miss is logged
// by the room service.
func (ctrl *signalController) answerInsights(ctx context.Context, roomID, userID, username string) {
	data := ctrl.insights.Generate(ctx, roomID, username)
	ctrl.roomService.Unicast(roomID, userID, protocol.InsightsResponse{
		Type:   protocol.EventInsightsResponse,
		UserID: userID,
		Data:   data,
	})
}

func (ctrl *signalController) relayToolInteraction(envelope protocol.Relay, roomID, userID, username string) {
	toolID := envelope.Field("toolId", "Unknown Tool")
	toolName := envelope.Field("toolName", toolID)
	ctrl.logger.Info("tool interaction",
		slog.String("room", roomID),
		slog.String("user", userID),
		slog.String("tool", toolName))

	ctrl.roomService.Broadcast(roomID, userID, protocol.SystemNotification{
		Type: protocol.EventSystemNotification,
		Text: fmt.Sprintf("%s is using the '%s' tool (conceptually).", username, toolName),
	})
	ctrl.roomService.Unicast(roomID, userID, protocol.SystemNotification{
		Type: protocol.EventSystemNotification,
		Text: fmt.Sprintf("Your interaction with '%s' has been noted (conceptual feature).", toolName),
	})
}

// relay forwards an opaque envelope by its target field, stamping the
// verified origin so recipients never trust client-supplied identity.
func (ctrl *signalController) relay(envelope protocol.Relay, roomID, userID, username string) {
	target := envelope.Target()
	stamped := envelope.Stamped(userID, username)

	switch target {
	case protocol.TargetAll:
		ctrl.roomService.Broadcast(roomID, userID, stamped)
	case "":
		ctrl.logger.Warn("relay envelope without target dropped",
			slog.String("room", roomID),
			slog.String("user", userID),
			slog.String("type", envelope.Type()))
	default:
		ctrl.roomService.Unicast(roomID, target, stamped)
	}
}

// SignalControllerRoomList serves the read-only directory snapshot.
func (ctrl *signalController) SignalControllerRoomList(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string][]RoomInfo{
		"rooms": ctrl.roomService.ListRooms(),
	})
}

// SignalControllerRoomNotifier streams update-rooms events to directory
// listeners for as long as the connection stays open.
func (ctrl *signalController) SignalControllerRoomNotifier(ctx echo.Context) error {
	conn, err := ctrl.upgrader.Upgrade(ctx.Response().Writer, ctx.Request(), nil)
	if err != nil {
		ctrl.logger.Error(fmt.Sprintf("Unable upgrade request %+v", ctx.Request()))
		return err
	}

	w := wsutils.NewThreadSafeWriter(conn, ctrl.writeTimeout)
	defer w.Close()

	id := uuid.NewString()
	ctrl.notifier.Listen(id, w)
	defer ctrl.notifier.Stop(id)

	// Drain control frames; the listener only ever receives.
	for {
		if _, _, err := w.Conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

func (ctrl *signalController) Resolve(c *echo.Echo) error {
	go ctrl.notifier.OnUpdateRooms(context.Background(), func(w protocol.EnvelopeWriter) {
		_ = w.WriteJSON(UpdateRoomsEvent())
	})

	c.GET("/ws/:roomId/:userId/:username", ctrl.SignalControllerAttach)
	c.GET("/rooms", ctrl.SignalControllerRoomList)
	c.GET("/rooms/notifier", ctrl.SignalControllerRoomNotifier)
	return nil
}

var _ protocol.HttpResolvable = (*signalController)(nil)

type newSignalController_Params struct {
	fx.In

	RoomService *Service
	Insights    *insights.Service
	Notifier    *Notifier
	Logger      *slog.Logger
}

func NewSignalController(params newSignalController_Params) *signalController {
	writeTimeoutMs, err := variables.ParseInt(variables.Env(
		variables.SIGNAL_WRITE_TIMEOUT_MS,
		variables.SIGNAL_WRITE_TIMEOUT_MS_DEFAULT,
	))
	if err != nil || writeTimeoutMs < 0 {
		writeTimeoutMs = 0
	}

	return &signalController{
		roomService: params.RoomService,
		insights:    params.Insights,
		notifier:    params.Notifier,
		logger:      params.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		writeTimeout: time.Duration(writeTimeoutMs) * time.Millisecond,
	}
}

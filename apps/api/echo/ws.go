package echoapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/volatiletech/null/v8"

	"github.com/classsphere/backend/core"
	"github.com/classsphere/backend/core/chat"
	"github.com/classsphere/backend/core/realtime"
	"github.com/classsphere/backend/core/user"
)

// wsErrorFrame is sent to the offending session only; it is never broadcast.
type wsErrorFrame struct {
	Error string `json:"error"`
}

const (
	wsErrMalformedPayload   = "malformed_payload"
	wsErrPersistenceFailure = "persistence_failure"
)

// inboundChatFrame is what a connected chat client sends us. A frame carrying
// an id was already persisted over HTTP and is relayed as-is; otherwise the
// handler persists it before broadcasting.
type inboundChatFrame struct {
	ID        string      `json:"id"`
	Text      null.String `json:"message"`
	MediaURL  null.String `json:"media_url"`
	MediaType null.String `json:"media_type"`
	Timestamp string      `json:"timestamp"`
}

type wsApi struct {
	conf        *core.Config
	logger      core.Logger
	usrSvc      *user.Service
	chatSvc     *chat.Service
	registry    *realtime.Registry
	broadcaster *realtime.Broadcaster
	upgrader    websocket.Upgrader
}

func registerWsAPI(app *echo.Echo, deps ServerDeps) {
	api := wsApi{
		conf:        deps.Conf,
		logger:      deps.Logger,
		usrSvc:      deps.UserSvc,
		chatSvc:     deps.ChatSvc,
		registry:    deps.Registry,
		broadcaster: deps.Broadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// cross-origin is the norm here: the SPA is served elsewhere
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	app.GET("/ws/chat/:id", api.chatStream)
	app.GET("/ws/notifications", api.notificationStream)
}

// chatStream upgrades, authenticates via the `token` query param, verifies
// the user takes part in the chat, then joins the session to the chat group.
// Every rejection closes the socket without a payload.
func (api *wsApi) chatStream(ctx echo.Context) error {
	conn, err := api.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return nil // Upgrade already replied
	}

	usr, err := api.authenticateConn(ctx)
	if err != nil {
		_ = conn.Close()
		return nil
	}

	chatID := ctx.Param("id")
	isMember, err := api.chatSvc.VerifyMembership(ctx.Request().Context(), chatID, usr.ID)
	if err != nil || !isMember {
		_ = conn.Close()
		return nil
	}

	session := realtime.NewSession(usr.ID, api.conf.Server.WSSendBufferSize)
	if err := api.registry.Register(session); err != nil {
		api.logger.Error(fmt.Sprintf("ws: registering session: %v", err), err)
		_ = conn.Close()
		return nil
	}
	api.registry.Join(session.ID, realtime.ChatGroup(chatID))

	c := newWSConn(api, conn, session, usr, chatID)
	go c.writePump()
	go c.readPump()
	return nil
}

// notificationStream joins the session to the user's personal group; all of
// the user's devices share it. The stream is outbound-only.
func (api *wsApi) notificationStream(ctx echo.Context) error {
	conn, err := api.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return nil
	}

	usr, err := api.authenticateConn(ctx)
	if err != nil {
		_ = conn.Close()
		return nil
	}

	session := realtime.NewSession(usr.ID, api.conf.Server.WSSendBufferSize)
	if err := api.registry.Register(session); err != nil {
		api.logger.Error(fmt.Sprintf("ws: registering session: %v", err), err)
		_ = conn.Close()
		return nil
	}
	api.registry.Join(session.ID, realtime.UserGroup(usr.ID))

	c := newWSConn(api, conn, session, usr, "")
	go c.writePump()
	go c.readPump()
	return nil
}

func (api *wsApi) authenticateConn(ctx echo.Context) (user.User, error) {
	claims, err := parseToken(api.conf, ctx.QueryParam("token"))
	if err != nil {
		return user.User{}, err
	}
	usr, err := api.usrSvc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return user.User{}, err
	}
	if !usr.Active() {
		return user.User{}, errAccountDeactivated
	}
	return usr, nil
}

// wsConn ties one websocket connection to its registry session.
// Either pump's exit tears the whole connection down exactly once;
// ctx bounds any in-flight work and is canceled on drop.
type wsConn struct {
	api     *wsApi
	conn    *websocket.Conn
	session *realtime.Session
	usr     user.User
	chatID  string // empty for notification streams

	ctx      context.Context
	cancel   context.CancelFunc
	dropOnce sync.Once
}

func newWSConn(api *wsApi, conn *websocket.Conn, session *realtime.Session, usr user.User, chatID string) *wsConn {
	c := &wsConn{api: api, conn: conn, session: session, usr: usr, chatID: chatID}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

func (c *wsConn) drop() {
	c.dropOnce.Do(func() {
		c.cancel()
		c.api.registry.Drop(c.session.ID)
		_ = c.conn.Close()
	})
}

// writePump is the connection's single writer: queued frames, pings and the
// close handshake all go through it.
func (c *wsConn) writePump() {
	conf := c.api.conf.Server
	ticker := time.NewTicker(conf.WSPingInterval)
	defer func() {
		ticker.Stop()
		c.drop()
	}()

	for {
		select {
		case frame := <-c.session.Frames():
			_ = c.conn.SetWriteDeadline(time.Now().Add(conf.WSWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-c.session.Closed():
			_ = c.conn.SetWriteDeadline(time.Now().Add(conf.WSWriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(conf.WSWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) readPump() {
	defer c.drop()

	conf := c.api.conf.Server
	pongWait := conf.WSPingInterval + conf.WSWriteTimeout

	c.conn.SetReadLimit(conf.WSMaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if c.chatID == "" {
			continue // notification streams carry no inbound protocol
		}
		c.handleInbound(data)
	}
}

// handleInbound processes one client chat frame. Frames lacking both text
// and media are answered with a malformed_payload error frame. New content
// is persisted before it is broadcast; a failed save is answered with a
// persistence_failure error frame and nothing reaches the group.
func (c *wsConn) handleInbound(data []byte) {
	var frame inboundChatFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.sendError(wsErrMalformedPayload)
		return
	}

	nm := chat.NewMessage{
		ChatID:    c.chatID,
		Text:      frame.Text,
		MediaURL:  frame.MediaURL,
		MediaType: frame.MediaType,
	}
	if !nm.HasContent() {
		c.sendError(wsErrMalformedPayload)
		return
	}

	if frame.ID != "" {
		// already persisted via the HTTP send endpoint; relay only
		sentAt := time.Now().UTC()
		if frame.Timestamp != "" {
			if t, err := time.Parse(time.RFC3339, frame.Timestamp); err == nil {
				sentAt = t
			}
		}
		c.api.broadcaster.Publish(realtime.NewChatEvent(c.chatID, realtime.ChatPayload{
			MessageID: frame.ID,
			Sender:    c.usr.Username,
			Text:      frame.Text,
			MediaURL:  frame.MediaURL,
			MediaType: frame.MediaType,
			SentAt:    sentAt,
		}))
		return
	}

	msg, err := c.api.chatSvc.Persist(c.ctx, c.usr, nm)
	if err != nil {
		c.api.logger.Error(fmt.Sprintf("ws: persisting inbound message: %v", err), err, c.usr)
		c.sendError(wsErrPersistenceFailure)
		return
	}

	c.api.broadcaster.Publish(realtime.NewChatEvent(c.chatID, realtime.ChatPayload{
		MessageID: msg.ID,
		Sender:    msg.SenderName,
		Text:      msg.Text,
		MediaURL:  msg.MediaURL,
		MediaType: msg.MediaType,
		SentAt:    msg.SentAt,
	}))
}

func (c *wsConn) sendError(code string) {
	frame, err := json.Marshal(wsErrorFrame{Error: code})
	if err != nil {
		return
	}
	c.session.Push(frame)
}

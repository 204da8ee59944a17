package http

import (
	"context"
	"errors"
	"io"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/werchat/werchat/internal/colortext"
	"github.com/werchat/werchat/internal/core"
	"github.com/werchat/werchat/internal/session"
)

// Inbound is a frame received from the player client.
type Inbound struct {
	Type string `json:"type"`

	// hello
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`

	// chat, pm, reply
	Text string `json:"text,omitempty"`
	To   string `json:"to,omitempty"`

	// focus
	Channel string `json:"channel,omitempty"`

	// move
	World string  `json:"world,omitempty"`
	X     float64 `json:"x,omitempty"`
	Y     float64 `json:"y,omitempty"`
	Z     float64 `json:"z,omitempty"`
}

// Outbound is a frame sent to the player client.
type Outbound struct {
	Type string `json:"type"`

	// welcome
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Channel string `json:"channel,omitempty"`

	// message
	Runs colortext.Text `json:"runs,omitempty"`

	// error
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Seconds int    `json:"seconds,omitempty"`
}

// WSHandler upgrades player connections and bridges them to the chat core.
type WSHandler struct {
	deps Deps
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(deps Deps, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{deps: deps, log: logger}
}

// Handle serves one player connection. The first frame must be a hello
// naming the player; everything after that is chat traffic.
func (h *WSHandler) Handle(c *gin.Context) {
	ctx := c.Request.Context()

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	player, err := h.handshake(ctx, conn)
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}
	defer func() {
		h.deps.Router.HandleDisconnect(player)
		h.deps.Hub.Disconnect(player)
	}()

	h.deps.Router.HandleConnect(player)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, player)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, player)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("player", player.Username()).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// handshake reads the hello frame and registers the session. Clients that
// reconnect send their previous id to keep their chat state; first-time
// clients get a fresh one.
func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn) (*session.Player, error) {
	var hello Inbound
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		return nil, err
	}
	if hello.Type != "hello" || hello.Name == "" {
		return nil, errors.New("expected hello frame with a name")
	}

	id := uuid.New()
	if hello.ID != "" {
		parsed, err := uuid.Parse(hello.ID)
		if err != nil {
			return nil, errors.New("invalid player id")
		}
		id = parsed
	}

	player, err := h.deps.Hub.Connect(id, hello.Name)
	if err != nil {
		return nil, err
	}

	welcome := Outbound{
		Type: "welcome",
		ID:   player.PlayerID().String(),
		Name: player.Username(),
	}
	if def := h.deps.Registry.DefaultChannel(); def != nil {
		welcome.Channel = def.Name()
	}
	if err := wsjson.Write(ctx, conn, welcome); err != nil {
		h.deps.Hub.Disconnect(player)
		return nil, err
	}
	return player, nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, player *session.Player) error {
	id := player.PlayerID()
	for {
		var inbound Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		var err error
		switch inbound.Type {
		case "chat":
			_, err = h.deps.Router.HandleChatInput(id, inbound.Text)
		case "pm":
			err = h.deps.Router.SendPrivateMessage(id, inbound.To, inbound.Text)
		case "reply":
			err = h.deps.Router.SendReply(id, inbound.Text)
		case "focus":
			err = h.focus(player, inbound.Channel)
		case "move":
			player.SetLocation(inbound.World, core.Position{X: inbound.X, Y: inbound.Y, Z: inbound.Z})
		default:
			h.log.Debug().Str("type", inbound.Type).Str("player", player.Username()).Msg("unknown ws frame")
		}

		if err != nil {
			if writeErr := wsjson.Write(ctx, conn, errorFrame(err)); writeErr != nil {
				return writeErr
			}
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, player *session.Player) error {
	for {
		select {
		case msg := <-player.Outbox():
			if err := wsjson.Write(ctx, conn, Outbound{Type: "message", Runs: msg}); err != nil {
				h.log.Error().Err(err).Str("player", player.Username()).Msg("write ws message")
				return err
			}
		case <-player.Closed():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) focus(player *session.Player, name string) error {
	id := player.PlayerID()
	ch := h.deps.Registry.FindChannel(name)
	if ch == nil {
		return &core.CoreError{Code: core.ErrCodeNotFound, Message: "channel " + name + " not found"}
	}
	if !ch.IsFocusable() {
		return &core.CoreError{Code: core.ErrCodeInvariantViolation, Message: ch.Name() + " cannot be focused"}
	}
	if ch.IsBanned(id) {
		return &core.CoreError{Code: core.ErrCodeBanned, Message: "you are banned from " + ch.Name()}
	}
	if !ch.IsMember(id) {
		ch.AddMember(id)
	}
	h.deps.Players.SetFocusedChannel(id, ch.Name())
	return nil
}

func errorFrame(err error) Outbound {
	var ce *core.CoreError
	if errors.As(err, &ce) {
		return Outbound{Type: "error", Error: ce.Message, Code: ce.Code, Seconds: ce.Seconds}
	}
	return Outbound{Type: "error", Error: err.Error()}
}

package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/werchat/werchat/internal/colortext"
	"github.com/werchat/werchat/internal/core"
)

// PlayerHandlers provides HTTP handlers for per-player chat state.
type PlayerHandlers struct {
	registry *core.Registry
	players  *core.PlayerStateStore
	log      *zerolog.Logger
}

func NewPlayerHandlers(registry *core.Registry, players *core.PlayerStateStore, logger *zerolog.Logger) *PlayerHandlers {
	return &PlayerHandlers{registry: registry, players: players, log: logger}
}

// PlayerResponse represents a player's chat state in API responses.
type PlayerResponse struct {
	ID              string   `json:"id"`
	Name            string   `json:"name,omitempty"`
	Nickname        string   `json:"nickname,omitempty"`
	FocusedChannel  string   `json:"focused_channel,omitempty"`
	Channels        []string `json:"channels"`
	NickColor       string   `json:"nick_color,omitempty"`
	NickGradientEnd string   `json:"nick_gradient_end,omitempty"`
	MsgColor        string   `json:"msg_color,omitempty"`
	MsgGradientEnd  string   `json:"msg_gradient_end,omitempty"`
}

func (h *PlayerHandlers) playerResponse(id uuid.UUID) PlayerResponse {
	channels := h.registry.PlayerChannels(id)
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name())
	}
	nickStart, nickEnd := h.players.NickColor(id)
	msgStart, msgEnd := h.players.MsgColor(id)
	return PlayerResponse{
		ID:              id.String(),
		Name:            h.players.KnownName(id),
		Nickname:        h.players.Nickname(id),
		FocusedChannel:  h.players.FocusedChannel(id),
		Channels:        names,
		NickColor:       nickStart,
		NickGradientEnd: nickEnd,
		MsgColor:        msgStart,
		MsgGradientEnd:  msgEnd,
	}
}

func (h *PlayerHandlers) playerID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid player id", Code: core.ErrCodeInvalidInput})
		return uuid.Nil, false
	}
	return id, true
}

// Get handles fetching a player's chat state.
// GET /api/players/:id
func (h *PlayerHandlers) Get(c *gin.Context) {
	id, ok := h.playerID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.playerResponse(id))
}

// UpdatePlayerRequest represents a partial player state update. Only non-nil
// fields are applied. Gradient ends require the matching start color.
type UpdatePlayerRequest struct {
	Nickname        *string `json:"nickname"`
	NickColor       *string `json:"nick_color"`
	NickGradientEnd *string `json:"nick_gradient_end"`
	MsgColor        *string `json:"msg_color"`
	MsgGradientEnd  *string `json:"msg_gradient_end"`
}

func normalizeOptionalHex(raw *string) (string, bool) {
	if raw == nil || *raw == "" {
		return "", true
	}
	hex, err := colortext.NormalizeHex(*raw)
	if err != nil {
		return "", false
	}
	return hex, true
}

// Update handles partial player state changes.
// PATCH /api/players/:id
func (h *PlayerHandlers) Update(c *gin.Context) {
	id, ok := h.playerID(c)
	if !ok {
		return
	}

	var req UpdatePlayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid update player request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if req.Nickname != nil {
		h.players.SetNickname(id, *req.Nickname)
	}

	if req.NickColor != nil || req.NickGradientEnd != nil {
		start, end := h.players.NickColor(id)
		if req.NickColor != nil {
			var ok bool
			if start, ok = normalizeOptionalHex(req.NickColor); !ok {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid nick color", Code: core.ErrCodeInvalidInput})
				return
			}
		}
		if req.NickGradientEnd != nil {
			var ok bool
			if end, ok = normalizeOptionalHex(req.NickGradientEnd); !ok {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid nick gradient color", Code: core.ErrCodeInvalidInput})
				return
			}
		}
		if end != "" && start == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "gradient requires a start color", Code: core.ErrCodeInvalidInput})
			return
		}
		h.players.SetNickColor(id, start, end)
	}

	if req.MsgColor != nil || req.MsgGradientEnd != nil {
		start, end := h.players.MsgColor(id)
		if req.MsgColor != nil {
			var ok bool
			if start, ok = normalizeOptionalHex(req.MsgColor); !ok {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message color", Code: core.ErrCodeInvalidInput})
				return
			}
		}
		if req.MsgGradientEnd != nil {
			var ok bool
			if end, ok = normalizeOptionalHex(req.MsgGradientEnd); !ok {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message gradient color", Code: core.ErrCodeInvalidInput})
				return
			}
		}
		if end != "" && start == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "gradient requires a start color", Code: core.ErrCodeInvalidInput})
			return
		}
		h.players.SetMsgColor(id, start, end)
	}

	c.JSON(http.StatusOK, h.playerResponse(id))
}

// FocusRequest represents the focus change request body.
type FocusRequest struct {
	Channel string `json:"channel" binding:"required"`
}

// Focus handles focusing a player on a channel. The player is added as a
// member first when missing; banned players cannot focus.
// POST /api/players/:id/focus
func (h *PlayerHandlers) Focus(c *gin.Context) {
	id, ok := h.playerID(c)
	if !ok {
		return
	}

	var req FocusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ch := h.registry.FindChannel(req.Channel)
	if ch == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found", Code: core.ErrCodeNotFound})
		return
	}
	if !ch.IsFocusable() {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "channel cannot be focused", Code: core.ErrCodeInvariantViolation})
		return
	}
	if ch.IsBanned(id) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "you are banned from " + ch.Name(), Code: core.ErrCodeBanned})
		return
	}
	if !ch.IsMember(id) {
		ch.AddMember(id)
	}
	h.players.SetFocusedChannel(id, ch.Name())

	c.JSON(http.StatusOK, h.playerResponse(id))
}

// JoinChannelRequest represents the join request body.
type JoinChannelRequest struct {
	Channel  string `json:"channel" binding:"required"`
	Password string `json:"password,omitempty"`
}

// JoinChannel handles joining a channel, checking its password.
// POST /api/players/:id/channels
func (h *PlayerHandlers) JoinChannel(c *gin.Context) {
	id, ok := h.playerID(c)
	if !ok {
		return
	}

	var req JoinChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ch := h.registry.FindChannel(req.Channel)
	if ch == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found", Code: core.ErrCodeNotFound})
		return
	}
	if ch.IsBanned(id) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "you are banned from " + ch.Name(), Code: core.ErrCodeBanned})
		return
	}
	if !ch.CheckPassword(req.Password) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "wrong password", Code: core.ErrCodePermissionDenied})
		return
	}
	if !ch.AddMember(id) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "already a member of " + ch.Name(), Code: core.ErrCodeAlreadyExists})
		return
	}

	c.JSON(http.StatusOK, h.playerResponse(id))
}

// LeaveChannel handles leaving a channel. Leaving the focused channel moves
// focus back to the default.
// DELETE /api/players/:id/channels/:channel
func (h *PlayerHandlers) LeaveChannel(c *gin.Context) {
	id, ok := h.playerID(c)
	if !ok {
		return
	}

	ch := h.registry.GetChannel(c.Param("channel"))
	if ch == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found", Code: core.ErrCodeNotFound})
		return
	}
	if !ch.RemoveMember(id) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "not a member of " + ch.Name(), Code: core.ErrCodeNotMember})
		return
	}

	if h.players.FocusedChannel(id) == ch.Name() {
		if def := h.registry.DefaultChannel(); def != nil && def != ch {
			h.players.SetFocusedChannel(id, def.Name())
		} else {
			h.players.SetFocusedChannel(id, "")
		}
	}

	c.JSON(http.StatusOK, h.playerResponse(id))
}

// IgnoreRequest references another player to ignore.
type IgnoreRequest struct {
	PlayerID string `json:"player_id" binding:"required,uuid"`
}

// Ignore handles POST /api/players/:id/ignores.
func (h *PlayerHandlers) Ignore(c *gin.Context) {
	id, ok := h.playerID(c)
	if !ok {
		return
	}

	var req IgnoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	target, err := uuid.Parse(req.PlayerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid player id", Code: core.ErrCodeInvalidInput})
		return
	}
	if target == id {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "cannot ignore yourself", Code: core.ErrCodeInvalidInput})
		return
	}

	h.players.IgnorePlayer(id, target)
	c.Status(http.StatusNoContent)
}

// Unignore handles DELETE /api/players/:id/ignores/:target.
func (h *PlayerHandlers) Unignore(c *gin.Context) {
	id, ok := h.playerID(c)
	if !ok {
		return
	}
	target, err := uuid.Parse(c.Param("target"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid player id", Code: core.ErrCodeInvalidInput})
		return
	}

	if !h.players.UnignorePlayer(id, target) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "player is not ignored", Code: core.ErrCodeNotFound})
		return
	}
	c.Status(http.StatusNoContent)
}

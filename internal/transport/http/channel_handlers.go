package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/werchat/werchat/internal/colortext"
	"github.com/werchat/werchat/internal/core"
)

// ChannelHandlers provides HTTP handlers for channel management endpoints.
type ChannelHandlers struct {
	registry *core.Registry
	players  *core.PlayerStateStore
	log      *zerolog.Logger
}

func NewChannelHandlers(registry *core.Registry, players *core.PlayerStateStore, logger *zerolog.Logger) *ChannelHandlers {
	return &ChannelHandlers{registry: registry, players: players, log: logger}
}

// MemberResponse is one entry of a membership set in API responses.
type MemberResponse struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ChannelResponse represents a channel in API responses.
type ChannelResponse struct {
	Name               string           `json:"name"`
	Nick               string           `json:"nick"`
	Color              string           `json:"color"`
	MessageColor       string           `json:"message_color,omitempty"`
	Format             string           `json:"format"`
	Distance           int              `json:"distance"`
	Worlds             []string         `json:"worlds,omitempty"`
	HasPassword        bool             `json:"has_password"`
	QuickChatSymbol    string           `json:"quick_chat_symbol,omitempty"`
	QuickChatEnabled   bool             `json:"quick_chat_enabled"`
	IsDefault          bool             `json:"is_default"`
	AutoJoin           bool             `json:"auto_join"`
	Focusable          bool             `json:"focusable"`
	Verbose            bool             `json:"verbose"`
	Description        string           `json:"description,omitempty"`
	DescriptionEnabled bool             `json:"description_enabled,omitempty"`
	Motd               string           `json:"motd,omitempty"`
	MotdEnabled        bool             `json:"motd_enabled,omitempty"`
	Owner              *MemberResponse  `json:"owner,omitempty"`
	Moderators         []MemberResponse `json:"moderators"`
	Members            []MemberResponse `json:"members"`
	Banned             []MemberResponse `json:"banned"`
	Muted              []MemberResponse `json:"muted"`
}

func (h *ChannelHandlers) channelResponse(ch *core.Channel) ChannelResponse {
	resp := ChannelResponse{
		Name:               ch.Name(),
		Nick:               ch.Nick(),
		Color:              ch.Color(),
		MessageColor:       ch.MessageColor(),
		Format:             ch.Format(),
		Distance:           ch.Distance(),
		Worlds:             ch.Worlds(),
		HasPassword:        ch.HasPassword(),
		QuickChatSymbol:    ch.QuickChatSymbol(),
		QuickChatEnabled:   ch.IsQuickChatEnabled(),
		IsDefault:          ch.IsDefault(),
		AutoJoin:           ch.IsAutoJoin(),
		Focusable:          ch.IsFocusable(),
		Verbose:            ch.IsVerbose(),
		Description:        ch.Description(),
		DescriptionEnabled: ch.IsDescriptionEnabled(),
		Motd:               ch.Motd(),
		MotdEnabled:        ch.IsMotdEnabled(),
		Moderators:         h.memberResponses(ch.Moderators()),
		Members:            h.memberResponses(ch.Members()),
		Banned:             h.memberResponses(ch.Banned()),
		Muted:              h.memberResponses(ch.Muted()),
	}
	if owner, ok := ch.Owner(); ok {
		resp.Owner = &MemberResponse{ID: owner.String(), Name: h.players.KnownName(owner)}
	}
	return resp
}

func (h *ChannelHandlers) memberResponses(ids []uuid.UUID) []MemberResponse {
	out := make([]MemberResponse, 0, len(ids))
	for _, id := range ids {
		out = append(out, MemberResponse{ID: id.String(), Name: h.players.KnownName(id)})
	}
	return out
}

// List handles listing all channels.
// GET /api/channels
func (h *ChannelHandlers) List(c *gin.Context) {
	channels := h.registry.AllChannels()
	resp := make([]ChannelResponse, 0, len(channels))
	for _, ch := range channels {
		resp = append(resp, h.channelResponse(ch))
	}
	c.JSON(http.StatusOK, resp)
}

// Get handles fetching one channel by name or nick.
// GET /api/channels/:name
func (h *ChannelHandlers) Get(c *gin.Context) {
	ch := h.registry.GetChannel(c.Param("name"))
	if ch == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found", Code: core.ErrCodeNotFound})
		return
	}
	c.JSON(http.StatusOK, h.channelResponse(ch))
}

// CreateChannelRequest represents the create channel request body.
type CreateChannelRequest struct {
	Name  string `json:"name" binding:"required,min=1,max=32"`
	Owner string `json:"owner,omitempty"`
}

// Create handles channel creation.
// POST /api/channels
func (h *ChannelHandlers) Create(c *gin.Context) {
	var req CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create channel request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	owner := uuid.Nil
	if req.Owner != "" {
		parsed, err := uuid.Parse(req.Owner)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid owner id", Code: core.ErrCodeInvalidInput})
			return
		}
		owner = parsed
	}

	ch := h.registry.CreateChannel(req.Name, owner)
	if ch == nil {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "channel with this name already exists", Code: core.ErrCodeAlreadyExists})
		return
	}

	h.log.Info().Str("channel", ch.Name()).Msg("channel created")
	c.JSON(http.StatusCreated, h.channelResponse(ch))
}

// UpdateChannelRequest represents a partial channel settings update. Only
// non-nil fields are applied.
type UpdateChannelRequest struct {
	Nick               *string   `json:"nick"`
	Color              *string   `json:"color"`
	MessageColor       *string   `json:"message_color"`
	Format             *string   `json:"format"`
	Distance           *int      `json:"distance"`
	Worlds             *[]string `json:"worlds"`
	Password           *string   `json:"password"`
	QuickChatSymbol    *string   `json:"quick_chat_symbol"`
	QuickChatEnabled   *bool     `json:"quick_chat_enabled"`
	AutoJoin           *bool     `json:"auto_join"`
	Focusable          *bool     `json:"focusable"`
	Verbose            *bool     `json:"verbose"`
	Description        *string   `json:"description"`
	DescriptionEnabled *bool     `json:"description_enabled"`
	Motd               *string   `json:"motd"`
	MotdEnabled        *bool     `json:"motd_enabled"`
}

// Update handles partial channel settings changes.
// PATCH /api/channels/:name
func (h *ChannelHandlers) Update(c *gin.Context) {
	ch := h.registry.GetChannel(c.Param("name"))
	if ch == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found", Code: core.ErrCodeNotFound})
		return
	}

	var req UpdateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid update channel request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if req.Color != nil {
		hex, err := colortext.NormalizeHex(*req.Color)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid color", Code: core.ErrCodeInvalidInput})
			return
		}
		ch.SetColor(hex)
	}
	if req.MessageColor != nil {
		if *req.MessageColor == "" {
			ch.SetMessageColor("")
		} else {
			hex, err := colortext.NormalizeHex(*req.MessageColor)
			if err != nil {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message color", Code: core.ErrCodeInvalidInput})
				return
			}
			ch.SetMessageColor(hex)
		}
	}
	if req.Nick != nil {
		ch.SetNick(*req.Nick)
	}
	if req.Format != nil {
		ch.SetFormat(*req.Format)
	}
	if req.Distance != nil {
		if *req.Distance < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "distance must not be negative", Code: core.ErrCodeInvalidInput})
			return
		}
		ch.SetDistance(*req.Distance)
	}
	if req.Worlds != nil {
		ch.ClearWorlds()
		for _, w := range *req.Worlds {
			ch.AddWorld(w)
		}
	}
	if req.Password != nil {
		ch.SetPassword(*req.Password)
	}
	if req.QuickChatSymbol != nil {
		ch.SetQuickChatSymbol(*req.QuickChatSymbol)
	}
	if req.QuickChatEnabled != nil {
		ch.SetQuickChatEnabled(*req.QuickChatEnabled)
	}
	if req.AutoJoin != nil {
		ch.SetAutoJoin(*req.AutoJoin)
	}
	if req.Focusable != nil {
		ch.SetFocusable(*req.Focusable)
	}
	if req.Verbose != nil {
		ch.SetVerbose(*req.Verbose)
	}
	if req.Description != nil {
		ch.SetDescription(*req.Description)
	}
	if req.DescriptionEnabled != nil {
		ch.SetDescriptionEnabled(*req.DescriptionEnabled)
	}
	if req.Motd != nil {
		ch.SetMotd(*req.Motd)
	}
	if req.MotdEnabled != nil {
		ch.SetMotdEnabled(*req.MotdEnabled)
	}

	c.JSON(http.StatusOK, h.channelResponse(ch))
}

// RenameChannelRequest represents the rename request body.
type RenameChannelRequest struct {
	Name string `json:"name" binding:"required,min=1,max=32"`
}

// Rename handles channel renames.
// POST /api/channels/:name/rename
func (h *ChannelHandlers) Rename(c *gin.Context) {
	var req RenameChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if h.registry.GetChannel(c.Param("name")) == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found", Code: core.ErrCodeNotFound})
		return
	}
	if !h.registry.RenameChannel(c.Param("name"), req.Name) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "channel with this name already exists", Code: core.ErrCodeAlreadyExists})
		return
	}

	h.log.Info().Str("from", c.Param("name")).Str("to", req.Name).Msg("channel renamed")
	c.JSON(http.StatusOK, h.channelResponse(h.registry.GetChannel(req.Name)))
}

// Delete handles channel deletion.
// DELETE /api/channels/:name
func (h *ChannelHandlers) Delete(c *gin.Context) {
	ch := h.registry.GetChannel(c.Param("name"))
	if ch == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found", Code: core.ErrCodeNotFound})
		return
	}
	if !h.registry.DeleteChannel(ch.Name()) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: "cannot delete the default or last remaining channel",
			Code:  core.ErrCodeInvariantViolation,
		})
		return
	}

	h.log.Info().Str("channel", ch.Name()).Msg("channel deleted")
	c.Status(http.StatusNoContent)
}

// MakeDefault promotes a channel to be the registry default.
// POST /api/channels/:name/default
func (h *ChannelHandlers) MakeDefault(c *gin.Context) {
	ch := h.registry.GetChannel(c.Param("name"))
	if ch == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found", Code: core.ErrCodeNotFound})
		return
	}
	h.registry.SetDefaultChannel(ch)
	c.JSON(http.StatusOK, h.channelResponse(ch))
}

// PlayerRefRequest references a player in a moderation request body.
type PlayerRefRequest struct {
	PlayerID string `json:"player_id" binding:"required,uuid"`
}

// memberOp runs one moderation mutation against a channel.
func (h *ChannelHandlers) memberOp(c *gin.Context, fromBody bool, op func(ch *core.Channel, id uuid.UUID) bool, conflictMsg string) {
	ch := h.registry.GetChannel(c.Param("name"))
	if ch == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found", Code: core.ErrCodeNotFound})
		return
	}

	var raw string
	if fromBody {
		var req PlayerRefRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
		raw = req.PlayerID
	} else {
		raw = c.Param("player")
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid player id", Code: core.ErrCodeInvalidInput})
		return
	}

	if !op(ch, id) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: conflictMsg, Code: core.ErrCodeInvariantViolation})
		return
	}
	c.JSON(http.StatusOK, h.channelResponse(ch))
}

// AddMember handles POST /api/channels/:name/members.
func (h *ChannelHandlers) AddMember(c *gin.Context) {
	h.memberOp(c, true, (*core.Channel).AddMember, "player is banned or already a member")
}

// RemoveMember handles DELETE /api/channels/:name/members/:player.
func (h *ChannelHandlers) RemoveMember(c *gin.Context) {
	h.memberOp(c, false, (*core.Channel).RemoveMember, "player is not a member")
}

// Ban handles POST /api/channels/:name/bans.
func (h *ChannelHandlers) Ban(c *gin.Context) {
	h.memberOp(c, true, (*core.Channel).Ban, "player is already banned")
}

// Unban handles DELETE /api/channels/:name/bans/:player.
func (h *ChannelHandlers) Unban(c *gin.Context) {
	h.memberOp(c, false, (*core.Channel).Unban, "player is not banned")
}

// Mute handles POST /api/channels/:name/mutes.
func (h *ChannelHandlers) Mute(c *gin.Context) {
	h.memberOp(c, true, (*core.Channel).Mute, "player is already muted")
}

// Unmute handles DELETE /api/channels/:name/mutes/:player.
func (h *ChannelHandlers) Unmute(c *gin.Context) {
	h.memberOp(c, false, (*core.Channel).Unmute, "player is not muted")
}

// AddModerator handles POST /api/channels/:name/moderators.
func (h *ChannelHandlers) AddModerator(c *gin.Context) {
	h.memberOp(c, true, (*core.Channel).AddModerator, "player is already a moderator")
}

// RemoveModerator handles DELETE /api/channels/:name/moderators/:player.
// The channel owner keeps moderator status; demoting them is refused.
func (h *ChannelHandlers) RemoveModerator(c *gin.Context) {
	h.memberOp(c, false, func(ch *core.Channel, id uuid.UUID) bool {
		if owner, ok := ch.Owner(); ok && owner == id {
			return false
		}
		return ch.RemoveModerator(id)
	}, "cannot demote the channel owner")
}

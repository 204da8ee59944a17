package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/werchat/werchat/internal/core"
)

// ChatHandlers relays chat traffic submitted over the admin API, for bots
// and bridges that speak HTTP instead of the WebSocket protocol.
type ChatHandlers struct {
	router *core.Router
	log    *zerolog.Logger
}

func NewChatHandlers(router *core.Router, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{router: router, log: logger}
}

// RelayRequest represents an inbound chat line.
type RelayRequest struct {
	PlayerID string `json:"player_id" binding:"required,uuid"`
	Text     string `json:"text" binding:"required"`
}

// RelayResponse reports where a message landed.
type RelayResponse struct {
	Channel    string `json:"channel"`
	Text       string `json:"text"`
	Recipients int    `json:"recipients"`
	Dropped    bool   `json:"dropped"`
}

// Relay handles routing one chat line through the full pipeline.
// POST /api/chat
func (h *ChatHandlers) Relay(c *gin.Context) {
	var req RelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	id, err := uuid.Parse(req.PlayerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid player id", Code: core.ErrCodeInvalidInput})
		return
	}

	outcome, err := h.router.HandleChatInput(id, req.Text)
	if err != nil {
		respondCoreError(c, err)
		return
	}

	resp := RelayResponse{
		Text:       outcome.Text,
		Recipients: outcome.Recipients,
		Dropped:    outcome.Dropped,
	}
	if outcome.Channel != nil {
		resp.Channel = outcome.Channel.Name()
	}
	c.JSON(http.StatusOK, resp)
}

// PrivateMessageRequest represents an inbound private message.
type PrivateMessageRequest struct {
	From string `json:"from" binding:"required,uuid"`
	To   string `json:"to" binding:"required"`
	Text string `json:"text" binding:"required"`
}

// PrivateMessage handles delivering a direct message between players.
// POST /api/chat/pm
func (h *ChatHandlers) PrivateMessage(c *gin.Context) {
	var req PrivateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	from, err := uuid.Parse(req.From)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid player id", Code: core.ErrCodeInvalidInput})
		return
	}

	if err := h.router.SendPrivateMessage(from, req.To, req.Text); err != nil {
		respondCoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

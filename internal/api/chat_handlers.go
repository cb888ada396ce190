package api

import (
	"net/http"

	"kwetu-store/internal/models"

	"github.com/gin-gonic/gin"
)

type startConversationRequest struct {
	Name  string `json:"customer_name" binding:"required"`
	Email string `json:"customer_email" binding:"required"`
}

type sendMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

func (h *Handler) startConversation(c *gin.Context) {
	var req startConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	conv, err := h.svc.Chat.StartConversation(c.Request.Context(), mustSession(c), req.Name, req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) listMyConversations(c *gin.Context) {
	convs, err := h.svc.Chat.ListMyConversations(c.Request.Context(), mustSession(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *Handler) listMessages(c *gin.Context) {
	msgs, err := h.svc.Chat.ListMessages(c.Request.Context(), mustSession(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.svc.Chat.SendMessage(c.Request.Context(), mustSession(c), c.Param("id"), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// streamMessages relays a conversation as Server-Sent Events until the client goes away.
func (h *Handler) streamMessages(c *gin.Context) {
	w := &sseWriter{c: c}
	err := h.svc.Chat.StreamMessages(c.Request.Context(), mustSession(c), c.Param("id"), func(msg models.ChatMessage) error {
		return w.send("message", msg)
	})
	w.finish(h, err)
}

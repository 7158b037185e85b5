package handler

import (
	"chatcore/backend/internal/models"
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

type createConversationRequest struct {
	Title *string `json:"title"`
}

// ownConversation checks that the caller owns the conversation.
func (h *Handler) ownConversation(ctx context.Context, conversationID, userID string) error {
	conv, err := h.AI.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.UserID != userID {
		return fmt.Errorf("%w: conversation %s", models.ErrForbidden, conversationID)
	}
	return nil
}

func (h *Handler) CreateConversation(c *gin.Context) {
	var req createConversationRequest
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}
	conv, err := h.AI.CreateConversation(c.Request.Context(), currentUser(c), req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *Handler) ListConversations(c *gin.Context) {
	convs, err := h.AI.ListConversations(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (h *Handler) GetTranscript(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.ownConversation(ctx, c.Param("id"), currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	turns, err := h.AI.GetTranscript(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"turns": turns})
}

func (h *Handler) AppendTurn(c *gin.Context) {
	var turn models.Turn
	if !bind(c, &turn) {
		return
	}
	ctx := c.Request.Context()
	if err := h.ownConversation(ctx, c.Param("id"), currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	conv, err := h.AI.AppendTurn(ctx, c.Param("id"), turn)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": conv.ID, "version": conv.Version})
}

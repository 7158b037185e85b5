package handler

import (
	"chatcore/backend/internal/config"
	"chatcore/backend/internal/messaging"
	"chatcore/backend/internal/models"
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type postMessageRequest struct {
	Content     string                      `json:"content"`
	ReplyToID   *string                     `json:"reply_to_id"`
	Attachments []messaging.AttachmentInput `json:"attachments"`
}

type reactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// visibleMessage loads a message and checks that the caller belongs to its session.
func (h *Handler) visibleMessage(ctx context.Context, messageID, userID string) (*models.Message, error) {
	msg, err := h.Messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := h.Members.RequireMember(ctx, msg.SessionID, userID); err != nil {
		return nil, err
	}
	return msg, nil
}

// receivedMessage is visibleMessage for acknowledgements: the sender cannot acknowledge
// their own message, since the delivery flags describe the other participants.
func (h *Handler) receivedMessage(ctx context.Context, messageID, userID string) (*models.Message, error) {
	msg, err := h.visibleMessage(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID == userID {
		return nil, fmt.Errorf("%w: cannot acknowledge own message %s", models.ErrForbidden, messageID)
	}
	return msg, nil
}

// PostMessage appends a message from the caller to the session.
func (h *Handler) PostMessage(c *gin.Context) {
	var req postMessageRequest
	if !bind(c, &req) {
		return
	}
	msg, err := h.Messages.PostMessage(c.Request.Context(), messaging.PostInput{
		SessionID:   c.Param("id"),
		SenderID:    currentUser(c),
		Content:     req.Content,
		ReplyToID:   req.ReplyToID,
		Attachments: req.Attachments,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// ListMessages returns one page of the session history.
func (h *Handler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")
	if err := h.Members.RequireMember(ctx, sessionID, currentUser(c)); err != nil {
		respondError(c, err)
		return
	}

	limit := config.DefaultPageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, fmt.Errorf("%w: limit must be a number", models.ErrInvalidInput))
			return
		}
		limit = n
	}
	page, err := h.Messages.ListMessages(ctx, sessionID, c.Query("cursor"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) GetThread(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.visibleMessage(ctx, c.Param("id"), currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	thread, err := h.Messages.GetThread(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, thread)
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	if err := h.Messages.DeleteMessage(c.Request.Context(), c.Param("id"), currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) MarkDelivered(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.receivedMessage(ctx, c.Param("id"), currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	msg, err := h.Delivery.MarkDelivered(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) MarkRead(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.receivedMessage(ctx, c.Param("id"), currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	msg, err := h.Delivery.MarkRead(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) AddReaction(c *gin.Context) {
	var req reactionRequest
	if !bind(c, &req) {
		return
	}
	r, err := h.Reactions.AddReaction(c.Request.Context(), c.Param("id"), currentUser(c), req.Emoji)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) RemoveReaction(c *gin.Context) {
	if err := h.Reactions.RemoveReaction(c.Request.Context(), c.Param("id"), currentUser(c), c.Param("emoji")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListReactions returns the per-emoji tally and the individual reactions.
func (h *Handler) ListReactions(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.visibleMessage(ctx, c.Param("id"), currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	tally, err := h.Reactions.Tally(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	list, err := h.Reactions.ListReactions(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tally": tally, "reactions": list})
}

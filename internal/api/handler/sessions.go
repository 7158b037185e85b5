package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type createSessionRequest struct {
	Name           *string  `json:"name"`
	ParticipantIDs []string `json:"participant_ids" binding:"required,min=1"`
}

type participantRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type sessionReadRequest struct {
	Upto *time.Time `json:"upto"`
}

// CreateSession creates a session with the caller and the listed participants.
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if !bind(c, &req) {
		return
	}
	session, err := h.Members.CreateSession(c.Request.Context(), req.Name, currentUser(c), req.ParticipantIDs...)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// ListSessions returns the caller's sessions.
func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.Members.ListSessionsForUser(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) ListParticipants(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")
	if err := h.Members.RequireMember(ctx, sessionID, currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	ids, err := h.Members.ListParticipants(ctx, sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": ids})
}

// AddParticipant lets a member invite another user.
func (h *Handler) AddParticipant(c *gin.Context) {
	var req participantRequest
	if !bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	sessionID := c.Param("id")
	if err := h.Members.RequireMember(ctx, sessionID, currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	if err := h.Members.AddParticipant(ctx, sessionID, req.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveParticipant lets a member remove a participant, or leave the session.
func (h *Handler) RemoveParticipant(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")
	if err := h.Members.RequireMember(ctx, sessionID, currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	if err := h.Members.RemoveParticipant(ctx, sessionID, c.Param("userID")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkSessionRead marks the session read up to the given time (default: now).
func (h *Handler) MarkSessionRead(c *gin.Context) {
	var req sessionReadRequest
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}
	var upto time.Time
	if req.Upto != nil {
		upto = *req.Upto
	}
	n, err := h.Delivery.MarkSessionRead(c.Request.Context(), c.Param("id"), currentUser(c), upto)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// Counts returns delivery state counts and the caller's unread count.
func (h *Handler) Counts(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")
	unread, err := h.Delivery.UnreadCount(ctx, sessionID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	counts, err := h.Delivery.Counts(ctx, sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts, "unread": unread})
}

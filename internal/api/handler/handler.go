package handler

import (
	"chatcore/backend/internal/accounts"
	"chatcore/backend/internal/aiconv"
	"chatcore/backend/internal/chathub"
	"chatcore/backend/internal/delivery"
	"chatcore/backend/internal/membership"
	"chatcore/backend/internal/messaging"
	"chatcore/backend/internal/reaction"

	"github.com/gin-gonic/gin"
)

// Services are the engine components exposed over HTTP.
type Services struct {
	Accounts  *accounts.Service
	Members   *membership.Service
	Messages  *messaging.Service
	Delivery  *delivery.Service
	Reactions *reaction.Service
	AI        *aiconv.Service
}

// Handler містить посилання на ChatHub та сервіси
type Handler struct {
	Services
	Hub  *chathub.ManagerService
	Auth *TokenIssuer
}

func NewHandler(hub *chathub.ManagerService, auth *TokenIssuer, svc Services) *Handler {
	return &Handler{Services: svc, Hub: hub, Auth: auth}
}

// Routes registers every endpoint on r.
func (h *Handler) Routes(r gin.IRouter) {
	auth := r.Group("/auth")
	auth.POST("/register", h.Register)
	auth.POST("/login", h.Login)

	api := r.Group("/", h.RequireAuth())

	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions", h.ListSessions)
	api.GET("/sessions/:id/participants", h.ListParticipants)
	api.POST("/sessions/:id/participants", h.AddParticipant)
	api.DELETE("/sessions/:id/participants/:userID", h.RemoveParticipant)
	api.POST("/sessions/:id/messages", h.PostMessage)
	api.GET("/sessions/:id/messages", h.ListMessages)
	api.POST("/sessions/:id/read", h.MarkSessionRead)
	api.GET("/sessions/:id/counts", h.Counts)

	api.GET("/messages/:id/thread", h.GetThread)
	api.DELETE("/messages/:id", h.DeleteMessage)
	api.POST("/messages/:id/delivered", h.MarkDelivered)
	api.POST("/messages/:id/read", h.MarkRead)
	api.POST("/messages/:id/reactions", h.AddReaction)
	api.DELETE("/messages/:id/reactions/:emoji", h.RemoveReaction)
	api.GET("/messages/:id/reactions", h.ListReactions)

	api.POST("/ai/conversations", h.CreateConversation)
	api.GET("/ai/conversations", h.ListConversations)
	api.GET("/ai/conversations/:id/transcript", h.GetTranscript)
	api.POST("/ai/conversations/:id/turns", h.AppendTurn)

	api.POST("/accounts", h.LinkAccount)
	api.GET("/accounts", h.ListAccounts)
	api.DELETE("/accounts/:provider/:providerAccountID", h.UnlinkAccount)

	api.GET("/ws", h.ServeWebSocket)
}

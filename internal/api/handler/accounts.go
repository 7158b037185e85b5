package handler

import (
	"chatcore/backend/internal/accounts"
	"net/http"

	"github.com/gin-gonic/gin"
)

// LinkAccount links a provider identity to the caller.
func (h *Handler) LinkAccount(c *gin.Context) {
	var in accounts.AccountInput
	if !bind(c, &in) {
		return
	}
	in.UserID = currentUser(c)
	acc, err := h.Accounts.LinkAccount(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *Handler) ListAccounts(c *gin.Context) {
	list, err := h.Accounts.ListAccounts(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": list})
}

func (h *Handler) UnlinkAccount(c *gin.Context) {
	err := h.Accounts.UnlinkAccount(c.Request.Context(), currentUser(c), c.Param("provider"), c.Param("providerAccountID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

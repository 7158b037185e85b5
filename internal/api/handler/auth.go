package handler

import (
	"chatcore/backend/internal/models"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer   = "chatcore-service"
	userIDKey     = "user_id"
	bearerPrefix  = "Bearer "
	tokenQueryArg = "token"
)

// TokenIssuer signs and verifies HS256 access tokens. The user ID travels in the "sub" claim.
type TokenIssuer struct {
	Secret []byte
	TTL    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{Secret: []byte(secret), TTL: ttl}
}

// Issue генерує JWT для користувача
func (t *TokenIssuer) Issue(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.TTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
}

// Parse validates a token and returns the user ID it was issued for.
func (t *TokenIssuer) Parse(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return t.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// bearerToken extracts the token from the Authorization header, or from the
// query string for WebSocket handshakes where browsers cannot set headers.
func bearerToken(c *gin.Context) (string, error) {
	if h := c.GetHeader("Authorization"); h != "" {
		if !strings.HasPrefix(h, bearerPrefix) {
			return "", fmt.Errorf("malformed Authorization header")
		}
		return strings.TrimPrefix(h, bearerPrefix), nil
	}
	if q := c.Query(tokenQueryArg); q != "" {
		return q, nil
	}
	return "", errors.New("authorization token missing")
}

// RequireAuth rejects requests without a valid token and stores the caller's ID in the context.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		userID, err := h.Auth.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register creates a user and returns an access token.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}
	user, err := h.Accounts.Register(c.Request.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondWithToken(c, http.StatusCreated, user.ID, user)
}

// Login exchanges credentials for an access token.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	user, err := h.Accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrForbidden):
		// Unknown email and wrong password look the same to the caller.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	case err != nil:
		respondError(c, err)
		return
	}
	h.respondWithToken(c, http.StatusOK, user.ID, user)
}

func (h *Handler) respondWithToken(c *gin.Context, status int, userID string, user interface{}) {
	token, err := h.Auth.Issue(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}
	c.JSON(status, gin.H{"token": token, "user": user})
}

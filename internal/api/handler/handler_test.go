package handler_test

import (
	"bytes"
	"chatcore/backend/internal/accounts"
	"chatcore/backend/internal/aiconv"
	"chatcore/backend/internal/api/handler"
	"chatcore/backend/internal/database/dbtest"
	"chatcore/backend/internal/delivery"
	"chatcore/backend/internal/membership"
	"chatcore/backend/internal/messaging"
	"chatcore/backend/internal/reaction"
	"chatcore/backend/internal/storage"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type api struct {
	t      *testing.T
	router *gin.Engine
	auth   *handler.TokenIssuer
}

func newAPI(t *testing.T) *api {
	gin.SetMode(gin.TestMode)
	store := storage.NewStorageService(dbtest.New(t), nil)

	acc := accounts.NewService(store)
	acc.Cost = bcrypt.MinCost
	svc := handler.Services{
		Accounts:  acc,
		Members:   membership.NewService(store, nil),
		Messages:  messaging.NewService(store, nil),
		Delivery:  delivery.NewService(store, nil),
		Reactions: reaction.NewService(store, nil),
		AI:        aiconv.NewService(store),
	}
	auth := handler.NewTokenIssuer("test-secret", time.Hour)
	r := gin.New()
	handler.NewHandler(nil, auth, svc).Routes(r)
	return &api{t: t, router: r, auth: auth}
}

func (a *api) do(method, path, token string, body interface{}) (int, map[string]interface{}) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	out := map[string]interface{}{}
	if w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

// register creates a user and returns its token and ID.
func (a *api) register(email string) (string, string) {
	a.t.Helper()
	code, body := a.do(http.MethodPost, "/auth/register", "", gin.H{"email": email, "password": "long enough"})
	require.Equal(a.t, http.StatusCreated, code, body)
	user := body["user"].(map[string]interface{})
	return body["token"].(string), user["id"].(string)
}

func TestAuth(t *testing.T) {
	a := newAPI(t)
	a.register("alice@example.com")

	code, body := a.do(http.MethodPost, "/auth/login", "", gin.H{"email": "alice@example.com", "password": "long enough"})
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["token"])
	_, hasHash := body["user"].(map[string]interface{})["PasswordHash"]
	assert.False(t, hasHash)

	code, _ = a.do(http.MethodPost, "/auth/login", "", gin.H{"email": "alice@example.com", "password": "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = a.do(http.MethodPost, "/auth/register", "", gin.H{"email": "alice@example.com", "password": "long enough"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = a.do(http.MethodGet, "/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = a.do(http.MethodGet, "/sessions", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestTokenIssuer(t *testing.T) {
	issuer := handler.NewTokenIssuer("secret", time.Hour)
	token, err := issuer.Issue("user-1")
	require.NoError(t, err)
	id, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)

	_, err = handler.NewTokenIssuer("other", time.Hour).Parse(token)
	assert.Error(t, err, "wrong secret")

	expired, err := handler.NewTokenIssuer("secret", -time.Minute).Issue("user-1")
	require.NoError(t, err)
	_, err = issuer.Parse(expired)
	assert.Error(t, err)
}

func TestConversationFlow(t *testing.T) {
	a := newAPI(t)
	alice, _ := a.register("alice@example.com")
	bob, bobID := a.register("bob@example.com")
	carol, _ := a.register("carol@example.com")

	code, session := a.do(http.MethodPost, "/sessions", alice, gin.H{"participant_ids": []string{bobID}})
	require.Equal(t, http.StatusCreated, code, session)
	sid := session["id"].(string)

	code, m1 := a.do(http.MethodPost, "/sessions/"+sid+"/messages", alice, gin.H{"content": "hi"})
	require.Equal(t, http.StatusCreated, code, m1)
	m1ID := m1["id"].(string)

	code, m2 := a.do(http.MethodPost, "/sessions/"+sid+"/messages", bob, gin.H{"content": "hello", "reply_to_id": m1ID})
	require.Equal(t, http.StatusCreated, code, m2)

	code, _ = a.do(http.MethodPost, "/sessions/"+sid+"/messages", carol, gin.H{"content": "intruder"})
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(http.MethodGet, "/sessions/"+sid+"/messages", carol, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(http.MethodPost, "/sessions/"+sid+"/messages", alice, gin.H{"content": "x", "reply_to_id": "missing"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	code, _ = a.do(http.MethodPost, "/sessions/"+sid+"/messages", alice, gin.H{"content": ""})
	assert.Equal(t, http.StatusBadRequest, code)

	code, page := a.do(http.MethodGet, "/sessions/"+sid+"/messages?limit=1", bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, page["messages"], 1)
	require.NotEmpty(t, page["next_cursor"])
	code, page = a.do(http.MethodGet, "/sessions/"+sid+"/messages?limit=1&cursor="+page["next_cursor"].(string), bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, m2["id"], page["messages"].([]interface{})[0].(map[string]interface{})["id"])

	code, thread := a.do(http.MethodGet, "/messages/"+m1ID+"/thread", bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, thread["replies"], 1)

	code, counts := a.do(http.MethodGet, "/sessions/"+sid+"/counts", bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), counts["unread"])

	code, _ = a.do(http.MethodPost, "/messages/"+m1ID+"/read", alice, nil)
	assert.Equal(t, http.StatusForbidden, code, "the sender cannot mark their own message read")
	code, _ = a.do(http.MethodPost, "/messages/"+m1ID+"/delivered", alice, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, counts = a.do(http.MethodGet, "/sessions/"+sid+"/counts", alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), counts["counts"].(map[string]interface{})["sent"], "own acknowledgements left the flags untouched")

	code, read := a.do(http.MethodPost, "/messages/"+m1ID+"/read", bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, read["delivered"])
	assert.Equal(t, true, read["read"])

	code, marked := a.do(http.MethodPost, "/sessions/"+sid+"/read", alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), marked["updated"])

	code, _ = a.do(http.MethodPost, "/messages/"+m1ID+"/reactions", bob, gin.H{"emoji": "👍"})
	require.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodPost, "/messages/"+m1ID+"/reactions", bob, gin.H{"emoji": "👍"})
	require.Equal(t, http.StatusOK, code)
	code, reactions := a.do(http.MethodGet, "/messages/"+m1ID+"/reactions", alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]interface{}{"👍": float64(1)}, reactions["tally"])

	code, _ = a.do(http.MethodDelete, "/messages/"+m1ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(http.MethodDelete, "/messages/"+m1ID, alice, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = a.do(http.MethodGet, "/messages/"+m1ID+"/thread", alice, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAIConversationFlow(t *testing.T) {
	a := newAPI(t)
	alice, _ := a.register("alice@example.com")
	bob, _ := a.register("bob@example.com")

	code, conv := a.do(http.MethodPost, "/ai/conversations", alice, gin.H{"title": "Recipes"})
	require.Equal(t, http.StatusCreated, code)
	id := conv["id"].(string)

	code, _ = a.do(http.MethodPost, "/ai/conversations/"+id+"/turns", alice, gin.H{"role": "user", "content": "pasta?"})
	require.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodPost, "/ai/conversations/"+id+"/turns", alice, gin.H{"role": "user"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, transcript := a.do(http.MethodGet, "/ai/conversations/"+id+"/transcript", alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, transcript["turns"], 1)

	code, _ = a.do(http.MethodGet, "/ai/conversations/"+id+"/transcript", bob, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, list := a.do(http.MethodGet, "/ai/conversations", alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list["conversations"], 1)
}

func TestAccountsFlow(t *testing.T) {
	a := newAPI(t)
	alice, _ := a.register("alice@example.com")

	link := gin.H{"type": "oauth", "provider": "github", "provider_account_id": "42"}
	code, _ := a.do(http.MethodPost, "/accounts", alice, link)
	require.Equal(t, http.StatusOK, code)

	code, list := a.do(http.MethodGet, "/accounts", alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list["accounts"], 1)

	code, _ = a.do(http.MethodDelete, "/accounts/github/42", alice, nil)
	assert.Equal(t, http.StatusNoContent, code)
}

func TestServeWebSocket_Disabled(t *testing.T) {
	a := newAPI(t)
	token, _ := a.register("alice@example.com")
	code, _ := a.do(http.MethodGet, "/ws?token="+token, "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/utils"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("secret", 1)
	id := models.OperatorID("ops@x.com")
	tok, err := svc.Generate(id, "ops@x.com", "admin")
	require.NoError(t, err)

	claims, err := svc.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, id, claims.OperatorID)
	assert.Equal(t, "admin", claims.Role)

	_, err = NewJWTService("other", 1).Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTExpired(t *testing.T) {
	svc := NewJWTService("secret", 1)
	tok, err := svc.Generate(models.OperatorID("ops@x.com"), "ops@x.com", "admin")
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestStaticOperators(t *testing.T) {
	ops := NewStaticOperators(
		models.Operator{Email: " Ops@X.com ", PasswordHash: "h"},
		models.Operator{Email: "nohash@x.com"},
	)
	assert.Equal(t, 1, ops.Len())
	op, err := ops.GetByEmail(context.Background(), "OPS@x.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, op.Role)
	assert.Equal(t, models.OperatorID("ops@x.com"), op.ID)

	_, err = ops.GetByEmail(context.Background(), "nohash@x.com")
	assert.ErrorIs(t, err, ErrOperatorNotFound)
}

func TestLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hash, err := utils.HashPassword("hunter22")
	require.NoError(t, err)
	jwtSvc := NewJWTService("secret", 1)
	h := NewHandler(NewStaticOperators(models.Operator{Email: "ops@x.com", PasswordHash: hash}), jwtSvc, nil)
	r := gin.New()
	r.POST("/auth/login", h.Login)

	login := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := login(`{"email":"ops@x.com","password":"hunter22"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data TokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	claims, err := jwtSvc.Validate(body.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, "ops@x.com", claims.Email)
	assert.NotContains(t, w.Body.String(), hash)

	assert.Equal(t, http.StatusUnauthorized, login(`{"email":"ops@x.com","password":"wrong"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, login(`{"email":"who@x.com","password":"hunter22"}`).Code)
	w = login(`{"email":"ops"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
	assert.NotContains(t, w.Body.String(), "LoginRequest")
}

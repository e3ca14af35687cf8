package emaillogs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/backend/internal/models"
)

type listerFunc func(ctx context.Context, eventID int64) ([]*models.EmailLog, error)

func (f listerFunc) ListByEvent(ctx context.Context, eventID int64) ([]*models.EmailLog, error) {
	return f(ctx, eventID)
}

func serve(t *testing.T, l Lister, path string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin/events/:id/emails", NewHandler(l, nil).ListByEvent)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestListByEvent(t *testing.T) {
	var got int64
	eventID := int64(7)
	l := listerFunc(func(_ context.Context, id int64) ([]*models.EmailLog, error) {
		got = id
		return []*models.EmailLog{{ID: uuid.New(), EventID: &eventID, EmailType: "waitlisted", RecipientEmail: "a@x.com", Status: models.EmailLogStatusSent}}, nil
	})
	w := serve(t, l, "/admin/events/7/emails")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(7), got)

	var body struct {
		Success bool               `json:"success"`
		Data    []*models.EmailLog `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "waitlisted", body.Data[0].EmailType)
}

func TestListByEventErrors(t *testing.T) {
	failing := listerFunc(func(context.Context, int64) ([]*models.EmailLog, error) { return nil, errors.New("db down") })
	assert.Equal(t, http.StatusBadRequest, serve(t, failing, "/admin/events/abc/emails").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, failing, "/admin/events/0/emails").Code)
	assert.Equal(t, http.StatusInternalServerError, serve(t, failing, "/admin/events/3/emails").Code)
}

package events_api_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-attendance/internal/auth"
	"ms-attendance/internal/events"
	eventsdb "ms-attendance/internal/events/db"
	"ms-attendance/internal/events/events_api"
	identitydb "ms-attendance/internal/identity/db"
	"ms-attendance/internal/logger"
	"ms-attendance/internal/models"
	"ms-attendance/internal/utils"
)

func setupRouter(t *testing.T, roles ...string) (http.Handler, *identitydb.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	for _, model := range []interface{}{(*models.Event)(nil), (*models.Registration)(nil), (*models.User)(nil)} {
		_, err := bunDB.NewCreateTable().Model(model).Exec(context.Background())
		require.NoError(t, err)
	}
	t.Cleanup(func() { bunDB.Close() })

	identity := &identitydb.DB{Bun: bunDB}
	svc := events.NewEventService(&eventsdb.DB{Bun: bunDB}, identity, logger.NewDiscardLogger())
	handler := events_api.NewHandler(svc, logger.NewDiscardLogger(), models.RoleAdmin)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Anonymous(roles...))
		r.Route("/api", handler.RegisterRoutes)
	})
	return r, identity
}

func call(router http.Handler, method, path, body, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-User-ID", userID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestEventLifecycle(t *testing.T) {
	router, identity := setupRouter(t, models.RoleAdmin)
	require.NoError(t, identity.CreateUser(context.Background(), &models.User{ID: "1001", FullName: "Ana Torres", Role: models.RoleStudent}))

	rec := call(router, http.MethodPost, "/api/events", `{"title": "Congreso", "starts_at": "2025-06-01T09:00:00Z", "provision_details": {"items": ["Desayuno"]}}`, "admin")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data models.Event `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	eventID := created.Data.ID
	require.NotEmpty(t, eventID)
	assert.Equal(t, "admin", created.Data.CreatedBy)

	rec = call(router, http.MethodPost, "/api/events", `{"starts_at": "2025-06-01T09:00:00Z"}`, "admin")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(router, http.MethodPost, "/api/events/"+eventID+"/join", "", "1001")
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = call(router, http.MethodPost, "/api/events/"+eventID+"/join", "", "1001")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(router, http.MethodPost, "/api/events/"+eventID+"/join", "", "9999")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(router, http.MethodPost, "/api/events/missing/join", "", "1001")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(router, http.MethodGet, "/api/events/"+eventID+"/registrants", "", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	var registrants utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &registrants))
	assert.Len(t, registrants.Data, 1)

	rec = call(router, http.MethodGet, "/api/me/events", "", "1001")
	require.Equal(t, http.StatusOK, rec.Code)
	var mine utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Len(t, mine.Data, 1)

	rec = call(router, http.MethodGet, "/api/events/"+eventID, "", "1001")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateEventRequiresStaff(t *testing.T) {
	router, _ := setupRouter(t, models.RoleStudent)
	rec := call(router, http.MethodPost, "/api/events", `{"title": "X", "starts_at": "2025-06-01T09:00:00Z"}`, "1001")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(router, http.MethodGet, "/api/events", "", "1001")
	assert.Equal(t, http.StatusOK, rec.Code)
}

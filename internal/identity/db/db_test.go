package db_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-attendance/internal/identity/db"
	"ms-attendance/internal/models"
)

func setupTestDB(t *testing.T) *db.DB {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	for _, model := range []interface{}{(*models.User)(nil), (*models.LegacyAttendee)(nil)} {
		_, err := bunDB.NewCreateTable().Model(model).Exec(context.Background())
		require.NoError(t, err)
	}

	t.Cleanup(func() { bunDB.Close() })
	return &db.DB{Bun: bunDB}
}

func TestUsers(t *testing.T) {
	identityDB := setupTestDB(t)
	ctx := context.Background()

	user := &models.User{ID: "1001", FullName: "Ana Torres", Email: "ana@example.com", Role: models.RoleStudent, Affiliation: "Quito"}
	require.NoError(t, identityDB.CreateUser(ctx, user))
	assert.False(t, user.CreatedAt.IsZero())

	err := identityDB.CreateUser(ctx, &models.User{ID: "1001", FullName: "Other", Role: models.RoleGuest})
	assert.ErrorIs(t, err, db.ErrUserExists)

	got, err := identityDB.FindUser(ctx, "1001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ana Torres", got.FullName)

	missing, err := identityDB.FindUser(ctx, "9999")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpsertLegacy(t *testing.T) {
	identityDB := setupTestDB(t)
	ctx := context.Background()

	created, err := identityDB.UpsertLegacy(ctx, &models.LegacyAttendee{ExternalID: "L-1", FullName: "Rosa Paz", Affiliation: "Cuenca"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = identityDB.UpsertLegacy(ctx, &models.LegacyAttendee{ExternalID: "L-1", FullName: "Rosa Paz", Email: "rosa@example.com", Affiliation: "Cuenca"})
	require.NoError(t, err)
	assert.False(t, created)

	got, err := identityDB.FindLegacy(ctx, "L-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "rosa@example.com", got.Email)
	assert.False(t, got.CreatedAt.IsZero())

	missing, err := identityDB.FindLegacy(ctx, "L-2")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

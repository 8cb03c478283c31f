package bootstrap

import (
	"context"
	"database/sql"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/cashier/config"
	"github.com/target/cashier/internal/migrate"
	"github.com/target/cashier/internal/testutil"
)

func TestArchiveDSN(t *testing.T) {
	dsn := archiveDSN(config.DBConfig{
		Host: "db.internal", Port: 6432, User: "cashier", Password: "p@ss/word",
		Name: "archive", SSLMode: "require",
	})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db.internal:6432", u.Host)
	assert.Equal(t, "/archive", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss/word", pw)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
	assert.Equal(t, "cashier", u.Query().Get("application_name"))
}

func TestMigrateArchive(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		require.NoError(t, MigrateArchive(ctx, db, discardLogger()))
		require.NoError(t, MigrateArchive(ctx, db, discardLogger()), "migrations are idempotent")

		pending, err := migrate.Pending(ctx, db)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}

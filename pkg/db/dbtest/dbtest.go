// pkg/db/dbtest/dbtest.go
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"coinflip-settlement/pkg/db"
)

// TestDatabase is a migrated PostgreSQL instance running in a container.
type TestDatabase struct {
	Container *postgres.PostgresContainer
	DB        *sqlx.DB
	URL       string
}

// Setup starts a PostgreSQL container, connects and applies migrations.
// It skips the test under -short since it needs a Docker daemon.
func Setup(t *testing.T) *TestDatabase {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("coinflip_test"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		postgres.BasicWaitStrategies(),
		testcontainers.CustomizeRequest(testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Labels: map[string]string{
					"test":      "coinflip-settlement",
					"test-name": t.Name(),
				},
			},
		}),
	)
	require.NoError(t, err)

	td := &TestDatabase{Container: container}
	t.Cleanup(func() {
		if td.DB != nil {
			_ = td.DB.Close()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate test container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := db.Connect(connStr)
	require.NoError(t, err)
	require.NoError(t, db.MigrateUp(conn))

	td.DB = conn
	td.URL = connStr
	return td
}

// Truncate clears all settlement tables between subtests.
func (td *TestDatabase) Truncate(t *testing.T) {
	t.Helper()
	_, err := td.DB.Exec(`TRUNCATE TABLE payouts, wagers, accounts RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

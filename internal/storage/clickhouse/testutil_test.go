package clickhouse

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"social-graph-lab/internal/storage/migrations"
)

// setupTestDB starts a ClickHouse server, creates the graph database and
// applies the embedded migrations.
func setupTestDB(t *testing.T) (*Conn, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.1-alpine",
			ExposedPorts: []string{"9000/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready for connections").WithStartupTimeout(60*time.Second),
				wait.ForListeningPort("9000/tcp"),
			),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://default@%s:%s/graph_test", host, port.Port())
	require.NoError(t, EnsureDatabase(ctx, dsn))

	conn, err := NewConn(ctx, dsn)
	require.NoError(t, err)
	require.Equal(t, "graph_test", conn.Database())

	_, err = migrations.RunClickhouseMigrations(ctx, conn)
	require.NoError(t, err)

	return conn, func() {
		conn.Close()
		_ = container.Terminate(ctx)
	}
}

// truncate empties daily_stats between subtests sharing one container.
func truncate(t *testing.T, conn *Conn) {
	t.Helper()
	require.NoError(t, conn.Exec(context.Background(), `TRUNCATE TABLE daily_stats`))
}

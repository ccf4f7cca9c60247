//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"
)

func startPostgresContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "sensor",
			"POSTGRES_PASSWORD": "sensor",
			"POSTGRES_DB":       "SensorDB",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return container, fmt.Sprintf("postgres://sensor:sensor@%s:%s/SensorDB?sslmode=disable", host, port.Port())
}

func TestIntegration_InsertThenLatest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, dsn := startPostgresContainer(ctx, t)
	defer container.Terminate(ctx)

	cfg := Config{ConnString: dsn}
	cfg.ApplyDefaults()
	db, err := Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	pg := NewPostgres(db, cfg.Table)
	require.NoError(t, pg.Migrate(ctx))

	base := time.Date(2025, 3, 28, 5, 46, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		sess, err := pg.Acquire(ctx)
		require.NoError(t, err)
		require.NoError(t, sess.Insert(ctx, domain.Reading{
			MachineID:   domain.Machines[i%2].ID,
			Timestamp:   base.Add(time.Duration(i) * time.Second),
			Temperature: 20 + float64(i),
			Pressure:    1000 + float64(i),
		}))
		require.NoError(t, sess.Close())
	}

	got, err := pg.Latest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 10)
	require.Equal(t, "2025-03-28 05:46:11", domain.FormatStoreTime(got[0].Timestamp))
	require.Equal(t, "2025-03-28 05:46:02", domain.FormatStoreTime(got[9].Timestamp))
	require.Equal(t, 31.0, got[0].Temperature)
}

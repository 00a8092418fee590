package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhildreth66/Routecast2-sub001/internal/config"
)

func TestPoolConfigSizesForTick(t *testing.T) {
	cfg := config.DatabaseConfig{
		DSN:             "postgres://routecast@localhost:5432/routecast",
		MaxOpenConns:    3,
		MaxIdleConns:    8,
		ConnMaxLifetime: 30 * time.Minute,
	}

	pc, err := PoolConfig(cfg, 4)
	require.NoError(t, err)
	assert.Equal(t, int32(6), pc.MaxConns)
	assert.Equal(t, int32(6), pc.MinConns)
	assert.Equal(t, 30*time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, applicationName, pc.ConnConfig.RuntimeParams["application_name"])

	cfg.MaxOpenConns = 20
	pc, err = PoolConfig(cfg, 4)
	require.NoError(t, err)
	assert.Equal(t, int32(20), pc.MaxConns)
	assert.Equal(t, int32(8), pc.MinConns)
}

func TestPoolConfigKeepsExplicitApplicationName(t *testing.T) {
	pc, err := PoolConfig(config.DatabaseConfig{DSN: "postgres://localhost/routecast?application_name=ops"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "ops", pc.ConnConfig.RuntimeParams["application_name"])
}

func TestNewPoolRejectsMissingDSN(t *testing.T) {
	_, err := NewPool(context.Background(), config.DatabaseConfig{}, 4)
	assert.ErrorContains(t, err, "database.dsn is required")

	_, err = PoolConfig(config.DatabaseConfig{DSN: "postgres://%zz"}, 4)
	assert.ErrorContains(t, err, "parse database dsn")
}

package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kcenon/dbcore/config"
)

func TestNewFromConfig_ConnectsAndRegistersPool(t *testing.T) {
	cfg := &config.Database{
		Kind:           "sqlite",
		ConnectString:  ":memory:",
		MinConnections: 0,
		MaxConnections: 4,
		AcquireTimeout: time.Second,
		IdleTimeout:    30 * time.Second,
		HealthInterval: 60 * time.Second,
	}

	db, err := NewFromConfig(context.Background(), cfg, testFacadeLogger(t))
	require.NoError(t, err)
	require.Equal(t, "sqlite", db.Kind().String())

	_, ok := db.Pool(db.Kind())
	require.True(t, ok)

	db.ShutdownPools()
}

func TestNewFromConfig_RejectsUnknownKind(t *testing.T) {
	cfg := &config.Database{Kind: "unknown-backend", ConnectString: "x"}
	_, err := NewFromConfig(context.Background(), cfg, testFacadeLogger(t))
	require.Error(t, err)
}

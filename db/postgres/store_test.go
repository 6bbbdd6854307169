package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_LazyConnect(t *testing.T) {
	store, err := NewStore(DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, store.Close())

	kv := DefaultConfig()
	kv.DSN = "host=localhost dbname=costrisk sslmode=disable"
	store, err = NewStore(kv)
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}

func TestNewStore_InvalidURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DSN = "mysql://user@localhost/costrisk"

	_, err := NewStore(cfg)
	assert.ErrorContains(t, err, "invalid PostgreSQL DSN")
}

func TestSchema(t *testing.T) {
	require.Len(t, schema, 3)
	assert.Contains(t, schema[0], "cost_observations")
	assert.Contains(t, schema[2], "run_id             UUID PRIMARY KEY")
	assert.Contains(t, costSeriesQuery, "GROUP BY day")
}

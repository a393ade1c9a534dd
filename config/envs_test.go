package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 500*time.Millisecond, cfg.Seed.PollInterval)
		assert.Equal(t, "HasTicket", cfg.World.ConsumableKey)
		assert.Equal(t, 0.5, cfg.World.PlaceYOffset)
		assert.Equal(t, "redis", cfg.Session.Backend)
	})

	t.Run("Overrides", func(t *testing.T) {
		t.Setenv("USE_FIXED_SEED", "true")
		t.Setenv("FIXED_SEED", "-42")
		t.Setenv("GRID_WIDTH", "5")
		t.Setenv("COLLECTIBLE_SPAWN_PROBABILITY", "0.25")
		t.Setenv("POLL_INTERVAL", "2s")
		t.Setenv("SESSION_BACKEND", "memory")

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.Seed.UseFixedSeed)
		assert.Equal(t, int32(-42), cfg.Seed.FixedSeed)
		assert.Equal(t, 5, cfg.World.GridWidth)
		assert.Equal(t, 0.25, cfg.World.CollectibleSpawnProbability)
		assert.Equal(t, 2*time.Second, cfg.Seed.PollInterval)
		assert.Equal(t, "memory", cfg.Session.Backend)
	})

	t.Run("Bad value", func(t *testing.T) {
		t.Setenv("GRID_DEPTH", "wide")
		_, err := Load()
		assert.Error(t, err)
	})
}

package storage

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/config"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() game.State {
	return game.State{
		Entities: map[string]game.EntityState{
			"grass": {Kills: big.NewInt(12), Accumulated: big.NewRat(1, 3)},
		},
		LastUpdate: time.UnixMilli(1767258000000),
	}
}

func TestOpen_RoundTripsEveryDriver(t *testing.T) {
	for _, driver := range []string{config.StoreSQLite, config.StoreFile, config.StoreMemory} {
		t.Run(driver, func(t *testing.T) {
			cfg := config.StorageConfig{Driver: driver, DataDir: filepath.Join(t.TempDir(), "nested")}
			cfg.ApplyDefaults()

			repo, closeFn, err := Open(cfg)
			require.NoError(t, err)
			defer func() { require.NoError(t, closeFn()) }()

			ctx := context.Background()
			_, ok, err := repo.Load(ctx)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, repo.Save(ctx, sampleState()))
			st, ok, err := repo.Load(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "12", st.Entities["grass"].Kills.String())
			assert.Equal(t, "1/3", st.Entities["grass"].Accumulated.String())
			assert.Equal(t, int64(1767258000000), st.LastUpdate.UnixMilli())
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, closeFn, err := Open(config.StorageConfig{Driver: "postgres"})
	assert.Error(t, err)
	assert.NoError(t, closeFn())
}

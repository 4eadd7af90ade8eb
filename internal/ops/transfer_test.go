package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/game"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/storage/file"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T) *game.MemoryStateRepo {
	t.Helper()
	repo := game.NewMemoryStateRepo()
	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.NoError(t, repo.Save(context.Background(), game.State{
		Entities: map[string]game.EntityState{
			"grass": {Kills: huge, Accumulated: big.NewRat(1, 60)},
			"stick": {Kills: big.NewInt(4), Accumulated: new(big.Rat)},
		},
		LastUpdate: time.UnixMilli(1767258000000),
	}))
	return repo
}

func TestExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(context.Background(), seeded(t), &buf))

	var rec game.Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "123456789012345678901234567890", rec.Enemies["grass"].Kills)
	assert.Equal(t, "1/60", rec.Enemies["grass"].Accumulated)
	assert.Equal(t, "0", rec.Enemies["stick"].Accumulated)
	assert.Equal(t, int64(1767258000000), rec.LastUpdate)
}

func TestExport_Empty(t *testing.T) {
	err := Export(context.Background(), game.NewMemoryStateRepo(), &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrNoState)
}

func TestImport(t *testing.T) {
	repo := game.NewMemoryStateRepo()
	in := `{"enemies":{"grass":{"kills":"7","accumulated":"500000000000000000"}},"lastUpdate":1767258000000}`

	st, err := Import(context.Background(), repo, strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "1/2", st.Entities["grass"].Accumulated.String())

	saved, ok, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "7", saved.Entities["grass"].Kills.String())
}

func TestImport_Malformed(t *testing.T) {
	repo := game.NewMemoryStateRepo()

	_, err := Import(context.Background(), repo, strings.NewReader(`{"enemies":{"grass":{"kills":"x"}}}`))
	assert.ErrorIs(t, err, game.ErrMalformedState)
	_, err = Import(context.Background(), repo, strings.NewReader(`not json`))
	assert.Error(t, err)
	assert.Equal(t, 0, repo.Saves())
}

func TestCopyToFileStore(t *testing.T) {
	dst, err := file.NewRepo(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, Copy(context.Background(), seeded(t), dst))

	st, ok, err := dst.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "4", st.Entities["stick"].Kills.String())
	assert.ErrorIs(t, Copy(context.Background(), game.NewMemoryStateRepo(), dst), ErrNoState)
}

func TestDrill(t *testing.T) {
	n, err := Drill(context.Background(), seeded(t))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

package registration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "registrants.json"), true)
	require.NoError(t, err)
	return fs
}

func newTestRegistrant(tipo string) *Registrant {
	return &Registrant{
		Tipo:            tipo,
		Nombre:          gofakeit.Name(),
		NombreArtistico: gofakeit.Username(),
		Email:           gofakeit.Email(),
		Pais:            gofakeit.Country(),
		Ciudad:          gofakeit.City(),
		Categoria:       "realismo",
	}
}

func TestFileStore_Add(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()

	registrant := newTestRegistrant(TipoTatuador)
	added, err := fs.Add(ctx, registrant)
	require.NoError(t, err)
	require.NotNil(t, added)

	assert.NotEmpty(t, added.ID)
	assert.Equal(t, EstadoPendiente, added.Estado)
	assert.False(t, added.FechaRegistro.IsZero())
	assert.Equal(t, registrant.Nombre, added.Nombre)
	assert.Equal(t, registrant.Email, added.Email)

	tatuadores, jurados, err := fs.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tatuadores)
	assert.Equal(t, 0, jurados)
}

func TestFileStore_Add_InvalidTipo(t *testing.T) {
	fs := newTestFileStore(t)

	registrant := newTestRegistrant("visitantes")
	added, err := fs.Add(context.Background(), registrant)
	require.Error(t, err)
	assert.Nil(t, added)

	_, err = fs.Add(context.Background(), nil)
	require.Error(t, err)
}

func TestFileStore_List_FiltersByTipo(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()

	_, err := fs.Add(ctx, newTestRegistrant(TipoTatuador))
	require.NoError(t, err)
	_, err = fs.Add(ctx, newTestRegistrant(TipoJurado))
	require.NoError(t, err)
	_, err = fs.Add(ctx, newTestRegistrant(TipoTatuador))
	require.NoError(t, err)

	tatuadores, err := fs.List(ctx, TipoTatuador)
	require.NoError(t, err)
	require.Len(t, tatuadores, 2)
	for _, r := range tatuadores {
		assert.Equal(t, TipoTatuador, r.Tipo)
	}

	jurados, err := fs.List(ctx, TipoJurado)
	require.NoError(t, err)
	require.Len(t, jurados, 1)

	_, err = fs.List(ctx, "patrocinadores")
	require.Error(t, err)
}

func TestFileStore_UniqueIDsWithFrozenClock(t *testing.T) {
	fs := newTestFileStore(t)
	now := time.Now()
	fs.NowFunc = func() time.Time { return now }

	seen := map[string]struct{}{}
	for i := 0; i < 5; i++ {
		added, err := fs.Add(context.Background(), newTestRegistrant(TipoJurado))
		require.NoError(t, err)
		_, collision := seen[added.ID]
		require.False(t, collision, "duplicate id %s", added.ID)
		seen[added.ID] = struct{}{}
	}
}

func TestFileStore_SetEstado(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()

	added, err := fs.Add(ctx, newTestRegistrant(TipoTatuador))
	require.NoError(t, err)

	updated, err := fs.SetEstado(ctx, TipoTatuador, added.ID, EstadoAceptado)
	require.NoError(t, err)
	assert.Equal(t, EstadoAceptado, updated.Estado)
	assert.Equal(t, added.ID, updated.ID)

	updated, err = fs.SetEstado(ctx, TipoTatuador, added.ID, EstadoRechazado)
	require.NoError(t, err)
	assert.Equal(t, EstadoRechazado, updated.Estado)
}

func TestFileStore_SetEstado_Errors(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()

	added, err := fs.Add(ctx, newTestRegistrant(TipoTatuador))
	require.NoError(t, err)

	_, err = fs.SetEstado(ctx, TipoTatuador, "1", EstadoAceptado)
	require.ErrorIs(t, err, ErrRegistrantNotFound)

	// same id, wrong tipo
	_, err = fs.SetEstado(ctx, TipoJurado, added.ID, EstadoAceptado)
	require.ErrorIs(t, err, ErrRegistrantNotFound)

	_, err = fs.SetEstado(ctx, TipoTatuador, added.ID, "archivado")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrRegistrantNotFound)
}

func TestFileStore_Delete_Idempotent(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()

	added, err := fs.Add(ctx, newTestRegistrant(TipoJurado))
	require.NoError(t, err)

	require.NoError(t, fs.Delete(ctx, TipoJurado, added.ID))
	require.NoError(t, fs.Delete(ctx, TipoJurado, added.ID))

	_, jurados, err := fs.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, jurados)
}

func TestFileStore_PersistenceAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registrants.json")
	ctx := context.Background()

	fs, err := NewFileStore(path, true)
	require.NoError(t, err)
	added, err := fs.Add(ctx, newTestRegistrant(TipoTatuador))
	require.NoError(t, err)
	_, err = fs.SetEstado(ctx, TipoTatuador, added.ID, EstadoAceptado)
	require.NoError(t, err)

	reloaded, err := NewFileStore(path, true)
	require.NoError(t, err)
	registrants, err := reloaded.List(ctx, TipoTatuador)
	require.NoError(t, err)
	require.Len(t, registrants, 1)
	assert.Equal(t, added.ID, registrants[0].ID)
	assert.Equal(t, EstadoAceptado, registrants[0].Estado)

	// stored as an indented json array
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(raw))
	assert.Contains(t, string(raw), "\n  {")
}

func TestFileStore_ConcurrentAdds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registrants.json")
	fs, err := NewFileStore(path, true)
	require.NoError(t, err)

	const addsCount = 20
	var wg sync.WaitGroup
	wg.Add(addsCount)
	for i := 0; i < addsCount; i++ {
		go func() {
			defer wg.Done()
			_, addErr := fs.Add(context.Background(), newTestRegistrant(TipoTatuador))
			assert.NoError(t, addErr)
		}()
	}
	wg.Wait()

	// every write must survive, none overwritten by a concurrent one
	reloaded, err := NewFileStore(path, true)
	require.NoError(t, err)
	registrants, err := reloaded.List(context.Background(), TipoTatuador)
	require.NoError(t, err)
	assert.Len(t, registrants, addsCount)
}

func TestNewFileStore_ReadErrorPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registrants.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path, true)
	require.Error(t, err)

	fs, err := NewFileStore(path, false)
	require.NoError(t, err)
	tatuadores, jurados, err := fs.Counts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, tatuadores)
	assert.Zero(t, jurados)
}

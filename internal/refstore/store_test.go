package refstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facecheck/internal/config"
	"github.com/your-org/facecheck/internal/face"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "refs", "references.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })

	return map[string]Store{
		"memory":   NewMemory(),
		"sqlite":   sq,
		"postgres": NewPostgres(&fakePG{mem: NewMemory()}),
	}
}

func TestStore(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("UnknownIdentityIsEmpty", func(t *testing.T) {
				got, err := store.ByIdentity(ctx, "nobody")
				require.NoError(t, err)
				assert.NotNil(t, got)
				assert.Empty(t, got)

				n, err := store.Count(ctx, "nobody")
				require.NoError(t, err)
				assert.Zero(t, n)
			})

			t.Run("InsertAndQuery", func(t *testing.T) {
				require.NoError(t, store.Insert(ctx, "E-1", []face.Embedding{{0.1, 0.2}, {0.3, 0.4}}))
				require.NoError(t, store.Insert(ctx, "E-2", []face.Embedding{{1, 1}}))
				require.NoError(t, store.Insert(ctx, "E-1", []face.Embedding{{0.5, 0.6}}))

				got, err := store.ByIdentity(ctx, "E-1")
				require.NoError(t, err)
				assert.ElementsMatch(t, []face.Embedding{{0.1, 0.2}, {0.3, 0.4}, {0.5, 0.6}}, got)

				n, err := store.Count(ctx, "E-1")
				require.NoError(t, err)
				assert.Equal(t, 3, n)

				all, err := store.All(ctx)
				require.NoError(t, err)
				counts := map[string]int{}
				for _, r := range all {
					counts[r.Identity] = len(r.Embeddings)
				}
				assert.Equal(t, map[string]int{"E-1": 3, "E-2": 1}, counts)
			})

			t.Run("RejectsInvalid", func(t *testing.T) {
				assert.ErrorIs(t, store.Insert(ctx, "", []face.Embedding{{1}}), ErrEmptyIdentity)
				assert.ErrorIs(t, store.Insert(ctx, "E-3", nil), ErrNoEmbeddings)
				assert.ErrorIs(t, store.Insert(ctx, "E-3", []face.Embedding{{}}), ErrEmptyEmbedding)
			})

			t.Run("DeleteRemovesEveryRecord", func(t *testing.T) {
				require.NoError(t, store.DeleteByIdentity(ctx, "E-1"))
				got, err := store.ByIdentity(ctx, "E-1")
				require.NoError(t, err)
				assert.Empty(t, got)

				other, err := store.ByIdentity(ctx, "E-2")
				require.NoError(t, err)
				assert.Len(t, other, 1)
			})

			t.Run("Clear", func(t *testing.T) {
				require.NoError(t, store.Clear(ctx))
				all, err := store.All(ctx)
				require.NoError(t, err)
				assert.Empty(t, all)
			})
		})
	}
}

func TestMemory_IsolatesCallerSlices(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	e := face.Embedding{1, 2, 3}
	require.NoError(t, m.Insert(ctx, "E-1", []face.Embedding{e}))

	e[0] = 99
	got, err := m.ByIdentity(ctx, "E-1")
	require.NoError(t, err)
	assert.Equal(t, float32(1), got[0][0])
}

func TestSQLite_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "references.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, "E-9", []face.Embedding{{0.25, -0.5, 1}}))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.ByIdentity(ctx, "E-9")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, face.Embedding{0.25, -0.5, 1}, got[0])
}

func TestOpen(t *testing.T) {
	s, err := Open(config.ReferencesConfig{Backend: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Open(config.ReferencesConfig{Backend: "postgres"}, nil)
	assert.ErrorIs(t, err, ErrBackendRequired)

	pg, err := Open(config.ReferencesConfig{Backend: "postgres"}, &fakePG{mem: NewMemory()})
	require.NoError(t, err)
	assert.IsType(t, &Postgres{}, pg)

	_, err = Open(config.ReferencesConfig{Backend: "redis"}, nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

// fakePG backs the Postgres adapter with a Memory store.
type fakePG struct {
	mem *Memory
}

func (f *fakePG) InsertReferences(ctx context.Context, id string, e []face.Embedding) error {
	return f.mem.Insert(ctx, id, e)
}

func (f *fakePG) ReferencesByIdentity(ctx context.Context, id string) ([]face.Embedding, error) {
	embs, _ := f.mem.ByIdentity(ctx, id)
	if len(embs) == 0 {
		return nil, nil
	}
	return embs, nil
}

func (f *fakePG) AllReferences(ctx context.Context) ([]face.Reference, error) {
	return f.mem.All(ctx)
}

func (f *fakePG) DeleteReferences(ctx context.Context, id string) error {
	return f.mem.DeleteByIdentity(ctx, id)
}

func (f *fakePG) ClearReferences(ctx context.Context) error {
	return f.mem.Clear(ctx)
}

func (f *fakePG) CountReferences(ctx context.Context, id string) (int, error) {
	return f.mem.Count(ctx, id)
}

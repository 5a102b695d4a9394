package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyprcat/gateway/internal/linkeddata"
)

// backendTest exercises the full Store contract against one backend.
func backendTest(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "https://example.com/missing")
	assert.ErrorIs(t, err, ErrNotFound)

	a := linkeddata.NewNode("https://example.com/a", "schema:Product")
	a.Set("schema:name", "alpha")
	b := linkeddata.NewNode("https://example.com/b", "schema:Store")
	require.NoError(t, s.Put(ctx, a.ID(), a))
	require.NoError(t, s.Put(ctx, b.ID(), b))

	got, err := s.Get(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.GetString("schema:name"))

	// Mutating the returned node must not leak back into the store.
	got.Set("schema:name", "mutated")
	fresh, err := s.Get(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, "alpha", fresh.GetString("schema:name"))

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, ids)

	products, err := s.FindByType(ctx, "schema:Product")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, a.ID(), products[0].ID())

	// Overwrite changes the indexed type.
	a2 := linkeddata.NewNode(a.ID(), "schema:Offer")
	require.NoError(t, s.Put(ctx, a.ID(), a2))
	products, err = s.FindByType(ctx, "schema:Product")
	require.NoError(t, err)
	assert.Empty(t, products)

	deleted, err := s.Delete(ctx, a.ID())
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = s.Delete(ctx, a.ID())
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.Get(ctx, a.ID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	backendTest(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	backendTest(t, NewFileStore(t.TempDir()))
}

func TestFileStoreListBeforeFirstWrite(t *testing.T) {
	s := NewFileStore(t.TempDir() + "/never-created")
	ids, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEncodeDecodeID(t *testing.T) {
	ids := []string{
		"https://example.com/nodes/product/ion-cell",
		"did:web:quantum-goods.example",
		"urn:uuid:0f1e2d3c",
		"https://example.com/x?page=2&q=a b",
	}
	for _, id := range ids {
		encoded := EncodeID(id)
		assert.NotContains(t, encoded, "/")
		decoded, err := DecodeID(encoded)
		require.NoError(t, err)
		assert.Equal(t, id, decoded)
	}
}

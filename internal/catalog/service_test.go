package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyprcat/gateway/internal/linkeddata"
	"github.com/hyprcat/gateway/internal/store"
)

const testBase = "https://mesh.test"

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(store.NewMemoryStore(), testBase, zap.NewNop())
	require.NoError(t, svc.Seed(context.Background()))
	return svc
}

func TestSeedIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	before, err := svc.Store().List(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Seed(ctx))
	after, err := svc.Store().List(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	cat, err := svc.Store().Get(ctx, svc.CatalogID())
	require.NoError(t, err)
	assert.Len(t, cat.Members(), 4)
}

func TestRegisterAppendsToCatalog(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	n := linkeddata.NewNode(testBase+"/nodes/dataset/weather", "dcat:Dataset")
	n.Set("schema:name", "Weather observations")
	require.NoError(t, svc.Register(ctx, n))

	cat, err := svc.Store().Get(ctx, svc.CatalogID())
	require.NoError(t, err)
	assert.Len(t, cat.Members(), 5)

	// Re-registering the same id must not duplicate the member entry.
	require.NoError(t, svc.Register(ctx, n))
	cat, err = svc.Store().Get(ctx, svc.CatalogID())
	require.NoError(t, err)
	assert.Len(t, cat.Members(), 5)
}

func TestRegisterRejectsInvalidResource(t *testing.T) {
	svc := newTestService(t)
	err := svc.Register(context.Background(), linkeddata.Node{"schema:name": "nameless"})
	assert.ErrorIs(t, err, ErrInvalidResource)
}

func TestSearchByTypeAndQuery(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	byType, err := svc.Search(ctx, SearchParams{Type: "czero:VirtualGraph"})
	require.NoError(t, err)
	require.Len(t, byType.Members(), 1)
	assert.Equal(t, testBase+"/nodes/graph/market-insights", byType.Members()[0].ID())

	byQuery, err := svc.Search(ctx, SearchParams{Query: "quantum"})
	require.NoError(t, err)
	require.Len(t, byQuery.Members(), 1)
	assert.Equal(t, testBase+"/nodes/store/quantum-goods", byQuery.Members()[0].ID())

	byDomain, err := svc.Search(ctx, SearchParams{Domain: "retail"})
	require.NoError(t, err)
	assert.Len(t, byDomain.Members(), 1)
}

func TestSearchPagination(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		n := linkeddata.NewNode(testBase+"/nodes/bulk/"+string(rune('a'+i)), "schema:Dataset")
		n.Set("schema:name", "bulk")
		require.NoError(t, svc.Register(ctx, n))
	}

	page1, err := svc.Search(ctx, SearchParams{Type: "schema:Dataset", PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, page1.Members(), 10)
	total, _ := page1.GetInt("totalItems")
	assert.EqualValues(t, 25, total)

	view, ok := page1.GetNode("hydra:view")
	require.True(t, ok)
	assert.NotEmpty(t, view.GetString("next"))
	assert.Empty(t, view.GetString("previous"))

	page3, err := svc.Search(ctx, SearchParams{Type: "schema:Dataset", Page: 3, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, page3.Members(), 5)
	view3, ok := page3.GetNode("hydra:view")
	require.True(t, ok)
	assert.Empty(t, view3.GetString("next"))
	assert.NotEmpty(t, view3.GetString("previous"))
}

func TestSearchClampsPageSize(t *testing.T) {
	svc := newTestService(t)
	result, err := svc.Search(context.Background(), SearchParams{Page: -3, PageSize: 9999})
	require.NoError(t, err)
	view, ok := result.GetNode("hydra:view")
	require.True(t, ok)
	assert.Contains(t, view.ID(), "pageSize=100")
}

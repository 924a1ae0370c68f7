package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/store/sqlite"
)

func newCatalog(t *testing.T, products ...domain.Product) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(t.TempDir() + "/catalog.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = s.UpsertProducts(context.Background(), products)
	require.NoError(t, err)
	return s
}

func TestFindBestProductsRanksByPopularity(t *testing.T) {
	catalog := newCatalog(t,
		domain.Product{ID: "P1", Name: "Foam", SkinTypes: []string{"oily"}, Popularity: 10},
		domain.Product{ID: "P2", Name: "Gel", SkinTypes: []string{"oily"}, Popularity: 20},
		domain.Product{ID: "P3", Name: "Balm", SkinTypes: []string{"dry"}, Popularity: 99},
	)
	tool := NewFindBestProducts(catalog)

	out, err := tool.Execute(context.Background(), map[string]any{"skinType": "oily"})
	require.NoError(t, err)

	products := out.(*domain.ProductsOutput)
	require.Len(t, products.Products, 2)
	assert.Equal(t, "P2", products.Products[0].ID)
	assert.Equal(t, "P1", products.Products[1].ID)
	assert.Equal(t, "Found 2 matching products.", products.Summary)
}

func TestFindBestProductsAcceptsFreeFormSkinType(t *testing.T) {
	catalog := newCatalog(t,
		domain.Product{ID: "P1", Name: "Foam", SkinTypes: []string{"oily"}, Popularity: 10},
		domain.Product{ID: "P2", Name: "Lotion", SkinTypes: []string{"combination"}, Popularity: 20},
		domain.Product{ID: "P3", Name: "Balm", SkinTypes: []string{"dry"}, Popularity: 99},
	)
	r := NewRegistry(0)
	r.Register(NewFindBestProducts(catalog))

	part, _ := r.Invoke(context.Background(), domain.ToolCall{ID: "c1", Name: domain.ToolFindBestProducts, Input: map[string]any{"skinType": "Oily/Combination"}})
	require.Equal(t, domain.StateOutputAvailable, part.State, part.ErrorText)

	products := part.Output.(*domain.ProductsOutput)
	require.Len(t, products.Products, 2)
	assert.Equal(t, "P2", products.Products[0].ID)
	assert.Equal(t, "P1", products.Products[1].ID)
}

func TestFindBestProductsCapsResults(t *testing.T) {
	var many []domain.Product
	for i := 0; i < 15; i++ {
		many = append(many, domain.Product{ID: string(rune('a' + i)), Name: "x", SkinTypes: []string{"normal"}, Popularity: i})
	}
	tool := NewFindBestProducts(newCatalog(t, many...))

	out, err := tool.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Len(t, out.(*domain.ProductsOutput).Products, MaxProducts)
}

func TestFindBestProductsStorageFailure(t *testing.T) {
	tool := NewFindBestProducts(failingProducts{})

	out, err := tool.Execute(context.Background(), map[string]any{"skinType": "oily"})
	require.NoError(t, err)

	products := out.(*domain.ProductsOutput)
	assert.NotNil(t, products.Products)
	assert.Empty(t, products.Products)
	assert.Empty(t, products.Summary)

	// The wire shape is an empty list, not null.
	r := NewRegistry(0)
	r.Register(tool)
	_, res := r.Invoke(context.Background(), domain.ToolCall{ID: "c1", Name: domain.ToolFindBestProducts, Input: map[string]any{}})
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"products":[]}`, res.Content)
}

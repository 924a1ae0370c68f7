package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/store/sqlite"
)

const sample = `name,brand,category,price,budget,gender,skin_types,concerns,popularity
Gel Cleanser,Acme,Cleanser,$12.50,low,,oily; combination,acne;Pores,40
Rich Cream,Balm Co,moisturizer,30,medium,female,dry,,15
,Nameless,serum,1,low,,,,1
`

func TestParse(t *testing.T) {
	products, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, products, 2)

	gel := products[0]
	assert.Equal(t, "Gel Cleanser", gel.Name)
	assert.Equal(t, "cleanser", gel.Category)
	assert.Equal(t, 12.5, gel.Price)
	assert.Equal(t, "unisex", gel.Gender)
	assert.Equal(t, []string{"oily", "combination"}, gel.SkinTypes)
	assert.Equal(t, []string{"acne", "pores"}, gel.Concerns)
	assert.Equal(t, 40, gel.Popularity)
	assert.NotEmpty(t, gel.ID)

	assert.Nil(t, products[1].Concerns)
	assert.Equal(t, "female", products[1].Gender)

	// IDs are stable across imports.
	again, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, gel.ID, again[0].ID)
}

func TestParseErrors(t *testing.T) {
	for name, input := range map[string]string{
		"empty":          "",
		"no name column": "brand,price\nAcme,1\n",
		"bad price":      "name,price\nCream,cheap\n",
		"bad popularity": "name,popularity\nCream,high\n",
		"bad quoting":    "name\n\"unterminated\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(input))
			assert.ErrorIs(t, err, ErrInvalidCSV)
		})
	}
}

func TestImport(t *testing.T) {
	s, err := sqlite.New(t.TempDir() + "/catalog.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	n, err := Import(ctx, s, strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-importing updates in place.
	_, err = Import(ctx, s, strings.NewReader(sample))
	require.NoError(t, err)

	found, err := s.FindProducts(ctx, domain.ProductFilter{SkinType: "oily"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Gel Cleanser", found[0].Name)
}

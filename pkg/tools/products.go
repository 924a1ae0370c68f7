package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/model"
	"github.com/nstogner/glow/pkg/store"
)

// MaxProducts caps a product search.
const MaxProducts = 10

var (
	skinTypes = []string{"oily", "dry", "combination", "sensitive", "normal"}
	budgets   = []string{"low", "medium", "high"}
	genders   = []string{"female", "male", "unisex"}
)

// FindBestProducts searches the catalog for products matching a profile.
type FindBestProducts struct {
	products store.ProductStore
}

// NewFindBestProducts creates the find_best_products tool.
func NewFindBestProducts(products store.ProductStore) *FindBestProducts {
	return &FindBestProducts{products: products}
}

func (t *FindBestProducts) Name() string { return domain.ToolFindBestProducts }

func (t *FindBestProducts) Description() string {
	return "Find the most popular catalog products for a skin profile. Every filter is optional. " +
		"An empty product list means nothing matched; do not retry, tell the user no matching products were found."
}

func (t *FindBestProducts) InputSchema() *model.Schema {
	return &model.Schema{
		Type: model.TypeObject,
		Properties: map[string]*model.Schema{
			"skinType": {Type: model.TypeString, Description: "The user's skin type, usually one of oily, dry, combination, sensitive or normal. Matched loosely."},
			"concerns": {Type: model.TypeArray, Items: &model.Schema{Type: model.TypeString}, Description: "Skin concerns such as acne, aging, pores, dryness."},
			"budget":   {Type: model.TypeString, Enum: budgets, Description: "Budget tier."},
			"gender":   {Type: model.TypeString, Enum: genders, Description: "Gender the products are intended for."},
		},
	}
}

func (t *FindBestProducts) Idempotent() bool { return true }

type productArgs struct {
	SkinType string   `json:"skinType"`
	Concerns []string `json:"concerns"`
	Budget   string   `json:"budget"`
	Gender   string   `json:"gender"`
}

// Execute returns at most MaxProducts products, most popular first. A
// storage failure yields an empty list.
func (t *FindBestProducts) Execute(ctx context.Context, input map[string]any) (domain.ToolOutput, error) {
	var args productArgs
	if err := decodeInput(input, &args); err != nil {
		return nil, err
	}

	products, err := t.products.FindProducts(ctx, domain.ProductFilter{
		SkinType: args.SkinType,
		Concerns: args.Concerns,
		Budget:   args.Budget,
		Gender:   args.Gender,
		Limit:    MaxProducts,
	})
	if err != nil {
		slog.WarnContext(ctx, "Product search failed", "error", err)
		return &domain.ProductsOutput{Products: []domain.Product{}}, nil
	}

	out := &domain.ProductsOutput{Products: products}
	if len(products) > 0 {
		out.Summary = fmt.Sprintf("Found %d matching products.", len(products))
	}
	return out, nil
}

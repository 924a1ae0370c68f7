// Package catalog imports products from CSV exports.
package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nstogner/glow/pkg/domain"
	"github.com/nstogner/glow/pkg/store"
)

// ErrInvalidCSV is returned for files that cannot be imported.
var ErrInvalidCSV = errors.New("invalid product csv")

// productNamespace seeds IDs derived from brand and name, so re-importing
// the same file updates rows instead of duplicating them.
var productNamespace = uuid.MustParse("5d1b1f4e-8c1a-4f43-9b1e-3b8f0f6a2c11")

// Columns recognized in the header row. Only name is required.
var knownColumns = []string{
	"id", "name", "brand", "category", "price", "budget", "gender",
	"skin_types", "concerns", "popularity", "url", "image_url",
}

// Parse reads products from CSV. List columns use ";" separators. Rows
// without a name are skipped.
func Parse(r io.Reader) ([]domain.Product, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidCSV)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrInvalidCSV, err)
	}

	index := map[string]int{}
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))] = i
	}
	if _, ok := index["name"]; !ok {
		return nil, fmt.Errorf("%w: missing name column (known columns: %s)", ErrInvalidCSV, strings.Join(knownColumns, ", "))
	}

	var products []domain.Product
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidCSV, line, err)
		}

		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		p := domain.Product{
			ID:        get("id"),
			Name:      get("name"),
			Brand:     get("brand"),
			Category:  strings.ToLower(get("category")),
			Budget:    strings.ToLower(get("budget")),
			Gender:    strings.ToLower(get("gender")),
			SkinTypes: splitList(get("skin_types")),
			Concerns:  splitList(get("concerns")),
			URL:       get("url"),
			ImageURL:  get("image_url"),
		}
		if p.Name == "" {
			continue
		}
		if v := get("price"); v != "" {
			if p.Price, err = strconv.ParseFloat(strings.TrimPrefix(v, "$"), 64); err != nil {
				return nil, fmt.Errorf("%w: line %d: price %q", ErrInvalidCSV, line, v)
			}
		}
		if v := get("popularity"); v != "" {
			if p.Popularity, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("%w: line %d: popularity %q", ErrInvalidCSV, line, v)
			}
		}
		if p.Gender == "" {
			p.Gender = "unisex"
		}
		if p.ID == "" {
			p.ID = uuid.NewSHA1(productNamespace, []byte(strings.ToLower(p.Brand+"|"+p.Name))).String()
		}
		products = append(products, p)
	}
	return products, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ";") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Import parses r and upserts the products. It returns the number written.
func Import(ctx context.Context, products store.ProductStore, r io.Reader) (int, error) {
	parsed, err := Parse(r)
	if err != nil {
		return 0, err
	}
	n, err := products.UpsertProducts(ctx, parsed)
	if err != nil {
		return 0, fmt.Errorf("saving products: %w", err)
	}
	slog.InfoContext(ctx, "Imported products", "count", n)
	return n, nil
}

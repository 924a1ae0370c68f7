package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/nstogner/glow/pkg/domain"
)

// --- ProductStore ---

const productColumns = `id, name, brand, category, price, budget, gender, skin_types, concerns, popularity, url, image_url`

func (s *Store) FindProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	var where []string
	var args []any

	if f.SkinType != "" {
		// Either side may contain the other: "oily/combination" matches "oily".
		where = append(where, `EXISTS (SELECT 1 FROM json_each(products.skin_types) WHERE value <> '' AND `+
			`(lower(value) LIKE '%' || lower(?) || '%' OR lower(?) LIKE '%' || lower(value) || '%'))`)
		args = append(args, f.SkinType, f.SkinType)
	}
	if len(f.Concerns) > 0 {
		placeholders := make([]string, len(f.Concerns))
		for i, c := range f.Concerns {
			placeholders[i] = "lower(?)"
			args = append(args, c)
		}
		where = append(where, `EXISTS (SELECT 1 FROM json_each(products.concerns) WHERE lower(value) IN (`+strings.Join(placeholders, ", ")+`))`)
	}
	if f.Budget != "" {
		where = append(where, `lower(budget) = lower(?)`)
		args = append(args, f.Budget)
	}
	if f.Gender != "" {
		where = append(where, `(lower(gender) = lower(?) OR lower(gender) = 'unisex')`)
		args = append(args, f.Gender)
	}
	if f.Category != "" {
		where = append(where, `lower(category) = lower(?)`)
		args = append(args, f.Category)
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY popularity DESC, name ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		var skinTypes, concerns string
		if err := rows.Scan(&p.ID, &p.Name, &p.Brand, &p.Category, &p.Price, &p.Budget, &p.Gender,
			&skinTypes, &concerns, &p.Popularity, &p.URL, &p.ImageURL); err != nil {
			return nil, err
		}
		if p.SkinTypes, err = decodeStrings(skinTypes); err != nil {
			return nil, fmt.Errorf("decoding skin types of product %s: %w", p.ID, err)
		}
		if p.Concerns, err = decodeStrings(concerns); err != nil {
			return nil, fmt.Errorf("decoding concerns of product %s: %w", p.ID, err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) UpsertProducts(ctx context.Context, products []domain.Product) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, brand = excluded.brand, category = excluded.category,
			price = excluded.price, budget = excluded.budget, gender = excluded.gender,
			skin_types = excluded.skin_types, concerns = excluded.concerns,
			popularity = excluded.popularity, url = excluded.url, image_url = excluded.image_url`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, p := range products {
		gender := p.Gender
		if gender == "" {
			gender = "unisex"
		}
		if _, err := stmt.ExecContext(ctx, p.ID, p.Name, p.Brand, p.Category, p.Price, p.Budget, gender,
			stringList(p.SkinTypes), stringList(p.Concerns), p.Popularity, p.URL, p.ImageURL); err != nil {
			return 0, fmt.Errorf("upserting product %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(products), nil
}

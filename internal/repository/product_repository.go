package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gokselkaptan/takas-app-sub005/internal/models"
	"github.com/gokselkaptan/takas-app-sub005/internal/repository/common"
)

// ProductRepository reads the listing subset the matcher and the demand
// analytics pass need.
type ProductRepository struct {
	db *sqlx.DB
}

func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID returns one product.
func (r *ProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.GetContext(ctx, &product, `
		SELECT id, owner_id, title, category, condition, city, district,
		       valor_price, view_count, status, created_at, updated_at
		FROM products WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("product repository: get %w", err)
	}
	return &product, nil
}

// ListActive returns all active products, optionally scoped to one city.
func (r *ProductRepository) ListActive(ctx context.Context, city *string) ([]models.Product, error) {
	var products []models.Product
	query := `
		SELECT id, owner_id, title, category, condition, city, district,
		       valor_price, view_count, status, created_at, updated_at
		FROM products WHERE status = $1
	`
	args := []interface{}{models.ProductStatusActive}
	if city != nil {
		query += ` AND city = $2`
		args = append(args, *city)
	}
	err := r.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// ListWants returns the wants edges of the given products.
func (r *ProductRepository) ListWants(ctx context.Context, productIDs []uuid.UUID) ([]models.ProductWant, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT id, product_id, wanted_product_id, wanted_category, created_at
		FROM product_wants WHERE product_id IN (?)
	`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("product repository: list wants %w", err)
	}
	query = r.db.Rebind(query)

	var wants []models.ProductWant
	err = r.db.SelectContext(ctx, &wants, query, args...)
	return wants, err
}

// SetStatus moves a product between active/reserved/swapped.
func (r *ProductRepository) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE products SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("product repository: set status %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// CategoryStats aggregates the inputs of the demand analytics pass:
// listing counts, average views and recently completed swaps per category.
func (r *ProductRepository) CategoryStats(ctx context.Context) ([]models.CategoryStats, error) {
	var stats []models.CategoryStats
	err := r.db.SelectContext(ctx, &stats, `
		SELECT p.category,
		       COUNT(*) AS listing_count,
		       COALESCE(AVG(p.view_count), 0) AS avg_views,
		       COALESCE(SUM(CASE WHEN s.completed > 0 THEN s.completed ELSE 0 END), 0) AS completed_swaps
		FROM products p
		LEFT JOIN (
			SELECT product_id, COUNT(*) AS completed
			FROM swap_requests
			WHERE status = 'completed' AND updated_at > NOW() - INTERVAL '30 days'
			GROUP BY product_id
		) s ON s.product_id = p.id
		GROUP BY p.category
	`)
	return stats, err
}

package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/franchise-orders/internal/domain/catalog"
)

const (
	productColumns = `id, code, description, active, stock, min_quantity, default_price`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductByCodeSQL = `SELECT ` + productColumns + ` FROM products WHERE code = $1`

	getGroupPriceSQL = `SELECT price FROM prices WHERE product_code = $1 AND pricing_group = $2`

	listProductCodesSQL = `SELECT code FROM products`

	upsertProductSQL = `INSERT INTO products (code, description, active, stock, min_quantity, default_price)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO UPDATE SET
			description = EXCLUDED.description,
			active = EXCLUDED.active,
			stock = EXCLUDED.stock,
			min_quantity = EXCLUDED.min_quantity,
			default_price = EXCLUDED.default_price
		RETURNING id`

	upsertPriceSQL = `INSERT INTO prices (product_code, pricing_group, price)
		SELECT $1::text, $2::text, $3::numeric
		WHERE EXISTS (SELECT 1 FROM products WHERE code = $1::text)
		ON CONFLICT (product_code, pricing_group) DO UPDATE SET price = EXCLUDED.price`
)

// PriceRow is one entry of a pricing-group price list.
type PriceRow struct {
	ProductCode  string
	PricingGroup string
	Price        decimal.Decimal
}

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// ProductByID returns a single product by its identifier.
func (r *CatalogRepository) ProductByID(ctx context.Context, id int64) (*catalog.Product, error) {
	return r.product(ctx, getProductByIDSQL, id)
}

// ProductByCode returns a single product by its catalog code.
func (r *CatalogRepository) ProductByCode(ctx context.Context, code string) (*catalog.Product, error) {
	return r.product(ctx, getProductByCodeSQL, code)
}

func (r *CatalogRepository) product(ctx context.Context, query string, key any) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("getting product %v: %w", key, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, fmt.Errorf("getting product %v: %w", key, err)
	}
	return &p, nil
}

// GroupPrice returns the price of a product for a pricing group. The bool is
// false when the group has no price row for the product.
func (r *CatalogRepository) GroupPrice(ctx context.Context, productCode, group string) (decimal.Decimal, bool, error) {
	var price decimal.Decimal
	err := r.pool.QueryRow(ctx, getGroupPriceSQL, productCode, group).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, false, nil
		}
		return decimal.Decimal{}, false, fmt.Errorf("getting price of %q in group %q: %w", productCode, group, err)
	}
	return price, true, nil
}

// ProductCodes returns every product code in the catalog.
func (r *CatalogRepository) ProductCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listProductCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing product codes: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// UpsertProduct inserts or updates a product keyed by code and returns its id.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, p *catalog.Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, upsertProductSQL,
		p.Code, p.Description, p.Active, p.Stock, p.MinQuantity, p.DefaultPrice,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting product %q: %w", p.Code, err)
	}
	return id, nil
}

// UpsertPrices writes a price list in one round-trip and returns the number
// of rows stored. Rows naming an unknown product are skipped. Either every
// remaining row is stored or none is.
func (r *CatalogRepository) UpsertPrices(ctx context.Context, rows []PriceRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var stored int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, row := range rows {
			batch.Queue(upsertPriceSQL, row.ProductCode, row.PricingGroup, row.Price)
		}
		br := tx.SendBatch(ctx, batch)
		for range rows {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return fmt.Errorf("upserting %d prices: %w", len(rows), err)
			}
			stored += tag.RowsAffected()
		}
		return br.Close()
	})
	if err != nil {
		return 0, err
	}
	return stored, nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(
		&p.ID, &p.Code, &p.Description, &p.Active,
		&p.Stock, &p.MinQuantity, &p.DefaultPrice,
	)
	return p, err
}

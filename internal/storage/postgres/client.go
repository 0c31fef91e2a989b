package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/franchise-orders/internal/domain/client"
)

const (
	clientColumns = `id, code, store, tax_id, name, active, pricing_group`

	findClientByCodeSQL = `SELECT ` + clientColumns + `
		FROM clients WHERE code = $1 AND store = $2 AND deleted_at IS NULL`

	findClientByTaxIDSQL = `SELECT ` + clientColumns + `
		FROM clients WHERE tax_id = $1 AND deleted_at IS NULL
		ORDER BY id LIMIT 1`

	upsertClientSQL = `INSERT INTO clients (code, store, tax_id, name, active, pricing_group)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code, store) DO UPDATE SET
			tax_id = EXCLUDED.tax_id,
			name = EXCLUDED.name,
			active = EXCLUDED.active,
			pricing_group = EXCLUDED.pricing_group,
			deleted_at = NULL
		RETURNING id`
)

var _ client.Repository = (*ClientRepository)(nil)

// ClientRepository implements client.Repository backed by PostgreSQL.
// Soft-deleted clients are invisible to every lookup.
type ClientRepository struct {
	pool *pgxpool.Pool
}

// NewClientRepository returns a ClientRepository that uses the given pool.
func NewClientRepository(pool *pgxpool.Pool) *ClientRepository {
	return &ClientRepository{pool: pool}
}

// FindByCode returns the client registered under code at store.
func (r *ClientRepository) FindByCode(ctx context.Context, code, store string) (*client.Client, error) {
	return r.findOne(ctx, findClientByCodeSQL, code, store)
}

// FindByTaxID returns the client registered under an already normalized tax ID.
func (r *ClientRepository) FindByTaxID(ctx context.Context, taxID string) (*client.Client, error) {
	return r.findOne(ctx, findClientByTaxIDSQL, taxID)
}

func (r *ClientRepository) findOne(ctx context.Context, query string, args ...any) (*client.Client, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding client %v: %w", args, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanClient)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, client.ErrNotFound
		}
		return nil, fmt.Errorf("finding client %v: %w", args, err)
	}
	return &c, nil
}

// Upsert inserts or revives a client keyed by code and store and returns its id.
func (r *ClientRepository) Upsert(ctx context.Context, c *client.Client) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, upsertClientSQL,
		c.Code, c.Store, c.TaxID, c.Name, c.Active, c.PricingGroup,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting client %s/%s: %w", c.Code, c.Store, err)
	}
	return id, nil
}

func scanClient(row pgx.CollectableRow) (client.Client, error) {
	var c client.Client
	err := row.Scan(&c.ID, &c.Code, &c.Store, &c.TaxID, &c.Name, &c.Active, &c.PricingGroup)
	return c, err
}

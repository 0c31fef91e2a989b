package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/franchise-orders/internal/failure"
)

var (
	// ErrProductNotFound is returned when a referenced product does not exist.
	ErrProductNotFound = errors.New("product not found")
	// ErrNoPrice is returned when neither a group price nor a default price exists.
	ErrNoPrice = errors.New("no price for product in group")
	// ErrInvalidPrice is returned when the resolved price is zero or negative.
	ErrInvalidPrice = errors.New("invalid price")
)

// Product is a catalog item with its current stock level.
type Product struct {
	ID           int64
	Code         string
	Description  string
	Active       bool
	Stock        int
	MinQuantity  int
	DefaultPrice decimal.NullDecimal
}

// Repository reads products and pricing-group prices. Product lookups return
// ErrProductNotFound on absence; GroupPrice reports absence via its bool.
type Repository interface {
	ProductByID(ctx context.Context, id int64) (*Product, error)
	ProductByCode(ctx context.Context, code string) (*Product, error)
	GroupPrice(ctx context.Context, productCode, group string) (decimal.Decimal, bool, error)
}

// Resolver resolves products and the effective unit price for a pricing group.
// Nothing is cached; every call reads through to the Repository.
type Resolver struct {
	repo Repository
}

// NewResolver creates a Resolver backed by the given Repository.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// ResolveProduct loads a product by id.
func (r *Resolver) ResolveProduct(ctx context.Context, id int64) (*Product, error) {
	p, err := r.repo.ProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, failure.Validation(ErrProductNotFound, "product id %d", id)
		}
		return nil, errors.Wrapf(err, "get product %d", id)
	}
	return p, nil
}

// ResolveProductByCode loads a product by its catalog code.
func (r *Resolver) ResolveProductByCode(ctx context.Context, code string) (*Product, error) {
	p, err := r.repo.ProductByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, failure.Validation(ErrProductNotFound, "product %s", code)
		}
		return nil, errors.Wrapf(err, "get product %q", code)
	}
	return p, nil
}

// ResolvePrice returns the unit price of p for the given pricing group. The
// group price wins; the product default price is the fallback.
func (r *Resolver) ResolvePrice(ctx context.Context, p *Product, group string) (decimal.Decimal, error) {
	price, ok, err := r.repo.GroupPrice(ctx, p.Code, group)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "get price of %s in group %q", p.Code, group)
	}
	if !ok {
		if !p.DefaultPrice.Valid {
			return decimal.Decimal{}, failure.Validation(ErrNoPrice, "product %s group %q", p.Code, group)
		}
		price = p.DefaultPrice.Decimal
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, failure.Validation(ErrInvalidPrice, "product %s price %s", p.Code, price.String())
	}
	return price, nil
}

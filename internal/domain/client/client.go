package client

import (
	"context"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/franchise-orders/internal/failure"
)

var (
	// ErrNotFound is returned when no non-deleted client matches the lookup key.
	ErrNotFound = errors.New("client not found")
	// ErrInvalidTaxID is returned when a tax ID cannot be normalized.
	ErrInvalidTaxID = errors.New("invalid tax id")
)

// Client is a franchise member as seen by the order engine. It is read-only and
// immutable for the duration of one request.
type Client struct {
	ID           int64
	Code         string
	Store        string
	TaxID        string
	Name         string
	Active       bool
	PricingGroup string
}

// Repository looks up clients in the customer master. Implementations return
// ErrNotFound when no matching, non-deleted record exists.
type Repository interface {
	FindByCode(ctx context.Context, code, store string) (*Client, error)
	FindByTaxID(ctx context.Context, taxID string) (*Client, error)
}

// Resolver resolves clients by business key. It only fails on absence; callers
// decide what an inactive client means for them.
type Resolver struct {
	repo Repository
}

// NewResolver creates a Resolver backed by the given Repository.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// ByCode resolves a client by customer code and store code.
func (r *Resolver) ByCode(ctx context.Context, code, store string) (*Client, error) {
	code = strings.TrimSpace(code)
	store = strings.TrimSpace(store)

	c, err := r.repo.FindByCode(ctx, code, store)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, failure.NotFound(ErrNotFound, "code %q store %q", code, store)
		}
		return nil, errors.Wrapf(err, "find client %s/%s", code, store)
	}
	return c, nil
}

// ByTaxID normalizes raw and resolves the client registered under it.
func (r *Resolver) ByTaxID(ctx context.Context, raw string) (*Client, error) {
	taxID, err := NormalizeTaxID(raw)
	if err != nil {
		return nil, err
	}

	c, err := r.repo.FindByTaxID(ctx, taxID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, failure.NotFound(ErrNotFound, "tax id %s", taxID)
		}
		return nil, errors.Wrapf(err, "find client by tax id %s", taxID)
	}
	return c, nil
}

// NormalizeTaxID converts a company tax ID (CNPJ) to its canonical
// XX.XXX.XXX/XXXX-XX form. Punctuation and whitespace in the input are ignored;
// exactly 14 digits must remain.
func NormalizeTaxID(raw string) (string, error) {
	digits := make([]byte, 0, 14)
	for i := range len(raw) {
		ch := raw[i]
		switch {
		case ch >= '0' && ch <= '9':
			digits = append(digits, ch)
		case ch == '.' || ch == '/' || ch == '-' || ch == ' ':
		default:
			return "", failure.Validation(ErrInvalidTaxID, "unexpected character %q in %q", ch, raw)
		}
	}
	if len(digits) != 14 {
		return "", failure.Validation(ErrInvalidTaxID, "%q has %d digits, want 14", raw, len(digits))
	}

	d := string(digits)
	return d[0:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:14], nil
}

package order

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/xenking/franchise-orders/internal/domain/catalog"
	"github.com/xenking/franchise-orders/internal/domain/client"
	"github.com/xenking/franchise-orders/internal/failure"
)

// Catalog resolves products and unit prices. *catalog.Resolver implements it.
type Catalog interface {
	ResolveProduct(ctx context.Context, id int64) (*catalog.Product, error)
	ResolveProductByCode(ctx context.Context, code string) (*catalog.Product, error)
	ResolvePrice(ctx context.Context, p *catalog.Product, group string) (decimal.Decimal, error)
}

// LineRequest asks for Quantity units of a product named by ProductID or, if
// the id is zero, by ProductCode. A code-based request with zero quantity asks
// for the product's minimum pack size.
type LineRequest struct {
	ProductID   int64
	ProductCode string
	Quantity    int
}

func (r LineRequest) byCode() bool {
	return r.ProductID == 0 && r.ProductCode != ""
}

func (r LineRequest) label() string {
	if r.ProductCode != "" {
		return r.ProductCode
	}
	return "#" + strconv.FormatInt(r.ProductID, 10)
}

// Assembly is a validated line set and its total.
type Assembly struct {
	Lines []Line
	Total decimal.Decimal
}

// Assembler validates line requests against the catalog and prices them for
// a client. It never writes.
type Assembler struct {
	catalog Catalog
}

// NewAssembler creates an Assembler reading through the given Catalog.
func NewAssembler(c Catalog) *Assembler {
	return &Assembler{catalog: c}
}

// Assemble validates reqs in order and stops at the first failure. Lines are
// returned in request order with their unit price captured.
func (a *Assembler) Assemble(ctx context.Context, c *client.Client, reqs []LineRequest) (*Assembly, error) {
	if !c.Active {
		return nil, failure.Validation(ErrInactiveClient, "client %s/%s", c.Code, c.Store)
	}
	if len(reqs) == 0 {
		return nil, failure.Validation(ErrEmptyOrder, "no lines")
	}

	lines := make([]Line, 0, len(reqs))
	total := decimal.Zero
	requested := make(map[int64]int, len(reqs))
	for _, req := range reqs {
		line, err := a.line(ctx, c, req, requested)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
		total = total.Add(line.Amount)
	}

	if !total.IsPositive() {
		return nil, failure.Validation(ErrEmptyOrder, "total %s", total.StringFixed(2))
	}
	return &Assembly{Lines: lines, Total: total}, nil
}

// line validates one request. requested holds the quantity already taken by
// earlier lines per product id, so repeated products share one stock budget.
func (a *Assembler) line(ctx context.Context, c *client.Client, req LineRequest, requested map[int64]int) (Line, error) {
	if req.Quantity < 0 || (req.Quantity == 0 && !req.byCode()) {
		return Line{}, failure.Validation(ErrInvalidQuantity, "product %s quantity %d", req.label(), req.Quantity)
	}

	p, err := a.product(ctx, req)
	if err != nil {
		return Line{}, err
	}
	if !p.Active {
		return Line{}, failure.Validation(ErrProductInactive, "product %s", p.Code)
	}

	qty := req.Quantity
	if qty == 0 {
		qty = max(p.MinQuantity, 1)
	}
	if qty < p.MinQuantity {
		return Line{}, failure.Validation(ErrBelowMinimum,
			"product %s quantity %d, minimum %d", p.Code, qty, p.MinQuantity)
	}
	if p.Stock < requested[p.ID]+qty {
		return Line{}, failure.Validation(ErrInsufficientStock,
			"product %s quantity %d, stock %d", p.Code, requested[p.ID]+qty, p.Stock)
	}
	requested[p.ID] += qty

	price, err := a.catalog.ResolvePrice(ctx, p, c.PricingGroup)
	if err != nil {
		return Line{}, err
	}

	return Line{
		ProductID:   p.ID,
		ProductCode: p.Code,
		Description: p.Description,
		Quantity:    qty,
		UnitPrice:   price,
		Amount:      price.Mul(decimal.NewFromInt(int64(qty))),
	}, nil
}

func (a *Assembler) product(ctx context.Context, req LineRequest) (*catalog.Product, error) {
	switch {
	case req.ProductID != 0:
		return a.catalog.ResolveProduct(ctx, req.ProductID)
	case req.ProductCode != "":
		return a.catalog.ResolveProductByCode(ctx, req.ProductCode)
	default:
		return nil, failure.Validation(catalog.ErrProductNotFound, "line names no product")
	}
}

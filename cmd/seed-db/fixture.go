package main

import (
	"encoding/json"
	"os"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/franchise-orders/internal/domain/catalog"
	"github.com/xenking/franchise-orders/internal/domain/client"
	"github.com/xenking/franchise-orders/internal/storage/postgres"
)

type clientJSON struct {
	Code         string `json:"code"`
	Store        string `json:"store"`
	TaxID        string `json:"tax_id"`
	Name         string `json:"name"`
	Active       bool   `json:"active"`
	PricingGroup string `json:"pricing_group"`
}

type productJSON struct {
	Code         string              `json:"code"`
	Description  string              `json:"description"`
	Active       bool                `json:"active"`
	Stock        int                 `json:"stock"`
	MinQuantity  int                 `json:"min_quantity"`
	DefaultPrice decimal.NullDecimal `json:"default_price"`
}

type priceJSON struct {
	ProductCode  string          `json:"product_code"`
	PricingGroup string          `json:"pricing_group"`
	Price        decimal.Decimal `json:"price"`
}

type fixtureJSON struct {
	Clients  []clientJSON  `json:"clients"`
	Products []productJSON `json:"products"`
	Prices   []priceJSON   `json:"prices"`
}

// fixture is the validated seed data in domain form.
type fixture struct {
	Clients  []client.Client
	Products []catalog.Product
	Prices   []postgres.PriceRow
}

func loadFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read fixture")
	}
	var raw fixtureJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse fixture JSON")
	}
	return raw.validate()
}

func (raw fixtureJSON) validate() (*fixture, error) {
	var f fixture
	for _, c := range raw.Clients {
		taxID, err := client.NormalizeTaxID(c.TaxID)
		if err != nil {
			return nil, errors.Wrapf(err, "client %s/%s", c.Code, c.Store)
		}
		f.Clients = append(f.Clients, client.Client{
			Code:         c.Code,
			Store:        c.Store,
			TaxID:        taxID,
			Name:         c.Name,
			Active:       c.Active,
			PricingGroup: c.PricingGroup,
		})
	}

	codes := make(map[string]struct{}, len(raw.Products))
	for _, p := range raw.Products {
		if p.Code == "" {
			return nil, errors.New("product without code")
		}
		if p.MinQuantity < 1 || p.Stock < 0 {
			return nil, errors.Errorf("product %s: invalid stock %d or minimum %d", p.Code, p.Stock, p.MinQuantity)
		}
		codes[p.Code] = struct{}{}
		f.Products = append(f.Products, catalog.Product{
			Code:         p.Code,
			Description:  p.Description,
			Active:       p.Active,
			Stock:        p.Stock,
			MinQuantity:  p.MinQuantity,
			DefaultPrice: p.DefaultPrice,
		})
	}

	for _, p := range raw.Prices {
		if _, ok := codes[p.ProductCode]; !ok {
			return nil, errors.Errorf("price for unknown product %s", p.ProductCode)
		}
		if !p.Price.IsPositive() {
			return nil, errors.Errorf("price %s/%s must be positive", p.ProductCode, p.PricingGroup)
		}
		f.Prices = append(f.Prices, postgres.PriceRow{
			ProductCode:  p.ProductCode,
			PricingGroup: p.PricingGroup,
			Price:        p.Price,
		})
	}
	return &f, nil
}

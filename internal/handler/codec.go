package handler

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/franchise-orders/internal/domain/order"
)

const maxBodySize = 1 << 20

// orderBody is the union of the create, generate and update payloads.
// Unknown keys are skipped and a null value counts as absent.
type orderBody struct {
	ClientCode    string
	StoreCode     string
	TaxID         string
	IssuedOn      time.Time
	Nature        string
	Message       string
	PaymentRuleID int64
	FreightRuleID int64
	Lines         []order.LineRequest
	Version       *int
}

func readBody(r *http.Request) (*jx.Decoder, error) {
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodySize))
	if err != nil {
		return nil, malformed("read body: %v", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, malformed("empty body")
	}
	return jx.DecodeBytes(data), nil
}

// asMalformed keeps a malformedError raised inside a callback and wraps any
// other decoding error.
func asMalformed(err error) error {
	var me *malformedError
	if errors.As(err, &me) {
		return me
	}
	return malformed("invalid JSON body: %v", err)
}

func decodeOrderBody(r *http.Request) (*orderBody, error) {
	d, err := readBody(r)
	if err != nil {
		return nil, err
	}

	var b orderBody
	err = d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		var err error
		switch key {
		case "client_code":
			b.ClientCode, err = d.Str()
		case "store_code":
			b.StoreCode, err = d.Str()
		case "tax_id":
			b.TaxID, err = d.Str()
		case "issued_on":
			b.IssuedOn, err = decodeDate(d)
		case "nature":
			b.Nature, err = d.Str()
		case "message":
			b.Message, err = d.Str()
		case "payment_rule_id":
			b.PaymentRuleID, err = d.Int64()
		case "freight_rule_id":
			b.FreightRuleID, err = d.Int64()
		case "version":
			var v int
			v, err = d.Int()
			b.Version = &v
		case "lines":
			b.Lines, err = decodeLines(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, asMalformed(err)
	}
	return &b, nil
}

func decodeDate(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, malformed("issued_on %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func decodeLines(d *jx.Decoder) ([]order.LineRequest, error) {
	var lines []order.LineRequest
	err := d.Arr(func(d *jx.Decoder) error {
		var l order.LineRequest
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			if d.Next() == jx.Null {
				return d.Null()
			}
			var err error
			switch key {
			case "product_id":
				l.ProductID, err = d.Int64()
			case "product_code":
				l.ProductCode, err = d.Str()
			case "quantity":
				l.Quantity, err = d.Int()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		lines = append(lines, l)
		return nil
	})
	return lines, err
}

func decodeCreate(r *http.Request) (order.CreateRequest, error) {
	b, err := decodeOrderBody(r)
	if err != nil {
		return order.CreateRequest{}, err
	}
	return order.CreateRequest{
		ClientCode:    b.ClientCode,
		StoreCode:     b.StoreCode,
		IssuedOn:      b.IssuedOn,
		Nature:        b.Nature,
		Message:       b.Message,
		PaymentRuleID: b.PaymentRuleID,
		FreightRuleID: b.FreightRuleID,
		Lines:         b.Lines,
	}, nil
}

func decodeGenerate(r *http.Request) (order.GenerateRequest, error) {
	b, err := decodeOrderBody(r)
	if err != nil {
		return order.GenerateRequest{}, err
	}
	return order.GenerateRequest{
		TaxID:         b.TaxID,
		Nature:        b.Nature,
		Message:       b.Message,
		PaymentRuleID: b.PaymentRuleID,
		FreightRuleID: b.FreightRuleID,
		Lines:         b.Lines,
	}, nil
}

func decodeUpdate(r *http.Request) (order.UpdateRequest, error) {
	b, err := decodeOrderBody(r)
	if err != nil {
		return order.UpdateRequest{}, err
	}
	return order.UpdateRequest{
		ClientCode:      b.ClientCode,
		StoreCode:       b.StoreCode,
		IssuedOn:        b.IssuedOn,
		Nature:          b.Nature,
		Message:         b.Message,
		PaymentRuleID:   b.PaymentRuleID,
		FreightRuleID:   b.FreightRuleID,
		Lines:           b.Lines,
		ExpectedVersion: b.Version,
	}, nil
}

func decodeStatus(r *http.Request) (order.Status, error) {
	d, err := readBody(r)
	if err != nil {
		return "", err
	}
	var raw string
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		raw, err = d.Str()
		return err
	}); err != nil {
		return "", asMalformed(err)
	}
	if raw == "" {
		return "", malformed("status is required")
	}
	return order.ParseStatus(raw)
}

// money renders cents with two digits and keeps finer precision when present.
func money(d decimal.Decimal) string {
	if d.Equal(d.Round(2)) {
		return d.StringFixed(2)
	}
	return d.String()
}

func encodeCreated(res *order.CreateResult) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(res.ID) })
		e.Field("total", func(e *jx.Encoder) { e.Str(money(res.Total)) })
		e.Field("status", func(e *jx.Encoder) { e.Str(res.Status.String()) })
		e.Field("version", func(e *jx.Encoder) { e.Int(res.Version) })
	})
	return e.Bytes()
}

func encodeUpdated(res *order.UpdateResult) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(res.ID) })
		e.Field("total", func(e *jx.Encoder) { e.Str(money(res.Total)) })
		e.Field("version", func(e *jx.Encoder) { e.Int(res.Version) })
	})
	return e.Bytes()
}

func encodeTransition(tr *order.Transition) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(tr.ID) })
		e.Field("from", func(e *jx.Encoder) { e.Str(tr.From.String()) })
		e.Field("to", func(e *jx.Encoder) { e.Str(tr.To.String()) })
		e.Field("changed", func(e *jx.Encoder) { e.Bool(tr.Changed) })
		e.Field("version", func(e *jx.Encoder) { e.Int(tr.Version) })
		if tr.IssuedOn != nil {
			e.Field("issued_on", func(e *jx.Encoder) { e.Str(tr.IssuedOn.Format(time.DateOnly)) })
		}
	})
	return e.Bytes()
}

func encodeOrder(o *order.Order) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
		e.Field("client_id", func(e *jx.Encoder) { e.Int64(o.ClientID) })
		e.Field("client_code", func(e *jx.Encoder) { e.Str(o.ClientCode) })
		e.Field("store_code", func(e *jx.Encoder) { e.Str(o.StoreCode) })
		e.Field("issued_on", func(e *jx.Encoder) { e.Str(o.IssuedOn.Format(time.DateOnly)) })
		e.Field("nature", func(e *jx.Encoder) { e.Str(o.Nature) })
		e.Field("message", func(e *jx.Encoder) { e.Str(o.Message) })
		e.Field("status", func(e *jx.Encoder) { e.Str(o.Status.String()) })
		e.Field("allowed_transitions", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, s := range order.AllowedTransitions(o.Status) {
					e.Str(s.String())
				}
			})
		})
		e.Field("payment_rule_id", func(e *jx.Encoder) { e.Int64(o.PaymentRuleID) })
		e.Field("freight_rule_id", func(e *jx.Encoder) { e.Int64(o.FreightRuleID) })
		e.Field("total", func(e *jx.Encoder) { e.Str(money(o.Total)) })
		e.Field("version", func(e *jx.Encoder) { e.Int(o.Version) })
		if !o.CreatedAt.IsZero() {
			e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
		}
		if !o.UpdatedAt.IsZero() {
			e.Field("updated_at", func(e *jx.Encoder) { e.Str(o.UpdatedAt.UTC().Format(time.RFC3339)) })
		}
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range o.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Int64(l.ProductID) })
						e.Field("product_code", func(e *jx.Encoder) { e.Str(l.ProductCode) })
						e.Field("description", func(e *jx.Encoder) { e.Str(l.Description) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						e.Field("unit_price", func(e *jx.Encoder) { e.Str(money(l.UnitPrice)) })
						e.Field("amount", func(e *jx.Encoder) { e.Str(money(l.Amount)) })
					})
				}
			})
		})
	})
	return e.Bytes()
}

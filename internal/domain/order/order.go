package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultNature is the fiscal transaction nature applied when a request does
// not name one.
const DefaultNature = "10212"

// Order is a purchase order with its lines, as persisted.
type Order struct {
	ID            int64
	ClientID      int64
	ClientCode    string
	StoreCode     string
	IssuedOn      time.Time
	Message       string
	Nature        string
	Status        Status
	PaymentRuleID int64
	FreightRuleID int64
	Total         decimal.Decimal
	Version       int
	Lines         []Line
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Line is one product line of an order. UnitPrice is captured when the line
// is written and never recomputed afterwards.
type Line struct {
	ProductID   int64
	ProductCode string
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
	Amount      decimal.Decimal
}

// Header holds the order header fields written by create and update.
// ClientID, ClientCode and StoreCode are only written on create.
type Header struct {
	ClientID      int64
	ClientCode    string
	StoreCode     string
	IssuedOn      time.Time
	Message       string
	Nature        string
	Status        Status
	PaymentRuleID int64
	FreightRuleID int64
	Total         decimal.Decimal
}

// Snapshot is the locked state of an order row inside a unit of work.
type Snapshot struct {
	ID       int64
	ClientID int64
	Status   Status
	Version  int
}

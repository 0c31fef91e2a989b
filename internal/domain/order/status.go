package order

import (
	"strings"

	"github.com/xenking/franchise-orders/internal/failure"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusIntegrated     Status = "integrated"
	StatusERPConfirmed   Status = "erp_confirmed"
	StatusPicking        Status = "picking"
	StatusInvoiced       Status = "invoiced"
	StatusReadyForPickup Status = "ready_for_pickup"
)

// statuses lists every known status in lifecycle order.
var statuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusIntegrated,
	StatusERPConfirmed,
	StatusPicking,
	StatusInvoiced,
	StatusReadyForPickup,
}

// transitions is the adjacency table of legal status changes. Staying in the
// same status is always legal and is handled outside the table.
var transitions = map[Status][]Status{
	StatusPending:        {StatusConfirmed},
	StatusConfirmed:      {StatusIntegrated, StatusPending},
	StatusIntegrated:     {StatusERPConfirmed, StatusConfirmed},
	StatusERPConfirmed:   {StatusPicking},
	StatusPicking:        {StatusInvoiced},
	StatusInvoiced:       {StatusReadyForPickup},
	StatusReadyForPickup: {},
}

// ParseStatus validates raw against the closed set of statuses.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", failure.Validation(ErrInvalidStatus, "%q", raw)
	}
	return s, nil
}

// Valid reports whether s is a member of the status enumeration.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) String() string { return string(s) }

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a validation failure naming both statuses when the
// change is not in the graph.
func CheckTransition(from, to Status) error {
	if !to.Valid() {
		return failure.Validation(ErrInvalidStatus, "%q", to)
	}
	if !CanTransition(from, to) {
		return failure.Validation(ErrIllegalTransition, "%s -> %s", from, to)
	}
	return nil
}

// CheckEditable guards update and delete: only pending orders may change.
func CheckEditable(s Status) error {
	if s != StatusPending {
		return failure.Validation(ErrNotEditable, "status %s", s)
	}
	return nil
}

// AllowedTransitions returns the statuses reachable from s in one step,
// excluding s itself.
func AllowedTransitions(s Status) []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// Statuses returns every known status in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(statuses))
	copy(out, statuses)
	return out
}

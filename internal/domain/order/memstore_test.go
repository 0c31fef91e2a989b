package order

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
)

// memStore is an in-memory Store and Reader. Each Tx works on a private copy
// of the committed orders, so an uncommitted Tx is never visible. failOn and
// onStep let tests inject faults at a named step.
type memStore struct {
	mu     sync.Mutex
	orders map[int64]*Order
	nextID int64

	failOn      string
	onStep      func(step string)
	beginErr    error
	commitErr   error
	rollbackErr error

	begins    int
	commits   int
	rollbacks int
	steps     []string
}

var errInjected = errors.New("injected store failure")

func newMemStore() *memStore {
	return &memStore{orders: make(map[int64]*Order)}
}

func (s *memStore) Begin(_ context.Context) (Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.begins++
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	work := make(map[int64]*Order, len(s.orders))
	for id, o := range s.orders {
		work[id] = cloneOrder(o)
	}
	return &memTx{store: s, orders: work, nextID: s.nextID}, nil
}

func (s *memStore) ReadOrder(_ context.Context, id int64) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) step(name string) error {
	s.steps = append(s.steps, name)
	if s.onStep != nil {
		s.onStep(name)
	}
	if s.failOn == name {
		return errInjected
	}
	return nil
}

type memTx struct {
	store  *memStore
	orders map[int64]*Order
	nextID int64
	closed bool
}

func (t *memTx) LockOrder(_ context.Context, id int64) (Snapshot, error) {
	if err := t.store.step("lock"); err != nil {
		return Snapshot{}, err
	}
	o, ok := t.orders[id]
	if !ok {
		return Snapshot{}, ErrOrderNotFound
	}
	return Snapshot{ID: o.ID, ClientID: o.ClientID, Status: o.Status, Version: o.Version}, nil
}

func (t *memTx) InsertOrder(_ context.Context, h *Header) (int64, error) {
	if err := t.store.step("insert_order"); err != nil {
		return 0, err
	}
	t.nextID++
	t.orders[t.nextID] = &Order{
		ID:            t.nextID,
		ClientID:      h.ClientID,
		ClientCode:    h.ClientCode,
		StoreCode:     h.StoreCode,
		IssuedOn:      h.IssuedOn,
		Message:       h.Message,
		Nature:        h.Nature,
		Status:        h.Status,
		PaymentRuleID: h.PaymentRuleID,
		FreightRuleID: h.FreightRuleID,
		Total:         h.Total,
		Version:       initialVersion,
	}
	return t.nextID, nil
}

func (t *memTx) InsertLines(_ context.Context, orderID int64, lines []Line) error {
	if err := t.store.step("insert_lines"); err != nil {
		return err
	}
	o, ok := t.orders[orderID]
	if !ok {
		return errors.Errorf("order %d missing", orderID)
	}
	o.Lines = append(o.Lines, lines...)
	return nil
}

func (t *memTx) UpdateHeader(_ context.Context, id int64, h *Header) (int, error) {
	if err := t.store.step("update_header"); err != nil {
		return 0, err
	}
	o := t.orders[id]
	o.IssuedOn = h.IssuedOn
	o.Message = h.Message
	o.Nature = h.Nature
	o.PaymentRuleID = h.PaymentRuleID
	o.FreightRuleID = h.FreightRuleID
	o.Total = h.Total
	o.Version++
	return o.Version, nil
}

func (t *memTx) DeleteLines(_ context.Context, orderID int64) error {
	if err := t.store.step("delete_lines"); err != nil {
		return err
	}
	t.orders[orderID].Lines = nil
	return nil
}

func (t *memTx) DeleteOrder(_ context.Context, id int64) error {
	if err := t.store.step("delete_order"); err != nil {
		return err
	}
	delete(t.orders, id)
	return nil
}

func (t *memTx) SetStatus(_ context.Context, id int64, to Status, issuedOn *time.Time) (int, error) {
	if err := t.store.step("set_status"); err != nil {
		return 0, err
	}
	o := t.orders[id]
	o.Status = to
	if issuedOn != nil {
		o.IssuedOn = *issuedOn
	}
	o.Version++
	return o.Version, nil
}

func (t *memTx) Commit(_ context.Context) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.closed {
		return errors.New("tx closed")
	}
	if s.commitErr != nil {
		return s.commitErr
	}
	t.closed = true
	s.commits++
	s.orders = t.orders
	s.nextID = t.nextID
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	s.rollbacks++
	return s.rollbackErr
}

func cloneOrder(o *Order) *Order {
	c := *o
	c.Lines = append([]Line(nil), o.Lines...)
	return &c
}

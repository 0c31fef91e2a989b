package order

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/franchise-orders/internal/domain/catalog"
	"github.com/xenking/franchise-orders/internal/domain/client"
	"github.com/xenking/franchise-orders/internal/failure"
)

// --- Mock implementations ---

type mockCatalogRepo struct {
	byID    map[int64]*catalog.Product
	prices  map[string]decimal.Decimal // "code/group"
	lookups []int64
}

func (m *mockCatalogRepo) ProductByID(_ context.Context, id int64) (*catalog.Product, error) {
	m.lookups = append(m.lookups, id)
	p, ok := m.byID[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockCatalogRepo) ProductByCode(_ context.Context, code string) (*catalog.Product, error) {
	for _, p := range m.byID {
		if p.Code == code {
			m.lookups = append(m.lookups, p.ID)
			cp := *p
			return &cp, nil
		}
	}
	return nil, catalog.ErrProductNotFound
}

func (m *mockCatalogRepo) GroupPrice(_ context.Context, code, group string) (decimal.Decimal, bool, error) {
	p, ok := m.prices[code+"/"+group]
	return p, ok, nil
}

type mockClientRepo struct {
	clients []*client.Client
}

func (m *mockClientRepo) FindByCode(_ context.Context, code, store string) (*client.Client, error) {
	for _, c := range m.clients {
		if c.Code == code && c.Store == store {
			return c, nil
		}
	}
	return nil, client.ErrNotFound
}

func (m *mockClientRepo) FindByTaxID(_ context.Context, taxID string) (*client.Client, error) {
	for _, c := range m.clients {
		if c.TaxID == taxID {
			return c, nil
		}
	}
	return nil, client.ErrNotFound
}

// --- Helpers ---

var testNow = time.Date(2026, time.March, 15, 14, 30, 0, 0, time.UTC)

func acme() *client.Client {
	return &client.Client{
		ID:           1,
		Code:         "ACME",
		Store:        "Store-01",
		TaxID:        "12.345.678/0001-90",
		Active:       true,
		PricingGroup: "A",
	}
}

func globex() *client.Client {
	return &client.Client{ID: 2, Code: "GLOBEX", Store: "Store-01", Active: true, PricingGroup: "B"}
}

func testProduct(id int64, code string, stock, minQty int, defaultPrice string) *catalog.Product {
	p := &catalog.Product{
		ID:          id,
		Code:        code,
		Description: code + " description",
		Active:      true,
		Stock:       stock,
		MinQuantity: minQty,
	}
	if defaultPrice != "" {
		p.DefaultPrice = decimal.NewNullDecimal(decimal.RequireFromString(defaultPrice))
	}
	return p
}

func newCatalogRepo(products ...*catalog.Product) *mockCatalogRepo {
	byID := make(map[int64]*catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockCatalogRepo{byID: byID, prices: make(map[string]decimal.Decimal)}
}

// p100Catalog is product P100 with stock 50, minimum 5 and price 10.00 in group A.
func p100Catalog(stock int) *mockCatalogRepo {
	repo := newCatalogRepo(testProduct(100, "P100", stock, 5, ""))
	repo.prices["P100/A"] = decimal.RequireFromString("10.00")
	return repo
}

type testEnv struct {
	svc   *Service
	store *memStore
	logs  *observer.ObservedLogs
	now   time.Time
}

func newTestEnv(t *testing.T, cat *mockCatalogRepo) *testEnv {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	env := &testEnv{store: newMemStore(), logs: logs, now: testNow}
	svc, err := NewService(ServiceDeps{
		Clients: client.NewResolver(&mockClientRepo{clients: []*client.Client{acme(), globex()}}),
		Catalog: catalog.NewResolver(cat),
		Store:   env.store,
		Reader:  env.store,
		Logger:  zap.New(core),
		Clock:   func() time.Time { return env.now },
	})
	require.NoError(t, err)
	env.svc = svc
	return env
}

func acmeRequest(lines ...LineRequest) CreateRequest {
	return CreateRequest{
		ClientCode:    "ACME",
		StoreCode:     "Store-01",
		PaymentRuleID: 7,
		FreightRuleID: 3,
		Lines:         lines,
	}
}

func mustCreate(t *testing.T, env *testEnv, req CreateRequest) *CreateResult {
	t.Helper()
	res, err := env.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	return res
}

// --- Tests ---

func TestNewService_RequiresDeps(t *testing.T) {
	_, err := NewService(ServiceDeps{})
	require.Error(t, err)
}

func TestCreateOrder_ConfirmThenUpdateRejected(t *testing.T) {
	env := newTestEnv(t, p100Catalog(50))
	ctx := context.Background()

	res := mustCreate(t, env, acmeRequest(LineRequest{ProductID: 100, Quantity: 10}))
	assert.Equal(t, "100.00", res.Total.StringFixed(2))
	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, 1, res.Version)

	tr, err := env.svc.ConfirmOrder(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, tr.Changed)
	assert.Equal(t, StatusPending, tr.From)
	assert.Equal(t, StatusConfirmed, tr.To)

	o, err := env.svc.GetOrder(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC), o.IssuedOn)

	_, err = env.svc.UpdateOrder(ctx, res.ID, UpdateRequest{
		Lines: []LineRequest{{ProductID: 100, Quantity: 20}},
	})
	require.ErrorIs(t, err, ErrNotEditable)
	assert.Equal(t, failure.KindValidation, failure.KindOf(err))
	assert.Contains(t, err.Error(), "order not editable in current status")

	after, err := env.svc.GetOrder(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, o, after)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	env := newTestEnv(t, p100Catalog(3))

	_, err := env.svc.CreateOrder(context.Background(), acmeRequest(LineRequest{ProductID: 100, Quantity: 10}))
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, failure.KindValidation, failure.KindOf(err))
	assert.Contains(t, err.Error(), "P100")

	assert.Zero(t, env.store.count())
	assert.Zero(t, env.store.begins, "validation must finish before any unit of work")
}

func TestCreateOrder_Header(t *testing.T) {
	env := newTestEnv(t, p100Catalog(50))
	req := acmeRequest(LineRequest{ProductID: 100, Quantity: 5})
	req.Message = "deliver after 9am"
	req.IssuedOn = time.Date(2026, time.April, 1, 18, 0, 0, 0, time.UTC)

	res := mustCreate(t, env, req)

	o, err := env.svc.GetOrder(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), o.ClientID)
	assert.Equal(t, "ACME", o.ClientCode)
	assert.Equal(t, "Store-01", o.StoreCode)
	assert.Equal(t, DefaultNature, o.Nature)
	assert.Equal(t, "deliver after 9am", o.Message)
	assert.Equal(t, int64(7), o.PaymentRuleID)
	assert.Equal(t, int64(3), o.FreightRuleID)
	assert.Equal(t, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), o.IssuedOn)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, "50.00", o.Lines[0].Amount.StringFixed(2))
}

func TestCreateOrder_UnknownClient(t *testing.T) {
	env := newTestEnv(t, p100Catalog(50))
	req := acmeRequest(LineRequest{ProductID: 100, Quantity: 10})
	req.ClientCode = "NOPE"

	_, err := env.svc.CreateOrder(context.Background(), req)
	require.ErrorIs(t, err, client.ErrNotFound)
	assert.Equal(t, failure.KindNotFound, failure.KindOf(err))
}

func TestCreateOrder_PriceSnapshot(t *testing.T) {
	cat := p100Catalog(50)
	env := newTestEnv(t, cat)

	res := mustCreate(t, env, acmeRequest(LineRequest{ProductID: 100, Quantity: 10}))
	cat.prices["P100/A"] = decimal.RequireFromString("99.00")

	o, err := env.svc.GetOrder(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.00", o.Lines[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "100.00", o.Total.StringFixed(2))
}

func TestGenerateOrder_ByTaxID(t *testing.T) {
	env := newTestEnv(t, p100Catalog(50))

	res, err := env.svc.GenerateOrder(context.Background(), GenerateRequest{
		TaxID: "12345678000190",
		Lines: []LineRequest{{ProductCode: "P100"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "50.00", res.Total.StringFixed(2))

	o, err := env.svc.GetOrder(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, "ACME", o.ClientCode)
	assert.Equal(t, 5, o.Lines[0].Quantity)
	assert.Equal(t, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC), o.IssuedOn)
}

func TestGenerateOrder_InvalidTaxID(t *testing.T) {
	env := newTestEnv(t, p100Catalog(50))

	_, err := env.svc.GenerateOrder(context.Background(), GenerateRequest{
		TaxID: "123",
		Lines: []LineRequest{{ProductCode: "P100"}},
	})
	require.ErrorIs(t, err, client.ErrInvalidTaxID)
}

func TestUpdateOrder_ReplacesLines(t *testing.T) {
	cat := p100Catalog(50)
	cat.byID[200] = testProduct(200, "P200", 10, 1, "2.25")
	env := newTestEnv(t, cat)
	ctx := context.Background()

	res := mustCreate(t, env, acmeRequest(LineRequest{ProductID: 100, Quantity: 10}))

	version := 1
	upd, err := env.svc.UpdateOrder(ctx, res.ID, UpdateRequest{
		Message:         "revised",
		Nature:          "5102",
		PaymentRuleID:   8,
		Lines:           []LineRequest{{ProductID: 200, Quantity: 4}, {ProductID: 100, Quantity: 5}},
		ExpectedVersion: &version,
	})
	require.NoError(t, err)
	assert.Equal(t, "59.00", upd.Total.StringFixed(2))
	assert.Equal(t, 2, upd.Version)

	o, err := env.svc.GetOrder(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "revised", o.Message)
	assert.Equal(t, "5102", o.Nature)
	assert.Equal(t, int64(8), o.PaymentRuleID)
	require.Len(t, o.Lines, 2)
	assert.Equal(t, "P200", o.Lines[0].ProductCode)
	assert.Equal(t, "P100", o.Lines[1].ProductCode)

	sum := decimal.Zero
	for _, l := range o.Lines {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	assert.True(t, sum.Equal(o.Total))
}

func TestUpdateOrder_VersionMismatch(t *testing.T) {
	env := newTestEnv(t, p100Catalog(50))
	res := mustCreate(t, env, acmeRequest(LineRequest{ProductID: 100, Quantity: 10}))

	stale := 0
	_, err := env.svc.UpdateOrder(context.Background(), res.ID, UpdateRequest{
		Lines:           []LineRequest{{ProductID: 100, Quantity: 6}},
		ExpectedVersion: &stale,
	})
	require.ErrorIs(t, err, ErrVersionMismatch)
	assert.Equal(t, failure.KindConflict, failure.KindOf(err))
	assert.Equal(t, 1, env.store.rollbacks)
}

func TestUpdateOrder_ClientCannotChange(t *testing.T) {
	env := newTestEnv(t, p100Catalog(50))
	res := mustCreate(t, env, acmeRequest(LineRequest{ProductID: 100, Quantity: 10}))

	_, err := env.svc.UpdateOrder(context.Background(), res.ID, UpdateRequest{
		ClientCode: "GLOBEX",
		Lines:      []LineRequest{{ProductID: 100, Quantity: 6}},
	})
	require.ErrorIs(t, err, ErrClientChanged)
}

func TestUpdateOrder_NotFound(t *testing.T) {
	env := newTestEnv(t, p100Catalog(50))

	_, err := env.svc.UpdateOrder(context.Background(), 404, UpdateRequest{
		Lines: []LineRequest{{ProductID: 100, Quantity: 6}},
	})
	require.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, failure.KindNotFound, failure.KindOf(err))
}

func TestUpdateOrder_ValidationLeavesOrderUntouched(t *testing.T) {
	env := newTestEnv(t, p100Catalog(50))
	ctx := context.Background()
	res := mustCreate(t, env, acmeRequest(LineRequest{ProductID: 100, Quantity: 10}))
	before, err := env.svc.GetOrder(ctx, res.ID)
	require.NoError(t, err)

	_, err = env.svc.UpdateOrder(ctx, res.ID, UpdateRequest{
		Lines: []LineRequest{{ProductID: 100, Quantity: 60}},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	after, err := env.svc.GetOrder(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, env.store.begins, "only the create opened a unit of work")
}

func TestEditGuard_ConfirmedOrder(t *testing.T) {
	env := newTestEnv(t, p100Catalog(50))
	ctx := context.Background()

	res := mustCreate(t, env, acmeRequest(LineRequest{ProductID: 100, Quantity: 10}))
	_, err := env.svc.ConfirmOrder(ctx, res.ID)
	require.NoError(t, err)
	before, err := env.svc.GetOrder(ctx, res.ID)
	require.NoError(t, err)

	_, err = env.svc.UpdateOrder(ctx, res.ID, UpdateRequest{
		Lines: []LineRequest{{ProductID: 100, Quantity: 5}},
	})
	require.ErrorIs(t, err, ErrNotEditable)

	err = env.svc.DeleteOrder(ctx, res.ID)
	require.ErrorIs(t, err, ErrNotEditable)
	assert.Equal(t, failure.KindValidation, failure.KindOf(err))

	after, err := env.svc.GetOrder(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDeleteOrder(t *testing.T) {
	env := newTestEnv(t, p100Catalog(50))
	ctx := context.Background()
	res := mustCreate(t, env, acmeRequest(LineRequest{ProductID: 100, Quantity: 10}))

	require.NoError(t, env.svc.DeleteOrder(ctx, res.ID))
	assert.Zero(t, env.store.count())

	_, err := env.svc.GetOrder(ctx, res.ID)
	require.ErrorIs(t, err, ErrOrderNotFound)

	err = env.svc.DeleteOrder(ctx, res.ID)
	assert.Equal(t, failure.KindNotFound, failure.KindOf(err))
}

func TestChangeStatus_Table(t *testing.T) {
	env := newTestEnv(t, p100Catalog(50))
	ctx := context.Background()
	res := mustCreate(t, env, acmeRequest(LineRequest{ProductID: 100, Quantity: 10}))

	// pending -> pending is a no-op.
	commits := env.store.commits
	tr, err := env.svc.ChangeStatus(ctx, res.ID, StatusPending)
	require.NoError(t, err)
	assert.False(t, tr.Changed)
	assert.Equal(t, 1, tr.Version)
	assert.Equal(t, commits, env.store.commits)

	// pending -> invoiced is illegal and changes nothing.
	_, err = env.svc.ChangeStatus(ctx, res.ID, StatusInvoiced)
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, failure.KindValidation, failure.KindOf(err))
	o, err := env.svc.GetOrder(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)

	// pending -> confirmed -> pending.
	_, err = env.svc.ChangeStatus(ctx, res.ID, StatusConfirmed)
	require.NoError(t, err)
	tr, err = env.svc.ChangeStatus(ctx, res.ID, StatusPending)
	require.NoError(t, err)
	assert.True(t, tr.Changed)
	assert.Nil(t, tr.IssuedOn)
	assert.Equal(t, 3, tr.Version)

	// Walk the whole forward chain.
	for _, to := range Statuses()[1:] {
		_, err := env.svc.ChangeStatus(ctx, res.ID, to)
		require.NoError(t, err, "to %s", to)
	}
	o, err = env.svc.GetOrder(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReadyForPickup, o.Status)
}

func TestChangeStatus_InvalidStatus(t *testing.T) {
	env := newTestEnv(t, p100Catalog(50))
	res := mustCreate(t, env, acmeRequest(LineRequest{ProductID: 100, Quantity: 10}))

	_, err := env.svc.ChangeStatus(context.Background(), res.ID, Status("shipped"))
	require.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, 1, env.store.begins)
}

func TestConfirmOrder_OnlyFromPending(t *testing.T) {
	env := newTestEnv(t, p100Catalog(50))
	ctx := context.Background()
	res := mustCreate(t, env, acmeRequest(LineRequest{ProductID: 100, Quantity: 10}))

	_, err := env.svc.ConfirmOrder(ctx, res.ID)
	require.NoError(t, err)

	// Confirming twice is a no-op.
	tr, err := env.svc.ConfirmOrder(ctx, res.ID)
	require.NoError(t, err)
	assert.False(t, tr.Changed)

	_, err = env.svc.ChangeStatus(ctx, res.ID, StatusIntegrated)
	require.NoError(t, err)

	// integrated -> confirmed is a rollback path, not a confirmation.
	_, err = env.svc.ConfirmOrder(ctx, res.ID)
	require.ErrorIs(t, err, ErrIllegalTransition)
}

func TestChangeStatus_RollbackToConfirmedKeepsIssueDate(t *testing.T) {
	env := newTestEnv(t, p100Catalog(50))
	ctx := context.Background()
	res := mustCreate(t, env, acmeRequest(LineRequest{ProductID: 100, Quantity: 10}))

	tr, err := env.svc.ConfirmOrder(ctx, res.ID)
	require.NoError(t, err)
	require.NotNil(t, tr.IssuedOn)
	confirmedOn := *tr.IssuedOn

	_, err = env.svc.ChangeStatus(ctx, res.ID, StatusIntegrated)
	require.NoError(t, err)

	env.now = testNow.AddDate(0, 0, 7)
	tr, err = env.svc.ChangeStatus(ctx, res.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.True(t, tr.Changed)
	assert.Nil(t, tr.IssuedOn)

	o, err := env.svc.GetOrder(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, confirmedOn, o.IssuedOn)
	assert.Equal(t, truncateDate(testNow), o.IssuedOn)
}

func TestConfirmOrder_NotFound(t *testing.T) {
	env := newTestEnv(t, p100Catalog(50))

	_, err := env.svc.ConfirmOrder(context.Background(), 42)
	require.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, failure.KindNotFound, failure.KindOf(err))
	assert.Equal(t, 1, env.store.rollbacks)
}

func TestService_LogsTransactionCause(t *testing.T) {
	env := newTestEnv(t, p100Catalog(50))
	env.store.failOn = "insert_lines"

	_, err := env.svc.CreateOrder(context.Background(), acmeRequest(LineRequest{ProductID: 100, Quantity: 10}))
	require.Error(t, err)

	entries := env.logs.FilterMessage("Order operation failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "create", entries[0].ContextMap()["op"])
	assert.Equal(t, "transaction", entries[0].ContextMap()["kind"])
	assert.Contains(t, entries[0].ContextMap()["cause"], "injected store failure")
}

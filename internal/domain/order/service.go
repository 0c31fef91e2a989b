package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/franchise-orders/internal/domain/client"
	"github.com/xenking/franchise-orders/internal/failure"
)

// initialVersion is the version of a freshly created order.
const initialVersion = 1

// Clients resolves the client an order belongs to. *client.Resolver implements it.
type Clients interface {
	ByCode(ctx context.Context, code, store string) (*client.Client, error)
	ByTaxID(ctx context.Context, taxID string) (*client.Client, error)
}

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	ClientCode    string
	StoreCode     string
	IssuedOn      time.Time // zero means today
	Nature        string    // empty means DefaultNature
	Message       string
	PaymentRuleID int64
	FreightRuleID int64
	Lines         []LineRequest
}

// CreateResult holds the output of a successfully placed order.
type CreateResult struct {
	ID      int64
	Total   decimal.Decimal
	Status  Status
	Version int
}

// UpdateRequest replaces the editable part of a pending order. An empty
// client or store code means the current one; naming a different client
// fails. ExpectedVersion, when set, must match the stored version.
type UpdateRequest struct {
	ClientCode      string
	StoreCode       string
	IssuedOn        time.Time // zero keeps the current date
	Nature          string    // empty keeps the current nature
	Message         string
	PaymentRuleID   int64
	FreightRuleID   int64
	Lines           []LineRequest
	ExpectedVersion *int
}

// UpdateResult holds the output of a successful update.
type UpdateResult struct {
	ID      int64
	Total   decimal.Decimal
	Version int
}

// GenerateRequest places an order for the client registered under TaxID,
// with lines naming products by code.
type GenerateRequest struct {
	TaxID         string
	Nature        string
	Message       string
	PaymentRuleID int64
	FreightRuleID int64
	Lines         []LineRequest
}

// ServiceDeps lists the collaborators of Service. Clients, Catalog, Store
// and Reader are required.
type ServiceDeps struct {
	Clients        Clients
	Catalog        Catalog
	Store          Store
	Reader         Reader
	Logger         *zap.Logger
	Clock          func() time.Time
	WriteTimeout   time.Duration
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Service exposes the order lifecycle operations.
type Service struct {
	clients      Clients
	assembler    *Assembler
	writer       *Writer
	reader       Reader
	lg           *zap.Logger
	clock        func() time.Time
	writeTimeout time.Duration
	tracer       trace.Tracer
	metrics      *metrics
}

// NewService creates an order Service.
func NewService(deps ServiceDeps) (*Service, error) {
	switch {
	case deps.Clients == nil:
		return nil, errors.New("order service: client resolver is required")
	case deps.Catalog == nil:
		return nil, errors.New("order service: catalog is required")
	case deps.Store == nil:
		return nil, errors.New("order service: store is required")
	case deps.Reader == nil:
		return nil, errors.New("order service: reader is required")
	}

	lg := deps.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	mp := deps.MeterProvider
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	tp := deps.TracerProvider
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}

	return &Service{
		clients:      deps.Clients,
		assembler:    NewAssembler(deps.Catalog),
		writer:       NewWriter(deps.Store, lg),
		reader:       deps.Reader,
		lg:           lg,
		clock:        func() time.Time { return clock().UTC() },
		writeTimeout: deps.WriteTimeout,
		tracer:       tp.Tracer(instrumentationName),
		metrics:      newMetrics(mp, lg),
	}, nil
}

// CreateOrder validates the request and persists a new pending order.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (_ *CreateResult, err error) {
	ctx, done := s.observe(ctx, "create")
	defer done(&err)
	ctx, cancel := s.withWriteTimeout(ctx)
	defer cancel()

	c, err := s.clients.ByCode(ctx, req.ClientCode, req.StoreCode)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, c, createInput{
		issuedOn:      req.IssuedOn,
		nature:        req.Nature,
		message:       req.Message,
		paymentRuleID: req.PaymentRuleID,
		freightRuleID: req.FreightRuleID,
		lines:         req.Lines,
	})
}

// GenerateOrder places an order for a client identified by tax ID.
func (s *Service) GenerateOrder(ctx context.Context, req GenerateRequest) (_ *CreateResult, err error) {
	ctx, done := s.observe(ctx, "generate")
	defer done(&err)
	ctx, cancel := s.withWriteTimeout(ctx)
	defer cancel()

	c, err := s.clients.ByTaxID(ctx, req.TaxID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, c, createInput{
		nature:        req.Nature,
		message:       req.Message,
		paymentRuleID: req.PaymentRuleID,
		freightRuleID: req.FreightRuleID,
		lines:         req.Lines,
	})
}

type createInput struct {
	issuedOn      time.Time
	nature        string
	message       string
	paymentRuleID int64
	freightRuleID int64
	lines         []LineRequest
}

func (s *Service) create(ctx context.Context, c *client.Client, in createInput) (*CreateResult, error) {
	asm, err := s.assembler.Assemble(ctx, c, in.lines)
	if err != nil {
		return nil, err
	}

	issuedOn := in.issuedOn
	if issuedOn.IsZero() {
		issuedOn = s.clock()
	}
	nature := strings.TrimSpace(in.nature)
	if nature == "" {
		nature = DefaultNature
	}

	// Persist order.
	h := &Header{
		ClientID:      c.ID,
		ClientCode:    c.Code,
		StoreCode:     c.Store,
		IssuedOn:      truncateDate(issuedOn),
		Message:       in.message,
		Nature:        nature,
		Status:        StatusPending,
		PaymentRuleID: in.paymentRuleID,
		FreightRuleID: in.freightRuleID,
		Total:         asm.Total,
	}
	id, err := s.writer.Create(ctx, h, asm.Lines)
	if err != nil {
		return nil, err
	}

	s.lg.Info("Order created",
		zap.Int64("order_id", id),
		zap.String("client", c.Code+"/"+c.Store),
		zap.Int("lines", len(asm.Lines)),
		zap.String("total", asm.Total.StringFixed(2)),
	)
	return &CreateResult{ID: id, Total: asm.Total, Status: StatusPending, Version: initialVersion}, nil
}

// UpdateOrder replaces the header fields and lines of a pending order.
func (s *Service) UpdateOrder(ctx context.Context, id int64, req UpdateRequest) (_ *UpdateResult, err error) {
	ctx, done := s.observe(ctx, "update")
	defer done(&err)
	ctx, cancel := s.withWriteTimeout(ctx)
	defer cancel()

	current, err := s.read(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckEditable(current.Status); err != nil {
		return nil, err
	}

	code, store := req.ClientCode, req.StoreCode
	if code == "" {
		code = current.ClientCode
	}
	if store == "" {
		store = current.StoreCode
	}
	c, err := s.clients.ByCode(ctx, code, store)
	if err != nil {
		return nil, err
	}
	if c.ID != current.ClientID {
		return nil, failure.Validation(ErrClientChanged,
			"order %d belongs to %s/%s", id, current.ClientCode, current.StoreCode)
	}

	asm, err := s.assembler.Assemble(ctx, c, req.Lines)
	if err != nil {
		return nil, err
	}

	issuedOn := current.IssuedOn
	if !req.IssuedOn.IsZero() {
		issuedOn = truncateDate(req.IssuedOn)
	}
	nature := strings.TrimSpace(req.Nature)
	if nature == "" {
		nature = current.Nature
	}

	h := &Header{
		IssuedOn:      issuedOn,
		Message:       req.Message,
		Nature:        nature,
		PaymentRuleID: req.PaymentRuleID,
		FreightRuleID: req.FreightRuleID,
		Total:         asm.Total,
	}
	version, err := s.writer.Update(ctx, id, h, asm.Lines, Guard{
		ClientID:        c.ID,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		return nil, err
	}

	s.lg.Info("Order updated",
		zap.Int64("order_id", id),
		zap.Int("version", version),
		zap.String("total", asm.Total.StringFixed(2)),
	)
	return &UpdateResult{ID: id, Total: asm.Total, Version: version}, nil
}

// DeleteOrder removes a pending order and its lines.
func (s *Service) DeleteOrder(ctx context.Context, id int64) (err error) {
	ctx, done := s.observe(ctx, "delete")
	defer done(&err)
	ctx, cancel := s.withWriteTimeout(ctx)
	defer cancel()

	if err := s.writer.Delete(ctx, id); err != nil {
		return err
	}
	s.lg.Info("Order deleted", zap.Int64("order_id", id))
	return nil
}

// ConfirmOrder moves a pending order to confirmed and stamps today's issuance
// date. Confirming an already confirmed order is a no-op.
func (s *Service) ConfirmOrder(ctx context.Context, id int64) (_ *Transition, err error) {
	ctx, done := s.observe(ctx, "confirm")
	defer done(&err)

	return s.transition(ctx, id, StatusConfirmed, StatusPending, StatusConfirmed)
}

// ChangeStatus moves an order along the status graph.
func (s *Service) ChangeStatus(ctx context.Context, id int64, to Status) (_ *Transition, err error) {
	ctx, done := s.observe(ctx, "change_status")
	defer done(&err)

	if !to.Valid() {
		return nil, failure.Validation(ErrInvalidStatus, "%q", to)
	}
	return s.transition(ctx, id, to)
}

func (s *Service) transition(ctx context.Context, id int64, to Status, from ...Status) (*Transition, error) {
	ctx, cancel := s.withWriteTimeout(ctx)
	defer cancel()

	res, err := s.writer.Transition(ctx, id, to, s.clock(), from...)
	if err != nil {
		return nil, err
	}
	if res.Changed {
		s.lg.Info("Order status changed",
			zap.Int64("order_id", id),
			zap.Stringer("from", res.From),
			zap.Stringer("to", res.To),
		)
	}
	return res, nil
}

// GetOrder returns the order with its lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (_ *Order, err error) {
	ctx, done := s.observe(ctx, "get")
	defer done(&err)

	return s.read(ctx, id)
}

func (s *Service) read(ctx context.Context, id int64) (*Order, error) {
	o, err := s.reader.ReadOrder(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, failure.NotFound(ErrOrderNotFound, "order %d", id)
		}
		return nil, errors.Wrapf(err, "read order %d", id)
	}
	return o, nil
}

func (s *Service) withWriteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.writeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.writeTimeout)
}

// observe starts a span for op. The returned func ends it and records the
// outcome; call it deferred with the address of the named error result.
func (s *Service) observe(ctx context.Context, op string) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "order."+op)

	return ctx, func(errp *error) {
		err := *errp
		s.metrics.record(ctx, op, time.Since(start), err)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())

			switch kind := failure.KindOf(err); kind {
			case failure.KindTransaction, failure.KindInternal:
				s.lg.Error("Order operation failed",
					zap.String("op", op),
					zap.String("kind", string(kind)),
					zap.Error(err),
					zap.NamedError("cause", errors.Unwrap(err)),
				)
			default:
				s.lg.Debug("Order operation rejected",
					zap.String("op", op),
					zap.String("kind", string(kind)),
					zap.Error(err),
				)
			}
		}
		span.End()
	}
}

package order

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/franchise-orders/internal/failure"
)

// Store opens units of work against the order tables.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one atomic unit of work. Nothing written through it is visible to
// other readers until Commit succeeds. LockOrder returns ErrOrderNotFound when
// the order does not exist.
type Tx interface {
	LockOrder(ctx context.Context, id int64) (Snapshot, error)
	InsertOrder(ctx context.Context, h *Header) (int64, error)
	InsertLines(ctx context.Context, orderID int64, lines []Line) error
	UpdateHeader(ctx context.Context, id int64, h *Header) (version int, err error)
	DeleteLines(ctx context.Context, orderID int64) error
	DeleteOrder(ctx context.Context, id int64) error
	SetStatus(ctx context.Context, id int64, to Status, issuedOn *time.Time) (version int, err error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Reader loads a complete order outside of any write. It returns
// ErrOrderNotFound when the order does not exist.
type Reader interface {
	ReadOrder(ctx context.Context, id int64) (*Order, error)
}

// Guard holds the preconditions an update checks under the row lock.
type Guard struct {
	ClientID        int64
	ExpectedVersion *int
}

// Transition describes the outcome of a status change.
type Transition struct {
	ID       int64
	From     Status
	To       Status
	Changed  bool
	IssuedOn *time.Time
	Version  int
}

const defaultRollbackTimeout = 5 * time.Second

// Writer persists validated orders and amendments, each inside one unit of
// work. Store failures surface as failure.KindTransaction.
type Writer struct {
	store           Store
	lg              *zap.Logger
	rollbackTimeout time.Duration
}

// NewWriter creates a Writer over the given Store.
func NewWriter(store Store, lg *zap.Logger) *Writer {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Writer{store: store, lg: lg, rollbackTimeout: defaultRollbackTimeout}
}

// unit wraps a Tx so that rollback is the default outcome. Every exit path
// runs close; only a successful commit turns it into a no-op.
type unit struct {
	tx       Tx
	ctx      context.Context
	lg       *zap.Logger
	timeout  time.Duration
	finished bool
}

func (w *Writer) begin(ctx context.Context, op string) (*unit, error) {
	tx, err := w.store.Begin(ctx)
	if err != nil {
		return nil, failure.Transaction(errors.Wrapf(err, "%s: begin", op))
	}
	return &unit{
		tx:      tx,
		ctx:     ctx,
		lg:      w.lg.With(zap.String("op", op)),
		timeout: w.rollbackTimeout,
	}, nil
}

// commit refuses to commit on behalf of an abandoned request.
func (u *unit) commit() error {
	if err := u.ctx.Err(); err != nil {
		return failure.Transaction(errors.Wrap(err, "request abandoned before commit"))
	}
	if err := u.tx.Commit(u.ctx); err != nil {
		return failure.Transaction(errors.Wrap(err, "commit"))
	}
	u.finished = true
	return nil
}

func (u *unit) close() {
	if u.finished {
		return
	}
	u.finished = true

	ctx, cancel := context.WithTimeout(context.WithoutCancel(u.ctx), u.timeout)
	defer cancel()
	if err := u.tx.Rollback(ctx); err != nil {
		u.lg.Error("Rollback failed", zap.Error(err))
	}
}

// fail classifies err from a step inside the unit. Failures already carrying
// a kind pass through; anything else is a store failure.
func (u *unit) fail(err error, step string) error {
	var fe *failure.Error
	if errors.As(err, &fe) {
		return err
	}
	u.lg.Warn("Store step failed", zap.String("step", step), zap.Error(err))
	return failure.Transaction(errors.Wrap(err, step))
}

func (u *unit) lock(id int64) (Snapshot, error) {
	snap, err := u.tx.LockOrder(u.ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return Snapshot{}, failure.NotFound(ErrOrderNotFound, "order %d", id)
		}
		return Snapshot{}, u.fail(err, "lock order")
	}
	return snap, nil
}

// Create inserts the header and then its lines. It returns the new order id.
func (w *Writer) Create(ctx context.Context, h *Header, lines []Line) (int64, error) {
	u, err := w.begin(ctx, "create")
	if err != nil {
		return 0, err
	}
	defer u.close()

	id, err := u.tx.InsertOrder(ctx, h)
	if err != nil {
		return 0, u.fail(err, "insert order")
	}
	if err := u.tx.InsertLines(ctx, id, lines); err != nil {
		return 0, u.fail(err, "insert lines")
	}

	if err := u.commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// Update replaces the mutable header fields and the whole line set of a
// pending order. It returns the new version.
func (w *Writer) Update(ctx context.Context, id int64, h *Header, lines []Line, g Guard) (int, error) {
	u, err := w.begin(ctx, "update")
	if err != nil {
		return 0, err
	}
	defer u.close()

	snap, err := u.lock(id)
	if err != nil {
		return 0, err
	}
	if err := CheckEditable(snap.Status); err != nil {
		return 0, err
	}
	if g.ClientID != 0 && g.ClientID != snap.ClientID {
		return 0, failure.Validation(ErrClientChanged, "order %d", id)
	}
	if g.ExpectedVersion != nil && *g.ExpectedVersion != snap.Version {
		return 0, failure.Conflict(ErrVersionMismatch,
			"order %d is at version %d, expected %d", id, snap.Version, *g.ExpectedVersion)
	}

	version, err := u.tx.UpdateHeader(ctx, id, h)
	if err != nil {
		return 0, u.fail(err, "update header")
	}
	if err := u.tx.DeleteLines(ctx, id); err != nil {
		return 0, u.fail(err, "delete lines")
	}
	if err := u.tx.InsertLines(ctx, id, lines); err != nil {
		return 0, u.fail(err, "insert lines")
	}

	if err := u.commit(); err != nil {
		return 0, err
	}
	return version, nil
}

// Delete removes a pending order together with its lines.
func (w *Writer) Delete(ctx context.Context, id int64) error {
	u, err := w.begin(ctx, "delete")
	if err != nil {
		return err
	}
	defer u.close()

	snap, err := u.lock(id)
	if err != nil {
		return err
	}
	if err := CheckEditable(snap.Status); err != nil {
		return err
	}
	if err := u.tx.DeleteOrder(ctx, id); err != nil {
		return u.fail(err, "delete order")
	}

	return u.commit()
}

// Transition moves an order to status to. Confirming a pending order stamps
// the issuance date with today in the same statement. Staying in the current
// status writes nothing. When from is non-empty the current status must be
// one of it.
func (w *Writer) Transition(ctx context.Context, id int64, to Status, today time.Time, from ...Status) (*Transition, error) {
	u, err := w.begin(ctx, "transition")
	if err != nil {
		return nil, err
	}
	defer u.close()

	snap, err := u.lock(id)
	if err != nil {
		return nil, err
	}
	if len(from) > 0 && !slices.Contains(from, snap.Status) {
		return nil, failure.Validation(ErrIllegalTransition, "%s -> %s", snap.Status, to)
	}
	if err := CheckTransition(snap.Status, to); err != nil {
		return nil, err
	}

	res := &Transition{ID: id, From: snap.Status, To: to, Version: snap.Version}
	if snap.Status == to {
		return res, nil
	}

	var issuedOn *time.Time
	if snap.Status == StatusPending && to == StatusConfirmed {
		d := truncateDate(today)
		issuedOn = &d
	}
	version, err := u.tx.SetStatus(ctx, id, to, issuedOn)
	if err != nil {
		return nil, u.fail(err, "set status")
	}

	if err := u.commit(); err != nil {
		return nil, err
	}
	res.Changed = true
	res.IssuedOn = issuedOn
	res.Version = version
	return res, nil
}

func truncateDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Package memory is an in-process store implementing every repository of
// the posting core. A unit holds the store lock until it ends and keeps an
// undo log, so a failed unit leaves the data exactly as it found it.
// It backs the test suite and the server when no database is configured.
package memory

import (
	"context"
	"errors"
	"sync"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/domain/accounts"
	"costledger/internal/domain/audit"
	"costledger/internal/domain/consignment"
	"costledger/internal/domain/documents/bill"
	"costledger/internal/domain/documents/invoice"
	"costledger/internal/domain/documents/write_off"
	"costledger/internal/domain/ledger"
	"costledger/internal/domain/registers/costlayer"
)

// Store holds all data of all companies.
type Store struct {
	mu sync.Mutex

	layers     map[id.ID]*costlayer.Layer
	layerSeq   int64
	cogs       []costlayer.COGSTransaction
	entries    map[id.ID]*ledger.Entry
	entryOrder []id.ID
	accounts   map[id.ID]accounts.Account
	records    map[id.ID]*consignment.Record
	movements  []entity.StockMovement
	invoices   map[id.ID]*invoice.Invoice
	bills      map[id.ID]*bill.Bill
	writeOffs  map[id.ID]*write_off.WriteOff
	sequences  map[string]int64
	events     []audit.Event

	faults map[string]error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		layers:    make(map[id.ID]*costlayer.Layer),
		entries:   make(map[id.ID]*ledger.Entry),
		accounts:  make(map[id.ID]accounts.Account),
		records:   make(map[id.ID]*consignment.Record),
		invoices:  make(map[id.ID]*invoice.Invoice),
		bills:     make(map[id.ID]*bill.Bill),
		writeOffs: make(map[id.ID]*write_off.WriteOff),
		sequences: make(map[string]int64),
		faults:    make(map[string]error),
	}
}

// ErrInjected is returned by FailNext when no error is given.
var ErrInjected = errors.New("memory: injected failure")

// FailNext makes the next call of op fail with err. Operation names are
// "<repository>.<method>", e.g. "ledger.Insert" or "costlayer.InsertCOGS".
func (s *Store) FailNext(op string, err error) {
	if err == nil {
		err = ErrInjected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

// unit is one running posting unit.
type unit struct {
	undo []func()
}

func (u *unit) onRollback(fn func()) {
	u.undo = append(u.undo, fn)
}

func (u *unit) rollbackTo(mark int) {
	for i := len(u.undo) - 1; i >= mark; i-- {
		u.undo[i]()
	}
	u.undo = u.undo[:mark]
}

type unitKey struct{}

func unitFrom(ctx context.Context) *unit {
	u, _ := ctx.Value(unitKey{}).(*unit)
	return u
}

// do runs fn against the store. Inside a unit the lock is already held;
// outside, fn gets a short unit of its own.
func (s *Store) do(ctx context.Context, op string, fn func(u *unit) error) error {
	if u := unitFrom(ctx); u != nil {
		if err := s.fault(op); err != nil {
			return err
		}
		return fn(u)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(op); err != nil {
		return err
	}
	u := &unit{}
	if err := fn(u); err != nil {
		u.rollbackTo(0)
		return err
	}
	return nil
}

// fault must be called with the lock held.
func (s *Store) fault(op string) error {
	if err, ok := s.faults[op]; ok {
		delete(s.faults, op)
		return err
	}
	return nil
}

// TxManager implements tx.Manager over the store.
type TxManager struct {
	store *Store
}

// TxManager returns the unit manager of the store.
func (s *Store) TxManager() *TxManager {
	return &TxManager{store: s}
}

// RunInTransaction runs fn as a unit. Nested calls behave like savepoints:
// a failing inner fn undoes its own writes only.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if u := unitFrom(ctx); u != nil {
		mark := len(u.undo)
		if err := fn(ctx); err != nil {
			u.rollbackTo(mark)
			return err
		}
		return nil
	}

	if err := ctx.Err(); err != nil {
		return timeoutError(err)
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	u := &unit{}
	err := fn(context.WithValue(ctx, unitKey{}, u))
	if err == nil && ctx.Err() != nil {
		err = timeoutError(ctx.Err())
	}
	if err != nil {
		u.rollbackTo(0)
		return err
	}
	return nil
}

// ReadOnly runs fn as a unit; the store does not distinguish reads.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransaction(ctx, fn)
}

func timeoutError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.NewTimeout(err)
	}
	return err
}

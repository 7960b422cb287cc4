// Package posting is the accrual engine invoked by business-event handlers.
//
// Every trigger runs as one unit: cost layer changes, COGS records, stock
// movements and journal entries commit together or not at all. A trigger
// that finds its event already posted returns AlreadyPosted instead of
// posting twice.
package posting

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/internal/core/tx"
	"costledger/internal/domain/accounts"
	"costledger/internal/domain/audit"
	"costledger/internal/domain/consignment"
	"costledger/internal/domain/documents/bill"
	"costledger/internal/domain/documents/invoice"
	"costledger/internal/domain/documents/write_off"
	"costledger/internal/domain/ledger"
	"costledger/internal/domain/registers/costlayer"
	"costledger/internal/domain/registers/stock"
	"costledger/pkg/logger"
)

var tracer = otel.Tracer("costledger/posting")

// Operation names used for spans, metrics and audit.
const (
	OpSale           = "post_sale_and_cogs"
	OpReverseSale    = "reverse_sale"
	OpWriteOff       = "post_write_off"
	OpBillReceipt    = "post_bill_receipt"
	OpTransfer       = "transfer_to_partner"
	OpClearPartner   = "clear_partner_balance"
	OpReturnPartner  = "return_from_partner"
	OpReconcile      = "reconcile_ledger"
	OpPostAdjustment = "post_balancing_adjustment"
)

// COGS source types written next to the ledger reference types.
const (
	SourceSale            = "sale"
	SourceWriteOff        = "write_off"
	SourcePartnerClearing = "partner_clearing"
)

// Overrides pins accounts per role for one call.
type Overrides map[accounts.Role]id.ID

// Deps are the collaborators of the engine.
type Deps struct {
	TxManager tx.Manager
	Ledger    *ledger.Service
	Layers    *costlayer.Service
	Partners  *consignment.Service
	Stock     *stock.Service
	Accounts  *accounts.Resolver
	Invoices  invoice.Repository
	Bills     bill.Repository
	WriteOffs write_off.Repository
	// Audit is optional.
	Audit audit.Recorder
	// Metrics is optional.
	Metrics Metrics
}

// Engine orchestrates postings.
type Engine struct {
	txm       tx.Manager
	ledger    *ledger.Service
	layers    *costlayer.Service
	partners  *consignment.Service
	stock     *stock.Service
	resolver  *accounts.Resolver
	invoices  invoice.Repository
	bills     bill.Repository
	writeOffs write_off.Repository
	audit     audit.Recorder
	metrics   Metrics
	now       func() time.Time
}

// NewEngine creates the posting engine.
func NewEngine(d Deps) *Engine {
	m := d.Metrics
	if m == nil {
		m = NopMetrics{}
	}
	return &Engine{
		txm:       d.TxManager,
		ledger:    d.Ledger,
		layers:    d.Layers,
		partners:  d.Partners,
		stock:     d.Stock,
		resolver:  d.Accounts,
		invoices:  d.Invoices,
		bills:     d.Bills,
		writeOffs: d.WriteOffs,
		audit:     d.Audit,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// run executes fn as one unit and takes care of everything around it:
// span, error classification, metrics, logging and the audit event. The
// audit event is written after the unit so refusals are kept too.
func (e *Engine) run(ctx context.Context, op string, companyID, refID id.ID, fn func(ctx context.Context, res *Result) error) (*Result, error) {
	ctx, span := tracer.Start(ctx, "posting."+op,
		trace.WithAttributes(
			attribute.String("company_id", companyID.String()),
			attribute.String("reference_id", refID.String()),
		),
	)
	defer span.End()

	start := time.Now()
	res := newResult()
	err := e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		*res = *newResult()
		return fn(ctx, res)
	})
	switch {
	case err == nil || apperror.IsAppError(err):
	case errors.Is(err, context.DeadlineExceeded):
		err = apperror.NewTimeout(err).
			WithDetail("operation", op).
			WithDetail("reference_id", refID.String())
	default:
		err = apperror.NewPersistenceFailure(op, err).
			WithDetail("company_id", companyID.String()).
			WithDetail("reference_id", refID.String())
	}

	outcome := e.finish(ctx, op, companyID, refID, res, err)
	e.metrics.ObservePosting(op, string(outcome), time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperror.CodeOf(err))
		return nil, err
	}
	span.SetAttributes(attribute.Bool("already_posted", res.AlreadyPosted))
	res.Success = true
	return res, nil
}

// finish logs the outcome and writes the audit event.
func (e *Engine) finish(ctx context.Context, op string, companyID, refID id.ID, res *Result, err error) audit.Outcome {
	var ev audit.Event
	if err != nil {
		ev = audit.NewEvent(ctx, companyID, op, refID, nil, err)
	} else {
		ev = audit.NewEvent(ctx, companyID, op, refID, res, nil)
		if res.AlreadyPosted {
			ev.Outcome = audit.OutcomeAlreadyPosted
		}
	}

	switch ev.Outcome {
	case audit.OutcomeRefused:
		e.metrics.IncRefusal(op, ev.ErrorCode)
		appErr, _ := apperror.AsAppError(err)
		logger.Warn(ctx, "posting refused",
			"operation", op,
			"company_id", companyID,
			"reference_id", refID,
			"code", appErr.Code,
			"details", appErr.Details,
		)
	case audit.OutcomeFailed:
		logger.Error(ctx, "posting failed and was rolled back",
			"operation", op,
			"company_id", companyID,
			"reference_id", refID,
			"error", err,
		)
	case audit.OutcomeAlreadyPosted:
		logger.Info(ctx, "event already posted",
			"operation", op,
			"company_id", companyID,
			"reference_id", refID,
		)
	}

	if e.audit != nil {
		// The trigger's deadline may already be spent.
		if aErr := e.audit.Record(context.WithoutCancel(ctx), ev); aErr != nil {
			logger.Error(ctx, "failed to record posting audit",
				"operation", op,
				"reference_id", refID,
				"error", aErr,
			)
		}
	}
	return ev.Outcome
}

// runInvoice is run for triggers scoped to one invoice. The invoice lock is
// taken first so the sale and partner paths never see each other half done.
func (e *Engine) runInvoice(ctx context.Context, op string, companyID, invoiceID id.ID, fn func(ctx context.Context, res *Result) error) (*Result, error) {
	return e.run(ctx, op, companyID, invoiceID, func(ctx context.Context, res *Result) error {
		if err := e.invoices.Lock(ctx, companyID, invoiceID); err != nil {
			return err
		}
		return fn(ctx, res)
	})
}

// costRecorded reports whether a source already produced COGS, either as a
// journal entry or as active COGS transactions with a zero cost.
func (e *Engine) costRecorded(ctx context.Context, companyID id.ID, refType ledger.ReferenceType, sourceType string, sourceID id.ID) (bool, error) {
	posted, err := e.ledger.IsPosted(ctx, companyID, refType, sourceID)
	if err != nil || posted {
		return posted, err
	}
	active, err := e.layers.ActiveCOGS(ctx, companyID, sourceType, sourceID)
	if err != nil {
		return false, err
	}
	return len(active) > 0, nil
}

// ReconcileLedger posts balancing adjustments for every drifted entry of a
// company against the rounding difference account.
func (e *Engine) ReconcileLedger(ctx context.Context, companyID, roundingAccountID id.ID) (*Result, error) {
	return e.run(ctx, OpReconcile, companyID, companyID, func(ctx context.Context, res *Result) error {
		acc, err := e.resolver.Resolve(ctx, companyID, accounts.RoleRoundingDifference, roundingAccountID)
		if err != nil {
			return err
		}
		adjustments, err := e.ledger.ReconcileDrift(ctx, companyID, acc.ID)
		if err != nil {
			return err
		}
		for i := range adjustments {
			res.addEntry(&adjustments[i])
		}
		return nil
	})
}

// PostBalancingAdjustment corrects one drifted entry.
func (e *Engine) PostBalancingAdjustment(ctx context.Context, companyID, entryID, roundingAccountID id.ID) (*Result, error) {
	return e.run(ctx, OpPostAdjustment, companyID, entryID, func(ctx context.Context, res *Result) error {
		acc, err := e.resolver.Resolve(ctx, companyID, accounts.RoleRoundingDifference, roundingAccountID)
		if err != nil {
			return err
		}
		adj, err := e.ledger.PostBalancingAdjustment(ctx, ledger.AdjustmentRequest{
			CompanyID:         companyID,
			EntryID:           entryID,
			RoundingAccountID: acc.ID,
		})
		if err != nil {
			return err
		}
		res.addEntry(adj)
		return nil
	})
}

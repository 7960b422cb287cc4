//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/internal/core/security"
	"costledger/internal/core/types"
	"costledger/internal/domain/accounts"
	"costledger/internal/domain/audit"
	"costledger/internal/domain/consignment"
	"costledger/internal/domain/ledger"
	"costledger/internal/domain/posting"
	"costledger/internal/domain/registers/costlayer"
	"costledger/internal/domain/registers/stock"
	infranumerator "costledger/internal/infrastructure/numerator"
	"costledger/internal/infrastructure/storage/postgres"
	"costledger/internal/infrastructure/storage/postgres/catalog_repo"
	"costledger/internal/infrastructure/storage/postgres/document_repo"
	"costledger/internal/infrastructure/storage/postgres/ledger_repo"
	"costledger/internal/infrastructure/storage/postgres/migrations"
	"costledger/internal/infrastructure/storage/postgres/register_repo"
	"costledger/pkg/logger"
)

type env struct {
	pool    *postgres.Pool
	txm     *postgres.TxManager
	engine  *posting.Engine
	layers  *costlayer.Service
	partner *consignment.Service
	audit   *postgres.AuditRecorder
	company id.ID
}

var day = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("costledger_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migrations.New(dsn, logger.NewNop().SugaredLogger)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	txm := postgres.NewTxManager(pool, 10*time.Second)
	numbers := infranumerator.NewWithQuerierFunc(
		func(ctx context.Context) infranumerator.Querier { return txm.GetQuerier(ctx) },
	)
	ledgerSvc := ledger.NewService(ledger_repo.NewLedgerRepo(txm), txm, numbers, security.NewStrictPolicy(time.Time{}), ledger.Config{
		Epsilon: types.MustMoney("0.01"),
		Digits:  types.ReportingDigits,
	})
	layers := costlayer.NewService(register_repo.NewCostLayerRepo(txm), txm)
	stockSvc := stock.NewService(register_repo.NewStockRepo(txm))
	partners := consignment.NewService(register_repo.NewConsignmentRepo(txm), layers, stockSvc, txm)
	auditRecorder, err := postgres.NewAuditRecorder(txm, 64)
	require.NoError(t, err)

	e := &env{
		pool:    pool,
		txm:     txm,
		layers:  layers,
		partner: partners,
		audit:   auditRecorder,
		company: id.New(),
	}
	e.engine = posting.NewEngine(posting.Deps{
		TxManager: txm,
		Ledger:    ledgerSvc,
		Layers:    layers,
		Partners:  partners,
		Stock:     stockSvc,
		Accounts:  accounts.NewResolver(catalog_repo.NewAccountRepo(txm), nil),
		Invoices:  document_repo.NewInvoiceRepo(txm),
		Bills:     document_repo.NewBillRepo(txm),
		WriteOffs: document_repo.NewWriteOffRepo(txm),
		Audit:     auditRecorder,
	})
	e.seedChart(t)
	return e
}

func (e *env) exec(t *testing.T, sql string, args ...any) {
	t.Helper()
	_, err := e.pool.Exec(context.Background(), sql, args...)
	require.NoError(t, err)
}

func (e *env) seedChart(t *testing.T) {
	chart := []struct {
		code string
		name string
		typ  accounts.Type
		role accounts.Role
	}{
		{"1100", "Accounts receivable", accounts.TypeAsset, accounts.RoleAccountsReceivable},
		{"1200", "Inventory", accounts.TypeAsset, accounts.RoleInventory},
		{"1300", "Input tax", accounts.TypeAsset, accounts.RoleTaxReceivable},
		{"2100", "Accounts payable", accounts.TypeLiability, accounts.RoleAccountsPayable},
		{"2200", "Output tax", accounts.TypeLiability, accounts.RoleTaxPayable},
		{"4000", "Sales revenue", accounts.TypeIncome, accounts.RoleSalesRevenue},
		{"5000", "Cost of goods sold", accounts.TypeExpense, accounts.RoleCOGS},
		{"5100", "Inventory write-off", accounts.TypeExpense, accounts.RoleInventoryWriteOff},
		{"5200", "Purchases expense", accounts.TypeExpense, accounts.RolePurchaseExpense},
	}
	for _, c := range chart {
		e.exec(t, `INSERT INTO accounts (id, company_id, code, name, account_type, sub_type) VALUES ($1, $2, $3, $4, $5, $6)`,
			id.New(), e.company, c.code, c.name, string(c.typ), string(c.role))
	}
}

// bill stores a received bill with one stocked line.
func (e *env) bill(t *testing.T, date time.Time, productID id.ID, qty, unitCost string) id.ID {
	t.Helper()
	billID := id.New()
	q := types.MustQuantity(qty)
	cost := types.MustMoney(unitCost)
	amount := q.MulMoney(cost)
	e.exec(t, `INSERT INTO bills (id, company_id, number, date, vendor_id, status, subtotal, total)
		VALUES ($1, $2, $3, $4, $5, 'received', $6, $6)`,
		billID, e.company, "BILL-"+billID.String()[:8], date, id.New(), amount)
	e.exec(t, `INSERT INTO bill_lines (document_id, line_id, line_no, product_id, quantity, unit_cost, amount)
		VALUES ($1, $2, 1, $3, $4, $5, $6)`,
		billID, id.New(), productID, q.Int64Scaled(), cost, amount)
	return billID
}

// invoice stores an issued, tax-free invoice with one stocked line.
func (e *env) invoice(t *testing.T, date time.Time, productID id.ID, qty, price string) id.ID {
	t.Helper()
	invoiceID := id.New()
	q := types.MustQuantity(qty)
	unit := types.MustMoney(price)
	amount := q.MulMoney(unit)
	e.exec(t, `INSERT INTO invoices (id, company_id, number, date, customer_id, status, subtotal, total)
		VALUES ($1, $2, $3, $4, $5, 'issued', $6, $6)`,
		invoiceID, e.company, "INV-"+invoiceID.String()[:8], date, id.New(), amount)
	e.exec(t, `INSERT INTO invoice_lines (document_id, line_id, line_no, product_id, quantity, unit_price, amount)
		VALUES ($1, $2, 1, $3, $4, $5, $6)`,
		invoiceID, id.New(), productID, q.Int64Scaled(), unit, amount)
	return invoiceID
}

func (e *env) receive(t *testing.T, date time.Time, productID id.ID, qty, unitCost string) {
	t.Helper()
	_, err := e.engine.PostBillReceipt(context.Background(), e.company, e.bill(t, date, productID, qty, unitCost), nil)
	require.NoError(t, err)
}

func (e *env) count(t *testing.T, sql string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, e.pool.QueryRow(context.Background(), sql, args...).Scan(&n))
	return n
}

func TestIntegration_SaleAndCOGS(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	product := id.New()
	e.receive(t, day, product, "10", "5.00")
	e.receive(t, day.AddDate(0, 0, 1), product, "10", "6.00")

	invoiceID := e.invoice(t, day.AddDate(0, 0, 2), product, "15", "9.00")

	res, err := e.engine.PostSaleAndCOGS(ctx, e.company, invoiceID, nil)
	require.NoError(t, err)
	assert.Equal(t, "80.00", res.COGSTotal.StringFixed(2))
	assert.Len(t, res.EntryIDs, 2)

	res, err = e.engine.PostSaleAndCOGS(ctx, e.company, invoiceID, nil)
	require.NoError(t, err)
	assert.True(t, res.AlreadyPosted)
	assert.Equal(t, 1, e.count(t,
		`SELECT count(*) FROM journal_entries WHERE company_id = $1 AND reference_type = 'sale_cogs' AND NOT is_deleted`, e.company))

	rows, err := e.layers.Valuation(ctx, costlayer.ValuationFilter{CompanyID: e.company, ProductIDs: []id.ID{product}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "30.00", rows[0].Value.StringFixed(2))

	history, err := e.audit.History(ctx, e.company, invoiceID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, audit.OutcomeAlreadyPosted, history[0].Outcome)
	assert.Equal(t, audit.OutcomeSucceeded, history[1].Outcome)
	assert.NotEmpty(t, history[1].Payload, "compressed payload round-trips")
}

func TestIntegration_InsufficientRollsBack(t *testing.T) {
	e := newEnv(t)
	product := id.New()
	e.receive(t, day, product, "2", "5.00")
	invoiceID := e.invoice(t, day.AddDate(0, 0, 1), product, "5", "9.00")

	_, err := e.engine.PostSaleAndCOGS(context.Background(), e.company, invoiceID, nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientInventory))

	assert.Equal(t, 0, e.count(t, `SELECT count(*) FROM journal_entries WHERE reference_id = $1`, invoiceID))
	assert.Equal(t, 0, e.count(t, `SELECT count(*) FROM cogs_transactions WHERE source_id = $1`, invoiceID))
	assert.Equal(t, 1, e.count(t, `SELECT count(*) FROM cost_layers WHERE company_id = $1 AND remaining_qty = $2`,
		e.company, types.MustQuantity("2").Int64Scaled()))
}

func TestIntegration_ConcurrentSalesNeverOversell(t *testing.T) {
	e := newEnv(t)
	product := id.New()
	e.receive(t, day, product, "10", "5.00")

	const workers = 6
	invoices := make([]id.ID, workers)
	for i := range invoices {
		invoices[i] = e.invoice(t, day.AddDate(0, 0, 1), product, "3", "9.00")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for _, invoiceID := range invoices {
		wg.Add(1)
		go func(invoiceID id.ID) {
			defer wg.Done()
			_, err := e.engine.PostSaleAndCOGS(context.Background(), e.company, invoiceID, nil)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientInventory), err.Error())
		}(invoiceID)
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 0, e.count(t, `SELECT count(*) FROM cost_layers WHERE remaining_qty < 0`))
	available, err := e.layers.Available(context.Background(), costlayer.Scope{CompanyID: e.company, ProductID: product}, day.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, types.MustQuantity("1"), available)

	// A sale and a partner transfer of one invoice exclude each other, and
	// so do two transfers to different partners.
	e.receive(t, day.AddDate(0, 0, 2), product, "20", "5.00")
	const rounds = 5
	racing := make([]id.ID, rounds)
	for i := range racing {
		racing[i] = e.invoice(t, day.AddDate(0, 0, 3), product, "2", "9.00")
	}
	for _, invoiceID := range racing {
		var (
			start sync.WaitGroup
			done  sync.WaitGroup
			errs  = make([]error, 3)
		)
		start.Add(1)
		calls := []func() error{
			func() error {
				_, err := e.engine.PostSaleAndCOGS(context.Background(), e.company, invoiceID, nil)
				return err
			},
			func() error {
				_, err := e.engine.TransferToPartner(context.Background(), e.company, invoiceID, id.New())
				return err
			},
			func() error {
				_, err := e.engine.TransferToPartner(context.Background(), e.company, invoiceID, id.New())
				return err
			},
		}
		for i, call := range calls {
			done.Add(1)
			go func(i int, call func() error) {
				defer done.Done()
				start.Wait()
				errs[i] = call()
			}(i, call)
		}
		start.Done()
		done.Wait()

		ok := 0
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState) || apperror.HasCode(err, apperror.CodeConflict), err.Error())
		}
		assert.Equal(t, 1, ok, "invoice %s", invoiceID)

		sales := e.count(t, `SELECT count(*) FROM journal_entries
			WHERE company_id = $1 AND reference_type = 'sale' AND reference_id = $2 AND NOT is_deleted`, e.company, invoiceID)
		records := e.count(t, `SELECT count(*) FROM third_party_inventory
			WHERE company_id = $1 AND source_doc_id = $2`, e.company, invoiceID)
		assert.Equal(t, 1, sales+records, "invoice %s is either sold or with a partner", invoiceID)
	}

	available, err = e.layers.Available(context.Background(), costlayer.Scope{CompanyID: e.company, ProductID: product}, day.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.Equal(t, types.MustQuantity("11"), available)
}

func TestIntegration_PartnerConservation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	product := id.New()
	e.receive(t, day, product, "10", "5.00")
	e.receive(t, day.AddDate(0, 0, 1), product, "10", "6.00")
	invoiceID := e.invoice(t, day.AddDate(0, 0, 2), product, "15", "10.00")

	_, err := e.engine.TransferToPartner(ctx, e.company, invoiceID, id.New())
	require.NoError(t, err)

	res, err := e.engine.ClearPartnerBalance(ctx, posting.ClearRequest{
		CompanyID: e.company,
		InvoiceID: invoiceID,
		PaidRatio: decimal.RequireFromString("0.4"),
		PaymentID: id.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, "30.00", res.COGSTotal.StringFixed(2))

	_, err = e.engine.ReturnFromPartner(ctx, e.company, invoiceID, product, types.MustQuantity("20"))
	require.NoError(t, err)

	records, err := e.partner.Records(ctx, e.company, invoiceID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, consignment.StatusReturned, rec.Status)
	assert.Equal(t, rec.Quantity, rec.ClearedQty+rec.ReturnedQty+rec.WithPartner())
	assert.Empty(t, rec.Allocations)
	assert.NoError(t, rec.CheckConservation(ctx))
}

// Package postingtest builds a posting engine over the memory store with a
// seeded chart of accounts, for tests of the engine and its callers.
package postingtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"costledger/internal/core/id"
	"costledger/internal/core/security"
	"costledger/internal/core/types"
	"costledger/internal/domain/accounts"
	"costledger/internal/domain/consignment"
	"costledger/internal/domain/documents/bill"
	"costledger/internal/domain/documents/invoice"
	"costledger/internal/domain/documents/write_off"
	"costledger/internal/domain/ledger"
	"costledger/internal/domain/posting"
	"costledger/internal/domain/registers/costlayer"
	"costledger/internal/domain/registers/stock"
	"costledger/internal/infrastructure/storage/memory"
)

// Base is day zero of every fixture calendar.
var Base = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

// Day returns Base plus n days.
func Day(n int) time.Time {
	return Base.AddDate(0, 0, n)
}

// Fixture is one company with a complete chart of accounts.
type Fixture struct {
	Store    *memory.Store
	Engine   *posting.Engine
	Ledger   *ledger.Service
	Layers   *costlayer.Service
	Partners *consignment.Service
	Stock    *stock.Service
	Policy   *security.StrictPolicy

	Company  id.ID
	Customer id.ID
	Vendor   id.ID
	Accounts map[accounts.Role]accounts.Account
}

// chart is tagged by sub_type, so nothing falls back to name rules.
var chart = []struct {
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
	{"5900", "Rounding differences", accounts.TypeExpense, accounts.RoleRoundingDifference},
}

// New builds a fixture. Periods are open; close them through Policy.
func New(t testing.TB) *Fixture {
	t.Helper()

	store := memory.New()
	txm := store.TxManager()
	policy := security.NewStrictPolicy(time.Time{})

	ledgerSvc := ledger.NewService(store.Ledger(), txm, store.Numerator(), policy, ledger.Config{
		Epsilon: types.MustMoney("0.01"),
		Digits:  types.ReportingDigits,
	})
	layers := costlayer.NewService(store.CostLayers(), txm)
	stockSvc := stock.NewService(store.Stock())
	partners := consignment.NewService(store.Consignment(), layers, stockSvc, txm)

	f := &Fixture{
		Store:    store,
		Ledger:   ledgerSvc,
		Layers:   layers,
		Partners: partners,
		Stock:    stockSvc,
		Policy:   policy,
		Company:  id.New(),
		Customer: id.New(),
		Vendor:   id.New(),
		Accounts: make(map[accounts.Role]accounts.Account, len(chart)),
	}

	for _, c := range chart {
		acc := accounts.Account{
			ID:        id.New(),
			CompanyID: f.Company,
			Code:      c.code,
			Name:      c.name,
			Type:      c.typ,
			SubType:   string(c.role),
			IsActive:  true,
		}
		store.Accounts().Put(acc)
		f.Accounts[c.role] = acc
	}

	f.Engine = posting.NewEngine(posting.Deps{
		TxManager: txm,
		Ledger:    ledgerSvc,
		Layers:    layers,
		Partners:  partners,
		Stock:     stockSvc,
		Accounts:  accounts.NewResolver(store.Accounts(), nil),
		Invoices:  store.Invoices(),
		Bills:     store.Bills(),
		WriteOffs: store.WriteOffs(),
		Audit:     store.Audit(),
	})
	return f
}

// Account returns the id of the account tagged with role.
func (f *Fixture) Account(role accounts.Role) id.ID {
	return f.Accounts[role].ID
}

// Bill stores a received bill with one stocked line per item.
func (f *Fixture) Bill(date time.Time, items ...Item) *bill.Bill {
	b := bill.New(f.Company, f.Vendor)
	b.Number = "BILL-" + b.ID.String()[:8]
	b.Date = date
	for _, it := range items {
		b.AddItem(it.ProductID, types.MustQuantity(it.Quantity), types.MustMoney(it.Price))
	}
	f.Store.Bills().Put(b)
	return b
}

// Invoice stores an issued, tax-free invoice with one stocked line per item.
func (f *Fixture) Invoice(date time.Time, items ...Item) *invoice.Invoice {
	inv := invoice.New(f.Company, f.Customer)
	inv.Number = "INV-" + inv.ID.String()[:8]
	inv.Date = date
	for _, it := range items {
		inv.AddLine(it.ProductID, types.MustQuantity(it.Quantity), types.MustMoney(it.Price), types.Zero(), true)
	}
	f.Store.Invoices().Put(inv)
	return inv
}

// WriteOff stores an approved write-off.
func (f *Fixture) WriteOff(date time.Time, items ...Item) *write_off.WriteOff {
	w := write_off.New(f.Company, "damaged")
	w.Number = "WO-" + w.ID.String()[:8]
	w.Date = date
	for _, it := range items {
		w.AddLine(it.ProductID, types.MustQuantity(it.Quantity))
	}
	f.Store.WriteOffs().Put(w)
	return w
}

// Receive posts a bill for one product and fails the test on error.
func (f *Fixture) Receive(t testing.TB, date time.Time, productID id.ID, quantity, unitCost string) *bill.Bill {
	t.Helper()
	b := f.Bill(date, Item{ProductID: productID, Quantity: quantity, Price: unitCost})
	_, err := f.Engine.PostBillReceipt(context.Background(), f.Company, b.ID, nil)
	require.NoError(t, err)
	return b
}

// Item is a product line of a fixture document. Price is the unit price of
// an invoice line, the unit cost of a bill line and unused on write-offs.
type Item struct {
	ProductID id.ID
	Quantity  string
	Price     string
}

// Balance returns debits minus credits of an account over active entries.
func (f *Fixture) Balance(accountID id.ID) types.Money {
	total := types.Zero()
	for _, e := range f.Store.Ledger().Entries(f.Company) {
		if e.IsDeleted {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID == accountID {
				total = total.Add(l.Debit).Sub(l.Credit)
			}
		}
	}
	return total
}

// Package accounts holds the chart of accounts as the posting core sees it
// and resolves posting roles to concrete accounts.
package accounts

import (
	"context"

	"costledger/internal/core/id"
)

// Type is the accounting class of an account.
type Type string

const (
	TypeAsset     Type = "asset"
	TypeLiability Type = "liability"
	TypeEquity    Type = "equity"
	TypeIncome    Type = "income"
	TypeExpense   Type = "expense"
)

// Role is what a posting needs an account for. Accounts opt into a role by
// carrying it as their sub_type tag.
type Role string

const (
	RoleAccountsReceivable Role = "accounts_receivable"
	RoleAccountsPayable    Role = "accounts_payable"
	RoleSalesRevenue       Role = "sales_revenue"
	RoleTaxPayable         Role = "tax_payable"
	RoleTaxReceivable      Role = "tax_receivable"
	RoleInventory          Role = "inventory"
	RoleCOGS               Role = "cost_of_goods_sold"
	RoleInventoryWriteOff  Role = "inventory_write_off"
	RolePurchaseExpense    Role = "purchase_expense"
	RoleRoundingDifference Role = "rounding_difference"
)

// Account is a chart-of-accounts row.
type Account struct {
	ID        id.ID  `db:"id" json:"id"`
	CompanyID id.ID  `db:"company_id" json:"companyId"`
	Code      string `db:"code" json:"code"`
	Name      string `db:"name" json:"name"`
	Type      Type   `db:"account_type" json:"type"`
	SubType   string `db:"sub_type" json:"subType,omitempty"`
	IsActive  bool   `db:"is_active" json:"isActive"`
}

// Repository reads the chart of accounts.
type Repository interface {
	GetByID(ctx context.Context, companyID, accountID id.ID) (*Account, error)
	ListActive(ctx context.Context, companyID id.ID) ([]Account, error)
}

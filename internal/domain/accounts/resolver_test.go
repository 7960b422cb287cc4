package accounts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/internal/domain/accounts"
	"costledger/internal/infrastructure/storage/memory"
)

type chartBuilder struct {
	store   *memory.Store
	company id.ID
}

func newChart() *chartBuilder {
	return &chartBuilder{store: memory.New(), company: id.New()}
}

func (c *chartBuilder) add(code, name string, typ accounts.Type, subType string) accounts.Account {
	acc := accounts.Account{
		ID:        id.New(),
		CompanyID: c.company,
		Code:      code,
		Name:      name,
		Type:      typ,
		SubType:   subType,
		IsActive:  true,
	}
	c.store.Accounts().Put(acc)
	return acc
}

func TestResolve_Order(t *testing.T) {
	ctx := context.Background()
	c := newChart()
	byName := c.add("1150", "Trade receivables", accounts.TypeAsset, "")
	tagged := c.add("1190", "Customers", accounts.TypeAsset, string(accounts.RoleAccountsReceivable))
	override := c.add("1199", "Customers abroad", accounts.TypeAsset, "")

	r := accounts.NewResolver(c.store.Accounts(), nil)

	acc, err := r.Resolve(ctx, c.company, accounts.RoleAccountsReceivable, override.ID)
	require.NoError(t, err)
	assert.Equal(t, override.ID, acc.ID)

	acc, err = r.Resolve(ctx, c.company, accounts.RoleAccountsReceivable, id.Nil())
	require.NoError(t, err)
	assert.Equal(t, tagged.ID, acc.ID, "sub_type tag wins over the name rule")
	assert.NotEqual(t, byName.ID, acc.ID)
}

func TestResolve_LowestTaggedCodeWins(t *testing.T) {
	c := newChart()
	c.add("5010", "COGS retail", accounts.TypeExpense, string(accounts.RoleCOGS))
	first := c.add("5000", "COGS wholesale", accounts.TypeExpense, string(accounts.RoleCOGS))

	acc, err := accounts.NewResolver(c.store.Accounts(), nil).
		Resolve(context.Background(), c.company, accounts.RoleCOGS, id.Nil())
	require.NoError(t, err)
	assert.Equal(t, first.ID, acc.ID)
}

func TestResolve_NameRules(t *testing.T) {
	tests := []struct {
		name    string
		role    accounts.Role
		account string
		typ     accounts.Type
		found   bool
	}{
		{"english keyword", accounts.RoleInventory, "Merchandise stock", accounts.TypeAsset, true},
		{"arabic keyword", accounts.RoleCOGS, "تكلفة البضاعة المباعة", accounts.TypeExpense, true},
		{"spanish keyword", accounts.RoleSalesRevenue, "Ventas nacionales", accounts.TypeIncome, true},
		{"case insensitive", accounts.RoleRoundingDifference, "ROUNDING Differences", accounts.TypeExpense, true},
		{"wrong type", accounts.RoleInventory, "Inventory", accounts.TypeExpense, false},
		{"no keyword", accounts.RoleAccountsPayable, "Bank", accounts.TypeLiability, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newChart()
			want := c.add("1000", tt.account, tt.typ, "")

			acc, err := accounts.NewResolver(c.store.Accounts(), nil).
				Resolve(context.Background(), c.company, tt.role, id.Nil())
			if !tt.found {
				assert.True(t, apperror.HasCode(err, apperror.CodeAccountUnresolved))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, want.ID, acc.ID)
		})
	}
}

func TestResolve_BadOverride(t *testing.T) {
	c := newChart()
	inactive := c.add("1200", "Old inventory", accounts.TypeAsset, string(accounts.RoleInventory))
	inactive.IsActive = false
	c.store.Accounts().Put(inactive)

	r := accounts.NewResolver(c.store.Accounts(), nil)

	_, err := r.Resolve(context.Background(), c.company, accounts.RoleInventory, id.New())
	assert.True(t, apperror.HasCode(err, apperror.CodeAccountUnresolved))

	_, err = r.Resolve(context.Background(), c.company, accounts.RoleInventory, inactive.ID)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeAccountUnresolved, appErr.Code)
	assert.Equal(t, "account is inactive", appErr.Details["reason"])
}

func TestResolve_OtherCompanyIsInvisible(t *testing.T) {
	c := newChart()
	c.add("1200", "Inventory", accounts.TypeAsset, string(accounts.RoleInventory))

	_, err := accounts.NewResolver(c.store.Accounts(), nil).
		Resolve(context.Background(), id.New(), accounts.RoleInventory, id.Nil())
	assert.True(t, apperror.HasCode(err, apperror.CodeAccountUnresolved))
}

func TestResolveSet(t *testing.T) {
	c := newChart()
	ar := c.add("1100", "Receivables", accounts.TypeAsset, string(accounts.RoleAccountsReceivable))
	rev := c.add("4000", "Sales", accounts.TypeIncome, string(accounts.RoleSalesRevenue))
	alt := c.add("4100", "Export sales", accounts.TypeIncome, "")

	r := accounts.NewResolver(c.store.Accounts(), nil)
	roles := []accounts.Role{accounts.RoleAccountsReceivable, accounts.RoleSalesRevenue}

	got, err := r.ResolveSet(context.Background(), c.company, roles, nil)
	require.NoError(t, err)
	assert.Equal(t, ar.ID, got[accounts.RoleAccountsReceivable].ID)
	assert.Equal(t, rev.ID, got[accounts.RoleSalesRevenue].ID)

	got, err = r.ResolveSet(context.Background(), c.company, roles, map[accounts.Role]id.ID{accounts.RoleSalesRevenue: alt.ID})
	require.NoError(t, err)
	assert.Equal(t, alt.ID, got[accounts.RoleSalesRevenue].ID)

	_, err = r.ResolveSet(context.Background(), c.company, append(roles, accounts.RoleCOGS), nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeAccountUnresolved))
}

func TestCompileRules(t *testing.T) {
	_, err := accounts.CompileRules(accounts.DefaultRules())
	require.NoError(t, err)

	tests := []struct {
		name  string
		rules []accounts.Rule
	}{
		{"missing role", []accounts.Rule{{Keywords: []string{"x"}}}},
		{"duplicate role", []accounts.Rule{
			{Role: accounts.RoleCOGS, Keywords: []string{"a"}},
			{Role: accounts.RoleCOGS, Keywords: []string{"b"}},
		}},
		{"empty rule", []accounts.Rule{{Role: accounts.RoleCOGS}}},
		{"syntax error", []accounts.Rule{{Role: accounts.RoleCOGS, Expression: "code ==="}}},
		{"non bool", []accounts.Rule{{Role: accounts.RoleCOGS, Expression: "code + name"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := accounts.CompileRules(tt.rules)
			assert.Error(t, err)
		})
	}
}

func TestResolve_ExpressionRule(t *testing.T) {
	rules, err := accounts.CompileRules([]accounts.Rule{{
		Role:       accounts.RoleInventory,
		Types:      []accounts.Type{accounts.TypeAsset},
		Expression: `code.startsWith("13") && type == "asset"`,
	}})
	require.NoError(t, err)

	c := newChart()
	c.add("1200", "Warehouse A", accounts.TypeAsset, "")
	want := c.add("1310", "Warehouse B", accounts.TypeAsset, "")

	acc, err := accounts.NewResolver(c.store.Accounts(), rules).
		Resolve(context.Background(), c.company, accounts.RoleInventory, id.Nil())
	require.NoError(t, err)
	assert.Equal(t, want.ID, acc.ID)
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/domain/accounts"
	"costledger/internal/domain/ledger"
)

type mockDocument struct {
	ID      string `db:"id"`
	Ignored string `db:"-"`
	NoTag   string
	entity.Location
	Number string `db:"number"`
}

func TestColumns_EmbeddedLocation(t *testing.T) {
	cols := Columns[mockDocument]()

	assert.Equal(t, []string{"id", "branch_id", "warehouse_id", "cost_center_id", "number"}, cols)
	assert.NotContains(t, cols, "-")
}

func TestColumns_DomainTypes(t *testing.T) {
	assert.Equal(t,
		[]string{"id", "company_id", "code", "name", "account_type", "sub_type", "is_active"},
		Columns[accounts.Account](),
	)

	entryCols := Columns[ledger.Entry]()
	for _, expected := range []string{"id", "company_id", "reference_type", "reference_id", "is_deleted"} {
		assert.Contains(t, entryCols, expected)
	}
	assert.NotContains(t, entryCols, "lines")
}

func TestColumns_Cached(t *testing.T) {
	first := Columns[mockDocument]()
	second := Columns[mockDocument]()
	assert.Equal(t, fmt.Sprintf("%p", first), fmt.Sprintf("%p", second))
}

func TestErrorClassification(t *testing.T) {
	unique := &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "uq_journal_active_reference"}
	wrapped := fmt.Errorf("insert: %w", unique)

	assert.True(t, IsUniqueViolation(wrapped, ""))
	assert.True(t, IsUniqueViolation(wrapped, "uq_journal_active_reference"))
	assert.False(t, IsUniqueViolation(wrapped, "other"))
	assert.False(t, IsCheckViolation(wrapped))

	assert.True(t, IsCheckViolation(&pgconn.PgError{Code: pgCheckViolation}))
	assert.True(t, IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(errors.New("boom")))
}

func TestTranslateTimeout(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		timeout bool
	}{
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"statement timeout", &pgconn.PgError{Code: pgQueryCanceled}, true},
		{"other", errors.New("connection reset"), false},
		{"app error kept", apperror.NewValidation("bad"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateTimeout(tt.err)
			assert.Equal(t, tt.timeout, apperror.HasCode(got, apperror.CodeTimeout))
		})
	}
}

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig("postgres://localhost/costledger")
	assert.Equal(t, "costledger", cfg.ApplicationName)
	assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
	assert.LessOrEqual(t, cfg.MinConns, cfg.MaxConns)
}

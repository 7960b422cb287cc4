package ledger

import (
	"context"
	"fmt"
	"time"

	"costledger/internal/core/apperror"
	appctx "costledger/internal/core/context"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/numerator"
	"costledger/internal/core/security"
	"costledger/internal/core/tx"
	"costledger/internal/core/types"
	"costledger/pkg/logger"
)

// Config tunes the validator.
type Config struct {
	// Epsilon is the balance tolerance in the reporting currency.
	Epsilon types.Money
	// Digits is the number of fractional digits journal amounts are rounded to.
	Digits int32
}

// DefaultConfig returns a 0.01 tolerance and 2 digits.
func DefaultConfig() Config {
	return Config{
		Epsilon: types.MustMoney("0.01"),
		Digits:  types.ReportingDigits,
	}
}

// Service is the journal governance validator.
type Service struct {
	repo      Repository
	txm       tx.Manager
	numerator numerator.Generator
	policy    security.PostingPolicy
	cfg       Config
	now       func() time.Time
}

// NewService creates the validator.
func NewService(repo Repository, txm tx.Manager, gen numerator.Generator, policy security.PostingPolicy, cfg Config) *Service {
	if policy == nil {
		policy = security.OpenPolicy{}
	}
	if cfg.Epsilon.IsZero() {
		cfg.Epsilon = DefaultConfig().Epsilon
	}
	return &Service{
		repo:      repo,
		txm:       txm,
		numerator: gen,
		policy:    policy,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// DuplicateCheck is the result of a duplicate lookup.
type DuplicateCheck struct {
	Exists  bool
	EntryID id.ID
}

// CheckDuplicate looks for an active entry holding the triple. The store's
// unique index is the authoritative guard; this lookup exists so callers get
// a clean error before doing any work.
func (s *Service) CheckDuplicate(ctx context.Context, companyID id.ID, refType ReferenceType, refID id.ID) (DuplicateCheck, error) {
	entryID, err := s.repo.FindActiveID(ctx, companyID, refType, refID)
	if err != nil {
		return DuplicateCheck{}, fmt.Errorf("check duplicate: %w", err)
	}
	return DuplicateCheck{Exists: !id.IsNil(entryID), EntryID: entryID}, nil
}

// EnsureNotPosted returns DUPLICATE_POSTING when the triple is taken.
func (s *Service) EnsureNotPosted(ctx context.Context, companyID id.ID, refType ReferenceType, refID id.ID) error {
	dup, err := s.CheckDuplicate(ctx, companyID, refType, refID)
	if err != nil {
		return err
	}
	if dup.Exists {
		logger.Warn(ctx, "duplicate posting blocked",
			"company_id", companyID,
			"reference_type", refType,
			"reference_id", refID,
			"existing_entry_id", dup.EntryID,
		)
		return apperror.NewDuplicatePosting(companyID.String(), string(refType), refID.String()).
			WithDetail("existing_entry_id", dup.EntryID.String())
	}
	return nil
}

// IsPosted reports whether an active entry holds the triple.
func (s *Service) IsPosted(ctx context.Context, companyID id.ID, refType ReferenceType, refID id.ID) (bool, error) {
	dup, err := s.CheckDuplicate(ctx, companyID, refType, refID)
	return dup.Exists, err
}

// CheckPrerequisite returns PREREQUISITE_MISSING when refType depends on
// another type that has no active entry for refID.
func (s *Service) CheckPrerequisite(ctx context.Context, companyID id.ID, refType ReferenceType, refID id.ID) error {
	required, ok := Prerequisite(refType)
	if !ok {
		return nil
	}
	exists, err := s.IsPosted(ctx, companyID, required, refID)
	if err != nil {
		return fmt.Errorf("check prerequisite: %w", err)
	}
	if !exists {
		return apperror.NewPrerequisiteMissing(string(refType), string(required), refID.String()).
			WithDetail("company_id", companyID.String())
	}
	return nil
}

// ValidateBalance checks lines against the configured tolerance.
func (s *Service) ValidateBalance(lines []Line) BalanceResult {
	return ValidateBalance(lines, s.cfg.Epsilon)
}

// PostRequest describes an entry to post.
type PostRequest struct {
	CompanyID     id.ID
	Date          time.Time
	ReferenceType ReferenceType
	ReferenceID   id.ID
	Description   string
	Location      entity.Location
	Lines         []Line

	// WithoutRevenue marks a cost entry whose event carries no revenue at
	// all (zero-priced goods). The prerequisite check is skipped for it.
	WithoutRevenue bool
}

// PostEntry validates and inserts an entry atomically. Checks run in
// order: period, lines, balance, duplicate, prerequisite.
func (s *Service) PostEntry(ctx context.Context, req PostRequest) (*Entry, error) {
	if id.IsNil(req.CompanyID) {
		return nil, apperror.NewValidation("company is required").WithDetail("field", "companyId")
	}
	if !req.ReferenceType.Valid() || req.ReferenceType == RefBalancingAdjustment {
		return nil, apperror.NewValidation("unsupported reference type").
			WithDetail("reference_type", string(req.ReferenceType))
	}
	if id.IsNil(req.ReferenceID) {
		return nil, apperror.NewValidation("reference id is required").WithDetail("field", "referenceId")
	}
	if _, ok := Prerequisite(req.ReferenceType); req.WithoutRevenue && !ok {
		return nil, apperror.NewValidation("only cost entries may be posted without revenue").
			WithDetail("reference_type", string(req.ReferenceType))
	}
	if len(req.Lines) < 2 {
		return nil, apperror.NewValidation("an entry needs at least two lines").
			WithDetail("lines", len(req.Lines))
	}

	entry := s.newEntry(req.CompanyID, req.Date, req.ReferenceType, req.ReferenceID, KindStandard, req.Description, req.Lines)
	entry.Location = req.Location
	if err := s.validateEntry(ctx, entry); err != nil {
		return nil, err
	}

	if res := s.ValidateBalance(entry.Lines); !res.Balanced {
		return nil, apperror.NewUnbalancedEntry(res.TotalDebit.String(), res.TotalCredit.String(), res.Difference.String()).
			WithDetail("reference_type", string(req.ReferenceType)).
			WithDetail("reference_id", req.ReferenceID.String())
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.EnsureNotPosted(ctx, entry.CompanyID, entry.ReferenceType, entry.ReferenceID); err != nil {
			return err
		}
		if req.WithoutRevenue {
			logger.Warn(ctx, "cost posted without a revenue entry",
				"company_id", entry.CompanyID,
				"reference_type", entry.ReferenceType,
				"reference_id", entry.ReferenceID,
			)
			return s.insert(ctx, entry)
		}
		if err := s.CheckPrerequisite(ctx, entry.CompanyID, entry.ReferenceType, entry.ReferenceID); err != nil {
			return err
		}
		return s.insert(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	debit, _ := entry.Totals()
	logger.Info(ctx, "journal entry posted",
		"company_id", entry.CompanyID,
		"number", entry.Number,
		"reference_type", entry.ReferenceType,
		"reference_id", entry.ReferenceID,
		"amount", debit.String(),
	)
	return entry, nil
}

// ReverseEntry soft-deletes the active entry of the triple together with
// its balancing adjustments. The rows stay for audit.
func (s *Service) ReverseEntry(ctx context.Context, companyID id.ID, refType ReferenceType, refID id.ID, reason string) (*Entry, error) {
	var entry *Entry
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		entry, err = s.repo.GetActive(ctx, companyID, refType, refID)
		if err != nil {
			return err
		}
		if err := s.policy.CanPost(ctx, companyID, entry.Date); err != nil {
			return err
		}

		at := s.now()
		adjustments, err := s.repo.ListAdjustments(ctx, companyID, entry.ID)
		if err != nil {
			return fmt.Errorf("list adjustments: %w", err)
		}
		for _, adj := range adjustments {
			if err := s.repo.SoftDelete(ctx, companyID, adj.ID, reason, at); err != nil {
				return fmt.Errorf("delete adjustment: %w", err)
			}
		}
		if err := s.repo.SoftDelete(ctx, companyID, entry.ID, reason, at); err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}

		entry.IsDeleted = true
		entry.DeletedAt = &at
		entry.DeletionReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "journal entry reversed",
		"company_id", companyID,
		"number", entry.Number,
		"reference_type", refType,
		"reference_id", refID,
		"reason", reason,
	)
	return entry, nil
}

// AdjustmentRequest asks for a balancing adjustment of one entry.
type AdjustmentRequest struct {
	CompanyID         id.ID
	EntryID           id.ID
	RoundingAccountID id.ID
	Date              time.Time
}

// PostBalancingAdjustment inserts a balancing_adjustment entry whose lines
// balance only together with the drifted entry. The drifted entry is not
// touched.
func (s *Service) PostBalancingAdjustment(ctx context.Context, req AdjustmentRequest) (*Entry, error) {
	if id.IsNil(req.RoundingAccountID) {
		return nil, apperror.NewValidation("rounding account is required").WithDetail("field", "roundingAccountId")
	}

	var adj *Entry
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		target, err := s.repo.GetByID(ctx, req.CompanyID, req.EntryID)
		if err != nil {
			return err
		}
		if target.IsDeleted {
			return apperror.NewInvalidState("journal_entry", "cannot adjust a deleted entry").
				WithDetail("entry_id", target.ID.String())
		}
		if target.Kind != KindStandard {
			return apperror.NewInvalidState("journal_entry", "only standard entries can be adjusted").
				WithDetail("entry_id", target.ID.String())
		}

		res := s.ValidateBalance(target.Lines)
		if res.Difference.IsZero() {
			return apperror.NewInvalidState("journal_entry", "entry is already balanced").
				WithDetail("entry_id", target.ID.String())
		}

		if err := s.EnsureNotPosted(ctx, req.CompanyID, RefBalancingAdjustment, target.ID); err != nil {
			return err
		}

		// More debit than credit needs a credit, and the other way round.
		var line Line
		if res.Difference.IsPositive() {
			line = Cr(req.RoundingAccountID, res.Difference, "balancing adjustment")
		} else {
			line = Dr(req.RoundingAccountID, res.Difference.Neg(), "balancing adjustment")
		}

		date := req.Date
		if date.IsZero() {
			date = target.Date
		}
		adj = s.newEntry(req.CompanyID, date, RefBalancingAdjustment, target.ID, KindBalancingAdjustment,
			"balancing adjustment for "+target.Number, []Line{line})
		adj.AdjustsEntryID = target.ID
		adj.Location = target.Location
		if err := s.validateEntry(ctx, adj); err != nil {
			return err
		}

		combined := append(append([]Line{}, target.Lines...), adj.Lines...)
		if res := ValidateBalance(combined, s.cfg.Epsilon); !res.Balanced || !res.Difference.IsZero() {
			return apperror.NewUnbalancedEntry(res.TotalDebit.String(), res.TotalCredit.String(), res.Difference.String()).
				WithDetail("entry_id", target.ID.String())
		}

		return s.insert(ctx, adj)
	})
	if err != nil {
		return nil, err
	}

	logger.Warn(ctx, "balancing adjustment posted",
		"company_id", req.CompanyID,
		"entry_id", req.EntryID,
		"number", adj.Number,
	)
	return adj, nil
}

// ReconcileDrift posts a balancing adjustment for every active standard
// entry whose lines do not balance exactly and that has no adjustment yet.
func (s *Service) ReconcileDrift(ctx context.Context, companyID, roundingAccountID id.ID) ([]Entry, error) {
	entries, err := s.repo.ListActiveStandard(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	var posted []Entry
	for _, e := range entries {
		debit, credit := e.Totals()
		if debit.Equal(credit) {
			continue
		}
		adjusted, err := s.IsPosted(ctx, companyID, RefBalancingAdjustment, e.ID)
		if err != nil {
			return posted, fmt.Errorf("check adjustment: %w", err)
		}
		if adjusted {
			continue
		}
		adj, err := s.PostBalancingAdjustment(ctx, AdjustmentRequest{
			CompanyID:         companyID,
			EntryID:           e.ID,
			RoundingAccountID: roundingAccountID,
		})
		if err != nil {
			return posted, err
		}
		posted = append(posted, *adj)
	}
	return posted, nil
}

// GetActive returns the active entry of a triple.
func (s *Service) GetActive(ctx context.Context, companyID id.ID, refType ReferenceType, refID id.ID) (*Entry, error) {
	return s.repo.GetActive(ctx, companyID, refType, refID)
}

func (s *Service) newEntry(companyID id.ID, date time.Time, refType ReferenceType, refID id.ID, kind Kind, description string, lines []Line) *Entry {
	if date.IsZero() {
		date = s.now()
	}
	entry := &Entry{
		ID:            id.New(),
		CompanyID:     companyID,
		Date:          date,
		ReferenceType: refType,
		ReferenceID:   refID,
		Kind:          kind,
		Description:   description,
		CreatedAt:     s.now(),
		Lines:         make([]Line, len(lines)),
	}
	for i, l := range lines {
		l.ID = id.New()
		l.EntryID = entry.ID
		l.LineNo = i + 1
		l.Debit = types.RoundMinor(l.Debit, s.cfg.Digits)
		l.Credit = types.RoundMinor(l.Credit, s.cfg.Digits)
		entry.Lines[i] = l
	}
	return entry
}

func (s *Service) validateEntry(ctx context.Context, entry *Entry) error {
	if err := s.policy.CanPost(ctx, entry.CompanyID, entry.Date); err != nil {
		return err
	}
	for i := range entry.Lines {
		if err := entry.Lines[i].Validate(ctx); err != nil {
			return err
		}
	}
	return nil
}

// insert numbers and stores the entry inside the current unit.
func (s *Service) insert(ctx context.Context, entry *Entry) error {
	number, err := s.numerator.GetNextNumber(ctx, entry.CompanyID, numerator.JournalConfig(), nil, entry.Date)
	if err != nil {
		return fmt.Errorf("journal number: %w", err)
	}
	entry.Number = number
	entry.CreatedBy = appctx.GetUserID(ctx)

	if err := s.repo.Insert(ctx, entry); err != nil {
		if apperror.HasCode(err, apperror.CodeDuplicatePosting) {
			return err
		}
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

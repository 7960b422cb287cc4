package accounts

import (
	"context"
	"fmt"
	"sort"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/pkg/logger"
)

// Resolver maps posting roles to accounts of a company. Nothing is cached:
// every call reads the chart as it is inside the current unit.
type Resolver struct {
	repo  Repository
	rules *RuleSet
}

// NewResolver creates a resolver; nil rules means DefaultRules.
func NewResolver(repo Repository, rules *RuleSet) *Resolver {
	if rules == nil {
		rules = MustDefaultRuleSet()
	}
	return &Resolver{repo: repo, rules: rules}
}

// Resolve picks the account for role. Order: the explicit override, an
// active account tagged with the role as sub_type (lowest code wins), the
// configured name rule. Anything else is ACCOUNT_UNRESOLVED.
func (r *Resolver) Resolve(ctx context.Context, companyID id.ID, role Role, override id.ID) (*Account, error) {
	if !id.IsNil(override) {
		acc, err := r.repo.GetByID(ctx, companyID, override)
		if err != nil {
			if apperror.IsNotFound(err) {
				return nil, apperror.NewAccountUnresolved(companyID.String(), string(role)).
					WithDetail("override", override.String()).
					WithCause(err)
			}
			return nil, fmt.Errorf("load account %s: %w", override, err)
		}
		if !acc.IsActive {
			return nil, apperror.NewAccountUnresolved(companyID.String(), string(role)).
				WithDetail("override", override.String()).
				WithDetail("reason", "account is inactive")
		}
		return acc, nil
	}

	chart, err := r.repo.ListActive(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	sort.Slice(chart, func(i, j int) bool { return chart[i].Code < chart[j].Code })

	var tagged []*Account
	for i := range chart {
		if chart[i].SubType == string(role) {
			tagged = append(tagged, &chart[i])
		}
	}
	if len(tagged) > 0 {
		if len(tagged) > 1 {
			logger.Warn(ctx, "several accounts tagged for one role, using lowest code",
				"company_id", companyID,
				"role", role,
				"chosen", tagged[0].Code,
				"candidates", len(tagged),
			)
		}
		return tagged[0], nil
	}

	for i := range chart {
		ok, clause, err := r.rules.match(role, &chart[i])
		if err != nil {
			return nil, err
		}
		if ok {
			logger.Warn(ctx, "account resolved by name heuristic; tag it with sub_type to make this explicit",
				"company_id", companyID,
				"role", role,
				"account_code", chart[i].Code,
				"account_name", chart[i].Name,
				"rule", clause,
			)
			return &chart[i], nil
		}
	}

	return nil, apperror.NewAccountUnresolved(companyID.String(), string(role))
}

// ResolveSet resolves several roles at once. Overrides are optional per role.
func (r *Resolver) ResolveSet(ctx context.Context, companyID id.ID, roles []Role, overrides map[Role]id.ID) (map[Role]*Account, error) {
	out := make(map[Role]*Account, len(roles))
	for _, role := range roles {
		acc, err := r.Resolve(ctx, companyID, role, overrides[role])
		if err != nil {
			return nil, err
		}
		out[role] = acc
	}
	return out, nil
}

// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/internal/domain/accounts"
	"costledger/internal/domain/posting"
)

// ErrorResponse is the body rendered for every refusal.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// AccountOverrides pins accounts per posting role, e.g.
// {"sales_revenue": "<account id>"}.
type AccountOverrides map[string]string

// ToDomain parses the account ids.
func (o AccountOverrides) ToDomain() (posting.Overrides, error) {
	if len(o) == 0 {
		return nil, nil
	}
	out := make(posting.Overrides, len(o))
	for role, raw := range o {
		accountID, err := ParseID("accountOverrides."+role, raw)
		if err != nil {
			return nil, err
		}
		out[accounts.Role(role)] = accountID
	}
	return out, nil
}

// ParseID parses a required id field.
func ParseID(field, raw string) (id.ID, error) {
	v, ok := id.ParseNonNil(raw)
	if !ok {
		return id.Nil(), apperror.NewValidation("invalid id").
			WithDetail("field", field).
			WithDetail("value", raw)
	}
	return v, nil
}

// ParseOptionalID parses an id field that may be empty.
func ParseOptionalID(field, raw string) (id.ID, error) {
	if raw == "" {
		return id.Nil(), nil
	}
	return ParseID(field, raw)
}

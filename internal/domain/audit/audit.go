// Package audit records why each posting succeeded or was refused, so an
// operator can explain the outcome without reading logs.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"costledger/internal/core/apperror"
	appctx "costledger/internal/core/context"
	"costledger/internal/core/id"
)

// Outcome of an audited operation.
type Outcome string

const (
	OutcomeSucceeded     Outcome = "succeeded"
	OutcomeAlreadyPosted Outcome = "already_posted"
	OutcomeRefused       Outcome = "refused"
	OutcomeFailed        Outcome = "failed"
)

// Event is one audited posting attempt.
type Event struct {
	ID          id.ID           `db:"id" json:"id"`
	CompanyID   id.ID           `db:"company_id" json:"companyId"`
	Operation   string          `db:"operation" json:"operation"`
	ReferenceID id.ID           `db:"reference_id" json:"referenceId"`
	Outcome     Outcome         `db:"outcome" json:"outcome"`
	ErrorCode   string          `db:"error_code" json:"errorCode,omitempty"`
	Payload     json.RawMessage `db:"payload" json:"payload,omitempty"`
	Actor       string          `db:"actor" json:"actor"`
	RequestID   string          `db:"request_id" json:"requestId,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
}

// Recorder stores audit events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// NewEvent builds an event for an operation result. For refusals the
// AppError code and details become the payload.
func NewEvent(ctx context.Context, companyID id.ID, operation string, referenceID id.ID, result any, err error) Event {
	ev := Event{
		ID:          id.New(),
		CompanyID:   companyID,
		Operation:   operation,
		ReferenceID: referenceID,
		Outcome:     OutcomeSucceeded,
		Actor:       appctx.GetUserID(ctx),
		RequestID:   appctx.GetRequestID(ctx),
		CreatedAt:   time.Now().UTC(),
	}

	var payload any = result
	if err != nil {
		ev.Outcome = OutcomeFailed
		ev.ErrorCode = apperror.CodeOf(err)
		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.HTTPStatus < 500 {
				ev.Outcome = OutcomeRefused
			}
			payload = map[string]any{"message": appErr.Message, "details": appErr.Details}
		} else {
			payload = map[string]any{"message": err.Error()}
		}
	}

	if payload != nil {
		if raw, mErr := json.Marshal(payload); mErr == nil {
			ev.Payload = raw
		}
	}
	return ev
}

package memory

import (
	"context"
	"time"

	"costledger/internal/core/id"
	"costledger/internal/core/numerator"
	"costledger/internal/domain/audit"
)

// Numerator implements numerator.Generator. Numbers taken inside a failed
// unit are handed out again, so sequences stay gapless like the strict
// Postgres strategy.
type Numerator struct{ s *Store }

// Numerator returns the number generator of the store.
func (s *Store) Numerator() *Numerator { return &Numerator{s: s} }

var _ numerator.Generator = (*Numerator)(nil)

func (n *Numerator) GetNextNumber(ctx context.Context, companyID id.ID, cfg numerator.Config, _ *numerator.Options, period time.Time) (string, error) {
	key := cfg.Key(companyID, period)
	var num int64
	err := n.s.do(ctx, "numerator.GetNextNumber", func(u *unit) error {
		prev := n.s.sequences[key]
		num = prev + 1
		n.s.sequences[key] = num
		u.onRollback(func() { n.s.sequences[key] = prev })
		return nil
	})
	if err != nil {
		return "", err
	}
	return cfg.Format(period, num), nil
}

// AuditLog implements audit.Recorder.
type AuditLog struct{ s *Store }

// Audit returns the audit recorder of the store.
func (s *Store) Audit() *AuditLog { return &AuditLog{s: s} }

var _ audit.Recorder = (*AuditLog)(nil)

func (a *AuditLog) Record(ctx context.Context, ev audit.Event) error {
	return a.s.do(ctx, "audit.Record", func(u *unit) error {
		n := len(a.s.events)
		a.s.events = append(a.s.events, ev)
		u.onRollback(func() { a.s.events = a.s.events[:n] })
		return nil
	})
}

// Events returns the recorded events of a company, oldest first.
func (a *AuditLog) Events(companyID id.ID) []audit.Event {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var out []audit.Event
	for _, ev := range a.s.events {
		if ev.CompanyID == companyID {
			out = append(out, ev)
		}
	}
	return out
}

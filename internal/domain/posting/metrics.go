package posting

import "time"

// Metrics receives posting outcomes.
type Metrics interface {
	ObservePosting(operation, outcome string, d time.Duration)
	IncRefusal(operation, code string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) ObservePosting(string, string, time.Duration) {}
func (NopMetrics) IncRefusal(string, string)                    {}

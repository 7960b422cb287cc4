package numerator

import (
	"fmt"
	"time"

	"costledger/internal/core/id"
)

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict uses UPSERT ... RETURNING for every number.
	// Gapless as long as the caller runs inside the posting transaction.
	StrategyStrict Strategy = iota

	// StrategyCached allocates ranges of numbers in memory.
	// Much faster, but may produce gaps if application restarts.
	// Suitable for audit or technical identifiers.
	StrategyCached
)

// Options configuration for number generation.
type Options struct {
	// Strategy to use for number generation
	Strategy Strategy
	// RangeSize is the number of IDs to allocate at once in Cached strategy.
	// Default is 50.
	RangeSize int64
}

// DefaultOptions returns standard options (Strict).
func DefaultOptions() *Options {
	return &Options{
		Strategy: StrategyStrict,
	}
}

// JournalConfig numbers journal entries per company and year.
func JournalConfig() Config {
	return DefaultConfig("JE")
}

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g., "JE")
	Prefix string

	// IncludeYear adds year to the number
	IncludeYear bool

	// PadWidth is the minimum number width (default 5)
	PadWidth int

	// ResetPeriod: "year", "month", "never"
	ResetPeriod string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: "year",
	}
}

// Key names the sequence a number is drawn from: one per company, prefix
// and reset period.
func (c Config) Key(companyID id.ID, period time.Time) string {
	switch c.ResetPeriod {
	case "month":
		return fmt.Sprintf("%s:%s_%s", companyID, c.Prefix, period.Format("2006_01"))
	case "year":
		return fmt.Sprintf("%s:%s_%s", companyID, c.Prefix, period.Format("2006"))
	default:
		return fmt.Sprintf("%s:%s", companyID, c.Prefix)
	}
}

// Format renders a sequence value, e.g. JE-2026-00042.
func (c Config) Format(period time.Time, num int64) string {
	padWidth := c.PadWidth
	if padWidth == 0 {
		padWidth = 5
	}
	if c.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", c.Prefix, period.Format("2006"), padWidth, num)
	}
	return fmt.Sprintf("%s-%0*d", c.Prefix, padWidth, num)
}

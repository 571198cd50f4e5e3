package jobstatus

import (
	"fmt"
	"strings"
	"time"
)

// ExpiryMode selects how a late completion interacts with expiry.
type ExpiryMode string

const (
	// ExpiryAdvisory labels stale active units as expired on read; a late
	// completion replaces the label.
	ExpiryAdvisory ExpiryMode = "advisory"
	// ExpiryVeto makes expiry final: the workflow neither starts nor
	// completes expired units, so they keep reading as expired.
	ExpiryVeto ExpiryMode = "veto"
)

// DefaultThreshold is used when a Policy carries no threshold.
const DefaultThreshold = 2 * time.Hour

// Policy carries the staleness rule applied to active units.
type Policy struct {
	Threshold time.Duration
	Mode      ExpiryMode
}

// DefaultPolicy returns the advisory policy with the default threshold.
func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultThreshold, Mode: ExpiryAdvisory}
}

// ParseExpiryMode converts a configuration value into an ExpiryMode.
func ParseExpiryMode(value string) (ExpiryMode, error) {
	switch ExpiryMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ExpiryAdvisory:
		return ExpiryAdvisory, nil
	case ExpiryVeto:
		return ExpiryVeto, nil
	default:
		return "", fmt.Errorf("unsupported expiry mode %q", value)
	}
}

func (p Policy) threshold() time.Duration {
	if p.Threshold <= 0 {
		return DefaultThreshold
	}
	return p.Threshold
}

// IsStale reports whether a unit created at createdAt is past the threshold.
func (p Policy) IsStale(createdAt, now time.Time) bool {
	if createdAt.IsZero() {
		return false
	}
	return now.Sub(createdAt) > p.threshold()
}

// Effective returns the status a reader should see: active units older than
// the threshold are reported as Expired, everything else is returned as is.
func Effective(status Status, createdAt, now time.Time, policy Policy) Status {
	if status.IsActive() && policy.IsStale(createdAt, now) {
		return Expired
	}
	return status
}

// Clock abstracts the current time so expiry can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reports wall-clock time in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

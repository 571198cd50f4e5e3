package jobstatus

import (
	"errors"
	"fmt"
	"strings"
)

// Status represents the lifecycle of a job.
type Status string

const (
	Pending  Status = "pending"
	Progress Status = "progress"
	Complete Status = "complete"
	Error    Status = "error"
	Aborted  Status = "aborted"
	// Expired is derived at read time and never persisted.
	Expired Status = "expired"
)

var (
	// ErrInvalidTransition reports a transition the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrInvalidBucketPair reports a base bucket equal to the compare bucket.
	ErrInvalidBucketPair = errors.New("the base screenshot bucket should be different to the compare one")
)

var persistedStatuses = []Status{Pending, Progress, Complete, Error, Aborted}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(persistedStatuses)+1)
	for _, status := range persistedStatuses {
		set[status] = struct{}{}
	}
	set[Expired] = struct{}{}
	return set
}()

var allowedTransitions = map[Status][]Status{
	Pending:  {Progress, Error, Aborted},
	Progress: {Complete, Error, Aborted},
}

// AllStatuses returns the persisted statuses in lifecycle order.
func AllStatuses() []Status {
	cp := make([]Status, len(persistedStatuses))
	copy(cp, persistedStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case Complete, Error, Aborted, Expired:
		return true
	default:
		return false
	}
}

// IsActive reports whether the unit is waiting for or undergoing work.
func (s Status) IsActive() bool {
	return s == Pending || s == Progress
}

// CanTransition reports whether from → to is a legal lifecycle move.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from → to and returns the new status.
func Transition(from, to Status) (Status, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}

// ValidateBucketPair rejects a build or diff whose base and compare buckets
// are the same. A zero base id means the base has not been resolved yet.
func ValidateBucketPair(baseBucketID, compareBucketID int64) error {
	if baseBucketID != 0 && baseBucketID == compareBucketID {
		return ErrInvalidBucketPair
	}
	return nil
}

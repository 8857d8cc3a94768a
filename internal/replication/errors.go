package replication

import "errors"

var (
	// ErrFetchBudgetExceeded aborts phase 3 (fetch pack) before any
	// objects are written, leaving local state untouched.
	ErrFetchBudgetExceeded = errors.New("replication: advertised transfer exceeds fetch budget")
	// ErrIdentityVerificationFailed aborts the fetch with no refs
	// updated, per phase 4's rollback requirement.
	ErrIdentityVerificationFailed = errors.New("replication: remote identity chain failed verification")
	// ErrFetcherSlotTimeout is returned when no fetcher slot for a
	// (URN, remote) pair becomes free within the configured wait.
	ErrFetcherSlotTimeout = errors.New("replication: timed out waiting for a free fetcher slot")
)

// Package remote defines the contract the sync engine consumes: a batched
// record store with optimistic per-record concurrency and an opaque
// incremental-change cursor. Any key-value/record service with batched CRUD
// and a change token satisfies it.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/twigapp/twig/internal/core/outline"
)

// MaxBatchSize is the ceiling the remote protocol places on one call.
// Implementations split larger inputs automatically.
const MaxBatchSize = 400

// ChangeToken is an opaque cursor marking how much remote history has been
// consumed. The zero value means "never synced" and forces a full resync.
type ChangeToken string

// AccountStatus describes whether the remote account is usable.
type AccountStatus int

const (
	AccountAvailable AccountStatus = iota
	AccountNotDetermined
	AccountRestricted
	AccountNone
)

// String returns the status wire name.
func (s AccountStatus) String() string {
	switch s {
	case AccountAvailable:
		return "available"
	case AccountRestricted:
		return "restricted"
	case AccountNone:
		return "no-account"
	default:
		return "not-determined"
	}
}

// SaveConflict is the remote's rejection of one record save because the stored
// version changed since the client last fetched it. Conflicts are a normal,
// expected result, distinct from failures.
type SaveConflict struct {
	Client outline.Record
	Server outline.Record
	// Ancestor is the version the client's edit was based on. Nil when the
	// client record was never fetched from the server (created offline).
	Ancestor *outline.Record
}

// SaveFailure is one record that failed to save for a reason other than a
// version conflict.
type SaveFailure struct {
	Record outline.Record
	Err    error
}

// SaveResult partitions a batched save. Saved records carry the server's new
// version metadata.
type SaveResult struct {
	Saved     []outline.Record
	Conflicts []SaveConflict
	Failures  []SaveFailure
}

// DeleteResult partitions a batched delete.
type DeleteResult struct {
	DeletedIDs []string
	FailedIDs  map[string]error
}

// FetchResult is one increment of remote history. With an empty request token
// the server returns its full current record set, a fresh token, and no
// historical deletions.
type FetchResult struct {
	Changed    []outline.Record
	DeletedIDs []string
	Token      ChangeToken
}

// Service is the remote record store. All methods are safe to call with
// arbitrarily large inputs; batching happens inside. Methods return an error
// only for whole-call problems (transport, auth); per-record outcomes live in
// the results.
type Service interface {
	Save(ctx context.Context, records []outline.Record) (SaveResult, error)
	Delete(ctx context.Context, ids []string) (DeleteResult, error)
	FetchChanges(ctx context.Context, token ChangeToken) (FetchResult, error)
	EnsureAccountAccess(ctx context.Context) (AccountStatus, error)
}

// TransportError is a network-level failure (including timeouts). Retryable:
// the engine falls back to the offline change log rather than surfacing it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("remote %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// AccountError reports an unusable remote account. Not retryable: sync is
// disabled and the user is told how to recover.
type AccountError struct {
	Status AccountStatus
}

func (e *AccountError) Error() string {
	return fmt.Sprintf("remote account unavailable: %s", e.Status)
}

// IsAccount reports whether err is (or wraps) an AccountError.
func IsAccount(err error) bool {
	var ae *AccountError
	return errors.As(err, &ae)
}

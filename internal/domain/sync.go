package domain

import (
	"errors"
	"time"
)

// SyncResult is the outcome of one sync attempt as reported to callers.
type SyncResult struct {
	Success   bool
	Count     int
	Error     string
	Code      string
	Timestamp time.Time
}

// NewSyncSuccess builds a successful SyncResult
func NewSyncSuccess(count int, at time.Time) SyncResult {
	return SyncResult{Success: true, Count: count, Timestamp: at}
}

// NewSyncFailure builds a failed SyncResult from err
func NewSyncFailure(err error, at time.Time) SyncResult {
	return SyncResult{
		Success:   false,
		Error:     describe(err),
		Code:      CodeOf(err),
		Timestamp: at,
	}
}

// describe renders err without the bracketed code prefix.
func describe(err error) string {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return err.Error()
	}
	if domainErr.Err != nil {
		return domainErr.Message + ": " + describe(domainErr.Err)
	}
	return domainErr.Message
}

// ConnectionResult reports a vendor connectivity check
type ConnectionResult struct {
	Success bool
	Count   int
	Error   string
	Message string
}

// Status combines index statistics with scheduler and sync state.
type Status struct {
	Statistics
	NextSync time.Time
	Syncing  bool
	LastSync *SyncResult
}

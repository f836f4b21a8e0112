package domain

import (
	"strings"
	"time"
)

// KnowledgeRecord is a single question/answer pair as delivered by the vendor.
// The JSON shape is shared by the vendor payload and the snapshot file.
type KnowledgeRecord struct {
	ID       int64  `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category,omitempty"`
}

// Snapshot is an immutable, timestamped copy of the whole record set.
type Snapshot struct {
	CapturedAt time.Time
	Records    []KnowledgeRecord
}

// NewSnapshot creates a Snapshot owning a private copy of records.
func NewSnapshot(capturedAt time.Time, records []KnowledgeRecord) *Snapshot {
	owned := make([]KnowledgeRecord, len(records))
	copy(owned, records)
	return &Snapshot{
		CapturedAt: capturedAt,
		Records:    owned,
	}
}

// Count returns the number of records in the snapshot
func (s *Snapshot) Count() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Fresh reports whether the snapshot is still usable at now for the given TTL.
func (s *Snapshot) Fresh(now time.Time, ttl time.Duration) bool {
	if s == nil {
		return false
	}
	return now.Sub(s.CapturedAt) < ttl
}

// ValidateRecord checks the fields a record needs to be searchable.
func ValidateRecord(r KnowledgeRecord) error {
	if strings.TrimSpace(r.Question) == "" {
		return NewDomainError(ErrCodeValidation, "knowledge record question is required")
	}
	if r.Answer == "" {
		return NewDomainError(ErrCodeValidation, "knowledge record answer is required")
	}
	return nil
}

package domain

import "time"

// MatchTier names the strategy that qualified a record for a query
type MatchTier string

const (
	MatchTierExact      MatchTier = "exact"
	MatchTierContains   MatchTier = "contains"
	MatchTierWordMatch  MatchTier = "word_match"
	MatchTierSimilarity MatchTier = "similarity"
	MatchTierNone       MatchTier = "none"
)

const (
	DefaultMaxResults        = 10
	DefaultMinSimilarity     = 0.3
	DefaultHotQuestionsLimit = 5
)

// SearchOptions tunes a single search call
type SearchOptions struct {
	MaxResults    int
	MinSimilarity float64
	IncludeAnswer bool
}

// DefaultSearchOptions returns the options used when a caller sets none.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		MaxResults:    DefaultMaxResults,
		MinSimilarity: DefaultMinSimilarity,
		IncludeAnswer: true,
	}
}

// SearchResult is a ranked record
type SearchResult struct {
	ID        int64
	Question  string
	Answer    string // empty unless IncludeAnswer was set
	Category  string
	Score     float64
	Tier      MatchTier
	Highlight string
}

// SearchResponse carries the capped results plus the uncapped total.
type SearchResponse struct {
	Results    []SearchResult
	Total      int
	Query      string
	SearchTime time.Time
}

// HotQuestion is the id/question projection returned by the hot questions list
type HotQuestion struct {
	ID       int64
	Question string
}

// Statistics summarises the active record set
type Statistics struct {
	TotalQuestions int
	LastUpdate     time.Time
	Categories     map[string]int
}

// LastUpdateFormatted renders LastUpdate for display, or "" if the index was never loaded.
func (s Statistics) LastUpdateFormatted() string {
	if s.LastUpdate.IsZero() {
		return ""
	}
	return s.LastUpdate.Local().Format("2006-01-02 15:04:05")
}

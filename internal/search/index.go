package search

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cloo-solutions/kbsearch/internal/domain"
)

const (
	scoreExact    = 1.0
	scoreContains = 0.9
	wordMatchBase = 0.6
	wordMatchSpan = 0.3
)

// view is an immutable record set. It is never mutated after publication.
type view struct {
	records    []domain.KnowledgeRecord
	updatedAt  time.Time
	generation uint64
}

// Index holds the active record set and answers queries against it.
type Index struct {
	current atomic.Pointer[view]
	now     func() time.Time
}

// NewIndex creates an empty Index
func NewIndex() *Index {
	idx := &Index{now: time.Now}
	idx.current.Store(&view{})
	return idx
}

// Update replaces the whole record set and refreshes the update time in one
// atomic step. The slice is copied; later changes by the caller are not seen.
func (i *Index) Update(records []domain.KnowledgeRecord) {
	owned := make([]domain.KnowledgeRecord, len(records))
	copy(owned, records)

	for {
		old := i.current.Load()
		next := &view{
			records:    owned,
			updatedAt:  i.now(),
			generation: old.generation + 1,
		}
		if i.current.CompareAndSwap(old, next) {
			return
		}
	}
}

// Generation increases by one on every Update. Callers use it to key caches
// derived from the record set.
func (i *Index) Generation() uint64 {
	return i.current.Load().generation
}

// Len returns the number of records in the active set
func (i *Index) Len() int {
	return len(i.current.Load().records)
}

// Search ranks the active record set against query. An empty or whitespace
// query yields an empty response, never an error.
func (i *Index) Search(query string, opts domain.SearchOptions) *domain.SearchResponse {
	v := i.current.Load()
	searchTime := i.now()

	normalized := normalize(query)
	if normalized == "" {
		return &domain.SearchResponse{
			Results:    []domain.SearchResult{},
			Total:      0,
			Query:      query,
			SearchTime: searchTime,
		}
	}

	if opts.MaxResults <= 0 {
		opts.MaxResults = domain.DefaultMaxResults
	}
	if opts.MinSimilarity < 0 {
		opts.MinSimilarity = domain.DefaultMinSimilarity
	}

	tokens := tokenize(normalized)
	matched := make([]domain.SearchResult, 0)

	for _, rec := range v.records {
		if domain.ValidateRecord(rec) != nil {
			continue
		}
		question := normalize(rec.Question)

		tier, score := classify(question, normalized, tokens, opts.MinSimilarity)
		if tier == domain.MatchTierNone || score <= 0 {
			continue
		}

		result := domain.SearchResult{
			ID:        rec.ID,
			Question:  rec.Question,
			Category:  rec.Category,
			Score:     score,
			Tier:      tier,
			Highlight: Highlight(rec.Question, tokens),
		}
		if opts.IncludeAnswer {
			result.Answer = rec.Answer
		}
		matched = append(matched, result)
	}

	// Equal scores keep record order.
	sort.SliceStable(matched, func(a, b int) bool {
		return matched[a].Score > matched[b].Score
	})

	total := len(matched)
	if len(matched) > opts.MaxResults {
		matched = matched[:opts.MaxResults]
	}

	return &domain.SearchResponse{
		Results:    matched,
		Total:      total,
		Query:      normalized,
		SearchTime: searchTime,
	}
}

// classify evaluates the tiers in precedence order and returns the first that
// qualifies. question and query must already be normalized.
func classify(question, query string, tokens []string, minSimilarity float64) (domain.MatchTier, float64) {
	if question == query {
		return domain.MatchTierExact, scoreExact
	}

	if strings.Contains(question, query) || strings.Contains(query, question) {
		return domain.MatchTierContains, scoreContains
	}

	if len(tokens) >= 2 {
		hits := 0
		for _, token := range tokens {
			if strings.Contains(question, token) {
				hits++
			}
		}
		if hits > 0 {
			return domain.MatchTierWordMatch, wordMatchBase + float64(hits)/float64(len(tokens))*wordMatchSpan
		}
	}

	similarity := Similarity(query, question)
	if similarity >= minSimilarity {
		return domain.MatchTierSimilarity, similarity
	}

	return domain.MatchTierNone, 0
}

// HotQuestions returns the first limit records in index order. There is no
// popularity signal behind it; it is a placeholder ordering.
func (i *Index) HotQuestions(limit int) []domain.HotQuestion {
	v := i.current.Load()
	if limit <= 0 {
		return []domain.HotQuestion{}
	}
	if limit > len(v.records) {
		limit = len(v.records)
	}

	hot := make([]domain.HotQuestion, 0, limit)
	for _, rec := range v.records[:limit] {
		hot = append(hot, domain.HotQuestion{ID: rec.ID, Question: rec.Question})
	}
	return hot
}

// Statistics reports the record count, last update and per-category counts.
// Records without a category are not counted in Categories.
func (i *Index) Statistics() domain.Statistics {
	v := i.current.Load()

	categories := make(map[string]int)
	for _, rec := range v.records {
		if rec.Category != "" {
			categories[rec.Category]++
		}
	}

	return domain.Statistics{
		TotalQuestions: len(v.records),
		LastUpdate:     v.updatedAt,
		Categories:     categories,
	}
}

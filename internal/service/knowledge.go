package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/kbsearch/internal/domain"
	"github.com/cloo-solutions/kbsearch/internal/telemetry"
	"github.com/patrickmn/go-cache"
)

// DefaultQueryCacheTTL is how long a search response is reused
const DefaultQueryCacheTTL = 5 * time.Minute

// Searcher is the read side of the search index
type Searcher interface {
	Search(query string, opts domain.SearchOptions) *domain.SearchResponse
	HotQuestions(limit int) []domain.HotQuestion
	Statistics() domain.Statistics
	Generation() uint64
}

// KnowledgeService answers read queries against the active record set.
type KnowledgeService struct {
	index   Searcher
	cache   *cache.Cache
	metrics *telemetry.Metrics
}

// NewKnowledgeService creates a new KnowledgeService instance. A cacheTTL of
// zero disables the query result cache.
func NewKnowledgeService(index Searcher, cacheTTL time.Duration, metrics *telemetry.Metrics) *KnowledgeService {
	svc := &KnowledgeService{
		index:   index,
		metrics: metrics,
	}
	if cacheTTL > 0 {
		svc.cache = cache.New(cacheTTL, 2*cacheTTL)
	}
	return svc
}

// Search ranks the active record set against query. Responses are cached per
// index generation, so installing a new record set makes old entries
// unreachable.
func (s *KnowledgeService) Search(ctx context.Context, query string, opts domain.SearchOptions) *domain.SearchResponse {
	_, span := telemetry.StartSpan(ctx, "KnowledgeService.Search", telemetry.SpanAttributes{
		Operation: "search",
	})
	defer span.End()

	started := time.Now()
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" || s.cache == nil {
		resp := s.index.Search(query, opts)
		s.metrics.ObserveSearch(time.Since(started), "")
		span.SetRecords(resp.Total)
		return resp
	}

	key := cacheKey(s.index.Generation(), normalized, opts)
	if cached, ok := s.cache.Get(key); ok {
		resp := cloneResponse(cached.(*domain.SearchResponse))
		resp.SearchTime = started
		s.metrics.ObserveSearch(time.Since(started), "hit")
		span.SetRecords(resp.Total)
		return resp
	}

	resp := s.index.Search(query, opts)
	s.cache.SetDefault(key, cloneResponse(resp))
	s.metrics.ObserveSearch(time.Since(started), "miss")
	span.SetRecords(resp.Total)
	return resp
}

// HotQuestions returns the first limit records
func (s *KnowledgeService) HotQuestions(ctx context.Context, limit int) []domain.HotQuestion {
	return s.index.HotQuestions(limit)
}

// Statistics returns index statistics
func (s *KnowledgeService) Statistics(ctx context.Context) domain.Statistics {
	return s.index.Statistics()
}

func cacheKey(generation uint64, normalizedQuery string, opts domain.SearchOptions) string {
	return fmt.Sprintf("%d|%d|%g|%t|%s", generation, opts.MaxResults, opts.MinSimilarity, opts.IncludeAnswer, normalizedQuery)
}

func cloneResponse(resp *domain.SearchResponse) *domain.SearchResponse {
	out := *resp
	out.Results = append([]domain.SearchResult(nil), resp.Results...)
	if out.Results == nil {
		out.Results = []domain.SearchResult{}
	}
	return &out
}

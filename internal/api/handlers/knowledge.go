package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cloo-solutions/kbsearch/internal/api"
	"github.com/cloo-solutions/kbsearch/internal/api/middleware"
	"github.com/cloo-solutions/kbsearch/internal/domain"
)

type KnowledgeService interface {
	Search(ctx context.Context, query string, opts domain.SearchOptions) *domain.SearchResponse
	HotQuestions(ctx context.Context, limit int) []domain.HotQuestion
}

// SearchDefaults fill in request fields the caller leaves out
type SearchDefaults struct {
	MaxResults        int
	MinSimilarity     float64
	HotQuestionsLimit int
}

type KnowledgeHandler struct {
	svc      KnowledgeService
	defaults SearchDefaults
}

func NewKnowledgeHandler(svc KnowledgeService, defaults SearchDefaults) *KnowledgeHandler {
	if defaults.MaxResults <= 0 {
		defaults.MaxResults = domain.DefaultMaxResults
	}
	if defaults.MinSimilarity <= 0 {
		defaults.MinSimilarity = domain.DefaultMinSimilarity
	}
	if defaults.HotQuestionsLimit <= 0 {
		defaults.HotQuestionsLimit = domain.DefaultHotQuestionsLimit
	}
	return &KnowledgeHandler{svc: svc, defaults: defaults}
}

type SearchRequest struct {
	Query         string   `json:"query"`
	MaxResults    *int     `json:"maxResults,omitempty"`
	MinSimilarity *float64 `json:"minSimilarity,omitempty"`
	IncludeAnswer *bool    `json:"includeAnswer,omitempty"`
}

type SearchResultResponse struct {
	ID        int64   `json:"id"`
	Question  string  `json:"question"`
	Answer    string  `json:"answer,omitempty"`
	Category  string  `json:"category,omitempty"`
	Score     float64 `json:"score"`
	MatchType string  `json:"matchType"`
	Highlight string  `json:"highlight"`
}

type SearchResponse struct {
	Results    []SearchResultResponse `json:"results"`
	Total      int                    `json:"total"`
	Query      string                 `json:"query"`
	SearchTime string                 `json:"searchTime"`
}

type HotQuestionResponse struct {
	ID       int64  `json:"id"`
	Question string `json:"question"`
}

func searchToResponse(resp *domain.SearchResponse) *SearchResponse {
	results := make([]SearchResultResponse, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, SearchResultResponse{
			ID:        r.ID,
			Question:  r.Question,
			Answer:    r.Answer,
			Category:  r.Category,
			Score:     r.Score,
			MatchType: string(r.Tier),
			Highlight: r.Highlight,
		})
	}
	return &SearchResponse{
		Results:    results,
		Total:      resp.Total,
		Query:      resp.Query,
		SearchTime: resp.SearchTime.UTC().Format(time.RFC3339Nano),
	}
}

func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if middleware.IsBodyTooLarge(err) {
			api.HandleError(w, domain.ErrRequestTooLarge)
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		api.HandleError(w, domain.ErrEmptyQuery)
		return
	}

	opts := domain.SearchOptions{
		MaxResults:    h.defaults.MaxResults,
		MinSimilarity: h.defaults.MinSimilarity,
		IncludeAnswer: true,
	}
	if req.MaxResults != nil {
		if *req.MaxResults <= 0 {
			api.Error(w, http.StatusBadRequest, "maxResults must be positive")
			return
		}
		opts.MaxResults = *req.MaxResults
	}
	if req.MinSimilarity != nil {
		if *req.MinSimilarity < 0 || *req.MinSimilarity > 1 {
			api.Error(w, http.StatusBadRequest, "minSimilarity must be between 0 and 1")
			return
		}
		opts.MinSimilarity = *req.MinSimilarity
	}
	if req.IncludeAnswer != nil {
		opts.IncludeAnswer = *req.IncludeAnswer
	}

	resp := h.svc.Search(r.Context(), req.Query, opts)
	api.Success(w, http.StatusOK, searchToResponse(resp))
}

func (h *KnowledgeHandler) HotQuestions(w http.ResponseWriter, r *http.Request) {
	limit := h.defaults.HotQuestionsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	hot := h.svc.HotQuestions(r.Context(), limit)
	resp := make([]HotQuestionResponse, 0, len(hot))
	for _, q := range hot {
		resp = append(resp, HotQuestionResponse{ID: q.ID, Question: q.Question})
	}
	api.Success(w, http.StatusOK, resp)
}

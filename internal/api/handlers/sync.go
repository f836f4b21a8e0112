package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/cloo-solutions/kbsearch/internal/api"
	"github.com/cloo-solutions/kbsearch/internal/domain"
)

type SyncService interface {
	ManualSync(ctx context.Context) domain.SyncResult
	TestConnection(ctx context.Context) domain.ConnectionResult
	Status(ctx context.Context) domain.Status
}

type SyncHandler struct {
	svc     SyncService
	started time.Time
	now     func() time.Time
}

func NewSyncHandler(svc SyncService) *SyncHandler {
	return &SyncHandler{svc: svc, started: time.Now(), now: time.Now}
}

type SyncResponse struct {
	Success   bool   `json:"success"`
	Count     int    `json:"count"`
	Timestamp string `json:"timestamp"`
}

// SyncFailureResponse is the error envelope of a failed manual sync, carrying
// the attempt outcome alongside the error.
type SyncFailureResponse struct {
	api.ErrorResponse
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
}

type ConnectionResponse struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type LastSyncResponse struct {
	Success   bool   `json:"success"`
	Count     int    `json:"count,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

type StatisticsResponse struct {
	TotalQuestions      int               `json:"totalQuestions"`
	LastUpdate          *string           `json:"lastUpdate"`
	LastUpdateFormatted string            `json:"lastUpdateFormatted"`
	Categories          map[string]int    `json:"categories"`
	NextSync            *string           `json:"nextSync"`
	Syncing             bool              `json:"syncing"`
	LastSync            *LastSyncResponse `json:"lastSync,omitempty"`
}

type HealthResponse struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	Uptime    float64 `json:"uptime"`
}

func formatTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func statusToResponse(status domain.Status) *StatisticsResponse {
	categories := status.Categories
	if categories == nil {
		categories = map[string]int{}
	}
	resp := &StatisticsResponse{
		TotalQuestions:      status.TotalQuestions,
		LastUpdate:          formatTime(status.LastUpdate),
		LastUpdateFormatted: status.LastUpdateFormatted(),
		Categories:          categories,
		NextSync:            formatTime(status.NextSync),
		Syncing:             status.Syncing,
	}
	if status.LastSync != nil {
		resp.LastSync = &LastSyncResponse{
			Success:   status.LastSync.Success,
			Count:     status.LastSync.Count,
			Error:     status.LastSync.Error,
			Timestamp: status.LastSync.Timestamp.UTC().Format(time.RFC3339),
		}
	}
	return resp
}

// Sync runs a manual sync. Busy answers 409, vendor failures 502.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	result := h.svc.ManualSync(r.Context())
	if !result.Success {
		status := http.StatusBadGateway
		if result.Code != "" {
			status = api.DomainErrorToHTTP(domain.NewDomainError(result.Code, result.Error))
		}
		api.JSON(w, status, &SyncFailureResponse{
			ErrorResponse: api.ErrorResponse{Error: result.Error, Code: result.Code},
			Success:       false,
			Timestamp:     result.Timestamp.UTC().Format(time.RFC3339),
		})
		return
	}

	api.Success(w, http.StatusOK, &SyncResponse{
		Success:   true,
		Count:     result.Count,
		Timestamp: result.Timestamp.UTC().Format(time.RFC3339),
	})
}

func (h *SyncHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	result := h.svc.TestConnection(r.Context())
	api.Success(w, http.StatusOK, &ConnectionResponse{
		Success: result.Success,
		Count:   result.Count,
		Message: result.Message,
		Error:   result.Error,
	})
}

func (h *SyncHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, statusToResponse(h.svc.Status(r.Context())))
}

func (h *SyncHandler) Health(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	api.Success(w, http.StatusOK, &HealthResponse{
		Status:    "ok",
		Timestamp: now.UTC().Format(time.RFC3339),
		Uptime:    now.Sub(h.started).Seconds(),
	})
}

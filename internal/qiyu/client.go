package qiyu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cloo-solutions/kbsearch/internal/domain"
	"github.com/cloo-solutions/kbsearch/internal/logging"
	"github.com/cloo-solutions/kbsearch/internal/telemetry"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultAPIURL is the robot knowledge export endpoint
	DefaultAPIURL = "https://qiyukf.com/openapi/robot/data/knowledge"
	// DefaultPageSize is the number of records requested per page
	DefaultPageSize = 1000
	// DefaultTimeout bounds a single page request
	DefaultTimeout = 30 * time.Second
	// DefaultMaxPages stops a vendor that never reports the last page
	DefaultMaxPages = 10000

	maxResponseBytes = 64 << 20
)

// Config configures a Client.
type Config struct {
	AppKey            string
	AppSecret         string
	APIURL            string
	PageSize          int
	Timeout           time.Duration
	RequestsPerSecond float64 // <= 0 disables throttling
	MaxPages          int
	HTTPClient        *http.Client
	Metrics           *telemetry.Metrics
}

// Page is one decoded page of records.
type Page struct {
	Records []domain.KnowledgeRecord
	IsEnd   bool
}

// NextCursor returns the cursor for the following request: the id of the
// last record on this page. Ids are assumed ascending within a page; a vendor
// returning them out of order would make pagination skip or repeat records.
func (p *Page) NextCursor() int64 {
	return p.Records[len(p.Records)-1].ID
}

// Client talks to the Qiyu knowledge API.
type Client struct {
	appKey     string
	appSecret  string
	apiURL     string
	pageSize   int
	maxPages   int
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *telemetry.Metrics
	now        func() time.Time
	log        *logrus.Entry
}

// NewClient creates a Client from cfg, applying defaults.
func NewClient(cfg Config) (*Client, error) {
	if cfg.AppKey == "" || cfg.AppSecret == "" {
		return nil, domain.ErrMissingCredential
	}

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid vendor API URL", err)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		appKey:     cfg.AppKey,
		appSecret:  cfg.AppSecret,
		apiURL:     apiURL,
		pageSize:   pageSize,
		maxPages:   maxPages,
		timeout:    timeout,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		metrics:    cfg.Metrics,
		now:        time.Now,
		log:        logging.Component("qiyu"),
	}, nil
}

// FetchPage requests up to pageSize records after cursor.
func (c *Client) FetchPage(ctx context.Context, cursor int64, pageSize int) (*Page, error) {
	ctx, span := telemetry.StartSpan(ctx, "qiyu.fetch_page", telemetry.SpanAttributes{Operation: "fetch_page"})
	defer span.End()
	span.SetCursor(cursor)

	page, err := c.fetchPage(ctx, cursor, pageSize)
	if err != nil {
		// FetchAll captures the failure once for the whole walk
		span.SetFailed()
		return nil, err
	}
	span.SetRecords(len(page.Records))
	return page, nil
}

func (c *Client) fetchPage(ctx context.Context, cursor int64, pageSize int) (*Page, error) {
	if pageSize <= 0 {
		return nil, domain.ErrInvalidPageSize
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, domain.NewNetworkError("request throttle interrupted", err)
	}

	body, err := json.Marshal(pageRequest{Mid: cursor, Size: pageSize})
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to encode page request", err)
	}

	sig := Sign(c.appSecret, body, c.now().Unix())

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.signedURL(sig), bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to build page request", err)
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveVendorRequest("network_error")
		return nil, domain.NewNetworkError("vendor request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.metrics.ObserveVendorRequest("network_error")
		return nil, domain.NewNetworkError("failed to read vendor response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.ObserveVendorRequest("http_error")
		return nil, domain.NewNetworkError(fmt.Sprintf("vendor returned HTTP %d", resp.StatusCode), nil)
	}

	payload, err := decodeMessage(raw)
	if err != nil {
		c.metrics.ObserveVendorRequest("malformed")
		return nil, err
	}

	c.metrics.ObserveVendorRequest("ok")
	return &Page{
		Records: payload.Data,
		IsEnd:   bool(payload.IsEnd),
	}, nil
}

func (c *Client) signedURL(sig Signature) string {
	q := url.Values{}
	q.Set("appKey", c.appKey)
	q.Set("time", strconv.FormatInt(sig.Timestamp, 10))
	q.Set("checksum", sig.Checksum)

	sep := "?"
	if u, err := url.Parse(c.apiURL); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	return c.apiURL + sep + q.Encode()
}

// FetchAll walks every page from cursor 0 and returns all records in fetch
// order. Any page failure aborts the walk and nothing is returned.
func (c *Client) FetchAll(ctx context.Context) ([]domain.KnowledgeRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "qiyu.fetch_all", telemetry.SpanAttributes{Operation: "fetch_all"})
	defer span.End()

	var (
		all    []domain.KnowledgeRecord
		cursor int64
	)

	c.log.Info("fetching knowledge base from vendor")

	for pages := 0; ; pages++ {
		if pages >= c.maxPages {
			err := domain.NewMalformedResponseError(fmt.Sprintf("vendor did not report the last page after %d pages", c.maxPages), nil)
			span.SetError(err)
			return nil, err
		}

		page, err := c.FetchPage(ctx, cursor, c.pageSize)
		if err != nil {
			c.log.WithError(err).WithField("cursor", cursor).Warn("page fetch failed, aborting")
			span.SetError(err)
			return nil, err
		}

		if len(page.Records) == 0 {
			break
		}
		all = append(all, page.Records...)
		cursor = page.NextCursor()

		c.log.WithFields(logrus.Fields{
			"fetched": len(all),
			"cursor":  cursor,
		}).Debug("fetched knowledge page")

		if page.IsEnd {
			break
		}
	}

	if all == nil {
		all = []domain.KnowledgeRecord{}
	}

	span.SetRecords(len(all))
	c.log.WithField("records", len(all)).Info("vendor fetch complete")
	return all, nil
}

// TestConnection performs a full fetch and reports the outcome. It is a
// diagnostic and is not used on the search path.
func (c *Client) TestConnection(ctx context.Context) domain.ConnectionResult {
	records, err := c.FetchAll(ctx)
	if err != nil {
		return domain.ConnectionResult{
			Success: false,
			Error:   err.Error(),
			Message: "connection failed",
		}
	}
	return domain.ConnectionResult{
		Success: true,
		Count:   len(records),
		Message: "connection succeeded",
	}
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/janjanpower/77law-sub002/config"
	"github.com/janjanpower/77law-sub002/model"
	"github.com/janjanpower/77law-sub002/pkg/logger"
	"golang.org/x/time/rate"
)

// maxErrorBodyLen bounds how much of a failed response body ends up in
// error messages and progress callbacks.
const maxErrorBodyLen = 200

// CaseAPIClient talks to the case backend's batch upsert endpoint. The
// bearer token may be replaced between runs via SetToken; everything else
// is fixed at construction.
type CaseAPIClient struct {
	config     *config.APIConfig
	httpClient *http.Client
	limiter    *rate.Limiter

	mu    sync.RWMutex
	token string
}

func NewCaseAPIClient(cfg *config.APIConfig) *CaseAPIClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 10
	}

	return &CaseAPIClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		token:   cfg.Token,
	}
}

// SetToken replaces the bearer credential attached to subsequent requests.
func (c *CaseAPIClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *CaseAPIClient) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// UploadError is a non-2xx answer from the upsert endpoint.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// UploadBatch sends one batch of normalized records to the upsert endpoint.
// Any 2xx status is success; anything else (or a transport fault, or the
// per-call timeout) comes back as an error naming the status and a
// truncated response body.
func (c *CaseAPIClient) UploadBatch(ctx context.Context, batch []model.NormalizedRecord) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	jsonData, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + c.config.UploadPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("X-Request-ID", requestID)
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	logger.Debug(ctx, "sending batch", "records", len(batch), "request_id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UploadError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), maxErrorBodyLen),
		}
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

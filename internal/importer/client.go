package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dentsync/internal"
	"dentsync/internal/config"
	"dentsync/internal/util"
)

// RetryPolicy is the transient-failure contract: at most MaxAttempts tries,
// exponential backoff from BaseDelay with a little jitter.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration
}

func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay << (attempt - 1)
	if p.MaxJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(p.MaxJitter)))
	}
	return delay
}

type Client struct {
	cfg        config.Config
	creds      internal.Credentials
	httpClient *http.Client
	limiter    *RateLimiter
	retry      RetryPolicy

	// sleep is swapped out in tests to keep backoff and inter-batch delays
	// instant.
	sleep func(time.Duration)
}

func NewClient(cfg config.Config, creds internal.Credentials) *Client {
	return &Client{
		cfg:        cfg,
		creds:      creds,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout()},
		limiter:    NewRateLimiter(cfg.RateLimitRPS),
		retry: RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay(),
			MaxJitter:   250 * time.Millisecond,
		},
		sleep: time.Sleep,
	}
}

// ImportRequest carries one tab's records plus the source metadata the
// dashboard stores with them.
type ImportRequest struct {
	ImportPath      string
	Location        string
	DataSourceID    string
	SpreadsheetID   string
	SpreadsheetName string
	SheetName       string
	Records         []internal.Record
	DryRun          bool
}

type importPayload struct {
	ClinicID        string            `json:"clinicId"`
	DataSourceID    string            `json:"dataSourceId"`
	SpreadsheetID   string            `json:"spreadsheetId"`
	SpreadsheetName string            `json:"spreadsheetName"`
	SheetName       string            `json:"sheetName"`
	Records         []internal.Record `json:"records"`
	Upsert          bool              `json:"upsert"`
	DryRun          bool              `json:"dryRun"`
}

type apiResponse struct {
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type BatchFailure struct {
	Batch   int
	Records int
	Err     string
}

type ImportSummary struct {
	Batches  int
	Sent     int
	Created  int
	Updated  int
	Failures []BatchFailure
}

// PushRecords splits records into fixed-size batches and posts each with
// upsert semantics. A failed batch is recorded and the rest continue; only
// missing credentials abort up front.
func (c *Client) PushRecords(ctx context.Context, req ImportRequest) (ImportSummary, error) {
	clinicID, endpoint, err := c.resolveTarget(req)
	if err != nil {
		return ImportSummary{}, err
	}

	summary := ImportSummary{}
	batches := chunkRecords(req.Records, c.cfg.BatchSize)
	for i, batch := range batches {
		if i > 0 {
			// Fixed pause between batches regardless of outcome, to avoid
			// bursting the upstream rate limit.
			c.sleep(c.cfg.BatchDelay())
		}

		payload := importPayload{
			ClinicID:        clinicID,
			DataSourceID:    req.DataSourceID,
			SpreadsheetID:   req.SpreadsheetID,
			SpreadsheetName: req.SpreadsheetName,
			SheetName:       req.SheetName,
			Records:         batch,
			Upsert:          true,
			DryRun:          req.DryRun,
		}

		summary.Batches++
		resp, err := c.postBatch(ctx, endpoint, payload)
		if err != nil {
			summary.Failures = append(summary.Failures, BatchFailure{Batch: i + 1, Records: len(batch), Err: err.Error()})
			continue
		}
		summary.Sent += len(batch)
		summary.Created += resp.Created
		summary.Updated += resp.Updated
	}

	return summary, nil
}

// TestConnection sends one synthetic dry-run record to validate credentials
// without persisting anything.
func (c *Client) TestConnection(ctx context.Context, domain, location string) error {
	today := util.Midnight(time.Now(), c.cfg.Location())
	probe := internal.FinancialRecord{
		Date:       today,
		DateString: today.Format("2006-01-02"),
		UUID:       "connection-test-" + uuid.NewString(),
		Production: internal.NewMoney(decimal.Zero),
	}

	importPath := c.cfg.FinancialImportPath
	if domain == "hygiene" {
		importPath = c.cfg.HygieneImportPath
	}

	_, err := c.PushRecords(ctx, ImportRequest{
		ImportPath:      importPath,
		Location:        location,
		DataSourceID:    c.creds.DefaultDataSourceID,
		SpreadsheetID:   "connection-test",
		SpreadsheetName: "connection-test",
		SheetName:       "connection-test",
		Records:         []internal.Record{probe},
		DryRun:          true,
	})
	return err
}

func (c *Client) resolveTarget(req ImportRequest) (clinicID, endpoint string, err error) {
	if strings.TrimSpace(c.creds.BaseURL) == "" {
		return "", "", errors.New("missing dashboard base URL")
	}
	if strings.TrimSpace(c.creds.APIKey) == "" {
		return "", "", errors.New("missing dashboard API key")
	}
	clinicID = c.creds.ClinicID(req.Location)
	if clinicID == "" {
		return "", "", fmt.Errorf("no clinic id configured for location %q", req.Location)
	}
	endpoint = strings.TrimRight(c.creds.BaseURL, "/") + "/" + strings.TrimLeft(req.ImportPath, "/")
	return clinicID, endpoint, nil
}

func (c *Client) postBatch(ctx context.Context, endpoint string, payload importPayload) (apiResponse, error) {
	blob, err := json.Marshal(payload)
	if err != nil {
		return apiResponse{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		c.limiter.WaitTurn()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(blob))
		if err != nil {
			return apiResponse{}, err
		}
		req.Header.Set("Authorization", "Bearer "+c.creds.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.retry.MaxAttempts {
				c.sleep(c.retry.Backoff(attempt))
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if attempt < c.retry.MaxAttempts {
				c.sleep(c.retry.Backoff(attempt))
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			var parsed apiResponse
			if err := json.Unmarshal(body, &parsed); err != nil {
				return apiResponse{}, fmt.Errorf("decode import response: %w", err)
			}
			return parsed, nil
		}

		if isRetryableStatus(resp.StatusCode) && attempt < c.retry.MaxAttempts {
			lastErr = fmt.Errorf("import status %d", resp.StatusCode)
			c.sleep(c.retry.Backoff(attempt))
			continue
		}
		return apiResponse{}, fmt.Errorf("import failed: status=%d %s", resp.StatusCode, errorExcerpt(body))
	}

	if lastErr == nil {
		lastErr = errors.New("import request failed")
	}
	return apiResponse{}, fmt.Errorf("import failed after %d attempts: %w", c.retry.MaxAttempts, lastErr)
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func errorExcerpt(body []byte) string {
	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	excerpt := string(body)
	if len(excerpt) > 200 {
		excerpt = excerpt[:200]
	}
	return excerpt
}

func chunkRecords(records []internal.Record, size int) [][]internal.Record {
	if size <= 0 {
		size = 1
	}
	var out [][]internal.Record
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}

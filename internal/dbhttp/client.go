// Package dbhttp executes parameterized SQL against the remote query service
// over HTTPS. Transient backend failures are retried with exponential
// backoff; everything else fails on the first attempt.
package dbhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Error strings the query service returns for failures that are worth
// retrying, and for uniqueness violations that callers map to conflicts.
const (
	storageTimeoutCode  = "STORAGE_TIMEOUT"
	timeoutPhrase       = "exceeded timeout"
	uniqueViolationText = "UNIQUE constraint failed"
)

const (
	maxRetries        = 3
	initialBackoff    = 500 * time.Millisecond
	maxErrorBodyBytes = 8 << 10
)

// ErrNotConfigured is returned when the query endpoint or its credentials
// are missing. Never retried.
var ErrNotConfigured = errors.New("dbhttp: query endpoint not configured")

// ErrUniqueViolation marks a uniqueness-constraint failure so callers can
// surface it as a conflict instead of a generic server error.
var ErrUniqueViolation = errors.New("dbhttp: unique constraint violation")

type Client struct {
	endpoint string
	token    string
	httpc    *http.Client
	logger   zerolog.Logger

	// retryInterval is the first backoff delay; tests shrink it.
	retryInterval time.Duration
}

func New(endpoint, token string, logger zerolog.Logger) *Client {
	return &Client{
		endpoint:      endpoint,
		token:         token,
		httpc:         &http.Client{},
		logger:        logger.With().Str("component", "dbhttp").Logger(),
		retryInterval: initialBackoff,
	}
}

type queryRequest struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

type queryResponse struct {
	Results []Row `json:"results"`
}

// transientError wraps failures that should be retried.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Execute runs one SQL statement with positional params and returns the
// result rows. Transient backend failures are retried up to 3 times with
// backoff doubling from 500ms; terminal failures surface immediately.
func (c *Client) Execute(ctx context.Context, sql string, params ...any) ([]Row, error) {
	if c.endpoint == "" || c.token == "" {
		return nil, ErrNotConfigured
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = c.retryInterval * 8

	attempt := 0
	rows, err := backoff.RetryWithData(func() ([]Row, error) {
		attempt++
		rows, err := c.execute(ctx, sql, params)
		if err == nil {
			return rows, nil
		}
		var te *transientError
		if errors.As(err, &te) {
			c.logger.Warn().Err(te.err).Int("attempt", attempt).Msg("transient query failure")
			return nil, te.err
		}
		return nil, backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) execute(ctx context.Context, sql string, params []any) ([]Row, error) {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(queryRequest{SQL: sql, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("query request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var qr queryResponse
		if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
			return nil, fmt.Errorf("decode query response: %w", err)
		}
		// A response with no results field is a statement that returns no
		// rows (DDL, plain DML).
		return qr.Results, nil
	}

	errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	text := string(errBody)

	if strings.Contains(text, uniqueViolationText) {
		return nil, fmt.Errorf("%w: %s", ErrUniqueViolation, text)
	}
	failure := fmt.Errorf("query failed: status %d: %s", resp.StatusCode, text)
	if resp.StatusCode >= 500 || strings.Contains(text, storageTimeoutCode) || strings.Contains(text, timeoutPhrase) {
		return nil, &transientError{err: failure}
	}
	return nil, failure
}

// Ping verifies the query service is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Execute(ctx, "SELECT 1")
	return err
}

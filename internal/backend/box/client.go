package box

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Retry and backoff constants.
const (
	maxRetries     = 3
	baseBackoff    = 1 * time.Second
	maxBackoff     = 30 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
)

// Sentinel errors for status classification. Use errors.Is to check.
var (
	ErrBadRequest   = errors.New("box: bad request")
	ErrUnauthorized = errors.New("box: unauthorized")
	ErrForbidden    = errors.New("box: forbidden")
	ErrNotFound     = errors.New("box: not found")
	ErrConflict     = errors.New("box: conflict")
	ErrThrottled    = errors.New("box: throttled")
	ErrServerError  = errors.New("box: server error")
)

// APIError is a Box error body. Box reports the status inside the body as
// well as on the response; the body's status wins when present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
	Err        error
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("box: HTTP %d %s (request-id: %s): %s", e.StatusCode, e.Code, e.RequestID, e.Message)
	}

	return fmt.Sprintf("box: HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

type errorBody struct {
	Type      string `json:"type"`
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// newAPIError reads and closes resp.Body.
func newAPIError(resp *http.Response) *APIError {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()

	if err != nil {
		body = []byte("(failed to read response body)")
	}

	ae := &APIError{StatusCode: resp.StatusCode, Message: string(body)}

	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.Type == "error" {
		if eb.Status != 0 {
			ae.StatusCode = eb.Status
		}

		ae.Code = eb.Code
		ae.Message = eb.Message
		ae.RequestID = eb.RequestID
	}

	ae.Err = classifyStatus(ae.StatusCode)

	return ae
}

func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

func isRetryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// client is a minimal Box REST client. Authentication is carried by
// httpClient's transport.
type client struct {
	baseURL    string
	uploadURL  string
	httpClient *http.Client
	logger     *slog.Logger
	sleepFunc  func(ctx context.Context, d time.Duration) error
}

// do executes a request with retry on 429 and 5xx. body is resent from
// the start on each attempt.
func (c *client) do(ctx context.Context, method, rawURL, contentType string, body []byte) (*http.Response, error) {
	var attempt int
	for {
		var rdr io.Reader = http.NoBody
		if body != nil {
			rdr = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, rawURL, rdr)
		if err != nil {
			return nil, fmt.Errorf("box: creating request: %w", err)
		}

		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("box: request canceled: %w", ctx.Err())
			}

			if attempt < maxRetries {
				if err := c.wait(ctx, c.calcBackoff(attempt), method, rawURL, 0, attempt); err != nil {
					return nil, err
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("box: %s %s failed after %d attempts: %w", method, redact(rawURL), attempt+1, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp, nil
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.calcBackoff(attempt)
			if ra, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && ra > 0 {
				backoff = time.Duration(ra) * time.Second
			}

			_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain
			resp.Body.Close()

			if err := c.wait(ctx, backoff, method, rawURL, resp.StatusCode, attempt); err != nil {
				return nil, err
			}

			attempt++

			continue
		}

		return nil, newAPIError(resp)
	}
}

func (c *client) wait(ctx context.Context, d time.Duration, method, rawURL string, status, attempt int) error {
	c.logger.Warn("retrying box request",
		slog.String("method", method),
		slog.String("url", redact(rawURL)),
		slog.Int("status", status),
		slog.Int("attempt", attempt+1),
		slog.Duration("backoff", d),
	)

	if err := c.sleepFunc(ctx, d); err != nil {
		return fmt.Errorf("box: request canceled: %w", err)
	}

	return nil
}

// redact drops the query string, which may carry search terms.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "(unparseable url)"
	}

	u.RawQuery = ""

	return u.String()
}

func (c *client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand

	return time.Duration(backoff + jitter)
}

func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// apiURL joins path and query onto the API base URL.
func (c *client) apiURL(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	return u
}

// getJSON GETs path and decodes the body into out.
func (c *client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.do(ctx, http.MethodGet, c.apiURL(path, query), "", nil)
	if err != nil {
		return err
	}

	return decodeBody(resp, out)
}

// sendJSON marshals in, sends it, and decodes the reply into out when out
// is non-nil.
func (c *client) sendJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body []byte

	if in != nil {
		var err error

		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("box: marshaling %s %s: %w", method, path, err)
		}
	}

	resp, err := c.do(ctx, method, c.apiURL(path, query), "application/json", body)
	if err != nil {
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain
		resp.Body.Close()

		return nil
	}

	return decodeBody(resp, out)
}

func decodeBody(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("box: decoding response: %w", err)
	}

	return nil
}

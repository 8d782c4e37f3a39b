// Package gateway is the HTTP client for the merchant backend's payment
// endpoints.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yourorg/checkout-session/internal/gateway/breaker"
	"github.com/yourorg/checkout-session/internal/wire"
)

const (
	paymentsPath = "payments"
	detailsPath  = "payments/details"

	defaultTimeout = 10 * time.Second
)

// TransportError reports a network or HTTP-layer failure. A non-200 status is
// a transport failure regardless of the response body.
type TransportError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("backend %s: HTTP %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("backend %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client posts submission and details requests to the merchant backend. The
// base URL is concatenated with the endpoint path as configured, without
// separator normalization.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *breaker.Breaker
}

// New creates a Client for the given base URL. A nil http.Client gets a
// default with a request timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		breaker:    breaker.New(),
	}
}

// SubmitPayment posts the initial submission and returns the raw response
// body for interpretation.
func (c *Client) SubmitPayment(ctx context.Context, req wire.PaymentRequest) ([]byte, error) {
	return c.post(ctx, paymentsPath, req)
}

// SubmitDetails posts a follow-up details submission.
func (c *Client) SubmitDetails(ctx context.Context, req wire.DetailsSubmission) ([]byte, error) {
	return c.post(ctx, detailsPath, req)
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	if !c.breaker.Allow(path) {
		return nil, &TransportError{Endpoint: path, Err: fmt.Errorf("circuit open")}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &wire.EncodingError{Reason: "marshal " + path + " request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Endpoint: path, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.breaker.RecordFailure(path)
		return nil, &TransportError{Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.breaker.RecordFailure(path)
		io.Copy(io.Discard, resp.Body)
		return nil, &TransportError{Endpoint: path, Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.RecordFailure(path)
		return nil, &TransportError{Endpoint: path, Err: err}
	}

	c.breaker.RecordSuccess(path)
	return raw, nil
}

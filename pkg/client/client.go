// Package client provides a Go client for the consignd API.
//
// The client abstracts HTTP communication with the consignment service and
// provides methods that correspond to the service endpoints: principal
// registration and authentication, contract configuration, and the consignment
// lifecycle. Write operations require a session token, set with WithToken or
// SetToken, or captured automatically by Register and Authenticate.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ShravaniMogali/4GB-sub001/internal/models"
)

// Client represents a consignd API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithUserAgent sets a custom user agent.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// New creates a new consignd API client.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	// Validate and normalize base URL
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	if u.Scheme == "" {
		u.Scheme = "http"
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: 3 * time.Minute,
		},
		baseURL:   strings.TrimSuffix(u.String(), "/"),
		userAgent: "consignd-client/1.0",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// SetToken replaces the bearer token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// HealthCheck reports the latest ledger block seen by the service. A service
// that cannot reach its ledger node answers with an APIError.
func (c *Client) HealthCheck(ctx context.Context) (*models.HealthResponse, error) {
	var resp models.HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return &resp, nil
}

// Register creates a principal and keeps the returned session token.
func (c *Client) Register(ctx context.Context, id, credential, role string) (*models.RegisterResponse, error) {
	if id == "" || credential == "" || role == "" {
		return nil, fmt.Errorf("id, credential and role cannot be empty")
	}

	req := models.RegisterRequest{ID: id, Credential: credential, Role: role}
	var resp models.RegisterResponse
	if err := c.doRequest(ctx, http.MethodPost, "/principals", req, &resp); err != nil {
		return nil, fmt.Errorf("registering principal: %w", err)
	}

	c.SetToken(resp.Token)
	return &resp, nil
}

// Authenticate exchanges a credential for a session token and keeps it.
func (c *Client) Authenticate(ctx context.Context, id, credential string) (*models.AuthResponse, error) {
	req := models.AuthRequest{ID: id, Credential: credential}
	var resp models.AuthResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth", req, &resp); err != nil {
		return nil, fmt.Errorf("authenticating: %w", err)
	}

	c.SetToken(resp.Token)
	return &resp, nil
}

// Me returns the principal the current token belongs to.
func (c *Client) Me(ctx context.Context) (*models.PrincipalResponse, error) {
	var resp models.PrincipalResponse
	if err := c.doRequest(ctx, http.MethodGet, "/principals/me", nil, &resp); err != nil {
		return nil, fmt.Errorf("getting principal: %w", err)
	}
	return &resp, nil
}

// RotateCredential replaces the credential of the current principal.
// Existing tokens stay valid until they expire.
func (c *Client) RotateCredential(ctx context.Context, current, next string) error {
	if next == "" {
		return fmt.Errorf("new credential cannot be empty")
	}
	req := models.RotateCredentialRequest{CurrentCredential: current, NewCredential: next}
	if err := c.doRequest(ctx, http.MethodPut, "/principals/me/credential", req, nil); err != nil {
		return fmt.Errorf("rotating credential: %w", err)
	}
	return nil
}

// GetContract returns the contract address the service is bound to.
func (c *Client) GetContract(ctx context.Context) (*models.ContractResponse, error) {
	var resp models.ContractResponse
	if err := c.doRequest(ctx, http.MethodGet, "/contract", nil, &resp); err != nil {
		return nil, fmt.Errorf("getting contract: %w", err)
	}
	return &resp, nil
}

// SetContract binds the service to a deployed contract. Requires an admin token.
func (c *Client) SetContract(ctx context.Context, address string) (*models.ContractResponse, error) {
	var resp models.ContractResponse
	if err := c.doRequest(ctx, http.MethodPost, "/contract", models.SetContractRequest{Address: address}, &resp); err != nil {
		return nil, fmt.Errorf("setting contract: %w", err)
	}
	return &resp, nil
}

// CreateConsignment records a new consignment and waits for it to be mined.
func (c *Client) CreateConsignment(ctx context.Context, req models.CreateConsignmentRequest) (*models.TransactionResponse, error) {
	var resp models.TransactionResponse
	if err := c.doRequest(ctx, http.MethodPost, "/consignments", req, &resp); err != nil {
		return nil, fmt.Errorf("creating consignment: %w", err)
	}
	return &resp, nil
}

// UpdateStatus appends a status update to an existing consignment.
func (c *Client) UpdateStatus(ctx context.Context, id, status, location string) (*models.TransactionResponse, error) {
	if id == "" {
		return nil, fmt.Errorf("consignment id cannot be empty")
	}
	req := models.UpdateStatusRequest{Status: status, Location: location}
	var resp models.TransactionResponse
	if err := c.doRequest(ctx, http.MethodPut, consignmentPath(id, "status"), req, &resp); err != nil {
		return nil, fmt.Errorf("updating status: %w", err)
	}
	return &resp, nil
}

// GetConsignment returns the current ledger view of a consignment.
func (c *Client) GetConsignment(ctx context.Context, id string) (*models.Consignment, error) {
	if id == "" {
		return nil, fmt.Errorf("consignment id cannot be empty")
	}
	var resp models.Consignment
	if err := c.doRequest(ctx, http.MethodGet, consignmentPath(id, ""), nil, &resp); err != nil {
		return nil, fmt.Errorf("getting consignment: %w", err)
	}
	return &resp, nil
}

// GetHistory returns the status updates of a consignment in ledger order.
func (c *Client) GetHistory(ctx context.Context, id string) ([]models.StatusUpdate, error) {
	if id == "" {
		return nil, fmt.Errorf("consignment id cannot be empty")
	}
	var resp []models.StatusUpdate
	if err := c.doRequest(ctx, http.MethodGet, consignmentPath(id, "history"), nil, &resp); err != nil {
		return nil, fmt.Errorf("getting history: %w", err)
	}
	return resp, nil
}

// GetTrail returns the creation event followed by every status update.
func (c *Client) GetTrail(ctx context.Context, id string) ([]models.TrailEntry, error) {
	if id == "" {
		return nil, fmt.Errorf("consignment id cannot be empty")
	}
	var resp []models.TrailEntry
	if err := c.doRequest(ctx, http.MethodGet, consignmentPath(id, "trail"), nil, &resp); err != nil {
		return nil, fmt.Errorf("getting trail: %w", err)
	}
	return resp, nil
}

func consignmentPath(id, suffix string) string {
	p := "/consignments/" + url.PathEscape(id)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

// doRequest performs an HTTP request with JSON serialization/deserialization.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.handleErrorResponse(resp)
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// newRequest creates a new HTTP request with common headers.
func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}

// handleErrorResponse processes error responses from the API.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp models.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errResp.Message,
			ErrorCode:  errResp.Error,
		}
	}

	// Fallback to raw response
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    string(body),
		ErrorCode:  fmt.Sprintf("HTTP_%d", resp.StatusCode),
	}
}

// APIError represents an error response from the consignd API.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	// ErrorCode is the error classification, e.g. NotFoundError or
	// LedgerUnreachable.
	ErrorCode string `json:"error_code"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("consignd API error (%d %s): %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("consignd API error (%d): %s", e.StatusCode, e.ErrorCode)
}

// IsNotFound returns true if the error is a 404 Not Found.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsBadRequest returns true if the error is a 400 Bad Request.
func (e *APIError) IsBadRequest() bool {
	return e.StatusCode == http.StatusBadRequest
}

// IsUnauthorized returns true if the error is a 401 Unauthorized.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsForbidden returns true if the error is a 403 Forbidden.
func (e *APIError) IsForbidden() bool {
	return e.StatusCode == http.StatusForbidden
}

// IsConflict returns true if the error is a 409 Conflict.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

// AsAPIError unwraps err to an *APIError when it carries one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

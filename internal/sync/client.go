package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	gosync "sync"
	"time"

	"github.com/strideworks/stridesync/internal/activity"
	"github.com/strideworks/stridesync/internal/loggy"
)

// API endpoint paths
const (
	uploadWorkoutsPath = "/api/sync/workouts"
	verifyTokenPath    = "/api/auth/verify"
	refreshTokenPath   = "/api/auth/refresh"
)

// WorkoutUpload is the wire representation of one activity. The server
// schema requires both "date" and "localDate" with identical values.
type WorkoutUpload struct {
	WorkoutID      string    `json:"workoutId"`
	Distance       float64   `json:"distance"` // miles
	LocalDate      string    `json:"localDate"`
	Date           string    `json:"date"`
	TimezoneOffset int       `json:"timezoneOffset"` // minutes from UTC
	WorkoutType    string    `json:"workoutType"`
	DeviceEndDate  time.Time `json:"deviceEndDate"`
	Calories       float64   `json:"calories"`
	TotalDuration  float64   `json:"totalDuration"` // seconds
	SplitTimes     []float64 `json:"splitTimes"`
}

// NewWorkoutUpload converts an activity into its wire representation
func NewWorkoutUpload(a *activity.Activity) WorkoutUpload {
	localDate := a.LocalDate()
	splitTimes := a.SplitTimes()
	if splitTimes == nil {
		splitTimes = []float64{}
	}

	return WorkoutUpload{
		WorkoutID:      a.ID,
		Distance:       a.DistanceMiles,
		LocalDate:      localDate,
		Date:           localDate,
		TimezoneOffset: a.TimezoneOffset,
		WorkoutType:    string(a.Type),
		DeviceEndDate:  a.EndedAt,
		Calories:       a.Calories,
		TotalDuration:  a.TotalDuration(),
		SplitTimes:     splitTimes,
	}
}

// APIError represents an error response from the server
type APIError struct {
	StatusCode int
	Message    string
	ErrorCode  string
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("API error (%d %s): %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// IsAuthError reports whether the error is an authentication failure
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsServerError reports whether the error is a server-side failure
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500
}

// IsClientError reports whether the error is a client-side failure
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && !e.IsAuthError()
}

// errorResponse is the body the server sends on non-2xx responses
type errorResponse struct {
	Message   string `json:"message"`
	Error     string `json:"error"`
	ErrorCode string `json:"code"`
}

// messageResponse is the body the server sends on 2xx responses
type messageResponse struct {
	Message string `json:"message"`
}

// refreshResponse is the body of a successful token refresh
type refreshResponse struct {
	Token string `json:"token"`
}

// Client talks to the remote sync server with bearer authentication.
// An expired credential is refreshed once and the request retried; a
// credential the server reports as revoked surfaces ErrCredentialRevoked.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *loggy.Logger

	mu    gosync.Mutex
	token string

	// onTokenRefresh persists a newly issued token; may be nil
	onTokenRefresh func(ctx context.Context, token string) error
}

// NewClient creates a new sync server client
func NewClient(baseURL, token string, timeout time.Duration, logger *loggy.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// SetTokenRefreshHandler registers a callback invoked with each newly
// issued token so it can be persisted
func (c *Client) SetTokenRefreshHandler(fn func(ctx context.Context, token string) error) {
	c.onTokenRefresh = fn
}

// Token returns the current bearer token
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetToken replaces the current bearer token
func (c *Client) SetToken(token string) {
	c.setToken(token)
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// UploadWorkouts sends one batch of activities to the server
func (c *Client) UploadWorkouts(ctx context.Context, batch []WorkoutUpload) error {
	if c.Token() == "" {
		return ErrNotAuthenticated
	}

	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to encode upload batch: %w", err)
	}

	err = c.doAuthenticated(ctx, http.MethodPost, uploadWorkoutsPath, body)
	if err != nil {
		return err
	}

	c.logger.Debug("uploaded workout batch", "count", len(batch))
	return nil
}

// VerifyToken checks that the current credential is accepted by the server
func (c *Client) VerifyToken(ctx context.Context) error {
	if c.Token() == "" {
		return ErrNotAuthenticated
	}
	return c.doAuthenticated(ctx, http.MethodGet, verifyTokenPath, nil)
}

// doAuthenticated performs a bearer-authenticated request. On a 401 it
// refreshes the token once and retries the request with the new token.
func (c *Client) doAuthenticated(ctx context.Context, method, path string, body []byte) error {
	err := c.do(ctx, method, path, body, c.Token())
	if err == nil {
		return nil
	}

	apiErr, ok := err.(*APIError)
	if !ok || apiErr.StatusCode != http.StatusUnauthorized {
		return err
	}

	c.logger.Info("credential rejected, attempting refresh")

	newToken, refreshErr := c.refreshToken(ctx)
	if refreshErr != nil {
		return refreshErr
	}

	c.setToken(newToken)
	if c.onTokenRefresh != nil {
		if persistErr := c.onTokenRefresh(ctx, newToken); persistErr != nil {
			c.logger.Warn("failed to persist refreshed token", "error", persistErr)
		}
	}

	return c.do(ctx, method, path, body, newToken)
}

// refreshToken exchanges the current credential for a fresh one. A 401
// or 403 from the refresh endpoint means the credential is permanently
// invalid.
func (c *Client) refreshToken(ctx context.Context) (string, error) {
	url := c.baseURL + refreshTokenPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("failed to close response body", "error", cerr)
		}
	}()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrCredentialRevoked
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", readAPIError(resp)
	}

	var parsed refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("refresh response contained no token")
	}

	return parsed.Token, nil
}

// do performs one HTTP request and maps non-2xx responses to APIError
func (c *Client) do(ctx context.Context, method, path string, body []byte, token string) error {
	url := c.baseURL + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("failed to close response body", "error", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}

	// Drain the confirmation body; its message is informational only
	var parsed messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil && err != io.EOF {
		c.logger.Debug("unparsable success response body", "error", err)
	}

	return nil
}

// readAPIError builds an APIError from a non-2xx response
func readAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    resp.Status,
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return apiErr
	}

	var parsed errorResponse
	if err := json.Unmarshal(raw, &parsed); err == nil {
		if parsed.Message != "" {
			apiErr.Message = parsed.Message
		} else if parsed.Error != "" {
			apiErr.Message = parsed.Error
		}
		apiErr.ErrorCode = parsed.ErrorCode
	}

	return apiErr
}

// Package authapi is the typed REST client for the Chalk account service.
// It performs the four account operations (login, register, refresh, logout)
// and the two authenticated reads (current user, current capabilities),
// returning session types or categorized errors.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/chalkfit/chalk-client-go/internal/errors"
	"github.com/chalkfit/chalk-client-go/session"
)

// Client calls the account service over the shared transport. Bearer
// attachment and 401 refresh-and-retry live in the transport, not here.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ session.AuthAPI = (*Client)(nil)

// New creates a Client for the service at baseURL. httpClient should wrap
// the shared transport; a nil client falls back to http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Login exchanges credentials for tokens. Rejected credentials surface as
// ErrAuthentication.
func (c *Client) Login(ctx context.Context, email, password string) (*session.AuthResult, error) {
	var payload authResultPayload
	if err := c.do(ctx, http.MethodPost, LoginPath, loginRequest{Email: email, Password: password}, &payload); err != nil {
		return nil, err
	}
	return payload.toAuthResult()
}

// Register creates an account and returns its first token set.
func (c *Client) Register(ctx context.Context, input session.RegisterInput) (*session.AuthResult, error) {
	body := registerRequest{
		Email:     input.Email,
		Password:  input.Password,
		FirstName: input.FirstName,
		LastName:  input.LastName,
	}
	var payload authResultPayload
	if err := c.do(ctx, http.MethodPost, RegisterPath, body, &payload); err != nil {
		return nil, err
	}
	return payload.toAuthResult()
}

// Refresh exchanges the refresh token for a new token set. An invalid or
// expired refresh token surfaces as ErrAuthentication.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*session.AuthResult, error) {
	var payload authResultPayload
	if err := c.do(ctx, http.MethodPost, RefreshPath, refreshRequest{RefreshToken: refreshToken}, &payload); err != nil {
		return nil, err
	}
	return payload.toAuthResult()
}

// Logout invalidates the refresh token server-side.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	var payload messageResponse
	return c.do(ctx, http.MethodPost, LogoutPath, logoutRequest{RefreshToken: refreshToken}, &payload)
}

// CurrentUser fetches the authenticated user's summary.
func (c *Client) CurrentUser(ctx context.Context) (*session.UserSummary, error) {
	var payload userPayload
	if err := c.do(ctx, http.MethodGet, MePath, nil, &payload); err != nil {
		return nil, err
	}
	summary := payload.toSummary()
	return &summary, nil
}

// CurrentCapabilities fetches the server's view of the account's mode
// eligibility.
func (c *Client) CurrentCapabilities(ctx context.Context) (*session.AccountCapabilities, error) {
	var payload capabilitiesPayload
	if err := c.do(ctx, http.MethodGet, CapabilitiesPath, nil, &payload); err != nil {
		return nil, err
	}
	capabilities := payload.toCapabilities()
	return &capabilities, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrapf(apperrors.ErrTransport, "encode %s request", path)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrTransport, "build %s request", path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrTransport, "%s %s", method, path)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return categorize(resp, method, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrapf(apperrors.ErrTransport, "decode %s response", path)
	}
	return nil
}

// categorize maps a failed response onto the error taxonomy, carrying the
// server's message text when one is present.
func categorize(resp *http.Response, method, path string) error {
	message := errorMessage(resp)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return apperrors.Wrapf(apperrors.ErrAuthentication, "%s %s: %s", method, path, message)
	case http.StatusNotFound:
		return apperrors.Wrapf(apperrors.ErrNotFound, "%s %s: %s", method, path, message)
	default:
		return apperrors.Wrapf(apperrors.ErrTransport, "%s %s: status %d: %s", method, path, resp.StatusCode, message)
	}
}

// errorMessage extracts the server's {"error": "..."} body, falling back to
// the status text.
func errorMessage(resp *http.Response) string {
	var payload errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return http.StatusText(resp.StatusCode)
}

// Package idp talks to the external identity provider: OAuth2 token grants
// against the realm token endpoint and role management against the admin
// REST API. It returns identity facts only; session and user decisions
// belong to the callers.
package idp

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
	"time"
)

var (
	// ErrUpstream is returned when the provider answers with a non-2xx
	// status or an unusable body.
	ErrUpstream = errors.New("identity provider error")

	// ErrNoRole is returned when a user has no realm role mapped.
	ErrNoRole = errors.New("no role mapped")

	// ErrPartialReplace is returned when a role replacement removed the
	// old role but failed to assign the new one, leaving the user with
	// no role at the provider.
	ErrPartialReplace = errors.New("role replace incomplete")
)

// TokenPair is the provider's token endpoint response. RefreshToken is
// empty for the client_credentials grant.
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	TokenType        string `json:"token_type"`
}

// Role is a realm role as the admin API represents it.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Config struct {
	TokenURL     string
	UsersURL     string
	LogoutURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type Client struct {
	cfg        Config
	rolesURL   string
	httpClient *http.Client
}

// NewClient builds a provider client. The roles endpoint is derived from
// UsersURL, which must end in /users (the admin API keeps them siblings).
func NewClient(cfg Config) (*Client, error) {
	if cfg.TokenURL == "" || cfg.UsersURL == "" || cfg.ClientID == "" {
		return nil, errors.New("idp config missing required fields")
	}
	base := strings.TrimSuffix(strings.TrimSuffix(cfg.UsersURL, "/"), "/users")
	cfg.UsersURL = base + "/users"
	return &Client{
		cfg:        cfg,
		rolesURL:   base + "/roles",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// ExchangeAuthorizationCode redeems a login code for a token pair.
func (c *Client) ExchangeAuthorizationCode(ctx context.Context, code string) (*TokenPair, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURL)
	return c.tokenGrant(ctx, form)
}

// ExchangeRefreshToken trades a refresh token for a fresh token pair.
// The provider rotates the refresh token, so the caller must persist the
// returned one.
func (c *Client) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.tokenGrant(ctx, form)
}

// ExchangeClientCredentials obtains a machine token for this service's
// own admin API calls.
func (c *Client) ExchangeClientCredentials(ctx context.Context) (*TokenPair, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	return c.tokenGrant(ctx, form)
}

func (c *Client) tokenGrant(ctx context.Context, form url.Values) (*TokenPair, error) {
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusErr(resp.StatusCode, body)
	}

	var pair TokenPair
	if err := json.Unmarshal(body, &pair); err != nil {
		return nil, fmt.Errorf("%w: decode token response: %v", ErrUpstream, err)
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response missing access_token", ErrUpstream)
	}
	return &pair, nil
}

// GetUserRole returns the first realm role mapped to the user, or
// ErrNoRole when none is.
func (c *Client) GetUserRole(ctx context.Context, adminToken, userID string) (*Role, error) {
	roles, err := c.listUserRoles(ctx, adminToken, userID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, ErrNoRole
	}
	return &roles[0], nil
}

// GetRoleByName resolves a realm role representation by its name.
func (c *Client) GetRoleByName(ctx context.Context, adminToken, name string) (*Role, error) {
	var role Role
	if err := c.doJSON(ctx, http.MethodGet, c.rolesURL+"/"+url.PathEscape(name), adminToken, nil, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

// ReplaceUserRole removes every realm role currently mapped to the user
// and assigns role instead. If removal succeeds but assignment fails the
// returned error wraps ErrPartialReplace; the user is left without a
// role and the caller should retry.
func (c *Client) ReplaceUserRole(ctx context.Context, adminToken, userID string, role Role) error {
	mappingURL := c.cfg.UsersURL + "/" + url.PathEscape(userID) + "/role-mappings/realm"

	current, err := c.listUserRoles(ctx, adminToken, userID)
	if err != nil {
		return err
	}
	if len(current) > 0 {
		if err := c.doJSON(ctx, http.MethodDelete, mappingURL, adminToken, current, nil); err != nil {
			return err
		}
	}
	if err := c.doJSON(ctx, http.MethodPost, mappingURL, adminToken, []Role{role}, nil); err != nil {
		if len(current) > 0 {
			return fmt.Errorf("%w: %v", ErrPartialReplace, err)
		}
		return err
	}
	return nil
}

// Logout invalidates the refresh token at the provider. A non-2xx answer
// wraps ErrUpstream; callers treat this as best-effort.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LogoutURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return statusErr(resp.StatusCode, body)
	}
	return nil
}

func (c *Client) listUserRoles(ctx context.Context, adminToken, userID string) ([]Role, error) {
	var roles []Role
	u := c.cfg.UsersURL + "/" + url.PathEscape(userID) + "/role-mappings/realm"
	if err := c.doJSON(ctx, http.MethodGet, u, adminToken, nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func (c *Client) doJSON(ctx context.Context, method, u, adminToken string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+adminToken)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusErr(resp.StatusCode, raw)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
		}
	}
	return nil
}

func statusErr(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return fmt.Errorf("%w: status %d: %s", ErrUpstream, status, msg)
}

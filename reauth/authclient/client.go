// Package authclient calls the authentication endpoint that exchanges a
// password or MFA code for an app-scoped token. Requests carry the parent
// workspace session as a bearer token.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-app-lock/reauth"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const maxResponseBytes = 1 << 20

var _ reauth.Authenticator = (*Client)(nil)

// ExchangeRequest is the endpoint's request body. Exactly one field is set.
type ExchangeRequest struct {
	Password string `json:"password,omitempty"`
	MFACode  string `json:"mfa_code,omitempty"`
}

// ExchangeResponse is the endpoint's response body.
type ExchangeResponse struct {
	AppSessionToken string `json:"app_session_token,omitempty"`
	Message         string `json:"message,omitempty"`
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
}

type Option func(*options)

type options struct {
	timeout    time.Duration
	httpClient *http.Client
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithHTTPClient sets the transport the bearer-token client wraps.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// New builds a client for baseURL. parent supplies the parent session token.
func New(baseURL string, parent oauth2.TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("[authclient.New] invalid base url %q", baseURL)
	}
	if parent == nil {
		return nil, errors.New("[authclient.New] parent token source is required")
	}

	o := options{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	ctx := context.Background()
	if o.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
	}
	httpClient := oauth2.NewClient(ctx, parent)
	httpClient.Timeout = o.timeout

	return &Client{baseURL: u, http: httpClient}, nil
}

// NewWithParentToken is New with a fixed parent bearer token.
func NewWithParentToken(baseURL, parentToken string, opts ...Option) (*Client, error) {
	return New(baseURL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: parentToken, TokenType: "Bearer"}), opts...)
}

// Exchange posts creds for appID. A rejection carrying a message is returned
// as *reauth.Error; transport and protocol failures are plain errors.
func (c *Client) Exchange(ctx context.Context, appID int, creds reauth.Credentials) (string, error) {
	body, err := json.Marshal(ExchangeRequest{Password: creds.Password, MFACode: creds.MFACode})
	if err != nil {
		return "", errors.Wrap(err, "[Exchange] marshal request")
	}

	endpoint := c.baseURL.JoinPath("apps", strconv.Itoa(appID), "session")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "[Exchange] build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "[Exchange] request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", errors.Wrap(err, "[Exchange] read response")
	}

	var out ExchangeResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && out.Message != "" {
			return "", &reauth.Error{Message: out.Message, Err: fmt.Errorf("status %d", resp.StatusCode)}
		}
		return "", fmt.Errorf("[Exchange] unexpected status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", errors.Wrap(decodeErr, "[Exchange] decode response")
	}
	if out.AppSessionToken == "" {
		return "", errors.New("[Exchange] response has no app_session_token")
	}
	return out.AppSessionToken, nil
}

// Package jrpc is an authenticated JSON-RPC 2.0 client for the cluster management API.
//
// A Client talks to one endpoint. Every call gets at most two attempts, shared
// between re-authentication and redirect handling:
//
//	send ──200/201/202──▶ done
//	 │ 401 (authenticated call, attempt 1) ──▶ authRetry ──login──▶ send
//	 │ 301 (attempt 1) ──▶ redirectFollow ──rebind──▶ send
//	 └ anything else, or budget exhausted ──▶ failed
package jrpc

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirychukyurii/weka-scale-in/internal/credentials"
)

const (
	maxAttempts = 2

	methodLogin = "user_login"
)

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient builds the HTTP client used for control-plane calls. Redirects
// are returned to the caller instead of being followed.
func NewHTTPClient(timeout time.Duration, tlsConfig *tls.Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if tlsConfig != nil {
		transport.TLSClientConfig = tlsConfig
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Option configures a Client
type Option func(*Client)

// WithDoer replaces the HTTP client
func WithDoer(d Doer) Option {
	return func(c *Client) {
		c.doer = d
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithLoginDefaults sets the scheme, port and path used by Login. Host is ignored.
func WithLoginDefaults(ep Endpoint) Option {
	return func(c *Client) {
		c.loginDefaults = ep
	}
}

// CallOptions tweaks a single call
type CallOptions struct {
	// Path overrides the endpoint path
	Path string
	// Anonymous sends no Authorization header and disables the re-login retry
	Anonymous bool
}

// Client is a JSON-RPC client bound to one control-plane endpoint.
// It is not safe for concurrent use.
type Client struct {
	endpoint      Endpoint
	loginDefaults Endpoint
	creds         credentials.Credentials
	authorization string
	doer          Doer
	logger        *slog.Logger
}

// New creates a client for endpoint that logs in with creds
func New(endpoint Endpoint, creds credentials.Credentials, opts ...Option) *Client {
	c := &Client{
		endpoint:      endpoint,
		loginDefaults: NewEndpoint(""),
		creds:         creds,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.doer == nil {
		c.doer = NewHTTPClient(10*time.Second, nil)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return c
}

// Endpoint returns the endpoint the client is currently bound to
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// Authorization returns the current Authorization header value
func (c *Client) Authorization() string {
	return c.authorization
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      string `json:"id"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcErrorObject `json:"error"`
}

type loginResult struct {
	TokenType    string `json:"token_type"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Login fetches a bearer token through a fresh anonymous client pointed at the
// same host on the default scheme, port and path.
func (c *Client) Login(ctx context.Context) error {
	ep := c.loginDefaults
	ep.Host = c.endpoint.Host

	anon := New(ep, c.creds, WithDoer(c.doer), WithLogger(c.logger), WithLoginDefaults(c.loginDefaults))

	var res loginResult
	_, err := anon.CallWithOptions(ctx, methodLogin, c.creds.LoginParams(), &res, CallOptions{Path: ep.Path, Anonymous: true})
	if err != nil {
		var e *Error
		if errors.As(err, &e) && e.StatusCode == http.StatusUnauthorized {
			return &Error{
				Kind:       KindAuthentication,
				Method:     methodLogin,
				StatusCode: e.StatusCode,
				Message:    "incorrect username or password",
			}
		}
		return err
	}

	if res.AccessToken == "" {
		return &Error{Kind: KindAuthentication, Method: methodLogin, Message: "login response carries no access token"}
	}

	c.authorization = fmt.Sprintf("%s %s", res.TokenType, res.AccessToken)

	c.logger.Debug("logged in to control plane",
		slog.String("host", c.endpoint.Host),
		slog.String("username", c.creds.Username),
	)

	return nil
}

// Call invokes method with params and decodes the JSON-RPC result into result
// (which may be nil). The response headers are returned on success.
func (c *Client) Call(ctx context.Context, method string, params, result any) (http.Header, error) {
	return c.CallWithOptions(ctx, method, params, result, CallOptions{})
}

type attemptState int

const (
	stateSend attemptState = iota
	stateAuthRetry
	stateRedirectFollow
	stateDone
	stateFailed
)

// exchange is the outcome of one HTTP attempt
type exchange struct {
	status int
	header http.Header
	body   []byte
}

// CallWithOptions is Call with a path override and/or anonymous mode
func (c *Client) CallWithOptions(ctx context.Context, method string, params, result any, opts CallOptions) (http.Header, error) {
	if params == nil {
		params = map[string]any{}
	}

	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      uniqueID(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	var (
		state    = stateSend
		attempts int
		last     *exchange
		sendErr  error
	)

	for {
		switch state {
		case stateSend:
			attempts++
			last, sendErr = c.send(ctx, method, opts, body)
			state = c.next(last, sendErr, attempts, opts)

		case stateAuthRetry:
			c.logger.Info("control plane rejected token, logging in again",
				slog.String("method", method),
			)
			if err := c.Login(ctx); err != nil {
				return nil, err
			}
			state = stateSend

		case stateRedirectFollow:
			location := last.header.Get("Location")
			if err := c.rebind(location); err != nil {
				return nil, &Error{Kind: KindHTTP, Method: method, StatusCode: last.status, Message: "bad redirect", Err: err}
			}
			c.logger.Info("following control plane redirect",
				slog.String("method", method),
				slog.String("location", location),
			)
			state = stateSend

		case stateDone:
			if err := decodeResult(method, last, result); err != nil {
				return nil, err
			}
			return last.header, nil

		case stateFailed:
			return nil, c.failure(method, last, sendErr, opts)
		}
	}
}

// next decides the transition after an attempt
func (c *Client) next(ex *exchange, err error, attempts int, opts CallOptions) attemptState {
	if err != nil {
		return stateFailed
	}

	switch ex.status {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return stateDone
	case http.StatusUnauthorized:
		if !opts.Anonymous && attempts < maxAttempts {
			return stateAuthRetry
		}
	case http.StatusMovedPermanently:
		if attempts < maxAttempts {
			return stateRedirectFollow
		}
	}
	return stateFailed
}

func (c *Client) failure(method string, ex *exchange, err error, opts CallOptions) error {
	if err != nil {
		return newTransportError(method, err)
	}

	message := strings.TrimSpace(string(ex.body))
	if message == "" {
		message = http.StatusText(ex.status)
	}

	if ex.status == http.StatusUnauthorized && !opts.Anonymous {
		return &Error{Kind: KindAuthentication, Method: method, StatusCode: ex.status, Message: message}
	}
	return newHTTPError(method, ex.status, message)
}

func (c *Client) send(ctx context.Context, method string, opts CallOptions, body []byte) (*exchange, error) {
	url := c.endpoint.URL(opts.Path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Type", "CLI")
	if !opts.Anonymous && c.authorization != "" {
		req.Header.Set("Authorization", c.authorization)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}

	c.logger.Debug("rpc attempt",
		slog.String("method", method),
		slog.String("url", url),
		slog.Int("status", resp.StatusCode),
	)

	return &exchange{status: resp.StatusCode, header: resp.Header, body: respBody}, nil
}

// rebind points the client at a redirect target. A bare path keeps the current host.
func (c *Client) rebind(location string) error {
	if location == "" {
		return fmt.Errorf("redirect without Location header")
	}

	if strings.HasPrefix(location, "/") {
		c.endpoint.Path = location
		return nil
	}

	ep, err := ParseURL(location, 0, "/")
	if err != nil {
		return err
	}
	c.endpoint = ep
	return nil
}

func decodeResult(method string, ex *exchange, result any) error {
	var resp response
	if err := json.Unmarshal(ex.body, &resp); err != nil {
		return &Error{Kind: KindHTTP, Method: method, StatusCode: ex.status, Message: "invalid JSON response", Err: err}
	}

	if resp.Error != nil {
		return newRPCError(method, *resp.Error)
	}

	if result == nil || len(resp.Result) == 0 {
		return nil
	}

	if err := json.Unmarshal(resp.Result, result); err != nil {
		return &Error{Kind: KindRPC, Method: method, Message: "unexpected result shape", Err: err}
	}
	return nil
}

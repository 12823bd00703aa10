// Package client is a Go client for the appointment booking API.
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
	"strconv"
	"strings"
	"time"

	"appointment-booking-api/internal/model"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
	Fields  []FieldError
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%d: %s", e.Status, e.Message)
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Message)
	}
	return fmt.Sprintf("%d: %s (%s)", e.Status, e.Message, strings.Join(parts, "; "))
}

// StatusOf returns the HTTP status of an *APIError, or 0.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

type Client struct {
	base    string
	http    *http.Client
	session *Session
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for baseURL (without the /api suffix). A nil
// session means an anonymous in-memory one.
func New(baseURL string, session *Session, opts ...Option) *Client {
	if session == nil {
		session = NewSession()
	}
	c := &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		session: session,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Session() *Session { return c.session }

// request describes one call; auth attaches the session credentials.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	auth   bool
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	var payload []byte
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	err := c.send(ctx, req, payload, out)
	if req.auth && StatusOf(err) == http.StatusUnauthorized {
		if _, refresh, _ := c.session.tokens(); refresh != "" {
			if rerr := c.refresh(ctx); rerr != nil {
				return err
			}
			return c.send(ctx, req, payload, out)
		}
	}
	return err
}

func (c *Client) send(ctx context.Context, req request, payload []byte, out any) error {
	u := c.base + "/api" + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	hr, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return err
	}
	hr.Header.Set("Accept", "application/json")
	if payload != nil {
		hr.Header.Set("Content-Type", "application/json")
	}
	if req.auth {
		access, _, uid := c.session.tokens()
		if access != "" {
			hr.Header.Set("Authorization", "Bearer "+access)
		}
		if uid != 0 {
			hr.Header.Set("X-User-Id", strconv.FormatInt(uid, 10))
		}
	}

	resp, err := c.http.Do(hr)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		ae := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var eb struct {
			Error  string       `json:"error"`
			Fields []FieldError `json:"fields"`
		}
		if json.NewDecoder(resp.Body).Decode(&eb) == nil && eb.Error != "" {
			ae.Message, ae.Fields = eb.Error, eb.Fields
		}
		return ae
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.path, err)
	}
	return nil
}

// ---- auth ----

type sessionResponse struct {
	Token        string           `json:"token"`
	RefreshToken string           `json:"refreshToken"`
	ExpiresIn    int              `json:"expiresIn"`
	User         model.PublicUser `json:"user"`
}

func (c *Client) adopt(s *sessionResponse) (*model.PublicUser, error) {
	c.session.Set(s.User, s.Token, s.RefreshToken)
	if err := c.session.Save(); err != nil {
		return nil, err
	}
	u := s.User
	return &u, nil
}

// Login signs in and stores the tokens in the session.
func (c *Client) Login(ctx context.Context, username, password string) (*model.PublicUser, error) {
	var s sessionResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   map[string]string{"username": username, "password": password},
	}, &s)
	if err != nil {
		return nil, err
	}
	return c.adopt(&s)
}

type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

func (c *Client) Register(ctx context.Context, r Registration) (*model.PublicUser, error) {
	var s sessionResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/register", body: r}, &s); err != nil {
		return nil, err
	}
	return c.adopt(&s)
}

func (c *Client) refresh(ctx context.Context) error {
	_, rt, _ := c.session.tokens()
	var s sessionResponse
	err := c.send(ctx, request{
		method: http.MethodPost,
		path:   "/auth/refresh",
	}, mustJSON(map[string]string{"refreshToken": rt}), &s)
	if err != nil {
		// the refresh token is dead, so is the session
		c.session.Clear()
		_ = c.session.Save()
		return err
	}
	_, err = c.adopt(&s)
	return err
}

// Logout revokes server-side refresh tokens and clears the session even
// when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, request{method: http.MethodPost, path: "/auth/logout", auth: true}, nil)
	c.session.Clear()
	if serr := c.session.Save(); err == nil {
		err = serr
	}
	return err
}

func (c *Client) Me(ctx context.Context) (*model.PublicUser, error) {
	var u model.PublicUser
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/me", auth: true}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) User(ctx context.Context, id int64) (*model.PublicUser, error) {
	var u model.PublicUser
	if err := c.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/auth/user/%d", id)}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ---- branches ----

func (c *Client) Branches(ctx context.Context) ([]model.Branch, error) {
	var out []model.Branch
	if err := c.do(ctx, request{method: http.MethodGet, path: "/branches"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Branch(ctx context.Context, id int64) (*model.Branch, error) {
	var b model.Branch
	if err := c.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/branches/%d", id)}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Package gwpapi is the REST client of the GWP backend. It loads the
// collections shown by the dashboard, authenticates, and uploads evidence
// files. The session token is kept in a KeyValueStore so it survives restarts.
package gwpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jaakkos/gwp/internal/app"
	"github.com/jaakkos/gwp/internal/domain"
)

// Local store keys written by Login.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

const defaultTimeout = 30 * time.Second

// HTTPError is returned for every non-2xx response.
type HTTPError struct {
	Method  string
	Path    string
	Status  int
	Message string // "error" or "message" field of the body, if any
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusUnauthorized
}

// User is the logged-in user as returned by /auth/login.
type User struct {
	ID       int    `json:"id"`
	Nombre   string `json:"nombre"`
	Username string `json:"username,omitempty"`
}

// Client talks to the GWP backend.
type Client struct {
	baseURL string
	http    *http.Client
	store   app.KeyValueStore
	logger  *log.Logger
	now     func() time.Time
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithKeyValueStore sets where the session token and user are kept.
func WithKeyValueStore(s app.KeyValueStore) Option {
	return func(c *Client) {
		c.store = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client for baseURL (e.g. "http://localhost:5000").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  log.New(io.Discard, "", 0),
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Token returns the stored session token, or "".
func (c *Client) Token() string {
	if c.store == nil {
		return ""
	}
	tok, _, err := c.store.Get(KeyToken)
	if err != nil {
		c.logger.Printf("gwpapi: read token: %v", err)
		return ""
	}
	return tok
}

// CurrentUser returns the stored user.
func (c *Client) CurrentUser() (User, bool) {
	if c.store == nil {
		return User{}, false
	}
	raw, ok, err := c.store.Get(KeyUser)
	if err != nil || !ok || raw == "" {
		return User{}, false
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return User{}, false
	}
	return u, true
}

// Login authenticates and stores the token and user.
func (c *Client) Login(ctx context.Context, username, password string) (User, error) {
	var resp struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.Post(ctx, "/auth/login", body, &resp); err != nil {
		return User{}, fmt.Errorf("login: %w", err)
	}
	if resp.Token == "" {
		return User{}, fmt.Errorf("login: empty token in response")
	}
	if resp.User.Username == "" {
		resp.User.Username = username
	}
	if c.store == nil {
		return resp.User, nil
	}
	userJSON, err := json.Marshal(resp.User)
	if err != nil {
		return User{}, fmt.Errorf("marshal user: %w", err)
	}
	if err := c.store.Set(KeyToken, resp.Token); err != nil {
		return User{}, fmt.Errorf("store token: %w", err)
	}
	if err := c.store.Set(KeyUser, string(userJSON)); err != nil {
		return User{}, fmt.Errorf("store user: %w", err)
	}
	return resp.User, nil
}

// Logout forgets the stored session.
func (c *Client) Logout() error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Delete(KeyToken); err != nil {
		return err
	}
	return c.store.Delete(KeyUser)
}

// Fetch loads one full collection. It implements app.Fetcher.
func (c *Client) Fetch(ctx context.Context, col domain.Collection) ([]domain.Record, error) {
	path := col.Path()
	if path == "" {
		return nil, fmt.Errorf("unknown collection %q", col)
	}
	// Cache-busting query so intermediaries never serve a stale list.
	path += "?t=" + strconv.FormatInt(c.now().UnixMilli(), 10)
	var records []domain.Record
	if err := c.Get(ctx, path, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []domain.Record{}
	}
	return records, nil
}

// DocumentDetails loads the full content of repository documents.
func (c *Client) DocumentDetails(ctx context.Context, ids []int) ([]domain.Record, error) {
	var records []domain.Record
	if err := c.Post(ctx, "/repositorio/detalle-completo", map[string][]int{"ids": ids}, &records); err != nil {
		return nil, fmt.Errorf("document details: %w", err)
	}
	return records, nil
}

// Upload sends an evidence file for a plan activity.
func (c *Client) Upload(ctx context.Context, planID int, filename string, content io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("plan_id", strconv.Itoa(planID)); err != nil {
		return fmt.Errorf("write plan_id: %w", err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, content); err != nil {
		return fmt.Errorf("copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/upload", &buf, mw.FormDataContentType(), nil)
}

// Get sends a GET and decodes the JSON response into out (may be nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

// Post sends body as JSON.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

// Put sends body as JSON.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, body, out)
}

// Delete sends a DELETE.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, "", out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, method, path, bytes.NewReader(data), "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	u, err := url.JoinPath(c.baseURL, stripQuery(path))
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		u += path[i:]
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{Method: method, Path: stripQuery(path), Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, stripQuery(path), err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

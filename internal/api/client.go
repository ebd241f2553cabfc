// Package api is the REST client for the notification backend: baseline
// listing and the read mutations.
package api

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

	"github.com/google/uuid"

	"notifysync/internal/notification"
	logx "notifysync/pkg/logx"
)

const (
	DefaultTimeout = 15 * time.Second
	DefaultLimit   = 50

	// maxErrorBody caps how much of a failed response is kept.
	maxErrorBody = 4 << 10
)

var ErrNoBaseURL = errors.New("api: base url is required")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method    string
	Path      string
	Code      int
	Body      string
	RequestID string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

type Config struct {
	BaseURL string
	Token   string
	UserID  string
	Timeout time.Duration
}

type Client struct {
	base    *url.URL
	token   string
	userID  string
	timeout time.Duration
	http    *http.Client
	log     logx.Logger
}

type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithLogger(log logx.Logger) Option { return func(c *Client) { c.log = log } }

func New(cfg Config, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, ErrNoBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("api: base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api: base url scheme %q", base.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		base:    base,
		token:   cfg.Token,
		userID:  cfg.UserID,
		timeout: cfg.Timeout,
		http:    &http.Client{},
	}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	c.log = c.log.With(logx.String("comp", "api"))
	return c, nil
}

type listResponse struct {
	Data []notification.Notification `json:"data"`
}

// List fetches the baseline for userID, newest first as returned by the
// backend. limit <= 0 uses DefaultLimit.
func (c *Client) List(ctx context.Context, userID string, limit int) ([]notification.Notification, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if userID == "" {
		userID = c.userID
	}
	q := url.Values{}
	q.Set("userId", userID)
	q.Set("limit", strconv.Itoa(limit))

	var out listResponse
	if _, err := c.do(ctx, http.MethodGet, "/notifications", q, nil, &out); err != nil {
		return nil, err
	}
	list := make([]notification.Notification, 0, len(out.Data))
	for _, n := range out.Data {
		if strings.TrimSpace(n.ID) == "" {
			c.log.Debug("skipping baseline entry without id")
			continue
		}
		if n.Priority == "" {
			n.Priority = notification.PriorityNormal
		}
		list = append(list, n)
	}
	return list, nil
}

// MarkRead marks one notification read on the backend. The request id is
// returned for auditing.
func (c *Client) MarkRead(ctx context.Context, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", notification.ErrMissingID
	}
	return c.do(ctx, http.MethodPatch, "/notifications/"+url.PathEscape(id)+"/read", nil, nil, nil)
}

// MarkAllRead marks every notification of the user read.
func (c *Client) MarkAllRead(ctx context.Context) (string, error) {
	return c.do(ctx, http.MethodPatch, "/notifications/read-all", nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, result any) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		bodyReader io.Reader
		err        error
	)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("api: encode body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	u := *c.base
	u.RawPath = c.base.EscapedPath() + path
	if u.Path, err = url.PathUnescape(u.RawPath); err != nil {
		return "", fmt.Errorf("api: path %q: %w", path, err)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return "", fmt.Errorf("api: build request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return reqID, fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("api call",
		logx.String("method", method),
		logx.String("path", path),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
		logx.String("request_id", reqID),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return reqID, &StatusError{
			Method:    method,
			Path:      path,
			Code:      resp.StatusCode,
			Body:      strings.TrimSpace(string(b)),
			RequestID: reqID,
		}
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return reqID, fmt.Errorf("api: decode %s: %w", path, err)
		}
	}
	return reqID, nil
}

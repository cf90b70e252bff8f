// Package client is the dashboard's HTTP client. It attaches the stored
// bearer token to every request and, when the server answers 401, renews the
// session through a single shared refresh call before retrying the request
// once.
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
	"time"

	"weddingdesk/client/session"
	"weddingdesk/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTimeout        = 15 * time.Second
	DefaultRefreshTimeout = 10 * time.Second

	PathLogin   = "/auth/login"
	PathLogout  = "/auth/logout"
	PathRefresh = "/auth/refresh-token"

	maxBodySize = 10 << 20
)

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// Timeout is the absolute deadline of one Do call, including any wait
	// for a refresh and the retry.
	Timeout        time.Duration
	RefreshTimeout time.Duration
	Observer       Observer
	// OnSessionEnded is called with a human-readable reason after an
	// unrecoverable refresh failure has cleared the session.
	OnSessionEnded func(reason string)
	UserAgent      string
}

type Client struct {
	baseURL        string
	httpClient     *http.Client
	store          *session.Store
	coord          *RefreshCoordinator
	timeout        time.Duration
	refreshTimeout time.Duration
	observer       Observer
	onSessionEnded func(reason string)
	userAgent      string
}

func New(store *session.Store, opts Options) (*Client, error) {
	if store == nil {
		return nil, errors.New("client: nil session store")
	}
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("client: invalid base url %q", opts.BaseURL)
	}

	c := &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		httpClient:     opts.HTTPClient,
		store:          store,
		coord:          NewRefreshCoordinator(),
		timeout:        opts.Timeout,
		refreshTimeout: opts.RefreshTimeout,
		observer:       opts.Observer,
		onSessionEnded: opts.OnSessionEnded,
		userAgent:      opts.UserAgent,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.refreshTimeout <= 0 {
		c.refreshTimeout = DefaultRefreshTimeout
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	if c.userAgent == "" {
		c.userAgent = "weddingdesk-client"
	}
	return c, nil
}

func (c *Client) Session() *session.Store {
	return c.store
}

type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

func (r *Request) op() string {
	return r.Method + " " + r.Path
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) DecodeJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// attempt carries the retry mark alongside the request instead of on it.
type attempt struct {
	req            *Request
	alreadyRetried bool
}

// Do sends req with the session's credentials. A 401 triggers at most one
// refresh-and-retry cycle; any other non-2xx status is returned as *Error.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	a := attempt{req: req}
	seen := c.store.AccessToken()
	resp, err := c.send(ctx, a, c.credential(seen))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return c.finish(a, resp)
	}

	token, err := c.recoverSession(ctx, req.op(), seen)
	if err != nil {
		return nil, err
	}

	a.alreadyRetried = true
	c.observer.RequestRetried()
	logger.Debug("retrying request with renewed token", zap.String("op", req.op()))

	resp, err = c.send(ctx, a, token)
	if err != nil {
		return nil, err
	}
	return c.finish(a, resp)
}

// credential returns token when it looks usable. An expiring token is not
// refreshed up front; the request goes out bare and the server's 401 decides.
func (c *Client) credential(token string) string {
	if c.store.IsLikelyValid(token) {
		return token
	}
	return ""
}

func (c *Client) finish(a attempt, resp *Response) (*Response, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	e := responseError(a.req.op(), resp.StatusCode, resp.Body)
	if a.alreadyRetried && resp.StatusCode == http.StatusUnauthorized {
		logger.Warn("request rejected after token renewal", zap.String("op", a.req.op()))
	}
	return nil, e
}

// recoverSession returns a token to retry with. seen is the access token the
// failed request was built from: if the store already holds a different one,
// a refresh settled in the meantime and that token is reused. The check runs
// after TryAcquire so that a refresh which saved and released just before
// cannot be repeated.
func (c *Client) recoverSession(ctx context.Context, op, seen string) (string, error) {
	for {
		if c.coord.TryAcquire() {
			if cur := c.store.AccessToken(); cur != "" && cur != seen {
				c.coord.Release(RefreshResult{AccessToken: cur})
				return cur, nil
			}
			return c.refresh(ctx)
		}
		if cur := c.store.AccessToken(); cur != "" && cur != seen {
			return cur, nil
		}

		ch := make(chan RefreshResult, 1)
		if !c.coord.OnSettled(func(r RefreshResult) { ch <- r }) {
			continue
		}
		c.observer.RefreshWaiter()
		select {
		case r := <-ch:
			return r.AccessToken, r.Err
		case <-ctx.Done():
			return "", transportError(op, ctx.Err())
		}
	}
}

// refresh runs with the coordinator held and always releases it. It is
// detached from the caller's cancellation because queued requests depend on
// its outcome. The session-ended hook fires only after the release, so the
// hook may issue requests of its own.
func (c *Client) refresh(ctx context.Context) (token string, err error) {
	var ended string
	defer func() {
		c.coord.Release(RefreshResult{AccessToken: token, Err: err})
		if ended != "" && c.onSessionEnded != nil {
			c.onSessionEnded(ended)
		}
	}()

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
	defer cancel()

	refreshToken := c.store.RefreshToken()
	if refreshToken == "" {
		return "", &Error{Kind: KindUnauthenticated, Op: "POST " + PathRefresh, Message: "no active session"}
	}

	start := time.Now()
	c.observer.RefreshStarted()
	logger.Info("refreshing access token")

	pair, err := c.callRefresh(rctx, refreshToken)
	if err != nil {
		c.observer.RefreshFinished(false, time.Since(start))
		reason := "Your session has expired. Please sign in again."
		if k := KindOf(err); k == KindNetwork || k == KindTimeout {
			reason = "Could not reach the server to renew your session. Please sign in again."
		}
		ended = reason
		return "", c.endSession(rctx, reason, err)
	}

	// Servers that do not rotate refresh tokens omit it from the response.
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	if err := c.store.Save(rctx, pair.AccessToken, pair.RefreshToken); err != nil {
		logger.Warn("renewed session not persisted", zap.Error(err))
	}
	c.observer.RefreshFinished(true, time.Since(start))
	logger.Info("access token refreshed", zap.Duration("elapsed", time.Since(start)))
	return pair.AccessToken, nil
}

func (c *Client) endSession(ctx context.Context, reason string, cause error) error {
	if err := c.store.Clear(ctx); err != nil {
		logger.Warn("failed to clear session", zap.Error(err))
	}
	c.observer.SessionEnded()
	logger.Warn("session ended", zap.String("reason", reason), zap.Error(cause))

	e := &Error{Kind: KindSessionExpired, Op: "POST " + PathRefresh, Message: reason, Err: cause}
	var ce *Error
	if errors.As(cause, &ce) {
		e.Status = ce.Status
		e.Code = ce.Code
	}
	return e
}

func (c *Client) send(ctx context.Context, a attempt, token string) (*Response, error) {
	op := a.req.op()
	target := c.baseURL + a.req.Path
	if len(a.req.Query) > 0 {
		target += "?" + a.req.Query.Encode()
	}

	var body io.Reader
	if a.req.Body != nil {
		body = bytes.NewReader(a.req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, a.req.Method, target, body)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Op: op, Err: err}
	}
	for k, vs := range a.req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if a.req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	rid := uuid.NewString()
	httpReq.Header.Set("X-Request-ID", rid)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logger.Warn("request failed", zap.String("op", op), zap.String("request_id", rid), zap.Error(err))
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, transportError(op, err)
	}

	logger.Debug("request completed",
		zap.String("op", op),
		zap.String("request_id", rid),
		zap.Int("status", resp.StatusCode),
		zap.Bool("retried", a.alreadyRetried),
		zap.Duration("latency", time.Since(start)),
	)
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	req := &Request{Method: method, Path: path, Query: query}
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &Error{Kind: KindUnknown, Op: req.op(), Err: err}
		}
		req.Body = b
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := resp.DecodeJSON(out); err != nil {
		return &Error{Kind: KindDecode, Op: req.op(), Status: resp.StatusCode, Err: err}
	}
	return nil
}

func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, in, out)
}

func (c *Client) PutJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, nil, in, out)
}

func (c *Client) PatchJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPatch, path, nil, in, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, nil)
}

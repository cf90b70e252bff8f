package client

import (
	"context"
	"encoding/json"
	"net/http"

	"weddingdesk/client/session"
	v1 "weddingdesk/pkg/api/v1"
	"weddingdesk/pkg/logger"

	"go.uber.org/zap"
)

// Login exchanges credentials for a session and stores it. On failure the
// store is left untouched and the returned *Error carries the server's
// reason code (see ErrInvalidCredentials, ErrAccountLocked,
// ErrInsufficientRole).
func (c *Client) Login(ctx context.Context, identifier, secret string) (*session.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(v1.LoginRequest{Identifier: identifier, Secret: secret})
	if err != nil {
		return nil, err
	}
	req := &Request{Method: http.MethodPost, Path: PathLogin, Body: body}
	resp, err := c.send(ctx, attempt{req: req}, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := responseError(req.op(), resp.StatusCode, resp.Body)
		logger.Info("login rejected", zap.Int("status", e.Status), zap.String("code", e.Code))
		return nil, e
	}

	var lr v1.LoginResponse
	if err := resp.DecodeJSON(&lr); err != nil || lr.AccessToken == "" || lr.RefreshToken == "" {
		return nil, &Error{Kind: KindDecode, Op: req.op(), Status: resp.StatusCode, Message: "incomplete login response", Err: err}
	}

	user := lr.User
	sess := session.Session{AccessToken: lr.AccessToken, RefreshToken: lr.RefreshToken, User: &user}
	if err := c.store.SaveSession(ctx, sess); err != nil {
		logger.Warn("session not persisted", zap.Error(err))
	}
	logger.Info("logged in", zap.String("user_id", user.ID), zap.String("role", user.Role))
	return &sess, nil
}

// Logout tells the server to revoke the refresh token, then clears the
// local session whether or not the server could be reached.
func (c *Client) Logout(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	snap := c.store.Snapshot()
	if snap.RefreshToken != "" {
		body, _ := json.Marshal(v1.LogoutRequest{RefreshToken: snap.RefreshToken})
		req := &Request{Method: http.MethodPost, Path: PathLogout, Body: body}
		resp, err := c.send(ctx, attempt{req: req}, c.credential(snap.AccessToken))
		switch {
		case err != nil:
			logger.Warn("logout notification failed", zap.Error(err))
		case resp.StatusCode >= 300:
			logger.Warn("logout rejected by server", zap.Int("status", resp.StatusCode))
		}
	}

	return c.store.Clear(context.WithoutCancel(ctx))
}

func (c *Client) callRefresh(ctx context.Context, refreshToken string) (*v1.TokenPair, error) {
	body, err := json.Marshal(v1.RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}
	req := &Request{Method: http.MethodPost, Path: PathRefresh, Body: body}
	resp, err := c.send(ctx, attempt{req: req}, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(req.op(), resp.StatusCode, resp.Body)
	}

	var pair v1.TokenPair
	if err := resp.DecodeJSON(&pair); err != nil || pair.AccessToken == "" {
		return nil, &Error{Kind: KindDecode, Op: req.op(), Status: resp.StatusCode, Message: "incomplete refresh response", Err: err}
	}
	return &pair, nil
}

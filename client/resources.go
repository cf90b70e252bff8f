package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	v1 "weddingdesk/pkg/api/v1"
	"weddingdesk/pkg/logger"

	"go.uber.org/zap"
)

type ListQuery struct {
	Page     int
	PageSize int
	Search   string
	Sort     string
	Filters  map[string]string
}

func (q ListQuery) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	for k, val := range q.Filters {
		v.Set(k, val)
	}
	return v
}

// Resource is a REST collection at path, e.g. /costumes and /costumes/{id}.
type Resource[T any] struct {
	c    *Client
	path string
}

func NewResource[T any](c *Client, path string) Resource[T] {
	return Resource[T]{c: c, path: path}
}

func (r Resource[T]) item(id string) string {
	return r.path + "/" + url.PathEscape(id)
}

func (r Resource[T]) List(ctx context.Context, q ListQuery) (*v1.Page[T], error) {
	var page v1.Page[T]
	if err := r.c.GetJSON(ctx, r.path, q.values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (r Resource[T]) Get(ctx context.Context, id string) (*T, error) {
	var out T
	if err := r.c.GetJSON(ctx, r.item(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r Resource[T]) Create(ctx context.Context, in *T) (*T, error) {
	var out T
	if err := r.c.PostJSON(ctx, r.path, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r Resource[T]) Update(ctx context.Context, id string, in *T) (*T, error) {
	var out T
	if err := r.c.PutJSON(ctx, r.item(id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r Resource[T]) Delete(ctx context.Context, id string) error {
	return r.c.Delete(ctx, r.item(id))
}

func (c *Client) Costumes() Resource[v1.Costume] {
	return NewResource[v1.Costume](c, "/costumes")
}

func (c *Client) Categories() Resource[v1.Category] {
	return NewResource[v1.Category](c, "/categories")
}

func (c *Client) Customers() Resource[v1.Customer] {
	return NewResource[v1.Customer](c, "/customers")
}

func (c *Client) Orders() Resource[v1.Order] {
	return NewResource[v1.Order](c, "/orders")
}

func (c *Client) DashboardStats(ctx context.Context) (*v1.DashboardStats, error) {
	var out v1.DashboardStats
	if err := c.GetJSON(ctx, "/dashboard/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile fetches the current user and refreshes the cached copy.
func (c *Client) Profile(ctx context.Context) (*v1.User, error) {
	var u v1.User
	if err := c.GetJSON(ctx, "/auth/me", nil, &u); err != nil {
		return nil, err
	}
	c.cacheUser(ctx, &u)
	return &u, nil
}

func (c *Client) UpdateProfile(ctx context.Context, in v1.UpdateProfileRequest) (*v1.User, error) {
	var u v1.User
	if err := c.doJSON(ctx, http.MethodPut, "/auth/me", nil, in, &u); err != nil {
		return nil, err
	}
	c.cacheUser(ctx, &u)
	return &u, nil
}

// cacheUser keeps the in-memory copy even when the backend write fails.
func (c *Client) cacheUser(ctx context.Context, u *v1.User) {
	if err := c.store.SetUser(ctx, u); err != nil {
		logger.Warn("profile not persisted", zap.String("user_id", u.ID), zap.Error(err))
	}
}

func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	return c.PostJSON(ctx, "/auth/change-password", v1.ChangePasswordRequest{
		CurrentPassword: current,
		NewPassword:     next,
	}, nil)
}

// AuditLog lists authentication events. Admins only.
func (c *Client) AuditLog(ctx context.Context, q ListQuery) (*v1.Page[v1.AuditEntry], error) {
	var page v1.Page[v1.AuditEntry]
	if err := c.GetJSON(ctx, "/auth/audits", q.values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

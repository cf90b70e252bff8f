package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"weddingdesk/internal/model"
	"weddingdesk/internal/repository"
	v1 "weddingdesk/pkg/api/v1"
	"weddingdesk/pkg/constraints"
	"weddingdesk/pkg/hash"
	"weddingdesk/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultIssuer          = "weddingdesk"

	MinPasswordLength = 8
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrInsufficientRole   = errors.New("role not allowed to sign in")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrSessionExpired     = errors.New("session expired")
	ErrUserNotFound       = errors.New("user not found")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

type AuthConfig struct {
	SigningKey      []byte
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	AllowedRoles    []string
}

type AuthService struct {
	users  repository.UserRepository
	tokens repository.RefreshTokenStore
	cfg    AuthConfig
	now    func() time.Time
}

type UserClaims struct {
	UserID    string `json:"uid"`
	Username  string `json:"name"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

func NewAuthService(users repository.UserRepository, tokens repository.RefreshTokenStore, cfg AuthConfig) (*AuthService, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("auth: signing key is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if len(cfg.AllowedRoles) == 0 {
		cfg.AllowedRoles = []string{constraints.RoleAdmin, constraints.RoleStaff}
	}
	return &AuthService{users: users, tokens: tokens, cfg: cfg, now: time.Now}, nil
}

// Login checks identifier (username or email) and secret and issues a token
// pair. Unknown users and wrong passwords are indistinguishable to callers.
func (s *AuthService) Login(ctx context.Context, identifier, secret string) (*v1.LoginResponse, error) {
	u, err := s.users.FindByIdentifier(ctx, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !hash.CheckPassword(u.PasswordHash, secret) {
		return nil, ErrInvalidCredentials
	}
	if u.Locked {
		return nil, ErrAccountLocked
	}
	if !slices.Contains(s.cfg.AllowedRoles, u.Role) {
		return nil, ErrInsufficientRole
	}

	pair, err := s.issue(ctx, u)
	if err != nil {
		return nil, err
	}
	logger.Info("user logged in", zap.String("user_id", u.ID), zap.String("role", u.Role))
	return &v1.LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         toUser(u),
	}, nil
}

// Refresh rotates a refresh token: its JTI is consumed from the allow-list
// and a new pair is issued. Presenting the same token twice fails.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*v1.TokenPair, error) {
	claims, err := s.parse(refreshToken, constraints.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	userID, ok, err := s.tokens.Consume(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	if !ok || userID != claims.UserID {
		logger.Warn("refresh token not in allow-list", zap.String("user_id", claims.UserID))
		return nil, ErrSessionExpired
	}

	u, err := s.users.FindByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if u.Locked {
		return nil, ErrAccountLocked
	}
	return s.issue(ctx, u)
}

// Logout revokes the refresh token. Tokens that do not verify are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.parse(refreshToken, constraints.TokenTypeRefresh)
	if err != nil {
		return nil
	}
	return s.tokens.Revoke(ctx, claims.ID)
}

func (s *AuthService) ParseAccessToken(token string) (*UserClaims, error) {
	return s.parse(token, constraints.TokenTypeAccess)
}

func (s *AuthService) parse(token, typ string) (*UserClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &UserClaims{}, func(t *jwt.Token) (any, error) {
		return s.cfg.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*UserClaims)
	if !ok || !parsed.Valid || claims.TokenType != typ {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *AuthService) issue(ctx context.Context, u *model.User) (*v1.TokenPair, error) {
	now := s.now()

	access, err := s.sign(u, constraints.TokenTypeAccess, now, s.cfg.AccessTokenTTL, uuid.NewString())
	if err != nil {
		return nil, err
	}
	jti := uuid.NewString()
	refresh, err := s.sign(u, constraints.TokenTypeRefresh, now, s.cfg.RefreshTokenTTL, jti)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Allow(ctx, jti, u.ID, s.cfg.RefreshTokenTTL); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &v1.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) sign(u *model.User, typ string, now time.Time, ttl time.Duration, jti string) (string, error) {
	claims := UserClaims{
		UserID:    u.ID,
		Username:  u.Username,
		Role:      u.Role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
			ID:        jti,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SigningKey)
}

func (s *AuthService) Profile(ctx context.Context, userID string) (*v1.User, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := toUser(u)
	return &out, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in v1.UpdateProfileRequest) (*v1.User, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = u.DisplayName
	}
	email := strings.TrimSpace(in.Email)
	if email == "" {
		email = u.Email
	}
	if err := s.users.UpdateProfile(ctx, userID, displayName, email); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	u.DisplayName, u.Email = displayName, email
	out := toUser(u)
	return &out, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	u, err := s.user(ctx, userID)
	if err != nil {
		return err
	}
	if !hash.CheckPassword(u.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	if len(next) < MinPasswordLength {
		return ErrWeakPassword
	}
	h, err := hash.HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, h); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	logger.Info("password changed", zap.String("user_id", userID))
	return nil
}

// SeedAdmin creates the first admin account when no users exist. It reports
// whether an account was created.
func (s *AuthService) SeedAdmin(ctx context.Context, username, email, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}
	n, err := s.users.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if len(password) < MinPasswordLength {
		return false, ErrWeakPassword
	}
	h, err := hash.HashPassword(password)
	if err != nil {
		return false, err
	}
	err = s.users.Create(ctx, &model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		DisplayName:  username,
		PasswordHash: h,
		Role:         constraints.RoleAdmin,
	})
	if err != nil {
		return false, err
	}
	logger.Info("seeded admin account", zap.String("username", username))
	return true, nil
}

func (s *AuthService) user(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func toUser(u *model.User) v1.User {
	return v1.User{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Role:        u.Role,
	}
}

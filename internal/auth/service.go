package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"chatvault/internal/apperr"
	"chatvault/internal/redis"
	"chatvault/internal/storage"
)

const (
	redisTokenPrefix     = "chatvault:token:"
	redisUserTokenPrefix = "chatvault:user_tokens:"
)

// Service owns local identities and issues, validates, and revokes their
// authentication tokens. Tokens are persisted in user_tokens and cached in
// redis when a cache client is configured.
type Service struct {
	db             *sql.DB
	dialect        storage.Dialect
	cache          *redis.Client
	tokenTTL       time.Duration
	now            func() time.Time
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
}

// NewService constructs an auth service with the supplied token lifetime.
// cache may be nil.
func NewService(db *sql.DB, dialect storage.Dialect, cache *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		db:             db,
		dialect:        dialect,
		cache:          cache,
		tokenTTL:       ttl,
		now:            time.Now,
		cookieName:     "auth_token",
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
	}
}

func (s *Service) q(query string) string {
	return s.dialect.Rebind(query)
}

// IssueToken mints a new random token for the user and persists it.
func (s *Service) IssueToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("invalid user id")
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	for i := 0; i < 5; i++ {
		token, err := generateToken()
		if err != nil {
			return "", err
		}
		_, err = s.db.ExecContext(ctx,
			s.q(`INSERT INTO user_tokens (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`),
			token, userID, now.UnixMilli(), expiresAt.UnixMilli(),
		)
		if err == nil {
			s.cacheToken(ctx, token, userID, s.tokenTTL)
			return token, nil
		}
	}
	return "", errors.New("could not issue token")
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	return generateToken()
}

// ValidateToken verifies the token exists and has not expired, returning the user id.
func (s *Service) ValidateToken(ctx context.Context, authToken string) (string, error) {
	if authToken == "" {
		return "", apperr.New(apperr.Unauthorized, "token required")
	}
	if s.cache.Enabled() {
		userID, err := s.cache.Get(ctx, redisTokenPrefix+authToken)
		if err == nil && userID != "" {
			return userID, nil
		}
		if err != nil && !errors.Is(err, redis.ErrCacheMiss) {
			log.Printf("[auth] token cache lookup failed: %v", err)
		}
	}

	var (
		userID  string
		expires int64
	)
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT user_id, expires_at FROM user_tokens WHERE token = ?`), authToken,
	).Scan(&userID, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperr.New(apperr.Unauthorized, "invalid token")
		}
		return "", fmt.Errorf("lookup token: %w", err)
	}
	remaining := time.UnixMilli(expires).Sub(s.now())
	if remaining <= 0 {
		_, _ = s.db.ExecContext(ctx, s.q(`DELETE FROM user_tokens WHERE token = ?`), authToken)
		return "", apperr.New(apperr.Unauthorized, "token expired")
	}
	s.cacheToken(ctx, authToken, userID, remaining)
	return userID, nil
}

// RevokeToken deletes a single token.
func (s *Service) RevokeToken(ctx context.Context, authToken string) error {
	if authToken == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM user_tokens WHERE token = ?`), authToken); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if s.cache.Enabled() {
		if err := s.cache.Del(ctx, redisTokenPrefix+authToken); err != nil {
			log.Printf("[auth] failed to evict token from cache: %v", err)
		}
	}
	return nil
}

// RevokeUserTokens removes all tokens belonging to the user.
func (s *Service) RevokeUserTokens(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT token FROM user_tokens WHERE user_id = ?`), userID)
	if err != nil {
		return fmt.Errorf("list user tokens: %w", err)
	}
	var keys []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			rows.Close()
			return fmt.Errorf("scan user token: %w", err)
		}
		keys = append(keys, redisTokenPrefix+token)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list user tokens: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM user_tokens WHERE user_id = ?`), userID); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	if s.cache.Enabled() {
		// Tokens may be cached after their row was purged on expiry.
		if cached, err := s.cache.SMembers(ctx, redisUserTokenPrefix+userID); err == nil {
			for _, token := range cached {
				keys = append(keys, redisTokenPrefix+token)
			}
		}
		keys = append(keys, redisUserTokenPrefix+userID)
		if err := s.cache.Del(ctx, keys...); err != nil {
			log.Printf("[auth] failed to evict tokens of user %s from cache: %v", userID, err)
		}
	}
	return nil
}

func (s *Service) cacheToken(ctx context.Context, token, userID string, ttl time.Duration) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Set(ctx, redisTokenPrefix+token, userID, ttl); err != nil {
		log.Printf("[auth] failed to cache token: %v", err)
		return
	}
	if err := s.cache.SAdd(ctx, redisUserTokenPrefix+userID, s.tokenTTL, token); err != nil {
		log.Printf("[auth] failed to index cached token: %v", err)
	}
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthCookieName returns the cookie name storing auth tokens.
func (s *Service) AuthCookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// CSRFHeaderName returns the CSRF header name.
func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}

// TokenTTL reports the configured token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}

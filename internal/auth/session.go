// Package auth keeps the clinic user's remote session. The sync queue only
// talks to the remote while a session is present.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "clinic-worker/internal/common/errors"
	"clinic-worker/internal/common/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

// Session is the access token handed over by the app after sign-in.
type Session struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type SessionStore struct {
	rdb    redis.Cmdable
	key    string
	logger logger.Logger
	now    func() time.Time
}

func NewSessionStore(rdb redis.Cmdable, key string, log logger.Logger) *SessionStore {
	return &SessionStore{
		rdb:    rdb,
		key:    key,
		logger: log.WithFields(map[string]interface{}{"component": "auth"}),
		now:    time.Now,
	}
}

// Save stores token until its exp claim. The signature is checked by the
// remote, not here.
func (s *SessionStore) Save(ctx context.Context, token string) (*Session, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, apperrors.NewInvalidRequestError("malformed access token: " + err.Error())
	}
	if claims.Subject == "" {
		return nil, apperrors.NewInvalidRequestError("access token has no subject")
	}

	now := s.now()
	sess := &Session{Token: token, Subject: claims.Subject}
	var ttl time.Duration
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
		ttl = sess.ExpiresAt.Sub(now)
		if ttl <= 0 {
			return nil, apperrors.NewAuthRequiredError("access token expired")
		}
	}

	raw, err := json.Marshal(sess)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if err := s.rdb.Set(ctx, s.key, raw, ttl).Err(); err != nil {
		return nil, apperrors.NewStoreWriteError("save session", err)
	}

	s.logger.Info("Session stored", map[string]interface{}{
		"subject":   sess.Subject,
		"expiresAt": sess.ExpiresAt,
	})
	return sess, nil
}

// Current returns the stored session, or nil when there is none.
func (s *SessionStore) Current(ctx context.Context) (*Session, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStoreReadError("load session", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, apperrors.NewStoreReadError("decode session", fmt.Errorf("key %s: %w", s.key, err))
	}
	if !sess.ExpiresAt.IsZero() && !sess.ExpiresAt.After(s.now()) {
		return nil, nil
	}
	return &sess, nil
}

// IsAuthenticated reports whether a live session exists. Store errors count as signed out.
func (s *SessionStore) IsAuthenticated(ctx context.Context) bool {
	sess, err := s.Current(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Session lookup failed", nil)
		return false
	}
	return sess != nil
}

func (s *SessionStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return apperrors.NewStoreWriteError("clear session", err)
	}
	s.logger.Info("Session cleared", nil)
	return nil
}

package auth

import (
	"context"
	"testing"
	"time"

	apperrors "clinic-worker/internal/common/errors"
	"clinic-worker/internal/common/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) (*miniredis.Miniredis, *SessionStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewSessionStore(client, "clinic:auth:session", logger.NewTestLogger(t))
	store.now = func() time.Time { return testNow }
	return mr, store
}

func signToken(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestSave_StoresUntilExpiry(t *testing.T) {
	mr, store := setupStore(t)
	token := signToken(t, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
	})

	sess, err := store.Save(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.Subject)
	assert.Equal(t, time.Hour, mr.TTL("clinic:auth:session"))

	current, err := store.Current(context.Background())
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, token, current.Token)
	assert.True(t, store.IsAuthenticated(context.Background()))

	mr.FastForward(time.Hour + time.Second)
	assert.False(t, store.IsAuthenticated(context.Background()))
}

func TestSave_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		token    func(t *testing.T) string
		wantCode apperrors.ErrorCode
	}{
		{
			name:     "malformed",
			token:    func(*testing.T) string { return "not-a-jwt" },
			wantCode: apperrors.ErrCodeInvalidRequest,
		},
		{
			name: "no subject",
			token: func(t *testing.T) string {
				return signToken(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour))})
			},
			wantCode: apperrors.ErrCodeInvalidRequest,
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				return signToken(t, jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(testNow.Add(-time.Minute))})
			},
			wantCode: apperrors.ErrCodeAuthRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr, store := setupStore(t)

			_, err := store.Save(context.Background(), tt.token(t))
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.wantCode))
			assert.False(t, mr.Exists("clinic:auth:session"))
		})
	}
}

func TestCurrent_IgnoresLapsedSession(t *testing.T) {
	_, store := setupStore(t)
	token := signToken(t, jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Minute))})
	_, err := store.Save(context.Background(), token)
	require.NoError(t, err)

	store.now = func() time.Time { return testNow.Add(2 * time.Minute) }
	current, err := store.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestClear(t *testing.T) {
	_, store := setupStore(t)
	token := signToken(t, jwt.RegisteredClaims{Subject: "user-1"})
	_, err := store.Save(context.Background(), token)
	require.NoError(t, err)
	require.True(t, store.IsAuthenticated(context.Background()))

	require.NoError(t, store.Clear(context.Background()))
	assert.False(t, store.IsAuthenticated(context.Background()))
}

func TestIsAuthenticated_StoreDown(t *testing.T) {
	mr, store := setupStore(t)
	mr.Close()
	assert.False(t, store.IsAuthenticated(context.Background()))
}

package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/freight-exchange/internal/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTokenRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	issuer := NewTokenIssuer("secret", time.Hour)
	issuer.now = clock.Now

	user := models.NewUser("cmp-1", "a@b.io", "h", "A", models.RoleSupplierEmployee, false)
	token, exp, err := issuer.Issue(user)
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(time.Hour), exp)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleSupplierEmployee, claims.Role)

	clock.Advance(time.Hour)
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenRejectsTampering(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	user := models.NewUser("cmp-1", "a@b.io", "h", "A", models.RoleSupplierEmployee, false)
	token, _, err := issuer.Issue(user)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	claims := Claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	otherAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: user.ID}).SignedString([]byte("secret"))
	require.NoError(t, err)
	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: claims.RegisteredClaims}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"no signature", parts[0] + "." + parts[1]},
		{"flipped claims", parts[0] + ".x" + parts[1][1:] + "." + parts[2]},
		{"other secret", mustIssue(t, NewTokenIssuer("other", time.Hour), user)},
		{"alg none", unsigned},
		{"other algorithm", otherAlg},
		{"no expiry", noExpiry},
		{"no user", noUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func mustIssue(t *testing.T, issuer *TokenIssuer, user *models.User) string {
	t.Helper()
	token, _, err := issuer.Issue(user)
	require.NoError(t, err)
	return token
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.NoError(t, CheckPassword(hash, "correct horse"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong"), ErrPasswordMismatch)
}

func TestSessionCacheTTL(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	loads := 0
	verified := false

	cache := NewSessionCache(5*time.Minute, func(ctx context.Context, userID string) (*models.Session, error) {
		loads++
		return &models.Session{UserID: userID, CompanyID: "cmp-1", IsVerified: verified}, nil
	}).WithClock(clock.Now)

	ctx := context.Background()
	s, err := cache.Get(ctx, "usr-1")
	require.NoError(t, err)
	assert.False(t, s.IsVerified)

	verified = true
	clock.Advance(4 * time.Minute)
	s, err = cache.Get(ctx, "usr-1")
	require.NoError(t, err)
	assert.False(t, s.IsVerified, "served from cache within ttl")
	assert.Equal(t, 1, loads)

	clock.Advance(time.Minute)
	s, err = cache.Get(ctx, "usr-1")
	require.NoError(t, err)
	assert.True(t, s.IsVerified, "reloaded after ttl")
	assert.Equal(t, 2, loads)
}

func TestSessionCacheInvalidation(t *testing.T) {
	loads := 0
	cache := NewSessionCache(time.Hour, func(ctx context.Context, userID string) (*models.Session, error) {
		loads++
		return &models.Session{UserID: userID, CompanyID: "cmp-" + userID}, nil
	})
	ctx := context.Background()

	_, _ = cache.Get(ctx, "a")
	_, _ = cache.Get(ctx, "b")
	cache.InvalidateCompany("cmp-a")
	_, _ = cache.Get(ctx, "a")
	_, _ = cache.Get(ctx, "b")
	assert.Equal(t, 3, loads)

	cache.Invalidate("b")
	_, _ = cache.Get(ctx, "b")
	assert.Equal(t, 4, loads)

	metrics := cache.GetMetrics()
	assert.Equal(t, int64(1), metrics["hits"])
}

func TestSessionCacheLoadError(t *testing.T) {
	boom := errors.New("boom")
	cache := NewSessionCache(time.Minute, func(ctx context.Context, userID string) (*models.Session, error) {
		return nil, boom
	})

	_, err := cache.Get(context.Background(), "usr-1")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cache.GetMetrics()["entries"])
}

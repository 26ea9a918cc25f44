package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eugene-kirzhanov/vkcup21/pkg/config"
	"github.com/go-redis/redismock/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:           true,
		WindowSeconds:     60,
		AnonymousLimit:    60,
		AnonymousBurst:    20,
		SessionLimit:      240,
		SessionBurst:      60,
		RedisPrefix:       "rate-limit",
		EndpointOverrides: config.DefaultRateLimitOverrides(),
	}
}

func newTestLimiter(t *testing.T, cfg config.RateLimitConfig) (*Limiter, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	limiter := NewLimiter(db, cfg)
	limiter.WithNow(func() time.Time { return fixedNow })
	return limiter, mock
}

func scriptHash() string {
	return redis.NewScript(tokenBucketScript).Hash()
}

func TestRuleFor(t *testing.T) {
	limiter := NewLimiter(nil, testConfig())

	tests := []struct {
		name     string
		endpoint string
		identity IdentityType
		want     Rule
	}{
		{
			name:     "anonymous default",
			endpoint: "GET:/version",
			identity: IdentityAnonymous,
			want:     Rule{Limit: 60, Burst: 20, Window: time.Minute},
		},
		{
			name:     "session default",
			endpoint: "POST:/api/v1/sessions/:id/geocode",
			identity: IdentitySession,
			want:     Rule{Limit: 240, Burst: 60, Window: time.Minute},
		},
		{
			name:     "session creation is tighter for anonymous callers",
			endpoint: "POST:/api/v1/sessions",
			identity: IdentityAnonymous,
			want:     Rule{Limit: 10, Burst: 5, Window: time.Minute},
		},
		{
			name:     "override without session values keeps session defaults",
			endpoint: "POST:/api/v1/sessions",
			identity: IdentitySession,
			want:     Rule{Limit: 240, Burst: 60, Window: time.Minute},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, limiter.RuleFor(tt.endpoint, tt.identity))
		})
	}
}

func TestAllow_TakesToken(t *testing.T) {
	limiter, mock := newTestLimiter(t, testConfig())
	rule := Rule{Limit: 60, Burst: 20, Window: time.Minute}

	mock.ExpectEvalSha(scriptHash(), []string{"rate-limit:anonymous:GET:/version:10.0.0.1"},
		fixedNow.UnixMilli(), "0.0010000000", "80.0000000000", int64(120000),
	).SetVal([]interface{}{int64(1), "79", int64(0)})

	result, err := limiter.Allow(context.Background(), "GET:/version", "10.0.0.1", rule, IdentityAnonymous)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 79, result.Remaining)
	assert.Equal(t, 60, result.Limit)
	assert.Equal(t, time.Second, result.ResetAfter)
	assert.Zero(t, result.RetryAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllow_RejectsEmptyBucket(t *testing.T) {
	limiter, mock := newTestLimiter(t, testConfig())
	rule := Rule{Limit: 240, Burst: 60, Window: time.Minute}

	mock.ExpectEvalSha(scriptHash(), []string{"rate-limit:session:POST:/api/v1/sessions/:id/geocode:s-1"},
		fixedNow.UnixMilli(), "0.0040000000", "300.0000000000", int64(120000),
	).SetVal([]interface{}{int64(0), "0.2", int64(200)})

	result, err := limiter.Allow(context.Background(), "POST:/api/v1/sessions/:id/geocode", "s-1", rule, IdentitySession)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, 200*time.Millisecond, result.RetryAfter)
	assert.Equal(t, IdentitySession, result.IdentityType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllow_DisabledSkipsRedis(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	limiter, mock := newTestLimiter(t, cfg)

	result, err := limiter.Allow(context.Background(), "GET:/version", "10.0.0.1", Rule{Limit: 1, Window: time.Minute}, IdentityAnonymous)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllow_PropagatesRedisError(t *testing.T) {
	limiter, mock := newTestLimiter(t, testConfig())
	rule := Rule{Limit: 60, Burst: 20, Window: time.Minute}

	mock.ExpectEvalSha(scriptHash(), []string{"rate-limit:anonymous:GET:/version:10.0.0.1"},
		fixedNow.UnixMilli(), "0.0010000000", "80.0000000000", int64(120000),
	).SetErr(errors.New("connection refused"))

	_, err := limiter.Allow(context.Background(), "GET:/version", "10.0.0.1", rule, IdentityAnonymous)
	assert.Error(t, err)
}

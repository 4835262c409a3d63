package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/points-ledger-api/pkg/errors"
)

func TestCacheRepositoryRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := NewCacheRepository(client, zap.NewNop())
	defer repo.Close()
	ctx := context.Background()

	var out map[string]string
	assert.ErrorIs(t, repo.Get(ctx, "settings:all", &out), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "settings:all", map[string]string{"POINT_ALERT_THRESHOLD": "500"}, time.Minute))
	require.NoError(t, repo.Get(ctx, "settings:all", &out))
	assert.Equal(t, "500", out["POINT_ALERT_THRESHOLD"])

	require.NoError(t, repo.Set(ctx, "settings:key:A", "1", time.Minute))
	require.NoError(t, repo.DeleteByPattern(ctx, "settings:*"))
	assert.False(t, mr.Exists("settings:all"))
	assert.False(t, mr.Exists("settings:key:A"))
}

func TestCacheRepositoryNilClient(t *testing.T) {
	repo := NewCacheRepository(nil, zap.NewNop())
	var out string
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &out), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", "v", time.Second))
	assert.NoError(t, repo.Delete(context.Background(), "k"))
}

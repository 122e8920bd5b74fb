package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emaamul/core/internal/models"
	"github.com/emaamul/core/internal/remote"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("EMAAMUL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set EMAAMUL_TEST_REDIS_ADDR to run redis integration test")
	}
	s, err := Open(context.Background(), Config{Addr: addr, Prefix: fmt.Sprintf("emaamul-it-%d", time.Now().UnixNano())})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := s.client.Keys(ctx, s.prefix+":*").Result()
		if len(keys) > 0 {
			_ = s.client.Del(ctx, keys...).Err()
		}
		_ = s.Close()
	})
	return s
}

func TestEncodeFields(t *testing.T) {
	fields, err := encodeFields(models.Document{"name": "Tea", "stock": 3, "_delete": true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": `"Tea"`, "stock": "3", "_delete": "true"}, fields)
}

func TestMergeUpsertKeepsUntouchedFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MergeUpsert(ctx, "products", "p1", models.Document{"id": "p1", "name": "Tea", "stock": 4}))
	require.NoError(t, s.MergeUpsert(ctx, "products", "p1", models.Document{"id": "p1", "stock": 3}))

	doc, ok, err := s.Get(ctx, "products", "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Tea", doc["name"])
	assert.EqualValues(t, 3, doc["stock"])
	assert.Contains(t, doc, remote.FieldSyncedAt)

	ids, err := s.IDs(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)
}

func TestAppendAndMissing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Append(ctx, models.CollectionHeartbeats, models.Document{"ownerId": "u1"})
	require.NoError(t, err)
	doc, ok, err := s.Get(ctx, models.CollectionHeartbeats, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u1", doc["ownerId"])
	assert.Contains(t, doc, remote.FieldCreatedAt)

	_, ok, err = s.Get(ctx, "products", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

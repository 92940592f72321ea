package membership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/fyrsmithlabs/metricsd/internal/sanitize"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store, err := NewRedisStore(client, Config{}, nil)
	require.NoError(t, err)
	return store, mr
}

func TestKey(t *testing.T) {
	assert.Equal(t, "svc#metric_names", Key("svc"))
	assert.Equal(t, "default#metric_names", Key(""))
	assert.Equal(t, Key("default"), Key(""))
}

func TestNewRedisStore_NilClient(t *testing.T) {
	_, err := NewRedisStore(nil, Config{}, nil)
	assert.Error(t, err)
}

func TestRedisStore_SetNamesReplaces(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetNames(ctx, "svc", []string{"a", "b"}))
	require.NoError(t, store.SetNames(ctx, "svc", []string{"c"}))

	names, err := store.GetNames(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"c": {}}, names)

	members, err := mr.SMembers("svc#metric_names")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, members)
}

func TestRedisStore_SetNamesEmptyClears(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetNames(ctx, "svc", []string{"a"}))
	require.NoError(t, store.SetNames(ctx, "svc", nil))

	assert.False(t, mr.Exists("svc#metric_names"))
	names, err := store.GetNames(ctx, "svc")
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func TestRedisStore_SetNamesRejectsBlank(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetNames(ctx, "svc", []string{"cpu.usage"}))

	for _, names := range [][]string{{"a", ""}, {"  ", "b"}, {"\t"}} {
		err := store.SetNames(ctx, "svc", names)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}

	names, err := store.GetNames(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"cpu.usage": {}}, names)
}

func TestRedisStore_SetNamesDuplicatesCollapse(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetNames(ctx, "svc", []string{"a", "b", "a"}))

	names, err := store.GetNames(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"a": {}, "b": {}}, names)
}

func TestRedisStore_SetNamesAbsentNamespace(t *testing.T) {
	store, _ := newTestStore(t)
	assert.NoError(t, store.SetNames(context.Background(), "never-seen", nil))
}

func TestRedisStore_DefaultNamespace(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetNames(ctx, "", []string{"cpu.usage"}))

	ok, err := store.IsMember(ctx, "default", "cpu.usage")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("default#metric_names"))
}

func TestRedisStore_NamespaceIsolation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddName(ctx, "A", "x"))

	ok, err := store.IsMember(ctx, "B", "x")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.IsMember(ctx, "A", "x")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_AddNameRejectsEmpty(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"", "   "} {
		err := store.AddName(ctx, "svc", name)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.ErrorIs(t, err, sanitize.ErrValidation)
	}
}

func TestRedisStore_InvalidNamespace(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.IsMember(ctx, "svc\x00", "x")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = store.GetNames(ctx, "svc\x01")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRedisStore_GetNamesUnknownNamespace(t *testing.T) {
	store, _ := newTestStore(t)

	names, err := store.GetNames(context.Background(), "unknown")
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func TestRedisStore_BackendErrorPropagates(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	mr.SetError("ERR backend unavailable")

	_, err := store.IsMember(ctx, "svc", "x")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidArgument))
	assert.Contains(t, err.Error(), `namespace "svc"`)

	_, err = store.GetNames(ctx, "svc")
	assert.Error(t, err)
}

func TestRedisStore_ConcurrentReplaceIsAtomic(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sets := [][]string{
		{"a1", "a2", "a3"},
		{"b1", "b2", "b3"},
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.SetNames(ctx, "svc", sets[i%2]))
		}(i)
	}
	wg.Wait()

	names, err := store.GetNames(ctx, "svc")
	require.NoError(t, err)
	require.Len(t, names, 3)

	prefix := ""
	for n := range names {
		if prefix == "" {
			prefix = n[:1]
		}
		assert.Equal(t, prefix, n[:1], fmt.Sprintf("mixed set after concurrent replace: %v", names))
	}
}

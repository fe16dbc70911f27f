package prefs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, KeyActiveWishlistID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, KeyActiveWishlistID, "w1"))
	v, ok, err := kv.Get(ctx, KeyActiveWishlistID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "w1", v)

	require.NoError(t, kv.Remove(ctx, KeyActiveWishlistID))
	_, ok, err = kv.Get(ctx, KeyActiveWishlistID)
	require.NoError(t, err)
	assert.False(t, ok)

	// Removing an absent key is not an error.
	require.NoError(t, kv.Remove(ctx, "missing"))
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemoryKV())
}

func TestFileKV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.toml")
	kv, err := NewFileKV(path)
	require.NoError(t, err)
	exerciseKV(t, kv)
}

func TestFileKV_SharedBetweenInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	a, err := NewFileKV(path)
	require.NoError(t, err)
	b, err := NewFileKV(path)
	require.NoError(t, err)

	require.NoError(t, a.Set(context.Background(), KeyGuestSessionID, "guest-1"))
	v, ok, err := b.Get(context.Background(), KeyGuestSessionID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "guest-1", v)
}

func TestFileKV_DefaultPathUnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	kv, err := NewFileKV("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local", "state", "storefront", "state.toml"), kv.Path())
}

func TestFileKV_CorruptFileSurfacesError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	require.NoError(t, os.WriteFile(path, []byte("= = ="), 0o600))
	kv, err := NewFileKV(path)
	require.NoError(t, err)

	_, _, err = kv.Get(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse state")
}

func TestRedisKV(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	kv := NewRedisKV(client, "kiosk-1")
	hash := "storefront:prefs:kiosk-1"

	t.Run("get missing", func(t *testing.T) {
		mock.ExpectHGet(hash, KeyActiveWishlistID).RedisNil()
		_, ok, err := kv.Get(ctx, KeyActiveWishlistID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set and get", func(t *testing.T) {
		mock.ExpectHSet(hash, KeyActiveWishlistID, "w9").SetVal(1)
		require.NoError(t, kv.Set(ctx, KeyActiveWishlistID, "w9"))

		mock.ExpectHGet(hash, KeyActiveWishlistID).SetVal("w9")
		v, ok, err := kv.Get(ctx, KeyActiveWishlistID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "w9", v)
	})

	t.Run("remove", func(t *testing.T) {
		mock.ExpectHDel(hash, KeyActiveWishlistID).SetVal(1)
		require.NoError(t, kv.Remove(ctx, KeyActiveWishlistID))
	})

	t.Run("error wraps", func(t *testing.T) {
		boom := errors.New("connection refused")
		mock.ExpectHGet(hash, KeyGuestSessionID).SetErr(boom)
		_, _, err := kv.Get(ctx, KeyGuestSessionID)
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, redis.Nil)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFileKV_WritesPrivateFileInNewDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state", "nested")
	path := filepath.Join(dir, "state.toml")
	kv, err := NewFileKV(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, KeyAccessToken, "tok"))
	require.NoError(t, kv.Set(ctx, KeyRefreshToken, "ref"))
	require.NoError(t, kv.Remove(ctx, KeyAccessToken))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	v, ok, err := kv.Get(ctx, KeyRefreshToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ref", v)
}

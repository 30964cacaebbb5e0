package blockio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheReadWriteRoundTrip(t *testing.T) {
	backing := NewMemoryBacking(4096 * 4)
	cache := NewCache(backing, 4096)

	buf, err := cache.Get(0)
	require.NoError(t, err)
	copy(buf.Data(), []byte("hello block"))
	buf.Dirty()
	require.NoError(t, buf.Write())
	buf.Release()

	buf2, err := cache.Read(0)
	require.NoError(t, err)
	require.Equal(t, "hello block", string(buf2.Data()[:11]))
	buf2.Release()
}

func TestCacheInvalidate(t *testing.T) {
	backing := NewMemoryBacking(4096 * 2)
	cache := NewCache(backing, 4096)

	buf, err := cache.Get(1)
	require.NoError(t, err)
	copy(buf.Data(), []byte("stale"))
	buf.Invalidate()

	buf2, err := cache.Read(1)
	require.NoError(t, err)
	require.NotEqual(t, "stale", string(buf2.Data()[:5]))
	buf2.Release()
}

func TestCacheDelayedWriteNeedsFlush(t *testing.T) {
	backing := NewMemoryBacking(4096 * 2)
	cache := NewCache(backing, 4096)

	buf, err := cache.Get(0)
	require.NoError(t, err)
	copy(buf.Data(), []byte("delayed"))
	buf.DirtyDelayed()
	buf.Release()

	require.NoError(t, cache.Flush())

	raw := make([]byte, 7)
	_, err = backing.ReadAt(raw, 0)
	require.NoError(t, err)
	require.Equal(t, "delayed", string(raw))
}

func TestCacheSingleLeasePerBlock(t *testing.T) {
	backing := NewMemoryBacking(4096)
	cache := NewCache(backing, 4096)

	buf, err := cache.Get(0)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		b2, err := cache.Read(0)
		require.NoError(t, err)
		b2.Release()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second lease acquired while first still held")
	default:
	}
	buf.Release()
	<-done
}

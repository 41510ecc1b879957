package safemap

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSafeMap(t *testing.T) {
	m := NewSafeMap[uint32, string]()
	require.NotNil(t, m)
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.Values())
}

func TestSafeMap_StoreLoad(t *testing.T) {
	m := NewSafeMap[uint32, string]()

	t.Run("store and load", func(t *testing.T) {
		m.Store(1, "a")
		v, ok := m.Load(1)
		assert.True(t, ok)
		assert.Equal(t, "a", v)
	})

	t.Run("overwrite keeps one entry", func(t *testing.T) {
		m.Store(1, "b")
		v, _ := m.Load(1)
		assert.Equal(t, "b", v)
		assert.Equal(t, 1, m.Len())
	})

	t.Run("missing key", func(t *testing.T) {
		v, ok := m.Load(2)
		assert.False(t, ok)
		assert.Empty(t, v)
	})
}

func TestSafeMap_Delete(t *testing.T) {
	m := NewSafeMap[uint32, string]()
	m.Store(1, "a")
	m.Store(2, "b")

	m.Delete(1)
	m.Delete(42)

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, []string{"b"}, m.Values())
}

func TestSafeMap_LoadAndDelete(t *testing.T) {
	m := NewSafeMap[uint32, string]()
	m.Store(7, "x")

	v, ok := m.LoadAndDelete(7)
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = m.LoadAndDelete(7)
	assert.False(t, ok)
}

func TestSafeMap_LoadAndDeleteConcurrent(t *testing.T) {
	const keys, workers = 100, 8

	m := NewSafeMap[uint32, uint32]()
	for i := range uint32(keys) {
		m.Store(i, i)
	}

	var (
		wg      sync.WaitGroup
		removed atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range uint32(keys) {
				if _, ok := m.LoadAndDelete(i); ok {
					removed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(keys), removed.Load())
	assert.Equal(t, 0, m.Len())
}

func TestSafeMap_ValuesIsSnapshot(t *testing.T) {
	m := NewSafeMap[uint32, int]()
	for i := range uint32(5) {
		m.Store(i, int(i))
	}

	for _, v := range m.Values() {
		m.Delete(uint32(v))
	}

	assert.Equal(t, 0, m.Len())
}

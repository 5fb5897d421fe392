package handle

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoadDelete(t *testing.T) {
	var tbl Table

	v := &struct{ n int }{n: 7}
	h, err := tbl.New(v)
	require.NoError(t, err)
	assert.NotZero(t, h)

	got, ok := tbl.Load(h)
	require.True(t, ok)
	assert.Same(t, v, got)

	require.NoError(t, tbl.Delete(h))
	_, ok = tbl.Load(h)
	assert.False(t, ok)

	assert.ErrorIs(t, tbl.Delete(h), ErrInvalidHandle, "second delete must fail")

	st := tbl.Stats()
	assert.Equal(t, 0, st.Live)
	assert.Equal(t, uint64(1), st.Allocated)
	assert.Equal(t, uint64(1), st.Released)
}

func TestZeroHandle(t *testing.T) {
	var tbl Table
	_, ok := tbl.Load(0)
	assert.False(t, ok)
	assert.ErrorIs(t, tbl.Delete(0), ErrInvalidHandle)
}

func TestReusedSlotRejectsOldHandle(t *testing.T) {
	var tbl Table

	h1, err := tbl.New("first")
	require.NoError(t, err)
	require.NoError(t, tbl.Delete(h1))

	h2, err := tbl.New("second")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	_, ok := tbl.Load(h1)
	assert.False(t, ok, "handle from a previous generation must not resolve")
	assert.ErrorIs(t, tbl.Delete(h1), ErrInvalidHandle)

	v, ok := tbl.Load(h2)
	require.True(t, ok)
	assert.Equal(t, "second", v)
}

func TestLoadDoesNotAllocate(t *testing.T) {
	var tbl Table
	h, err := tbl.New(&struct{}{})
	require.NoError(t, err)

	allocs := testing.AllocsPerRun(100, func() {
		if _, ok := tbl.Load(h); !ok {
			t.Fatal("lost handle")
		}
	})
	assert.Zero(t, allocs)
}

func TestConcurrentLoadDuringGrowth(t *testing.T) {
	var tbl Table
	h, err := tbl.New(42)
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			v, ok := tbl.Load(h)
			if !ok || v.(int) != 42 {
				t.Error("handle lost during growth")
				return
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		_, err := tbl.New(i)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 1001, tbl.Stats().Live)
}

func TestOldHandleNeverResolvesAfterManyReuses(t *testing.T) {
	var tbl Table

	first, err := tbl.New("first")
	require.NoError(t, err)
	require.NoError(t, tbl.Delete(first))

	seen := map[Handle]bool{first: true}
	for i := 0; i < 1000; i++ {
		h, err := tbl.New(i)
		require.NoError(t, err)
		require.False(t, seen[h], "handle %#x issued twice", h)
		seen[h] = true

		_, ok := tbl.Load(first)
		require.False(t, ok, "released handle resolved after %d reuses", i+1)
		require.NoError(t, tbl.Delete(h))
	}

	if genMask < 1000 {
		return // 32-bit: the slot retires before the loop ends
	}
	idx, _ := first.split()
	for h := range seen {
		i, _ := h.split()
		assert.Equal(t, idx, i, "every cycle reuses the same slot")
	}
}

func TestSlotRetiredWhenGenerationsRunOut(t *testing.T) {
	tbl := Table{maxGen: 3}

	var old []Handle
	for i := 0; i < 3; i++ {
		h, err := tbl.New(i)
		require.NoError(t, err)
		old = append(old, h)
		require.NoError(t, tbl.Delete(h))
	}
	assert.Equal(t, 1, tbl.Stats().Retired)

	h, err := tbl.New("fresh")
	require.NoError(t, err)
	idx, gen := h.split()
	assert.Equal(t, uint32(1), idx, "the retired slot is not reused")
	assert.Equal(t, uint64(1), gen)

	for _, o := range old {
		_, ok := tbl.Load(o)
		assert.False(t, ok)
	}
	v, ok := tbl.Load(h)
	require.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestGrowthIsGeometric(t *testing.T) {
	var tbl Table

	handles := make([]Handle, 0, 100)
	caps := map[int]bool{}
	for i := 0; i < 100; i++ {
		h, err := tbl.New(i)
		require.NoError(t, err)
		handles = append(handles, h)
		caps[cap(*tbl.slots.Load())] = true
	}
	assert.Equal(t, map[int]bool{8: true, 16: true, 32: true, 64: true, 128: true}, caps)

	for i, h := range handles {
		v, ok := tbl.Load(h)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	st := tbl.Stats()
	assert.Equal(t, 100, st.Live)
	assert.Equal(t, uint64(100), st.Allocated)
	assert.Zero(t, st.Released)
}

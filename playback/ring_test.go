package playback

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRingRoundsUp(t *testing.T) {
	tests := []struct {
		size int
		want int
	}{
		{0, 1},
		{1, 1},
		{3, 4},
		{1024, 1024},
		{1025, 2048},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewRing(tt.size).Cap(), "size %d", tt.size)
	}
}

func TestRingWriteRead(t *testing.T) {
	r := NewRing(4)

	assert.Equal(t, 3, r.Write([]float32{1, 2, 3}))
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 1, r.Free())

	// only one slot left
	assert.Equal(t, 1, r.Write([]float32{4, 5}))
	assert.Equal(t, 0, r.Free())

	out := make([]float32, 2)
	require.Equal(t, 2, r.Read(out))
	assert.Equal(t, []float32{1, 2}, out)

	// wraps around the end of the buffer
	assert.Equal(t, 2, r.Write([]float32{6, 7}))
	out = make([]float32, 8)
	n := r.Read(out)
	assert.Equal(t, []float32{3, 4, 6, 7}, out[:n])
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.Read(out))
}

func TestRingConcurrentOrder(t *testing.T) {
	r := NewRing(64)
	const total = 10000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		next := float32(0)
		block := make([]float32, 7)
		for next < total {
			n := 0
			for i := range block {
				if next+float32(i) >= total {
					break
				}
				block[i] = next + float32(i)
				n++
			}
			w := r.Write(block[:n])
			next += float32(w)
		}
	}()

	got := make([]float32, 0, total)
	buf := make([]float32, 5)
	for len(got) < total {
		n := r.Read(buf)
		got = append(got, buf[:n]...)
	}
	wg.Wait()

	for i, v := range got {
		if v != float32(i) {
			t.Fatalf("sample %d = %v, want %d", i, v, i)
		}
	}
}

func TestRingReadDoesNotAllocate(t *testing.T) {
	r := NewRing(256)
	in := make([]float32, 128)
	out := make([]float32, 128)
	allocs := testing.AllocsPerRun(100, func() {
		r.Write(in)
		r.Read(out)
	})
	assert.Zero(t, allocs)
}

package playback

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResampler(t *testing.T) {
	tests := []struct {
		name      string
		in, out   uint32
		expectErr bool
	}{
		{"valid", 44100, 48000, false},
		{"same_rate", 48000, 48000, false},
		{"zero_input_rate", 0, 48000, true},
		{"zero_output_rate", 48000, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewResampler(tt.in, tt.out)
			if tt.expectErr {
				assert.Error(t, err)
				assert.Nil(t, r)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.in, r.InputRate())
			assert.Equal(t, tt.out, r.OutputRate())
		})
	}
}

func TestResamplePassthrough(t *testing.T) {
	r, err := NewResampler(48000, 48000)
	require.NoError(t, err)

	in := []float32{0.1, 0.2, 0.3}
	assert.Equal(t, in, r.Resample(nil, in))
	assert.Empty(t, r.Resample(nil, nil))
}

func TestResampleDownsampleByTwo(t *testing.T) {
	r, err := NewResampler(48000, 24000)
	require.NoError(t, err)

	out := r.Resample(nil, []float32{0, 1, 2, 3, 4, 5})
	assert.Equal(t, []float32{0, 2, 4}, out)

	// the next block continues at the same phase
	out = r.Resample(nil, []float32{6, 7, 8, 9})
	assert.Equal(t, []float32{6, 8}, out)
}

func TestResampleUpsampleInterpolatesAcrossBlocks(t *testing.T) {
	r, err := NewResampler(24000, 48000)
	require.NoError(t, err)

	out := r.Resample(nil, []float32{0, 2})
	assert.Equal(t, []float32{0, 1}, out)

	// the sample between the blocks is interpolated from the previous
	// block's last value
	out = r.Resample(nil, []float32{4, 6})
	assert.Equal(t, []float32{2, 3, 4, 5}, out)
}

func TestResampleRatePreserved(t *testing.T) {
	r, err := NewResampler(44100, 48000)
	require.NoError(t, err)

	in := make([]float32, 441)
	for i := range in {
		in[i] = float32(math.Sin(float64(i) / 10))
	}
	total := 0
	for i := 0; i < 100; i++ {
		total += len(r.Resample(nil, in))
	}
	// 100 blocks of 10 ms at 44.1 kHz is one second at 48 kHz
	assert.InDelta(t, 48000, total, 2)
}

func TestResamplerReset(t *testing.T) {
	r, err := NewResampler(24000, 48000)
	require.NoError(t, err)

	r.Resample(nil, []float32{5, 5})
	r.Reset()
	out := r.Resample(nil, []float32{0, 2})
	assert.Equal(t, []float32{0, 1}, out)
}

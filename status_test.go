package jack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStatusRoundTrip encodes and decodes every combination of known status
// flags.
func TestStatusRoundTrip(t *testing.T) {
	for bits := uint32(0); bits <= uint32(allStatus); bits++ {
		if bits&^uint32(allStatus) != 0 {
			continue
		}
		s := DecodeStatus(bits)
		if s.Bits() != bits {
			t.Fatalf("DecodeStatus(0x%x).Bits() = 0x%x", bits, s.Bits())
		}
		again, ok := StatusFromBits(s.Bits())
		if !ok || again != s {
			t.Fatalf("round trip of 0x%x produced %v (ok=%v)", bits, again, ok)
		}
	}
}

func TestOptionsRoundTrip(t *testing.T) {
	for bits := uint32(0); bits <= uint32(allOptions); bits++ {
		if bits&^uint32(allOptions) != 0 {
			continue
		}
		o := DecodeOptions(bits)
		assert.Equal(t, bits, o.Bits())
		again, ok := OptionsFromBits(o.Bits())
		require.True(t, ok)
		assert.Equal(t, o, again)
	}
}

func TestDecodeStatusPanicsOnUnknownBits(t *testing.T) {
	assert.Panics(t, func() { DecodeStatus(0x2000) })
	assert.Panics(t, func() { DecodeStatus(uint32(Failure) | 0x80000000) })

	_, ok := StatusFromBits(0x2000)
	assert.False(t, ok)
}

func TestDecodeOptionsPanicsOnUnknownBits(t *testing.T) {
	assert.Panics(t, func() { DecodeOptions(0x40) })
	_, ok := OptionsFromBits(0x40)
	assert.False(t, ok)
}

func TestStatusSetOperations(t *testing.T) {
	s := Failure.Union(InitFailure)

	assert.True(t, s.Contains(Failure))
	assert.True(t, s.Contains(Failure|InitFailure))
	assert.False(t, s.Contains(Failure|ServerFailed))
	assert.True(t, s.Intersects(InitFailure|ServerFailed))
	assert.Equal(t, InitFailure, s.Intersect(InitFailure|ServerFailed))
	assert.Equal(t, Failure, s.Difference(InitFailure))
	assert.True(t, Status(0).IsEmpty())
	assert.False(t, s.IsEmpty())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "Status()", Status(0).String())
	assert.Equal(t, "Status(Failure|NameNotUnique)", (Failure | NameNotUnique).String())
	assert.Equal(t, "Status(Failure|0x4000)", (Failure | Status(0x4000)).String())
}

func TestOptionsSetOperations(t *testing.T) {
	o := NoStartServer.Union(ServerName)
	assert.True(t, o.Contains(ServerName))
	assert.False(t, o.Contains(UseExactName))
	assert.Equal(t, NoStartServer, o.Difference(ServerName))
	assert.Equal(t, ServerName, o.Intersect(ServerName|UseExactName))
	assert.Equal(t, "Options(NoStartServer|ServerName)", o.String())
}

func TestParseOptions(t *testing.T) {
	o, err := ParseOptions([]string{"nostartserver", " UseExactName ", ""})
	require.NoError(t, err)
	assert.Equal(t, NoStartServer|UseExactName, o)

	_, err = ParseOptions([]string{"bogus"})
	assert.ErrorIs(t, err, ErrUnknownOption)
}

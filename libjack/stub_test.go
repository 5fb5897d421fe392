//go:build !jack

package libjack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithoutBinding(t *testing.T) {
	b, err := New()
	assert.Nil(t, b)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, Available)
}

package random

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	t.Run("uses the given charset", func(t *testing.T) {
		s, err := String(16, CharsetDigits)
		require.NoError(t, err)
		assert.Len(t, s, 16)
		for _, r := range s {
			assert.Contains(t, CharsetDigits, string(r))
		}
	})

	t.Run("zero length", func(t *testing.T) {
		s, err := String(0, CharsetDigits)
		require.NoError(t, err)
		assert.Empty(t, s)
	})

	t.Run("empty charset falls back to upper alphanumerics", func(t *testing.T) {
		s, err := String(8, "")
		require.NoError(t, err)
		assert.Len(t, s, 8)
	})
}

func TestSerialNo(t *testing.T) {
	at := time.Date(2024, 10, 18, 9, 30, 0, 0, time.UTC)

	no, err := SerialNo(at)
	require.NoError(t, err)
	assert.Len(t, no, 20)
	assert.True(t, strings.HasPrefix(no, "20241018093000"))
	assert.NotContains(t, no, "_")
}

func TestRefundNo(t *testing.T) {
	a, err := RefundNo()
	require.NoError(t, err)
	b, err := RefundNo()
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSum(t *testing.T) {
	t.Run("Deterministic", func(t *testing.T) {
		a := Sum([]byte("hello"))
		b := Sum([]byte("hello"))
		assert.Equal(t, a, b)
	})

	t.Run("DistinctInputs", func(t *testing.T) {
		a := Sum([]byte("hello"))
		b := Sum([]byte("hello "))
		assert.NotEqual(t, a, b)
	})

	t.Run("EmptyInput", func(t *testing.T) {
		// Empty bytes hash to the fixed SHA-256 empty digest, not an error.
		f := Sum(nil)
		assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", f.String())
		assert.Equal(t, f, Sum([]byte{}))
	})
}

func TestParse(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		f := Sum([]byte("image bytes"))
		parsed, err := Parse(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, parsed)
	})

	t.Run("InvalidHex", func(t *testing.T) {
		_, err := Parse("zz")
		assert.Error(t, err)
	})

	t.Run("WrongLength", func(t *testing.T) {
		_, err := Parse("deadbeef")
		assert.Error(t, err)
	})
}

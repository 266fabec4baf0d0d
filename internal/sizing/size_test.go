package sizing

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTest = errors.New("overflow")

func TestToInt(t *testing.T) {
	t.Parallel()

	n, err := ToInt(42, errTest)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = ToInt(math.MaxUint64, errTest)
	assert.ErrorIs(t, err, errTest)
}

func TestToInt64(t *testing.T) {
	t.Parallel()

	n, err := ToInt64(math.MaxInt64, errTest)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), n)

	_, err = ToInt64(math.MaxInt64+1, errTest)
	assert.ErrorIs(t, err, errTest)
}

func TestCheckLimit(t *testing.T) {
	t.Parallel()

	assert.NoError(t, CheckLimit(10, 0, errTest), "zero limit disables the check")
	assert.NoError(t, CheckLimit(10, 10, errTest))
	assert.ErrorIs(t, CheckLimit(11, 10, errTest), errTest)
}

func TestMulFits(t *testing.T) {
	t.Parallel()

	assert.True(t, MulFits(0, math.MaxUint64))
	assert.True(t, MulFits(1<<32-1, 1<<32))
	assert.False(t, MulFits(1<<32, 1<<32))
}

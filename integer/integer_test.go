package integer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddNoOverflow(t *testing.T) {
	c := Add(2, 3)
	assert.False(t, c.Overflowed)
	assert.EqualValues(t, 5, c.Value)
}

func TestAddOverflow(t *testing.T) {
	assert.True(t, Add(math.MaxInt64, 1).Overflowed)
	assert.True(t, Add(math.MinInt64, -1).Overflowed)
}

func TestSubOverflow(t *testing.T) {
	assert.True(t, Sub(math.MinInt64, 1).Overflowed)
	assert.False(t, Sub(10, 3).Overflowed)
}

func TestMulOverflow(t *testing.T) {
	assert.True(t, Mul(math.MaxInt64, 2).Overflowed)
	assert.True(t, Mul(math.MinInt64, -1).Overflowed)
	assert.False(t, Mul(6, 7).Overflowed)
	assert.EqualValues(t, 42, Mul(6, 7).Value)
}

func TestMulByZeroNeverOverflows(t *testing.T) {
	assert.False(t, Mul(0, math.MaxInt64).Overflowed)
	assert.False(t, Mul(math.MinInt64, 0).Overflowed)
}

func TestNarrow(t *testing.T) {
	n, ok := Narrow(42)
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	_, ok = Narrow(math.MaxInt64)
	assert.False(t, ok)
}

func TestAddLengthsShortCircuits(t *testing.T) {
	c := AddLengths(5, 10, math.MaxInt64, 1)
	assert.True(t, c.Overflowed)
}

func TestAddLengthsSums(t *testing.T) {
	c := AddLengths(1, 2, 3, 4)
	assert.False(t, c.Overflowed)
	assert.EqualValues(t, 10, c.Value)
}

// exhaustive-ish property: every a,b pair either gives the exact
// mathematical result or sets the flag (spec.md §8 invariant 12).
func TestAddSubMulExactOrFlagged(t *testing.T) {
	vals := []int64{0, 1, -1, 2, -2, math.MaxInt64, math.MinInt64, math.MaxInt64 - 1, math.MinInt64 + 1}
	for _, a := range vals {
		for _, b := range vals {
			if c := Add(a, b); !c.Overflowed {
				assert.Equal(t, a+b, c.Value)
			}
			if c := Sub(a, b); !c.Overflowed {
				assert.Equal(t, a-b, c.Value)
			}
			if c := Mul(a, b); !c.Overflowed {
				assert.Equal(t, a*b, c.Value)
			}
		}
	}
}

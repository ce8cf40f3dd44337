package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntsKnownSequence(t *testing.T) {
	assert.Equal(t, []int{40, 64, 63, 47, 60}, Ints(100, 5, 735025))
}

func TestIntsRawState(t *testing.T) {
	// With max at the modulus bound the raw generator state comes through.
	got := Ints(lcgM-1, 3, 1)
	assert.Equal(t, []int{1103527590, 377401575, 662824084}, got)
}

func TestIntsBounds(t *testing.T) {
	for _, v := range Ints(9, 1000, 64798) {
		assert.GreaterOrEqual(t, v, 0)
		assert.LessOrEqual(t, v, 9)
	}
}

func TestIntsDeterministic(t *testing.T) {
	assert.Equal(t, Ints(500, 20, 72594), Ints(500, 20, 72594))
	assert.NotEqual(t, Ints(500, 20, 72594), Ints(500, 20, 47619))
}

func TestIntsEmpty(t *testing.T) {
	assert.Nil(t, Ints(10, 0, 1))
	assert.Nil(t, Ints(10, -3, 1))
}

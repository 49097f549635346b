package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0, Percentage(10, 0))
	assert.Equal(t, 0, Percentage(0, 10))
	assert.Equal(t, 67, Percentage(2, 3))
	assert.Equal(t, 50, Percentage(1, 2))
	assert.Equal(t, 120, Percentage(12, 10))
}

func TestFloatRound(t *testing.T) {
	assert.Equal(t, 66.67, FloatRound(66.6666, 2))
	assert.Equal(t, 3.0, FloatRound(2.5, 0))
}

func TestMillify(t *testing.T) {
	assert.Equal(t, "950", Millify(950, 1))
	assert.Equal(t, "1.5K", Millify(1500, 1))
	assert.Equal(t, "2M", Millify(2_000_000, 1))
	assert.Equal(t, "-1.2K", Millify(-1234, 1))
}

func TestPlural(t *testing.T) {
	assert.Equal(t, "1 person", Plural(1, "person", "people"))
	assert.Equal(t, "0 people", Plural(0, "person", "people"))
}

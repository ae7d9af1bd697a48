package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRandomID(t *testing.T) {
	a := NewRandomID()
	b := NewRandomID()

	assert.NotEqual(t, a, b)
	assert.True(t, IsValidID(a))
	assert.True(t, IsValidID(b))
}

func TestIsValidID(t *testing.T) {
	assert.True(t, IsValidID("123e4567-e89b-12d3-a456-426614174000"))
	assert.False(t, IsValidID(""))
	assert.False(t, IsValidID("not-a-uuid"))
}

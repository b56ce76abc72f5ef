package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateID(t *testing.T) {
	a := GenerateID("user")
	b := GenerateID("user")
	assert.True(t, strings.HasPrefix(a, "user_"))
	assert.NotEqual(t, a, b)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", TruncateString("abc", 10))
	assert.Equal(t, "v=0 o=-...", TruncateString("v=0 o=- 4611731400430051336 2", 10))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty("  \t"))
	assert.False(t, IsEmpty(" x "))
}

package shortid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	a := New()
	b := New()

	assert.Len(t, a, 22)
	assert.NotEqual(t, a, b)
	// URL-safe: no padding, no characters that need escaping
	assert.NotContains(t, a, "=")
	assert.NotContains(t, a, "/")
	assert.NotContains(t, a, "+")
}

package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	p, ok := Parse(" prod ")
	assert.True(t, ok)
	assert.Equal(t, PROD, p)

	p, ok = Parse("staging")
	assert.False(t, ok)
	assert.Equal(t, DEV, p)
}

func TestInitProfileReadsEnvironment(t *testing.T) {
	previous := Current
	t.Cleanup(func() { Current = previous })

	t.Setenv("PROFILE", "test")
	InitProfile()

	assert.Equal(t, TEST, Current)
}

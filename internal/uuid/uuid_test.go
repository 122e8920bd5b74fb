package uuid

import (
	"testing"

	guuid "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New()
		_, err := guuid.Parse(id)
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestSequence(t *testing.T) {
	next := Sequence("prod")
	assert.Equal(t, "prod-1", next())
	assert.Equal(t, "prod-2", next())
}

func TestOrDefault(t *testing.T) {
	assert.NotEmpty(t, OrDefault(nil)())
	assert.Equal(t, "x-1", OrDefault(Sequence("x"))())
}

package ingest

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventID(t *testing.T) {
	shape := regexp.MustCompile(`^\{[A-Z0-9]{4}-[A-Z0-9]{8}-[A-Z0-9]{8}\}$`)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id, err := NewEventID()
		require.NoError(t, err)
		assert.Regexp(t, shape, id)
		seen[id] = true
	}
	assert.Len(t, seen, 200)
}

package orchestrator_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/videogen/orchestrator/internal/orchestrator"
)

func TestRegistry_TrackAndCancel(t *testing.T) {
	reg, err := orchestrator.NewRegistry(4)
	require.NoError(t, err)

	id := uuid.New()
	_, cancel := context.WithCancel(context.Background())
	cancelled := false
	reg.Track(id, func() { cancelled = true; cancel() })

	handle, ok := reg.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, id, handle.ID)

	assert.True(t, reg.Cancel(id))
	assert.True(t, cancelled)
	assert.False(t, reg.Cancel(uuid.New()))
}

func TestRegistry_EvictsOldestBeyondCapacity(t *testing.T) {
	reg, err := orchestrator.NewRegistry(2)
	require.NoError(t, err)

	first := uuid.New()
	reg.Track(first, func() {})
	reg.Track(uuid.New(), func() {})
	reg.Track(uuid.New(), func() {})

	assert.Equal(t, 2, reg.Len())
	_, ok := reg.Lookup(first)
	assert.False(t, ok, "oldest handle should be evicted")
}

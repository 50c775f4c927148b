package sidechannel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffProgression(t *testing.T) {
	t.Parallel()

	b := newBackoff(100*time.Millisecond, 400*time.Millisecond)

	// First attempt is immediate.
	require.Equal(t, time.Duration(0), b.Next())
	require.Equal(t, 100*time.Millisecond, b.Next())
	require.Equal(t, 200*time.Millisecond, b.Next())
	require.Equal(t, 400*time.Millisecond, b.Next())
	require.Equal(t, 400*time.Millisecond, b.Next())

	b.Reset()
	require.Equal(t, time.Duration(0), b.Next())
	require.Equal(t, 100*time.Millisecond, b.Next())
}

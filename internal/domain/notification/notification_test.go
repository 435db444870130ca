package notification

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextAttemptDelayDoublesAndCaps(t *testing.T) {
	require.Equal(t, BackoffBase, NextAttemptDelay(1))
	require.Equal(t, 2*BackoffBase, NextAttemptDelay(2))
	require.Equal(t, 4*BackoffBase, NextAttemptDelay(3))
	require.Equal(t, BackoffCap, NextAttemptDelay(10))
}

func TestNextAttemptDelayClampsBelowOne(t *testing.T) {
	require.Equal(t, BackoffBase, NextAttemptDelay(0))
	require.Equal(t, BackoffBase, NextAttemptDelay(-3))
}

func TestBackoffNeverExceedsCapWithinMaxAttempts(t *testing.T) {
	for n := 1; n <= MaxAttempts; n++ {
		require.LessOrEqual(t, NextAttemptDelay(n), BackoffCap)
	}
}

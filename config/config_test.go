package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultOptionsAreSane(t *testing.T) {
	opts := DefaultOptions()
	require.True(t, opts.EnableCustomScan)
	require.Greater(t, opts.CreateIndexParallelism, 0)
	require.Greater(t, opts.MaxMergeableSegmentSize, int64(0))
	require.NotNil(t, opts.MergeStrategy)
}

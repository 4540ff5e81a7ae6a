package requests

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDedupCache(t *testing.T) {
	d := NewDedupCache()
	fp := Request{RequestType: "maintenance", Description: "need extra towels"}.Fingerprint()
	require.Equal(t, Fingerprint("maintenance:need extra towels"), fp)

	require.Equal(t, Fresh, d.CheckAndMark(fp))
	require.Equal(t, Duplicate, d.CheckAndMark(fp))
	require.True(t, d.Contains(fp))

	// case-sensitive
	other := Request{RequestType: "maintenance", Description: "Need extra towels"}.Fingerprint()
	require.Equal(t, Fresh, d.CheckAndMark(other))
	require.Equal(t, 2, d.Len())

	d.Reset()
	require.Equal(t, 0, d.Len())
	require.Equal(t, Fresh, d.CheckAndMark(fp))
}

func TestDedupCacheZeroValue(t *testing.T) {
	var d DedupCache
	require.False(t, d.Contains("x:y"))
	require.Equal(t, Fresh, d.CheckAndMark("x:y"))
	require.Equal(t, Duplicate, d.CheckAndMark("x:y"))
}

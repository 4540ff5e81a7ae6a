package usage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHumanTokens(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{999, "999"},
		{1000, "1K"},
		{10_000, "10K"},
		{12_000, "12K"},
		{1_000_000, "1M"},
		{2_500_000, "2.5M"},
	}

	for _, tc := range tests {
		require.Equal(t, tc.want, HumanTokens(tc.in), "HumanTokens(%d)", tc.in)
	}
}

func TestGroupedInt(t *testing.T) {
	require.Equal(t, "0", GroupedInt(0))
	require.Equal(t, "999", GroupedInt(999))
	require.Equal(t, "1,000", GroupedInt(1000))
	require.Equal(t, "12,345", GroupedInt(12_345))
	require.Equal(t, "1,000,000", GroupedInt(1_000_000))
	require.Equal(t, "-1,200", GroupedInt(-1200))
}

func TestFormatStatistics(t *testing.T) {
	out := FormatStatistics(Counters{RequestsMade: 3, TokensConsumed: 1500, PromptTokens: 1200, CompletionTokens: 300})
	require.Contains(t, out, "Session Statistics")
	require.Contains(t, out, "**Total Tokens**: 1,500")
	require.Contains(t, out, "**Prompt Tokens**: 1,200")
	require.Contains(t, out, "**API Calls**: 3")
}

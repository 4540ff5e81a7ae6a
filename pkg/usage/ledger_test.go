package usage

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestLedgerReserveCommitsWithinBudget(t *testing.T) {
	l := NewLedger(Budget{RequestLimit: 3, TokenLimit: 100})

	_, err := l.Reserve(40)
	require.NoError(t, err)
	_, err = l.Reserve(40)
	require.NoError(t, err)

	c := l.Snapshot()
	require.Equal(t, 2, c.RequestsMade)
	require.Equal(t, 80, c.TokensConsumed)
}

func TestLedgerBlocksByRequestCount(t *testing.T) {
	l := NewLedger(Budget{RequestLimit: 2, TokenLimit: 1000})
	_, err := l.Reserve(1)
	require.NoError(t, err)
	_, err = l.Reserve(1)
	require.NoError(t, err)

	_, err = l.Reserve(1)
	require.Error(t, err)
	require.True(t, IsLimitExceeded(err))
	require.Contains(t, err.Error(), LimitExceededMarker)
	require.Contains(t, err.Error(), "request_limit")
	require.Equal(t, 2, l.Snapshot().RequestsMade)
}

func TestLedgerBlocksByTokens(t *testing.T) {
	l := NewLedger(Budget{RequestLimit: 10, TokenLimit: 50})
	_, err := l.Reserve(30)
	require.NoError(t, err)

	err = l.Check(21)
	require.True(t, IsLimitExceeded(err))
	require.Contains(t, err.Error(), "token_limit")

	_, err = l.Reserve(21)
	require.True(t, IsLimitExceeded(err))
	require.Equal(t, Counters{RequestsMade: 1, TokensConsumed: 30}, l.Snapshot())
}

func TestLedgerCheckDoesNotCommit(t *testing.T) {
	l := NewLedger(Budget{RequestLimit: 1, TokenLimit: 10})
	require.NoError(t, l.Check(10))
	require.NoError(t, l.Check(10))
	require.Equal(t, Counters{}, l.Snapshot())
}

func TestLedgerSettleChargesOverrunAndCaps(t *testing.T) {
	l := NewLedger(Budget{RequestLimit: 10, TokenLimit: 100})
	res, err := l.Reserve(20)
	require.NoError(t, err)

	require.NoError(t, l.Settle(res, Tokens{Prompt: 10, Completion: 5}))
	c := l.Snapshot()
	require.Equal(t, 20, c.TokensConsumed)
	require.Equal(t, 10, c.PromptTokens)
	require.Equal(t, 5, c.CompletionTokens)

	res, err = l.Reserve(10)
	require.NoError(t, err)
	require.NoError(t, l.Settle(res, Tokens{Prompt: 30, Completion: 10}))
	require.Equal(t, 60, l.Snapshot().TokensConsumed)

	res, err = l.Reserve(10)
	require.NoError(t, err)
	err = l.Settle(res, Tokens{Prompt: 80})
	require.True(t, IsLimitExceeded(err))
	require.Equal(t, 100, l.Snapshot().TokensConsumed)
}

func TestLedgerCountersNeverExceedBudget(t *testing.T) {
	b := Budget{RequestLimit: 4, TokenLimit: 90}
	l := NewLedger(b)
	for i := 0; i < 20; i++ {
		res, err := l.Reserve(i * 7)
		if err != nil {
			require.True(t, IsLimitExceeded(err))
			continue
		}
		_ = l.Settle(res, Tokens{Prompt: i * 9})
	}
	c := l.Snapshot()
	require.LessOrEqual(t, c.RequestsMade, b.RequestLimit)
	require.LessOrEqual(t, c.TokensConsumed, b.TokenLimit)
}

func TestIsLimitExceededUnwraps(t *testing.T) {
	l := NewLedger(Budget{RequestLimit: 1, TokenLimit: 1})
	_, err := l.Reserve(5)
	wrapped := errors.Wrap(err, "delegating")
	require.True(t, IsLimitExceeded(wrapped))
	require.False(t, IsLimitExceeded(errors.New("boom")))
	require.True(t, strings.HasPrefix(err.Error(), LimitExceededMarker))
}

func TestNewLedgerAppliesDefaults(t *testing.T) {
	l := NewLedger(Budget{})
	require.Equal(t, DefaultBudget(), l.Budget())
	reqs, toks := l.Remaining()
	require.Equal(t, 10, reqs)
	require.Equal(t, 12000, toks)
}

func TestByteEstimate(t *testing.T) {
	require.Equal(t, 0, ByteEstimate(""))
	require.Equal(t, 1, ByteEstimate("hi"))
	require.Equal(t, 3, ByteEstimate("twelve bytes"))
}

func TestLedgerCheckCostCoversSeveralCalls(t *testing.T) {
	l := NewLedger(Budget{RequestLimit: 4, TokenLimit: 100})
	_, err := l.Reserve(10)
	require.NoError(t, err)
	_, err = l.Reserve(10)
	require.NoError(t, err)

	require.NoError(t, l.CheckCost(2, 80))

	err = l.CheckCost(3, 10)
	require.True(t, IsLimitExceeded(err))
	require.Contains(t, err.Error(), "request_limit would be 5 of 4")

	err = l.CheckCost(2, 81)
	require.True(t, IsLimitExceeded(err))
	require.Contains(t, err.Error(), "token_limit")

	require.Equal(t, 2, l.Snapshot().RequestsMade)
}

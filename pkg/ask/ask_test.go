package ask

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestBoundedTimesOut(t *testing.T) {
	c := &Channel{}
	start := time.Now()
	got := Bounded(context.Background(), c, "Which restaurant?", 20*time.Millisecond)
	require.Equal(t, NoResponse, got)
	require.Less(t, time.Since(start), time.Second)
	require.False(t, c.Pending())
}

func TestBoundedChannelAnswer(t *testing.T) {
	c := &Channel{}
	c.Notify = func(string) {
		go c.Answer("  the Italian one ")
	}
	require.Equal(t, "the Italian one", Bounded(context.Background(), c, "Which restaurant?", time.Second))
	require.False(t, c.Answer("late"))
}

func TestBoundedErrorsAndEmpty(t *testing.T) {
	require.Equal(t, NoResponse, Bounded(context.Background(), nil, "q", time.Second))
	require.Equal(t, NoResponse, Bounded(context.Background(), Func(func(context.Context, string) (string, error) {
		return "", errors.New("closed")
	}), "q", time.Second))
	require.Equal(t, NoResponse, Bounded(context.Background(), Func(func(context.Context, string) (string, error) {
		return " ", nil
	}), "q", time.Second))
}

func TestTerminalAsk(t *testing.T) {
	var out bytes.Buffer
	term := &Terminal{Reader: strings.NewReader("room 204\n"), Writer: &out}
	got := Bounded(context.Background(), term, "Which room?", time.Second)
	require.Equal(t, "room 204", got)
	require.Contains(t, out.String(), "Which room?")
}

package cmds

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/concierge/pkg/config"
	"github.com/go-go-golems/concierge/pkg/coordinator"
	"github.com/go-go-golems/concierge/pkg/persistence/chatstore"
	"github.com/go-go-golems/concierge/pkg/session"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	s := config.Default()
	s.AskTimeout = time.Second
	s.TurnsDB = filepath.Join(t.TempDir(), "turns.db")
	app, err := NewApp(s)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestChatLoopProcessesLines(t *testing.T) {
	app := newTestApp(t)
	in := strings.NewReader("I need extra towels\nI need extra towels\nstats\nreset\nquit\n")
	var out bytes.Buffer

	require.NoError(t, chatLoop(context.Background(), app, "t1", false, in, &out))
	text := out.String()
	require.Contains(t, text, session.WelcomeMessage)
	require.Contains(t, text, "Room Supplies")
	require.Contains(t, text, "already processed this request")
	require.Contains(t, text, "Messages in history:")
	require.Contains(t, text, "Earlier requests forgotten.")

	turns, err := app.Service.Store.List(context.Background(), chatstore.TurnQuery{ConvID: "t1"})
	require.NoError(t, err)
	require.Len(t, turns, 2)
}

func TestChatLoopAnswersClarifyingQuestion(t *testing.T) {
	app := newTestApp(t)
	in := strings.NewReader("hmm\nI need extra towels\n")
	var out bytes.Buffer

	require.NoError(t, chatLoop(context.Background(), app, "t1", false, in, &out))
	require.Contains(t, out.String(), coordinator.ClarifyingQuestion)
	require.Contains(t, out.String(), "Room Supplies")
}

func TestChatLoopStatsBeforeAnyMessage(t *testing.T) {
	app := newTestApp(t)
	var out bytes.Buffer
	require.NoError(t, chatLoop(context.Background(), app, "t1", false, strings.NewReader("stats\n"), &out))
	require.Contains(t, out.String(), "No requests yet.")
}

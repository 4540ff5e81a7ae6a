package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/concierge/pkg/ask"
	"github.com/go-go-golems/concierge/pkg/coordinator"
	"github.com/go-go-golems/concierge/pkg/session"
	"github.com/go-go-golems/concierge/pkg/stream"
	"github.com/go-go-golems/concierge/pkg/usage"
)

func NewChatCommand() *cobra.Command {
	var (
		convID  string
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the hotel concierge on the terminal",
		Long:  "Reads one message per line. 'reset' forgets earlier requests, 'stats' prints usage, 'quit' exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(settings)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()
			return chatLoop(cmd.Context(), app, convID, verbose, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&convID, "conv-id", "terminal", "conversation id")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "print the status panels as they update")
	return cmd
}

func chatLoop(ctx context.Context, app *App, convID string, verbose bool, in io.Reader, out io.Writer) error {
	lines := readLines(ctx, in)
	asker := lineAsker(out, lines)
	sink := stream.WriterSink{W: out, Verbose: verbose}

	_, _ = fmt.Fprintln(out, session.WelcomeMessage)
	for {
		_, _ = fmt.Fprint(out, "\nYou: ")
		var line string
		select {
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		case <-ctx.Done():
			return nil
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			return nil
		case "reset":
			if err := app.Service.Reset(ctx, convID); err != nil {
				_, _ = fmt.Fprintln(out, "Nothing to reset yet.")
			} else {
				_, _ = fmt.Fprintln(out, "Earlier requests forgotten.")
			}
			continue
		case "stats":
			c, n, err := app.Service.Stats(ctx, convID)
			if err != nil {
				_, _ = fmt.Fprintln(out, "No requests yet.")
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\nMessages in history: %d\n", usage.FormatStatistics(c), n)
			continue
		}

		if _, err := app.Service.Process(ctx, coordinator.Input{
			ConvID:  convID,
			Message: line,
			Asker:   asker,
			Sink:    sink,
		}); err != nil {
			return err
		}
	}
}

// readLines feeds lines from r into a channel that is closed at EOF. The chat loop and
// the clarifying question share it so only one goroutine ever reads r.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func lineAsker(out io.Writer, lines <-chan string) ask.Asker {
	return ask.Func(func(ctx context.Context, question string) (string, error) {
		_, _ = fmt.Fprintf(out, "\n%s\n> ", question)
		select {
		case l, ok := <-lines:
			if !ok {
				return "", io.EOF
			}
			return l, nil
		case <-ctx.Done():
			_, _ = fmt.Fprintln(out)
			return "", ctx.Err()
		}
	})
}

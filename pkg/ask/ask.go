// Package ask solicits a clarifying reply from the guest with a bounded wait.
package ask

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	input "github.com/tcnksm/go-input"
)

// NoResponse is returned when the guest does not answer in time.
const NoResponse = "No response from user"

const DefaultTimeout = 30 * time.Second

// ErrNoAsker is returned when no channel to the guest is available.
var ErrNoAsker = errors.New("no way to ask the guest")

// Asker delivers a question to the guest and waits for the reply.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Bounded asks question and waits at most timeout. Any failure, an empty answer or
// the deadline all produce NoResponse.
func Bounded(ctx context.Context, a Asker, question string, timeout time.Duration) string {
	if a == nil {
		return NoResponse
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	answer, err := a.Ask(ctx, question)
	if err != nil {
		log.Debug().Err(err).Str("component", "ask").Msg("no answer to clarifying question")
		return NoResponse
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return NoResponse
	}
	return answer
}

// Terminal asks on a TTY using go-input.
type Terminal struct {
	Reader io.Reader
	Writer io.Writer
}

// NewTerminal returns a terminal asker on stdin/stderr, or nil when stdin is not a
// terminal.
func NewTerminal() *Terminal {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return nil
	}
	return &Terminal{Reader: os.Stdin, Writer: os.Stderr}
}

func (t *Terminal) Ask(ctx context.Context, question string) (string, error) {
	if t == nil {
		return "", ErrNoAsker
	}
	ui := &input.UI{Writer: t.Writer, Reader: t.Reader}

	type reply struct {
		answer string
		err    error
	}
	ch := make(chan reply, 1)
	go func() {
		_, _ = fmt.Fprint(t.Writer, "\n")
		answer, err := ui.Ask(question, &input.Options{
			Required:  false,
			HideOrder: true,
		})
		ch <- reply{answer: answer, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return "", errors.Wrap(r.err, "failed to get user input")
		}
		return r.answer, nil
	case <-ctx.Done():
		// the reader goroutine stays blocked until the next line arrives
		_, _ = fmt.Fprint(t.Writer, "\n")
		return "", ctx.Err()
	}
}

// Channel hands questions to a transport (for example a websocket) through Notify
// and receives replies through Answer.
type Channel struct {
	Notify func(question string)

	mu      sync.Mutex
	pending chan string
}

func (c *Channel) Ask(ctx context.Context, question string) (string, error) {
	ch := make(chan string, 1)
	c.mu.Lock()
	if c.pending != nil {
		c.mu.Unlock()
		return "", errors.New("a question is already pending")
	}
	c.pending = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.pending == ch {
			c.pending = nil
		}
		c.mu.Unlock()
	}()

	if c.Notify != nil {
		c.Notify(question)
	}
	select {
	case a := <-ch:
		return a, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Answer delivers text to the pending question and reports whether one was waiting.
func (c *Channel) Answer(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return false
	}
	c.pending <- text
	c.pending = nil
	return true
}

func (c *Channel) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Func adapts a function to Asker.
type Func func(ctx context.Context, question string) (string, error)

func (f Func) Ask(ctx context.Context, question string) (string, error) { return f(ctx, question) }

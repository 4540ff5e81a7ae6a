package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/concierge/pkg/ask"
	"github.com/go-go-golems/concierge/pkg/persistence/chatstore"
	"github.com/go-go-golems/concierge/pkg/session"
	"github.com/go-go-golems/concierge/pkg/stream"
	"github.com/go-go-golems/concierge/pkg/trace"
	"github.com/go-go-golems/concierge/pkg/usage"
)

// Service processes incoming messages for many conversations, one at a time per
// conversation.
type Service struct {
	Sessions    *session.Manager
	Coordinator *Coordinator
	Pipeline    *stream.Pipeline
	// Store is optional; when set every processed turn is persisted.
	Store chatstore.TurnStore
}

// Input is one incoming message.
type Input struct {
	ConvID  string
	TurnID  string
	Message string
	Asker   ask.Asker
	Sink    stream.Sink
}

func (s *Service) Process(ctx context.Context, in Input) (stream.Result, error) {
	if in.ConvID == "" {
		return stream.Result{}, errors.New("conversation id is empty")
	}
	if in.Sink == nil {
		return stream.Result{}, errors.New("sink is nil")
	}
	if in.TurnID == "" {
		in.TurnID = uuid.NewString()
	}
	st, release, err := s.Sessions.Acquire(ctx, in.ConvID)
	if err != nil {
		return stream.Result{}, err
	}
	defer release()

	ctx = trace.WithTurn(trace.WithConversation(ctx, in.ConvID), in.TurnID)
	log.Info().Str("component", "coordinator").Str("conv_id", in.ConvID).Str("turn_id", in.TurnID).Msg("processing message")

	run := s.Coordinator.Start(st, in.Message, in.Asker)
	res := s.Pipeline.Run(ctx, run, st, in.Sink)

	if s.Store != nil {
		if err := s.Store.Save(ctx, turnRecord(in, run, res)); err != nil {
			log.Warn().Err(err).Str("component", "coordinator").Str("conv_id", in.ConvID).Msg("failed to persist turn")
		}
	}
	return res, nil
}

// Reset clears the dedup cache and history of a conversation.
func (s *Service) Reset(ctx context.Context, convID string) error {
	return s.Sessions.Reset(ctx, convID)
}

// Stats returns the cumulative usage and history length of a conversation.
func (s *Service) Stats(ctx context.Context, convID string) (usage.Counters, int, error) {
	if !s.Sessions.Exists(convID) {
		return usage.Counters{}, 0, errors.Wrap(session.ErrSessionNotFound, convID)
	}
	st, release, err := s.Sessions.Acquire(ctx, convID)
	if err != nil {
		return usage.Counters{}, 0, err
	}
	defer release()
	return st.Usage, len(st.History), nil
}

func turnRecord(in Input, run *Run, res stream.Result) chatstore.TurnRecord {
	phase := chatstore.PhaseFinal
	if res.Err != nil {
		phase = chatstore.PhaseSystemError
	}
	msgs := run.Messages()
	records := make([]chatstore.MessageRecord, 0, len(msgs)+1)
	for _, m := range msgs {
		records = append(records, chatstore.MessageRecord{ID: m.ID, Role: string(m.Role), Content: m.Content, CreatedAtMs: m.Time.UnixMilli()})
	}
	records = append(records, chatstore.MessageRecord{
		ID:          uuid.NewString(),
		Role:        string(session.RoleAssistant),
		Content:     res.Display.UserMessage,
		CreatedAtMs: time.Now().UnixMilli(),
	})
	return chatstore.TurnRecord{
		ConvID:      in.ConvID,
		TurnID:      in.TurnID,
		Phase:       phase,
		CreatedAtMs: time.Now().UnixMilli(),
		Kind:        string(res.Display.Kind),
		UserMessage: res.Display.UserMessage,
		Markdown:    res.Display.Markdown,
		Usage:       run.Usage(),
		Messages:    records,
	}
}

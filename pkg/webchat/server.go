package webchat

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/concierge/pkg/coordinator"
	"github.com/go-go-golems/concierge/pkg/persistence/chatstore"
	"github.com/go-go-golems/concierge/pkg/session"
	"github.com/go-go-golems/concierge/pkg/stream"
	"github.com/go-go-golems/concierge/pkg/trace"
)

// ChatRequestBody is the body of POST /chat.
type ChatRequestBody struct {
	ConvID         string `json:"conv_id"`
	Text           string `json:"text"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ChatResponse is returned by POST /chat.
type ChatResponse struct {
	ConvID   string `json:"conv_id"`
	TurnID   string `json:"turn_id,omitempty"`
	Status   string `json:"status"`
	Kind     string `json:"kind,omitempty"`
	Message  string `json:"message,omitempty"`
	Markdown string `json:"markdown,omitempty"`
}

const (
	StatusProcessed = "processed"
	StatusAnswered  = "answered"
	StatusError     = "error"
)

// Server exposes the coordinator over HTTP and websockets.
type Server struct {
	svc      *coordinator.Service
	hub      *Hub
	store    chatstore.TurnStore
	traceSub message.Subscriber
	cache    *responseCache
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

type ServerOption func(*Server)

// WithTraceSubscriber forwards trace bus events to websocket clients as trace frames.
func WithTraceSubscriber(sub message.Subscriber) ServerOption {
	return func(s *Server) { s.traceSub = sub }
}

func WithTurnStore(store chatstore.TurnStore) ServerOption {
	return func(s *Server) { s.store = store }
}

func WithIdleTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.hub = NewHub(d) }
}

func NewServer(addr string, svc *coordinator.Service, opts ...ServerOption) (*Server, error) {
	if svc == nil {
		return nil, errors.New("service is nil")
	}
	s := &Server{
		svc:      svc,
		hub:      NewHub(5 * time.Minute),
		store:    svc.Store,
		cache:    newResponseCache(0),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	for _, o := range opts {
		o(s)
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) HTTPServer() *http.Server { return s.httpSrv }

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/reset", s.handleReset)
	mux.HandleFunc("/api/turns", s.handleTurns)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Submit processes text for convID. If a clarification question is pending for the
// conversation the text answers it instead.
func (s *Server) Submit(ctx context.Context, convID, text string) ChatResponse {
	if s.hub.Asker(convID).Answer(text) {
		return ChatResponse{ConvID: convID, Status: StatusAnswered}
	}
	turnID := uuid.NewString()
	mem := &stream.MemorySink{}
	res, err := s.svc.Process(ctx, coordinator.Input{
		ConvID:  convID,
		TurnID:  turnID,
		Message: text,
		Asker:   s.hub.Asker(convID),
		Sink:    stream.Fanout{s.hub.Sink(convID, turnID), mem},
	})
	if err != nil {
		log.Warn().Err(err).Str("component", "webchat").Str("conv_id", convID).Msg("failed to process message")
		return ChatResponse{ConvID: convID, TurnID: turnID, Status: StatusError, Message: err.Error()}
	}
	return ChatResponse{
		ConvID:   convID,
		TurnID:   turnID,
		Status:   StatusProcessed,
		Kind:     string(res.Display.Kind),
		Message:  res.Display.UserMessage,
		Markdown: res.Display.Markdown,
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body ChatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	body.ConvID = strings.TrimSpace(body.ConvID)
	if body.ConvID == "" {
		body.ConvID = uuid.NewString()
	}
	if strings.TrimSpace(body.Text) == "" {
		http.Error(w, "missing text", http.StatusBadRequest)
		return
	}
	key := idempotencyKeyFromRequest(r, &body)
	if cached, ok := s.cache.get(body.ConvID, key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}
	resp := s.Submit(r.Context(), body.ConvID, body.Text)
	status := http.StatusOK
	if resp.Status == StatusError {
		status = http.StatusInternalServerError
	} else {
		s.cache.put(body.ConvID, key, resp)
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	convID := strings.TrimSpace(r.URL.Query().Get("conv_id"))
	if convID == "" {
		http.Error(w, "missing conv_id", http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	pool := s.hub.Pool(convID)
	pool.Add(conn)
	pool.SendToOne(conn, Frame{Type: FrameWelcome, ConvID: convID, Text: session.WelcomeMessage})
	log.Info().Str("component", "webchat").Str("conv_id", convID).Msg("websocket attached")

	ctx := context.WithoutCancel(r.Context())
	queue := newSendQueue(func(c queuedChat) {
		log.Debug().Str("component", "webchat").Str("conv_id", convID).
			Dur("queued", time.Since(c.EnqueuedAt)).Msg("running queued chat")
		s.Submit(ctx, convID, c.Text)
	})
	go func() {
		defer pool.Remove(conn)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cf ClientFrame
			if err := json.Unmarshal(data, &cf); err != nil {
				pool.SendToOne(conn, Frame{Type: FrameError, ConvID: convID, Text: "invalid frame"})
				continue
			}
			text := strings.TrimSpace(cf.Text)
			switch cf.Type {
			case "answer":
				if !s.hub.Asker(convID).Answer(text) {
					pool.SendToOne(conn, Frame{Type: FrameError, ConvID: convID, Text: "no pending question"})
				}
			case "chat", "":
				if text == "" {
					continue
				}
				// a running turn may be waiting on a question; the reader stays
				// free so the text can answer it
				if s.hub.Asker(convID).Answer(text) {
					continue
				}
				queue.Enqueue(text)
			default:
				pool.SendToOne(conn, Frame{Type: FrameError, ConvID: convID, Text: "unknown frame type"})
			}
		}
	}()
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	convID := strings.TrimSpace(r.URL.Query().Get("conv_id"))
	if convID == "" {
		http.Error(w, "missing conv_id", http.StatusBadRequest)
		return
	}
	if err := s.svc.Reset(r.Context(), convID); err != nil {
		if stderrors.Is(err, session.ErrSessionNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		http.Error(w, "reset failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTurns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "turn store not enabled", http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	turns, err := s.store.List(r.Context(), chatstore.TurnQuery{
		ConvID: strings.TrimSpace(q.Get("conv_id")),
		Phase:  strings.TrimSpace(q.Get("phase")),
		Limit:  50,
	})
	if err != nil {
		http.Error(w, "failed to list turns", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": turns})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	convID := strings.TrimSpace(r.URL.Query().Get("conv_id"))
	counters, history, err := s.svc.Stats(r.Context(), convID)
	if err != nil {
		if stderrors.Is(err, session.ErrSessionNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		http.Error(w, "stats failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conv_id":  convID,
		"usage":    counters,
		"messages": history,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) forwardTrace(ctx context.Context) error {
	return trace.Follow(ctx, s.traceSub, "", func(ev trace.Event) {
		if ev.ConvID == "" {
			return
		}
		e := ev
		s.hub.Pool(ev.ConvID).Broadcast(Frame{Type: FrameTrace, ConvID: ev.ConvID, TurnID: ev.TurnID, Event: &e})
	})
}

// Run serves until ctx is cancelled or the process receives an interrupt.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	eg := errgroup.Group{}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	s.svc.Sessions.StartEvictionLoop(srvCtx)

	if s.traceSub != nil {
		eg.Go(func() error { return s.forwardTrace(srvCtx) })
	}

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		srvCancel()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", s.httpSrv.Addr).Msg("starting concierge server")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server listen error")
			srvCancel()
			return err
		}
		return nil
	})

	return eg.Wait()
}

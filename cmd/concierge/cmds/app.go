package cmds

import (
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/concierge/pkg/config"
	"github.com/go-go-golems/concierge/pkg/coordinator"
	"github.com/go-go-golems/concierge/pkg/handlers"
	"github.com/go-go-golems/concierge/pkg/logging"
	"github.com/go-go-golems/concierge/pkg/persistence/chatstore"
	"github.com/go-go-golems/concierge/pkg/requests"
	"github.com/go-go-golems/concierge/pkg/session"
	"github.com/go-go-golems/concierge/pkg/stream"
	"github.com/go-go-golems/concierge/pkg/trace"
	"github.com/go-go-golems/concierge/pkg/usage"
)

var (
	settings  = config.Default()
	logCloser io.Closer
)

// Setup loads settings and initializes logging. It runs before every command.
func Setup(cmd *cobra.Command) error {
	fs := cmd.Flags()
	s, err := config.Load(config.ConfigPath(fs))
	if err != nil {
		return err
	}
	if err := config.ApplyFlags(fs, &s); err != nil {
		return err
	}
	closer, err := logging.Init(s.Log)
	if err != nil {
		return err
	}
	settings = s
	logCloser = closer
	return nil
}

func Teardown() error {
	if logCloser == nil {
		return nil
	}
	return logCloser.Close()
}

// App is the wired request coordinator used by every command.
type App struct {
	Settings config.Settings
	Service  *coordinator.Service
	PubSub   *trace.PubSub
}

func NewApp(s config.Settings) (*App, error) {
	catalog := handlers.DefaultCatalog()
	if s.CatalogPath != "" {
		c, err := handlers.LoadCatalog(s.CatalogPath)
		if err != nil {
			return nil, err
		}
		catalog = c
	}

	ps, err := trace.BuildPubSub(s.Redis)
	if err != nil {
		return nil, err
	}
	rec := trace.Multi{trace.LogRecorder{}, trace.NewBusRecorder(ps.Publisher)}

	est := usage.NewTiktokenEstimator()
	guest := s.Guest()
	opts := handlers.DispatcherOptions(guest, handlers.WithCatalog(catalog), handlers.WithEstimator(est))
	opts = append(opts, requests.WithEstimator(est), requests.WithRecorder(rec))
	d := requests.NewDispatcher(opts...)

	sessions := session.NewManager(session.WithOnStart(func(st *session.State) {
		log.Info().Str("component", "session").Str("conv_id", st.ID).Msg("session started")
	}))
	sessions.SetEvictionConfig(s.IdleTimeout, s.IdleTimeout/4)

	svc := &coordinator.Service{
		Sessions: sessions,
		Coordinator: coordinator.New(d,
			coordinator.WithEstimator(est),
			coordinator.WithRecorder(rec),
			coordinator.WithBudget(s.Budget()),
			coordinator.WithGuest(guest),
			coordinator.WithAskTimeout(s.AskTimeout),
		),
		Pipeline: stream.NewPipeline(stream.WithRecorder(rec)),
	}

	if s.TurnsDB != "" {
		store, err := openStore(s.TurnsDB)
		if err != nil {
			_ = ps.Close()
			return nil, err
		}
		svc.Store = store
	}
	return &App{Settings: s, Service: svc, PubSub: ps}, nil
}

func openStore(path string) (*chatstore.SQLiteTurnStore, error) {
	dsn, err := chatstore.SQLiteTurnDSNForFile(path)
	if err != nil {
		return nil, err
	}
	store, err := chatstore.NewSQLiteTurnStore(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open turn store")
	}
	return store, nil
}

func (a *App) Close() error {
	var first error
	if a.Service.Store != nil {
		first = a.Service.Store.Close()
	}
	if err := a.PubSub.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

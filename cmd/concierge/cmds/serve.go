package cmds

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/concierge/pkg/trace"
	"github.com/go-go-golems/concierge/pkg/webchat"
)

func NewServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the concierge over HTTP and websockets",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := settings
			if addr != "" {
				s.Addr = addr
			}
			app, err := NewApp(s)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			if err := app.PubSub.StartAtTail(cmd.Context(), trace.Topic); err != nil {
				log.Warn().Err(err).Str("component", "trace").Msg("could not prepare consumer group")
			}

			srv, err := webchat.NewServer(s.Addr, app.Service,
				webchat.WithTraceSubscriber(app.PubSub.Subscriber),
				webchat.WithIdleTimeout(s.IdleTimeout),
			)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	return cmd
}

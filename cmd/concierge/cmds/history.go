package cmds

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/concierge/pkg/persistence/chatstore"
	"github.com/go-go-golems/concierge/pkg/usage"
)

func NewHistoryCommand() *cobra.Command {
	var (
		convID   string
		phase    string
		limit    int
		messages bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List persisted turns",
		RunE: func(cmd *cobra.Command, args []string) error {
			if settings.TurnsDB == "" {
				return errors.New("no turns database configured (--turns-db or CONCIERGE_TURNS_DB)")
			}
			store, err := openStore(settings.TurnsDB)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			turns, err := store.List(cmd.Context(), chatstore.TurnQuery{ConvID: convID, Phase: phase, Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range turns {
				_, _ = fmt.Fprintf(out, "%s  %s  %s  %-12s %s requests, %s tokens\n",
					time.UnixMilli(t.CreatedAtMs).Format(time.RFC3339), t.ConvID, t.TurnID, t.Kind,
					usage.GroupedInt(t.Usage.RequestsMade), usage.HumanTokens(t.Usage.TokensConsumed))
				_, _ = fmt.Fprintf(out, "    %s\n", t.UserMessage)
				if messages {
					for _, m := range t.Messages {
						_, _ = fmt.Fprintf(out, "    [%s] %s\n", m.Role, m.Content)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&convID, "conv-id", "", "only this conversation")
	cmd.Flags().StringVar(&phase, "phase", "", "only turns in this phase (final, system_error)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of turns")
	cmd.Flags().BoolVar(&messages, "messages", false, "also print the stored messages")
	return cmd
}

package cmds

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/concierge/pkg/ask"
	"github.com/go-go-golems/concierge/pkg/coordinator"
	"github.com/go-go-golems/concierge/pkg/stream"
)

func NewRunCommand() *cobra.Command {
	var (
		convID  string
		verbose bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "run <message>",
		Short: "Process a single guest message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(settings)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			in := coordinator.Input{
				ConvID:  convID,
				Message: strings.Join(args, " "),
				Sink:    stream.WriterSink{W: cmd.OutOrStdout(), Verbose: verbose},
			}
			if asJSON {
				in.Sink = &stream.MemorySink{}
			}
			if t := ask.NewTerminal(); t != nil {
				in.Asker = t
			}
			res, err := app.Service.Process(cmd.Context(), in)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res.Display)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&convID, "conv-id", "cli", "conversation id")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "print the status panels as they update")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the final display as JSON")
	return cmd
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/concierge/cmd/concierge/cmds"
	"github.com/go-go-golems/concierge/pkg/config"
)

var rootCmd = &cobra.Command{
	Use:          "concierge",
	Short:        "concierge coordinates hotel guest requests",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return cmds.Setup(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return cmds.Teardown()
	},
}

func main() {
	config.AddFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(
		cmds.NewChatCommand(),
		cmds.NewRunCommand(),
		cmds.NewServeCommand(),
		cmds.NewHistoryCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.CheckErr(rootCmd.ExecuteContext(ctx))
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	buildcmd "westkit/cmd/westkit/build"
	doctorcmd "westkit/cmd/westkit/doctor"
	flashcmd "westkit/cmd/westkit/flash"
	initcmd "westkit/cmd/westkit/initcmd"
	monitorcmd "westkit/cmd/westkit/monitor"
	setupcmd "westkit/cmd/westkit/setup"
	updatecmd "westkit/cmd/westkit/update"
	"westkit/cmd/westkit/ui"
	"westkit/internal/buildinfo"
	"westkit/internal/logging"

	"github.com/spf13/cobra"
)

func main() {
	var (
		debug        bool
		manifestPath string
	)
	if err := logging.Configure(logging.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "westkit",
		Short:         "Zephyr toolchain provisioning, builds and flashing",
		Version:       buildinfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ui.ConfigureColor()
			level := logging.LevelWarn
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&manifestPath, "manifest", "", "Override the embedded dependency manifest with a local file")

	root.AddCommand(setupcmd.Cmd(&manifestPath))
	root.AddCommand(doctorcmd.Cmd(&manifestPath))
	root.AddCommand(initcmd.Cmd(&manifestPath))
	root.AddCommand(updatecmd.Cmd(&manifestPath))
	root.AddCommand(buildcmd.Cmd(&manifestPath))
	root.AddCommand(flashcmd.Cmd(&manifestPath))
	root.AddCommand(monitorcmd.Cmd(&manifestPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

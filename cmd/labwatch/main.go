package main

import (
	"fmt"
	"os"

	"labwatch/cmd/labwatch/ui"
	"labwatch/config"
	"labwatch/internal/logging"

	"github.com/spf13/cobra"
)

func main() {
	var (
		debug      bool
		plain      bool
		clabBinary string
	)
	if err := logging.Configure(logging.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	cfg := &config.Config{}

	root := &cobra.Command{
		Use:           "labwatch",
		Short:         "Live view of containerlab labs from the events stream",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			*cfg = *loaded

			level := cfg.LogLevel
			if level == "" {
				level = logging.LevelWarn
			}
			if debug {
				level = logging.LevelDebug
			}
			if err := logging.Configure(level); err != nil {
				return err
			}

			if clabBinary != "" {
				cfg.ClabBinary = clabBinary
			}

			ui.Configure(plain)
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&plain, "plain", false, "Disable styled output")
	root.PersistentFlags().StringVar(&clabBinary, "clab-binary", "", "Path to the containerlab binary")

	root.AddCommand(watchCmd(cfg))
	root.AddCommand(listCmd(cfg))
	root.AddCommand(configureCmd(cfg))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorMsg("%v", err))
		os.Exit(1)
	}
}

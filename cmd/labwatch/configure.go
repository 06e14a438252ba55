package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"labwatch/cmd/labwatch/ui"
	"labwatch/config"
)

// configureCmd persists settings to the config file so they stick across
// invocations. Flags left unset keep their current (or default) values.
func configureCmd(cfg *config.Config) *cobra.Command {
	var (
		lab          string
		stats        bool
		idleTimeout  time.Duration
		fallback     time.Duration
		debounce     time.Duration
		pollInterval time.Duration
		logLevel     string
		metricsAddr  string
	)
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Persist settings to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// The persistent --clab-binary flag has already been folded into
			// cfg; the rest apply only when explicitly set.
			if cmd.Flags().Changed("lab") {
				cfg.Lab = lab
			}
			if cmd.Flags().Changed("stats") {
				cfg.InterfaceStats = stats
			}
			if cmd.Flags().Changed("idle-timeout") {
				cfg.IdleTimeout = config.Duration(idleTimeout)
			}
			if cmd.Flags().Changed("fallback-timeout") {
				cfg.FallbackTimeout = config.Duration(fallback)
			}
			if cmd.Flags().Changed("debounce") {
				cfg.Debounce = config.Duration(debounce)
			}
			if cmd.Flags().Changed("poll-interval") {
				cfg.PollInterval = config.Duration(pollInterval)
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}

			if err := cfg.Save(); err != nil {
				return err
			}

			fmt.Println(ui.SuccessMsg("wrote %s", ui.Accent(config.Path())))
			fmt.Print(ui.KeyValues("  ",
				ui.KV("clab binary", cfg.ClabBinary),
				ui.KV("lab", orDash(cfg.Lab)),
				ui.KV("interface stats", fmt.Sprintf("%v", cfg.InterfaceStats)),
				ui.KV("idle timeout", cfg.IdleTimeout.Std().String()),
				ui.KV("fallback timeout", cfg.FallbackTimeout.Std().String()),
				ui.KV("debounce", cfg.Debounce.Std().String()),
				ui.KV("poll interval", cfg.PollInterval.Std().String()),
				ui.KV("log level", orDash(cfg.LogLevel)),
				ui.KV("metrics addr", orDash(cfg.MetricsAddr)),
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&lab, "lab", "", "Restrict to one lab name (empty for all)")
	cmd.Flags().BoolVar(&stats, "stats", false, "Include interface traffic counters")
	cmd.Flags().DurationVar(&idleTimeout, "idle-timeout", config.DefaultIdleTimeout.Std(), "Initial-load idle window")
	cmd.Flags().DurationVar(&fallback, "fallback-timeout", config.DefaultFallbackTimeout.Std(), "Initial-load fallback deadline")
	cmd.Flags().DurationVar(&debounce, "debounce", config.DefaultDebounce.Std(), "Change notification debounce")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", config.DefaultPollInterval.Std(), "Polling fallback interval")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Default log level (debug/info/warn/error)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus listen address (empty to disable)")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return ui.Muted("-")
	}
	return s
}

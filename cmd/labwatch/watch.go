package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"labwatch/cmd/labwatch/ui"
	"labwatch/config"
	"labwatch/internal/feed"
	"labwatch/internal/poller"
)

// watchCmd follows the live event feed and re-renders the lab tables on
// every change. When the feed cannot deliver its initial state it degrades
// to periodic docker polling.
func watchCmd(cfg *config.Config) *cobra.Command {
	var (
		lab       string
		withStats bool
		withIfces bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow lab containers live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if lab == "" {
				lab = cfg.Lab
			}
			if !withStats {
				withStats = cfg.InterfaceStats
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.MetricsAddr != "" {
				fmt.Println(ui.InfoMsg("serving metrics on %s", cfg.MetricsAddr))
				go serveMetrics(cfg.MetricsAddr)
			}

			agg := feed.New(feed.Options{
				Binary:          cfg.ClabBinary,
				IncludeStats:    withStats,
				RestartOnExit:   true,
				IdleTimeout:     cfg.IdleTimeout.Std(),
				FallbackTimeout: cfg.FallbackTimeout.Std(),
				Debounce:        cfg.Debounce.Std(),
			})
			defer agg.Shutdown()

			if err := agg.EnsureFeed(ctx, lab); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Warn("event feed unavailable, falling back to polling", "err", err)
				return watchPolling(ctx, cfg, lab)
			}

			redraw := make(chan struct{}, 1)
			unsub := agg.OnDataChanged(func() {
				select {
				case redraw <- struct{}{}:
				default:
				}
			})
			defer unsub()

			render(agg.GroupedContainers(), agg, withIfces)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-redraw:
					render(agg.GroupedContainers(), agg, withIfces)
				}
			}
		},
	}
	cmd.Flags().StringVar(&lab, "lab", "", "Restrict to one lab name")
	cmd.Flags().BoolVar(&withStats, "stats", false, "Include interface traffic counters")
	cmd.Flags().BoolVar(&withIfces, "interfaces", false, "Show per-container interfaces")
	return cmd
}

// watchPolling is the degraded mode: same tables, driven by docker listings.
func watchPolling(ctx context.Context, cfg *config.Config, lab string) error {
	p := poller.New(poller.Options{ClabBinary: cfg.ClabBinary})
	defer p.Stop()

	redraw := make(chan struct{}, 1)
	unsub := p.OnDataChanged(func() {
		select {
		case redraw <- struct{}{}:
		default:
		}
	})
	defer unsub()

	if err := p.Start(lab, cfg.PollInterval.Std()); err != nil {
		return err
	}

	fmt.Println(ui.WarnMsg("event feed unavailable; polling every %s", cfg.PollInterval.Std()))
	render(p.GroupedContainers(), nil, false)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-redraw:
			render(p.GroupedContainers(), nil, false)
		}
	}
}

// interfaceSource is the slice of the aggregator the renderer needs.
type interfaceSource interface {
	InterfaceSnapshot(shortID, displayName string) []feed.InterfaceRecord
}

// render clears the screen and prints one table per lab.
func render(labs map[string]feed.LabContainers, ifces interfaceSource, withIfces bool) {
	var sb strings.Builder
	sb.WriteString("\033[H\033[2J")

	names := make([]string, 0, len(labs))
	for name := range labs {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		sb.WriteString(ui.Muted("no containerlab containers") + "\n")
		fmt.Print(sb.String())
		return
	}

	for _, name := range names {
		group := labs[name]
		sb.WriteString(ui.Bold(name))
		if group.TopoFile != "" {
			sb.WriteString("  " + ui.Muted(group.TopoFile))
		}
		sb.WriteString("\n")

		rows := make([][]string, 0, len(group.Containers))
		for _, c := range group.Containers {
			rows = append(rows, []string{
				c.DisplayName(),
				c.ShortID,
				ui.State(c.State),
				c.Status,
				c.Image,
				formatAddr(c.Network.IPv4Address, c.Network.IPv4Prefix),
				formatAddr(c.Network.IPv6Address, c.Network.IPv6Prefix),
			})
		}
		sb.WriteString(ui.Table(
			[]string{"Name", "ID", "State", "Status", "Image", "IPv4", "IPv6"}, rows))
		sb.WriteString("\n")

		if withIfces && ifces != nil {
			for _, c := range group.Containers {
				writeInterfaces(&sb, c, ifces.InterfaceSnapshot(c.ShortID, c.DisplayName()))
			}
		}
	}
	sb.WriteString(ui.Muted(time.Now().Format(time.TimeOnly)) + "\n")
	fmt.Print(sb.String())
}

func writeInterfaces(sb *strings.Builder, c feed.ContainerRecord, recs []feed.InterfaceRecord) {
	if len(recs) == 0 {
		return
	}
	sb.WriteString("  " + ui.Accent(c.DisplayName()) + "\n")
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.Name, r.Type, r.State, r.MAC,
			fmt.Sprintf("%d", r.MTU),
			formatRate(r.RxBps), formatRate(r.TxBps),
		})
	}
	sb.WriteString(ui.Table([]string{"Interface", "Type", "State", "MAC", "MTU", "RX", "TX"}, rows))
	sb.WriteString("\n")
}

func formatAddr(addr string, prefix int) string {
	if addr == "" {
		return ui.Muted("-")
	}
	if prefix > 0 {
		return fmt.Sprintf("%s/%d", addr, prefix)
	}
	return addr
}

func formatRate(bps float64) string {
	switch {
	case bps <= 0:
		return ui.Muted("-")
	case bps >= 1e9:
		return fmt.Sprintf("%.1f Gbps", bps/1e9)
	case bps >= 1e6:
		return fmt.Sprintf("%.1f Mbps", bps/1e6)
	case bps >= 1e3:
		return fmt.Sprintf("%.1f Kbps", bps/1e3)
	default:
		return fmt.Sprintf("%.0f bps", bps)
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics listener failed", "addr", addr, "err", err)
	}
}

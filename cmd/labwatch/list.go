package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"labwatch/cmd/labwatch/ui"
	"labwatch/config"
	"labwatch/internal/feed"
	"labwatch/internal/poller"
)

// listCmd is the one-shot view: a single docker listing, no feed process.
func listCmd(cfg *config.Config) *cobra.Command {
	var lab string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List lab containers once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if lab == "" {
				lab = cfg.Lab
			}

			p := poller.New(poller.Options{ClabBinary: cfg.ClabBinary})
			defer p.Stop()
			if err := p.ForceUpdate(cmd.Context(), lab); err != nil {
				return err
			}

			labs := p.GroupedContainers()
			if len(labs) == 0 {
				fmt.Println(ui.Muted("no containerlab containers"))
				return nil
			}

			names := make([]string, 0, len(labs))
			for name := range labs {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				group := labs[name]
				fmt.Println(ui.Bold(name) + "  " + stateSummary(group.Containers))
				if group.TopoFile != "" {
					fmt.Println("  " + ui.Muted(group.TopoFile))
				}

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
				fmt.Println(ui.Table(
					[]string{"Name", "ID", "State", "Status", "Image", "IPv4", "IPv6"}, rows))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&lab, "lab", "", "Restrict to one lab name")
	return cmd
}

// stateSummary renders a compact state tally like "2 running, 1 exited".
func stateSummary(containers []feed.ContainerRecord) string {
	counts := make(map[string]int)
	for _, c := range containers {
		counts[c.State]++
	}

	var parts []string
	if n := counts[feed.StateRunning]; n > 0 {
		parts = append(parts, ui.Success(fmt.Sprintf("%d running", n)))
	}
	if n := counts[feed.StateExited]; n > 0 {
		parts = append(parts, ui.Warn(fmt.Sprintf("%d exited", n)))
	}
	others := make([]string, 0, len(counts))
	for state := range counts {
		if state != feed.StateRunning && state != feed.StateExited {
			others = append(others, state)
		}
	}
	sort.Strings(others)
	for _, state := range others {
		parts = append(parts, ui.Muted(fmt.Sprintf("%d %s", counts[state], state)))
	}
	return strings.Join(parts, ui.Muted(", "))
}

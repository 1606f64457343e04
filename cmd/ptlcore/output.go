package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/nerrad567/ptl-core/internal/infrastructure/config"
	"github.com/nerrad567/ptl-core/internal/infrastructure/database"
	"github.com/nerrad567/ptl-core/internal/ptl/protocol"
	"github.com/nerrad567/ptl-core/internal/topology"
)

// printBanner writes the startup summary to stderr.
func printBanner(cfg *config.Config) {
	w := os.Stderr
	fmt.Fprintf(w, "%s %s\n", color.New(color.FgCyan, color.Bold).Sprint("PTL Core"), version)
	fmt.Fprintf(w, "  site:     %s\n", cfg.Site.ID)
	fmt.Fprintf(w, "  mode:     %s\n", color.New(color.FgGreen).Sprint(cfg.Mode.Name))
	fmt.Fprintf(w, "  api:      %s:%d\n", cfg.API.Host, cfg.API.Port)
	fmt.Fprintf(w, "  mqtt:     %s\n", enabledLabel(cfg.MQTT.Enabled))
	fmt.Fprintf(w, "  influxdb: %s\n", enabledLabel(cfg.InfluxDB.Enabled))
	fmt.Fprintf(w, "  metrics:  %s\n", enabledLabel(cfg.Metrics.Enabled))
}

func enabledLabel(on bool) string {
	if on {
		return color.New(color.FgGreen).Sprint("enabled")
	}
	return color.New(color.FgYellow).Sprint("disabled")
}

// printNetwork writes a network distribution, one row per node.
func printNetwork(out io.Writer, channels []protocol.NetworkChannel) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHANNEL\tNODE\tSTATUS\tTYPE")
	nodes := 0
	for _, ch := range channels {
		for _, n := range ch.Nodes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ch.Channel, n.NodeID, statusLabel(n), n.TypeDesc)
			nodes++
		}
	}
	_ = w.Flush()
	fmt.Fprintf(out, "\n%d channel(s), %d node(s)\n", len(channels), nodes)
}

func statusLabel(n protocol.NetworkNode) string {
	if n.Status == protocol.NodeStatusNormal {
		return color.New(color.FgGreen).Sprint(n.StatusDesc)
	}
	return color.New(color.FgRed).Sprint(n.StatusDesc)
}

// printUnits writes a topology table.
func printUnits(out io.Writer, units topology.Units) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LOCATION\tSHELF\tENDPOINT\tCHANNEL\tNODE\tTYPE")
	for _, u := range units {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			u.Location, u.Shelf.Code, u.Endpoint.Addr(), u.ChannelID, u.NodeID, u.Type.Name())
	}
	_ = w.Flush()
}

// printMigrations writes applied and pending migrations.
func printMigrations(out io.Writer, applied []database.MigrationRecord, pending []database.Migration) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE")
	for _, m := range applied {
		fmt.Fprintf(w, "%s\t%s\n", m.Version, color.New(color.FgGreen).Sprint("applied"))
	}
	for _, m := range pending {
		fmt.Fprintf(w, "%s_%s\t%s\n", m.Version, m.Name, color.New(color.FgYellow).Sprint("pending"))
	}
	_ = w.Flush()
}

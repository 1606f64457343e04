package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/ptl-core/internal/infrastructure/logging"
	"github.com/nerrad567/ptl-core/internal/ptl/link"
	"github.com/nerrad567/ptl-core/internal/ptl/protocol"
	"github.com/nerrad567/ptl-core/internal/topology"
)

// defaultDiscoverTimeout bounds the wait for the network distribution reply.
const defaultDiscoverTimeout = 15 * time.Second

// errNoReply is returned when the controller does not answer in time.
var errNoReply = errors.New("no network distribution received")

// DiscoverCmd returns the discover command.
func DiscoverCmd(configPath *string) *cobra.Command {
	var (
		endpoint  string
		shelf     string
		shelfType int
		timeout   time.Duration
		save      bool
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Query a controller for its network distribution",
		Long: `Connect to a controller, ask for the channels and nodes it sees and
print them. With --save the derived units replace the stored topology.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			host, portStr, err := net.SplitHostPort(endpoint)
			if err != nil {
				return fmt.Errorf("invalid --endpoint %q: %w", endpoint, err)
			}
			port, err := strconv.Atoi(portStr)
			if err != nil || port < 1 || port > 65535 {
				return fmt.Errorf("invalid --endpoint port %q", portStr)
			}

			ctx := cmd.Context()
			channels, err := discoverNetwork(ctx, link.Config{ID: 1, Host: host, Port: port}, timeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printNetwork(out, channels)

			units := topology.FromNetwork(topology.Endpoint{IP: host, Port: port}, channels, shelf, shelfType)
			fmt.Fprintln(out)
			printUnits(out, units)
			if !save {
				return nil
			}

			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			db, err := openDatabase(ctx, cfg.Database, true)
			if err != nil {
				return err
			}
			defer db.Close()

			saved, err := topology.NewSQLiteRepository(db.DB).Save(ctx, units)
			if err != nil {
				return fmt.Errorf("saving topology: %w", err)
			}
			fmt.Fprintf(out, "saved %d unit(s)\n", len(saved))
			return nil
		},
	}

	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "controller address as ip:port")
	cmd.Flags().StringVar(&shelf, "shelf", protocol.DefaultShelfCode, "shelf code for the derived units")
	cmd.Flags().IntVar(&shelfType, "shelf-type", protocol.DefaultShelfType, "shelf type for the derived units")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultDiscoverTimeout, "how long to wait for the reply")
	cmd.Flags().BoolVar(&save, "save", false, "replace the stored topology with the discovered units")
	_ = cmd.MarkFlagRequired("endpoint")

	return cmd
}

// discoverNetwork opens a link, sends the network request once connected
// and waits for the distribution reply.
//
// Parameters:
//   - ctx: Context for cancellation
//   - cfg: Controller address and link timing
//   - timeout: Maximum wait for the reply
//
// Returns:
//   - []protocol.NetworkChannel: The reported channels and nodes
//   - error: errNoReply on timeout, or the context's error
func discoverNetwork(ctx context.Context, cfg link.Config, timeout time.Duration) ([]protocol.NetworkChannel, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	l := link.New(cfg)
	l.SetLogger(logging.Default().Component("discover"))
	defer l.Close()

	replies := make(chan []protocol.NetworkChannel, 1)
	l.SetOnMessage(func(_ []byte, msg protocol.Message, _ *protocol.KeyEvent) {
		if msg.Type != protocol.TypeNetwork {
			return
		}
		select {
		case replies <- msg.Channels:
		default:
		}
	})
	l.SetOnReady(func(code int) {
		if code != link.ReadyOpened {
			return
		}
		if res := l.Send(protocol.EncodeNetworkRequest()); !res.OK() {
			logging.Default().Warn("network request not sent", "endpoint", cfg.Addr(), "result", res.Result)
		}
	})
	l.Start(ctx)

	select {
	case channels := <-replies:
		return channels, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w from %s within %v", errNoReply, cfg.Addr(), timeout)
		}
		return nil, ctx.Err()
	}
}

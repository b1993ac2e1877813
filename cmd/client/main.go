// Command client is the demo shopping-list CLI (C11, spec §4.11): every
// subcommand commits locally through internal/client.Engine and returns
// before any network attempt, with sync happening in the background against
// a pool of storage nodes.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/listring/listring/internal/client"
	"github.com/listring/listring/internal/config"
	"github.com/listring/listring/internal/storage"
)

// app bundles the dependencies every subcommand needs, built once in the
// root command's PersistentPreRunE.
type app struct {
	store  *storage.Store
	engine client.Engine
	sync   *client.SyncEngine
	pool   *client.ServerPool
	sse    *client.SSEConsumer
	logger log.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		dataPath   string
		logLevel   string
	)

	a := &app{}

	root := &cobra.Command{
		Use:           "client",
		Short:         "shopping-list client talking to a listring cluster",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(configPath, dataPath, logLevel)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.store.Close()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "cluster.json", "path to the static cluster configuration")
	root.PersistentFlags().StringVar(&dataPath, "data", "client.db", "path to this client's local bbolt store")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug|info|warn|error")

	root.AddCommand(
		newCreateListCmd(a),
		newAddItemCmd(a),
		newSetQuantityCmd(a),
		newToggleCmd(a),
		newSyncCmd(a),
		newWatchCmd(a),
		newListsCmd(a),
		newShowCmd(a),
	)
	return root
}

// init opens the local store, adopts or mints this client's node id, and
// wires the engine/sync/SSE collaborators (spec §4.11).
func (a *app) init(configPath, dataPath, logLevel string) error {
	a.logger = newLogger(logLevel)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a.store, err = storage.Open(dataPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	nodeID, err := a.store.NodeID()
	if err != nil {
		return fmt.Errorf("read client id: %w", err)
	}
	if nodeID == "" {
		nodeID = "client-" + uuid.NewString()
		if err := a.store.SaveNodeID(nodeID); err != nil {
			return fmt.Errorf("persist client id: %w", err)
		}
	}

	nodes := make([]string, len(cfg.Servers))
	for i, port := range cfg.Servers {
		nodes[i] = fmt.Sprintf("http://127.0.0.1:%d", port)
	}
	a.pool = client.NewServerPool(nodes, a.logger)
	a.sync = client.NewSyncEngine(nodeID, a.store, a.pool, a.logger)
	a.engine = client.NewLoggingEngine(client.NewEngine(nodeID, a.store, a.sync, a.logger), a.logger)
	a.sse = client.NewSSEConsumer(fmt.Sprintf("http://127.0.0.1:%d", cfg.Coordinator.HTTPPort), a.store, a.logger)

	return nil
}

func newCreateListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create-list <name>",
		Short: "create a new shopping list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.engine.CreateList(args[0])
			if err != nil {
				return err
			}
			return printJSON(list)
		},
	}
}

func newAddItemCmd(a *app) *cobra.Command {
	var quantity int64
	cmd := &cobra.Command{
		Use:   "add-item <list-id> <name>",
		Short: "add an item to a list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := a.engine.AddItem(args[0], args[1], quantity)
			if err != nil {
				return err
			}
			return printJSON(item)
		},
	}
	cmd.Flags().Int64Var(&quantity, "quantity", 1, "item quantity")
	return cmd
}

func newSetQuantityCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-quantity <item-id> <quantity>",
		Short: "set an item's quantity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid quantity %q: %w", args[1], err)
			}
			item, err := a.engine.UpdateQuantity(args[0], quantity)
			if err != nil {
				return err
			}
			return printJSON(item)
		},
	}
}

func newToggleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <item-id>",
		Short: "toggle an item between acquired and not acquired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := a.engine.ToggleItem(args[0])
			if err != nil {
				return err
			}
			return printJSON(item)
		},
	}
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "run one push/pull sync cycle against the cluster immediately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.sync.Sync(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "stream coordinator SSE events and periodically sync, until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			go a.sync.Run(ctx)
			go a.pool.Run(ctx)

			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						a.sync.ScheduleSync()
					}
				}
			}()

			level.Info(a.logger).Log("msg", "watching for cluster events, press Ctrl-C to stop")
			a.sse.Run(ctx)
			return nil
		},
	}
}

func newListsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "print every list known locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lists, err := a.engine.ListLists()
			if err != nil {
				return err
			}
			return printJSON(lists)
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <list-id>",
		Short: "print a list and its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := a.engine.GetList(args[0])
			if err != nil {
				return err
			}
			return printJSON(snapshot)
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newLogger(levelName string) log.Logger {
	base := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	base = log.With(base, "ts", log.DefaultTimestampUTC)

	var f level.Option
	switch levelName {
	case "debug":
		f = level.AllowDebug()
	case "warn":
		f = level.AllowWarn()
	case "error":
		f = level.AllowError()
	default:
		f = level.AllowInfo()
	}
	return level.NewFilter(base, f)
}

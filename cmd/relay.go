package cmd

import (
	"log/slog"
	"time"

	"github.com/Candyboy02/bridge-link/internal/config"
	"github.com/Candyboy02/bridge-link/internal/logging"
	"github.com/Candyboy02/bridge-link/internal/relay"
	"github.com/Candyboy02/bridge-link/internal/transfer"
	"github.com/Candyboy02/bridge-link/internal/ui"
	"github.com/spf13/cobra"
)

var relayFlags struct {
	listen  string
	db      string
	roomTTL time.Duration
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the signaling relay server",
	Long: `Run the websocket relay that stores room documents while peers
negotiate. Rooms live in memory unless --db names a SQLite file.

Examples:
  bridgelink relay --listen :8080
  bridgelink relay --db rooms.db --room-ttl 2h`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(func(o *config.Options) {
			o.Listen = relayFlags.listen
			o.Database = relayFlags.db
			o.RoomTTL = relayFlags.roomTTL
		})
		if err != nil {
			return err
		}
		if rootFlags.logFile != "" {
			closeLog, err := logging.ToFile(rootFlags.logFile)
			if err != nil {
				return err
			}
			defer closeLog()
		}

		store, err := openStore(cfg.Relay.Database)
		if err != nil {
			return err
		}
		defer store.Close()

		logger := slog.Default()
		hub := relay.NewHub(store, relay.HubOptions{
			RoomTTL: cfg.Relay.RoomTTL,
			Logger:  logger,
		})

		ui.PrintInfof("Relay listening on %s", cfg.Relay.Listen)
		return relay.ListenAndServe(cmd.Context(), cfg.Relay.Listen, hub, logger)
	},
}

func openStore(path string) (relay.Store, error) {
	if path == "" {
		return relay.NewMemoryStore(), nil
	}
	store, err := relay.OpenSQLite(path)
	if err != nil {
		return nil, transfer.NewError("open database", err)
	}
	ui.PrintInfof("Rooms stored in %s", path)
	return store, nil
}

func init() {
	rootCmd.AddCommand(relayCmd)

	relayCmd.Flags().StringVarP(&relayFlags.listen, "listen", "l", "", "Address to listen on (default :8080)")
	relayCmd.Flags().StringVar(&relayFlags.db, "db", "", "SQLite database file for rooms")
	relayCmd.Flags().DurationVar(&relayFlags.roomTTL, "room-ttl", 0, "Remove rooms older than this (default 24h)")
}

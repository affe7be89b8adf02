package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Candyboy02/bridge-link/internal/config"
	"github.com/Candyboy02/bridge-link/internal/transfer"
	"github.com/Candyboy02/bridge-link/internal/ui"
	"github.com/Candyboy02/bridge-link/internal/version"
	"github.com/spf13/cobra"
)

// rootFlags are shared by every subcommand.
var rootFlags struct {
	configFile string
	domain     string
	server     string
	namespace  string
	stun       []string
	turn       string
	turnUser   string
	turnPass   string
	relay      bool
	chunkSize  int
	highWater  uint64
	heartbeat  time.Duration
	debounce   time.Duration
	logFile    string
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bridgelink",
	Short: "Peer-to-peer chat and file transfer over WebRTC",
	Long: `BridgeLink connects two devices directly over a WebRTC data channel.
One side creates a room and shares its code, the other joins it. Once
connected, both sides can chat and send files without anything passing
through a server; the relay only carries the connection handshake.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

// loadConfig merges the command line flags over environment, config file
// and defaults.
func loadConfig(extra func(*config.Options)) (*config.Config, error) {
	opts := config.Options{
		ConfigFile:      rootFlags.configFile,
		Domain:          rootFlags.domain,
		ServerURL:       rootFlags.server,
		Namespace:       rootFlags.namespace,
		STUNServers:     rootFlags.stun,
		TURNServer:      rootFlags.turn,
		TURNUser:        rootFlags.turnUser,
		TURNPass:        rootFlags.turnPass,
		ForceRelay:      rootFlags.relay,
		ChunkSize:       rootFlags.chunkSize,
		HighWaterMark:   rootFlags.highWater,
		Heartbeat:       rootFlags.heartbeat,
		DisconnectGrace: rootFlags.debounce,
	}
	if extra != nil {
		extra(&opts)
	}

	cfg, err := config.Load(opts)
	if err != nil {
		return nil, transfer.NewError("load config", err)
	}
	return cfg, nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rootFlags.configFile, "config", "", "Config file (default <user config dir>/bridgelink/config.yaml)")
	flags.StringVarP(&rootFlags.domain, "domain", "d", "", "Custom domain")
	flags.StringVar(&rootFlags.server, "server", "", "Relay websocket URL (default wss://<domain>/ws)")
	flags.StringVar(&rootFlags.namespace, "namespace", "", "Room namespace on the relay")
	flags.StringSliceVarP(&rootFlags.stun, "stun", "s", nil, "Custom STUN server (repeatable)")
	flags.StringVarP(&rootFlags.turn, "turn", "t", "", "Custom TURN server")
	flags.StringVarP(&rootFlags.turnUser, "turn-user", "u", "", "TURN username")
	flags.StringVarP(&rootFlags.turnPass, "turn-pass", "p", "", "TURN password")
	flags.BoolVarP(&rootFlags.relay, "relay", "r", false, "Force relay mode")
	flags.IntVar(&rootFlags.chunkSize, "chunk-size", 0, "File chunk size in bytes (default 16384)")
	flags.Uint64Var(&rootFlags.highWater, "high-water", 0, "Send buffer high-water mark in bytes (default 65536)")
	flags.DurationVar(&rootFlags.heartbeat, "heartbeat", 0, "Heartbeat interval (default 3s)")
	flags.DurationVar(&rootFlags.debounce, "debounce", 0, "How long a disconnect must last before it is reported (default 3s)")
	flags.StringVar(&rootFlags.logFile, "log-file", "", "Write logs to this file")
}

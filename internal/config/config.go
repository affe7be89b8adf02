package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Candyboy02/bridge-link/internal/signaling"
	"gopkg.in/yaml.v3"
)

// Default configuration values (production)
const (
	DefaultDomain          = "bridgelink.qzz.io"
	DefaultChunkSize       = 16 * 1024
	DefaultHighWaterMark   = 64 * 1024
	DefaultHeartbeat       = 3 * time.Second
	DefaultDisconnectGrace = 3 * time.Second
	DefaultListen          = ":8080"
	DefaultRoomTTL         = 24 * time.Hour
)

// DefaultSTUNServers are the public STUN servers used when none are set.
var DefaultSTUNServers = []string{
	"stun:stun.miwifi.com",
	"stun:stun.qq.com",
	"stun:global.stun.twilio.com:3478",
	"stun:stun.l.google.com:19302",
}

// Config holds application configuration
type Config struct {
	// Domain is the relay and web client domain
	Domain string `yaml:"domain"`

	// ServerURL is the relay websocket endpoint, derived from Domain
	// unless set
	ServerURL string `yaml:"server"`

	// WebURL is where join links point
	WebURL string `yaml:"web_url"`

	// Namespace scopes room documents on the relay
	Namespace string `yaml:"namespace"`

	// ICE servers for WebRTC
	STUNServers []string `yaml:"stun_servers"`
	TURNServer  string   `yaml:"turn_server"`
	TURNUser    string   `yaml:"turn_username"`
	TURNPass    string   `yaml:"turn_password"`
	ForceRelay  bool     `yaml:"force_relay"`

	// Transfer and link tuning
	ChunkSize       int           `yaml:"chunk_size"`
	HighWaterMark   uint64        `yaml:"high_water_mark"`
	Heartbeat       time.Duration `yaml:"heartbeat"`
	DisconnectGrace time.Duration `yaml:"disconnect_grace"`

	// DownloadDir receives incoming files
	DownloadDir string `yaml:"download_dir"`

	Relay RelayConfig `yaml:"relay"`
}

// RelayConfig configures the signaling relay server.
type RelayConfig struct {
	Listen string `yaml:"listen"`
	// Database is a SQLite file; empty keeps rooms in memory.
	Database string        `yaml:"database"`
	RoomTTL  time.Duration `yaml:"room_ttl"`
}

// Options for loading config with CLI flag overrides. Zero values mean
// "not set on the command line".
type Options struct {
	ConfigFile      string
	Domain          string
	ServerURL       string
	Namespace       string
	STUNServers     []string
	TURNServer      string
	TURNUser        string
	TURNPass        string
	ForceRelay      bool
	ChunkSize       int
	HighWaterMark   uint64
	Heartbeat       time.Duration
	DisconnectGrace time.Duration
	DownloadDir     string
	Listen          string
	Database        string
	RoomTTL         time.Duration
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. YAML config file
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	file, err := loadFile(opts.ConfigFile)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.Domain = pick(opts.Domain, os.Getenv("DOMAIN"), file.Domain, DefaultDomain)
	cfg.ServerURL = pick(opts.ServerURL, os.Getenv("BRIDGELINK_SERVER"), file.ServerURL, fmt.Sprintf("wss://%s/ws", cfg.Domain))
	cfg.WebURL = pick("", os.Getenv("BRIDGELINK_WEB_URL"), file.WebURL, fmt.Sprintf("https://%s", cfg.Domain))
	cfg.Namespace = pick(opts.Namespace, os.Getenv("BRIDGELINK_NAMESPACE"), file.Namespace, signaling.DefaultNamespace)

	// Load STUN servers: CLI flag > env (comma separated) > file > default
	switch {
	case len(opts.STUNServers) > 0:
		cfg.STUNServers = opts.STUNServers
	case os.Getenv("STUN_SERVER") != "":
		cfg.STUNServers = splitList(os.Getenv("STUN_SERVER"))
	case len(file.STUNServers) > 0:
		cfg.STUNServers = file.STUNServers
	default:
		cfg.STUNServers = append([]string(nil), DefaultSTUNServers...)
	}

	cfg.TURNServer = pick(opts.TURNServer, os.Getenv("TURN_SERVER"), file.TURNServer, "")
	cfg.TURNUser = pick(opts.TURNUser, os.Getenv("TURN_USERNAME"), file.TURNUser, "")
	cfg.TURNPass = pick(opts.TURNPass, os.Getenv("TURN_PASSWORD"), file.TURNPass, "")
	cfg.ForceRelay = opts.ForceRelay || file.ForceRelay

	if cfg.ChunkSize, err = pickInt(opts.ChunkSize, "BRIDGELINK_CHUNK_SIZE", file.ChunkSize, DefaultChunkSize); err != nil {
		return nil, err
	}
	highWater, err := pickInt(int(opts.HighWaterMark), "BRIDGELINK_HIGH_WATER", int(file.HighWaterMark), DefaultHighWaterMark)
	if err != nil {
		return nil, err
	}
	cfg.HighWaterMark = uint64(highWater)

	if cfg.Heartbeat, err = pickDuration(opts.Heartbeat, "BRIDGELINK_HEARTBEAT", file.Heartbeat, DefaultHeartbeat); err != nil {
		return nil, err
	}
	if cfg.DisconnectGrace, err = pickDuration(opts.DisconnectGrace, "BRIDGELINK_DEBOUNCE", file.DisconnectGrace, DefaultDisconnectGrace); err != nil {
		return nil, err
	}

	cfg.DownloadDir = pick(opts.DownloadDir, os.Getenv("BRIDGELINK_DOWNLOAD_DIR"), file.DownloadDir, ".")

	cfg.Relay.Listen = pick(opts.Listen, os.Getenv("BRIDGELINK_LISTEN"), file.Relay.Listen, DefaultListen)
	cfg.Relay.Database = pick(opts.Database, os.Getenv("BRIDGELINK_DB"), file.Relay.Database, "")
	if cfg.Relay.RoomTTL, err = pickDuration(opts.RoomTTL, "BRIDGELINK_ROOM_TTL", file.Relay.RoomTTL, DefaultRoomTTL); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile reads the YAML config. An explicitly named file must exist;
// the default location is optional.
func loadFile(path string) (*Config, error) {
	explicit := true
	if path == "" {
		path = os.Getenv("BRIDGELINK_CONFIG")
	}
	if path == "" {
		explicit = false
		path = DefaultConfigPath()
		if path == "" {
			return &Config{}, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &file, nil
}

// DefaultConfigPath is <user config dir>/bridgelink/config.yaml, or "" if
// the platform has no user config directory.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "bridgelink", "config.yaml")
}

// Validate checks values that would break a session.
func (c *Config) Validate() error {
	switch {
	case c.ChunkSize <= 0:
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	case c.HighWaterMark < uint64(c.ChunkSize):
		return fmt.Errorf("high-water mark %d is below the chunk size %d", c.HighWaterMark, c.ChunkSize)
	case c.Heartbeat <= 0:
		return fmt.Errorf("heartbeat interval must be positive")
	case c.DisconnectGrace <= 0:
		return fmt.Errorf("disconnect grace period must be positive")
	case c.ForceRelay && c.TURNServer == "":
		return fmt.Errorf("force relay requires a TURN server")
	}
	return nil
}

// GetRoomLink returns the web link for joining a room
func (c *Config) GetRoomLink(roomID string) string {
	return signaling.JoinLink(c.WebURL, roomID)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return c.STUNServers
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turn:"), "turns:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func pickInt(flag int, env string, file, def int) (int, error) {
	if flag != 0 {
		return flag, nil
	}
	if v := os.Getenv(env); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", env, err)
		}
		return n, nil
	}
	if file != 0 {
		return file, nil
	}
	return def, nil
}

func pickDuration(flag time.Duration, env string, file, def time.Duration) (time.Duration, error) {
	if flag != 0 {
		return flag, nil
	}
	if v := os.Getenv(env); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", env, err)
		}
		return d, nil
	}
	if file != 0 {
		return file, nil
	}
	return def, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

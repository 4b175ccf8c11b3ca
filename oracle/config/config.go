package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/GPTx-global/ondemand/oracle/accounts"
	"github.com/GPTx-global/ondemand/oracle/log"
)

var (
	home         string
	globalConfig configData
	mu           sync.Mutex
)

type configData struct {
	Chain    chainConfig    `toml:"chain"`
	Gateway  gatewayConfig  `toml:"gateway"`
	Crossbar crossbarConfig `toml:"crossbar"`
	Keeper   keeperConfig   `toml:"keeper"`
	Log      logConfig      `toml:"log"`
}

type chainConfig struct {
	RPCEndpoint string `toml:"rpc_endpoint"`
	Network     string `toml:"network"`
	Timeout     string `toml:"timeout"`
}

type gatewayConfig struct {
	URL      string `toml:"url"`
	Discover bool   `toml:"discover"`
	Debug    bool   `toml:"debug"`
}

type crossbarConfig struct {
	URL string `toml:"url"`
}

type keeperConfig struct {
	Feeds         []string `toml:"feeds"`
	Interval      string   `toml:"interval"`
	Workers       int      `toml:"workers"`
	Payer         string   `toml:"payer"`
	NumSignatures uint32   `toml:"num_signatures"`
	MaxRetries    int      `toml:"max_retries"`
}

type logConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func defaultConfig() configData {
	return configData{
		Chain: chainConfig{
			RPCEndpoint: "https://api.devnet.solana.com",
			Network:     "devnet",
			Timeout:     "10s",
		},
		Gateway: gatewayConfig{
			Discover: true,
		},
		Crossbar: crossbarConfig{
			URL: "https://crossbar.switchboard.xyz",
		},
		Keeper: keeperConfig{
			Feeds:      []string{},
			Interval:   "30s",
			Workers:    4,
			MaxRetries: 3,
		},
		Log: logConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads <dir>/config.toml, writing the defaults there first when the
// file does not exist.
func Load(dir string) error {
	mu.Lock()
	defer mu.Unlock()

	home = dir
	path := filepath.Join(dir, "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefaultConfig(path); err != nil {
			return fmt.Errorf("failed to create default config: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse TOML: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	globalConfig = cfg

	log.Infof("Loaded config from %s", path)
	return nil
}

// Overlay applies values set on v, from flags or ONDEMAND_* variables, on
// top of the loaded file. Keys use the file's section.key names.
func Overlay(v *viper.Viper) error {
	mu.Lock()
	defer mu.Unlock()

	cfg := globalConfig
	if v.IsSet("chain.rpc_endpoint") {
		cfg.Chain.RPCEndpoint = v.GetString("chain.rpc_endpoint")
	}
	if v.IsSet("chain.network") {
		cfg.Chain.Network = v.GetString("chain.network")
	}
	if v.IsSet("chain.timeout") {
		cfg.Chain.Timeout = v.GetString("chain.timeout")
	}
	if v.IsSet("gateway.url") {
		cfg.Gateway.URL = v.GetString("gateway.url")
	}
	if v.IsSet("gateway.discover") {
		cfg.Gateway.Discover = v.GetBool("gateway.discover")
	}
	if v.IsSet("gateway.debug") {
		cfg.Gateway.Debug = v.GetBool("gateway.debug")
	}
	if v.IsSet("crossbar.url") {
		cfg.Crossbar.URL = v.GetString("crossbar.url")
	}
	if v.IsSet("keeper.feeds") {
		cfg.Keeper.Feeds = cast.ToStringSlice(v.Get("keeper.feeds"))
	}
	if v.IsSet("keeper.interval") {
		cfg.Keeper.Interval = v.GetString("keeper.interval")
	}
	if v.IsSet("keeper.workers") {
		workers, err := cast.ToIntE(v.Get("keeper.workers"))
		if err != nil {
			return fmt.Errorf("keeper.workers: %w", err)
		}
		cfg.Keeper.Workers = workers
	}
	if v.IsSet("keeper.payer") {
		cfg.Keeper.Payer = v.GetString("keeper.payer")
	}
	if v.IsSet("keeper.num_signatures") {
		n, err := cast.ToUint32E(v.Get("keeper.num_signatures"))
		if err != nil {
			return fmt.Errorf("keeper.num_signatures: %w", err)
		}
		cfg.Keeper.NumSignatures = n
	}
	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
	if v.IsSet("log.format") {
		cfg.Log.Format = v.GetString("log.format")
	}

	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	globalConfig = cfg
	return nil
}

// DefaultHome is ~/.ondemand.
func DefaultHome() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("Failed to get user home directory: %v", err)
	}

	return filepath.Join(dir, ".ondemand")
}

func createDefaultConfig(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := toml.Marshal(defaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal TOML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(cfg configData) error {
	if cfg.Chain.RPCEndpoint == "" {
		return fmt.Errorf("chain rpc endpoint is required")
	}

	if _, err := accounts.ProgramForNetwork(cfg.Chain.Network); err != nil {
		return err
	}

	if _, err := cast.ToDurationE(cfg.Chain.Timeout); err != nil {
		return fmt.Errorf("chain timeout: %w", err)
	}

	if !cfg.Gateway.Discover && cfg.Gateway.URL == "" {
		return fmt.Errorf("gateway url is required when discovery is off")
	}

	if cfg.Crossbar.URL == "" {
		return fmt.Errorf("crossbar url is required")
	}

	interval, err := cast.ToDurationE(cfg.Keeper.Interval)
	if err != nil {
		return fmt.Errorf("keeper interval: %w", err)
	}
	if interval <= 0 {
		return fmt.Errorf("keeper interval must be positive")
	}

	if cfg.Keeper.Workers <= 0 {
		return fmt.Errorf("keeper workers must be positive")
	}

	for _, f := range cfg.Keeper.Feeds {
		if _, err := solana.PublicKeyFromBase58(f); err != nil {
			return fmt.Errorf("keeper feed %q: %w", f, err)
		}
	}

	if cfg.Keeper.Payer != "" {
		if _, err := solana.PublicKeyFromBase58(cfg.Keeper.Payer); err != nil {
			return fmt.Errorf("keeper payer: %w", err)
		}
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("log format must be console or json, got %q", cfg.Log.Format)
	}

	return nil
}

func Print() {
	log.Infof("%-15s: %s", "Home", Home())
	log.Infof("%-15s: %s", "RPC Endpoint", RPCEndpoint())
	log.Infof("%-15s: %s", "Network", Network())
	log.Infof("%-15s: %s", "Timeout", Timeout())
	log.Infof("%-15s: %s", "Gateway", GatewayURL())
	log.Infof("%-15s: %t", "Discover", DiscoverGateway())
	log.Infof("%-15s: %s", "Crossbar", CrossbarURL())
	log.Infof("%-15s: %d", "Keeper Feeds", len(KeeperFeeds()))
	log.Infof("%-15s: %s", "Keeper Every", KeeperInterval())
	log.Infof("%-15s: %d", "Keeper Workers", KeeperWorkers())
}

func Home() string {
	return home
}

func RPCEndpoint() string {
	return globalConfig.Chain.RPCEndpoint
}

func Network() string {
	return globalConfig.Chain.Network
}

func Program() accounts.Program {
	p, err := accounts.ProgramForNetwork(Network())
	if err != nil {
		log.Fatalf("Invalid network: %v", err)
	}

	return p
}

func Timeout() time.Duration {
	return cast.ToDuration(globalConfig.Chain.Timeout)
}

func GatewayURL() string {
	mu.Lock()
	defer mu.Unlock()

	return globalConfig.Gateway.URL
}

// SetGatewayURL records the gateway picked by discovery.
func SetGatewayURL(url string) {
	mu.Lock()
	defer mu.Unlock()

	globalConfig.Gateway.URL = url
}

func DiscoverGateway() bool {
	return globalConfig.Gateway.Discover
}

func GatewayDebug() bool {
	return globalConfig.Gateway.Debug
}

func CrossbarURL() string {
	return globalConfig.Crossbar.URL
}

func KeeperFeeds() []solana.PublicKey {
	out := make([]solana.PublicKey, 0, len(globalConfig.Keeper.Feeds))
	for _, f := range globalConfig.Keeper.Feeds {
		out = append(out, solana.MustPublicKeyFromBase58(f))
	}

	return out
}

func KeeperInterval() time.Duration {
	return cast.ToDuration(globalConfig.Keeper.Interval)
}

func KeeperWorkers() int {
	return globalConfig.Keeper.Workers
}

func Payer() solana.PublicKey {
	if globalConfig.Keeper.Payer == "" {
		return solana.PublicKey{}
	}

	return solana.MustPublicKeyFromBase58(globalConfig.Keeper.Payer)
}

func NumSignatures() uint32 {
	return globalConfig.Keeper.NumSignatures
}

func MaxRetries() int {
	return globalConfig.Keeper.MaxRetries
}

func LogLevel() string {
	return globalConfig.Log.Level
}

func LogFormat() string {
	return strings.ToLower(globalConfig.Log.Format)
}

func ChannelSize() int {
	return 1 << 10
}

func SetForTesting(endpoint, network, gatewayURL, crossbarURL string, feeds []string, interval string, workers int) {
	mu.Lock()
	defer mu.Unlock()

	globalConfig = defaultConfig()
	globalConfig.Chain.RPCEndpoint = endpoint
	globalConfig.Chain.Network = network
	globalConfig.Gateway.URL = gatewayURL
	globalConfig.Gateway.Discover = gatewayURL == ""
	globalConfig.Crossbar.URL = crossbarURL
	globalConfig.Keeper.Feeds = feeds
	globalConfig.Keeper.Interval = interval
	globalConfig.Keeper.Workers = workers
}

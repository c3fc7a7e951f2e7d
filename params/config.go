package params

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Processor holds the external endpoints and historical constants the
// transaction processor needs (spec.md §6).
type Processor struct {
	ValidatorURL    string
	GatewayURL      string
	DealExpFixBlock uint64
}

// Node holds process-level operability settings.
type Node struct {
	LogFile          string
	MigrationLogPath string
}

// Settings controls the settings-cache refresher (spec.md §4.3, §5).
type Settings struct {
	RefreshInterval time.Duration
}

type Config struct {
	Processor Processor
	Node      Node
	Settings  Settings
}

// defaultMigrationLogPath returns the platform-fixed migration log
// location spec.md §6 uses to decide replay vs. normal mode.
func defaultMigrationLogPath() string {
	if os.PathSeparator == '\\' {
		return `C:\transition.txt`
	}
	return "/home/Creditcoin/cctt/data/transition.txt"
}

// Default returns the out-of-the-box configuration.
func Default() Config {
	return Config{
		Processor: Processor{
			ValidatorURL:    "tcp://localhost:4004",
			GatewayURL:      "tcp://localhost:55555",
			DealExpFixBlock: 278890,
		},
		Node: Node{
			LogFile:          "data/processor.log",
			MigrationLogPath: defaultMigrationLogPath(),
		},
		Settings: Settings{
			RefreshInterval: 6 * time.Second,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("VALIDATOR_URL"); v != "" {
		cfg.Processor.ValidatorURL = v
	}
	if v := os.Getenv("GATEWAY_URL"); v != "" {
		cfg.Processor.GatewayURL = v
	}
	if v := os.Getenv("DEAL_EXP_FIX_BLOCK"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Processor.DealExpFixBlock = n
		}
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("MIGRATION_LOG_PATH"); v != "" {
		cfg.Node.MigrationLogPath = v
	}
	if v := os.Getenv("SETTINGS_REFRESH_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Settings.RefreshInterval = time.Duration(ms) * time.Millisecond
		}
	}

	return cfg
}

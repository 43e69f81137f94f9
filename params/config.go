package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Ledger identifies the order-flow contract and the chain it lives on.
// ChainID is the single expected network identity: connecting against any
// other chain is refused, never silently switched.
type Ledger struct {
	ContractAddress string
	ChainID         int64
	ChainName       string
	RPCURL          string
	ExplorerURL     string
	CurrencyName    string
	CurrencySymbol  string
}

type Sync struct {
	// PollInterval paces the periodic full refresh of the order cache.
	PollInterval time.Duration
	// SettleDelay is waited after a contract event before reading, so the
	// read does not observe a block that has not finalized on the RPC node.
	SettleDelay time.Duration
}

type Conn struct {
	// Timeout bounds the wallet account request and the reachability probe
	// during connect.
	Timeout time.Duration
}

type API struct {
	ListenAddr     string
	AllowedOrigins []string
}

type Config struct {
	Ledger Ledger
	Sync   Sync
	Conn   Conn
	API    API
}

func Default() Config {
	return Config{
		Ledger: Ledger{
			ContractAddress: "0xa50e77Ae17F290Cfb0E2F29B4F2d9D0071Cb6D63",
			ChainID:         43113,
			ChainName:       "Avalanche Fuji Testnet",
			RPCURL:          "https://api.avax-test.network/ext/bc/C/rpc",
			ExplorerURL:     "https://testnet.snowtrace.io",
			CurrencyName:    "Avalanche",
			CurrencySymbol:  "AVAX",
		},
		Sync: Sync{
			PollInterval: 30 * time.Second,
			SettleDelay:  time.Second,
		},
		Conn: Conn{
			Timeout: 10 * time.Second,
		},
		API: API{
			ListenAddr:     ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("CONTRACT_ADDRESS"); v != "" {
		cfg.Ledger.ContractAddress = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Ledger.ChainID = id
		}
	}
	if v := os.Getenv("CHAIN_NAME"); v != "" {
		cfg.Ledger.ChainName = v
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Ledger.RPCURL = v
	}
	if v := os.Getenv("EXPLORER_URL"); v != "" {
		cfg.Ledger.ExplorerURL = v
	}

	if v := os.Getenv("SYNC_POLL_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Sync.PollInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("SYNC_SETTLE_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Sync.SettleDelay = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("CONNECT_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Conn.Timeout = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("API_LISTEN"); v != "" {
		cfg.API.ListenAddr = v
	}
	if v := os.Getenv("API_ALLOWED_ORIGINS"); v != "" {
		cfg.API.AllowedOrigins = strings.Split(v, ",")
	}

	return cfg
}

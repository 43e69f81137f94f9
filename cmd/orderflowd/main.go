package main

import (
	"context"
	"errors"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyunjk/orderflow/params"
	"github.com/hyunjk/orderflow/pkg/api"
	"github.com/hyunjk/orderflow/pkg/conn"
	"github.com/hyunjk/orderflow/pkg/crypto"
	"github.com/hyunjk/orderflow/pkg/ledger"
	"github.com/hyunjk/orderflow/pkg/orders"
	"github.com/hyunjk/orderflow/pkg/util"
	"github.com/hyunjk/orderflow/pkg/wallet"
)

func main() {
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/orderflowd.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	// ---- Wallet ----
	// The signer plays the unlocked wallet account; without a key the
	// connect path fails with the wallet-unavailable error, same as a
	// missing browser wallet would.
	var signer *crypto.Signer
	if key := os.Getenv("PRIVATE_KEY"); key != "" {
		signer, err = crypto.FromPrivateKeyHex(key)
		if err != nil {
			sugar.Fatalw("bad_private_key", "err", err)
		}
		sugar.Infow("wallet_loaded", "account", signer.Address().Hex())
	} else {
		sugar.Warn("no PRIVATE_KEY set; connect will fail until one is provided")
	}

	chain := wallet.ChainParams{
		ChainID:        big.NewInt(cfg.Ledger.ChainID),
		Name:           cfg.Ledger.ChainName,
		CurrencyName:   cfg.Ledger.CurrencyName,
		CurrencySymbol: cfg.Ledger.CurrencySymbol,
		Decimals:       18,
		RPCURLs:        []string{cfg.Ledger.RPCURL},
		ExplorerURLs:   []string{cfg.Ledger.ExplorerURL},
	}
	host := wallet.NewLocal(signer, chain, sugar)
	defer host.Close()

	// ---- Connection manager ----
	contractAddr := common.HexToAddress(cfg.Ledger.ContractAddress)
	manager := conn.NewManager(conn.ManagerConfig{
		Wallet:  host,
		Chain:   chain,
		Timeout: cfg.Conn.Timeout,
		Log:     sugar,
		Open: func(ctx context.Context, account common.Address, chainID *big.Int) (ledger.API, error) {
			auth, err := host.TransactOpts(chainID)
			if err != nil {
				return nil, err
			}
			return ledger.Dial(ctx, host.RPCURL(), contractAddr, auth, cfg.Conn.Timeout, sugar)
		},
	})
	defer manager.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := manager.Connect(ctx)
	if err != nil {
		var mismatch *conn.NetworkMismatchError
		if errors.As(err, &mismatch) && os.Getenv("AUTO_SWITCH_NETWORK") == "true" {
			sugar.Infow("switching_network", "target", mismatch.Want.String())
			if err := manager.SwitchNetwork(ctx); err != nil {
				sugar.Fatalw("network_switch_failed", "err", err)
			}
			// Chain switch tears the environment down; reconnect explicitly.
			session, err = manager.Connect(ctx)
		}
		if err != nil {
			sugar.Fatalw("connect_failed", "err", err)
		}
	}

	// ---- Sync engine + dispatcher ----
	store := orders.NewStore()
	engine := orders.NewEngine(orders.EngineConfig{
		Session:      session,
		Store:        store,
		PollInterval: cfg.Sync.PollInterval,
		SettleDelay:  cfg.Sync.SettleDelay,
		Log:          sugar,
	})
	dispatcher := orders.NewDispatcher(session, store, engine, sugar)

	dispatch := func() *orders.Dispatcher {
		if s := manager.Session(); s == nil || !s.Active() {
			return nil
		}
		return dispatcher
	}

	// ---- API ----
	server := api.NewServer(store, dispatch, manager, cfg.API.AllowedOrigins, sugar)
	engine.SetOnPublish(server.BroadcastSnapshot)
	engine.Start()
	defer engine.Stop()

	go func() {
		if err := server.Start(cfg.API.ListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("orderflowd_started",
		"contract", cfg.Ledger.ContractAddress,
		"chain_id", cfg.Ledger.ChainID,
		"poll_interval", cfg.Sync.PollInterval.String(),
		"api", cfg.API.ListenAddr)

	select {
	case <-ctx.Done():
		sugar.Info("shutdown_signal")
	case <-session.Done():
		// Account/chain change killed the session; serving the stale cache
		// is pointless for a headless daemon, so exit and let the
		// supervisor restart with fresh state.
		sugar.Info("session_died")
	}

	manager.Disconnect()
}

package walletclient

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bsv-blockchain/go-wallet-toolbox/pkg/defs"
	"github.com/bsv-blockchain/go-wallet-toolbox/pkg/monitor"
	"github.com/bsv-blockchain/go-wallet-toolbox/pkg/services"
	"github.com/bsv-blockchain/go-wallet-toolbox/pkg/storage"
	"github.com/bsv-blockchain/go-wallet-toolbox/pkg/wallet"
	"github.com/bsv-blockchain/go-wallet-toolbox/pkg/wdk"
)

// ToolboxWallet is the certifier's self-custodied wallet: GORM-backed
// storage, chain services, and the monitor daemon that tracks broadcast
// transactions. It implements Ops through the embedded wallet.
type ToolboxWallet struct {
	*wallet.Wallet
	storage *storage.Provider
	monitor *monitor.Daemon
	logger  *slog.Logger
}

// ToolboxConfig configures the embedded wallet.
type ToolboxConfig struct {
	PrivateKeyHex string
	Network       string
	DBPath        string
}

// NewToolboxWallet builds and migrates the wallet storage, constructs the
// wallet, and starts the monitor daemon. The daemon is best-effort: the
// certifier still functions without it, it just confirms transactions slower.
func NewToolboxWallet(ctx context.Context, cfg ToolboxConfig, logger *slog.Logger) (*ToolboxWallet, error) {
	network, err := defs.ParseBSVNetworkStr(cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet network %q: %w", cfg.Network, err)
	}

	activeServices := services.New(logger, defs.DefaultServicesConfig(network))

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create wallet data directory: %w", err)
	}

	identityKey, err := wdk.IdentityKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("derive identity key: %w", err)
	}

	dbConfig := defs.DefaultDBConfig()
	dbConfig.Engine = defs.DBTypeSQLite
	dbConfig.SQLite.ConnectionString = cfg.DBPath

	activeStorage, err := storage.NewGORMProvider(network, activeServices,
		storage.WithDBConfig(dbConfig),
		storage.WithFeeModel(defs.FeeModel{Type: defs.SatPerKB, Value: 100}),
		storage.WithCommission(defs.DefaultCommission()),
		storage.WithLogger(logger),
		storage.WithBackgroundBroadcasterContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("create wallet storage: %w", err)
	}
	if _, err := activeStorage.Migrate(ctx, "commonsource certifier", identityKey); err != nil {
		return nil, fmt.Errorf("migrate wallet storage: %w", err)
	}

	w, err := wallet.New(network, cfg.PrivateKeyHex, activeStorage,
		wallet.WithLogger(logger),
		wallet.WithServices(activeServices),
	)
	if err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}

	tw := &ToolboxWallet{
		Wallet:  w,
		storage: activeStorage,
		logger:  logger,
	}

	daemon, err := monitor.NewDaemonWithGORMLocker(ctx, logger, activeStorage, activeStorage.Database.DB)
	if err != nil {
		logger.Warn("wallet monitor unavailable", "error", err)
		return tw, nil
	}
	monitorTasks := defs.DefaultMonitorConfig().Tasks
	if err := daemon.Start(monitorTasks.EnabledTasks()); err != nil {
		logger.Warn("wallet monitor failed to start", "error", err)
		return tw, nil
	}
	tw.monitor = daemon
	return tw, nil
}

// Close stops the monitor and releases the wallet.
func (t *ToolboxWallet) Close() {
	if t.monitor != nil {
		if err := t.monitor.Stop(); err != nil {
			t.logger.Warn("wallet monitor stop failed", "error", err)
		}
	}
	t.Wallet.Close()
}

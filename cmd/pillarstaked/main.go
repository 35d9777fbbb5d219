package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pillarstake/config"
	"pillarstake/core/events"
	coretypes "pillarstake/core/types"
	"pillarstake/native/dao"
	"pillarstake/native/membership"
	"pillarstake/native/staking"
	"pillarstake/native/token"
	"pillarstake/observability"
	"pillarstake/observability/logging"
	"pillarstake/observability/otel"
	"pillarstake/rpc"
	"pillarstake/state"
	"pillarstake/storage"
)

const serviceName = "pillarstaked"

func main() {
	configPath := flag.String("config", "./config.toml", "path to the service configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(serviceName, cfg.Environment)

	if err := run(cfg, logger); err != nil {
		logger.Error("service exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := otel.Init(ctx, otel.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		return fmt.Errorf("open ledger database: %w", err)
	}
	defer db.Close()
	store := state.NewStore(db)

	operator := cfg.OperatorAddress()
	stakingCustody := moduleAddress("pillarstake/staking/custody")
	vaultCustody := moduleAddress("pillarstake/dao/custody")

	stakingAsset := token.NewLedger("Pillar", "PLR", operator)
	rewardAsset := token.NewLedger("Pillar Reward", "rPLR", operator)
	receipt := token.NewRestrictedLedger("Staked Pillar", "stPLR", stakingCustody)

	members := membership.NewRegistry("Pillar DAO Membership", "PDM", operator)
	if err := members.SetController(operator, vaultCustody); err != nil {
		return fmt.Errorf("assign membership controller: %w", err)
	}
	if cfg.DAO.MembershipURI != "" {
		if err := members.SetBaseURI(operator, cfg.DAO.MembershipURI); err != nil {
			return fmt.Errorf("set membership URI: %w", err)
		}
	}

	minStake, err := config.Amount(cfg.Staking.MinStake)
	if err != nil {
		return fmt.Errorf("parse staking.MinStake: %w", err)
	}
	maxStake, err := config.Amount(cfg.Staking.MaxStake)
	if err != nil {
		return fmt.Errorf("parse staking.MaxStake: %w", err)
	}
	maxTotal, err := config.Amount(cfg.Staking.MaxTotalStake)
	if err != nil {
		return fmt.Errorf("parse staking.MaxTotalStake: %w", err)
	}
	engine, err := staking.NewEngine(staking.Config{
		Operator:        operator,
		Custody:         stakingCustody,
		StakingAsset:    stakingAsset,
		RewardAsset:     rewardAsset,
		Receipt:         receipt,
		MinStake:        minStake,
		MaxStake:        maxStake,
		MaxTotalStake:   maxTotal,
		StakeablePeriod: cfg.Staking.StakeablePeriodSecs,
		LockupDuration:  cfg.Staking.LockupDurationSecs,
	})
	if err != nil {
		return fmt.Errorf("construct staking engine: %w", err)
	}

	membershipStake, err := config.Amount(cfg.DAO.MembershipStake)
	if err != nil {
		return fmt.Errorf("parse dao.MembershipStake: %w", err)
	}
	preExisting := make([][20]byte, 0, len(cfg.DAO.PreExistingMembers))
	for _, raw := range cfg.DAO.PreExistingMembers {
		preExisting = append(preExisting, common.HexToAddress(raw))
	}
	vault, err := dao.NewVault(dao.Config{
		Operator:           operator,
		Custody:            vaultCustody,
		Asset:              stakingAsset,
		Credentials:        members,
		StakingAmount:      membershipStake,
		LockupDuration:     cfg.DAO.LockupDurationSecs,
		PreExistingMembers: preExisting,
	})
	if err != nil {
		return fmt.Errorf("construct dao vault: %w", err)
	}

	emitter := &logEmitter{log: logger}
	engine.SetEmitter(emitter)
	vault.SetEmitter(emitter)
	members.SetEmitter(emitter)

	restored, err := restore(store, engine, vault, members, stakingAsset, rewardAsset, receipt)
	if err != nil {
		return fmt.Errorf("restore ledger state: %w", err)
	}
	if restored {
		logger.Info("ledger state restored", "dataDir", cfg.DataDir)
	} else {
		if err := applyGenesis(cfg, operator, stakingAsset, rewardAsset); err != nil {
			return fmt.Errorf("apply genesis balances: %w", err)
		}
		logger.Info("ledger initialized from genesis")
	}

	persist := func() error {
		return persistAll(store, engine, vault, members, stakingAsset, rewardAsset, receipt)
	}
	if err := persist(); err != nil {
		return fmt.Errorf("write initial snapshot: %w", err)
	}

	server := rpc.NewServer(rpc.ServerConfig{
		Logger:       logger,
		Engine:       engine,
		Vault:        vault,
		Members:      members,
		StakingAsset: stakingAsset,
		RewardAsset:  rewardAsset,
		Receipt:      receipt,
		Metrics:      observability.Metrics(),
		Persist:      persist,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", otelhttp.NewHandler(server.Handler(), "rpc"))

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func restore(store *state.Store, engine *staking.Engine, vault *dao.Vault, members *membership.Registry, stakingAsset, rewardAsset, receipt *token.Ledger) (bool, error) {
	ok, err := store.Has(state.KeyStakingEngine)
	if err != nil || !ok {
		return false, err
	}
	var engineSnap staking.Snapshot
	if err := store.Load(state.KeyStakingEngine, &engineSnap); err != nil {
		return false, err
	}
	if err := engine.Restore(engineSnap); err != nil {
		return false, err
	}
	for _, entry := range []struct {
		key    string
		ledger *token.Ledger
	}{
		{state.KeyStakingAsset, stakingAsset},
		{state.KeyRewardAsset, rewardAsset},
		{state.KeyReceiptToken, receipt},
	} {
		var snap token.Snapshot
		if err := store.Load(entry.key, &snap); err != nil {
			return false, err
		}
		if err := entry.ledger.Restore(snap); err != nil {
			return false, err
		}
	}
	var memberSnap membership.Snapshot
	if err := store.Load(state.KeyMembership, &memberSnap); err != nil {
		return false, err
	}
	if err := members.Restore(memberSnap); err != nil {
		return false, err
	}
	var vaultSnap dao.Snapshot
	if err := store.Load(state.KeyVault, &vaultSnap); err != nil {
		return false, err
	}
	if err := vault.Restore(vaultSnap); err != nil {
		return false, err
	}
	return true, nil
}

func persistAll(store *state.Store, engine *staking.Engine, vault *dao.Vault, members *membership.Registry, stakingAsset, rewardAsset, receipt *token.Ledger) error {
	for _, entry := range []struct {
		key  string
		snap any
	}{
		{state.KeyStakingEngine, engine.Snapshot()},
		{state.KeyStakingAsset, stakingAsset.Snapshot()},
		{state.KeyRewardAsset, rewardAsset.Snapshot()},
		{state.KeyReceiptToken, receipt.Snapshot()},
		{state.KeyMembership, members.Snapshot()},
		{state.KeyVault, vault.Snapshot()},
	} {
		if err := store.Save(entry.key, entry.snap); err != nil {
			return err
		}
	}
	return nil
}

func applyGenesis(cfg *config.Config, operator [20]byte, stakingAsset, rewardAsset *token.Ledger) error {
	for _, entry := range []struct {
		ledger   *token.Ledger
		balances map[string]string
	}{
		{stakingAsset, cfg.Genesis.StakingBalances},
		{rewardAsset, cfg.Genesis.RewardBalances},
	} {
		for raw, amount := range entry.balances {
			parsed, err := config.Amount(amount)
			if err != nil {
				return fmt.Errorf("genesis balance for %s: %w", raw, err)
			}
			if parsed.Sign() == 0 {
				continue
			}
			if err := entry.ledger.Mint(operator, common.HexToAddress(raw), parsed); err != nil {
				return err
			}
		}
	}
	return nil
}

// moduleAddress derives a stable custody account from a tag. Funds held at
// these accounts are controlled exclusively through engine operations.
func moduleAddress(tag string) [20]byte {
	var addr [20]byte
	copy(addr[:], crypto.Keccak256([]byte(tag))[12:])
	return addr
}

// logEmitter mirrors ledger events onto the structured log.
type logEmitter struct {
	log *slog.Logger
}

func (l *logEmitter) Emit(evt events.Event) {
	attrs := []any{"type", evt.EventType()}
	if carrier, ok := evt.(interface{ Event() *coretypes.Event }); ok {
		if payload := carrier.Event(); payload != nil {
			for k, v := range payload.Attributes {
				attrs = append(attrs, k, v)
			}
		}
	}
	l.log.Info("event", attrs...)
}

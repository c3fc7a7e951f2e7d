// Command processor is the Creditcoin transaction processor entrypoint:
// CLI `processor [-dealExpFixBlock:N] [validatorURL [gatewayURL]]`
// (spec.md §6). A real deployment registers this process's dispatcher
// with the host validator's transaction-processor SDK over the
// validatorURL socket; that registration layer is the host's own (it is
// explicitly delegated per spec.md §1's Non-goals), so this binary runs
// standalone against a local PebbleStore and, when the platform-fixed
// migration log is present, the replay engine — both fully exercised
// without a live validator.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/creditcoin-project/ccprocessor/params"
	"github.com/creditcoin-project/ccprocessor/pkg/admin"
	"github.com/creditcoin-project/ccprocessor/pkg/gateway"
	"github.com/creditcoin-project/ccprocessor/pkg/replay"
	"github.com/creditcoin-project/ccprocessor/pkg/settings"
	"github.com/creditcoin-project/ccprocessor/pkg/state"
	"github.com/creditcoin-project/ccprocessor/pkg/util"
	"github.com/creditcoin-project/ccprocessor/pkg/verbs"
)

const defaultFamilyVersion = "1.7"

func main() {
	os.Exit(run())
}

// run returns the process exit code: 0 on clean shutdown, -1 on an
// unexpected exception, matching spec.md §6.
func run() int {
	cfg, err := parseArgs(os.Args[1:])
	if err != nil {
		log.Printf("processor: %v", err)
		return -1
	}

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Printf("processor: logger init failed: %v", err)
		return -1
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("processor_starting",
		"validator_url", cfg.Processor.ValidatorURL,
		"gateway_url", cfg.Processor.GatewayURL,
		"deal_exp_fix_block", cfg.Processor.DealExpFixBlock)

	dataDir := os.Getenv("STATE_DB_PATH")
	if dataDir == "" {
		dataDir = "data/state.db"
	}
	pebble, err := state.NewPebbleStore(dataDir)
	if err != nil {
		sugar.Errorw("state_store_open_failed", "path", dataDir, "err", err)
		return -1
	}
	defer pebble.Close()

	store := state.NewAccessor(pebble)
	settingsCache := settings.NewCache(store, sugar)
	if err := settingsCache.Refresh(); err != nil {
		sugar.Warnw("settings_refresh_failed", "err", err)
	}
	stopRefresher := make(chan struct{})
	defer close(stopRefresher)
	settingsCache.StartRefresher(cfg.Settings.RefreshInterval, stopRefresher)

	gw := gateway.New(cfg.Processor.GatewayURL, settingsCache.GatewayURL, 5*time.Second, sugar)
	defer gw.Close()

	rt := &verbs.Runtime{
		Store:           store,
		Settings:        settingsCache,
		Gateway:         gw,
		Clock:           util.RealClock{},
		Logger:          sugar,
		DealExpFixBlock: cfg.Processor.DealExpFixBlock,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var engine *replay.Engine
	if _, statErr := os.Stat(cfg.Node.MigrationLogPath); statErr == nil {
		f, openErr := os.Open(cfg.Node.MigrationLogPath)
		if openErr != nil {
			sugar.Errorw("migration_log_open_failed", "path", cfg.Node.MigrationLogPath, "err", openErr)
			return -1
		}
		blocks, parseErr := replay.ParseLog(f)
		f.Close()
		if parseErr != nil {
			sugar.Errorw("migration_log_parse_failed", "path", cfg.Node.MigrationLogPath, "err", parseErr)
			return -1
		}
		engine = replay.NewEngine(blocks, pebble, rt, defaultFamilyVersion)
		engine.ExitFunc = stop
		sugar.Infow("replay_mode_enabled", "path", cfg.Node.MigrationLogPath, "blocks", len(blocks))
	} else {
		sugar.Infow("normal_mode", "migration_log_path", cfg.Node.MigrationLogPath)
	}

	var replaySource admin.ReplaySource
	if engine != nil {
		replaySource = engine
	}
	adminServer := admin.NewServer(store, settingsCache, replaySource, sugar)
	if engine != nil {
		hub := adminServer.Hub()
		engine.OnApplied = func(guid, verb string, head uint64, applyErr error) {
			event := admin.TxEvent{ID: uuid.NewString(), GUID: guid, Verb: verb, Head: head, Replay: true}
			if applyErr != nil {
				event.Error = applyErr.Error()
			}
			hub.Publish(event)
		}
	}

	adminAddr := os.Getenv("ADMIN_ADDR")
	if adminAddr == "" {
		adminAddr = ":8090"
	}
	go func() {
		if err := adminServer.Start(adminAddr); err != nil {
			sugar.Errorw("admin_server_failed", "err", err)
		}
	}()

	sugar.Info("processor_ready")
	<-ctx.Done()
	sugar.Info("processor_shutting_down")
	return 0
}

// parseArgs applies the CLI grammar on top of the .env/environment
// config: `[-dealExpFixBlock:N] [validatorURL [gatewayURL]]`.
func parseArgs(args []string) (params.Config, error) {
	cfg := params.LoadFromEnv("")

	var positional []string
	for _, a := range args {
		if strings.HasPrefix(a, "-dealExpFixBlock:") {
			v := strings.TrimPrefix(a, "-dealExpFixBlock:")
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return cfg, err
			}
			cfg.Processor.DealExpFixBlock = n
			continue
		}
		positional = append(positional, a)
	}

	if len(positional) > 0 {
		cfg.Processor.ValidatorURL = positional[0]
	}
	if len(positional) > 1 {
		cfg.Processor.GatewayURL = positional[1]
	}
	return cfg, nil
}

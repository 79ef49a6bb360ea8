// resolverd runs the resolver agent with its HTTP control surface. The two
// ledgers it operates on are local LevelDB-backed sandboxes; connectivity to
// external chains (wallets, transaction submission) is deliberately out of
// scope and handled by operator tooling around this daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"crosslock/chain"
	"crosslock/config"
	"crosslock/core/events"
	"crosslock/native/escrow"
	"crosslock/native/resolver"
	"crosslock/observability/logging"
	"crosslock/observability/metrics"
	"crosslock/rpc"
	"crosslock/storage"
)

func main() {
	configPath := flag.String("config", "resolverd.toml", "path to the TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup("resolverd", "", logging.Options{}).Error("load config", "err", err)
		os.Exit(1)
	}
	log := logging.Setup("resolverd", cfg.Environment, logging.Options{FilePath: cfg.LogFile})
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}

	srcDB, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "src"))
	if err != nil {
		log.Error("open source ledger", "err", err)
		os.Exit(1)
	}
	defer srcDB.Close()
	dstDB, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "dst"))
	if err != nil {
		log.Error("open destination ledger", "err", err)
		os.Exit(1)
	}
	defer dstDB.Close()

	recorder := events.NewRecorder()
	emitter := metrics.EventCounter{Next: recorder}

	src := buildBackend(srcDB, cfg.Source, emitter)
	dst := buildBackend(dstDB, cfg.Destination, emitter)

	res := resolver.New(cfg.Operator(), cfg.Resolver(), src, dst, unavailableOrderProtocol{})
	res.SetLogger(log)

	server := rpc.NewServer(log, res, src.Factory, dst.Factory, cfg.OperatorToken)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("resolverd listening", "addr", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
	log.Info("resolverd stopped")
}

func buildBackend(db storage.Database, cfg config.ChainConfig, emitter events.Emitter) resolver.ChainBackend {
	state := chain.NewState(db, big.NewInt(cfg.ChainID))

	factory := escrow.NewFactory(common.HexToAddress(cfg.FactoryAddress))
	factory.SetState(state)
	factory.SetEmitter(emitter)
	factory.SetNowFunc(state.Now)

	engine := escrow.NewEngine(cfg.RescueDelay)
	engine.SetState(state)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(state.Now)

	return resolver.ChainBackend{State: state, Factory: factory, Engine: engine, Now: state.Now}
}

// unavailableOrderProtocol stands in until an order-protocol integration is
// configured; deploySrc calls fail cleanly instead of panicking.
type unavailableOrderProtocol struct{}

func (unavailableOrderProtocol) FillOrder(*resolver.Order, []byte, *big.Int, resolver.TakerTraits, common.Address) (*resolver.FillResult, error) {
	return nil, errors.New("order protocol integration not configured")
}

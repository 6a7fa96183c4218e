// Command pandanode is the node's composition root: it wires ChainState,
// HostManager, Mempool, and the block-acceptance pipeline together in
// dependency order and runs them under one ServiceManager, the same shape
// the teacher's own main.go assembles its services in.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ordishs/gocore"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr-pandabear/pandanode/blockpipeline"
	"github.com/mr-pandabear/pandanode/chaincfg"
	"github.com/mr-pandabear/pandanode/chainstate"
	"github.com/mr-pandabear/pandanode/crypto"
	"github.com/mr-pandabear/pandanode/hostmanager"
	"github.com/mr-pandabear/pandanode/mempool"
	"github.com/mr-pandabear/pandanode/peerwire"
	"github.com/mr-pandabear/pandanode/programs"
	"github.com/mr-pandabear/pandanode/settings"
	"github.com/mr-pandabear/pandanode/stores/blockstore"
	"github.com/mr-pandabear/pandanode/stores/ledger"
	"github.com/mr-pandabear/pandanode/stores/pufferfish"
	"github.com/mr-pandabear/pandanode/stores/txdb"
	"github.com/mr-pandabear/pandanode/ulogger"
	"github.com/mr-pandabear/pandanode/util/servicemanager"
)

const progname = "pandanode"

func init() {
	gocore.SetInfo(progname, "", "")
	gocore.Log(progname)
}

func main() {
	logger := initLogger()

	configPath, _ := gocore.Config().Get("CONFIG_PATH", "")
	var s *settings.Settings
	var err error
	if configPath != "" {
		s, err = settings.LoadFile(configPath)
	} else {
		s = settings.NewSettings()
	}
	if err != nil {
		logger.Fatalf("pandanode: load settings: %v", err)
	}

	ledgerStore, err := ledger.Open(logger.New("ledger"), s.LedgerPath)
	if err != nil {
		logger.Fatalf("pandanode: open ledger store: %v", err)
	}
	txdbStore, err := txdb.Open(logger.New("txdb"), s.TxDBPath)
	if err != nil {
		logger.Fatalf("pandanode: open txdb store: %v", err)
	}
	blockStore, err := blockstore.Open(logger.New("blockstore"), s.BlockStorePath)
	if err != nil {
		logger.Fatalf("pandanode: open block store: %v", err)
	}
	pufferfishStore, err := pufferfish.Open(logger.New("pufferfish"), s.PufferfishPath)
	if err != nil {
		logger.Fatalf("pandanode: open pufferfish cache: %v", err)
	}

	hasher := crypto.Default{}
	verifier := crypto.Default{}

	chain := chainstate.New(logger.New("chainstate"), hasher, verifier, ledgerStore, txdbStore, blockStore)

	client := peerwire.NewClient(logger.New("peerwire"))
	hosts := hostmanager.New(logger.New("hostmanager"), s, client, hasher)

	registry := programs.NewRegistry()
	pool := mempool.New(logger.New("mempool"), chain, hosts, client, registry)

	pipeline := blockpipeline.New(logger.New("blockpipeline"), chain, hosts, client, hasher, pool)
	pipeline.SetPufferfishHasher(crypto.Pufferfish{Base: hasher, Cache: pufferfishStore})

	sm, ctx := servicemanager.NewServiceManager(logger)

	if err := sm.AddService("HostManager", hosts); err != nil {
		logger.Fatalf("pandanode: start hostmanager: %v", err)
	}
	if err := sm.AddService("Mempool", pool); err != nil {
		logger.Fatalf("pandanode: start mempool: %v", err)
	}
	if err := sm.AddService("BlockPipeline", pipeline); err != nil {
		logger.Fatalf("pandanode: start blockpipeline: %v", err)
	}

	address := fmt.Sprintf("%s:%d", s.IP, s.Port)
	server := peerwire.NewServer(logger.New("server"), s.Name, chaincfg.BuildVersion, s.Network, address, chain, hosts, pool, pipeline)

	mux := http.NewServeMux()
	mux.Handle("/", server.Handler())
	mux.HandleFunc("/health", healthHandler(sm, ctx, false))
	mux.HandleFunc("/health/readiness", healthHandler(sm, ctx, false))
	mux.HandleFunc("/health/liveness", healthHandler(sm, ctx, true))
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.IP, s.Port),
		Handler: mux,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("pandanode: http server: %v", err)
		}
	}()
	logger.Infof("pandanode: listening on http://%s:%d", s.IP, s.Port)

	go watchSignals(logger, httpServer)

	if err := sm.Wait(); err != nil {
		logger.Errorf("pandanode: a service failed: %v", err)
	}

	_ = ledgerStore.Close()
	_ = txdbStore.Close()
	_ = blockStore.Close()
	_ = pufferfishStore.Close()
}

func healthHandler(sm *servicemanager.ServiceManager, ctx context.Context, liveness bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, details, _ := sm.HealthHandler(ctx, liveness)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(details))
	}
}

func watchSignals(logger ulogger.Logger, server *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("pandanode: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func initLogger() ulogger.Logger {
	logLevel, _ := gocore.Config().Get("LOG_LEVEL", "info")
	return ulogger.New(progname, ulogger.WithLevel(logLevel))
}

// Package main is the entry point for the costledger API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"costledger/internal/config"
	"costledger/internal/core/numerator"
	"costledger/internal/core/security"
	"costledger/internal/domain/accounts"
	"costledger/internal/domain/consignment"
	"costledger/internal/domain/ledger"
	"costledger/internal/domain/posting"
	"costledger/internal/domain/registers/costlayer"
	"costledger/internal/domain/registers/stock"
	v1 "costledger/internal/infrastructure/http/v1"
	"costledger/internal/infrastructure/metrics"
	infranumerator "costledger/internal/infrastructure/numerator"
	"costledger/internal/infrastructure/storage/postgres"
	"costledger/internal/infrastructure/storage/postgres/catalog_repo"
	"costledger/internal/infrastructure/storage/postgres/document_repo"
	"costledger/internal/infrastructure/storage/postgres/ledger_repo"
	"costledger/internal/infrastructure/storage/postgres/register_repo"
	"costledger/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development || cfg.App.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx := context.Background()
	log.Infow("starting costledger server", "env", cfg.App.Env)

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.DSN)
	poolCfg.ApplicationName = cfg.App.Name
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txm := postgres.NewTxManager(pool, cfg.Database.StatementTimeout)

	// --- Ledger ---
	epsilon, _ := cfg.Ledger.Epsilon()
	closedUntil, _ := cfg.Ledger.ClosedUntilDate()
	policy := security.NewStrictPolicy(closedUntil)

	var numbers numerator.Generator = infranumerator.NewWithQuerierFunc(
		func(ctx context.Context) infranumerator.Querier { return txm.GetQuerier(ctx) },
	)
	ledgerSvc := ledger.NewService(ledger_repo.NewLedgerRepo(txm), txm, numbers, policy, ledger.Config{
		Epsilon: epsilon,
		Digits:  cfg.Ledger.Digits,
	})

	// --- Registers ---
	layers := costlayer.NewService(register_repo.NewCostLayerRepo(txm), txm)
	stockSvc := stock.NewService(register_repo.NewStockRepo(txm))
	partners := consignment.NewService(register_repo.NewConsignmentRepo(txm), layers, stockSvc, txm)

	// --- Accounts ---
	rules, err := accounts.CompileRules(cfg.Accounts.Rules)
	if err != nil {
		log.Fatalw("invalid account rules", "error", err)
	}
	resolver := accounts.NewResolver(catalog_repo.NewAccountRepo(txm), rules)

	// --- Audit and metrics ---
	auditRecorder, err := postgres.NewAuditRecorder(txm, cfg.Audit.CompressThreshold)
	if err != nil {
		log.Fatalw("failed to create audit recorder", "error", err)
	}

	var (
		collector      *metrics.Collector
		metricsHandler http.Handler
		engineMetrics  posting.Metrics = posting.NopMetrics{}
	)
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		collector.WatchPool(pool.Stats)
		metricsHandler = collector.Handler()
		engineMetrics = collector
	}

	// --- Posting engine ---
	engine := posting.NewEngine(posting.Deps{
		TxManager: txm,
		Ledger:    ledgerSvc,
		Layers:    layers,
		Partners:  partners,
		Stock:     stockSvc,
		Accounts:  resolver,
		Invoices:  document_repo.NewInvoiceRepo(txm),
		Bills:     document_repo.NewBillRepo(txm),
		WriteOffs: document_repo.NewWriteOffRepo(txm),
		Audit:     auditRecorder,
		Metrics:   engineMetrics,
	})

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Engine:         engine,
		Layers:         layers,
		DB:             pool,
		Logger:         log,
		Metrics:        metricsHandler,
		MetricsPath:    cfg.Metrics.Path,
		PostingTimeout: cfg.HTTP.PostingTimeout,
		Development:    cfg.App.IsDevelopment(),
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Infow("server starting", "port", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	pool.LogStats(shutdownCtx)

	log.Info("server stopped")
}

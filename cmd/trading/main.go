package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/romico/HomeSure-sub002/internal/cache"
	"github.com/romico/HomeSure-sub002/internal/chain"
	"github.com/romico/HomeSure-sub002/internal/compliance"
	"github.com/romico/HomeSure-sub002/internal/config"
	"github.com/romico/HomeSure-sub002/internal/handlers"
	"github.com/romico/HomeSure-sub002/internal/service"
	"github.com/romico/HomeSure-sub002/internal/storage"
	"github.com/romico/HomeSure-sub002/libs/health"
	"github.com/romico/HomeSure-sub002/libs/httpmiddleware"
	"github.com/romico/HomeSure-sub002/libs/kafka"
	"github.com/romico/HomeSure-sub002/libs/logging"
	"github.com/romico/HomeSure-sub002/libs/metrics"
	"github.com/romico/HomeSure-sub002/libs/retry"
	"github.com/romico/HomeSure-sub002/libs/trace"
	"log/slog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, cfg.App.ServiceName, cfg.App.Env)
	shutdownTracer, err := trace.InitTracer(cfg.App.ServiceName, cfg.App.Env)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	if cfg.App.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := metrics.NewRegistry()
	tradingMetrics := service.NewMetrics(registry)
	chainMetrics := chain.NewMetrics(registry)
	kafkaMetrics := kafka.NewProducerMetrics(registry)

	ready := health.NewManager(false)

	pool, err := connectDB(cfg)
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	store := storage.New(pool)

	backend, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		logger.Error("chain rpc connection failed", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	chainClient := chain.NewClient(backend, chain.ClientConfig{
		Confirmations:     cfg.Chain.Confirmations,
		EstimateTimeout:   cfg.Chain.EstimateTimeout,
		ConfirmTimeout:    cfg.Chain.ConfirmTimeout,
		PollInterval:      cfg.Chain.PollInterval,
		RequireTieredFees: cfg.Chain.RequireTieredFees,
	}, logger)

	exchange, err := chain.NewExchange(common.HexToAddress(cfg.Chain.ContractAddress))
	if err != nil {
		logger.Error("exchange abi init failed", "error", err)
		os.Exit(1)
	}

	orchestrator, err := chain.NewOrchestrator(chainClient, exchange, cfg.Chain.PrivateKey, big.NewInt(cfg.Chain.ChainID), retry.Config{
		MaxRetries:     cfg.Chain.MaxRetries,
		InitialBackoff: cfg.Chain.InitialBackoff,
		MaxBackoff:     cfg.Chain.MaxBackoff,
		BackoffFactor:  2.0,
		Jitter:         true,
	}, logger, chainMetrics)
	if err != nil {
		logger.Error("orchestrator init failed", "error", err)
		os.Exit(1)
	}
	logger.Info("settlement account", "address", orchestrator.Sender())

	var cacheLayer cache.Cache
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		cacheLayer = cache.NewRedis(redisClient, "")
	} else {
		logger.Warn("redis disabled, using in-process cache")
		cacheLayer = cache.NewMemory()
	}

	var producer kafka.Publisher
	if cfg.Kafka.Enabled {
		syncProducer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, logger, kafkaMetrics)
		if err != nil {
			logger.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		defer syncProducer.Close()
		producer = syncProducer
	} else {
		logger.Warn("kafka disabled, events will not be published")
	}

	complianceClient := compliance.New(cfg.Compliance.BaseURL, cfg.Compliance.APIKey, cfg.Compliance.Timeout)

	tradingSvc := service.NewTradingService(store, orchestrator, complianceClient, cacheLayer, producer, logger, tradingMetrics, service.Topics{
		OrdersCreated:   cfg.Kafka.Topics.OrdersCreated,
		OrdersCancelled: cfg.Kafka.Topics.OrdersCancelled,
		TradesExecuted:  cfg.Kafka.Topics.TradesExecuted,
		EscrowsCreated:  cfg.Kafka.Topics.EscrowsCreated,
		EscrowsResolved: cfg.Kafka.Topics.EscrowsResolved,
	})

	handler := handlers.New(tradingSvc, logger)
	router := gin.New()
	router.Use(httpmiddleware.RequestID())
	router.Use(httpmiddleware.Logger(logger))
	router.Use(httpmiddleware.Recovery(logger))
	router.Use(trace.Middleware(cfg.App.ServiceName))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))

	handler.Register(router, []byte(cfg.JWTSecret))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	ready.SetReady(true)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	go func() {
		logger.Info("trading http starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	go tradingSvc.RunExpirySweep(sweepCtx, cfg.SweepInterval)

	waitForShutdown(httpServer, ready, sweepCancel, logger)
}

func connectDB(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN())
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitForShutdown(httpServer *http.Server, ready *health.Manager, cancel context.CancelFunc, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown started")
	ready.SetReady(false)
	cancel()

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTimeout()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/labstock/internal/adapter/handler"
	"github.com/rl1809/labstock/internal/adapter/remote"
	"github.com/rl1809/labstock/internal/adapter/storage"
	"github.com/rl1809/labstock/internal/config"
	"github.com/rl1809/labstock/internal/core/service"
	"github.com/rl1809/labstock/internal/logger"
	"github.com/rl1809/labstock/internal/metrics"
	"github.com/rl1809/labstock/internal/port"
)

const healthRefreshInterval = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg, err := logger.New(logger.ForEnv(cfg.App.Env, cfg.Log.Level))
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer lg.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store
	kv, closeStore, err := openStore(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}

	// Initialize service
	inventory := service.NewInventoryService(
		service.NewLocalStore(kv, cfg.Store.Prefix),
		lg.Named("inventory"),
		service.InventoryOptions{StrictItemRefs: cfg.Ledger.StrictItemRefs},
	)
	if err := inventory.Load(ctx); err != nil {
		lg.Fatal("failed to load inventory", zap.Error(err))
	}

	// Initialize sync engine
	client, err := newRemoteClient(cfg)
	if err != nil {
		lg.Fatal("failed to build remote client", zap.Error(err))
	}

	syncOpts := service.SyncOptions{
		Workers:         cfg.Sync.Workers,
		QueueSize:       cfg.Sync.QueueSize,
		SettleDelay:     cfg.Sync.SettleDelay,
		Timeout:         cfg.Sync.Timeout,
		MaxTransactions: cfg.Sync.MaxTransactions,
	}
	if cfg.Metrics.Enabled {
		syncOpts.Recorder = metrics.NewSyncMetrics(prometheus.DefaultRegisterer)
	}
	engine := service.NewSyncEngine(client, inventory, lg.Named("sync"), syncOpts)
	engine.Start(ctx)
	inventory.AttachSyncer(engine)

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		lg.Warn("auth.jwt_secret not set; tokens will not survive a restart")
	}
	auth := handler.NewAuthenticator(secret, cfg.Auth.TokenTTL)

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	grpcHandler := handler.NewGRPCHandler(inventory, lg.Named("grpc"))
	grpcHandler.Register(grpcServer)
	go grpcHandler.Watch(ctx, healthRefreshInterval)

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		lg.Fatal("failed to listen", zap.String("addr", cfg.GRPC.Addr), zap.Error(err))
	}

	go func() {
		lg.Info("gRPC server listening", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcServer.Serve(lis); err != nil {
			lg.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(inventory, engine, auth, lg.Named("http"))
	mux := http.NewServeMux()
	httpHandler.Register(mux)
	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			lg.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down...")

	// Stop HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		lg.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	lg.Info("HTTP server stopped")

	// Stop gRPC server
	grpcHandler.Shutdown()
	grpcServer.GracefulStop()
	lg.Info("gRPC server stopped")

	// Drain queued sync work, then abort anything still in flight
	engine.Close()
	cancel()
	lg.Info("sync workers stopped")

	// Close connections
	closeStore()
	lg.Info("connections closed")
}

func openStore(ctx context.Context, cfg config.Config, lg *zap.Logger) (port.KeyValueStore, func(), error) {
	switch cfg.Store.Driver {
	case "mysql":
		db, err := sqlx.Open("mysql", cfg.MySQL.DSN)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		if err := storage.Migrate(db.DB); err != nil {
			db.Close()
			return nil, nil, err
		}
		lg.Info("connected to mysql")
		return storage.NewMySQLAdapter(db), func() { db.Close() }, nil

	default:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, err
		}
		lg.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
		return storage.NewRedisAdapter(rdb), func() { rdb.Close() }, nil
	}
}

// newRemoteClient builds the mirror client. With sync.remote_override set,
// requests for the script host are sent to that base URL instead.
func newRemoteClient(cfg config.Config) (*remote.HTTPClient, error) {
	if cfg.Sync.RemoteOverride == "" {
		return remote.NewHTTPClient(cfg.Sync.Timeout), nil
	}
	transport, err := remote.NewRewriteTransport(cfg.Sync.RemoteOverride, nil)
	if err != nil {
		return nil, err
	}
	return remote.NewHTTPClientWith(&http.Client{Timeout: cfg.Sync.Timeout, Transport: transport}), nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/labstock/internal/adapter/sheet"
	"github.com/rl1809/labstock/internal/config"
	"github.com/rl1809/labstock/internal/logger"
)

// The mirror stands in for the deployed spreadsheet script. Point
// sync.remote_override of the server at it.
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

	book, err := sheet.OpenWorkbook(cfg.Mirror.Workbook)
	if err != nil {
		lg.Fatal("failed to open workbook", zap.String("path", cfg.Mirror.Workbook), zap.Error(err))
	}
	defer book.Close()

	server := &http.Server{
		Addr:              cfg.Mirror.Addr,
		Handler:           sheet.NewMirror(book, lg.Named("mirror")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("mirror listening", zap.String("addr", cfg.Mirror.Addr), zap.String("workbook", cfg.Mirror.Workbook))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			lg.Error("mirror server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		lg.Warn("mirror shutdown incomplete", zap.Error(err))
	}
	lg.Info("mirror stopped")
}

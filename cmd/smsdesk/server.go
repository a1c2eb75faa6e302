package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/welovename555/smsdesk/internal/logger"
	"github.com/welovename555/smsdesk/internal/market"
	"github.com/welovename555/smsdesk/internal/metrics"
	"github.com/welovename555/smsdesk/internal/order"
	"github.com/welovename555/smsdesk/internal/provider"
	"github.com/welovename555/smsdesk/internal/router"
	"github.com/welovename555/smsdesk/internal/session"
	storage "github.com/welovename555/smsdesk/internal/storage/sqlite"

	"github.com/go-playground/validator/v10"
)

func main() {
	if err := run(); err != nil {
		panic(err)
	}
}

func run() error {
	cfg, err := NewConfig()
	if err != nil {
		log.Fatal(err)
	}
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite storage: %v", err)
	}
	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	defer cancelPing()
	if err := store.Ping(pingCtx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Warning: failed to close storage: %v", err)
		}
	}()

	metrics.Register()

	httpClient := &http.Client{
		Timeout: 10 * time.Second,
	}
	heroClient := &provider.HeroClient{
		Client:  httpClient,
		BaseURL: cfg.ProviderAddress,
	}
	shopClient := &market.ShopClient{
		Client:  httpClient,
		BaseURL: cfg.MarketAddress,
	}

	sessionSvc := session.NewService(heroClient, store, []byte(cfg.JWTSecret), cfg.JWTTTL)
	if err := sessionSvc.Hydrate(ctx); err != nil {
		logger.Log.Warn("hydrate provider session", zap.Error(err))
	}

	mgr := order.NewManager(order.ManagerConfig{
		Client:       heroClient,
		History:      store,
		Keys:         sessionSvc,
		Balance:      sessionSvc,
		Events:       order.NewBroadcaster(),
		PollInterval: cfg.PollInterval,
		OrderTTL:     cfg.OrderTTL,
	})

	marketSvc := market.NewService(shopClient, store, store, cfg.MarketOrderTTL)
	if err := marketSvc.Hydrate(ctx); err != nil {
		logger.Log.Warn("hydrate market session", zap.Error(err))
	}
	go marketSvc.RunPruner(ctx)

	validate := validator.New()
	sessionHandler := session.NewHandler(sessionSvc, mgr)
	orderHandler := order.NewHandler(mgr, validate)
	marketHandler := market.NewHandler(marketSvc, validate)

	r := router.NewRouter(sessionHandler, orderHandler, marketHandler, []byte(cfg.JWTSecret), sessionSvc)

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // SSE держит соединение открытым
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	mgr.Disconnect()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped gracefully")
	return nil
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatvault/internal/api"
	"chatvault/internal/auth"
	"chatvault/internal/config"
	"chatvault/internal/redis"
	"chatvault/internal/storage"
	"chatvault/internal/store"
	"chatvault/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load(os.Getenv("CHATVAULT_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	driver := cfg.BasicConfig.Driver
	log.Printf("driver: %s", driver)
	db, err := storage.Open(driver, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db, driver); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		log.Fatalf("create redis client: %v", err)
	}
	defer rdb.Close()

	dialect := storage.DialectOf(driver)
	repo := store.New(db, dialect)
	authService := auth.NewService(db, dialect, rdb, time.Duration(cfg.BasicConfig.TokenTTLHours)*time.Hour)
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	authService.StartTokenSweeper(sweepCtx, auth.DefaultTokenSweepInterval)

	titles := worker.NewManager(repo, nil, worker.DispatcherConfig{
		MinWorkers:  1,
		MaxWorkers:  cfg.BasicConfig.TitleWorkers,
		QueueSize:   cfg.BasicConfig.TitleQueueSize,
		IdleTimeout: 5 * time.Minute,
	})
	titles.UseRedis(rdb)
	defer titles.Close()

	handlers := api.NewHandler(repo, authService, titles, cfg.Entitlements)
	router := gin.Default()
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.BasicConfig.ServerAddress,
		Handler: router,
	}
	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

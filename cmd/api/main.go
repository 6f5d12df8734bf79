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

	"llm-backend/internal/broker"
	"llm-backend/internal/chat"
	"llm-backend/internal/config"
	"llm-backend/internal/db"
	"llm-backend/internal/httpapi"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	repo := chat.NewRepo(gdb)

	rds := broker.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisQueue)
	defer rds.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rds.Ping(ctx); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	var queue broker.JobQueue = rds
	if cfg.QueueDriver == "rabbitmq" {
		rabbit, err := broker.NewRabbit(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Fatalf("rabbit dial: %v", err)
		}
		defer rabbit.Close()
		queue = rabbit
	}

	cache := chat.NewContextCache(rds, cfg.ChatContextTTL, cfg.ChatContextWindowSize)

	defaultModel := cfg.OllamaModel
	if cfg.AIProvider == "openrouter" {
		defaultModel = cfg.OpenRouterModel
	}

	svc := chat.NewService(repo, queue, rds, cache, chat.ServiceConfig{
		ReceiveTimeout:  cfg.ChatReceiveTimeout,
		JobTimeout:      cfg.ChatJobTimeout,
		DefaultProvider: cfg.AIProvider,
		DefaultModel:    defaultModel,
	})

	router := httpapi.NewRouter(gdb, cfg, svc, repo)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("api listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("api shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}

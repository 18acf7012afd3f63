package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streamchat/internal/ai"
	appsvc "streamchat/internal/app"
	"streamchat/internal/bootstrap"
	rabbitmqClient "streamchat/internal/platform/rabbitmq"
	redisClient "streamchat/internal/platform/redis"
	httptransport "streamchat/internal/transport/http"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx)
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("close resources failed: %v", err)
		}
	}()

	generator := ai.NewClient(ai.GenerationConfig{
		BaseURL: app.Config.LLM.BaseURL,
		APIKey:  app.Config.LLM.APIKey,
		Model:   app.Config.LLM.Model,
		Timeout: app.Config.LLMTimeout(),
	})
	publisher := rabbitmqClient.NewTurnPublisher(app.MQConn, app.Config.RabbitMQ.UsageQueue)
	chatService := appsvc.NewChatService(app.Store, generator, publisher)
	limiter := redisClient.NewFixedWindow(app.Redis, app.Config.RateLimitWindow(), app.Config.RateLimit.MaxRequests)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		GinMode:      app.Config.App.GinMode,
		JWTSecret:    app.Config.Auth.JWTSecret,
		ChatService:  chatService,
		Limiter:      limiter,
		HealthChecks: app.HealthChecks(),
	})

	server := &http.Server{
		Addr:              app.Config.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	waitForShutdown(server)
}

func waitForShutdown(server *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown failed: %v", err)
	}
}

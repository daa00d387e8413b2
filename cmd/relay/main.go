package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kaushikasemwal/vintage-photobooth/internal/config"
	"github.com/kaushikasemwal/vintage-photobooth/internal/service"
	"github.com/kaushikasemwal/vintage-photobooth/internal/transport/relay"
)

func main() {
	log.Println("relay started")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	authSvc := service.NewAuthService(cfg.JWTSecret)
	hub := relay.NewHub()
	handler := relay.NewHandler(hub, authSvc)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler.Router(),
	}

	go func() {
		log.Printf("Relay listening on :%s", cfg.Port)
		log.Println("Endpoints:")
		log.Println("  POST /v1/token")
		log.Println("  GET  /v1/ws")
		log.Println("  GET  /v1/healthz")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down relay...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Relay forced to shutdown:", err)
	}

	log.Println("Relay exited")
}

package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rtpad/padserver/internal/server"
)

func loadConfig() *server.Config {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		cfg, err := server.LoadConfigFile(path)
		if err != nil {
			log.Fatalf("Failed to load config file %s: %v", path, err)
		}
		return cfg
	}
	return server.NewConfigFromEnv()
}

func buildVerifier(cfg *server.Config) server.TokenVerifier {
	if cfg.AuthTokensFile == "" {
		log.Println("No auth tokens file configured; protected routes will reject all credentials")
		return server.RejectAllVerifier()
	}
	verifier, err := server.NewStaticTokenVerifierFromFile(cfg.AuthTokensFile)
	if err != nil {
		log.Fatalf("Failed to load auth tokens: %v", err)
	}
	return verifier
}

func main() {
	fmt.Println("Starting pad relay server...")

	cfg := loadConfig()
	server.SetConfig(cfg)

	registry := server.NewRegistry(cfg.StrictRooms)
	hub := server.NewHub()
	relay := server.NewRelay(registry, hub)
	verifier := buildVerifier(cfg)

	mux := server.SetupRoutes(hub, relay, registry, verifier)
	httpServer := server.CreateServer(cfg.Port, mux)

	go hub.Run()
	log.Println("Hub started and ready to manage pad connections")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Printf("Received signal %s, shutting down", sig)
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server failed: %v", err)
		}
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		log.Printf("HTTP shutdown did not complete cleanly: %v", err)
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Printf("Hub shutdown did not complete cleanly: %v", err)
	}
}

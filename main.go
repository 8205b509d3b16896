// package main provides the entry point for the events-backend accounts
// microservice: the identity reconciliation core, its HTTP/GraphQL admin
// surface, and the background reclamation sweeper.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/campusconnect/events-backend/database"
	"github.com/campusconnect/events-backend/internal/api"
	"github.com/campusconnect/events-backend/provision"
	"github.com/campusconnect/events-backend/restapi"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	logger := database.InitLogger()
	defer func() { _ = logger.Sync() }()

	cfg, err := provision.LoadConfig(database.GetEnvDefault("PROVISION_CONFIG_PATH", ""))
	if err != nil {
		logger.Sugar().Fatalf("Failed to load provisioning config: %v", err)
	}

	db := database.InitializeDatabase()

	store := provision.NewArangoStore(db)
	engine := provision.NewEngine(store, logger)
	resolver := provision.NewResolver(engine, store, cfg, logger)
	sweeper := provision.NewSweeper(store, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweeper.Start(ctx)

	app := api.NewFiberApp(restapi.Deps{
		Resolver: resolver,
		Store:    store,
		Sweeper:  sweeper,
		Config:   cfg,
	})

	go func() {
		port := database.GetEnvDefault("PORT", "8080")
		if err := app.Listen(":" + port); err != nil {
			logger.Sugar().Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Sugar().Infof("Shutdown signal received, draining")

	if err := app.Shutdown(); err != nil {
		logger.Sugar().Errorf("Server shutdown error: %v", err)
		os.Exit(1)
	}
}

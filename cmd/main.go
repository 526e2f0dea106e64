package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	redisclient "github.com/coursemate/coursemate-backend/internal/clients/redis"
	"github.com/coursemate/coursemate-backend/internal/db"
	"github.com/coursemate/coursemate-backend/internal/handlers"
	"github.com/coursemate/coursemate-backend/internal/ingestion"
	"github.com/coursemate/coursemate-backend/internal/jobs"
	"github.com/coursemate/coursemate-backend/internal/pkg/logger"
	"github.com/coursemate/coursemate-backend/internal/platform/chroma"
	"github.com/coursemate/coursemate-backend/internal/platform/ollama"
	"github.com/coursemate/coursemate-backend/internal/repos"
	"github.com/coursemate/coursemate-backend/internal/server"
	"github.com/coursemate/coursemate-backend/internal/services"
	"github.com/coursemate/coursemate-backend/internal/utils"
)

func main() {
	// Env file is optional; real deployments inject the environment.
	_ = godotenv.Load()

	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	materialRepo := repos.NewMaterialRepo(thePG, log)
	materialChunkRepo := repos.NewMaterialChunkRepo(thePG, log)

	// Vector store
	chromaCfg, err := chroma.ResolveConfigFromEnv()
	if err != nil {
		log.Fatal("Chroma config invalid", "error", err)
	}
	chromaStore, err := chroma.NewStore(log, chromaCfg)
	if err != nil {
		log.Fatal("Chroma store init failed", "error", err)
	}

	// Inference backend
	ollamaClient, err := ollama.NewClient(log, ollama.ResolveConfigFromEnv())
	if err != nil {
		log.Fatal("Ollama client init failed", "error", err)
	}

	// Background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	workers := utils.GetEnvAsInt("JOB_WORKERS", 2, log)
	buffer := utils.GetEnvAsInt("JOB_BUFFER", 64, log)
	queue := jobs.NewQueue(log, workers, buffer)
	queue.Start(ctx)

	// Status bus is optional; without REDIS_ADDR status is poll-only.
	var bus redisclient.StatusBus
	if os.Getenv("REDIS_ADDR") != "" {
		bus, err = redisclient.NewStatusBus(log)
		if err != nil {
			log.Warn("Status bus init failed, continuing without it", "error", err)
			bus = nil
		} else {
			defer bus.Close()
			if err := bus.StartForwarder(ctx, func(event redisclient.StatusEvent) {
				log.Info("Material status event",
					"material_id", event.MaterialID,
					"stage", event.Stage,
					"status", event.Status,
					"error", event.Error,
				)
			}); err != nil {
				log.Warn("Status forwarder start failed", "error", err)
			}
		}
	}

	// Services
	log.Info("Setting up Services from main...")
	parser := ingestion.NewParser(log)
	gateway := services.NewEmbeddingGateway(log, ollamaClient)
	vectorStore := services.NewVectorStore(log, chromaStore, materialChunkRepo)
	pipeline := services.NewIngestionPipeline(log, queue, parser, gateway, vectorStore, materialRepo, bus)
	materialService := services.NewMaterialService(log, materialRepo, vectorStore)
	retrievalService := services.NewRetrievalService(log, gateway, vectorStore)
	queryRouter := services.NewQueryRouter(log, ollamaClient)

	// Handlers
	materialHandler := handlers.NewMaterialHandler(log, materialService, pipeline)
	queryHandler := handlers.NewQueryHandler(log, retrievalService, queryRouter)

	router := server.NewRouter(server.RouterConfig{
		MaterialHandler: materialHandler,
		QueryHandler:    queryHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}

// Package main is the application entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"questionnaire-agent-go/internal/config"
	"questionnaire-agent-go/internal/handler"
	"questionnaire-agent-go/internal/middleware"
	"questionnaire-agent-go/internal/pipeline"
	"questionnaire-agent-go/internal/repository"
	"questionnaire-agent-go/internal/service"
	"questionnaire-agent-go/internal/worker"
	"questionnaire-agent-go/pkg/database"
	"questionnaire-agent-go/pkg/embedding"
	"questionnaire-agent-go/pkg/es"
	"questionnaire-agent-go/pkg/kafka"
	"questionnaire-agent-go/pkg/llm"
	"questionnaire-agent-go/pkg/log"
	"questionnaire-agent-go/pkg/storage"
	"questionnaire-agent-go/pkg/tika"
)

func main() {
	// 1. Configuration.
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. Logger.
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("logger initialized")

	// 3. Backing stores.
	db, err := database.OpenMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		log.Fatalf("mysql initialization failed: %v", err)
	}
	defer database.CloseMySQL(db)

	rdb, err := database.OpenRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		log.Fatalf("redis initialization failed: %v", err)
	}
	defer rdb.Close()

	esClient, err := es.NewClient(cfg.Elasticsearch, cfg.Embedding.Dimensions)
	if err != nil {
		log.Fatalf("elasticsearch initialization failed: %v", err)
	}

	minioClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}

	// 4. Repositories.
	documentRepo := repository.NewDocumentRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	answerRepo := repository.NewAnswerRepository(db)
	jobRepo := repository.NewJobRepository(db)
	lockRepo := repository.NewLockRepository(rdb)

	// 5. Clients and services.
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)

	lockTTL := time.Duration(cfg.Jobs.LockTTLMinutes) * time.Minute
	loader := service.NewDocumentLoader(minioClient, tikaClient)
	jobService := service.NewJobService(jobRepo)
	retrievalService := service.NewRetrievalService(embeddingClient, esClient, documentRepo)
	generationService := service.NewGenerationService(retrievalService, llmClient, answerRepo, questionRepo, cfg.Retrieval.TopK)
	evaluationService := service.NewEvaluationService(embeddingClient, answerRepo, questionRepo, projectRepo)
	answerService := service.NewAnswerService(answerRepo, questionRepo)

	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	projectService := service.NewProjectService(projectRepo, questionRepo, answerRepo, jobService, producer, lockRepo, lockTTL)
	documentService := service.NewDocumentService(documentRepo, jobService, producer, minioClient)

	// 6. Indexing pipeline and worker.
	indexer := pipeline.NewIndexer(
		loader,
		embeddingClient,
		esClient,
		documentRepo,
		chunkRepo,
		lockRepo,
		cfg.Indexing.ChunkSize,
		cfg.Indexing.ChunkOverlap,
		cfg.Embedding.Model,
		lockTTL,
	)
	processor := worker.NewProcessor(
		jobService,
		projectService,
		generationService,
		evaluationService,
		loader,
		indexer,
		projectRepo,
		questionRepo,
		answerRepo,
		lockRepo,
		cfg.Worker.MaxRetries,
		time.Duration(cfg.Worker.RetryBackoffSeconds)*time.Second,
		lockTTL,
	)

	// 7. Background loops: Kafka consumer and job retention sweeper.
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	go kafka.StartConsumer(consumerCtx, cfg.Kafka, cfg.Worker.Concurrency, processor)

	sweeperStop := make(chan struct{})
	defer close(sweeperStop)
	jobService.StartRetentionSweeper(
		sweeperStop,
		time.Duration(cfg.Jobs.SweepIntervalMinutes)*time.Minute,
		time.Duration(cfg.Jobs.RetentionHours)*time.Hour,
	)

	// 8. Router.
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	projectHandler := handler.NewProjectHandler(projectService)
	documentHandler := handler.NewDocumentHandler(documentService)
	answerHandler := handler.NewAnswerHandler(projectService, answerService)
	jobHandler := handler.NewJobHandler(jobService)
	healthHandler := handler.NewHealthHandler(map[string]handler.Pinger{
		"mysql": handler.PingFunc(func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
		"redis": handler.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}),
		"elasticsearch": esClient,
		"minio":         minioClient,
	})

	// Routes live at the root so the existing UI keeps working unchanged.
	r.POST("/create-project-async", projectHandler.CreateProjectAsync)
	r.GET("/get-project-info/:projectID", projectHandler.GetProjectInfo)
	r.GET("/get-project-status/:projectID", projectHandler.GetProjectStatus)
	r.GET("/projects", projectHandler.ListProjects)
	r.POST("/resume-project-generation/:projectID", projectHandler.ResumeProjectGeneration)
	r.POST("/evaluate-project", projectHandler.EvaluateProject)
	r.GET("/evaluation-report/:projectID", projectHandler.EvaluationReport)

	r.POST("/index-document-async", documentHandler.IndexDocumentAsync)
	r.GET("/documents", documentHandler.ListDocuments)
	r.GET("/list-files", documentHandler.ListFiles)

	r.POST("/generate-single-answer", answerHandler.GenerateSingleAnswer)
	r.POST("/generate-all-answers", answerHandler.GenerateAllAnswers)
	r.POST("/update-answer", answerHandler.UpdateAnswer)

	r.GET("/jobs/active", jobHandler.ListActiveJobs)
	r.GET("/get-request-status/:jobID", jobHandler.GetRequestStatus)
	r.POST("/jobs/:jobID/cancel", jobHandler.CancelJob)
	r.GET("/jobs/stream", jobHandler.Stream)

	r.GET("/health", healthHandler.Health)

	// 9. HTTP server with graceful shutdown.
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %s", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received, stopping server...")

	stopConsumer()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("http server shutdown failed: %v", err)
	}
	log.Info("server stopped")
}

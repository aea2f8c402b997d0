package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/helixcare/clinidex/internal/api/handlers"
	"github.com/helixcare/clinidex/internal/config"
	"github.com/helixcare/clinidex/internal/database"
	"github.com/helixcare/clinidex/internal/domain"
	"github.com/helixcare/clinidex/internal/jobs"
	"github.com/helixcare/clinidex/internal/openai"
	"github.com/helixcare/clinidex/internal/repository"
	"github.com/helixcare/clinidex/internal/server"
	"github.com/helixcare/clinidex/internal/service"
	"github.com/helixcare/clinidex/internal/storage"
	"github.com/helixcare/clinidex/internal/telemetry"
	"github.com/helixcare/clinidex/internal/textract"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the clinidex API server and the document pipeline worker",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.PoolConfig{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	docRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewDocumentChunkRepository(pool)
	jobRepo := repository.NewPipelineJobRepository(pool)

	var s3Client *storage.S3Client
	var storageClient service.StorageClientInterface
	if cfg.HasS3() {
		s3Config := storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		}
		s3Client, err = storage.NewS3Client(ctx, s3Config)
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		storageClient = &S3StorageAdapter{client: s3Client}
	}

	var aiClient *openai.Client
	if cfg.HasOpenAI() {
		aiClient = openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			EmbeddingDimensions: cfg.EmbeddingDimension,
		})
	}

	var ocrClient service.OCRClient
	if cfg.HasTextract() {
		textractClient, err := textract.NewClient(ctx, textract.ClientConfig{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKey,
			SecretAccessKey: cfg.AWSSecretKey,
		})
		if err != nil {
			return fmt.Errorf("failed to create textract client: %w", err)
		}
		ocrClient = textractClient
	} else {
		// without OCR every image goes straight to the vision pass
		ocrClient = &emptyOCRClient{}
		log.Println("textract not configured, relying on vision extraction for images")
	}

	var pipelineSvc *service.PipelineService
	var pipelineWorker *jobs.Worker
	if s3Client != nil && aiClient != nil {
		extractionSvc := service.NewExtractionService(s3Client, ocrClient, aiClient, service.ExtractionConfig{
			MinTextLength: cfg.OCRMinTextLength,
			HighFidelity:  cfg.VisionHighFidelity,
		})
		enrichmentSvc := service.NewEnrichmentService(s3Client, aiClient, aiClient, service.EnrichmentConfig{
			EnableVisionAnalysis: cfg.EnableVisionAnalysis,
		})
		chunkCfg := service.DefaultChunkConfig()
		chunkCfg.Size = cfg.ChunkSize
		chunkCfg.Overlap = cfg.ChunkOverlap
		indexingSvc := service.NewIndexingService(aiClient, chunkRepo, chunkCfg)

		pipelineSvc = service.NewPipelineService(
			docRepo, chunkRepo, jobRepo,
			extractionSvc, enrichmentSvc, indexingSvc,
			&LogRecalculator{},
		)

		processor := jobs.NewPipelineWorker(jobRepo, pipelineSvc, cfg.PipelineStageTimeout)
		pipelineWorker = jobs.NewWorker(processor, cfg.PipelinePollInterval)
		go pipelineWorker.Start(ctx)
		log.Println("pipeline worker started")
	} else {
		log.Println("pipeline disabled: S3 and OpenAI configuration required")
	}

	var documentHandler *handlers.DocumentHandler
	if storageClient != nil && pipelineSvc != nil {
		docSvc := service.NewDocumentService(docRepo, storageClient, pipelineSvc)
		documentHandler = handlers.NewDocumentHandler(docSvc)
	} else {
		documentHandler = handlers.NewDocumentHandler(&NoOpDocumentService{})
	}

	var pipelineHandler *handlers.PipelineHandler
	if pipelineSvc != nil {
		pipelineHandler = handlers.NewPipelineHandler(pipelineSvc)
	} else {
		pipelineHandler = handlers.NewPipelineHandler(&NoOpPipelineService{})
	}

	var contextHandler *handlers.ContextHandler
	if aiClient != nil {
		retrievalSvc := service.NewRetrievalService(aiClient, chunkRepo, service.RetrievalConfig{
			TopKPatient:   cfg.TopKPatientChat,
			TopKClinician: cfg.TopKDoctorChat,
		})
		contextHandler = handlers.NewContextHandler(retrievalSvc)
	} else {
		contextHandler = handlers.NewContextHandler(&NoOpContextService{})
	}

	routerCfg := server.RouterConfig{
		DocumentHandler: documentHandler,
		PipelineHandler: pipelineHandler,
		ContextHandler:  contextHandler,
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if pipelineWorker != nil {
		pipelineWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

type S3StorageAdapter struct {
	client *storage.S3Client
}

func (a *S3StorageAdapter) GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error) {
	return a.client.GenerateUploadURL(ctx, key, contentType)
}

func (a *S3StorageAdapter) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	return a.client.GenerateDownloadURL(ctx, key)
}

func (a *S3StorageAdapter) DeleteObject(ctx context.Context, key string) error {
	return a.client.DeleteObject(ctx, key)
}

func (a *S3StorageAdapter) HeadObject(ctx context.Context, key string) (*service.ObjectMetadata, error) {
	meta, err := a.client.HeadObject(ctx, key)
	if err != nil {
		return nil, err
	}
	return &service.ObjectMetadata{
		ContentLength: meta.ContentLength,
		ContentType:   meta.ContentType,
		ETag:          meta.ETag,
	}, nil
}

// emptyOCRClient stands in when Textract is not configured. It reports no
// detected text, which sends every image through the vision fallback.
type emptyOCRClient struct{}

func (c *emptyOCRClient) ExtractText(ctx context.Context, document []byte) (string, error) {
	return "", nil
}

// LogRecalculator records refresh follow-ups until the downstream
// scoring service is wired in.
type LogRecalculator struct{}

func (r *LogRecalculator) RecalculateHealthScore(ctx context.Context, owner domain.Owner) error {
	log.Printf("health score recalculation requested for %s/%s", owner.Kind, owner.ID)
	return nil
}

func (r *LogRecalculator) RecalculateRiskAssessment(ctx context.Context, owner domain.Owner) error {
	log.Printf("risk assessment recalculation requested for %s/%s", owner.Kind, owner.ID)
	return nil
}

type NoOpDocumentService struct{}

func (s *NoOpDocumentService) InitUpload(ctx context.Context, input service.InitUploadInput) (*service.InitUploadResult, error) {
	return nil, fmt.Errorf("document service not configured: S3_ENDPOINT and OPENAI_API_KEY required")
}

func (s *NoOpDocumentService) CompleteUpload(ctx context.Context, input service.CompleteUploadInput) (*domain.Document, error) {
	return nil, fmt.Errorf("document service not configured: S3_ENDPOINT and OPENAI_API_KEY required")
}

func (s *NoOpDocumentService) GetByID(ctx context.Context, documentID string) (*domain.Document, error) {
	return nil, fmt.Errorf("document service not configured: S3_ENDPOINT and OPENAI_API_KEY required")
}

func (s *NoOpDocumentService) GetStatus(ctx context.Context, documentID string) (*domain.StatusReport, error) {
	return nil, fmt.Errorf("document service not configured: S3_ENDPOINT and OPENAI_API_KEY required")
}

func (s *NoOpDocumentService) GetDownloadURL(ctx context.Context, documentID string) (string, error) {
	return "", fmt.Errorf("document service not configured: S3_ENDPOINT and OPENAI_API_KEY required")
}

func (s *NoOpDocumentService) ListDocuments(ctx context.Context, input service.ListDocumentsInput) (*service.ListDocumentsOutput, error) {
	return nil, fmt.Errorf("document service not configured: S3_ENDPOINT and OPENAI_API_KEY required")
}

func (s *NoOpDocumentService) Delete(ctx context.Context, documentID string) error {
	return fmt.Errorf("document service not configured: S3_ENDPOINT and OPENAI_API_KEY required")
}

type NoOpPipelineService struct{}

func (s *NoOpPipelineService) RefreshOwnerIndex(ctx context.Context, owner domain.Owner) (string, error) {
	return "", fmt.Errorf("pipeline not configured: S3_ENDPOINT and OPENAI_API_KEY required")
}

type NoOpContextService struct{}

func (s *NoOpContextService) GetContextForQuery(ctx context.Context, query string, owner domain.Owner, elevated bool) (*service.ContextBundle, error) {
	return nil, fmt.Errorf("retrieval not configured: OPENAI_API_KEY required")
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}

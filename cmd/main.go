package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"orbitdrive/internal/auth"
	"orbitdrive/internal/config"
	"orbitdrive/internal/handler"
	"orbitdrive/internal/provider"
	"orbitdrive/internal/repository"
	"orbitdrive/internal/service"
)

func connectWithRetry(dsn string, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	var db *sqlx.DB
	var err error

	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			return db, nil
		}

		log.Printf("Failed to connect to database (attempt %d/%d): %v", i+1, maxAttempts, err)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %v", maxAttempts, err)
}

func runMigrations(cfg *config.Config) error {
	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	m, err := migrate.New("file://migrations", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// buildProviders turns the configured priority list into adapter instances,
// in order. The config order is the failover order.
func buildProviders(ctx context.Context, cfg config.StorageConfig) ([]provider.Provider, error) {
	providers := make([]provider.Provider, 0, len(cfg.Providers))

	for _, pc := range cfg.Providers {
		var p provider.Provider
		var err error

		switch pc.Type {
		case "s3":
			p, err = provider.NewS3Provider(pc.Name, provider.S3Options{
				Endpoint:        pc.Endpoint,
				Region:          pc.Region,
				AccessKeyID:     pc.AccessKeyID,
				SecretAccessKey: pc.SecretAccessKey,
				Bucket:          pc.Bucket,
			})
		case "gcs":
			p, err = provider.NewGCSProvider(ctx, pc.Name, pc.Bucket, pc.CredentialsFile)
		case "minio":
			p, err = provider.NewMinioProvider(pc.Name, provider.MinioOptions{
				Endpoint:        pc.Endpoint,
				AccessKeyID:     pc.AccessKeyID,
				SecretAccessKey: pc.SecretAccessKey,
				Bucket:          pc.Bucket,
				UseSSL:          pc.UseSSL,
			})
		default:
			return nil, fmt.Errorf("unsupported storage provider type: %s", pc.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to build provider %s: %w", pc.Name, err)
		}

		providers = append(providers, p)
	}

	return providers, nil
}

func main() {
	appConfig, err := config.NewConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := connectWithRetry(appConfig.Database.GetDSN(), 5, time.Second*5)
	if err != nil {
		log.Fatalf("Failed to connect to database after retries: %v", err)
	}
	defer db.Close()

	if err := runMigrations(appConfig); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	auth.Init(appConfig.Auth.JWTSecret)

	providers, err := buildProviders(context.Background(), appConfig.Storage)
	if err != nil {
		log.Fatalf("Failed to build storage providers: %v", err)
	}

	orchestrator, err := provider.NewOrchestrator(providers, appConfig.Storage.CallTimeout())
	if err != nil {
		log.Fatalf("Failed to create storage orchestrator: %v", err)
	}

	fileRepo := repository.NewFileRepository(db)
	quotaRepo := repository.NewQuotaRepository(db)

	quotaService := service.NewQuotaService(quotaRepo, appConfig.Quota.DefaultLimitBytes)
	fileService := service.NewFileService(fileRepo, orchestrator, quotaService)

	fileHandler := handler.NewFileHandler(fileService)
	quotaHandler := handler.NewQuotaHandler(quotaService)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/files", fileHandler.UploadFile)
		r.Get("/files", fileHandler.ListFiles)

		r.Route("/files/{uuid}", func(r chi.Router) {
			r.Get("/", fileHandler.DownloadFile)
			r.Get("/meta", fileHandler.GetFileMetadata)
			r.Delete("/", fileHandler.DeleteFile)
		})

		r.Route("/quota", func(r chi.Router) {
			r.Get("/", quotaHandler.GetQuotaInfo)
			r.Put("/limit", quotaHandler.UpdateQuotaLimit)
			r.Get("/report", quotaHandler.GetDailyReport)
		})

		r.Post("/users", quotaHandler.ProvisionUser)
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler: r,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting HTTP server on port %s", appConfig.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server forced to shutdown: %v", err)
	}

	if err := db.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	}

	log.Println("Server exited properly")
}

// Command server runs the assessment review backend: a multi-tenant HTTP API
// over PostgreSQL with optional Kafka audit publishing and read-through access
// to the external review tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	assessmenthandler "assessor/internal/assessment/handler"
	assessmentmetrics "assessor/internal/assessment/metrics"
	assessmentservice "assessor/internal/assessment/service"
	assessmentstore "assessor/internal/assessment/store"
	"assessor/internal/audit"
	exporthandler "assessor/internal/export/handler"
	exportservice "assessor/internal/export/service"
	exportstorage "assessor/internal/export/storage"
	exportstore "assessor/internal/export/store"
	findinghandler "assessor/internal/finding/handler"
	findingmetrics "assessor/internal/finding/metrics"
	findingservice "assessor/internal/finding/service"
	findingstore "assessor/internal/finding/store"
	"assessor/internal/folder"
	historyhandler "assessor/internal/history/handler"
	"assessor/internal/history/reviewtool"
	historyservice "assessor/internal/history/service"
	historystore "assessor/internal/history/store"
	"assessor/internal/platform/config"
	"assessor/internal/platform/httpserver"
	"assessor/internal/platform/logger"
	"assessor/internal/platform/middleware"
	"assessor/internal/platform/postgres"
	"assessor/pkg/domain"
)

func main() {
	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Run the assessment review API server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Local development convenience; production reads real environment.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	var auditPub *audit.Kafka
	if len(cfg.KafkaBrokers) > 0 {
		auditPub, err = audit.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer auditPub.Close()
	}

	assessments := assessmentstore.NewPostgres(db)
	findings := findingstore.NewPostgres(db)
	versions := historystore.NewPostgres(db)
	exports := exportstore.NewPostgres(db)
	folders := folder.NewPostgres(db)

	assessmentSvc := assessmentservice.New(assessments, findings,
		assessmentservice.WithAuditPublisher(auditPub),
		assessmentservice.WithMetrics(assessmentmetrics.New()),
	)
	findingSvc := findingservice.New(findings,
		findingservice.WithAuditPublisher(auditPub),
		findingservice.WithMetrics(findingmetrics.New()),
	)
	historySvc := historyservice.New(versions,
		headerAdapter{assessments: assessmentSvc},
		reviewtool.New(awsCfg),
		historyservice.WithAuditPublisher(auditPub),
	)
	signer := exportstorage.NewS3(s3.NewFromConfig(awsCfg), cfg.ExportBucket)
	exportSvc := exportservice.New(exports, signer,
		exportservice.WithAuditPublisher(auditPub),
	)
	folderSvc := folder.NewService(folders)

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(&log))
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireTenancy([]byte(cfg.JWTSigningKey)))
		assessmenthandler.New(assessmentSvc).Register(r)
		findinghandler.New(findingSvc).Register(r)
		historyhandler.New(historySvc).Register(r)
		exporthandler.New(exportSvc).Register(r)
		folder.NewHandler(folderSvc).Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// headerAdapter narrows the assessment service to the header fields the
// history service resolves review-tool targets from.
type headerAdapter struct {
	assessments *assessmentservice.Service
}

func (a headerAdapter) Header(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) (historyservice.AssessmentHeader, error) {
	assessment, err := a.assessments.GetHeader(ctx, org, id)
	if err != nil {
		return historyservice.AssessmentHeader{}, err
	}
	return historyservice.AssessmentHeader{
		RoleArn:         assessment.RoleArn,
		WafrWorkloadArn: assessment.WafrWorkloadArn,
		ExportRegion:    assessment.ExportRegion,
	}, nil
}

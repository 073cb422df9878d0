package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/loopfz/gadgeto/tonic"
	bottles "github.com/onebottle/onebottle-api/pkg/bottles"
	"github.com/onebottle/onebottle-api/pkg/bottles/database"
	"github.com/onebottle/onebottle-api/pkg/bottles/handler"
	"github.com/onebottle/onebottle-api/pkg/bottles/repositories"
	"github.com/onebottle/onebottle-api/pkg/bottles/services"
	"github.com/onebottle/onebottle-api/pkg/bottles/services/moderation"
	"github.com/onebottle/onebottle-api/pkg/bottles/storage"
	"github.com/onebottle/onebottle-api/pkg/config"
	"github.com/onebottle/onebottle-api/pkg/jobs"
)

func init() {
	tonic.SetErrorHook(bottles.ErrorHook)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dsn, err := cfg.DSN()
	if err != nil {
		log.Fatalf("invalid database config: %v", err)
	}
	db, err := database.Connect(cfg.DBDriver, dsn)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", cfg.DBDriver, err)
	}

	bottleRepo := repositories.NewBottleRepository(db)
	ledger := repositories.NewExposureRepository(db)
	blobs := storage.NewDatabaseBlobStore(db, cfg.PublicBaseURL)

	gateway := moderation.NewGateway(moderation.Config{
		APIUser:   cfg.SightengineUser,
		APISecret: cfg.SightengineSecret,
		Endpoint:  cfg.SightengineEndpoint,
		Models:    cfg.ModerationModels,
		Timeout:   cfg.ModerationTimeout,
	})

	submissions := services.NewSubmissionService(bottleRepo, blobs, gateway, services.SubmissionConfig{
		Deadline: cfg.SubmissionDeadline,
		MaxBytes: config.MaxUploadBytes,
	})
	discovery := services.NewDiscoveryService(bottleRepo, ledger, services.DiscoveryConfig{
		DailyQuota: cfg.DailyQuota,
		Strict:     cfg.StrictQuota,
	})
	maintenance := services.NewMaintenanceService(bottleRepo, ledger, blobs, cfg.SweepGrace)

	if _, err := jobs.ScheduleOrphanSweep(context.Background(), cfg.SweepSchedule, maintenance); err != nil {
		log.Fatalf("failed to schedule sweep: %v", err)
	}

	router := bottles.NewRouter(bottles.RouterConfig{
		Version:        cfg.Version,
		PublicBaseURL:  cfg.PublicBaseURL,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AdminSecret:    cfg.AdminJWTSecret,
	},
		handler.NewBottlesController(submissions, discovery, blobs, config.MaxUploadBytes),
		handler.NewAdminController(maintenance),
	)

	log.Printf("Submissions close at %s, daily quota %d (strict=%t)",
		cfg.SubmissionDeadline.Format("2006-01-02 15:04 MST"), cfg.DailyQuota, cfg.StrictQuota)
	if gateway.Bypassed() {
		log.Println("[WARN] moderation bypassed; set SIGHTENGINE_API_USER and SIGHTENGINE_API_SECRET")
	}
	if cfg.AdminJWTSecret == "" {
		log.Println("[WARN] ADMIN_JWT_SECRET not set; /admin routes are disabled")
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Server is running on port %d", cfg.Port)
	log.Fatal(http.ListenAndServe(addr, router))
}

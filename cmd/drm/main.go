package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"tunelock/internal/authz"
	"tunelock/internal/config"
	"tunelock/internal/media"
	"tunelock/internal/observability/logging"
	"tunelock/internal/observability/metrics"
	obsmw "tunelock/internal/observability/middleware"
	"tunelock/internal/service"
	"tunelock/internal/store"
	httptransport "tunelock/internal/transport/http"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load()

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: "drm",
		Environment: env,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	slog.SetDefault(logger)

	cfg := config.Load()
	metrics.MustRegister("drm")

	gdb, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}
	if err := store.Migrate(gdb); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}

	st := store.New(gdb)
	catalog := media.NewFSCatalog(cfg.MediaDir)

	licenses := service.NewLicenseService(st)
	delivery := service.NewDeliveryService(st, catalog, licenses, []byte(cfg.LicenseSalt), cfg.ReadTimeout)

	identity := authz.New(cfg.SigningKey, cfg.Issuer)
	router := httptransport.NewRouter(licenses, delivery, identity, httptransport.RouterConfig{
		CORSOrigins: cfg.CORSOrigins,
	})

	handler := obsmw.WithRequestAndTrace(obsmw.WithMetrics(router))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("drm service listening", "addr", srv.Addr, "media_dir", cfg.MediaDir)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

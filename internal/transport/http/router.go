package http

import (
	"net/http"
	"strings"
	"time"

	"tunelock/internal/authz"
	"tunelock/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	CORSOrigins []string
}

func NewRouter(licenses *service.LicenseService, delivery *service.DeliveryService, identity *authz.Identity, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	// rate limit (e.g., 300 req / minute by IP); stream range requests come
	// in bursts from seeking players, so keep this generous.
	r.Use(httprate.LimitByIP(300, 1*time.Minute))

	c := cors.Options{
		AllowedOrigins:   originsIfSet(cfg.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Range", "X-Request-Id", "X-Device-ID", "X-License-Key"},
		ExposedHeaders:   []string{"Content-Range", "Accept-Ranges", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	r.Use(cors.Handler(c))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	h := &handler{licenses: licenses, delivery: delivery}

	r.Route("/drm", func(r chi.Router) {
		r.Use(identity.Middleware)

		r.Post("/license", h.issueLicense)
		r.Get("/licenses", h.listLicenses)
		r.Get("/license/{licenseID}", h.getLicense)
		r.Post("/license/{licenseID}/revoke", h.revokeLicense)

		r.Post("/download/{id}", h.packageDownload)
		r.Post("/download/{id}/decrypt", h.openDownload)
		r.Get("/downloads", h.listDownloads)

		r.Get("/stream/{mediaID}", h.streamMedia)
		r.Get("/validate/{mediaID}", h.validateLicense)
	})

	return r
}

func originsIfSet(in []string) []string {
	out := []string{}
	for _, o := range in {
		if s := strings.TrimSpace(o); s != "" {
			out = append(out, s)
		}
	}
	// Empty slice tells the CORS lib "disallow all" unless you want "*"
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

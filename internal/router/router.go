package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	rh "github.com/King-Austin/securecipher-bankingapi/internal/handler/rest"
	"github.com/King-Austin/securecipher-bankingapi/shared/auth/middleware"
	"github.com/King-Austin/securecipher-bankingapi/shared/auth/signature"
	"github.com/King-Austin/securecipher-bankingapi/shared/response"
)

type Options struct {
	AllowedOrigins []string
	// RateLimit is requests per minute per caller; zero disables limiting.
	RateLimit      int
	RequestTimeout time.Duration
}

func SetupRoutes(
	r chi.Router,
	h *rh.BankRestHandler,
	auth *middleware.AuthMiddleware,
	sig *middleware.SignatureMiddleware,
	rdb redis.UniversalClient,
	opts Options,
) chi.Router {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	// ---- Global Middleware ----
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.StripSlashes)
	r.Use(chimw.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type", "X-CSRF-Token",
			signature.HeaderSignature, signature.HeaderTimestamp,
		},
		ExposedHeaders:   []string{"Link", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(api chi.Router) {

		// ---------- Public ----------
		api.Get("/health", h.Health)

		// ---------- Authenticated, signed where sensitive ----------
		api.Group(func(ar chi.Router) {
			ar.Use(auth.Require)
			ar.Use(middleware.RateLimiter(rdb, opts.RateLimit, time.Minute, 10*time.Minute, "api"))
			ar.Use(sig.Verify)

			ar.Route("/transactions", func(tr chi.Router) {
				tr.Get("/", h.ListTransactions)
				tr.Post("/transfer", h.Transfer)
				tr.Get("/verify-account/{account_number}", h.VerifyAccount)
				tr.Get("/{reference}", h.GetTransaction)
			})

			ar.Get("/profiles/me", h.Profile)

			ar.Route("/auth", func(au chi.Router) {
				au.Post("/update-public-key", h.UpdatePublicKey)
				au.Post("/set-pin", h.SetPin)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Route not found")
	})

	return r
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hodhod22/payout-engine/internal/infra/logging"
	"github.com/hodhod22/payout-engine/internal/usecase"
)

// Server exposes the payout API over HTTP.
type Server struct {
	payoutUC      usecase.PayoutUseCase
	verifyUC      usecase.VerificationUseCase
	webhookSecret string
	server        *http.Server
	log           *zerolog.Logger
}

func NewServer(
	payoutUC usecase.PayoutUseCase,
	verifyUC usecase.VerificationUseCase,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		payoutUC: payoutUC,
		verifyUC: verifyUC,
		log:      logger,
	}
}

// WithWebhookSecret enables HMAC signature checks on the gateway webhook.
func (s *Server) WithWebhookSecret(secret string) *Server {
	s.webhookSecret = secret
	return s
}

// Router builds the chi router with the API routes and operational
// endpoints mounted.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestTrace)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	s.RegisterRoutes(r)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requestTrace copies the chi request id into the logging context so every
// log line emitted under this request carries trace_id.
func requestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(logging.WithTraceID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RegisterRoutes mounts the payout routes on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/request-payout", s.handleRequestPayout)
		r.Get("/payout-status", s.handlePayoutStatus)
		r.Get("/verify-payout", s.handleVerifyPayout)
		r.Get("/payouts", s.handleListPayouts)
		r.Post("/webhook/zarinpal", s.handleZarinpalWebhook)
	})
}

func (s *Server) Start(port int) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Int("port", port).Msg("HTTP server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

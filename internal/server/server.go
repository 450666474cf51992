package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"carebridge/internal/lifecycle"
	"carebridge/internal/payments"
	"carebridge/internal/reviews"
	"carebridge/internal/store"
	"carebridge/pkg/types"

	"github.com/alexedwards/flow"
	"github.com/go-playground/form/v4"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/sirupsen/logrus"
)

var decoder = form.NewDecoder()

type Service struct {
	logger *logrus.Logger
	config *types.Config

	lifecycle     *lifecycle.Engine
	payments      *payments.Engine
	reviews       *reviews.Service
	notifications *store.NotificationRepository

	jwksCache *jwk.Cache
	jwksURL   string

	server *http.Server
}

func New(
	config *types.Config,
	logger *logrus.Logger,
	lifecycleEngine *lifecycle.Engine,
	paymentEngine *payments.Engine,
	reviewService *reviews.Service,
	notifications *store.NotificationRepository,
	jwkCache *jwk.Cache,
	jwksURL string,
) (*Service, error) {
	mux := flow.New()

	s := &Service{
		logger: logger,
		config: config,

		lifecycle:     lifecycleEngine,
		payments:      paymentEngine,
		reviews:       reviewService,
		notifications: notifications,

		jwksCache: jwkCache,
		jwksURL:   jwksURL,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.ServerPort),
			Handler:           mux,
			ReadTimeout:       time.Duration(config.ReadTimeoutSec) * time.Second,
			ReadHeaderTimeout: time.Duration(config.ReadTimeoutSec) * time.Second,
			WriteTimeout:      time.Duration(config.WriteTimeoutSec) * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}

	s.buildRouter(mux)

	return s, nil
}

func (s *Service) Start() error {
	return s.server.ListenAndServe()
}

func (s *Service) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Service) buildRouter(r *flow.Mux) {
	r.Use(s.LoggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealth, http.MethodGet)

	// Stripe calls this; authenticity comes from the signature, not a token.
	r.HandleFunc("/webhooks/stripe", s.handleStripeWebhook, http.MethodPost)

	r.Group(func(r *flow.Mux) {
		r.Use(s.RequireAuth)

		r.HandleFunc("/requests", s.handleCreateRequest, http.MethodPost)
		r.HandleFunc("/requests", s.handleListRequests, http.MethodGet)
		r.HandleFunc("/requests/:id", s.handleGetRequest, http.MethodGet)
		r.HandleFunc("/requests/:id/cancel", s.handleCancelRequest, http.MethodPost)
		r.HandleFunc("/requests/:id/reject", s.handleRejectRequest, http.MethodPost)
		r.HandleFunc("/requests/:id/complete", s.handleMarkCompleted, http.MethodPost)

		r.HandleFunc("/requests/:id/applications", s.handleApply, http.MethodPost)
		r.HandleFunc("/requests/:id/applications", s.handleRequestApplications, http.MethodGet)
		r.HandleFunc("/applications", s.handleMyApplications, http.MethodGet)
		r.HandleFunc("/applications/:id/accept", s.handleAcceptApplication, http.MethodPost)
		r.HandleFunc("/applications/:id", s.handleUpdateApplication, http.MethodPatch)
		r.HandleFunc("/applications/:id", s.handleCancelApplication, http.MethodDelete)

		r.HandleFunc("/payments/intent", s.handleCreatePaymentIntent, http.MethodPost)
		r.HandleFunc("/payments/confirm", s.handleConfirmPayment, http.MethodPost)
		r.HandleFunc("/payments", s.handleListPayments, http.MethodGet)
		r.HandleFunc("/payments/:id", s.handleGetPayment, http.MethodGet)
		r.HandleFunc("/payments/:id/refund", s.handleRefundPayment, http.MethodPost)

		r.HandleFunc("/reviews", s.handleCreateReview, http.MethodPost)
		r.HandleFunc("/requests/:id/reviews", s.handleRequestReviews, http.MethodGet)
		r.HandleFunc("/users/:id/reviews", s.handleUserReviews, http.MethodGet)
		r.HandleFunc("/reviews/:id", s.handleDeactivateReview, http.MethodDelete)

		r.HandleFunc("/notifications", s.handleListNotifications, http.MethodGet)
		r.HandleFunc("/notifications/:id/read", s.handleMarkNotificationRead, http.MethodPost)
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) actorFromContext(ctx context.Context) (types.Actor, error) {
	actor, ok := ctx.Value(contextKeyActor).(types.Actor)
	if !ok {
		return types.Actor{}, fmt.Errorf("actor not found in context")
	}
	return actor, nil
}

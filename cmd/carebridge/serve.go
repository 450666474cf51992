package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carebridge/internal/db"
	"carebridge/internal/lifecycle"
	"carebridge/internal/notify"
	"carebridge/internal/payments"
	"carebridge/internal/reviews"
	"carebridge/internal/server"
	"carebridge/internal/store"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var serveCommand = &cli.Command{
	Name:   "serve",
	Usage:  "Start the HTTP server",
	Action: serve,
}

func serve(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	config, err := loadConfig()
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx, config)
	if err != nil {
		return err
	}
	defer pool.Close()

	requestRepo := store.NewRequestRepository(pool)
	applicationRepo := store.NewApplicationRepository(pool)
	reviewRepo := store.NewReviewRepository(pool)
	paymentRepo := store.NewPaymentRepository(pool)
	notificationRepo := store.NewNotificationRepository(pool)

	notifier := notify.NewStoreNotifier(notificationRepo)

	lifecycleEngine := lifecycle.NewEngine(logger, requestRepo, applicationRepo, notifier)

	processor := payments.NewStripeProcessor(config.StripeSecretKey)
	paymentEngine := payments.NewEngine(
		logger,
		paymentRepo,
		requestRepo,
		processor,
		notifier,
		config.StripeWebhookSecret,
		config.PlatformFeePercent,
		config.PaymentCurrency,
	)

	reviewService := reviews.NewService(logger, reviewRepo, requestRepo, notifier)

	jwkCache, err := jwk.NewCache(context.Background(), httprc.NewClient())
	if err != nil {
		return fmt.Errorf("failed to initilaize jwk cache: %w", err)
	}

	jwksURL := fmt.Sprintf("%s/.well-known/jwks.json", config.JWTIssuerURL)

	err = jwkCache.Register(context.Background(), jwksURL)
	if err != nil {
		return fmt.Errorf("failed to register issuer jwk with cache: %w", err)
	}

	srv, err := server.New(
		config,
		logger,
		lifecycleEngine,
		paymentEngine,
		reviewService,
		notificationRepo,
		jwkCache,
		jwksURL,
	)
	if err != nil {
		return err
	}

	go func() {
		logger.WithField("port", config.ServerPort).Infof("server starting http://localhost:%d", config.ServerPort)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Stop(shutdownCtx)
}

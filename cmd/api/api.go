package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sliceit/docs" // required to serve the generated swagger doc
	"sliceit/internal/auth"
	"sliceit/internal/domain/invites"
	"sliceit/internal/domain/transactions"
	"sliceit/internal/domain/users"
	"sliceit/internal/mailer"
	"sliceit/internal/ratelimiter"
	"sliceit/internal/settlement"
	"sliceit/internal/upi"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// settlementService is the slice of settlement.Service the handlers
// use; tests substitute it.
type settlementService interface {
	Initiate(ctx context.Context, payerUID, expenseID string, amount float64, receiverUID string) (*settlement.Intent, error)
	Reconcile(ctx context.Context, cb settlement.Callback) error
}

// txnLister is what the payment listing endpoint needs from the
// transactions repository.
type txnLister interface {
	ListByPayer(ctx context.Context, payerUID string, limit, offset int) ([]transactions.Transaction, int, error)
}

type application struct {
	config        config
	logger        *zap.SugaredLogger
	users         *users.Store
	invites       *invites.Repository
	txnList       txnLister
	settlement    settlementService
	verifier      upi.Verifier
	mailer        mailer.Client
	authenticator auth.Authenticator
	rateLimiter   ratelimiter.Limiter
}

type config struct {
	addr        string
	db          dbConfig
	env         string
	apiURL      string
	mail        mailConfig
	frontendURL string
	auth        authConfig
	upi         upiConfig
	webhook     webhookConfig
	rateLimiter ratelimiter.Config
}

type authConfig struct {
	basic basicConfig
	token tokenConfig
}

type tokenConfig struct {
	secret        string
	refreshSecret string
	iss           string
}

type basicConfig struct {
	user string
	pass string
}

type mailConfig struct {
	fromEmail string
	sendgrid  sendGridConfig
	smtp      smtpConfig
}

type sendGridConfig struct {
	apiKey string
}

type smtpConfig struct {
	host     string
	port     int
	username string
	password string
}

type dbConfig struct {
	addr        string
	maxConns    int32
	maxIdleTime string
}

type upiConfig struct {
	verifyEndpoint string
	schemeID       string
	signingKey     string
}

type webhookConfig struct {
	secret string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(app.RateLimiterMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Webhook-Signature"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Requests that outlive this window are cancelled through ctx.Done();
	// the PSP and the app both retry on their own schedule.
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.With(app.BasicAuthMiddleware()).Get("/health", app.healthCheckHandler)
		docsURL := fmt.Sprintf("%s/swagger/doc.json", app.config.addr)
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(docsURL)))

		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)

		r.Route("/payments", func(r chi.Router) {
			// The PSP posts here; authenticity comes from the HMAC
			// signature, not a bearer token.
			r.Post("/webhook", app.paymentWebhookHandler)

			r.Group(func(r chi.Router) {
				r.Use(app.AuthTokenMiddleware)
				r.Post("/initiate", app.initiatePaymentHandler)
				r.Post("/verify-vpa", app.verifyVPAHandler)
				r.Get("/", app.listPaymentsHandler)
			})
		})

		r.Route("/groups", func(r chi.Router) {
			r.Use(app.AuthTokenMiddleware)
			r.Post("/{groupID}/invites", app.sendGroupInvitesHandler)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(app.AuthTokenMiddleware)
			r.Put("/vpa", app.linkVPAHandler)
		})

		// Public routes
		r.Route("/authentication", func(r chi.Router) {
			r.Post("/user", app.registerUserHandler)
			r.Post("/token", app.createTokenHandler)
			r.Post("/refresh", app.refreshTokenHandler)
		})
	})
	return r
}

func (app *application) run(mux http.Handler) error {
	// Docs
	docs.SwaggerInfo.Version = version
	docs.SwaggerInfo.Host = app.config.apiURL
	docs.SwaggerInfo.BasePath = "/v1"

	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}

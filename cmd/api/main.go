package main

import (
	"expvar"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"time"

	"sliceit/internal/auth"
	"sliceit/internal/db"
	"sliceit/internal/dbx"
	"sliceit/internal/domain/expenses"
	"sliceit/internal/domain/invites"
	"sliceit/internal/domain/transactions"
	"sliceit/internal/domain/users"
	"sliceit/internal/mailer"
	"sliceit/internal/ratelimiter"
	"sliceit/internal/settlement"
	"sliceit/internal/upi"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoadRateLimiterConfig retrieves rate limiter settings from environment variables
func LoadRateLimiterConfig() ratelimiter.Config {
	defaultRequests := 200
	defaultEnabled := false

	requestsPerTimeFrame := defaultRequests
	if val, exists := os.LookupEnv("RATELIMITER_REQUESTS_COUNT"); exists {
		if parsedVal, err := strconv.Atoi(val); err == nil {
			requestsPerTimeFrame = parsedVal
		} else {
			fmt.Println("Invalid RATELIMITER_REQUESTS_COUNT, defaulting to", defaultRequests)
		}
	}

	enabled := defaultEnabled
	if val, exists := os.LookupEnv("RATE_LIMITER_ENABLED"); exists {
		if parsedVal, err := strconv.ParseBool(val); err == nil {
			enabled = parsedVal
		} else {
			fmt.Println("Invalid RATE_LIMITER_ENABLED, defaulting to", defaultEnabled)
		}
	}

	return ratelimiter.Config{
		RequestsPerTimeFrame: requestsPerTimeFrame,
		TimeFrame:            5 * time.Second,
		Enabled:              enabled,
	}
}

// NewLogger creates a new zap logger with color.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	level := zapcore.InfoLevel

	core := zapcore.NewCore(consoleEncoder, zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout)), level)

	logger := zap.New(core)

	return logger.Sugar(), nil
}

var version = "1.0.0"

//	@title			SliceIt API
//	@description	Settlement and invite backend for SliceIt, an expense-splitting application.

//	@BasePath					/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						Authorization

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Fatalf("Error loading .env file: %v", err)
	}

	maxConnsStr := os.Getenv("DB_MAX_CONNS")
	maxConns, err := strconv.Atoi(maxConnsStr)
	if err != nil {
		log.Fatalf("Invalid value for DB_MAX_CONNS: %v", err)
	}

	smtpPort := 1025
	if val := os.Getenv("SMTP_PORT"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			smtpPort = parsed
		}
	}

	cfg := config{
		addr:        os.Getenv("ADDR"),
		env:         os.Getenv("ENV"),
		frontendURL: os.Getenv("FRONTEND_URL"),
		apiURL:      os.Getenv("EXTERNAL_URL"),
		db: dbConfig{
			addr:        os.Getenv("DB_ADDR"),
			maxConns:    int32(maxConns),
			maxIdleTime: os.Getenv("DB_MAX_IDLE_TIME"),
		},
		mail: mailConfig{
			fromEmail: os.Getenv("SEND_FROM_EMAIL"),
			sendgrid: sendGridConfig{
				apiKey: os.Getenv("SENDGRID_API_KEY"),
			},
			smtp: smtpConfig{
				host:     os.Getenv("SMTP_HOST"),
				port:     smtpPort,
				username: os.Getenv("SMTP_USERNAME"),
				password: os.Getenv("SMTP_PASSWORD"),
			},
		},
		auth: authConfig{
			basic: basicConfig{
				user: os.Getenv("AUTH_BASIC_USER"),
				pass: os.Getenv("AUTH_BASIC_PASS"),
			},
			token: tokenConfig{
				secret:        os.Getenv("AUTH_TOKEN_SECRET"),
				refreshSecret: os.Getenv("AUTH_TOKEN_REFRESH_SECRET"),
				iss:           "SliceIt",
			},
		},
		upi: upiConfig{
			verifyEndpoint: os.Getenv("UPI_VERIFY_ENDPOINT"),
			schemeID:       os.Getenv("UPI_SCHEME_ID"),
			signingKey:     os.Getenv("UPI_SIGNING_SECRET"),
		},
		webhook: webhookConfig{
			secret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		},
		rateLimiter: LoadRateLimiterConfig(),
	}

	// Logger
	logger, err := NewLogger()
	if err != nil {
		fmt.Println("Error creating logger:", err)
		return
	}
	defer logger.Sync()

	if cfg.webhook.secret == "" {
		logger.Fatal("PAYMENT_WEBHOOK_SECRET is required; callbacks cannot be authenticated without it")
	}

	// Database
	pool, err := db.New(
		cfg.db.addr,
		cfg.db.maxConns,
		cfg.db.maxIdleTime,
	)
	if err != nil {
		logger.Fatal(err)
	}

	defer pool.Close()
	logger.Info("database connection pool established")

	// Repositories
	usersStore := users.NewStore(pool)
	txnRepo := transactions.NewRepository(pool)
	expenseRepo := expenses.NewRepository(pool)
	inviteRepo := invites.NewRepository(pool)

	// Settlement core
	runner := dbx.NewPoolRunner(pool)
	settlementSvc := settlement.NewService(runner, txnRepo, expenseRepo, usersStore, logger)

	// VPA verification (syntactic fallback without credentials)
	verifier := upi.NewVerifier(upi.VerifierConfig{
		Endpoint:   cfg.upi.verifyEndpoint,
		SchemeID:   cfg.upi.schemeID,
		SigningKey: cfg.upi.signingKey,
	}, logger)

	// Mail client: SendGrid in production, SMTP catch-all otherwise
	var mailClient mailer.Client
	if cfg.mail.sendgrid.apiKey != "" {
		mailClient, err = mailer.NewSendGridClient(cfg.mail.sendgrid.apiKey, cfg.mail.fromEmail)
	} else {
		mailClient, err = mailer.NewSMTPClient(
			cfg.mail.smtp.host, cfg.mail.smtp.port,
			cfg.mail.smtp.username, cfg.mail.smtp.password,
			cfg.mail.fromEmail,
		)
	}
	if err != nil {
		logger.Fatal(err)
	}

	// Rate limiter
	rateLimiter := ratelimiter.NewFixedWindowLimiter(
		cfg.rateLimiter.RequestsPerTimeFrame,
		cfg.rateLimiter.TimeFrame,
	)

	// Authenticator
	jwtAuthenticator := auth.NewJWTAuthenticator(
		cfg.auth.token.secret,
		cfg.auth.token.refreshSecret,
		cfg.auth.token.iss,
		cfg.auth.token.iss,
	)

	app := &application{
		config:        cfg,
		logger:        logger,
		users:         usersStore,
		invites:       inviteRepo,
		txnList:       txnRepo,
		settlement:    settlementSvc,
		verifier:      verifier,
		mailer:        mailClient,
		authenticator: jwtAuthenticator,
		rateLimiter:   rateLimiter,
	}

	// Metrics collected at /v1/debug/vars
	expvar.NewString("version").Set(version)
	expvar.Publish("database", expvar.Func(func() any {
		return pool.Stat()
	}))
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.mount()

	logger.Fatal(app.run(mux))
}

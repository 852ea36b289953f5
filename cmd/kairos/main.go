package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jvvv94/kairos-ai/internal/api"
	"github.com/jvvv94/kairos-ai/internal/assistant"
	"github.com/jvvv94/kairos-ai/internal/auth"
	"github.com/jvvv94/kairos-ai/internal/feedback"
	"github.com/jvvv94/kairos-ai/internal/flow"
	"github.com/jvvv94/kairos-ai/internal/genai"
	"github.com/jvvv94/kairos-ai/internal/lockfile"
	"github.com/jvvv94/kairos-ai/internal/payment"
	"github.com/jvvv94/kairos-ai/internal/recovery"
	"github.com/jvvv94/kairos-ai/internal/resume"
	"github.com/jvvv94/kairos-ai/internal/scheduler"
	"github.com/jvvv94/kairos-ai/internal/store"
	"github.com/jvvv94/kairos-ai/internal/util"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	// SQLite deployments get a single-instance guard beside the database file.
	if dsn := *flags.dbDSN; dsn != "" && store.DetectDSNType(dsn) == "sqlite" {
		lock, err := lockfile.Acquire(filepath.Dir(dsn))
		if err != nil {
			slog.Error("Failed to acquire database lock", "error", err)
			os.Exit(1)
		}
		defer lock.Release()
	}

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if released, err := recovery.ReleaseStaleClaims(st); err != nil {
		slog.Error("Failed to recover stale job claims", "error", err)
		os.Exit(1)
	} else if released > 0 {
		slog.Info("Recovered stale job claims from previous run", "released", released)
	}
	if _, err := recovery.RecoverInterruptedSessions(st); err != nil {
		slog.Error("Failed to recover interrupted sessions", "error", err)
		os.Exit(1)
	}

	jobs, err := assistant.NewClient(buildAssistantOptions(flags)...)
	if err != nil {
		slog.Error("Failed to initialize assistant client", "error", err)
		os.Exit(1)
	}

	gen, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		slog.Error("Failed to initialize GenAI client", "error", err)
		os.Exit(1)
	}

	authSvc, err := auth.NewService(buildAuthOptions(flags)...)
	if err != nil {
		slog.Error("Failed to initialize auth service", "error", err)
		os.Exit(1)
	}

	paySvc, err := payment.NewService(st, buildPaymentOptions(flags)...)
	if err != nil {
		slog.Error("Failed to initialize payment service", "error", err)
		os.Exit(1)
	}

	interview := flow.NewInterview(st, jobs, buildFlowOptions(flags)...)
	resumes := resume.NewService(gen)
	evaluator := feedback.NewEvaluator(gen)
	reaper := scheduler.NewReaper(st, scheduler.WithSessionTTL(*flags.sessionTTL))

	server := api.NewServer(interview, authSvc, paySvc, resumes, evaluator, buildAPIOptions(flags)...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go reaper.Start(ctx)

	slog.Info("Bootstrapping Kairos with configured modules",
		"addr", *flags.apiAddr, "maxTurns", *flags.maxTurns, "sessionTTL", *flags.sessionTTL)
	if err := server.Run(ctx); err != nil {
		slog.Error("Kairos failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Kairos exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL    string
	OpenAIKey      string
	AssistantID    string
	APIAddr        string
	KakaoClientID  string
	KakaoSecret    string
	KakaoRedirect  string
	KakaoPayKey    string
	KakaoPayCID    string
	AllowedOrigins string
	MaxTurns       int
	FinalQuestion  string
	SessionTTL     time.Duration
}

// Flags holds command line flag values
type Flags struct {
	dbDSN          *string
	openaiKey      *string
	assistantID    *string
	apiAddr        *string
	kakaoClientID  *string
	kakaoSecret    *string
	kakaoRedirect  *string
	kakaoPayKey    *string
	kakaoPayCID    *string
	allowedOrigins *string
	maxTurns       *int
	finalQuestion  *string
	sessionTTL     *time.Duration
	secureCookies  *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	level := slog.LevelDebug
	if util.ParseBoolEnv("KAIROS_QUIET", false) {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		AssistantID:    os.Getenv("KAIROS_ASSISTANT_ID"),
		APIAddr:        util.GetEnv("API_ADDR", ":8080"),
		KakaoClientID:  os.Getenv("KAKAO_CLIENT_ID"),
		KakaoSecret:    os.Getenv("KAKAO_CLIENT_SECRET"),
		KakaoRedirect:  os.Getenv("KAKAO_REDIRECT_URL"),
		KakaoPayKey:    os.Getenv("KAKAOPAY_ADMIN_KEY"),
		KakaoPayCID:    os.Getenv("KAKAOPAY_CID"),
		AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		MaxTurns:       util.ParseIntEnv("INTERVIEW_MAX_TURNS", 10),
		FinalQuestion:  os.Getenv("INTERVIEW_FINAL_QUESTION"),
		SessionTTL:     time.Duration(util.ParseIntEnv("SESSION_TTL_MINUTES", 60)) * time.Minute,
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"KAIROS_ASSISTANT_ID_SET", config.AssistantID != "",
		"API_ADDR", config.APIAddr,
		"KAKAO_CLIENT_ID_SET", config.KakaoClientID != "",
		"KAKAOPAY_ADMIN_KEY_SET", config.KakaoPayKey != "",
		"INTERVIEW_MAX_TURNS", config.MaxTurns,
		"SESSION_TTL", config.SessionTTL)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		dbDSN:          flag.String("db-dsn", config.DatabaseURL, "database DSN: Postgres URL or SQLite path (overrides $DATABASE_URL)"),
		openaiKey:      flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		assistantID:    flag.String("assistant-id", config.AssistantID, "pre-provisioned assistant ID (overrides $KAIROS_ASSISTANT_ID)"),
		apiAddr:        flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		kakaoClientID:  flag.String("kakao-client-id", config.KakaoClientID, "Kakao REST API key (overrides $KAKAO_CLIENT_ID)"),
		kakaoSecret:    flag.String("kakao-client-secret", config.KakaoSecret, "Kakao client secret (overrides $KAKAO_CLIENT_SECRET)"),
		kakaoRedirect:  flag.String("kakao-redirect-url", config.KakaoRedirect, "Kakao OAuth redirect URL (overrides $KAKAO_REDIRECT_URL)"),
		kakaoPayKey:    flag.String("kakaopay-admin-key", config.KakaoPayKey, "KakaoPay admin key (overrides $KAKAOPAY_ADMIN_KEY)"),
		kakaoPayCID:    flag.String("kakaopay-cid", config.KakaoPayCID, "KakaoPay merchant code (overrides $KAKAOPAY_CID)"),
		allowedOrigins: flag.String("allowed-origins", config.AllowedOrigins, "comma-separated CORS origins (overrides $ALLOWED_ORIGINS)"),
		maxTurns:       flag.Int("max-turns", config.MaxTurns, "question/answer exchanges per interview (overrides $INTERVIEW_MAX_TURNS)"),
		finalQuestion:  flag.String("final-question", config.FinalQuestion, "fallback text for the final question (overrides $INTERVIEW_FINAL_QUESTION)"),
		sessionTTL:     flag.Duration("session-ttl", config.SessionTTL, "idle time before a session expires (overrides $SESSION_TTL_MINUTES)"),
		secureCookies:  flag.Bool("secure-cookies", util.ParseBoolEnv("SECURE_COOKIES", false), "mark auth cookies Secure (overrides $SECURE_COOKIES)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"maxTurns", *flags.maxTurns,
		"sessionTTL", *flags.sessionTTL)

	return flags
}

// buildStore selects the storage backend from the DSN: Postgres for
// connection strings, SQLite for file paths, in-memory when no DSN is given.
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildFlowOptions constructs interview orchestrator configuration options
func buildFlowOptions(flags Flags) []flow.Option {
	opts := []flow.Option{flow.WithMaxTurns(*flags.maxTurns)}
	if *flags.finalQuestion != "" {
		opts = append(opts, flow.WithFinalQuestionFallback(*flags.finalQuestion))
	}
	return opts
}

// buildAssistantOptions constructs assistant client configuration options
func buildAssistantOptions(flags Flags) []assistant.Option {
	opts := []assistant.Option{assistant.WithAPIKey(*flags.openaiKey)}
	if *flags.assistantID != "" {
		opts = append(opts, assistant.WithAssistantID(*flags.assistantID))
	}
	return opts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var opts []genai.Option
	if *flags.openaiKey != "" {
		opts = append(opts, genai.WithAPIKey(*flags.openaiKey))
	}
	return opts
}

// buildAuthOptions constructs Kakao auth configuration options
func buildAuthOptions(flags Flags) []auth.Option {
	opts := []auth.Option{auth.WithClientID(*flags.kakaoClientID)}
	if *flags.kakaoSecret != "" {
		opts = append(opts, auth.WithClientSecret(*flags.kakaoSecret))
	}
	if *flags.kakaoRedirect != "" {
		opts = append(opts, auth.WithRedirectURL(*flags.kakaoRedirect))
	}
	return opts
}

// buildPaymentOptions constructs KakaoPay configuration options
func buildPaymentOptions(flags Flags) []payment.Option {
	opts := []payment.Option{payment.WithAdminKey(*flags.kakaoPayKey)}
	if *flags.kakaoPayCID != "" {
		opts = append(opts, payment.WithCID(*flags.kakaoPayCID))
	}
	if *flags.kakaoRedirect != "" {
		base := strings.TrimSuffix(*flags.kakaoRedirect, "/")
		opts = append(opts, payment.WithRedirectURLs(base+"/payment/success", base+"/payment/cancel", base+"/payment/fail"))
	}
	return opts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	opts := []api.Option{
		api.WithAddr(*flags.apiAddr),
		api.WithSecureCookies(*flags.secureCookies),
	}
	if *flags.allowedOrigins != "" {
		origins := strings.Split(*flags.allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		opts = append(opts, api.WithAllowedOrigins(origins))
	}
	return opts
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/horosgate/internal/api"
	"github.com/hazyhaar/horosgate/internal/auth"
	"github.com/hazyhaar/horosgate/internal/config"
	"github.com/hazyhaar/horosgate/internal/db"
	"github.com/hazyhaar/horosgate/internal/gate"
	"github.com/hazyhaar/horosgate/internal/mail"
	"github.com/hazyhaar/horosgate/pkg/reqlog"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "useradd":
		cmdUserAdd(os.Args[2:])
	case "version":
		fmt.Printf("horosgate %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`horosgate: session-gated web application with buffered request logging

Usage:
  horosgate serve [--config config.toml] [--addr :8080]
  horosgate useradd --email EMAIL --password PASSWORD [--admin] [--verified] [--config config.toml]
  horosgate version
  horosgate help

Commands:
  serve     Start the HTTP server
  useradd   Create a user account
  version   Print version
  help      Show this help`)
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fatal("loading config", err)
	}
	level, _ := cfg.SlogLevel()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	addr := fs.String("addr", "", "listen address (overrides config)")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg); err != nil {
		fatal("server error", err)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	repo, closeRepo, err := sessionRepo(cfg, database)
	if err != nil {
		return err
	}
	defer closeRepo()

	sessions := auth.NewSessions(repo, database, auth.SessionConfig{
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.SessionTTL(),
		Secure:     cfg.Session.Secure,
	})
	a := auth.New(database, cfg.Auth.TokenSecret, cfg.VerifyTokenTTL())

	file, err := reqlog.OpenDailyFile(cfg.Logging.Dir)
	if err != nil {
		return fmt.Errorf("opening request log: %w", err)
	}
	// The daily file is the primary sink. The request log table mirrors it.
	sinks := reqlog.Multi{file}
	var requestLogs *db.RequestLogStore
	if cfg.Logging.SQLite {
		requestLogs = db.NewRequestLogStore(database)
		sinks = append(sinks, requestLogs)
	}
	writer := reqlog.NewWriter(sinks, reqlog.Options{
		BufferSize:    cfg.Logging.BufferSize,
		FlushInterval: cfg.FlushInterval(),
	})

	apiHandler := api.New(database, a, sessions, mailSender(cfg), api.NewRateLimiter(cfg.Auth.SignInRPS, cfg.Auth.SignInBurst))
	apiHandler.SetLogStats(writer.Stats)
	if requestLogs != nil {
		apiHandler.SetRequestLogs(requestLogs)
	}

	rt := gate.NewRouter()
	apiHandler.RegisterRoutes(rt)
	rt.HandleStd("GET /metrics", promhttp.Handler())

	routes := gate.NewClassifier(cfg.Routes.Protected, cfg.Routes.Admin)
	g := gate.New(sessions, routes, reqlog.NewAssembler(cfg.Server.Domain), writer)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.SecurityHeaders(g.Wrap(rt.Serve)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go purgeSessions(ctx, sessions, time.Hour)

	slog.Info("horosgate listening",
		"version", version,
		"addr", cfg.Server.Addr,
		"database", cfg.Database.Path,
		"sessions", cfg.Session.Backend,
		"request_log", file.Path(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	// Requests still in flight have now enqueued their records.
	if err := writer.Close(shutdownCtx); err != nil {
		slog.Error("closing request log", "error", err)
	}
	return serveErr
}

func sessionRepo(cfg *config.Config, database *db.DB) (auth.SessionRepo, func(), error) {
	if cfg.Session.Backend != config.BackendRedis {
		return database, func() {}, nil
	}
	rs, err := auth.NewRedisSessions(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return rs, func() { rs.Close() }, nil
}

func mailSender(cfg *config.Config) mail.Sender {
	if cfg.Mail.SMTPAddr == "" {
		return mail.LogSender{}
	}
	return mail.NewSMTPSender(cfg.Mail.SMTPAddr, cfg.Mail.From, cfg.Mail.SMTPUser, cfg.Mail.SMTPPassword)
}

func purgeSessions(ctx context.Context, sessions *auth.Sessions, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.PurgeExpired(ctx)
			if err != nil {
				slog.Warn("purging expired sessions", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("purged expired sessions", "count", n)
			}
		}
	}
}

func cmdUserAdd(args []string) {
	fs := flag.NewFlagSet("useradd", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (min 6 characters)")
	admin := fs.Bool("admin", false, "grant the ADMIN role")
	verified := fs.Bool("verified", false, "mark the email as verified")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" || len(*password) < 6 {
		fmt.Fprintln(os.Stderr, "useradd: --email and a --password of at least 6 characters are required")
		os.Exit(2)
	}

	cfg := loadConfig(*configPath)
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		fatal("opening database", err)
	}
	defer database.Close()

	a := auth.New(database, cfg.Auth.TokenSecret, cfg.VerifyTokenTTL())
	hash, err := a.HashPassword(*password)
	if err != nil {
		fatal("hashing password", err)
	}
	role := db.RoleUser
	if *admin {
		role = db.RoleAdmin
	}
	u, err := database.CreateUser(context.Background(), db.CreateUserInput{
		Email:        *email,
		Role:         role,
		Verified:     *verified,
		PasswordHash: hash,
	})
	if err != nil {
		fatal("creating user", err)
	}
	fmt.Printf("created %s (%s, id %s)\n", u.Email, u.Role, u.ID)
}

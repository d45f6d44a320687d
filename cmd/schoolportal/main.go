package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/schoolportal/internal/api"
	"github.com/pavelanni/schoolportal/internal/handler"
	appI18n "github.com/pavelanni/schoolportal/internal/i18n"
	"github.com/pavelanni/schoolportal/internal/llm"
	"github.com/pavelanni/schoolportal/internal/model"
	"github.com/pavelanni/schoolportal/internal/store"
)

//go:generate templ generate -path ../..

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("error reading .env file", "error", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "schoolportal",
		Short: "School portal with timed online tests",
	}

	serve := serveCmd()
	root.AddCommand(serve, loginCmd(), logoutCmd(), testsCmd(), resultCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `schoolportal --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// addBackendFlags registers the flags every command needs to reach the
// school API and the session store.
func addBackendFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("api-url", "http://localhost:5000/api", "School API base URL")
	f.Duration("api-timeout", 15*time.Second, "Timeout for each school API request")
	f.String("db", "schoolportal.db", "SQLite database path")
	f.String("session-backend", "sqlite", "Session storage backend (sqlite, redis)")
	f.String("redis-url", "redis://localhost:6379/0", "Redis URL for the redis session backend")
	f.String("session-secret", "", "Secret that seals stored sessions (or set SCHOOLPORTAL_SESSION_SECRET)")
	f.StringP("lang", "l", "en", "Default UI language (en, hi)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the portal web server",
		RunE:  runServe,
	}
	addBackendFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /portal)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("explain-style", "", "Result explanation style (brief, detailed); empty disables explanations")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SCHOOLPORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("schoolportal")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/schoolportal")
	v.AddConfigPath("/etc/schoolportal")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// openSessions opens the configured session backend. The caller closes the
// returned Blobs.
func openSessions(ctx context.Context, v *viper.Viper) (*store.Sessions, store.Blobs, error) {
	secret := v.GetString("session-secret")
	if secret == "" {
		return nil, nil, fmt.Errorf("session secret is required: set --session-secret flag or SCHOOLPORTAL_SESSION_SECRET env var")
	}

	var blobs store.Blobs
	switch backend := strings.ToLower(v.GetString("session-backend")); backend {
	case "", "sqlite":
		db, err := store.New(v.GetString("db"))
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		blobs = db
	case "redis":
		rb, err := store.NewRedis(ctx, v.GetString("redis-url"))
		if err != nil {
			return nil, nil, fmt.Errorf("open redis: %w", err)
		}
		blobs = rb
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q (want sqlite or redis)", backend)
	}

	sessions, err := store.NewSessions(ctx, blobs, secret)
	if err != nil {
		blobs.Close()
		return nil, nil, fmt.Errorf("open sessions: %w", err)
	}
	return sessions, blobs, nil
}

func apiClient(v *viper.Viper) *api.Client {
	return api.New(v.GetString("api-url"), v.GetDuration("api-timeout"))
}

// purgeExpired drops expired sessions from the SQLite backend until ctx is done.
func purgeExpired(ctx context.Context, db *store.Store, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := db.PurgeExpired(ctx)
			if err != nil {
				slog.Warn("failed to purge expired sessions", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("purged expired sessions", "count", n)
			}
		}
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	sessions, blobs, err := openSessions(ctx, v)
	if err != nil {
		return err
	}
	defer blobs.Close()
	if db, ok := blobs.(*store.Store); ok {
		go purgeExpired(ctx, db, time.Hour)
	}

	var opts []handler.Option
	explainStyle := strings.ToLower(strings.TrimSpace(v.GetString("explain-style")))
	if explainStyle != "" {
		llmClient, err := llm.New(
			v.GetString("llm-url"),
			v.GetString("llm-key"),
			v.GetString("llm-model"),
			explainStyle,
		)
		if err != nil {
			return fmt.Errorf("create LLM client: %w", err)
		}
		if err := llmClient.Ping(ctx); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
		opts = append(opts, handler.WithExplainer(llmClient))
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.PortalConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		Lang:          lang,
	}

	h := handler.New(apiClient(v), sessions, cfg, opts...)
	defer h.Close()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r}
	slog.Info("starting server",
		"addr", addr,
		"api_url", v.GetString("api-url"),
		"session_backend", v.GetString("session-backend"),
		"lang", lang,
		"base_path", basePath,
		"explain_style", explainStyle,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Command appleid-demo runs a minimal web login with Sign in with Apple.
//
// Configuration is read from the environment (see internal/config). Without
// VALKEY_ADDR states and users are kept in memory.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	oauth "github.com/giantswarm/appleid-oauth"
	"github.com/giantswarm/appleid-oauth/instrumentation"
	"github.com/giantswarm/appleid-oauth/internal/config"
	"github.com/giantswarm/appleid-oauth/providers/apple"
	"github.com/giantswarm/appleid-oauth/security"
	"github.com/giantswarm/appleid-oauth/server"
	"github.com/giantswarm/appleid-oauth/storage"
	"github.com/giantswarm/appleid-oauth/storage/memory"
	"github.com/giantswarm/appleid-oauth/storage/valkey"
)

const (
	loginPath    = "/auth/apple/login"
	callbackPath = "/auth/apple/callback"
)

// stores is what the demo needs from a storage backend
type stores interface {
	storage.StateStore
	storage.UserStore
}

func main() {
	if err := run(); err != nil {
		slog.Error("appleid-demo failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName: "appleid-demo",
		Enabled:     cfg.Tracing,
	})
	if err != nil {
		return err
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	appleCfg, err := cfg.AppleConfig()
	if err != nil {
		return err
	}
	appleCfg.Logger = logger
	provider, err := apple.NewProvider(appleCfg)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg, logger, inst)
	if err != nil {
		return err
	}
	defer closeStore()

	srv, err := server.New(provider, store, store, &server.Config{
		StateTTL: cfg.StateTTL,
		Scopes:   cfg.Scopes,
	}, logger)
	if err != nil {
		return err
	}
	srv.SetInstrumentation(inst)

	auditor := security.NewAuditor(logger, cfg.AuditLogging)
	auditor.SetInstrumentation(inst)
	srv.SetAuditor(auditor)

	encryptor, err := cfg.Encryptor()
	if err != nil {
		return err
	}
	srv.SetEncryptor(encryptor)

	srv.OnAuthenticated(func(ctx context.Context, result *server.Result) error {
		logger.InfoContext(ctx, "User signed in",
			"attempt_id", result.AttemptID,
			"created", result.Created,
			"email_verified", result.User.EmailVerified)
		return nil
	})

	handler := oauth.NewHandler(srv, &oauth.Config{
		SuccessURL:     cfg.SuccessURL,
		FailureURL:     cfg.FailureURL,
		SuccessHandler: successHandler(cfg.SuccessURL),
		RateLimit: oauth.RateLimitConfig{
			Rate:              cfg.RateLimit,
			Burst:             cfg.RateLimitBurst,
			TrustProxy:        cfg.TrustProxy,
			TrustedProxyCount: cfg.TrustedProxyCount,
		},
		Logger: logger,
	})
	defer handler.Stop()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newRouter(handler, srv, store),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting appleid-demo",
			"addr", cfg.ListenAddr,
			"valkey", cfg.ValkeyAddr != "",
			"encryption", encryptor.IsEnabled(),
			"rate_limit", cfg.RateLimit)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openStore(cfg *config.Config, logger *slog.Logger, inst *instrumentation.Instrumentation) (stores, func(), error) {
	if vc := cfg.ValkeyConfig(); vc != nil {
		vc.Logger = logger
		store, err := valkey.New(*vc)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}

	logger.Warn("VALKEY_ADDR not set, keeping login state in memory (single instance only)")
	store := memory.New()
	store.SetLogger(logger)
	store.SetInstrumentation(inst)
	return store, store.Stop, nil
}

func newRouter(handler *oauth.Handler, srv *server.Server, store storage.UserStore) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	login := gin.WrapH(handler.Wrap(http.HandlerFunc(handler.ServeLogin)))
	callback := gin.WrapH(handler.Wrap(http.HandlerFunc(handler.ServeCallback)))
	router.GET(loginPath, login)
	router.POST(callbackPath, callback)
	router.GET(callbackPath, callback)

	router.GET("/healthz", func(c *gin.Context) {
		if err := srv.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/login", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, `<a href="`+loginPath+`">Sign in with Apple</a>`)
	})

	users := router.Group("/users")
	users.GET("/:subject", func(c *gin.Context) {
		record, err := store.GetBySubject(c.Request.Context(), srv.Provider().Name(), c.Param("subject"))
		if errors.Is(err, storage.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"subject":        record.Subject,
			"name":           record.Name,
			"email":          record.Email,
			"email_verified": record.EmailVerified,
			"last_login_at":  record.LastLoginAt,
		})
	})
	// Apple requires apps that support account deletion to revoke the user's tokens
	users.DELETE("/:subject/tokens", func(c *gin.Context) {
		err := srv.RevokeUserTokens(c.Request.Context(), c.Param("subject"))
		switch {
		case errors.Is(err, storage.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		case errors.Is(err, server.ErrNoRefreshToken):
			c.Status(http.StatusNoContent)
		case err != nil:
			c.JSON(http.StatusBadGateway, gin.H{"error": "revocation_failed"})
		default:
			c.Status(http.StatusNoContent)
		}
	})

	return router
}

// successHandler shows the signed-in user unless a success URL is configured
func successHandler(successURL string) func(http.ResponseWriter, *http.Request, *oauth.LoginResult) {
	if successURL != "" {
		return nil
	}
	return func(w http.ResponseWriter, _ *http.Request, result *oauth.LoginResult) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"subject":        result.User.ID,
			"name":           result.User.Name,
			"email":          result.User.Email,
			"email_verified": result.User.EmailVerified,
			"is_new_user":    result.Created,
			"return_to":      result.ReturnTo,
		})
	}
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

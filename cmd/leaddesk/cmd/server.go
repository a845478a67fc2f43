package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jmcleod/leaddesk/api"
	"github.com/jmcleod/leaddesk/chat"
	"github.com/jmcleod/leaddesk/config"
	"github.com/jmcleod/leaddesk/internal/util"
	"github.com/jmcleod/leaddesk/mail"
	"github.com/jmcleod/leaddesk/metrics"
	"github.com/jmcleod/leaddesk/ratelimit"
	"github.com/jmcleod/leaddesk/session"
	"github.com/jmcleod/leaddesk/storage"
	"github.com/jmcleod/leaddesk/web"
)

var (
	listenAddr string
	tlsCert    string
	tlsKey     string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the website and lead API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyServerFlags(cmd, &cfg)

		logger := cfg.Log.NewLogger(os.Stderr)
		slog.SetDefault(logger)

		repo, closeRepo, err := openRepository(cmd.Context(), cfg.Storage)
		if err != nil {
			return err
		}
		defer closeRepo()

		limiters, closeLimiters, err := buildLimiters(cfg, logger)
		if err != nil {
			return err
		}
		defer closeLimiters()

		a, closeAPI, err := buildAPI(cfg, repo, limiters, logger)
		if err != nil {
			return err
		}
		defer closeAPI()

		handler, err := newRouter(a, logger)
		if err != nil {
			return err
		}

		tlsConfig, err := serverTLSConfig(cfg.Server)
		if err != nil {
			return err
		}

		server := &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           handler,
			TLSConfig:         tlsConfig,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if tlsConfig != nil {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner(cmd.ErrOrStderr())
		logger.Info("server started",
			slog.String("listen", cfg.Server.Listen),
			slog.Bool("tls", tlsConfig != nil),
			slog.String("storage", cfg.Storage.Driver),
			slog.Bool("redis_rate_limits", cfg.Redis.Addr != ""),
			slog.Bool("chat", cfg.Chat.Enabled),
			slog.Bool("mail", cfg.Mail.Enabled()),
		)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", slog.String("signal", sig.String()))
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Address to listen on (overrides server.listen)")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
}

func applyServerFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("listen") {
		cfg.Server.Listen = listenAddr
	}
	if cmd.Flags().Changed("tls-cert") {
		cfg.Server.TLSCert = tlsCert
	}
	if cmd.Flags().Changed("tls-key") {
		cfg.Server.TLSKey = tlsKey
	}
}

// buildLimiters returns Redis-backed limiters when redis.addr is set so that
// replicas share budgets, and in-memory limiters otherwise.
func buildLimiters(cfg config.Config, logger *slog.Logger) (api.Limiters, func() error, error) {
	closeFn := func() error { return nil }
	newLimiter := func(_ string, c ratelimit.Config) (ratelimit.Checker, error) {
		return ratelimit.New(c)
	}
	newDaily := func(maxPerDay int) (ratelimit.Checker, error) {
		return ratelimit.NewDaily(maxPerDay)
	}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closeFn = client.Close
		newLimiter = func(name string, c ratelimit.Config) (ratelimit.Checker, error) {
			return ratelimit.NewRedis(client, cfg.Redis.Prefix+name+":", c, logger)
		}
		newDaily = func(maxPerDay int) (ratelimit.Checker, error) {
			return ratelimit.NewRedisDaily(client, cfg.Redis.Prefix+"chat_sessions:", maxPerDay, logger)
		}
	}

	rl := cfg.RateLimits
	var l api.Limiters
	for _, b := range []struct {
		name   string
		cfg    ratelimit.Config
		target *ratelimit.Checker
	}{
		{"contact", rl.Contact, &l.Contact},
		{"chat", rl.Chat, &l.Chat},
		{"login", rl.Login, &l.Login},
	} {
		limiter, err := newLimiter(b.name, b.cfg)
		if err != nil {
			closeFn()
			return api.Limiters{}, nil, fmt.Errorf("%s limiter: %w", b.name, err)
		}
		*b.target = limiter
	}

	daily, err := newDaily(rl.ChatSessionsPerDay)
	if err != nil {
		closeFn()
		return api.Limiters{}, nil, fmt.Errorf("chat session limiter: %w", err)
	}
	l.ChatSessions = daily
	return l, closeFn, nil
}

func buildAPI(cfg config.Config, repo storage.Repository, limiters api.Limiters, logger *slog.Logger) (*api.API, func() error, error) {
	trusted, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return nil, nil, err
	}
	if os.Getenv(cfg.Session.SecretEnv) == "" {
		logger.Warn("session secret is not set; admin login will fail until it is", slog.String("env", cfg.Session.SecretEnv))
	}
	signer := session.NewSigner(session.EnvSecret(cfg.Session.SecretEnv), session.WithLifetime(cfg.Session.Lifetime))

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithMailer(mail.NewSender(cfg.Mail, logger)),
		api.WithLimiters(limiters),
		api.WithTrustedProxies(trusted),
		api.WithCookieSecure(cfg.Server.CookieSecure),
		api.WithHistoryLimits(cfg.Chat.MaxHistoryMessages, cfg.Chat.MaxHistoryChars),
		api.WithAlertFunc(func(ev api.AlertEvent) {
			logger.Warn("security alert",
				slog.String("alert", string(ev.Type)),
				slog.String("message", ev.Message),
				slog.Int("count", ev.Count),
			)
		}),
	}

	closeFn := func() error { return nil }
	if cfg.Chat.Enabled {
		client, err := chat.NewClient(cfg.Chat, logger)
		if err != nil {
			return nil, nil, err
		}
		prompts, err := chat.NewPromptStore(cfg.Chat.PromptFile, cfg.Chat.SystemPrompt, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("loading chat prompt: %w", err)
		}
		opts = append(opts, api.WithChat(client, prompts))
		closeFn = prompts.Close
	}

	admin := api.AdminCredentials{Username: cfg.Admin.Username, PasswordHash: cfg.Admin.PasswordHash}
	return api.New(repo, signer, admin, opts...), closeFn, nil
}

func newRouter(a *api.API, logger *slog.Logger) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(logger.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(api.SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/api", a.Router())

	webHandler, err := web.Handler()
	if err != nil {
		return nil, err
	}
	r.Handle("/*", webHandler)
	return r, nil
}

// serverTLSConfig returns nil when the server should speak plain HTTP,
// typically behind a TLS-terminating proxy.
func serverTLSConfig(cfg config.ServerConfig) (*tls.Config, error) {
	var cert tls.Certificate
	switch {
	case cfg.TLSCert != "" && cfg.TLSKey != "":
		var err error
		cert, err = tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
	case cfg.SelfSignedTLS:
		var err error
		cert, err = util.GenerateSelfSignedCert()
		if err != nil {
			return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
	default:
		return nil, nil
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sddion/projectzg/internal/auth"
	"github.com/sddion/projectzg/internal/config"
	"github.com/sddion/projectzg/internal/database"
	"github.com/sddion/projectzg/internal/logging"
	"github.com/sddion/projectzg/internal/mailer"
	"github.com/sddion/projectzg/internal/ratelimit"
	"github.com/sddion/projectzg/internal/server"
	"github.com/sddion/projectzg/internal/social"
	"github.com/sddion/projectzg/internal/storage"
	"github.com/sddion/projectzg/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	sweepInterval     = time.Minute
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "zg-api",
		Short: "ZG social network API server",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to an optional dotenv file")
	cmd.PersistentFlags().String("environment", defaults.GetString("environment"), "Runtime environment (development, production)")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or SQLite path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("app-url", defaults.GetString("app.url"), "Public URL of the web client")
	cmd.PersistentFlags().String("storage-backend", defaults.GetString("storage.backend"), "Object store backend (local, s3, gcs)")
	cmd.PersistentFlags().String("jwt-secret", "", "Access token signing secret (overrides env)")

	bindFlag(cmd, "environment", "environment")
	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "app.url", "app-url")
	bindFlag(cmd, "storage.backend", "storage-backend")
	bindFlag(cmd, "auth.jwt_secret", "jwt-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.Environment)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(appConfig.DatabaseDriver, appConfig.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store, err := storage.Open(signalCtx, appConfig.Storage, logger)
	if err != nil {
		return err
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}
	mediaRoot := ""
	if local, ok := store.(*storage.LocalStore); ok {
		mediaRoot = local.Root()
	}

	resetLimiter, err := newResetLimiter(signalCtx, appConfig.RateLimit, logger)
	if err != nil {
		return err
	}

	resetMailer, err := newResetMailer(appConfig.SMTP, logger)
	if err != nil {
		return err
	}

	validatorConfig := auth.SessionValidatorConfig{
		SigningSecret:  []byte(appConfig.Auth.JWTSecret),
		Issuer:         appConfig.Auth.Issuer,
		TrustedIssuers: appConfig.Auth.TrustedIssuers,
	}
	if appConfig.Auth.JWKSURL != "" {
		keys, err := auth.NewJWKSKeySource(auth.JWKSConfig{URL: appConfig.Auth.JWKSURL, Logger: logger})
		if err != nil {
			return err
		}
		validatorConfig.Keys = keys
	}
	sessionValidator, err := auth.NewSessionValidator(validatorConfig)
	if err != nil {
		return err
	}

	identityProvider, err := auth.NewPasswordProvider(auth.PasswordProviderConfig{
		Database: db,
		Tokens: auth.NewTokenIssuer(auth.TokenIssuerConfig{
			SigningSecret: []byte(appConfig.Auth.JWTSecret),
			Issuer:        appConfig.Auth.Issuer,
			TokenTTL:      appConfig.Auth.AccessTokenTTL,
		}),
		Validator:  sessionValidator,
		Mailer:     resetMailer,
		RefreshTTL: appConfig.Auth.RefreshTokenTTL,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	profileService, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	realtime := server.NewRealtimeDispatcher(logger)
	socialService, err := social.NewService(social.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: social.NewUUIDProvider(),
		Profiles:   profileService,
		Publisher:  realtime,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	mediaService, err := social.NewMediaService(social.MediaServiceConfig{
		Database:   db,
		Store:      store,
		IDProvider: social.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Identity:     identityProvider,
		Profiles:     profileService,
		Social:       socialService,
		Media:        mediaService,
		ResetLimiter: resetLimiter,
		Realtime:     realtime,
		MediaRoot:    mediaRoot,
		Config:       appConfig,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("environment", appConfig.Environment),
			zap.String("database_driver", appConfig.DatabaseDriver),
			zap.String("storage_backend", appConfig.Storage.Backend))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newResetLimiter shares counters through redis when configured and falls back to process memory.
func newResetLimiter(ctx context.Context, cfg config.RateLimitConfig, logger *zap.Logger) (ratelimit.Limiter, error) {
	if cfg.RedisAddress == "" {
		limiter := ratelimit.NewMemoryLimiter(ratelimit.PasswordResetPolicy, nil)
		go limiter.RunSweeper(ctx, sweepInterval)
		logger.Info("rate limiter using process memory")
		return limiter, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	logger.Info("rate limiter using redis", zap.String("address", cfg.RedisAddress))
	return ratelimit.NewRedisLimiter(client, ratelimit.PasswordResetPolicy), nil
}

func newResetMailer(cfg config.SMTPConfig, logger *zap.Logger) (auth.ResetMailer, error) {
	if cfg.Host == "" {
		logger.Warn("smtp host not configured; password reset links are logged instead of mailed")
		return mailer.NewLogMailer(logger), nil
	}
	return mailer.NewSMTPMailer(mailer.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	}, logger)
}

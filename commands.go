package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gorm.io/gorm/logger"

	"mystery_web/internal/api"
	"mystery_web/internal/content"
	"mystery_web/internal/middleware"
	"mystery_web/internal/repository"
	"mystery_web/internal/repository/memory"
	"mystery_web/internal/service"
	"mystery_web/internal/storage"
	"mystery_web/internal/utils"
	"mystery_web/pkg/config"
)

const shutdownTimeout = 10 * time.Second

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mystery_web",
		Short: "Real-time session server for cooperative mystery rooms.",
		Args:  cobra.NoArgs,
	}

	fs := cmd.PersistentFlags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ./pkg/config/config.yaml)")
	fs.String("db-driver", "", "storage backend: postgres, sqlite or memory (env: MYSTERY_DB_DRIVER)")
	fs.String("db-path", "", "sqlite database file (env: MYSTERY_DB_PATH)")
	fs.String("log-level", "", "log level (env: MYSTERY_LOG_LEVEL)")

	load := func(cmd *cobra.Command) (*config.Config, error) {
		cfg, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			return nil, err
		}
		setupLogging(cfg.Log)
		return cfg, nil
	}

	cmd.AddCommand(newServeCmd(load), newSeedCmd(load), newTokenCmd(load))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return cmd
}

type loadFunc func(cmd *cobra.Command) (*config.Config, error)

func newServeCmd(load loadFunc) *cobra.Command {
	var casesPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, casesPath)
		},
	}
	cmd.Flags().String("address", "", "address to listen on (env: MYSTERY_SERVER_ADDRESS)")
	cmd.Flags().StringVar(&casesPath, "cases", "", "YAML case file to load at startup")
	return cmd
}

func newSeedCmd(load loadFunc) *cobra.Command {
	var casesPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load case files into the content store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			if cfg.DB.Driver == "memory" {
				return errors.New("seed: the memory store does not persist; use serve --cases instead")
			}
			repos, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			n, err := seedCases(cmd.Context(), repos, casesPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d case(s) from %s\n", n, casesPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&casesPath, "cases", "configs/cases.yaml", "YAML case file")
	return cmd
}

func newTokenCmd(load loadFunc) *cobra.Command {
	var (
		userID string
		name   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed identity token for development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			if userID == "" {
				userID = uuid.NewString()
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, err := utils.NewTokenManager(cfg.Auth.JWTSecret, ttl).GenerateToken(userID, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (default: random uuid)")
	cmd.Flags().StringVar(&name, "name", "", "display name stored in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: auth.token_ttl)")
	return cmd
}

func setupLogging(cfg config.LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logrus.SetOutput(os.Stdout)
}

// openStore 依設定開啟儲存層並完成資料表遷移
func openStore(cfg *config.Config) (*repository.Repositories, func(), error) {
	gormLevel := logger.Warn
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		gormLevel = logger.Info
	}

	var (
		db  *storage.DB
		err error
	)
	switch cfg.DB.Driver {
	case "memory":
		logrus.Warn("using in-memory store; all rooms are lost on restart")
		return memory.NewRepositories(), func() {}, nil
	case "sqlite":
		db, err = storage.NewSQLiteDB(cfg.DB.Path, gormLevel)
	default:
		db, err = storage.NewPostgresDB(storage.PostgresOptions{
			Host:     cfg.DB.Host,
			User:     cfg.DB.User,
			Password: cfg.DB.Password,
			Name:     cfg.DB.Name,
			Port:     cfg.DB.Port,
			SSLMode:  cfg.DB.SSLMode,
			TimeZone: cfg.DB.TimeZone,
		}, gormLevel)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// 自動遷移資料庫結構
	if err := db.AutoMigrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to auto migrate database: %w", err)
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close database")
		}
	}
	return repository.NewRepositories(db), closeFn, nil
}

func seedCases(ctx context.Context, repos *repository.Repositories, path string) (int, error) {
	cases, err := content.LoadFile(path)
	if err != nil {
		return 0, err
	}
	return content.Seed(ctx, repos.Case, cases)
}

func sessionConfig(cfg *config.Config) service.Config {
	return service.Config{
		Options: service.Options{
			StoreTimeout:           cfg.Session.StoreTimeout,
			DefaultMaxParticipants: cfg.Session.DefaultMaxParticipants,
			ChatTailLimit:          cfg.Session.ChatTailLimit,
			MaxMessageLength:       cfg.Session.MaxMessageLength,
		},
		SubscriberQueue: cfg.Session.SubscriberQueue,
		RoomTTL:         cfg.Session.RoomTTL,
		ReaperInterval:  cfg.Session.ReaperInterval,
		WebSocket: service.WebSocketOptions{
			WriteWait: cfg.Session.WriteWait,
			PongWait:  cfg.Session.PongWait,
		},
	}
}

func newRedisClient(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// 限流在 Redis 無法使用時放行，伺服器照常啟動
		logrus.WithError(err).WithField("addr", cfg.Addr).Warn("redis unreachable, rate limiting will fail open")
	}
	return client
}

func serve(ctx context.Context, cfg *config.Config, casesPath string) error {
	repos, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if casesPath != "" {
		n, err := seedCases(ctx, repos, casesPath)
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{"cases": n, "path": casesPath}).Info("case content loaded")
	}

	services := service.NewServices(repos, sessionConfig(cfg))
	if services.Reaper != nil {
		go services.Reaper.Run(ctx)
	}

	routeOpts := api.RouteOptions{
		PublicURL:       cfg.Server.PublicURL,
		RateLimitMax:    cfg.RateLimit.Max,
		RateLimitWindow: cfg.RateLimit.Window,
	}
	if client := newRedisClient(ctx, cfg.Redis); client != nil {
		defer client.Close()
		routeOpts.Redis = client
	}

	// 設置 Gin 路由
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(logrus.StandardLogger()))
	api.SetupRoutes(r, services, utils.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL), routeOpts)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("address", cfg.Server.Address).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to run server: %w", err)
	case <-ctx.Done():
	}

	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

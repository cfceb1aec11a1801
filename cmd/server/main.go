package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-liveqa/internal/api"
	"github.com/npezzotti/go-liveqa/internal/cache"
	"github.com/npezzotti/go-liveqa/internal/config"
	"github.com/npezzotti/go-liveqa/internal/database"
	"github.com/npezzotti/go-liveqa/internal/qa"
	"github.com/npezzotti/go-liveqa/internal/ratelimit"
	"github.com/npezzotti/go-liveqa/internal/server"
	"github.com/npezzotti/go-liveqa/internal/stats"
	"go.uber.org/zap"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	redisAddr      string
	storeTimeout   time.Duration
	debug          bool
	allowedOrigins stringSliceFlag
)

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	config.LoadEnv()

	flag.StringVar(&addr, "addr", config.EnvString("LIVEQA_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", config.EnvString("LIVEQA_DSN", ""), "postgres connection string, empty for an in-memory store")
	flag.StringVar(&signingKey, "signing-key", config.EnvString("LIVEQA_SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.StringVar(&redisAddr, "redis-addr", config.EnvString("LIVEQA_REDIS_ADDR", ""), "redis address for the session cache, empty to disable")
	flag.DurationVar(&storeTimeout, "store-timeout", config.EnvDuration("LIVEQA_STORE_TIMEOUT", config.DefaultStoreTimeout), "timeout for each store operation")
	flag.BoolVar(&debug, "debug", config.EnvBool("LIVEQA_DEBUG", false), "enable debug logging")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		if v := config.EnvString("LIVEQA_ALLOWED_ORIGINS", ""); v != "" {
			allowedOrigins.Set(v)
		}
	}

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins,
		config.WithRedisAddr(redisAddr),
		config.WithStoreTimeout(storeTimeout),
		config.WithDebug(debug),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var repo database.QARepository
	if cfg.DatabaseDSN == "" {
		logger.Warn("no dsn configured, using in-memory store")
		repo = database.NewMemoryQARepository()
	} else {
		pg, err := database.NewPgQARepository(cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("db open", zap.Error(err))
		}
		defer func() {
			if err := pg.Close(); err != nil {
				logger.Error("db close", zap.Error(err))
			}
		}()

		if err := pg.Migrate(); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
		repo = pg
	}

	var sessionCache qa.SessionCache
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr)
		cancel()
		if err != nil {
			logger.Fatal("redis connect", zap.Error(err))
		}
		defer client.Close()
		sessionCache = cache.NewRedisSessionCache(client, cache.DefaultTTL, logger)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	svc := qa.NewService(repo, sessionCache, logger)
	qaServer, err := server.NewQAServer(logger, svc, ratelimit.NewLimiter(nil), statsUpdater, cfg.StoreTimeout)
	if err != nil {
		logger.Fatal("new qa server", zap.Error(err))
	}

	srv := api.NewQAApp(mux, logger, qaServer, svc, repo, statsUpdater, cfg)

	statsUpdater.Run()

	go qaServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", zap.Stringer("signal", sig))
	case err := <-errCh:
		logger.Error("server", zap.Error(err))
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Error("HTTP server shutdown", zap.Error(err))
	}

	logger.Info("shutting down qa server")
	if err := qaServer.Shutdown(shutDownCtx); err != nil {
		logger.Error("qa server shutdown", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

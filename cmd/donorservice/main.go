package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/lifelink/internal/donor/domain"
	"github.com/example/lifelink/internal/donor/handler"
	"github.com/example/lifelink/internal/donor/match"
	"github.com/example/lifelink/internal/donor/repository"
	donorservice "github.com/example/lifelink/internal/donor/service"
	"github.com/example/lifelink/internal/ingest"
	"github.com/example/lifelink/internal/notify"
	"github.com/example/lifelink/pkg/observability"
)

type appConfig struct {
	HTTPAddr          string
	GRPCAddr          string
	PostgresDSN       string
	RedisAddr         string
	NATSURL           string
	AlertSubject      string
	JWTSecret         string
	WaitingPeriodDays int
	NotifyTimeout     time.Duration
	NotifyConcurrency int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("donor-service")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "donor-service")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := loadConfig()

	var repo domain.Repository = repository.NewMemoryRepository()
	if cfg.PostgresDSN != "" {
		pool, err := repository.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("postgres connect", zap.Error(err))
		}
		defer pool.Close()
		repo = repository.NewPostgresRepository(pool)
	}

	var geo match.GeoIndex
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
		geo = match.NewRedisGeoIndex(redisClient, "")
	}

	var dispatcher domain.Dispatcher = notify.NewLogDispatcher(logger.Named("dispatch"))
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("donorservice")); err == nil {
			defer conn.Drain() //nolint:errcheck
			dispatcher = notify.NewNATSDispatcher(conn, cfg.AlertSubject)
		} else {
			logger.Warn("nats connection failed, alerts will only be logged", zap.Error(err))
		}
	}

	svc := donorservice.New(repo, dispatcher, geo, domain.SystemClock{}, logger.Named("service"), donorservice.Config{
		WaitingPeriodDays: cfg.WaitingPeriodDays,
		NotifyTimeout:     cfg.NotifyTimeout,
		NotifyConcurrency: cfg.NotifyConcurrency,
	})
	donorHTTP := handler.NewHTTP(svc, cfg.JWTSecret)

	r := chi.NewRouter()
	r.Mount("/", donorHTTP.Router())
	r.Mount("/observability", observability.MetricsRouter())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cfg.GRPCAddr != "" {
		go runIngest(logger, cfg.GRPCAddr, repo, geo)
	}

	go func() {
		logger.Info("donor service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func runIngest(logger *zap.Logger, addr string, repo domain.Repository, geo match.GeoIndex) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("listen grpc", zap.Error(err))
	}
	srv := grpc.NewServer(grpc.ForceServerCodec(ingest.Codec()))
	ingest.RegisterLocationServer(srv, ingest.NewServer(repo, geo, logger.Named("ingest")))
	logger.Info("location ingest listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil {
		logger.Fatal("grpc serve", zap.Error(err))
	}
}

func loadConfig() appConfig {
	return appConfig{
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:          os.Getenv("GRPC_ADDR"),
		PostgresDSN:       firstNonEmpty(os.Getenv("POSTGRES_DSN"), os.Getenv("DATABASE_URL")),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		NATSURL:           os.Getenv("NATS_URL"),
		AlertSubject:      getenv("ALERT_SUBJECT", "donor.alerts"),
		JWTSecret:         getenv("JWT_SECRET", "dev-secret"),
		WaitingPeriodDays: parseIntEnv("WAITING_PERIOD_DAYS", match.DefaultWaitingPeriodDays),
		NotifyTimeout:     time.Duration(parseIntEnv("NOTIFY_TIMEOUT_MS", 2000)) * time.Millisecond,
		NotifyConcurrency: parseIntEnv("NOTIFY_CONCURRENCY", 8),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

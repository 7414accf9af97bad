// Command authcored serves the authcore HTTP API, and optionally the gRPC
// auth interceptors, from AUTHCORE_* environment configuration.
package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	ac "github.com/panyam/authcore"
	authgrpc "github.com/panyam/authcore/grpc"
	"github.com/panyam/authcore/oauth2"
	"github.com/panyam/authcore/stores/redisstore"
)

func main() {
	cfg, err := ac.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	slog.SetDefault(newLogger(cfg, os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}

func run(ctx context.Context, cfg *ac.Config) error {
	logger := slog.Default()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	exchange := oauth2.NewExchange(store)
	exchange.Logger = logger
	exchange.DefaultLocale = cfg.DefaultLocale
	exchange.DefaultTemplate = cfg.DefaultTemplate
	exchange.Register("github", oauth2.NewGithubFetcher(cfg.GithubUserInfoURL))
	exchange.Register("google", oauth2.NewGoogleFetcher(cfg.GoogleUserInfoURL))

	server := ac.NewAuthServer(cfg, store, &ac.ConsoleEmailSender{Logger: logger}, exchange)
	server.Logger = logger
	server.Middleware.Logger = logger

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		server.Session.Store = redisstore.New(rdb)
		logger.Info("sessions stored in redis", "addr", cfg.RedisAddr)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		logger.Info("http listening", "addr", cfg.ListenAddr, "store", cfg.StoreBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		grpcServer = newGRPCServer(server.Middleware.Verifier)
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			logger.Info("grpc listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				errc <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	return httpServer.Shutdown(shutdownCtx)
}

// newGRPCServer returns a server whose every call except health checks
// requires a valid bearer token.
func newGRPCServer(verifier ac.TokenVerifier) *grpc.Server {
	cfg := authgrpc.NewPublicMethodsConfig(verifier,
		"/grpc.health.v1.Health/Check",
		"/grpc.health.v1.Health/Watch",
	)
	s := grpc.NewServer(
		grpc.UnaryInterceptor(authgrpc.UnaryAuthInterceptor(cfg)),
		grpc.StreamInterceptor(authgrpc.StreamAuthInterceptor(cfg)),
	)
	healthpb.RegisterHealthServer(s, health.NewServer())
	return s
}

func newLogger(cfg *ac.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"crisiscrew.org/internal/approval"
	"crisiscrew.org/internal/artifact"
	"crisiscrew.org/internal/auth"
	"crisiscrew.org/internal/config"
	"crisiscrew.org/internal/httpapi"
	"crisiscrew.org/internal/idempotency"
	"crisiscrew.org/internal/obs"
	"crisiscrew.org/internal/redline"
	"crisiscrew.org/internal/store/pg"
	"crisiscrew.org/internal/store/redisstore"
)

var (
	version = "0.1.0"
	commit  = ""
)

func main() {
	configPath := flag.String("config", "", "YAML config file (falls back to $"+config.EnvConfigPath+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	obs.SetLevel(cfg.Log.Level)
	obs.Init()
	obs.InitBuildInfo(version, commit)
	if cfg.Auth.Secret != "" {
		auth.Configure(cfg.Auth.Secret)
	}
	if !auth.Configured() {
		log.Fatal("auth secret missing: set auth.secret or CRISISCREW_AUTH_SECRET")
	}

	linter, err := buildLinter(cfg.Redline)
	if err != nil {
		log.Fatalf("redline: %v", err)
	}

	var (
		db  *pg.Store
		rdb redis.UniversalClient
	)
	if cfg.Postgres.DSN != "" {
		db, err = pg.Open(cfg.Postgres.DSN, pg.PoolConfig{
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
	}
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var artifacts artifact.Store = artifact.NewInMemory()
	probe := httpapi.ReadyProbe{Redis: rdb}
	if db != nil {
		artifacts = db.Artifacts()
		probe.DB = db.DB()
	}

	var approvals approval.Store
	switch cfg.ApprovalStore() {
	case config.StorePostgres:
		approvals = db.Approvals()
	case config.StoreRedis:
		approvals = redisstore.NewApprovalStore(rdb, cfg.Redis.KeyPrefix)
	default:
		approvals = approval.NewInMemory()
	}

	opts := []httpapi.Option{
		httpapi.WithRateLimit(cfg.HTTP.RateBurst, cfg.HTTP.RatePerSecond),
		httpapi.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
	}
	if cfg.Auth.IssueTokens {
		opts = append(opts, httpapi.WithTokenIssuer(cfg.Auth.TokenTTL))
	}
	if cfg.Approvals.ForbidSelfApproval {
		opts = append(opts, httpapi.WithSelfApprovalForbidden())
	}
	if rdb != nil {
		opts = append(opts, httpapi.WithIdempotency(idempotency.NewStore(rdb, cfg.Redis.KeyPrefix, cfg.Redis.IdempotencyTTL)))
	}

	api := httpapi.New(httpapi.Deps{
		Approvals: approval.NewService(approvals, artifacts),
		Artifacts: artifacts,
		Linter:    linter,
		Ready:     probe,
		Version:   version,
	}, opts...)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		grpcSrv *grpc.Server
		health  *httpapi.HealthServer
	)
	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpc.NewServer()
		health = httpapi.NewHealthServer(probe)
		health.Register(grpcSrv)
		go health.Run(ctx, 5*time.Second)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	obs.Info("gateway starting", map[string]any{
		"version":         version,
		"http_addr":       srv.Addr,
		"grpc_addr":       cfg.GRPC.Addr,
		"approvals_store": cfg.ApprovalStore(),
		"postgres":        db != nil,
		"redis":           rdb != nil,
		"terms":           linter.Table().Len(),
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	obs.Info("gateway shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if health != nil {
		health.Shutdown()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		obs.Warn("http shutdown", map[string]any{"error": err})
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	obs.Info("gateway stopped", nil)
}

func buildLinter(cfg config.RedlineConfig) (*redline.Linter, error) {
	if cfg.TermsFile == "" {
		return redline.New(), nil
	}
	table, err := redline.LoadTableFile(cfg.TermsFile)
	if err != nil {
		return nil, err
	}
	return redline.New(redline.WithTable(table)), nil
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"listkeeper/internal/archive"
	"listkeeper/internal/auth"
	"listkeeper/internal/config"
	"listkeeper/internal/draft"
	apphttp "listkeeper/internal/http"
	"listkeeper/internal/repository/sqlite"
	"listkeeper/internal/service"
	"listkeeper/internal/storage"
	"listkeeper/internal/workflow"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Fatalf("auth jwt secret is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock, err := sqlite.Lock(ctx, cfg.Database.Path, 0)
	if err != nil {
		logger.Fatalf("lock database: %v", err)
	}
	defer lock.Unlock()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlite.NewUserRepository(db)
	listRepo := sqlite.NewListRepository(db)

	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}
	if err := listRepo.Init(ctx); err != nil {
		logger.Fatalf("init list repository: %v", err)
	}

	var (
		snapshots archive.Manager
		queue     service.SnapshotQueue
	)
	if cfg.Snapshots.Bucket != "" {
		storageSvc, err := buildStorage(ctx, cfg, logger)
		if err != nil {
			logger.Fatalf("setup storage: %v", err)
		}

		snapshots, err = archive.NewManager(archive.Config{
			Bucket:        cfg.Snapshots.Bucket,
			KeyPrefix:     cfg.Snapshots.KeyPrefix,
			Format:        archive.Format(cfg.Snapshots.Format),
			MaxConcurrent: 2,
			Logger:        logger,
		}, storageSvc)
		if err != nil {
			logger.Fatalf("setup snapshot manager: %v", err)
		}
		// detached from the signal context: Shutdown below drains running uploads
		if err := snapshots.Start(context.Background()); err != nil {
			logger.Fatalf("start snapshot manager: %v", err)
		}
		queue = snapshots
	} else {
		logger.Info("snapshot bucket not configured, list archiving disabled")
	}

	listService := service.NewListService(listRepo, queue)
	userService := service.NewUserService(userRepo, cfg.Auth.RegisterPassword)
	machine := workflow.NewMachine(draft.NewStore(), listService, logger)
	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(userService, machine, tokens, snapshots, logger)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	if snapshots != nil {
		snapshots.Shutdown()
	}

	logger.Info("bye")
}

func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	svc, err := storage.Connect(ctx, storage.S3Config{
		Region:   cfg.Snapshots.Region,
		Endpoint: cfg.Snapshots.Endpoint,
		Profile:  cfg.AWS.Profile,
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("archiving list snapshots to s3 bucket %s (region %s)", cfg.Snapshots.Bucket, cfg.Snapshots.Region)
	return svc, nil
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"listkeeper/internal/archive"
	"listkeeper/internal/config"
	"listkeeper/internal/repository/sqlite"
	"listkeeper/internal/service"
	"listkeeper/internal/storage"
)

const drainTimeout = 30 * time.Second

type options struct {
	dbPath  string
	wait    time.Duration
	verbose bool
}

// env is an opened database along with the services the commands run against.
type env struct {
	db        *sql.DB
	lock      *flock.Flock
	users     service.UserService
	lists     service.ListService
	snapshots archive.Manager
	logger    *logrus.Logger
}

func (e *env) Close() {
	if e.snapshots != nil {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if err := e.snapshots.Drain(ctx); err != nil {
			e.logger.Warnf("snapshot jobs still running at exit: %v", err)
		}
		cancel()
		e.snapshots.Shutdown()
	}
	_ = e.db.Close()
	_ = e.lock.Unlock()
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "listctl",
		Short:         "Listkeeper admin tool",
		Long:          "Administer a listkeeper database: create the schema, manage accounts and inspect saved lists.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.dbPath, "db", "d", "", "path to the database file (defaults to the configured path)")
	rootCmd.PersistentFlags().DurationVar(&opts.wait, "wait", 5*time.Second, "how long to wait for the database lock")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "show debug logging")

	rootCmd.AddCommand(newInitDBCmd(opts))
	rootCmd.AddCommand(newUserCmd(opts))
	rootCmd.AddCommand(newListsCmd(opts))
	return rootCmd
}

// openEnv locks and opens the database, creating the schema if it is missing.
func openEnv(ctx context.Context, opts *options, stderr io.Writer) (*env, error) {
	logger := logrus.New()
	logger.SetOutput(stderr)
	if opts.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	path := opts.dbPath
	if path == "" {
		path = cfg.Database.Path
	}
	logger.Debugf("using database %s", path)

	lock, err := sqlite.Lock(ctx, path, opts.wait)
	if err != nil {
		if errors.Is(err, sqlite.ErrLocked) {
			return nil, fmt.Errorf("%w: stop the server before running admin commands", err)
		}
		return nil, err
	}

	db, err := sqlite.Open(path)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	userRepo := sqlite.NewUserRepository(db)
	listRepo := sqlite.NewListRepository(db)
	if err := userRepo.Init(ctx); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("init user repository: %w", err)
	}
	if err := listRepo.Init(ctx); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("init list repository: %w", err)
	}

	e := &env{
		db:     db,
		lock:   lock,
		logger: logger,
	}
	var queue service.SnapshotQueue
	if cfg.Snapshots.Bucket != "" {
		if e.snapshots, err = openSnapshots(ctx, cfg, logger); err != nil {
			e.Close()
			return nil, err
		}
		queue = e.snapshots
	}

	// admin-created accounts skip the registration secret
	e.users = service.NewUserService(userRepo, "")
	e.lists = service.NewListService(listRepo, queue)
	return e, nil
}

// openSnapshots starts an archive manager so removed lists take their snapshots with them.
func openSnapshots(ctx context.Context, cfg config.Config, logger *logrus.Logger) (archive.Manager, error) {
	store, err := storage.Connect(ctx, storage.S3Config{
		Region:   cfg.Snapshots.Region,
		Endpoint: cfg.Snapshots.Endpoint,
		Profile:  cfg.AWS.Profile,
	})
	if err != nil {
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	m, err := archive.NewManager(archive.Config{
		Bucket:        cfg.Snapshots.Bucket,
		KeyPrefix:     cfg.Snapshots.KeyPrefix,
		Format:        archive.Format(cfg.Snapshots.Format),
		MaxConcurrent: 1,
		Logger:        logger,
	}, store)
	if err != nil {
		return nil, fmt.Errorf("setup snapshot manager: %w", err)
	}
	if err := m.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("start snapshot manager: %w", err)
	}
	logger.Debugf("snapshots of removed lists are discarded from bucket %s", cfg.Snapshots.Bucket)
	return m, nil
}

func execute(args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.Execute()
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

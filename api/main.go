package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/jimiolaniyan/accounts"
	"github.com/jimiolaniyan/accounts/asset"
	"github.com/jimiolaniyan/accounts/auth"
	"github.com/jimiolaniyan/accounts/config"
	"github.com/jimiolaniyan/accounts/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:          "accountsd",
		Short:        "Account directory service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to the TOML config file (default $CONFIG_PATH or config.toml)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := provideConfig(cfgPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the schema or indexes of the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := provideConfig(cfgPath)
			if err != nil {
				return err
			}
			return migrate(cmd.Context(), cfg)
		},
	})

	return root
}

func provideConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	assets, uploadsDir, err := provideAssets(ctx, cfg)
	if err != nil {
		return err
	}

	dir := accounts.NewDirectory(repo, auth.NewBcryptHasher(cfg.Auth.HashCost), logger.L)
	router := accounts.NewRouter(dir, assets, accounts.HandlerOptions{
		RequireProfilePic: cfg.Auth.RequireProfilePic,
		MaxUploadBytes:    cfg.Server.MaxUploadBytes,
		UploadsDir:        uploadsDir,
		UploadsPrefix:     cfg.Assets.PublicPrefix,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           logger.Middleware(logger.L, router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.L.Info("server started", slog.String("addr", srv.Addr), slog.String("store", cfg.Store.Driver), slog.String("assets", cfg.Assets.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.L.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func migrate(ctx context.Context, cfg config.Config) error {
	_, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	closeStore()
	logger.L.Info("store is up to date", slog.String("store", cfg.Store.Driver))
	return nil
}

// openStore connects the configured account repository, migrating the
// postgres schema or creating the mongo indexes on the way.
func openStore(ctx context.Context, cfg config.Config) (accounts.Repository, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreMongo:
		cctx, cancel := context.WithTimeout(ctx, cfg.Mongo.Timeout())
		defer cancel()

		client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.L.Warn("disconnect mongo", slog.Any("error", err))
			}
		}
		if err := client.Ping(cctx, nil); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("ping mongo: %w", err)
		}

		c := client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)
		if err := accounts.EnsureIndexes(cctx, c); err != nil {
			closeFn()
			return nil, nil, err
		}
		return accounts.NewMongoAccountRepository(c), closeFn, nil

	case config.StorePostgres:
		db, err := sql.Open("pgx", cfg.Postgres.ConnString())
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		closeFn := func() {
			if err := db.Close(); err != nil {
				logger.L.Warn("close postgres", slog.Any("error", err))
			}
		}
		if err := db.PingContext(ctx); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := accounts.RunMigrations(ctx, db); err != nil {
			closeFn()
			return nil, nil, err
		}
		return accounts.NewPostgresAccountRepository(db), closeFn, nil

	default:
		logger.L.Warn("using the in-memory store; accounts are lost on restart")
		return accounts.NewAccountRepository(), func() {}, nil
	}
}

// provideAssets builds the picture store. For the disk driver it also
// returns the directory the router serves uploads from.
func provideAssets(ctx context.Context, cfg config.Config) (*asset.Service, string, error) {
	var (
		provider   asset.Provider
		uploadsDir string
	)

	switch cfg.Assets.Driver {
	case config.AssetsS3:
		p, err := asset.NewS3Provider(ctx, asset.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicBaseURL:   cfg.S3.PublicBaseURL,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, "", err
		}
		provider = p
	default:
		p, err := asset.NewDiskProvider(cfg.Assets.Root, cfg.Assets.PublicPrefix)
		if err != nil {
			return nil, "", err
		}
		provider, uploadsDir = p, p.Root()
	}

	svc := asset.NewService(logger.L, provider, asset.Options{
		MaxBytes:          cfg.Assets.MaxBytes,
		AllowedExtensions: cfg.Assets.AllowedExtensions,
		Namer:             asset.NamerFor(cfg.Assets.Naming),
	})
	return svc, uploadsDir, nil
}

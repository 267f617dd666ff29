package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/fabnest-api/internal/repository"
	"github.com/noah-isme/fabnest-api/internal/service"
	"github.com/noah-isme/fabnest-api/pkg/config"
	"github.com/noah-isme/fabnest-api/pkg/database"
	"github.com/noah-isme/fabnest-api/pkg/logger"
	"github.com/noah-isme/fabnest-api/pkg/storage"
)

type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "storefrontctl",
		Short:         "Operator tasks for the FABNEST storefront API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}
	root.AddCommand(newMigrateCmd(a), newCreateAdminCmd(a), newSweepCmd(a))
	return root
}

func (a *app) init(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.cfg, a.logger, a.db = cfg, logr, db
	return nil
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			migrator := database.NewMigrator(a.db, a.logger)
			if dryRun {
				pending, err := migrator.Pending(cmd.Context())
				if err != nil {
					return err
				}
				for _, name := range pending {
					cmd.Println("pending:", name)
				}
				return nil
			}
			applied, err := migrator.Up(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("applied %d migration(s)\n", len(applied))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
	return cmd
}

func newCreateAdminCmd(a *app) *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account or promote an existing user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			users := repository.NewUserRepository(a.db)
			svc := service.NewUserService(users, repository.NewCustomFileRepository(a.db), repository.NewQuoteRepository(a.db), nil, a.db, users, validator.New(), a.logger)
			user, err := svc.EnsureAdmin(cmd.Context(), email, password, name)
			if err != nil {
				return err
			}
			cmd.Printf("admin ready: %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password (defaults to $ADMIN_PASSWORD)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newSweepCmd(a *app) *cobra.Command {
	var olderThan time.Duration
	var limit int
	cmd := &cobra.Command{
		Use:   "sweep-orphans",
		Short: "Delete uploaded files that no record references",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := storage.Open(cmd.Context(), a.cfg.Storage)
			if err != nil {
				return err
			}
			files := service.NewFileService(repository.NewFileRepository(a.db), store, a.db, nil, a.logger, service.FileServiceConfig{
				MaxUploadBytes:  a.cfg.Storage.MaxUploadBytes,
				PublicURLPrefix: a.cfg.Storage.PublicURLPrefix,
			})
			removed, err := files.SweepOrphans(cmd.Context(), olderThan, limit)
			if err != nil {
				return err
			}
			cmd.Printf("removed %d orphaned file(s)\n", removed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "only sweep files uploaded before this age")
	cmd.Flags().IntVar(&limit, "limit", 500, "maximum files to inspect")
	return cmd
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aora/backend/internal/config"
	"github.com/aora/backend/internal/db"
	"github.com/aora/backend/internal/handlers"
	"github.com/aora/backend/internal/httpserver"
	"github.com/aora/backend/internal/logging"
	"github.com/aora/backend/internal/middleware"
	"github.com/aora/backend/internal/repositories"
)

// Run bootstraps the aora backend gateway.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, or orphans")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:], os.Stdout)
	case "orphans":
		return runOrphans(ctx, args[1:], os.Stdout)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	router := chi.NewRouter()
	router.Use(middleware.RequestLogger(logger), middleware.Metrics(deps.collector))
	handlers.RegisterRoutes(router, deps.handlers)

	// uploads are relayed to the remote inside the request
	srv := httpserver.New(cfg.AppPort, router, cfg.Uploads.RemoteTimeout+time.Minute)

	logger.Info("starting http server",
		"port", cfg.AppPort,
		"endpoint", cfg.Appwrite.Endpoint,
		"project", cfg.Appwrite.ProjectID,
		"journal", cfg.DatabaseURL != "",
	)

	return httpserver.Serve(ctx, srv, cfg.ShutdownTimeout, logger)
}

func runMigrations(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("migrate requires AORA_DATABASE_URL")
	}

	command := "up"
	if len(args) > 0 {
		command = args[0]
	}

	logger := logging.New(cfg.LogLevel, os.Stderr)
	version, err := db.Migrate(ctx, cfg.DatabaseURL, command, logger)
	if err != nil {
		return err
	}

	if version.Dirty {
		fmt.Fprintf(out, "schema version %d (dirty)\n", version.Version)
	} else {
		fmt.Fprintf(out, "schema version %d\n", version.Version)
	}
	return nil
}

func runOrphans(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("expected orphans subcommand: list or resolve")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("orphans requires AORA_DATABASE_URL")
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	return orphansCommand(ctx, repositories.NewPostgresOrphanJournal(pool), args, out)
}

func orphansCommand(ctx context.Context, journal repositories.OrphanJournal, args []string, out io.Writer) error {
	switch args[0] {
	case "list":
		limit := 100
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid limit %q", args[1])
			}
			limit = n
		}

		orphans, err := journal.ListUnresolved(ctx, limit)
		if err != nil {
			return err
		}
		if len(orphans) == 0 {
			fmt.Fprintln(out, "no unresolved orphaned accounts")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tACCOUNT\tEMAIL\tSTAGE\tCREATED\tREASON")
		for _, o := range orphans {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", o.ID, o.AccountID, o.Email, o.Stage, o.CreatedAt.Format(time.RFC3339), o.Reason)
		}
		return tw.Flush()
	case "resolve":
		if len(args) < 2 {
			return errors.New("expected orphan id to resolve")
		}
		if err := journal.Resolve(ctx, args[1]); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return fmt.Errorf("orphan %s not found or already resolved", args[1])
			}
			return err
		}
		fmt.Fprintf(out, "resolved %s\n", args[1])
		return nil
	default:
		return fmt.Errorf("unknown orphans subcommand %q", args[0])
	}
}

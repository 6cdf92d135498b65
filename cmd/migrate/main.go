package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = "COMMERCE_POSTGRES_DSN"
)

var errDSNRequired = errors.New(envPostgresDSN + " (or -dsn) is required")

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdout); err != nil {
		cancel()
		fail("%v", err)
	}
}

// run разбирает флаги и выполняет одну команду мигратора.
func run(ctx context.Context, args []string, getenv func(string) string, out io.Writer) error {
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	var (
		direction string
		steps     int
		dsn       string
	)
	flags.StringVar(&direction, "direction", "up", "migration direction: up|down|status")
	flags.IntVar(&steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	flags.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	direction = strings.ToLower(strings.TrimSpace(direction))
	switch direction {
	case "up", "down", "status":
	default:
		return fmt.Errorf("unsupported direction: %s (use up|down|status)", direction)
	}

	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(getenv(envPostgresDSN))
	}
	if dsn == "" {
		return errDSNRequired
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	logger := log.WithFields(log.Fields{"component": "migrate", "direction": direction})

	switch direction {
	case "up":
		if err := store.MigrateUp(ctx, steps); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if steps <= 0 {
			steps = 1
		}
		if err := store.MigrateDown(ctx, steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	}

	version, count, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	logger.WithFields(log.Fields{"version": version, "applied": count}).Info("migrations done")

	if direction == "status" {
		migrations, err := store.Migrations(ctx)
		if err != nil {
			return fmt.Errorf("list migrations: %w", err)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
		for _, m := range migrations {
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%t\n", m.Version, m.Name, m.Applied)
		}
		return tw.Flush()
	}
	_, err = fmt.Fprintf(out, "migrate %s ok: version=%d applied=%d\n", direction, version, count)
	return err
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

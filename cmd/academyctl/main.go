// Command academyctl runs schema migrations and publishes course catalogs
// against the database configured for the server.
//
// Usage:
//
//	academyctl migrate
//	academyctl rollback
//	academyctl status
//	academyctl publish -file course.json
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alem-hub/alem-academy/config"
	"github.com/alem-hub/alem-academy/internal/infrastructure/persistence/postgres"
)

const usage = `usage: academyctl <command> [flags]

commands:
  migrate              apply pending schema migrations
  rollback             roll back the last applied migration
  status               list migrations and when they were applied
  publish -file PATH   publish a course and its items from a JSON file
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "academyctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string) error {
	var file string
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	if command == "publish" {
		fs.StringVar(&file, "file", "", "path to the course JSON file")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch command {
	case "migrate", "rollback", "status":
	case "publish":
		if file == "" {
			return errors.New("publish: -file is required")
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = 2
	pgCfg.MinConns = 1

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	conn, err := postgres.NewConnection(connectCtx, pgCfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	migrator := postgres.NewMigrator(conn)

	switch command {
	case "migrate":
		if err := migrator.Migrate(ctx); err != nil {
			return err
		}
		return printStatus(ctx, migrator)
	case "rollback":
		if err := migrator.Rollback(ctx); err != nil {
			return err
		}
		return printStatus(ctx, migrator)
	case "status":
		return printStatus(ctx, migrator)
	default:
		return publishFile(ctx, postgres.NewStore(conn).Courses(), file)
	}
}

func printStatus(ctx context.Context, m *postgres.Migrator) error {
	migrations, err := m.Status(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
	for _, mig := range migrations {
		applied := "pending"
		if mig.IsApplied {
			applied = mig.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%03d\t%s\t%s\n", mig.Version, mig.Name, applied)
	}
	return w.Flush()
}

func publishFile(ctx context.Context, authoring catalogWriter, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	catalog, err := readCatalog(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	published, err := catalog.publish(ctx, authoring)
	if err != nil {
		return err
	}
	fmt.Printf("course %s %q: %d new items\n", catalog.Course.ID, catalog.Course.Title, published)
	return nil
}

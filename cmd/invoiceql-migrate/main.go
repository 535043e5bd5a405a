package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/flowbit/invoiceql/internal/config"
	"github.com/flowbit/invoiceql/internal/database"
	"github.com/flowbit/invoiceql/internal/migrations"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up|down|status|check")
	steps := flag.Int("steps", 0, "number of migration steps; 0 means all for up, 1 for down")
	flag.Parse()

	cfg, err := config.LoadFromEnv("invoiceql-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.DSN == "" {
		fmt.Fprintln(os.Stderr, "INVOICEQL_DATABASE_DSN is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Open(ctx, database.DBConfig{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		fmt.Fprintf(os.Stderr, "database error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	runner := migrations.NewRunner()
	switch *direction {
	case "up":
		applied, err := runner.Up(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied %d migration(s)\n", applied)
	case "down":
		applied, err := runner.Down(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("rolled back %d migration(s)\n", applied)
	case "status":
		statuses, err := runner.Status(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration status failed: %v\n", err)
			os.Exit(1)
		}
		for _, status := range statuses {
			state := "pending"
			if status.Applied {
				state = "applied"
			}
			fmt.Printf("%06d %-20s %-8s %s\n", status.Version, status.Name, state, strings.Join(status.Tables, ","))
		}
		if err := printTables(ctx, runner, db); err != nil {
			fmt.Fprintf(os.Stderr, "table status failed: %v\n", err)
			os.Exit(1)
		}
	case "check":
		tables, err := runner.Tables(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "table check failed: %v\n", err)
			os.Exit(1)
		}
		if missing := migrations.MissingTables(tables); len(missing) > 0 {
			fmt.Fprintf(os.Stderr, "invoicing schema incomplete, missing: %s\n", strings.Join(missing, ", "))
			os.Exit(1)
		}
		fmt.Println("invoicing schema complete")
	default:
		fmt.Fprintf(os.Stderr, "invalid direction: %s\n", *direction)
		os.Exit(1)
	}
}

func printTables(ctx context.Context, runner *migrations.Runner, db *sql.DB) error {
	tables, err := runner.Tables(ctx, db)
	if err != nil {
		return err
	}
	for _, table := range tables {
		state := "missing"
		if table.Present {
			state = "present"
		}
		fmt.Printf("table %-12s %-8s created by %06d\n", table.Name, state, table.Version)
	}
	return nil
}

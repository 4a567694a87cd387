package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"hntldr/internal/storage"
	"hntldr/migrations"
)

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/hntldr.db"), "path to sqlite database")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: migrate [-db path] <command>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  up          Migrate to the latest version")
		fmt.Fprintln(os.Stderr, "  up-one      Migrate one version up")
		fmt.Fprintln(os.Stderr, "  down        Roll back one version")
		fmt.Fprintln(os.Stderr, "  status      Show migration status")
		fmt.Fprintln(os.Stderr, "  version     Show current version")
		fmt.Fprintln(os.Stderr, "  reset       Roll back all migrations")
		fmt.Fprintln(os.Stderr, "  prune DAYS  Delete post records first posted more than DAYS days ago")
		os.Exit(1)
	}

	cmd := args[0]
	if cmd == "prune" {
		prune(*dbPath, args[1:])
		return
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Setup(); err != nil {
		log.Fatal(err)
	}

	switch cmd {
	case "up":
		err = goose.Up(db, ".")
	case "up-one":
		err = goose.UpByOne(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	case "version":
		err = goose.Version(db, ".")
	case "reset":
		err = goose.Reset(db, ".")
	default:
		log.Fatalf("unknown command: %s", cmd)
	}

	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

// prune opens the store, which also applies pending migrations.
func prune(dbPath string, args []string) {
	if len(args) != 1 {
		log.Fatal("usage: migrate prune DAYS")
	}
	days, err := strconv.Atoi(args[0])
	if err != nil || days < 1 {
		log.Fatalf("prune: DAYS must be a positive integer, got %q", args[0])
	}

	store, err := storage.NewSQLite(dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = store.Close() }()

	cutoff := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	n, err := store.Prune(context.Background(), cutoff)
	if err != nil {
		log.Fatalf("prune: %v", err)
	}
	fmt.Printf("pruned %d records posted before %s\n", n, cutoff.Format(time.RFC3339))
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "modernc.org/sqlite"

	"contxtra_bot/migrations"
)

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/contxtra.db"), "path to sqlite database")
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
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	p, err := migrations.NewProvider(db)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx := context.Background()
	cmd := args[0]
	switch cmd {
	case "up":
		_, err = p.Up(ctx)
	case "up-one":
		_, err = p.UpByOne(ctx)
	case "down":
		_, err = p.Down(ctx)
	case "status":
		statuses, serr := p.Status(ctx)
		err = serr
		for _, s := range statuses {
			fmt.Printf("%05d  %-10s  %s\n", s.Source.Version, s.State, s.Source.Path)
		}
	case "version":
		v, verr := p.GetDBVersion(ctx)
		err = verr
		if verr == nil {
			fmt.Println(v)
		}
	case "reset":
		_, err = p.DownTo(ctx, 0)
	default:
		log.Fatalf("unknown command: %s", cmd)
	}

	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

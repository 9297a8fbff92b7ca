package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"boongle/internal/infra"
	"boongle/internal/migrate"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("DATABASE_URL"), "PostgreSQL DSN")
	flag.Parse()

	logger := infra.NewLogger("cli").With().Str("cmd", "migrate").Logger()
	if strings.TrimSpace(*dsn) == "" {
		logger.Fatal().Msg("missing DSN: provide via -dsn or DATABASE_URL")
	}
	if flag.NArg() == 0 {
		logger.Fatal().Msg("usage: migrate [up|down|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("postgres", *dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	mgr := migrate.NewManager(db, migrate.WithLogger(logger))

	switch flag.Arg(0) {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		if err == nil && len(applied) == 0 {
			fmt.Println("schema is up to date")
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if err == nil {
			fmt.Printf("rolled back %s\n", name)
		}
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		for _, item := range history {
			fmt.Println(item)
		}
	default:
		logger.Fatal().Str("command", flag.Arg(0)).Msg("unknown command")
	}
	if err != nil {
		logger.Fatal().Err(err).Str("command", flag.Arg(0)).Msg("migrate failed")
	}
}

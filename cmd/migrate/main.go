package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"crisiscrew.org/internal/config"
	"crisiscrew.org/internal/migrate"
	"crisiscrew.org/internal/store/pg"
	"crisiscrew.org/ops/migrations"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("CRISISCREW_PG_DSN"), "PostgreSQL DSN")
		configPath     = flag.String("config", "", "YAML config file (falls back to $"+config.EnvConfigPath+")")
		migrationsPath = flag.String("migrations", "", "Directory of SQL migrations (default: embedded)")
		seedsPath      = flag.String("seeds", "", "Directory of SQL seeds (default: embedded)")
		timeout        = flag.Duration("timeout", 30*time.Second, "Overall timeout")
	)
	flag.Parse()

	if *dsn == "" {
		cfg, err := config.Load(*configPath)
		if err == nil {
			*dsn = cfg.Postgres.DSN
		}
	}
	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn, CRISISCREW_PG_DSN or postgres.dsn")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	st, err := pg.Open(*dsn, pg.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer st.Close()

	mgr := migrate.NewManager(st.DB(), source(*migrationsPath, migrations.SQL()), source(*seedsPath, migrations.Seeds()))

	switch flag.Arg(0) {
	case "up":
		var ran []string
		ran, err = mgr.Up(ctx)
		printAll("applied", ran)
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if err == nil {
			fmt.Println("rolled back", name)
		}
	case "seed":
		var ran []string
		ran, err = mgr.Seed(ctx)
		printAll("seeded", ran)
	case "status":
		var applied, pending []string
		applied, pending, err = mgr.Status(ctx)
		printAll("applied", applied)
		printAll("pending", pending)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

func source(dir string, embedded fs.FS) fs.FS {
	if dir == "" {
		return embedded
	}
	return os.DirFS(dir)
}

func printAll(label string, names []string) {
	for _, name := range names {
		fmt.Println(label, name)
	}
}

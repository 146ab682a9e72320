package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/atelier-backend/pkg/config"
	"github.com/angelmondragon/atelier-backend/pkg/db"
	"github.com/angelmondragon/atelier-backend/pkg/logger"
	"github.com/angelmondragon/atelier-backend/pkg/migrate"
)

func main() {
	cmd := flag.String("cmd", "up", "up|down|status|to|create|validate")
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	name := flag.String("name", "", "migration name for -cmd=create")
	target := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=to")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})

	// create and validate work on files only
	switch *cmd {
	case "create":
		out := *dir
		if out == "" {
			out = migrate.DefaultDir
		}
		path, err := migrate.Create(out, *name, time.Now())
		exitOn(logg, "create migration", err)
		fmt.Println(path)
		return
	case "validate":
		exitOn(logg, "validate migrations", migrate.Validate(migrate.Source(*dir)))
		fmt.Println("migrations valid")
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	exitOn(logg, "load config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg, nil)
	exitOn(logg, "connect database", err)
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	exitOn(logg, "sql handle", err)

	m, err := migrate.New(sqlDB, migrate.Source(*dir))
	exitOn(logg, "init migrator", err)
	defer m.Close()

	switch *cmd {
	case "up":
		applied, err := m.Up(ctx)
		exitOn(logg, "migrate up", err)
		logg.Info(logg.WithField(ctx, "applied", applied), "migrations applied")
	case "down":
		exitOn(logg, "migrate down", m.Down(ctx))
		logg.Info(ctx, "rolled back one migration")
	case "to":
		if *target == "" {
			exitOn(logg, "migrate to", fmt.Errorf("-version is required"))
		}
		exitOn(logg, "migrate to", m.To(ctx, *target))
		logg.Info(logg.WithField(ctx, "version", *target), "schema at version")
	case "status":
		statuses, err := m.Status(ctx)
		exitOn(logg, "migration status", err)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tFILE")
		for _, st := range statuses {
			applied := "-"
			if !st.AppliedAt.IsZero() {
				applied = st.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", st.Source.Version, st.State, applied, st.Source.Path)
		}
		w.Flush()
	default:
		exitOn(logg, "parse flags", fmt.Errorf("unknown -cmd %q", *cmd))
	}
}

func exitOn(logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), step+" failed", err)
	os.Exit(1)
}

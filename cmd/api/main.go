package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/atelier-backend/api/controllers"
	"github.com/angelmondragon/atelier-backend/api/routes"
	"github.com/angelmondragon/atelier-backend/internal/counters"
	"github.com/angelmondragon/atelier-backend/internal/gate"
	"github.com/angelmondragon/atelier-backend/internal/graph"
	"github.com/angelmondragon/atelier-backend/internal/media"
	"github.com/angelmondragon/atelier-backend/internal/messages"
	"github.com/angelmondragon/atelier-backend/internal/moderation"
	"github.com/angelmondragon/atelier-backend/internal/posts"
	"github.com/angelmondragon/atelier-backend/internal/users"
	"github.com/angelmondragon/atelier-backend/pkg/config"
	"github.com/angelmondragon/atelier-backend/pkg/db"
	"github.com/angelmondragon/atelier-backend/pkg/logger"
	"github.com/angelmondragon/atelier-backend/pkg/metrics"
	"github.com/angelmondragon/atelier-backend/pkg/migrate"
	"github.com/angelmondragon/atelier-backend/pkg/outbox"
	"github.com/angelmondragon/atelier-backend/pkg/redis"
	"github.com/angelmondragon/atelier-backend/pkg/storage/gcs"
	"github.com/angelmondragon/atelier-backend/pkg/tracing"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, "atelier-api")
	if err != nil {
		logg.Error(ctx, "failed to set up tracing", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logg.Error(context.Background(), "error flushing traces", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	socialMetrics := metrics.NewSocialMetrics(registry)

	dbClient, err := db.New(ctx, cfg.DB, logg, socialMetrics)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap gcs", err)
		os.Exit(1)
	}
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing gcs", err)
		}
	}()

	deps, err := buildServices(cfg, logg, dbClient, gcsClient, socialMetrics)
	if err != nil {
		logg.Error(ctx, "failed to wire services", err)
		os.Exit(1)
	}
	deps.Config = cfg
	deps.Logger = logg
	deps.Redis = redisClient
	deps.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	deps.Ready = map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
		"gcs":   gcsClient,
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "graceful shutdown failed", err)
		}
	}
}

// buildServices wires the domain services over one database client. Every
// service shares the same gate so denials are recorded once.
func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, signer media.Signer, socialMetrics *metrics.SocialMetrics) (routes.Deps, error) {
	conn := dbClient.DB()
	userRepo := users.NewRepository(conn)
	graphRepo := graph.NewRepository(conn)
	postRepo := posts.NewRepository(conn)
	mediaRepo := media.NewRepository(conn)

	g, err := gate.New(gate.Params{
		Identities: userRepo,
		Relations:  graphRepo,
		Denials:    socialMetrics,
		Logger:     logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}
	maintainer := counters.New(socialMetrics, logg)
	emitter := outbox.NewWriter(outbox.NewRepository(conn), logg)

	userSvc, err := users.NewService(users.ServiceParams{
		Repo:   userRepo,
		Tx:     dbClient,
		Outbox: emitter,
		Blocks: graphRepo,
		Logger: logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	graphSvc, err := graph.NewService(graph.ServiceParams{
		Repo:       graphRepo,
		Identities: userRepo,
		Gate:       g,
		Counters:   maintainer,
		Tx:         dbClient,
		Outbox:     emitter,
		Logger:     logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	postSvc, err := posts.NewService(posts.ServiceParams{
		Repo:       postRepo,
		Identities: userRepo,
		Gate:       g,
		Counters:   maintainer,
		Media:      mediaRepo,
		Tx:         dbClient,
		Outbox:     emitter,
		Logger:     logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	messageSvc, err := messages.NewService(messages.NewRepository(conn), g, dbClient)
	if err != nil {
		return routes.Deps{}, err
	}

	mediaSvc, err := media.NewService(media.ServiceParams{
		Repo:        mediaRepo,
		Posts:       postRepo,
		Gate:        g,
		Signer:      signer,
		Tx:          dbClient,
		UploadTTL:   cfg.GCS.UploadURLExpiry,
		DownloadTTL: cfg.GCS.DownloadURLExpiry,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	moderationSvc, err := moderation.NewService(moderation.ServiceParams{
		Repo:       moderation.NewRepository(conn),
		Identities: userRepo,
		Gate:       g,
		Content:    postRepo,
		Takedowns:  postSvc,
		Graph:      graphSvc,
		Tx:         dbClient,
		Outbox:     emitter,
		Logger:     logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	return routes.Deps{
		Users:      userSvc,
		Graph:      graphSvc,
		Posts:      postSvc,
		Messages:   messageSvc,
		Media:      mediaSvc,
		Moderation: moderationSvc,
	}, nil
}

// Command server boots the dicehall multiplayer backend: it loads
// config, wires every engine (store, tokens, filters, conduct,
// lifecycle, turn timeout, registry, admin, realtime bus), mounts the
// HTTP/WS surface on gin, and shuts everything down in order on
// SIGINT/SIGTERM. Grounded on the teacher's cmd/server/main.go wiring
// shape: one flat func main building collaborators bottom-up, then a
// signal-driven graceful shutdown, generalized from a single sqlite
// handle + hub-with-panic-restart to the full engine set this spec
// requires.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"dicehall/backend/internal/admin"
	"dicehall/backend/internal/authtoken"
	"dicehall/backend/internal/conduct"
	"dicehall/backend/internal/config"
	"dicehall/backend/internal/filters"
	"dicehall/backend/internal/httpapi"
	"dicehall/backend/internal/lifecycle"
	"dicehall/backend/internal/middleware"
	"dicehall/backend/internal/obslog"
	"dicehall/backend/internal/realtime"
	"dicehall/backend/internal/registry"
	"dicehall/backend/internal/store"
	"dicehall/backend/internal/tracing"
	"dicehall/backend/internal/turntimeout"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := obslog.New(cfg.AppEnv)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:  "dicehall-backend",
		Environment:  cfg.AppEnv,
		TracesExport: cfg.OTELTracesExporter,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			sugar.Warnw("tracer shutdown failed", "error", err)
		}
	}()

	adapter, err := buildAdapter(cfg, logger)
	if err != nil {
		return fmt.Errorf("build store adapter: %w", err)
	}

	storeCtl := store.NewController(adapter, logger, cfg.RehydrateCooldown)
	if err := storeCtl.Start(ctx); err != nil {
		return fmt.Errorf("start store controller: %w", err)
	}
	defer storeCtl.Stop()

	tokens := authtoken.New(storeCtl, cfg.TokenTTLAccess, cfg.TokenTTLRefresh)

	conductEngine := conduct.New(cfg.ChatBannedTerms, conduct.DefaultStrikeLimit, conduct.DefaultMuteDuration)
	// Terms added through the admin surface are stored as "term:<term>"
	// moderation records; load them on top of the configured set.
	storedSnap := storeCtl.Snapshot()
	for _, id := range storedSnap.IDs(store.SectionModeration) {
		if !strings.HasPrefix(id, "term:") {
			continue
		}
		var rec store.BannedTermRecord
		if ok, _ := storedSnap.Get(store.SectionModeration, id, &rec); ok && rec.Term != "" {
			conductEngine.AddTerm(rec.Term)
		}
	}
	filterRegistry := filters.NewRegistry()
	if cfg.ChatConductEnabled {
		filterRegistry.Register(conductEngine.PreflightFilter())
		filterRegistry.Register(conductEngine.InboundFilter())
	}

	lifecycleEngine := lifecycle.New(cfg.NextGameDelay, cfg.PostGameInactivityTimeout)
	timeoutEngine, err := turntimeout.New(lifecycleEngine, turntimeout.DefaultStandStrikeLimit)
	if err != nil {
		return fmt.Errorf("build turn timeout engine: %w", err)
	}

	reg := registry.New(registry.Config{
		DefaultMaxHumanCount:       4,
		SessionIdleTTL:             cfg.SessionIdleTTL,
		PublicRoomOverflowEmptyTTL: cfg.PublicRoomOverflowEmptyTTL,
		PublicRoomStaleParticipant: cfg.PublicRoomStaleParticipant,
		TurnTimeoutMs:              int64(cfg.TurnTimeoutMs / time.Millisecond),
		TurnTimeoutEasyMs:          int64(cfg.TurnTimeoutEasyMs / time.Millisecond),
		TurnTimeoutNormalMs:        int64(cfg.TurnTimeoutNormalMs / time.Millisecond),
		TurnTimeoutHardMs:          int64(cfg.TurnTimeoutHardMs / time.Millisecond),
	}, storeCtl, tokens, lifecycleEngine, logger)
	reg.SeedDefaultRooms(time.Now())

	backgroundCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	go reg.Run(backgroundCtx, 1*time.Second)

	adminEngine := admin.New(storeCtl, reg, conductEngine, logger)
	go sampleAdminGauges(backgroundCtx, adminEngine, storeCtl)

	hub := realtime.NewHub(logger)
	hubStop := make(chan struct{})
	go hub.Run(hubStop)

	bus := realtime.NewBus(hub, reg, tokens, filterRegistry, timeoutEngine, lifecycleEngine, realtime.Config{
		AllowedOrigins: cfg.WSAllowedOrigins,
		DevAllowAll:    cfg.DevWebSocketsAllowAll,
	}, logger)

	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("dicehall-backend"))
	r.Use(middleware.DevCORS(cfg))

	deps := httpapi.Deps{
		Store:       storeCtl,
		Registry:    reg,
		Tokens:      tokens,
		Identity:    httpapi.NoopIdentityVerifier{},
		Leaderboard: httpapi.NewStoreLeaderboardSink(storeCtl),
		Logger:      sugar,
	}
	httpapi.RegisterHealthRoutes(r, deps)
	r.GET("/ws", bus.HandleUpgrade)

	api := r.Group("/api")
	httpapi.RegisterRoutes(api, deps)

	admin.RegisterRoutes(r.Group(""), adminEngine, cfg, tokens)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		sugar.Infow("server starting", "addr", cfg.Addr, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		sugar.Infow("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen and serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("http server shutdown error", "error", err)
	}

	// Stop background loops and the realtime hub before the deferred
	// storeCtl.Stop()/Persist below, so no late mutation races the
	// final flush.
	stopBackground()
	close(hubStop)
	if err := storeCtl.Persist(shutdownCtx); err != nil {
		sugar.Warnw("final persist failed", "error", err)
	}
	return nil
}

func buildAdapter(cfg config.Config, logger *zap.Logger) (store.Adapter, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendRemote:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return store.NewRemoteDocumentAdapter(client, cfg.FirestorePrefix, logger), nil
	default:
		return store.NewFileAdapter(cfg.StoreFilePath, logger), nil
	}
}

// sampleAdminGauges periodically samples the registry/store controller
// into the prometheus gauges, since they have no "compute on scrape"
// hook without a custom Collector (§4.10).
func sampleAdminGauges(ctx context.Context, eng *admin.Engine, storeCtl *store.Controller) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eng.RefreshGauges()
			admin.SetPersistQueueDepth(storeCtl.QueueDepth())
		}
	}
}

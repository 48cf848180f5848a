package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/AnshRaj112/bazaar-backend/internal/changefeed"
	"github.com/AnshRaj112/bazaar-backend/internal/config"
	"github.com/AnshRaj112/bazaar-backend/internal/database"
	"github.com/AnshRaj112/bazaar-backend/internal/handlers"
	"github.com/AnshRaj112/bazaar-backend/internal/middleware"
	"github.com/AnshRaj112/bazaar-backend/internal/routes"
	"github.com/AnshRaj112/bazaar-backend/internal/services"
	"github.com/AnshRaj112/bazaar-backend/internal/store"
	"github.com/AnshRaj112/bazaar-backend/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found")
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// Redis backs admin sessions, the dashboard cache, the message limiter and
	// the redis changefeed. Only the changefeed cannot run without it.
	if err := database.ConnectRedis(cfg.RedisURI); err != nil {
		if cfg.ChangefeedDriver == config.DriverRedis {
			return err
		}
		slog.Warn("redis unavailable; admin console, dashboard cache and message rate limit are disabled", "error", err)
	}
	defer database.DisconnectRedis()

	var (
		listingStore store.ListingStore
		messageStore store.MessageStore
	)
	switch cfg.StoreDriver {
	case config.DriverMongo:
		slog.Info("connecting to MongoDB", "uri", maskURI(cfg.MongoURI))
		if err := database.Connect(cfg.MongoURI, cfg.MongoDatabase); err != nil {
			return err
		}
		defer database.Disconnect()

		listings := store.NewMongoListings(database.DB)
		messages := store.NewMongoMessages(database.DB)
		indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := errors.Join(listings.EnsureIndexes(indexCtx), messages.EnsureIndexes(indexCtx)); err != nil {
			slog.Warn("failed to ensure MongoDB indexes", "error", err)
		} else {
			slog.Info("✅ MongoDB indexes ensured")
		}
		cancel()
		listingStore, messageStore = listings, messages
	default:
		mem := store.NewMemory()
		listingStore, messageStore = mem.Listings, mem.Messages
		slog.Info("using in-memory store; data is lost on restart")
	}

	var audit store.ModerationLog = store.NewMemoryModerationLog()
	if cfg.PostgresURI != "" {
		if err := database.ConnectPostgres(cfg.PostgresURI); err != nil {
			slog.Warn("postgres unavailable; moderation log kept in memory", "error", err)
		} else {
			defer database.DisconnectPostgres()
			audit = store.NewPostgresModerationLog(database.PostgresDB)
		}
	}

	hub := changefeed.NewHub()
	var publisher changefeed.Publisher = hub
	switch cfg.ChangefeedDriver {
	case config.DriverRedis:
		bus := changefeed.NewRedisBus(database.RedisClient, hub)
		go bus.Run(ctx)
		publisher = bus
		slog.Info("changefeed: redis pub/sub")
	case config.DriverMongo:
		go changefeed.NewMongoWatcher(database.DB, hub, store.ListingsCollection, store.MessagesCollection).Run(ctx)
		publisher = changefeed.Discard{}
		slog.Info("changefeed: mongo change streams")
	default:
		slog.Info("changefeed: in-process")
	}

	listings := services.NewListingService(listingStore, publisher, audit)
	chats := services.NewChatService(messageStore, publisher)
	cache := services.NewCacheService(database.RedisClient)
	live := services.NewLiveService(listings, chats, hub, cache, cfg.DashboardRefresh)
	go live.InvalidateOnChange(ctx)

	images, err := newImageStore(cfg)
	if err != nil {
		slog.Warn("image store unavailable; uploads are disabled", "error", err)
	}

	h := routes.Handlers{
		Listings: handlers.NewListingHandler(listings),
		Chat:     handlers.NewChatHandler(chats),
		Admin:    handlers.NewAdminHandler(listings, live),
		Upload:   handlers.NewUploadHandler(images),
	}
	if database.RedisClient != nil {
		sessions := services.NewAdminSessions(database.RedisClient, cfg.AdminKeyHash)
		h.Sessions = sessions
		h.AdminAuth = handlers.NewAdminAuthHandler(sessions)
		if cfg.AdminKeyHash == "" {
			slog.Warn("ADMIN_KEY_HASH not set; admin sign-in will always fail (generate one with cmd/hashkey)")
		}
		if cfg.MessageRateLimit > 0 {
			limiter, err := middleware.NewFixedWindowLimiter(database.RedisClient, "bazaar:messages", cfg.MessageRateLimit, cfg.MessageRateWindow)
			if err != nil {
				return err
			}
			h.MessageLimit = limiter.Middleware
		}
	}
	h.Live = handlers.NewLiveHandler(live, h.Sessions, cfg.AllowedOrigins)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLog)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity(ctx, cfg.AllowedHost) {
			r.Use(mw)
		}
		slog.Info("✅ Production security enabled (security headers, host check, per-IP + sign-in rate limiting)")
	}
	r.Use(middleware.Identity)
	routes.SetupRoutes(r, h)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(h.Live.Shutdown)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("🚀 Bazaar backend running", "port", cfg.Port, "env", cfg.Environment,
			"store", cfg.StoreDriver, "changefeed", cfg.ChangefeedDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newImageStore(cfg *config.Config) (services.ImageStore, error) {
	switch cfg.ImageStore {
	case config.ImageStoreCloudinary:
		s, err := services.NewCloudinaryService(cfg.Cloudinary.Name, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret)
		if err != nil {
			return nil, err
		}
		slog.Info("✅ Cloudinary image store initialized")
		return s, nil
	case config.ImageStoreMinio:
		m := cfg.Minio
		s, err := services.NewMinioImageStore(m.Endpoint, m.AccessKey, m.SecretKey, m.Bucket, m.PublicURL, m.UseSSL)
		if err != nil {
			return nil, err
		}
		slog.Info("✅ MinIO image store initialized", "bucket", m.Bucket)
		return s, nil
	}
	return nil, nil
}

// maskURI hides the password of a connection string for logging.
func maskURI(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return uri
	}
	user, _, hasPass := strings.Cut(creds, ":")
	if !hasPass {
		return uri
	}
	return scheme + "://" + user + ":***@" + host
}

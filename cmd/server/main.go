package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"storefront_back_end/internal/audit"
	"storefront_back_end/internal/auth"
	"storefront_back_end/internal/cache"
	"storefront_back_end/internal/cart"
	"storefront_back_end/internal/catalog"
	"storefront_back_end/internal/config"
	"storefront_back_end/internal/database"
	"storefront_back_end/internal/handlers"
	"storefront_back_end/internal/jobs"
	"storefront_back_end/internal/logger"
	"storefront_back_end/internal/metrics"
	"storefront_back_end/internal/middleware"
	"storefront_back_end/internal/orders"
	"storefront_back_end/internal/routes"
	"storefront_back_end/internal/services"
	"storefront_back_end/internal/store"
	"storefront_back_end/internal/store/memory"
	"storefront_back_end/internal/store/mongo"
)

// cartBroker publie et diffuse les événements panier.
type cartBroker interface {
	cart.Events
	handlers.CartSubscriber
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("❌ Configuration invalide")
	}
	log := logger.New(cfg.Server.LogLevel, cfg.IsProduction())

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("❌ Arrêt du serveur")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = st.Close(closeCtx)
	}()

	checks := map[string]handlers.Pinger{"store": st}
	m := metrics.New()

	// Redis : sessions, anti brute-force, cache catalogue, événements panier.
	var (
		sessions   auth.SessionStore    = cache.NewMemorySessions()
		loginGuard cache.LoginGuard     = cache.NewMemoryLoginGuard()
		products   catalog.ProductCache = cache.NopProductCache{}
		cartEvents cartBroker           = cache.NewMemoryCartEvents()
	)
	if cfg.Redis.Addr != "" {
		rdb, err := database.ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			log.WithError(err).Warn("⚠️ Redis indisponible : repli en mémoire")
		} else {
			defer rdb.Close()
			sessions = cache.NewRedisSessions(rdb)
			loginGuard = cache.NewRedisLoginGuard(rdb)
			products = cache.NewRedisProductCache(rdb)
			cartEvents = cache.NewRedisCartEvents(rdb)
			checks["redis"] = handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		}
	}

	// Journal d'audit
	var recorder audit.Recorder = audit.NewLogRecorder(log)
	if len(cfg.Scylla.Hosts) > 0 {
		session, err := database.ConnectScylla(cfg.Scylla)
		if err != nil {
			log.WithError(err).Warn("⚠️ ScyllaDB indisponible : audit dans les logs")
		} else {
			defer session.Close()
			scylla := audit.NewScyllaRecorder(session, cfg.Scylla.Timeout)
			if err := scylla.EnsureSchema(ctx); err != nil {
				log.WithError(err).Warn("⚠️ Création de la table audit_logs impossible")
			}
			recorder = scylla
		}
	}

	// Recherche produits
	var searcher catalog.Searcher
	if cfg.Elastic.URL != "" {
		es, err := database.ConnectElastic(cfg.Elastic)
		if err != nil {
			log.WithError(err).Warn("⚠️ Elasticsearch indisponible : recherche dans la base")
		} else {
			searcher = services.NewElasticSearcher(es, cfg.Elastic.Index)
		}
	}

	// Images produits
	var images handlers.ImageUploader
	if cfg.MinIO.Endpoint != "" {
		mc, err := database.ConnectMinIO(ctx, cfg.MinIO)
		if err != nil {
			log.WithError(err).Warn("⚠️ MinIO indisponible : upload d'images désactivé")
		} else {
			images = services.NewMinioImageStore(mc, cfg.MinIO.Bucket)
		}
	}

	// Notifications de commande
	var notifier orders.Notifier = services.NewLogNotifier(log)
	if cfg.SMTP.Host != "" && cfg.SMTP.NotifyTo != "" {
		notifier = services.NewMailer(cfg.SMTP)
		log.WithField("to", cfg.SMTP.NotifyTo).Info("📧 Notifications e-mail activées")
	}

	tokens := auth.NewTokenManager(cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	authSvc := auth.NewService(st, tokens, sessions, log)
	if err := authSvc.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		log.WithError(err).Warn("⚠️ Compte administrateur non initialisé")
	}

	catalogSvc := catalog.NewService(st, searcher, products, log)
	orderSvc := orders.NewService(st, notifier, m, orders.Options{FreeTransitions: cfg.Orders.FreeTransitions}, log)
	cartSvc := cart.NewService(st, orderSvc, cartEvents, m, log)

	scheduler := jobs.NewScheduler(log)
	if err := scheduler.SweepCarts(cfg.Jobs.CartSweepSpec, st, cfg.Jobs.CartTTL); err != nil {
		return err
	}
	scheduler.Start()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(m.Instrument())
	r.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))
	r.Use(middleware.NewIPRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst).Middleware())

	routes.RegisterRoutes(r, routes.Deps{
		Tokens:     tokens,
		LoginGuard: loginGuard,
		Audit:      recorder,
		Metrics:    m.Handler(),
		Auth:       handlers.NewAuthHandler(authSvc, m, cfg.Server.CookieSecure),
		Products:   handlers.NewProductHandler(catalogSvc, images),
		Orders:     handlers.NewOrderHandler(orderSvc),
		Cart:       handlers.NewCartHandler(cartSvc),
		CartWS:     handlers.NewCartSocket(cartSvc, cartEvents, cfg.Server.AllowedOrigins),
		Users:      handlers.NewUserHandler(authSvc),
		Health:     handlers.NewHealthHandler(checks),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Server.Port).Info("🚀 Serveur lancé")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("🛑 Arrêt demandé, fermeture des connexions")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	scheduler.Stop(shutdownCtx)
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Store.Driver == "memory" {
		logrus.Warn("⚠️ Stockage en mémoire : les données seront perdues à l'arrêt")
		return memory.New(), nil
	}
	return mongo.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Timeout)
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		// Les credentials interdisent "*" : on renvoie l'origine appelante.
		c.AllowOriginFunc = func(string) bool { return true }
	} else {
		c.AllowOrigins = origins
	}
	return c
}

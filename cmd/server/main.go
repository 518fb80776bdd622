package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront_back_end/internal/config"
	"storefront_back_end/internal/database"
	"storefront_back_end/internal/handlers"
	"storefront_back_end/internal/ledger"
	"storefront_back_end/internal/logger"
	"storefront_back_end/internal/metrics"
	"storefront_back_end/internal/notify"
	"storefront_back_end/internal/routes"
	"storefront_back_end/internal/services"
	"storefront_back_end/internal/store"
	"storefront_back_end/internal/store/memory"
	"storefront_back_end/internal/store/redisstore"
)

const sweepTimeout = 5 * time.Minute

func main() {
	cfg := config.Load("storefront")

	log, err := logger.Init(&logger.LogConfig{
		Level:       cfg.LogLevel,
		Environment: cfg.Server.Env,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		panic("❌ Impossible d'initialiser le logger : " + err.Error())
	}
	defer log.Sync()
	log.Info("🔧 Configuration chargée", cfg.Fields()...)

	// les montants sortent en nombres JSON, pas en chaînes
	decimal.MarshalJSONWithoutQuotes = true

	ledgerMetrics := metrics.NewLedger()
	metrics.Register(prometheus.DefaultRegisterer, ledgerMetrics)

	ctx := context.Background()

	// =============================================
	// STOCKAGE
	// =============================================
	var (
		st  store.Store
		rdb *redis.Client
	)
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("⚠️ Store en mémoire : les données seront perdues à l'arrêt")
		st = memory.New()
	case "redis":
		rdb, err = database.ConnectRedis(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal("❌ Redis indisponible", zap.Error(err))
		}
		st = redisstore.New(rdb)
	default:
		log.Fatal("❌ STORE_DRIVER inconnu", zap.String("driver", cfg.StoreDriver))
	}

	ledgerOpts := []ledger.Option{
		ledger.WithLogger(log.Named("ledger")),
		ledger.WithMetrics(ledgerMetrics),
		ledger.WithMaxAttempts(cfg.Ledger.MaxAttempts),
		ledger.WithBackoff(cfg.Ledger.BackoffBase, cfg.Ledger.BackoffMax),
		ledger.WithRetention(time.Duration(cfg.Ledger.RetentionDays)*24*time.Hour, cfg.Ledger.SweepLimit),
	}
	handlerOpts := []handlers.Option{
		handlers.WithWebhookSecret(cfg.StripeWebhookSecret),
	}

	// =============================================
	// SERVICES OPTIONNELS
	// =============================================
	var scylla *gocql.Session
	if len(cfg.Scylla.Hosts) > 0 {
		scylla, err = database.ConnectScylla(cfg.Scylla, log)
		if err != nil {
			log.Error("❌ Journal des mouvements désactivé", zap.Error(err))
		} else {
			journal := database.NewMovementJournal(scylla)
			ledgerOpts = append(ledgerOpts, ledger.WithMovements(journal))
			handlerOpts = append(handlerOpts, handlers.WithMovements(journal))
		}
	} else {
		log.Info("ℹ️ SCYLLA_HOSTS vide : journal des mouvements désactivé")
	}

	if cfg.MinIO.Endpoint != "" {
		client, err := database.ConnectMinIO(ctx, cfg.MinIO, log)
		if err != nil {
			log.Error("❌ Archivage des commandes désactivé", zap.Error(err))
		} else {
			archive := services.NewOrderArchive(client, cfg.MinIO.Bucket)
			ledgerOpts = append(ledgerOpts, ledger.WithArchiver(archive))
			handlerOpts = append(handlerOpts, handlers.WithArchive(archive))
		}
	} else {
		log.Info("ℹ️ MINIO_ENDPOINT vide : commandes purgées sans archive")
	}

	var mailer *notify.Mailer
	if cfg.SMTP.Host != "" {
		mailer = notify.NewMailer(cfg.SMTP, log.Named("mail"))
		ledgerOpts = append(ledgerOpts, ledger.WithNotifier(mailer))
		log.Info("✅ Notifications e-mail activées", zap.String("smtp", cfg.SMTP.Host))
	} else {
		log.Info("ℹ️ SMTP_HOST vide : aucune notification e-mail")
	}

	svc := ledger.New(st, ledgerOpts...)

	// =============================================
	// PURGE PLANIFIÉE
	// =============================================
	scheduler := cron.New(cron.WithLocation(time.UTC))
	if _, err := scheduler.AddFunc(cfg.Ledger.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := svc.SweepCompleted(ctx); err != nil {
			log.Error("❌ Purge des commandes terminées échouée", zap.Error(err))
		}
	}); err != nil {
		log.Fatal("❌ ORDER_SWEEP_SCHEDULE invalide", zap.String("schedule", cfg.Ledger.SweepSchedule), zap.Error(err))
	}
	scheduler.Start()

	// =============================================
	// HTTP
	// =============================================
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	routes.RegisterRoutes(r, routes.Deps{
		Config:  cfg,
		Log:     log,
		Handler: handlers.New(svc, st, handlerOpts...),
		Redis:   rdb,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("🚀 Serveur lancé", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("❌ Serveur arrêté", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("🛑 Arrêt en cours...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("❌ Arrêt HTTP forcé", zap.Error(err))
	}

	<-scheduler.Stop().Done()
	if mailer != nil {
		mailer.Wait()
	}
	if scylla != nil {
		scylla.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Info("👋 Serveur arrêté")
}

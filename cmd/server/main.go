// Server runs the InsiderWatch HTTP API: log collection, anomaly detection, network access
// control, audit and live alerts.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"insiderwatch/backend/internal/alert"
	"insiderwatch/backend/internal/audit"
	audithandler "insiderwatch/backend/internal/audit/handler"
	auditrepo "insiderwatch/backend/internal/audit/repository"
	blockingrepo "insiderwatch/backend/internal/blocking/repository"
	"insiderwatch/backend/internal/config"
	"insiderwatch/backend/internal/db"
	"insiderwatch/backend/internal/detection"
	"insiderwatch/backend/internal/detection/cache"
	"insiderwatch/backend/internal/detection/classifier"
	detectionhandler "insiderwatch/backend/internal/detection/handler"
	detectionrepo "insiderwatch/backend/internal/detection/repository"
	employeerepo "insiderwatch/backend/internal/employee/repository"
	endpointrepo "insiderwatch/backend/internal/endpoint/repository"
	eventhandler "insiderwatch/backend/internal/event/handler"
	"insiderwatch/backend/internal/event/ingest"
	eventrepo "insiderwatch/backend/internal/event/repository"
	gatewayrepo "insiderwatch/backend/internal/gateway/repository"
	healthhandler "insiderwatch/backend/internal/health/handler"
	"insiderwatch/backend/internal/logger"
	"insiderwatch/backend/internal/logon"
	"insiderwatch/backend/internal/netaccess"
	netaccesshandler "insiderwatch/backend/internal/netaccess/handler"
	orgrepo "insiderwatch/backend/internal/organization/repository"
	"insiderwatch/backend/internal/policy/engine"
	"insiderwatch/backend/internal/server"
	"insiderwatch/backend/internal/telemetry"
	telemetryotel "insiderwatch/backend/internal/telemetry/otel"
	"insiderwatch/backend/internal/telemetry/producer"
)

const (
	shutdownTimeout = 15 * time.Second
	requestTimeout  = 60 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Get().Fatal("config", zap.Error(err))
	}
	log := logger.Init(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db", zap.Error(err))
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTelEndpoint, cfg.OTelServiceName, cfg.OTelInsecure)
	if err != nil {
		log.Fatal("otel", zap.Error(err))
	}
	providers.SetGlobal()

	var emitter telemetry.EventEmitter
	var bus producer.Producer
	if brokers := cfg.TelemetryKafkaBrokersList(); len(brokers) > 0 {
		bus = producer.NewKafkaProducer(brokers, cfg.TelemetryKafkaTopic)
		emitter = bus
		log.Info("telemetry: emitting to kafka", zap.Strings("brokers", brokers), zap.String("topic", cfg.TelemetryKafkaTopic))
	} else if cfg.OTelEndpoint != "" {
		emitter = telemetryotel.NewEventEmitter(providers.LoggerProvider)
		log.Info("telemetry: emitting as otel logs", zap.String("endpoint", cfg.OTelEndpoint))
	}

	loc := cfg.Location()

	events := eventrepo.NewPostgresRepository(conn)
	employees := employeerepo.NewPostgresRepository(conn)
	endpoints := endpointrepo.NewPostgresRepository(conn)
	gateways := gatewayrepo.NewPostgresRepository(conn)
	orgs := orgrepo.NewPostgresRepository(conn)
	histories := detectionrepo.NewPostgresRepository(conn)
	blocking := blockingrepo.NewPostgresRepository(conn)
	audits := auditrepo.NewPostgresRepository(conn)
	auditLogger := audit.NewLogger(audits, audit.ClientIP)

	policy, err := newPolicy(cfg)
	if err != nil {
		log.Fatal("containment policy", zap.Error(err))
	}

	var resultCache cache.Cache
	if cfg.RedisAddr != "" {
		client, err := cache.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn("redis unavailable, using in-memory detection cache", zap.Error(err))
		} else {
			defer client.Close()
			resultCache = cache.NewRedisCache(client)
		}
	}

	var clf detection.Classifier
	if cfg.ClassifierURL != "" {
		clf = classifier.NewClient(cfg.ClassifierURL, cfg.ClassifierModel, cfg.ClassifierTimeoutDuration())
	} else {
		log.Warn("CLASSIFIER_URL is not set; detection runs will fail until it is configured")
	}
	scorer := detection.NewScorer(detection.Deps{
		Events:        events,
		Employees:     employees,
		Organizations: orgs,
		History:       histories,
		Classifier:    clf,
		Cache:         resultCache,
		Emitter:       emitter,
	}, detection.Config{
		Location:            loc,
		EmailDomainFallback: cfg.OrgEmailDomainFallback,
		CacheTTL:            cfg.DetectionCacheTTLDuration(),
	})

	runner, err := netaccess.NewSSHRunner(netaccess.SSHConfig{
		User:           cfg.SSHUser,
		Password:       cfg.SSHPassword,
		Port:           cfg.SSHPort,
		Timeout:        cfg.SSHTimeoutDuration(),
		KnownHostsFile: cfg.SSHKnownHosts,
	})
	if err != nil {
		log.Fatal("ssh runner", zap.Error(err))
	}
	access := netaccess.NewController(endpoints, gateways, runner, emitter)

	hub := alert.NewHub()
	var mailer alert.Mailer
	if cfg.SMTPUsername != "" {
		mailer = alert.NewSMTPMailer(alert.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		log.Warn("SMTP_USERNAME is not set; alert email is disabled")
	}
	fanout := alert.NewFanout(hub, orgs, mailer, emitter)

	coordinator := logon.NewCoordinator(logon.Deps{
		Endpoints: endpoints,
		Employees: employees,
		Policy:    policy,
		Access:    access,
		Blocking:  blocking,
		Notifier:  fanout,
		Audit:     auditLogger,
	})
	dispatcher := logon.NewDispatcher(coordinator, cfg.LogonWorkers, cfg.LogonQueueSize)
	dispatcher.Start(context.WithoutCancel(ctx))

	go detection.NewScheduler(scorer, orgs, cfg.DetectionIntervalDuration(), loc).Start(ctx)

	router := server.NewRouter(server.Deps{
		Logger: log,
		Health: healthhandler.NewHandler(conn, policy),
		Alerts: alert.NewWSHandler(hub, cfg.CORSOriginsList()),
		API: []server.RouteRegistrar{
			eventhandler.NewHandler(ingest.NewService(events, dispatcher, emitter, loc)),
			detectionhandler.NewHandler(scorer, histories, employees, loc),
			netaccesshandler.NewHandler(access, endpoints, gateways, blocking),
			audithandler.NewHandler(audits),
		},
		Audit:          auditLogger,
		Telemetry:      emitter,
		CORSOrigins:    cfg.CORSOriginsList(),
		RequestTimeout: requestTimeout,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	hub.Close()
	dispatcher.Close()

	time.Sleep(telemetry.ShutdownDrainDuration)
	if bus != nil {
		if err := bus.Close(); err != nil {
			log.Warn("kafka producer close", zap.Error(err))
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn("otel shutdown", zap.Error(err))
	}
	log.Info("HTTP server stopped")
}

func newPolicy(cfg *config.Config) (*engine.OPAEvaluator, error) {
	if cfg.ContainmentPolicyFile != "" {
		return engine.NewOPAEvaluatorFromFile(cfg.ContainmentPolicyFile)
	}
	return engine.NewOPAEvaluator(engine.DefaultContainmentPolicy)
}

package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/customeros/codewatch/api"
	"github.com/customeros/codewatch/config"
	"github.com/customeros/codewatch/interfaces"
	"github.com/customeros/codewatch/internal/cron"
	"github.com/customeros/codewatch/internal/logger"
	"github.com/customeros/codewatch/internal/models"
	"github.com/customeros/codewatch/internal/tracing"
	"github.com/customeros/codewatch/services/classifier"
	"github.com/customeros/codewatch/services/events"
	"github.com/customeros/codewatch/services/extractor"
	"github.com/customeros/codewatch/services/imap"
	"github.com/customeros/codewatch/services/monitor"
)

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	events       *events.EventsService
	monitor      *monitor.Monitor
	cron         *cron.CronManager
	accounts     []models.Account
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config) (*Server, error) {
	// Initialize logger
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	// Initialize tracing
	closer, err := tracing.InitTracer(cfg.Tracing, appLogger)
	if err != nil {
		return nil, fmt.Errorf("could not initialize jaeger tracer: %w", err)
	}

	accounts, err := config.LoadAccounts(cfg.AppConfig)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		appLogger.Warn("No accounts configured, monitoring will not start")
	}

	eventsService, err := initEvents(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	mon := monitor.New(appLogger, monitor.Options{
		Accounts: accounts,
		Settings: cfg.Monitor.Settings(),
		Session:  SessionDeps(cfg.Monitor, appLogger),
		Notifier: eventsService,
	})

	cronManager := cron.NewCronManager(cfg, appLogger, kubernetesClient(cfg, appLogger), mon)

	// Initialize Gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		config:       cfg,
		log:          appLogger,
		router:       router,
		events:       eventsService,
		monitor:      mon,
		cron:         cronManager,
		accounts:     accounts,
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:    ":" + cfg.AppConfig.APIPort,
			Handler: router,
		},
	}, nil
}

// SessionDeps wires the mailbox dialer and the message pipeline from config.
func SessionDeps(cfg *config.MonitorConfig, log logger.Logger) imap.SessionDeps {
	return imap.SessionDeps{
		Dial: imap.NewDialer(imap.ServerConfig{
			Host:               cfg.ImapHost,
			Port:               cfg.ImapPort,
			InsecureSkipVerify: cfg.ImapInsecureSkipVerify,
		}),
		Provider:   imap.Provider{Domain: cfg.ProviderDomain, Name: cfg.ProviderName},
		Classifier: classifier.New(),
		Extractor:  extractor.New(cfg.ProviderDomain),
		Log:        log,
	}
}

func initEvents(cfg *config.Config, log logger.Logger) (*events.EventsService, error) {
	var publishers []interfaces.EventPublisher

	if cfg.RabbitMQ.URL != "" {
		rabbit, err := events.NewRabbitMQPublisher(cfg.RabbitMQ.URL, log, events.DefaultPublisherConfig())
		if err != nil {
			return nil, fmt.Errorf("rabbitmq publisher: %w", err)
		}
		publishers = append(publishers, rabbit)
	}

	if cfg.Redis.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		redisPublisher, err := events.NewRedisPublisherFromURL(ctx, cfg.Redis.URL, cfg.Redis.Channel, log)
		if err != nil {
			for _, p := range publishers {
				_ = p.Close()
			}
			return nil, fmt.Errorf("redis publisher: %w", err)
		}
		publishers = append(publishers, redisPublisher)
	}

	return events.NewEventsService(log, nil, publishers...), nil
}

// kubernetesClient is only needed for leader election. Outside a cluster the
// scheduler runs in local mode.
func kubernetesClient(cfg *config.Config, log logger.Logger) kubernetes.Interface {
	if cfg.LeaderElection == nil || !cfg.LeaderElection.Enabled {
		return nil
	}
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		log.Warnf("Leader election enabled but not running in a cluster: %v", err)
		return nil
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		log.Warnf("Failed to create kubernetes client: %v", err)
		return nil
	}
	return client
}

func (s *Server) Initialize() error {
	api.RegisterRoutes(s.router, s.monitor, s.events.Hub, s.config.AppConfig.APIKey)
	return nil
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		ext.Error.Set(span, true)

		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		s.log.Errorf("Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

// onLeading starts monitoring when this replica is allowed to.
func (s *Server) onLeading(ctx context.Context) {
	if !s.config.AppConfig.AutoStart || len(s.accounts) == 0 {
		s.log.Info("Auto start disabled or no accounts, waiting for /api/start")
		return
	}
	s.wrapGoroutine("monitor_start", func() {
		if _, err := s.monitor.Start(context.WithoutCancel(ctx)); err != nil {
			s.log.Errorf("Failed to start monitoring: %v", err)
		}
	})
}

func (s *Server) onStoppedLeading() {
	if s.monitor.Stop() {
		s.log.Info("Monitoring stopped after losing leadership")
	}
}

func (s *Server) Run() error {
	if err := s.Initialize(); err != nil {
		return err
	}

	if err := s.cron.Start(s.onLeading, s.onStoppedLeading); err != nil {
		return fmt.Errorf("cron manager: %w", err)
	}

	go s.wrapGoroutine("http_server", func() {
		s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("HTTP server error: %v", err)
		}
	})
	s.log.Info("Codewatch is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	s.log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.AppConfig.ShutdownTimeout)
	defer shutdownCancel()

	s.cron.Stop()

	if err := s.monitor.Shutdown(shutdownCtx); err != nil {
		s.log.Warnf("Monitor stop timed out: %v", err)
	} else {
		s.log.Info("Monitor stopped")
	}

	// stream handlers hold requests open until their subscription closes
	if err := s.events.Close(); err != nil {
		s.log.Errorf("Events shutdown error: %v", err)
	}

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("HTTP server shutdown error: %v", err)
	} else {
		s.log.Info("HTTP server shut down successfully")
	}

	if s.tracerCloser != nil {
		if err := s.tracerCloser.Close(); err != nil {
			s.log.Errorf("Tracer close error: %v", err)
		}
	}

	_ = s.log.Sync()
	return nil
}

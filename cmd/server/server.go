package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/lawaid/internal/api"
	"github.com/ashureev/lawaid/internal/chat"
	"github.com/ashureev/lawaid/internal/config"
	"github.com/ashureev/lawaid/internal/domain"
	"github.com/ashureev/lawaid/internal/identity"
	"github.com/ashureev/lawaid/internal/inference"
	"github.com/ashureev/lawaid/internal/intent"
	"github.com/ashureev/lawaid/internal/localmodel"
	"github.com/ashureev/lawaid/internal/middleware"
	"github.com/ashureev/lawaid/internal/search"
	"github.com/ashureev/lawaid/internal/session"
	"github.com/ashureev/lawaid/internal/store"
	"github.com/ashureev/lawaid/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout    = 10 * time.Second
	healthCheckTimeout = 3 * time.Second
	grpcHealthInterval = 15 * time.Second
)

func run(parent context.Context, logger *slog.Logger, endpointsFile string) error {
	cfg, err := config.Load(endpointsFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"store", cfg.StoreBackend,
		"endpoints", len(cfg.Endpoints),
	)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.Open(store.Options{
		Backend:       cfg.StoreBackend,
		DBPath:        cfg.DBPath,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		SessionTTL:    cfg.SessionTTL,
	})
	if err != nil {
		return fmt.Errorf("initialize session store: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("session store health check: %w", err)
	}
	slog.Info("Session store connected", "backend", cfg.StoreBackend)

	httpClient := &http.Client{}
	factory := inference.NewFactory(httpClient, nil)

	var local *localmodel.Runtime
	if cfg.LocalModel.Enabled {
		local, err = localmodel.New(localmodel.Config{
			Image:       cfg.LocalModel.Image,
			ModelID:     cfg.LocalModel.ModelID,
			Port:        cfg.LocalModel.Port,
			Runtime:     cfg.LocalModel.Runtime,
			HubToken:    cfg.HFAPIKey,
			IdleTimeout: cfg.LocalModel.Idle,
		})
		if err != nil {
			return fmt.Errorf("initialize local model runtime: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := local.Stop(stopCtx); err != nil {
				slog.Error("Failed to stop local model", "error", err)
			}
			_ = local.Close()
		}()
		factory.Local = local
	}

	clients := func(endpoints []domain.Endpoint) (chat.Generator, error) {
		return factory.Client(endpoints, chainOptions(cfg, logger, local, httpClient, endpoints)...)
	}

	// Build the default chain once so a misconfigured tier fails at start-up.
	chain, err := factory.Client(cfg.Endpoints, chainOptions(cfg, logger, local, httpClient, cfg.Endpoints)...)
	if err != nil {
		return fmt.Errorf("initialize inference chain: %w", err)
	}
	slog.Info("Inference chain ready", "tiers", chain.Tiers())

	var qa chat.Generator
	if ep, ok := cfg.QAEndpoint(); ok {
		qa, err = factory.Client([]domain.Endpoint{ep}, inference.WithTimeout(cfg.InferenceTimeout), inference.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("initialize document QA client: %w", err)
		}
	}

	var searcher chat.Searcher
	searchClient := search.NewClient(search.Config{
		APIKey:     cfg.Search.APIKey,
		Domains:    cfg.Search.Domains,
		NumResults: cfg.Search.NumResults,
		Timeout:    cfg.InferenceTimeout,
	})
	if searchClient.Enabled() {
		searcher = searchClient
	} else {
		slog.Info("Web search disabled (SERPAPI_API_KEY not set)")
	}

	svc, err := chat.NewService(chat.Config{
		Classifier: intent.NewClassifier(cfg.AssistantName, cfg.AssistantCreator),
		Clients:    clients,
		QA:         qa,
		Search:     searcher,
		Params: inference.Params{
			MaxNewTokens:      cfg.MaxNewTokens,
			Temperature:       cfg.Temperature,
			TopP:              cfg.TopP,
			RepetitionPenalty: cfg.RepetitionPenalty,
		},
		DefaultCredential: cfg.HFAPIKey,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("initialize chat service: %w", err)
	}

	mgr := session.NewManager(repo, cfg.SystemPrompt, cfg.Endpoints,
		session.WithSearchDefault(cfg.Search.Enabled && searcher != nil),
		session.WithLogger(logger),
	)

	conversationLogger, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation logger: %w", err)
	}

	allowedOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		allowedOrigins = []string{cfg.FrontendURL}
	}

	chatHandler := chat.NewHandler(svc, mgr, conversationLogger, chat.HandlerConfig{
		OriginPatterns: allowedOrigins,
		Logger:         logger,
	})
	defer chatHandler.Close()

	checks := []api.Check{{Name: "store", Fn: mgr.Ping}}
	if local != nil {
		checks = append(checks, api.Check{Name: "local_model", Fn: local.Ping})
	}
	healthHandler := api.NewHealthHandler(healthCheckTimeout, checks...)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	chatHandler.RegisterRoutes(r)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// No WriteTimeout: inference can take several tiers and WebSocket
	// connections are long-lived.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	var grpcLis net.Listener
	if cfg.GRPCPort != "" {
		grpcLis, err = net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	ttlDone := session.StartTTLWorker(gctx, mgr, cfg.SessionTTL, session.DefaultSweepInterval, chatHandler.OnSessionExpired)
	slog.Info("TTL worker started", "session_ttl", cfg.SessionTTL)

	var idleDone <-chan struct{}
	if local != nil {
		idleDone = localmodel.StartIdleWorker(gctx, local, cfg.LocalModel.Idle, 0)
	}

	var watchDone <-chan struct{}
	if cfg.EndpointsFile != "" {
		watchDone, err = config.WatchEndpoints(gctx, cfg.EndpointsFile, mgr.SetEndpoints)
		if err != nil {
			slog.Warn("Endpoints file will not be reloaded", "path", cfg.EndpointsFile, "error", err)
		}
	}

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if grpcLis != nil {
		grpcSrv, hs := api.NewGRPCServer()
		healthDone := api.SyncHealth(gctx, healthHandler, hs, grpcHealthInterval)
		g.Go(func() error {
			slog.Info("gRPC health server listening", "addr", grpcLis.Addr().String())
			return grpcSrv.Serve(grpcLis)
		})
		g.Go(func() error {
			<-gctx.Done()
			hs.Shutdown()
			grpcSrv.GracefulStop()
			<-healthDone
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	<-ttlDone
	if idleDone != nil {
		<-idleDone
	}
	if watchDone != nil {
		<-watchDone
	}
	if err != nil {
		return err
	}

	slog.Info("Server stopped successfully")
	return nil
}

// chainOptions returns the client options for a chain over endpoints. The
// local model is appended as the last tier when enabled and not listed.
func chainOptions(cfg *config.Config, logger *slog.Logger, local *localmodel.Runtime, httpClient *http.Client, endpoints []domain.Endpoint) []inference.Option {
	opts := []inference.Option{
		inference.WithTimeout(cfg.InferenceTimeout),
		inference.WithLogger(logger),
	}
	if local != nil && !hasLocalTier(endpoints) {
		opts = append(opts, inference.WithLocal(inference.NewLocalProvider("local", local, httpClient)))
	}
	return opts
}

// hasLocalTier reports whether the endpoint list already names the local
// model, in which case it is not appended again.
func hasLocalTier(endpoints []domain.Endpoint) bool {
	for _, ep := range endpoints {
		if ep.Kind == domain.KindLocal {
			return true
		}
	}
	return false
}

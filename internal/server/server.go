package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/feedgraph/apiserver/config"
	"github.com/feedgraph/apiserver/internal/auth"
	"github.com/feedgraph/apiserver/internal/db"
	"github.com/feedgraph/apiserver/internal/graphql"
	"github.com/feedgraph/apiserver/internal/handlers"
	"github.com/feedgraph/apiserver/internal/images"
	"github.com/feedgraph/apiserver/internal/mq"
	"github.com/feedgraph/apiserver/internal/services"
	"github.com/feedgraph/apiserver/internal/storage"
	"github.com/feedgraph/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.mongodb.org/mongo-driver/mongo"
)

// Server wraps the HTTP server, its router and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	mongo      *mongo.Client
	queue      *mq.MQ
	cleaner    *images.Cleaner
	logger     *slog.Logger

	stopCleaner context.CancelFunc
	cleanerDone chan struct{}
}

// RouterDeps are the handlers and middleware the router mounts.
type RouterDeps struct {
	Tokens  *auth.TokenManager
	GraphQL http.Handler
	Images  handlers.ImageStore
	Cleaner handlers.ImageCleaner
	Metrics *Metrics
	Logger  *slog.Logger
}

// New connects to MongoDB, object storage and the optional queue, and wires
// the services behind the HTTP router. The image cleanup consumer starts
// immediately and stops in Shutdown.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	client, database, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	objects, err := storage.Open(ctx, cfg)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	queue, err := mq.Open(ctx, cfg)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	var cleanupQueue images.Queue
	if queue != nil {
		cleanupQueue = queue
	}
	cleaner := images.NewCleaner(objects, logger, cleanupQueue, cfg.Queue.CleanupChannel)

	userRepo := store.NewUserRepository(database)
	postRepo := store.NewPostRepository(database)

	tokens := auth.NewTokenManager(cfg.JWTSecret)
	userService := services.NewUserService(userRepo, tokens)
	postService := services.NewPostService(postRepo, userRepo, cleaner)

	gql, err := graphql.NewHandler(graphql.NewResolver(userService, postService), logger)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("parse graphql schema: %w", err)
	}

	router := NewRouter(RouterDeps{
		Tokens:  tokens,
		GraphQL: gql,
		Images:  images.NewStore(objects),
		Cleaner: cleaner,
		Metrics: NewMetrics(),
		Logger:  logger,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	cleanerCtx, stopCleaner := context.WithCancel(context.Background())
	srv := &Server{
		httpServer:  httpServer,
		router:      router,
		mongo:       client,
		queue:       queue,
		cleaner:     cleaner,
		logger:      logger,
		stopCleaner: stopCleaner,
		cleanerDone: make(chan struct{}),
	}
	go srv.runCleaner(cleanerCtx)
	return srv, nil
}

// NewRouter builds the middleware stack and routes. Every request gets an
// authentication verdict; OPTIONS requests are answered before routing.
func NewRouter(deps RouterDeps) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		deps.Metrics.Middleware,
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{
				http.MethodOptions,
				http.MethodGet,
				http.MethodPost,
				http.MethodPut,
				http.MethodPatch,
				http.MethodDelete,
			},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			MaxAge:         300,
		}),
		preflight,
		auth.Authenticate(deps.Tokens),
	)

	router.Get("/healthz", handlers.Healthz)
	router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	router.Handle("/graphql", deps.GraphQL)
	handlers.ImageRouter(router, deps.Images, deps.Cleaner, deps.Logger)
	return router
}

func preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) runCleaner(ctx context.Context) {
	defer close(s.cleanerDone)
	if err := s.cleaner.Run(ctx); err != nil {
		s.logger.Error("image cleanup consumer stopped", "error", err)
	}
}

// Start runs the HTTP server. It returns nil once Shutdown has been called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, waits for scheduled image removals
// and closes the queue and database connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	s.cleaner.Wait()
	s.stopCleaner()
	<-s.cleanerDone

	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.mongo != nil {
		if dErr := s.mongo.Disconnect(ctx); dErr != nil && err == nil {
			err = dErr
		}
	}
	return err
}

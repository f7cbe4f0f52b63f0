package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"proptyos-backend/internal/allocation"
	"proptyos-backend/internal/auth"
	"proptyos-backend/internal/cache"
	"proptyos-backend/internal/config"
	"proptyos-backend/internal/db"
	"proptyos-backend/internal/directory"
	appmw "proptyos-backend/internal/middleware"
	"proptyos-backend/internal/notifications"
	"proptyos-backend/internal/offers"
	"proptyos-backend/internal/pipeline"
	"proptyos-backend/internal/validation"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	val, err := validation.New()
	if err != nil {
		log.Error("validator setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var (
		mongoClient *mongo.Client
		entryRepo   pipeline.Repository
		requestRepo offers.RequestRepository
		dirRepo     directory.Repository
		userStore   auth.UserStore
	)

	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Info("using in-memory store")
		entryRepo = pipeline.NewMemoryRepository()
		requestRepo = offers.NewMemoryRequestRepository()
		dirRepo = directory.NewMemoryRepository()
	case config.StoreMongo:
		connectCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		client, cols, err := db.Connect(connectCtx, cfg.MongoURI, cfg.MongoDB)
		cancel()
		if err != nil {
			log.Error("mongo connect failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		mongoClient = client
		if err := db.EnsureIndexes(context.Background(), cols); err != nil {
			log.Error("index setup failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		entryRepo = pipeline.NewMongoRepository(cols.PipelineEntries)
		requestRepo = offers.NewMongoRequestRepository(cols.ApprovalRequests)
		dirRepo = directory.NewMongoRepository(cols.Clients, cols.Projects, cols.Marketers)
		userStore = auth.NewMongoUserStore(cols.Users)
	default:
		log.Error("unknown store driver", slog.String("driver", cfg.StoreDriver))
		os.Exit(1)
	}

	var cacheStore cache.Cache = cache.NewNoop()
	switch {
	case cfg.RedisURL != "":
		redisCache, err := cache.NewRedisFromURL(cfg.RedisURL)
		if err != nil {
			log.Warn("redis unavailable, caching disabled", slog.String("error", err.Error()))
		} else {
			cacheStore = redisCache
		}
	case cfg.RedisAddr != "":
		redisCache, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn("redis unavailable, caching disabled", slog.String("error", err.Error()))
		} else {
			cacheStore = redisCache
		}
	}

	tokens := auth.NewManager(
		cfg.JWTSecret,
		time.Duration(cfg.AccessTTLMinutes)*time.Minute,
		time.Duration(cfg.RefreshTTLMinutes)*time.Minute,
	)

	brevo := notifications.NewBrevoClient(cfg.BrevoAPIKey, cfg.BrevoSenderEmail, cfg.BrevoSenderName, cfg.BrevoSandbox, log)
	mailer := notifications.NewMailer(brevo)

	dirService := directory.NewService(dirRepo, cacheStore, cfg.Timezone)
	pipelineService := pipeline.NewService(entryRepo, dirService, cfg.Timezone)
	offerService := offers.NewService(entryRepo, requestRepo, dirService, mailer, cfg.Timezone)
	allocationService := allocation.NewService(entryRepo, offerService, dirService, mailer, cfg.Timezone)

	dirHandler := directory.NewHandler(dirService, val, log)
	pipelineHandler := pipeline.NewHandler(pipelineService, val, log, cacheStore)
	offerHandler := offers.NewHandler(offerService, val, log, cacheStore)
	allocationHandler := allocation.NewHandler(allocationService, val, log, cacheStore)
	authHandler := auth.NewHandler(tokens, userStore, val, log, cfg.AdminUser, cfg.AdminPassword, cfg.CookieSecure)

	window := time.Duration(cfg.RateLimitWindowSec) * time.Second
	pipelineLimiter := appmw.NewRateLimiter(cfg.RateLimitPipeline, window)
	directoryLimiter := appmw.NewRateLimiter(cfg.RateLimitDirectory, window)

	adminOnly := appmw.AdminAuth(cfg.AdminAPIKey, tokens)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(appmw.RequestID)
	r.Use(appmw.Logger(log))
	r.Use(chimw.Recoverer)
	r.Use(appmw.CORS(cfg.FrontendOrigins))
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)
			r.With(adminOnly).Post("/register", authHandler.Register)
		})

		r.Route("/pipeline", func(r chi.Router) {
			r.Use(pipelineLimiter.Middleware)

			r.Get("/", pipelineHandler.List)
			r.Get("/board", pipelineHandler.Board)
			r.Get("/history", pipelineHandler.History)
			r.Get("/{id}", pipelineHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)

				r.Post("/", pipelineHandler.Create)
				r.Post("/{id}/advance", pipelineHandler.Advance)

				r.Post("/{id}/offer", offerHandler.Issue)
				r.Post("/{id}/offer-letter", offerHandler.MarkLetter)
				r.Post("/{id}/approval", offerHandler.Submit)

				r.Post("/{id}/allocation/approve", allocationHandler.Approve)
				r.Post("/{id}/allocation/reject", allocationHandler.Reject)
				r.Post("/{id}/payments", allocationHandler.RecordPayment)
				r.Post("/{id}/reallocate", allocationHandler.Reallocate)
				r.Post("/{id}/revoke", allocationHandler.Revoke)
				r.Post("/{id}/contract", allocationHandler.MarkContract)
			})
		})

		r.Route("/offers", func(r chi.Router) {
			r.Use(pipelineLimiter.Middleware)
			r.With(adminOnly).Post("/{id}/resolve", offerHandler.Resolve)
		})

		r.Route("/approvals", func(r chi.Router) {
			r.Use(pipelineLimiter.Middleware)
			r.Get("/", offerHandler.ListRequests)
			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Post("/{id}/approve", offerHandler.ApproveRequest)
				r.Post("/{id}/decline", offerHandler.DeclineRequest)
			})
		})

		r.Route("/directory/{kind}", func(r chi.Router) {
			r.Use(directoryLimiter.Middleware)
			r.Get("/", dirHandler.List)
			r.Get("/{id}", dirHandler.Get)
			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Post("/", dirHandler.Create)
				r.Put("/{id}", dirHandler.Update)
			})
		})
	})

	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", slog.String("addr", cfg.ServerAddr), slog.String("env", cfg.Env))
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case sig := <-stop:
		log.Info("shutting down", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}
	if mongoClient != nil {
		if err := mongoClient.Disconnect(shutdownCtx); err != nil {
			log.Error("mongo disconnect error", slog.String("error", err.Error()))
		}
	}
	log.Info("server stopped")
}

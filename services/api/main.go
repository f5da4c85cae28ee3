package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/portfolio/internal/broadcast"
	"github.com/portfolio/internal/chat"
	"github.com/portfolio/internal/config"
	"github.com/portfolio/internal/handler"
	"github.com/portfolio/internal/logger"
	"github.com/portfolio/internal/middleware"
	"github.com/portfolio/internal/notify"
	"github.com/portfolio/internal/repository"
	"github.com/portfolio/internal/startup"
	"github.com/portfolio/internal/storage"
	"github.com/portfolio/internal/storage/memory"
	"github.com/portfolio/internal/token"
	"github.com/portfolio/internal/ws"
	"github.com/portfolio/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	mem := flag.Bool("mem", false, "run with in-memory storage (no DB, no Redis)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()

	var (
		roomStore storage.RoomStore
		msgStore  storage.MessageStore
		userStore storage.UserStore
		limiter   storage.LoginLimiter
		pool      *pgxpool.Pool
	)

	if *mem {
		logger.Info("in-memory storage mode")
		store := memory.New()
		roomStore, msgStore, userStore = store, store, store
		limiter = memory.NewLimiter()
	} else {
		var embeddedDB *embeddedpostgres.EmbeddedPostgres
		if *dev {
			var err error
			embeddedDB, err = startEmbeddedPostgres(cfg)
			if err != nil {
				logger.Errorf("embedded postgres: %v", err)
				os.Exit(1)
			}
			defer func() {
				logger.Info("stopping embedded postgres...")
				if err := embeddedDB.Stop(); err != nil {
					logger.Errorf("embedded postgres stop: %v", err)
				}
			}()
		}

		poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
		if err != nil {
			logger.Errorf("parse db config: %v", err)
			os.Exit(1)
		}
		poolCfg.MaxConns = int32(cfg.DBMaxConnections())
		poolCfg.MinConns = 4

		pool = startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
		defer pool.Close()

		runMigrations(pool)
		if *migrate && !*dev {
			return
		}
		logger.Info("database connected, migrations applied")

		roomStore = repository.NewRoomRepository(pool)
		msgStore = repository.NewMessageRepository(pool)
		userStore = repository.NewUserRepository(pool)

		if redisLimiter := startup.ConnectRedisWithRetry(cfg.Redis.URL, 30*time.Second, ""); redisLimiter != nil {
			limiter = redisLimiter
			logger.Info("redis connected")
		} else {
			limiter = memory.NewLimiter()
			logger.Info("redis unavailable, in-memory login limiter")
		}
	}
	defer limiter.Close()

	tokenSvc := token.NewService(cfg.JWT.Secret, cfg.JWT.TTL)
	chatSvc := chat.NewService(roomStore, msgStore, userStore)
	router := broadcast.NewRouter()
	notifyClient := notify.NewClient(cfg.NotifyServiceURL)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(chatSvc, router, cfg.MaxWSConnections, notifyClient)

	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	authH := handler.NewAuthHandler(userStore, tokenSvc, limiter)
	roomH := handler.NewRoomHandler(chatSvc)
	msgH := handler.NewMessageHandler(chatSvc)
	notifyH := handler.NewNotifyHandler(notifyClient)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	// Never compress WebSocket responses: a compressing ResponseWriter does
	// not implement http.Hijacker and the upgrade fails with a 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.SecureHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })

	// The rate limiter runs after the auth middleware so the per-user
	// bucket sees the principal, not only the client IP.
	r.With(middleware.RateLimitAPI).Post("/api/auth/register", authH.Register)
	r.With(middleware.RateLimitAPI).Post("/api/auth/login", authH.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(tokenSvc))
		r.Use(middleware.RateLimitAPI)
		r.Get("/api/chat/rooms", roomH.List)
		r.Get("/api/chat/rooms/{roomID}", roomH.Get)
		r.Get("/api/chat/rooms/{roomID}/messages", msgH.Recent)
		r.Get("/api/chat/rooms/{roomID}/messages/recent", msgH.Since)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(tokenSvc))
		r.Use(middleware.RateLimitAPI)
		r.Post("/api/chat/rooms", roomH.Create)
		r.Get("/api/chat/rooms/my", roomH.ListMine)
		r.Post("/api/chat/rooms/{roomID}/join", roomH.Join)
		r.Post("/api/chat/rooms/{roomID}/leave", roomH.Leave)
		r.Post("/api/notify/subscribe", notifyH.Subscribe)
		r.Delete("/api/notify/subscribe", notifyH.Unsubscribe)
		r.Get("/ws", wsH.ServeWS)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := fs.ReadDir(migrations.Files, ".")
	if err != nil {
		logger.Errorf("read migrations: %v", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "portfolio"
		password = "portfolio_secret"
		database = "portfolio"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}

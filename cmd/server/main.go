// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	accountrepository "meishi/internal/account/repository"
	accountservice "meishi/internal/account/service"
	accounthttp "meishi/internal/account/transport/http"
	"meishi/internal/aigen"
	aigenhttp "meishi/internal/aigen/transport/http"
	cardrepository "meishi/internal/card/repository"
	cardservice "meishi/internal/card/service"
	cardhttp "meishi/internal/card/transport/http"
	"meishi/internal/config"
	creditsrepository "meishi/internal/credits/repository"
	creditsservice "meishi/internal/credits/service"
	creditshttp "meishi/internal/credits/transport/http"
	"meishi/internal/identity"
	"meishi/internal/metrics"
	"meishi/pkg/db"
	"meishi/pkg/filedb"
	"meishi/pkg/middleware"
	"meishi/pkg/token"
)

var server *http.Server

func main() {
	fmt.Println("Meishi API starting...")
	cfg := config.Load()
	fmt.Println("Config loaded")

	metrics.InitMetrics()

	// --- ХРАНИЛИЩЕ ---
	var (
		accountRepo accountservice.AccountRepository
		creditsRepo creditsservice.CreditsRepository
		cardRepo    cardservice.CardRepository
	)
	switch cfg.StorageBackend {
	case "postgres":
		database, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Database connection failed: %v", err)
		}
		if err := db.Migrate(database); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Database connected")
		accountRepo = accountrepository.NewPostgresAccountRepository(database)
		creditsRepo = creditsrepository.NewPostgresCreditsRepository(database)
		cardRepo = cardrepository.NewPostgresCardRepository(database)
	case "file":
		store, err := filedb.Open(cfg.FileStorePath)
		if err != nil {
			log.Fatalf("File store open failed: %v", err)
		}
		log.Printf("File store at %s", cfg.FileStorePath)
		accountRepo = accountrepository.NewFileAccountRepository(store)
		creditsRepo = creditsrepository.NewFileCreditsRepository(store)
		cardRepo = cardrepository.NewFileCardRepository(store)
	default:
		log.Fatalf("Unknown storage backend: %s", cfg.StorageBackend)
	}

	// --- ИНИЦИАЛИЗАЦИЯ СЛОЁВ ---
	issuer := token.NewIssuer(cfg.TokenSecret)
	verifier := identity.NewHTTPVerifier(cfg.IdentityVerifyURL)

	accountService := accountservice.NewAccountService(accountRepo)
	creditsService := creditsservice.NewService(creditsRepo)
	cardService := cardservice.NewService(cardRepo, accountService)

	accountHandler := accounthttp.NewAccountHandler(accountService, creditsService, verifier, issuer)
	creditsHandler := creditshttp.NewCreditsHandler(creditsService)
	cardHandler := cardhttp.NewCardHandler(cardService)

	var aiHandler *aigenhttp.Handler
	if cfg.GeminiAPIKey != "" {
		gen, err := aigen.NewGeminiGenerator(context.Background(), cfg.GeminiAPIKey)
		if err != nil {
			log.Fatalf("Gemini client failed: %v", err)
		}
		aiHandler = aigenhttp.NewAIHandler(aigen.NewService(gen, creditsService))
	}

	loginLimiter := middleware.NewRateLimiter(10, time.Minute)

	// --- РОУТЕР ---
	r := chi.NewRouter()

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://localhost:3000", "http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Metrics)

	// Публичные роуты
	r.Group(func(pub chi.Router) {
		pub.Use(loginLimiter.Middleware)
		pub.Post("/auth/login", accountHandler.Login)
	})
	r.Get("/api/credits/plans", creditsHandler.ListPlans)

	// 🔐 Защищённая группа маршрутов
	r.Group(func(pr chi.Router) {
		pr.Use(middleware.SessionAuth(issuer))
		pr.Use(middleware.ValidateRequest)

		pr.Get("/api/permissions", accountHandler.Permissions)

		pr.Get("/api/credits", creditsHandler.GetBalance)
		pr.Post("/api/credits/consume", creditsHandler.Consume)
		pr.Post("/api/credits/topup", creditsHandler.CreateTopup)

		pr.Post("/api/cards", cardHandler.Create)
		pr.Get("/api/cards", cardHandler.List)
		pr.Get("/api/cards/{id}", cardHandler.Get)
		pr.Put("/api/cards/{id}", cardHandler.Update)
		pr.Delete("/api/cards/{id}", cardHandler.Delete)

		if aiHandler != nil {
			pr.Post("/api/ai/generate", aiHandler.Generate)
		}
	})

	// Операторские роуты
	r.Group(func(admin chi.Router) {
		admin.Use(middleware.AdminBasicAuth(cfg.AdminUser, cfg.AdminPasswordHash))

		admin.Get("/admin/topups/pending", creditsHandler.ListPendingTopups)
		admin.Post("/admin/topups/{id}/confirm", creditsHandler.ConfirmTopup)
		admin.Post("/admin/credits/grant", creditsHandler.Grant)
		admin.Post("/admin/accounts/{subjectID}/upgrade", accountHandler.Upgrade)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Group(func(m chi.Router) {
		m.Use(middleware.BasicAuth(cfg.MetricsUser, cfg.MetricsPassword))
		m.Handle("/metrics", promhttp.Handler())
	})

	server = &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	log.Printf("Server running on :%s", cfg.Port)

	// Graceful shutdown на сигналы ОС
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		log.Println("Shutdown signal received, starting graceful shutdown")
		shutdownServer()
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func shutdownServer() {
	log.Println("Starting server shutdown process")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}

	log.Println("Server stopped")
}

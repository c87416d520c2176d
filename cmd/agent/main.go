package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	slackapi "github.com/slack-go/slack"
	"gorm.io/gorm/logger"

	"github.com/xlbiz/incident-agent/internal/classifier"
	"github.com/xlbiz/incident-agent/internal/config"
	"github.com/xlbiz/incident-agent/internal/database"
	"github.com/xlbiz/incident-agent/internal/handlers"
	"github.com/xlbiz/incident-agent/internal/knowledge"
	"github.com/xlbiz/incident-agent/internal/ratelimit"
	"github.com/xlbiz/incident-agent/internal/services"
	slackutil "github.com/xlbiz/incident-agent/internal/slack"
	"github.com/xlbiz/incident-agent/internal/voice"
	"github.com/xlbiz/incident-agent/internal/workers"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting incident agent...")

	// Initialize database connection
	db, err := database.Connect(cfg.DatabaseURL, logger.Warn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	// Run database migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Admission control: redis counters with in-memory fallback
	var backend ratelimit.Backend
	if opts, err := redis.ParseURL(cfg.RedisURL); err != nil {
		log.Printf("Warning: invalid REDIS_URL, rate limiting will use local counters only: %v", err)
	} else {
		backend = ratelimit.NewRedisBackend(redis.NewClient(opts))
		log.Printf("Rate limiting backed by redis at %s", opts.Addr)
	}
	limiter := ratelimit.NewLimiter(backend, ratelimit.Config{
		RequestsPerMinute: cfg.RequestsPerMinute,
		RequestsPerHour:   cfg.RequestsPerHour,
	})

	// Knowledge base similarity search
	matcher := knowledge.NewChromaClient(cfg.KnowledgeBaseURL, cfg.KnowledgeCollection, 10*time.Second)

	// AI classifier
	aiClassifier := classifier.NewOpenAIClassifier(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, 30*time.Second)

	// Slack notifications
	var chat slackutil.ChatNotifier
	if cfg.SlackBotToken != "" {
		routing := slackutil.DefaultRouting()
		if cfg.StakeholderRoutingFile != "" {
			loaded, err := slackutil.LoadRoutingFile(cfg.StakeholderRoutingFile)
			if err != nil {
				log.Printf("Warning: failed to load stakeholder routing file, using defaults: %v", err)
			} else {
				routing = loaded
				log.Printf("Loaded stakeholder routing from %s", cfg.StakeholderRoutingFile)
			}
		}
		chat = slackutil.NewNotifier(slackapi.New(cfg.SlackBotToken), routing)
		log.Printf("Slack notifications enabled")
	} else {
		log.Printf("SLACK_BOT_TOKEN not set, chat notifications disabled")
	}

	// Voice notifications
	voiceConfig := voice.Config{
		Enabled:          cfg.VoiceEnabled,
		AccountSID:       cfg.TwilioAccountSID,
		AuthToken:        cfg.TwilioAuthToken,
		FromNumber:       cfg.TwilioFromNumber,
		DeveloperNumber:  cfg.DeveloperPhoneNumber,
		EscalationNumber: cfg.EscalationPhoneNumber,
	}
	var voiceNotifier voice.Notifier
	if voiceConfig.IsConfigured() {
		voiceNotifier = voice.NewTwilioClient(voiceConfig, 15*time.Second)
		log.Printf("Voice notifications enabled")
	} else {
		log.Printf("Voice notifications disabled (not configured)")
	}

	// Bounded pools isolating integration and AI latency
	integrationPool := workers.NewPool("integration", cfg.IntegrationPoolSize)
	classifierPool := workers.NewPool("classifier", cfg.ClassifierPoolSize)
	defer integrationPool.Close()
	defer classifierPool.Close()

	// Wire the pipeline
	incidentService := services.NewIncidentService(services.IncidentServiceDeps{
		Store:           database.NewIncidentStore(db),
		Voice:           services.NewVoiceService(database.NewVoiceCallStore(db), voiceNotifier),
		Matcher:         matcher,
		Classifier:      aiClassifier,
		Chat:            chat,
		VoiceConfig:     voiceConfig,
		IntegrationPool: integrationPool,
		ClassifierPool:  classifierPool,
		MaxMatches:      cfg.MaxMatches,
		MatchThreshold:  cfg.MatchThreshold,
	})

	// Set up HTTP server routes
	mux := http.NewServeMux()
	handlers.NewIncidentHandler(incidentService).SetupRoutes(mux, limiter)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: mux,
	}

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Printf("Incident trigger endpoint: http://localhost:%d/api/incidents/trigger", cfg.HTTPPort)
	log.Printf("Health check endpoint: http://localhost:%d/health", cfg.HTTPPort)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Received shutdown signal, cleaning up...")
	if err := httpServer.Close(); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}
	integrationPool.Wait()
	classifierPool.Wait()
	log.Println("Shutdown complete")
}

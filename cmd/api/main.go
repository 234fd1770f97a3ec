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

	"github.com/vaidashi/freight-exchange/internal/api"
	"github.com/vaidashi/freight-exchange/internal/auth"
	"github.com/vaidashi/freight-exchange/internal/clients"
	"github.com/vaidashi/freight-exchange/internal/config"
	"github.com/vaidashi/freight-exchange/internal/database"
	"github.com/vaidashi/freight-exchange/internal/handlers"
	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/outbox"
	"github.com/vaidashi/freight-exchange/internal/repository"
	"github.com/vaidashi/freight-exchange/internal/repository/memory"
	"github.com/vaidashi/freight-exchange/internal/service"
	"github.com/vaidashi/freight-exchange/pkg/kafka"
	"github.com/vaidashi/freight-exchange/pkg/logger"
	"github.com/vaidashi/freight-exchange/pkg/retry"
)

// storage is the unit of work plus the event queues of one backend
type storage struct {
	store       repository.Store
	outbox      repository.OutboxStore
	deadLetters repository.DeadLetterStore
	close       func() error
}

func openStorage(cfg *config.Config, l logger.Logger) (*storage, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		l.Warn("Using in-memory store, data is lost on restart")
		mem := memory.NewStore()
		return &storage{
			store:       mem,
			outbox:      mem.Outbox(),
			deadLetters: mem.DeadLetters(),
			close:       func() error { return nil },
		}, nil
	}

	db, err := database.New(cfg, l)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &storage{
		store:       repository.NewPostgresStore(db, l),
		outbox:      repository.NewOutboxRepository(db, l),
		deadLetters: repository.NewDeadLetterRepository(db, l),
		close:       db.Close,
	}, nil
}

func main() {
	cfg, err := config.Load()

	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.NewLogger(cfg.LogLevel)
	l.Info("Starting freight exchange API...", "env", cfg.Env, "store", cfg.StoreDriver)

	st, err := openStorage(cfg, l)
	if err != nil {
		l.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}

	tokens := auth.NewTokenIssuer(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	companies := service.NewCompanyService(st.store, tokens, l)
	sessions := auth.NewSessionCache(cfg.Auth.SessionTTL, companies.LoadSession)
	companies.OnCompanyChanged(sessions.InvalidateCompany)
	notifications := service.NewNotificationService(st.store, l)

	// Outbox delivery: Kafka when enabled, otherwise events are only logged
	var (
		eventHandler outbox.MessageHandler = outbox.NewLoggingHandler(l)
		producer     *kafka.Producer
		consumer     *kafka.Consumer
		events       *handlers.MarketplaceEventsHandler
	)
	if cfg.Kafka.Enabled {
		producer, err = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: "freight-exchange-api",
		}, l)
		if err != nil {
			l.Error("Failed to create Kafka producer", "error", err)
			os.Exit(1)
		}
		eventHandler = outbox.NewKafkaHandler(producer, cfg.Kafka.EventsTopic, l)

		consumer, err = kafka.NewConsumer(&kafka.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topics:        []string{cfg.Kafka.EventsTopic},
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
		}, l)
		if err != nil {
			l.Error("Failed to create Kafka consumer", "error", err)
			os.Exit(1)
		}
		events = handlers.NewMarketplaceEventsHandler(l)
		consumer.RegisterHandler(cfg.Kafka.EventsTopic, events)
	}

	processor := outbox.NewProcessor(st.outbox, st.deadLetters, outbox.ProcessorConfig{
		PollingInterval: cfg.Outbox.PollingInterval,
		BatchSize:       cfg.Outbox.BatchSize,
		MaxRetries:      cfg.Outbox.MaxRetries,
	}, l)
	dlq := outbox.NewDeadLetterProcessor(st.deadLetters, l, &outbox.DeadLetterProcessorConfig{
		PollingInterval: 4 * cfg.Outbox.PollingInterval,
		BatchSize:       cfg.Outbox.BatchSize,
		MaxRetries:      cfg.Outbox.MaxRetries,
		BackoffStrategy: &retry.ExponentialBackoff{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
			Multiplier:      2.0,
			JitterFactor:    0.2,
		},
	})
	for _, eventType := range models.EventTypes {
		processor.RegisterHandler(eventType, eventHandler)
		dlq.RegisterHandler(eventType, eventHandler)
	}

	var documents *clients.DocumentClient
	if cfg.Export.ServiceURL != "" {
		documents = clients.NewDocumentClient(cfg.Export.ServiceURL, cfg.Export.Timeout, l)
	}

	server := api.NewServer(cfg, api.Dependencies{
		Companies:     companies,
		Announcements: service.NewAnnouncementService(st.store, l),
		Offers:        service.NewOfferService(st.store, notifications, l),
		Shipments:     service.NewShipmentService(st.store, l),
		Reviews:       service.NewReviewService(st.store, l),
		Notifications: notifications,
		Reports:       service.NewReportService(st.store, l),
		Tokens:        tokens,
		Sessions:      sessions,
		Outbox:        st.outbox,
		DeadLetters:   st.deadLetters,
		Documents:     documents,
		Events:        events,
		Workers:       []api.Worker{processor, dlq},
	}, l)

	if consumer != nil {
		if err := consumer.Start(); err != nil {
			l.Error("Failed to start Kafka consumer", "error", err)
			os.Exit(1)
		}
	}

	// Start the server in a goroutine
	go func() {
		l.Info(fmt.Sprintf("Server is starting on port %d", cfg.Port))

		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			l.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown via interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	l.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		l.Error("Server forced to shutdown", "error", err)
	}

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			l.Error("Failed to stop Kafka consumer", "error", err)
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			l.Error("Failed to close Kafka producer", "error", err)
		}
	}
	if err := st.close(); err != nil {
		l.Error("Failed to close storage", "error", err)
	}

	l.Info("Server exiting")
}

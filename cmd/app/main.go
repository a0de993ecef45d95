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

	"github.com/asquebay/cafe-order-service/internal/config"
	"github.com/asquebay/cafe-order-service/internal/lib/logger"
	"github.com/asquebay/cafe-order-service/internal/repository/cache"
	"github.com/asquebay/cafe-order-service/internal/repository/postgres"
	"github.com/asquebay/cafe-order-service/internal/service"
	httptransport "github.com/asquebay/cafe-order-service/internal/transport/http"
	"github.com/asquebay/cafe-order-service/internal/transport/kafka"
)

func main() {
	// 1. Инициализация конфигурации
	cfg := config.MustLoad(config.Path())

	// 2. Инициализация логгера
	log := logger.New(cfg.Logger.Level, cfg.Logger.Format)
	log.Info("starting cafe-order-service", slog.String("log_level", cfg.Logger.Level))

	// 3. Инициализация репозиториев (БД)
	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
	dbpool, err := postgres.New(initCtx, cfg.Postgres)
	initCancel()
	if err != nil {
		log.Error("failed to connect to postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer dbpool.Close()
	log.Info("successfully connected to postgres")

	orderRepo := postgres.NewOrderRepository(dbpool)
	menuRepo := postgres.NewMenuRepository(dbpool)

	// 4. Инициализация кэша
	orderCache := cache.NewOrderCache()

	// 5. Продюсер событий, если кафка настроена
	var (
		events   service.EventPublisher
		producer *kafka.Producer
	)
	if cfg.Kafka.Enabled() {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, log)
		events = producer
	} else {
		log.Warn("kafka brokers are not configured, order events and intake are disabled")
	}

	// 6. Инициализация сервисного слоя
	orderSvc := service.NewOrderService(orderRepo, menuRepo, orderCache, events, log)

	// 7. Восстановление кэша из БД при старте
	if err := orderSvc.RestoreCache(context.Background()); err != nil {
		// не фатальная ошибка, сервис может работать и с пустым кэшем
		log.Error("failed to restore cache", slog.String("error", err.Error()))
	}

	// 8. Инициализация и запуск Kafka-консьюмера
	ctx, cancel := context.WithCancel(context.Background())
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled() {
		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.IntakeTopic, cfg.Kafka.GroupID, orderSvc, log)
		go consumer.Run(ctx)
	}

	// 9. Инициализация и запуск HTTP-сервера
	handler := httptransport.NewHandler(orderSvc, log)
	httpServer := httptransport.NewServer(cfg.HTTPServer, handler)
	log.Info("starting http server", slog.String("addr", httpServer.Addr()))

	go func() {
		if err := httpServer.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed to start", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// 10. Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down application")
	cancel() // сигнал для консьюмера на завершение

	if err := httpServer.Shutdown(context.Background(), 5*time.Second); err != nil {
		log.Error("http server shutdown failed", slog.String("error", err.Error()))
	}

	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Error("error closing kafka consumer", slog.String("error", err.Error()))
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Error("error closing kafka producer", slog.String("error", err.Error()))
		}
	}

	log.Info("application stopped")
}

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/asquebay/cafe-order-service/internal/model"

	"github.com/segmentio/kafka-go"
)

// OrderCreator — это интерфейс, который абстрагирует консьюмер
// от конкретной реализации сервисного слоя
type OrderCreator interface {
	CreateOrder(ctx context.Context, req model.CreateOrderRequest, idempotencyKey string) (model.Order, error)
}

// messageReader — часть kafka.Reader, которой пользуется консьюмер
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// паузы между повторами обработки одного и того же сообщения
const (
	defaultRetryBackoff    = 500 * time.Millisecond
	defaultMaxRetryBackoff = 30 * time.Second
)

// Consumer читает заказы из внешних каналов (киоск, агрегатор доставки)
type Consumer struct {
	reader  messageReader
	service OrderCreator
	log     *slog.Logger

	retryBackoff    time.Duration
	maxRetryBackoff time.Duration
}

// NewConsumer создает новый экземпляр консьюмера
func NewConsumer(brokers []string, topic, groupID string, service OrderCreator, log *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   topic,
	})

	return &Consumer{
		reader:          reader,
		service:         service,
		log:             log.With(slog.String("component", "kafka_consumer")),
		retryBackoff:    defaultRetryBackoff,
		maxRetryBackoff: defaultMaxRetryBackoff,
	}
}

// Run запускает цикл чтения сообщений из Kafka
// эта функция блокирующая, поэтому она запускается в отдельной горутине
func (c *Consumer) Run(ctx context.Context) {
	c.log.Info("kafka consumer started")

	for {
		// FetchMessage блокирует до тех пор, пока не придет новое сообщение или не возникнет ошибка
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			// если контекст был отменен во время ожидания, это нормальное завершение
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				c.log.Info("context cancelled, stopping consumer")
				return
			}
			// если ридер был закрыт, тоже выходим
			if errors.Is(err, io.EOF) {
				c.log.Info("kafka reader closed")
				return
			}
			c.log.Error("failed to fetch message", slog.String("error", err.Error()))
			continue
		}

		c.log.Debug("received message",
			slog.String("topic", msg.Topic),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
		)

		// 1. Обрабатываем, повторяя до успеха: FetchMessage уже сдвинул offset,
		// и следующий коммит перепрыгнул бы через необработанное сообщение
		if err := c.handleWithRetry(ctx, msg); err != nil {
			// сообщение НЕ подтверждаем, после рестарта группа прочитает его снова
			c.log.Info("context cancelled, stopping consumer before commit",
				slog.Int64("offset", msg.Offset),
			)
			return
		}

		// 2. Всё прошло — фиксируем offset
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("failed to commit message", slog.String("error", err.Error()))
		}
	}
}

// handleWithRetry вызывает handleMessage, пока он не пройдёт или не отменят контекст
// пауза между попытками растёт вдвое до maxRetryBackoff
func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message) error {
	backoff := c.retryBackoff
	for attempt := 1; ; attempt++ {
		err := c.handleMessage(ctx, msg)
		if err == nil {
			return nil
		}
		c.log.Error("failed to handle message, will retry",
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt),
			slog.Int64("offset", msg.Offset),
			slog.Duration("backoff", backoff),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, c.maxRetryBackoff)
	}
}

// handleMessage парсит и обрабатывает одно сообщение
// nil означает, что сообщение можно подтверждать: оно обработано или перечитывать его бессмысленно
func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message) error {
	var intake model.IntakeMessage

	if err := json.Unmarshal(msg.Value, &intake); err != nil {
		c.log.Warn("failed to unmarshal message, skipping", slog.String("error", err.Error()))
		return nil
	}

	// без явного ключа берём ключ сообщения: повторная доставка не создаст второй заказ
	key := intake.IdempotencyKey
	if key == "" {
		key = string(msg.Key)
	}

	order, err := c.service.CreateOrder(ctx, intake.Order, key)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			c.log.Warn("message validation failed, skipping",
				slog.String("error", err.Error()),
				slog.String("idempotency_key", key),
			)
			return nil
		}
		return err
	}

	c.log.Info("order successfully processed",
		slog.Int64("order_id", order.ID),
		slog.String("idempotency_key", key),
	)
	return nil
}

// Close — graceful shutdown консьюмера
func (c *Consumer) Close() error {
	c.log.Info("closing kafka consumer")
	return c.reader.Close()
}

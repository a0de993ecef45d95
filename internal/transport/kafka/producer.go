package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/asquebay/cafe-order-service/internal/model"

	"github.com/segmentio/kafka-go"
)

// messageWriter — часть kafka.Writer, которой пользуется Producer
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer публикует события о заказах
// ключ сообщения — id заказа, поэтому события одного заказа попадают в одну партицию по порядку
type Producer struct {
	writer messageWriter
	log    *slog.Logger
}

// NewProducer создает продюсер событий
func NewProducer(brokers []string, topic string, log *slog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		log:    log.With(slog.String("component", "kafka_producer")),
	}
}

// Publish отправляет событие
func (p *Producer) Publish(ctx context.Context, event model.OrderEvent) error {
	const op = "transport.kafka.Producer.Publish"

	msg, err := eventMessage(event)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%s: failed to write message: %w", op, err)
	}

	p.log.Debug("order event published",
		slog.Int64("order_id", event.OrderID),
		slog.String("status", string(event.Status)),
	)
	return nil
}

// Close дожидается отправки буфера и закрывает writer
func (p *Producer) Close() error {
	p.log.Info("closing kafka producer")
	return p.writer.Close()
}

func eventMessage(event model.OrderEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(strconv.FormatInt(event.OrderID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("order." + string(event.Status))},
		},
	}, nil
}

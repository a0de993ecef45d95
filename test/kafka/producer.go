// этот код не зависит от приложения,
// и нужен только для ручной проверки приёма заказов через кафку
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/asquebay/cafe-order-service/internal/config"
	"github.com/asquebay/cafe-order-service/internal/model"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

func main() {
	// брокеры и топик берём из того же конфига, что и сервис
	cfg := config.MustLoad(config.Path())
	if !cfg.Kafka.Enabled() {
		log.Fatal("kafka brokers are not configured")
	}

	intake := model.IntakeMessage{
		IdempotencyKey: uuid.NewString(),
		Order: model.CreateOrderRequest{
			Items: []model.OrderItemRequest{
				{MenuItem: 1, Quantity: 2, Price: decimal.RequireFromString("120.00")},
				{MenuItem: 2, Quantity: 1, Price: decimal.RequireFromString("80.50")},
			},
			TableUniqueID:       "kiosk-table-1",
			SpecialInstructions: "sent from the kiosk test producer",
		},
	}
	value, err := json.Marshal(intake)
	if err != nil {
		log.Fatalf("failed to marshal message: %v", err)
	}

	// настройки писателя (producer-а)
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.IntakeTopic,
		Balancer: &kafka.LeastBytes{},
	}
	defer writer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Println("Sending intake message to Kafka...")
	err = writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(intake.IdempotencyKey),
		Value: value,
	})
	if err != nil {
		log.Fatalf("Failed to write message: %v", err)
	}
	fmt.Printf("Message sent, idempotency key %s\n", intake.IdempotencyKey)
}

package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/lifeline/internal/models"
)

// LocationPing is the wire format for responder location updates flowing
// through Kafka to the geo-index consumer.
type LocationPing struct {
	AccountID  string            `json:"account_id"`
	Role       models.Role       `json:"role"`
	Location   models.Point      `json:"location"`
	Available  bool              `json:"available"`
	BloodGroup models.BloodGroup `json:"blood_group,omitempty"`
	At         time.Time         `json:"at"`
}

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaProducer{writer: w}
}

func (k *KafkaProducer) PublishLocation(p LocationPing) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(p)
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(p.AccountID), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

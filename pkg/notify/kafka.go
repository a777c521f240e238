package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/harborview/voicedesk/internal/log"
)

// DefaultKafkaTopic is the topic reservation change events are written to.
const DefaultKafkaTopic = "voicedesk.reservation-changes"

// KafkaSink forwards change events to a Kafka topic, keyed by
// reservation ID so changes to one reservation stay ordered.
type KafkaSink struct {
	writer *kafka.Writer
	topic  string
}

// KafkaConfig holds Kafka sink configuration.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// NewKafkaSink creates a sink writing to the configured brokers.
func NewKafkaSink(cfg KafkaConfig) *KafkaSink {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultKafkaTopic
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	log.Info("kafka change-event sink initialized",
		"brokers", cfg.Brokers, "topic", topic)

	return &KafkaSink{writer: writer, topic: topic}
}

// Publish writes one change event to the topic.
func (s *KafkaSink) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(strconv.Itoa(e.ReservationID)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("reservation-change")},
		},
	}

	return s.writer.WriteMessages(ctx, msg)
}

// Close closes the Kafka writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// Ensure KafkaSink implements Sink
var _ Sink = (*KafkaSink)(nil)

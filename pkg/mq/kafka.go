package mq

import (
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
)

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Enabled bool     `toml:"enabled"`
}

// Validate checks Kafka configuration
func (c *KafkaConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers is required when kafka is enabled")
	}
	return nil
}

// KafkaProducer publishes messages to Kafka
type KafkaProducer struct {
	logger *slog.Logger
	client sarama.SyncProducer
}

var _ Publisher = (*KafkaProducer)(nil)

// NewKafkaProducer creates a Kafka producer. Returns (nil, nil) when Kafka
// is disabled; a nil producer is safe to use and drops messages.
func NewKafkaProducer(config KafkaConfig) (*KafkaProducer, error) {
	if !config.Enabled {
		return nil, nil
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3

	client, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return &KafkaProducer{
		logger: slog.Default().With("module", "kafka-producer"),
		client: client,
	}, nil
}

// Publish sends a message to the topic
func (p *KafkaProducer) Publish(topic string, message []byte) error {
	if p == nil {
		return nil
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(message),
	}

	partition, offset, err := p.client.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.Debug("message sent",
		"topic", topic,
		"partition", partition,
		"offset", offset,
	)

	return nil
}

// Close closes the producer
func (p *KafkaProducer) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// Package kafka provides a trigger type that fires on messages consumed from
// a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

var (
	// ErrTopicMissing is returned when the settings carry no topic.
	ErrTopicMissing = errors.New("kafka trigger 'topic' is required")
	// ErrBrokersMissing is returned when no brokers are configured.
	ErrBrokersMissing = errors.New("kafka trigger brokers are required")
)

const (
	sessionTimeout    = 10 * time.Second
	heartbeatInterval = 3 * time.Second
	consumeRetryDelay = 5 * time.Second
)

func NewDetectorFactory() protocol.DetectorFactory {
	return &DetectorFactory{}
}

type DetectorFactory struct{}

func (f *DetectorFactory) ID() string {
	return "kafka"
}

func (f *DetectorFactory) Schema() map[string]any {
	return map[string]any{
		"type":        "object",
		"title":       "Kafka Trigger Settings",
		"description": "Settings for Kafka topic triggering",
		"properties": map[string]any{
			"topic": map[string]any{
				"type":        "string",
				"description": "Topic to consume",
			},
			"consumer_group": map[string]any{
				"type":        "string",
				"description": "Consumer group ID",
				"default":     "conveyor-triggers",
			},
			"brokers": map[string]any{
				"type":        "string",
				"description": "Comma-separated broker addresses; falls back to KAFKA_BROKERS",
				"examples":    []string{"localhost:9092", "broker-1:9092,broker-2:9092"},
			},
		},
		"required": []string{"topic"},
	}
}

func (f *DetectorFactory) Create(settings map[string]any, logger *slog.Logger) (protocol.Detector, error) {
	return NewDetector(settings, logger)
}

type Detector struct {
	Topic         string
	ConsumerGroup string
	Brokers       []string

	consumer sarama.ConsumerGroup
	cancel   context.CancelFunc
	logger   *slog.Logger
}

func NewDetector(settings map[string]any, logger *slog.Logger) (*Detector, error) {
	topic, _ := settings["topic"].(string)

	consumerGroup, _ := settings["consumer_group"].(string)
	if consumerGroup == "" {
		consumerGroup = "conveyor-triggers"
	}

	brokersStr, _ := settings["brokers"].(string)
	if brokersStr == "" {
		brokersStr = os.Getenv("KAFKA_BROKERS")
		if brokersStr == "" {
			brokersStr = "localhost:9092"
		}
	}

	brokers := strings.Split(brokersStr, ",")
	for i, broker := range brokers {
		brokers[i] = strings.TrimSpace(broker)
	}

	detector := &Detector{
		Topic:         topic,
		ConsumerGroup: consumerGroup,
		Brokers:       brokers,
		logger: logger.With(
			"module", "kafka_trigger",
			"topic", topic,
			"consumer_group", consumerGroup,
		),
	}

	err := detector.Validate()
	if err != nil {
		return nil, err
	}

	return detector, nil
}

func (d *Detector) Validate() error {
	if d.Topic == "" {
		return ErrTopicMissing
	}

	if len(d.Brokers) == 0 {
		return ErrBrokersMissing
	}

	return nil
}

func (d *Detector) Start(ctx context.Context, fire protocol.FireFunc) error {
	d.logger.InfoContext(ctx, "Starting kafka detection loop")

	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Group.Session.Timeout = sessionTimeout
	config.Consumer.Group.Heartbeat.Interval = heartbeatInterval
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumerGroup(d.Brokers, d.ConsumerGroup, config)
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)
	d.consumer = consumer
	d.cancel = cancel

	go d.consume(consumeCtx, fire)
	go d.monitorErrors(consumeCtx)

	return nil
}

func (d *Detector) consume(ctx context.Context, fire protocol.FireFunc) {
	handler := &consumerGroupHandler{detector: d, fire: fire}

	for {
		select {
		case <-ctx.Done():
			return
		default:
			err := d.consumer.Consume(ctx, []string{d.Topic}, handler)
			if err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}

				d.logger.Error("Kafka consume error", "error", err)
				time.Sleep(consumeRetryDelay)
			}
		}
	}
}

func (d *Detector) monitorErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-d.consumer.Errors():
			if !ok {
				return
			}

			d.logger.Error("Kafka consumer group error", "error", err)
		}
	}
}

func (d *Detector) Stop(ctx context.Context) error {
	d.logger.InfoContext(ctx, "Stopping kafka detection loop")

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}

	if d.consumer != nil {
		err := d.consumer.Close()
		d.consumer = nil

		if err != nil {
			return fmt.Errorf("failed to close kafka consumer: %w", err)
		}
	}

	return nil
}

type consumerGroupHandler struct {
	detector *Detector
	fire     protocol.FireFunc
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()

	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			var body any

			err := json.Unmarshal(message.Value, &body)
			if err != nil {
				body = string(message.Value)
			}

			payload := map[string]any{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
				"key":       string(message.Key),
				"message":   body,
			}

			err = h.fire(ctx, payload)
			if err != nil {
				h.detector.logger.Error("Kafka fire failed", "error", err)
			}

			// At-least-once into the queue: mark after the fire is handed off.
			session.MarkMessage(message, "")
		}
	}
}

// Package queue provides a trigger type that fires on messages popped from a
// Redis list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/conveyor-automation/conveyor/pkg/protocol"
)

// ErrQueueMissing is returned when the settings carry no queue name.
var ErrQueueMissing = errors.New("queue trigger 'queue' is required")

const popTimeout = 5 * time.Second

func NewDetectorFactory() protocol.DetectorFactory {
	return &DetectorFactory{}
}

type DetectorFactory struct{}

func (f *DetectorFactory) ID() string {
	return "queue"
}

func (f *DetectorFactory) Schema() map[string]any {
	return map[string]any{
		"type":        "object",
		"title":       "Queue Trigger Settings",
		"description": "Settings for Redis list triggering",
		"properties": map[string]any{
			"queue": map[string]any{
				"type":        "string",
				"description": "Redis list to consume",
			},
			"connection": map[string]any{
				"type":        "object",
				"description": "Redis connection settings",
				"properties": map[string]any{
					"addr":     map[string]any{"type": "string", "default": "localhost:6379"},
					"password": map[string]any{"type": "string"},
					"db":       map[string]any{"type": "string", "default": "0"},
				},
			},
		},
		"required": []string{"queue"},
	}
}

func (f *DetectorFactory) Create(settings map[string]any, logger *slog.Logger) (protocol.Detector, error) {
	return NewDetector(settings, logger)
}

type Detector struct {
	Queue      string
	Connection map[string]string

	client redis.UniversalClient
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewDetector(settings map[string]any, logger *slog.Logger) (*Detector, error) {
	queue, _ := settings["queue"].(string)

	connection := make(map[string]string)

	if connectionConfig, ok := settings["connection"].(map[string]any); ok {
		for k, v := range connectionConfig {
			if str, ok := v.(string); ok {
				connection[k] = str
			}
		}
	}

	detector := &Detector{
		Queue:      queue,
		Connection: connection,
		logger: logger.With(
			"module", "queue_trigger",
			"queue", queue,
		),
	}

	err := detector.Validate()
	if err != nil {
		return nil, err
	}

	return detector, nil
}

func (d *Detector) Validate() error {
	if d.Queue == "" {
		return ErrQueueMissing
	}

	return nil
}

func (d *Detector) Start(ctx context.Context, fire protocol.FireFunc) error {
	d.logger.InfoContext(ctx, "Starting queue detection loop")

	addr := d.Connection["addr"]
	if addr == "" {
		addr = "localhost:6379"
	}

	db := 0

	if dbStr := d.Connection["db"]; dbStr != "" {
		parsed, err := strconv.Atoi(dbStr)
		if err != nil {
			return fmt.Errorf("invalid redis db value %q: %w", dbStr, err)
		}

		db = parsed
	}

	d.client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: d.Connection["password"],
		DB:       db,
	})

	err := d.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	d.stopCh = make(chan struct{})
	d.wg.Add(1)

	go d.consume(ctx, fire)

	return nil
}

func (d *Detector) consume(ctx context.Context, fire protocol.FireFunc) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		default:
		}

		result, err := d.client.BLPop(ctx, popTimeout, d.Queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}

			d.logger.Error("Queue pop failed", "error", err)
			time.Sleep(time.Second)

			continue
		}

		// BLPop returns [key, value].
		if len(result) < 2 {
			continue
		}

		var body any

		err = json.Unmarshal([]byte(result[1]), &body)
		if err != nil {
			body = result[1]
		}

		payload := map[string]any{
			"queue":   d.Queue,
			"message": body,
		}

		err = fire(ctx, payload)
		if err != nil {
			d.logger.Error("Queue fire failed", "error", err)
		}
	}
}

func (d *Detector) Stop(ctx context.Context) error {
	d.logger.InfoContext(ctx, "Stopping queue detection loop")

	if d.stopCh != nil {
		close(d.stopCh)
		d.stopCh = nil
	}

	if d.client != nil {
		err := d.client.Close()
		d.client = nil

		if err != nil {
			return fmt.Errorf("failed to close redis client: %w", err)
		}
	}

	d.wg.Wait()

	return nil
}

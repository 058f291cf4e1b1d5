// Package eventbus provides the publish/subscribe infrastructure carrying
// run and job lifecycle events between processes.
package eventbus

import (
	"context"

	"github.com/conveyor-automation/conveyor/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	Publish(ctx context.Context, key string, event Event) error
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
	Close() error
	GenerateID() string
}

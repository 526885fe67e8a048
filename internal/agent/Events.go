/*

This file contains the agent's lifecycle event bus. Emission is synchronous
and in subscription order; a panicking subscriber is recovered and logged so
it cannot stall the cycle that emitted the event.

*/

package agent

import (
	"sync"
	"time"

	"github.com/elys-network/ara/internal/logger"
	"github.com/elys-network/ara/internal/types"
	"github.com/rs/zerolog"
)

// EventHandler receives one lifecycle event. Handlers run on the emitting
// goroutine and should return quickly.
type EventHandler func(types.Event)

type eventBus struct {
	logger   zerolog.Logger
	mu       sync.Mutex
	handlers []EventHandler
}

func newEventBus() *eventBus {
	return &eventBus{logger: logger.GetForComponent("agent_events")}
}

func (b *eventBus) subscribe(handler EventHandler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
}

func (b *eventBus) emit(eventType types.EventType, message string, data map[string]any) {
	event := types.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Message:   message,
		Data:      data,
	}

	b.mu.Lock()
	handlers := make([]EventHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error().
						Interface("panic", r).
						Str("event", string(eventType)).
						Msg("Event handler panicked")
				}
			}()
			handler(event)
		}()
	}
}

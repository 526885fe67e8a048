package notify

import (
	"github.com/elys-network/ara/internal/logger"
	"github.com/rs/zerolog"
)

// Level grades a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Sink receives fire-and-forget notifications. Implementations must never
// fail the triggering operation; anything that can go wrong stays inside.
type Sink interface {
	Notify(level Level, title, message string, data map[string]any)
}

// ConsoleSink writes notifications to the structured log.
type ConsoleSink struct {
	logger zerolog.Logger
}

// NewConsoleSink creates a log-backed notification sink.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{logger: logger.GetForComponent("notifier")}
}

func (s *ConsoleSink) Notify(level Level, title, message string, data map[string]any) {
	event := s.logger.Info()
	switch level {
	case LevelWarning:
		event = s.logger.Warn()
	case LevelError:
		event = s.logger.Error()
	}
	event.Str("title", title).Fields(data).Msg(message)
}

// MultiSink fans a notification out to several sinks, isolating panics so a
// broken sink cannot take the triggering operation down with it.
type MultiSink struct {
	logger zerolog.Logger
	sinks  []Sink
}

// NewMultiSink creates a fan-out sink.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{
		logger: logger.GetForComponent("notifier"),
		sinks:  sinks,
	}
}

func (m *MultiSink) Notify(level Level, title, message string, data map[string]any) {
	for _, sink := range m.sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error().Interface("panic", r).Msg("Notification sink panicked")
				}
			}()
			sink.Notify(level, title, message, data)
		}()
	}
}

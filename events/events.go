// Package events carries the structured outcome events of the upload
// pipeline to whoever is listening: the log, websocket clients, tests.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/camden-git/photopipeline/logger"
)

const (
	PhotoUploaded     = "photo.uploaded"
	PhotoUploadFailed = "photo.upload_failed"
	PhotoStage        = "photo.stage"
)

// Event is one structured pipeline event
type Event struct {
	Name      string         `json:"name"`
	PhotoID   uint           `json:"photo_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// New stamps an event with the current time
func New(name string, photoID uint, payload map[string]any) Event {
	return Event{Name: name, PhotoID: photoID, Payload: payload, Timestamp: time.Now().UTC()}
}

// Sink receives events. Publish must not block the caller for long and
// never fails the pipeline.
type Sink interface {
	Publish(ctx context.Context, event Event)
}

// LogSink writes every event as a structured log line
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log.WithComponent("events")}
}

func (s *LogSink) Publish(ctx context.Context, event Event) {
	args := make([]any, 0, 4+len(event.Payload)*2)
	args = append(args, "event", event.Name, "photo_id", event.PhotoID)
	for k, v := range event.Payload {
		args = append(args, k, v)
	}
	switch event.Name {
	case PhotoUploadFailed:
		s.log.ErrorContext(ctx, "photo event", args...)
	case PhotoStage:
		s.log.DebugContext(ctx, "photo event", args...)
	default:
		s.log.InfoContext(ctx, "photo event", args...)
	}
}

// MultiSink fans an event out to several sinks in order
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(ctx, event)
		}
	}
}

// MemorySink records events; used by tests
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemorySink) Publish(_ context.Context, event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// Events returns a copy of everything published so far
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Named returns the recorded events with the given name
func (m *MemorySink) Named(name string) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Package events provides job lifecycle events for observers: an
// in-process fan-out plus an optional Redis Streams mirror.
package events

import (
	"sync"
	"time"
)

// Type identifies the type of job event.
type Type string

const (
	EventJobQueued    Type = "job.queued"
	EventJobDelivered Type = "job.delivered"
	EventJobDeleted   Type = "job.deleted"
	EventJobAborted   Type = "job.aborted"
	EventJobRequeued  Type = "job.requeued"
)

// Event records one job lifecycle transition.
type Event struct {
	Type      Type      `json:"type"`
	JobID     uint32    `json:"job_id"`
	Queue     string    `json:"queue,omitempty"`
	Pri       uint32    `json:"pri"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives published events. Implementations must not block.
type Sink interface {
	Publish(Event)
}

// Publisher fans events out to registered sinks. A nil Publisher is valid
// and drops everything, so callers need no enabled-check.
type Publisher struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewPublisher creates an empty publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Attach registers a sink.
func (p *Publisher) Attach(sink Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, sink)
}

// Publish stamps the event and delivers it to every sink.
func (p *Publisher) Publish(event Event) {
	if p == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, sink := range p.sinks {
		sink.Publish(event)
	}
}

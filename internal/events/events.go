// Package events fans event lifecycle notifications out to external sinks
// (webhook, Redis pub/sub, Kafka) with retries and a dead letter queue.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "scheditor/internal/log"
	"scheditor/internal/metrics"
	"scheditor/internal/model"
)

// Notification names.
const (
	NameCreate = "event.create"
	NameEdit   = "event.edit"
	NameDelete = "event.delete"
)

// Event represents a notification payload.
type Event struct {
	Name string    `json:"name"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
	ID   string    `json:"id"`
}

// Lifecycle builds the notification for a committed action. Deletes carry
// only the id.
func Lifecycle(action model.Action, rec model.EventRecord) Event {
	e := Event{ID: uuid.NewString(), Time: time.Now().UTC()}
	switch action {
	case model.ActionCreate:
		e.Name, e.Data = NameCreate, rec
	case model.ActionEdit:
		e.Name, e.Data = NameEdit, rec
	default:
		e.Name, e.Data = NameDelete, map[string]string{"event_id": rec.ID}
	}
	return e
}

// Sink publishes events.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// DLQ stores failed events.
type DLQ interface {
	Store(ctx context.Context, e Event, attempts int, lastErr string) error
}

// Config provides dispatcher settings.
type Config struct {
	Sinks struct {
		Webhook WebhookConfig `yaml:"webhook" json:"webhook"`
		Redis   RedisConfig   `yaml:"redis" json:"redis"`
		Kafka   KafkaConfig   `yaml:"kafka" json:"kafka"`
	} `yaml:"sinks" json:"sinks"`
	Retry RetryConfig `yaml:"retry" json:"retry"`
	// DLQPath is a JSON lines file for events that exhausted their retries.
	DLQPath string `yaml:"dlq_path,omitempty" json:"dlq_path,omitempty"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
}

// Dispatcher broadcasts events to multiple sinks with retries.
type Dispatcher struct {
	sinks        []Sink
	maxAttempts  int
	initialDelay time.Duration
	dlq          DLQ

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher from sinks and retry config. Nil
// sinks are skipped.
func NewDispatcher(cfg Config, dlq DLQ, sinks ...Sink) *Dispatcher {
	d := &Dispatcher{maxAttempts: 3, initialDelay: time.Second}
	if cfg.Retry.MaxAttempts > 0 {
		d.maxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialDelay > 0 {
		d.initialDelay = cfg.Retry.InitialDelay
	}
	for _, s := range sinks {
		if s != nil {
			d.sinks = append(d.sinks, s)
		}
	}
	d.dlq = dlq
	return d
}

// FromConfig builds every enabled sink and the file DLQ. The returned
// closer releases sink connections.
func FromConfig(cfg Config) (*Dispatcher, func() error, error) {
	var (
		sinks   []Sink
		closers []func() error
	)
	if wh := NewWebhookSink(cfg.Sinks.Webhook); wh != nil {
		sinks = append(sinks, wh)
	}
	rs, err := NewRedisSink(cfg.Sinks.Redis)
	if err != nil {
		return nil, nil, err
	}
	if rs != nil {
		sinks = append(sinks, rs)
		closers = append(closers, rs.Client.Close)
	}
	ks, err := NewKafkaSink(cfg.Sinks.Kafka)
	if err != nil {
		return nil, nil, err
	}
	if ks != nil {
		sinks = append(sinks, ks)
		closers = append(closers, ks.Close)
	}

	var dlq DLQ
	if cfg.DLQPath != "" {
		dlq = &FileDLQ{Path: cfg.DLQPath}
	}
	d := NewDispatcher(cfg, dlq, sinks...)
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}
	return d, closeAll, nil
}

// Len returns the number of sinks.
func (d *Dispatcher) Len() int { return len(d.sinks) }

// Dispatch sends the event to all sinks asynchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) {
	for _, s := range d.sinks {
		sink := s
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.retrySend(ctx, sink, e)
		}()
	}
}

// Wait blocks until every in-flight dispatch finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) retrySend(ctx context.Context, s Sink, e Event) {
	delay := d.initialDelay
	var err error
	for i := 1; ; i++ {
		if err = s.Emit(ctx, e); err == nil {
			return
		}
		if i >= d.maxAttempts {
			break
		}
		if !sleep(ctx, delay) {
			err = errors.Join(err, ctx.Err())
			break
		}
		delay *= 2
	}

	metrics.NotifyErrors.WithLabelValues(e.Name).Inc()
	appLog.Error("notification failed", err, "name", e.Name, "id", e.ID)
	if d.dlq != nil {
		if derr := d.dlq.Store(context.WithoutCancel(ctx), e, d.maxAttempts, err.Error()); derr != nil {
			appLog.Error("dead letter store failed", derr, "name", e.Name, "id", e.ID)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

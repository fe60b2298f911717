package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shellbot/shellbot/pkg/types"
)

const (
	// StreamName is the JetStream stream holding sandbox lifecycle events.
	StreamName    = "SHELLBOT_EVENTS"
	subjectPrefix = "shellbot.sandbox"
	queueSize     = 256
)

// Publisher forwards sandbox lifecycle events to NATS JetStream. Events are
// queued and published from a background loop so the lifecycle manager never
// waits on the broker.
type Publisher struct {
	nc       *nats.Conn
	js       nats.JetStreamContext
	instance string
	queue    chan types.SandboxEvent
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NATSEvent is the JSON payload published to NATS.
type NATSEvent struct {
	types.SandboxEvent
	Instance string `json:"instance"`
}

// NewPublisher connects to NATS and ensures the event stream exists.
func NewPublisher(natsURL, instance string) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("shellbot-"+instance),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{subjectPrefix + ".>"},
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil {
		// Stream may already exist, that's OK
		log.Printf("events: stream setup: %v", err)
	}

	return newPublisher(nc, js, instance), nil
}

func newPublisher(nc *nats.Conn, js nats.JetStreamContext, instance string) *Publisher {
	return &Publisher{
		nc:       nc,
		js:       js,
		instance: instance,
		queue:    make(chan types.SandboxEvent, queueSize),
		stop:     make(chan struct{}),
	}
}

// SandboxEvent queues ev for publishing. It never blocks; when the queue is
// full the event is dropped and logged.
func (p *Publisher) SandboxEvent(_ context.Context, ev types.SandboxEvent) {
	select {
	case p.queue <- ev:
	default:
		log.Printf("events: queue full, dropping %s event %s", ev.Type, ev.ID)
	}
}

// Start begins the publish loop.
func (p *Publisher) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case ev := <-p.queue:
				p.publish(ev)
			case <-p.stop:
				// Final flush
				for {
					select {
					case ev := <-p.queue:
						p.publish(ev)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop flushes queued events and closes the NATS connection.
func (p *Publisher) Stop() {
	close(p.stop)
	p.wg.Wait()
	p.nc.Close()
}

func (p *Publisher) publish(ev types.SandboxEvent) {
	data, err := json.Marshal(NATSEvent{SandboxEvent: ev, Instance: p.instance})
	if err != nil {
		log.Printf("events: marshal %s: %v", ev.ID, err)
		return
	}
	if _, err := p.js.Publish(Subject(p.instance, ev.Type), data, nats.MsgId(ev.ID)); err != nil {
		log.Printf("events: publish %s event: %v", ev.Type, err)
	}
}

// Subject returns the NATS subject for an event from instance.
func Subject(instance string, typ types.SandboxEventType) string {
	return fmt.Sprintf("%s.%s.%s", subjectPrefix, token(instance), token(string(typ)))
}

// token makes s safe to use as a single subject token.
func token(s string) string {
	s = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
	if s == "" {
		return "_"
	}
	return s
}

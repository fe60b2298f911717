package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shellbot/shellbot/pkg/types"
)

const (
	beaconInterval = 10 * time.Second
	beaconTTL      = 30 * time.Second
	// BeaconChannel carries a status payload on every lifecycle event.
	BeaconChannel = "shellbot:sandbox"
)

// beaconPayload is the JSON structure written to Redis.
type beaconPayload struct {
	Instance  string              `json:"instance"`
	Status    types.SandboxStatus `json:"status"`
	LastEvent *types.SandboxEvent `json:"last_event,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Beacon publishes the sandbox status to Redis so other tools can see which
// distro an instance is running. Each beacon:
//  1. SETs shellbot:sandbox:{instance} with a 30s TTL (auto-expires if the bot dies)
//  2. PUBLISHes to shellbot:sandbox for real-time notification
type Beacon struct {
	rdb      *redis.Client
	instance string
	status   func() types.SandboxStatus
	events   chan types.SandboxEvent
	stop     chan struct{}
	done     chan struct{}
}

// NewBeacon connects to Redis. status is polled for every beacon.
func NewBeacon(redisURL, instance string, status func() types.SandboxStatus) (*Beacon, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Beacon{
		rdb:      rdb,
		instance: instance,
		status:   status,
		events:   make(chan types.SandboxEvent, queueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// SandboxEvent schedules an immediate beacon carrying ev. It never blocks.
func (b *Beacon) SandboxEvent(_ context.Context, ev types.SandboxEvent) {
	select {
	case b.events <- ev:
	default:
		log.Printf("redis_beacon: queue full, dropping %s event", ev.Type)
	}
}

// Start begins publishing beacons every 10 seconds and on every event.
func (b *Beacon) Start() {
	go func() {
		defer close(b.done)

		// Publish immediately on start
		b.publish(nil)

		ticker := time.NewTicker(beaconInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				b.publish(nil)
			case ev := <-b.events:
				b.publish(&ev)
			case <-b.stop:
				return
			}
		}
	}()
}

func (b *Beacon) publish(ev *types.SandboxEvent) {
	data, err := json.Marshal(beaconPayload{
		Instance:  b.instance,
		Status:    b.status(),
		LastEvent: ev,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("redis_beacon: marshal error: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.rdb.Set(ctx, BeaconKey(b.instance), data, beaconTTL).Err(); err != nil {
		log.Printf("redis_beacon: SET failed: %v", err)
	}
	if ev == nil {
		return
	}
	if err := b.rdb.Publish(ctx, BeaconChannel, data).Err(); err != nil {
		log.Printf("redis_beacon: PUBLISH failed: %v", err)
	}
}

// Stop stops the beacon, removes its key and closes the Redis connection.
func (b *Beacon) Stop() {
	close(b.stop)
	<-b.done

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b.rdb.Del(ctx, BeaconKey(b.instance))

	b.rdb.Close()
	log.Println("redis_beacon: stopped")
}

// BeaconKey is the Redis key holding an instance's status.
func BeaconKey(instance string) string {
	return "shellbot:sandbox:" + instance
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

// JobEvent is a lifecycle notification published as jobs move through their
// pipelines. Consumers (ops dashboards, tail scripts) subscribe out of band.
type JobEvent struct {
	JobID      string    `json:"job_id"`
	JobType    string    `json:"job_type"`
	EntityType string    `json:"entity_type,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	Status     string    `json:"status"`
	Stage      string    `json:"stage,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

type JobBus interface {
	Publish(ctx context.Context, ev JobEvent) error
	StartForwarder(ctx context.Context, onEvent func(ev JobEvent)) error
	Close() error
}

type jobBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewJobBus(log *logger.Logger) (JobBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_JOB_CHANNEL"))
	if ch == "" {
		ch = "jobs"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &jobBus{
		log:     log.With("service", "RedisJobBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *jobBus) Publish(ctx context.Context, ev JobEvent) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis job bus not initialized")
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *jobBus) StartForwarder(ctx context.Context, onEvent func(ev JobEvent)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis job bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var ev JobEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad redis job event payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()

	return nil
}

func (b *jobBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

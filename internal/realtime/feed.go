// Package realtime fans lead changes out over Redis pub/sub so every API
// instance can push them to connected clients.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "crm:changes"

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event describes one row change. PoolChanged is set when the row entered,
// left or changed inside the pool.
type Event struct {
	Table              string    `json:"table"`
	Op                 Op        `json:"op"`
	ID                 string    `json:"id"`
	AssignedTo         string    `json:"assigned_to,omitempty"`
	PreviousAssignedTo string    `json:"previous_assigned_to,omitempty"`
	PoolChanged        bool      `json:"pool_changed"`
	At                 time.Time `json:"at"`
}

// VisibleTo reports whether a team member should see e: pool changes and
// changes to leads they hold or just lost.
func (e Event) VisibleTo(userID string) bool {
	if e.PoolChanged {
		return true
	}
	return userID != "" && (e.AssignedTo == userID || e.PreviousAssignedTo == userID)
}

// Feed publishes and subscribes to change events on one channel.
type Feed struct {
	rdb     *redis.Client
	channel string
}

func NewFeed(rdb *redis.Client, channel string) *Feed {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Feed{rdb: rdb, channel: channel}
}

func (f *Feed) Publish(ctx context.Context, e Event) error {
	if f == nil || f.rdb == nil {
		return errors.New("realtime: feed not configured")
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, f.channel, b).Err()
}

// Subscribe streams events until ctx is done. The returned channel is closed
// when the subscription ends.
func (f *Feed) Subscribe(ctx context.Context) (<-chan Event, error) {
	if f == nil || f.rdb == nil {
		return nil, errors.New("realtime: feed not configured")
	}
	sub := f.rdb.Subscribe(ctx, f.channel)
	// Wait for the subscription confirmation so no publish is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(m.Payload), &e); err != nil {
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

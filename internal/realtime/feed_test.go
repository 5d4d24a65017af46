package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFeed(t *testing.T) *Feed {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFeed(rdb, "")
}

func TestFeed_PublishSubscribe(t *testing.T) {
	feed := newTestFeed(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := feed.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, feed.Publish(ctx, Event{Table: "leads", Op: OpUpdate, ID: "l1", AssignedTo: "a1", PoolChanged: true}))

	select {
	case e := <-events:
		assert.Equal(t, "l1", e.ID)
		assert.Equal(t, OpUpdate, e.Op)
		assert.Equal(t, "a1", e.AssignedTo)
		assert.False(t, e.At.IsZero())
	case <-ctx.Done():
		t.Fatalf("no event received")
	}
}

func TestFeed_SubscriptionClosesOnCancel(t *testing.T) {
	feed := newTestFeed(t)
	ctx, cancel := context.WithCancel(context.Background())

	events, err := feed.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}

func TestFeed_NilClient(t *testing.T) {
	var f *Feed
	assert.Error(t, f.Publish(context.Background(), Event{}))
}

func TestEvent_VisibleTo(t *testing.T) {
	assert.True(t, Event{PoolChanged: true, AssignedTo: "a2"}.VisibleTo("a1"))
	assert.True(t, Event{AssignedTo: "a1"}.VisibleTo("a1"))
	assert.True(t, Event{AssignedTo: "a2", PreviousAssignedTo: "a1"}.VisibleTo("a1"))
	assert.False(t, Event{AssignedTo: "a2"}.VisibleTo("a1"))
}

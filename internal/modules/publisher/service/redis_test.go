package service

import (
	"agent_trader/internal/models"
	"agent_trader/internal/runner"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testSnapshot() runner.Snapshot {
	return runner.Snapshot{
		At:          time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Tick:        7,
		PositionsOK: true,
		Positions:   []models.Position{{Symbol: "BTC", Side: models.SideLong, Size: 0.1, EntryPrice: 60000}},
		Breakeven:   []models.BEProtection{{Symbol: "BTC", Side: models.SideLong, Target: 60060}},
	}
}

func TestPublishStoresSnapshotWithTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	p := NewRedis(client, "agent:snapshot", "", time.Minute)
	ctx := context.Background()

	if err := p.Publish(ctx, testSnapshot()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if ttl := mr.TTL("agent:snapshot"); ttl != time.Minute {
		t.Fatalf("ttl = %v, want 1m", ttl)
	}

	got, ok, err := p.Latest(ctx)
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if got.Tick != 7 || len(got.Positions) != 1 || got.Positions[0].Symbol != "BTC" {
		t.Fatalf("snapshot = %+v", got)
	}
	if len(got.Breakeven) != 1 || got.Breakeven[0].Target != 60060 {
		t.Fatalf("breakeven = %+v", got.Breakeven)
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, err := p.Latest(ctx); ok || err != nil {
		t.Fatalf("expired snapshot still readable: ok=%v err=%v", ok, err)
	}
}

func TestPublishBroadcastsToChannel(t *testing.T) {
	_, client := newTestRedis(t)
	p := NewRedis(client, "agent:snapshot", "agent:events", time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, "agent:events")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := p.Publish(ctx, testSnapshot()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	var got runner.Snapshot
	if err := sonic.Unmarshal([]byte(msg.Payload), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Tick != 7 {
		t.Fatalf("tick = %d, want 7", got.Tick)
	}
}

func TestPublishFailsWhenRedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	p := NewRedis(client, "agent:snapshot", "agent:events", time.Minute)
	mr.Close()

	if err := p.Publish(context.Background(), testSnapshot()); err == nil {
		t.Fatal("want error when redis is down")
	}
}

package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gqurishi/POS-in-NET-sub004/internal/events"
	"github.com/gqurishi/POS-in-NET-sub004/internal/model"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

type fakePullClient struct {
	resp      *model.PullOrdersResponse
	lastSince time.Time
	calls     int
}

func (c *fakePullClient) PullOrders(ctx context.Context, since time.Time) (*model.PullOrdersResponse, error) {
	c.calls++
	c.lastSince = since
	return c.resp, nil
}

type recordingIngestor struct {
	seen map[string]bool
}

func (r *recordingIngestor) Ingest(ctx context.Context, cloudOrder *model.CloudOrder) (Outcome, error) {
	if r.seen == nil {
		r.seen = make(map[string]bool)
	}
	if r.seen[cloudOrder.OrderID] {
		return Outcome{Code: Duplicate, OrderID: cloudOrder.OrderID}, nil
	}
	r.seen[cloudOrder.OrderID] = true
	return Outcome{Code: Created, OrderID: cloudOrder.OrderID}, nil
}

func TestSyncPullsFromMidnight(t *testing.T) {
	client := &fakePullClient{resp: &model.PullOrdersResponse{
		Success: true,
		Orders:  []model.CloudOrder{{OrderID: "cloud-1"}},
	}}
	c := NewCatchUp(events.NewBus(), client, &recordingIngestor{}, logger.NopLogger{})

	c.Sync(context.Background())

	assert.Equal(t, 1, client.calls)
	assert.Equal(t, 0, client.lastSince.Hour())
	assert.Equal(t, 0, client.lastSince.Minute())
	assert.Equal(t, time.Now().Day(), client.lastSince.Day())
}

func TestRunSyncsOnEachReconnect(t *testing.T) {
	client := &fakePullClient{resp: &model.PullOrdersResponse{
		Success: true,
		Orders:  []model.CloudOrder{{OrderID: "cloud-1"}},
	}}
	ingestor := &recordingIngestor{}
	bus := events.NewBus()
	c := NewCatchUp(bus, client, ingestor, logger.NopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	bus.PublishConnection(events.ConnectionEvent{Connected: true, At: time.Now()})
	waitFor(t, func() bool { return client.calls == 1 })

	// 断开事件不触发补拉
	bus.PublishConnection(events.ConnectionEvent{Connected: false, At: time.Now()})
	bus.PublishConnection(events.ConnectionEvent{Connected: true, At: time.Now()})
	waitFor(t, func() bool { return client.calls == 2 })

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("catch-up did not stop")
	}
	assert.True(t, ingestor.seen["cloud-1"])
}

func TestMidnight(t *testing.T) {
	ts := time.Date(2026, 8, 30, 17, 42, 9, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), midnight(ts))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

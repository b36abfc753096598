package pollfetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gqurishi/POS-in-NET-sub004/internal/ingest"
	"github.com/gqurishi/POS-in-NET-sub004/internal/model"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

type fakePullClient struct {
	resp *model.PullOrdersResponse
	err  error

	lastSince time.Time
}

func (c *fakePullClient) PullOrders(ctx context.Context, since time.Time) (*model.PullOrdersResponse, error) {
	c.lastSince = since
	return c.resp, c.err
}

type fakeIngestor struct {
	orders []string
}

func (f *fakeIngestor) Ingest(ctx context.Context, cloudOrder *model.CloudOrder) (ingest.Outcome, error) {
	f.orders = append(f.orders, cloudOrder.OrderID)
	return ingest.Outcome{Code: ingest.Created, OrderID: cloudOrder.OrderID}, nil
}

func TestFetchOnceIngestsEveryOrder(t *testing.T) {
	client := &fakePullClient{resp: &model.PullOrdersResponse{
		Success: true,
		Orders: []model.CloudOrder{
			{OrderID: "cloud-1"},
			{OrderID: "cloud-2"},
		},
	}}
	ingestor := &fakeIngestor{}

	f := NewFetcher(client, ingestor, 3*time.Second, logger.NopLogger{})
	f.FetchOnce(context.Background())

	assert.Equal(t, []string{"cloud-1", "cloud-2"}, ingestor.orders)
	assert.True(t, client.lastSince.IsZero())
}

func TestFetchOnceSkipsOnPullError(t *testing.T) {
	client := &fakePullClient{err: errors.New("timeout")}
	ingestor := &fakeIngestor{}

	f := NewFetcher(client, ingestor, 3*time.Second, logger.NopLogger{})
	f.FetchOnce(context.Background())

	assert.Empty(t, ingestor.orders)
}

func TestFetchOnceSkipsOnServerFailure(t *testing.T) {
	client := &fakePullClient{resp: &model.PullOrdersResponse{Success: false}}
	ingestor := &fakeIngestor{}

	f := NewFetcher(client, ingestor, 3*time.Second, logger.NopLogger{})
	f.FetchOnce(context.Background())

	assert.Empty(t, ingestor.orders)
}

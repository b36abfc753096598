package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqurishi/POS-in-NET-sub004/internal/events"
	"github.com/gqurishi/POS-in-NET-sub004/internal/ingest"
	"github.com/gqurishi/POS-in-NET-sub004/internal/model"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/config"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

type fakeConn struct {
	incoming [][]byte
	written  []interface{}
	closed   bool
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	if len(c.incoming) == 0 {
		return 0, nil, io.EOF
	}
	msg := c.incoming[0]
	c.incoming = c.incoming[1:]
	return 1, msg, nil
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.written = append(c.written, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type fakeIngestor struct {
	orders []model.CloudOrder
}

func (f *fakeIngestor) Ingest(ctx context.Context, cloudOrder *model.CloudOrder) (ingest.Outcome, error) {
	f.orders = append(f.orders, *cloudOrder)
	return ingest.Outcome{Code: ingest.Created, OrderID: cloudOrder.OrderID}, nil
}

func testConfig() config.CloudConfig {
	return config.CloudConfig{
		WebSocketURL: "wss://orders.example.com/ws",
		Tenant:       "store-001",
		APIKey:       "secret",
	}
}

func frame(t *testing.T, f model.WSFrame) []byte {
	t.Helper()
	raw, err := json.Marshal(f)
	require.NoError(t, err)
	return raw
}

func newTestListener(conn Conn, ingestor ingest.Ingestor, bus *events.Bus) *Listener {
	dial := func(ctx context.Context) (Conn, error) { return conn, nil }
	return NewListenerWithDial(testConfig(), "pos-01", dial, ingestor, bus, events.NopPublisher{}, logger.NopLogger{})
}

func TestServeRegistersThenIngestsOrders(t *testing.T) {
	order := model.CloudOrder{OrderID: "cloud-1", OrderNo: "A1"}
	rawOrder, err := json.Marshal(order)
	require.NoError(t, err)

	conn := &fakeConn{incoming: [][]byte{
		frame(t, model.WSFrame{Type: model.FrameTypeRegistered}),
		frame(t, model.WSFrame{Type: model.FrameTypeNewOrder, Order: rawOrder}),
	}}
	ingestor := &fakeIngestor{}
	l := newTestListener(conn, ingestor, events.NewBus())

	l.serve(context.Background(), conn)

	// 首帧是注册请求
	require.NotEmpty(t, conn.written)
	register, ok := conn.written[0].(model.WSFrame)
	require.True(t, ok)
	assert.Equal(t, model.FrameTypeRegister, register.Type)
	assert.Equal(t, "store-001", register.Tenant)
	assert.Equal(t, "pos-01", register.DeviceID)

	require.Len(t, ingestor.orders, 1)
	assert.Equal(t, "cloud-1", ingestor.orders[0].OrderID)
}

func TestPingAnsweredWithPong(t *testing.T) {
	conn := &fakeConn{}
	l := newTestListener(conn, &fakeIngestor{}, events.NewBus())

	l.handleFrame(context.Background(), conn, frame(t, model.WSFrame{Type: model.FrameTypePing}))

	require.Len(t, conn.written, 1)
	pong, ok := conn.written[0].(model.WSFrame)
	require.True(t, ok)
	assert.Equal(t, model.FrameTypePong, pong.Type)
}

func TestMalformedFrameDroppedWithoutClosing(t *testing.T) {
	conn := &fakeConn{}
	ingestor := &fakeIngestor{}
	l := newTestListener(conn, ingestor, events.NewBus())

	l.handleFrame(context.Background(), conn, []byte("{not json"))
	l.handleFrame(context.Background(), conn, frame(t, model.WSFrame{Type: model.FrameTypeNewOrder, Order: json.RawMessage(`"garbage"`)}))

	assert.Empty(t, ingestor.orders)
	assert.False(t, conn.closed)
}

func TestNewOrderBatchEnvelope(t *testing.T) {
	batch, err := json.Marshal(model.OrderBatch{Orders: []model.CloudOrder{
		{OrderID: "cloud-1"},
		{OrderID: "cloud-2"},
	}})
	require.NoError(t, err)

	ingestor := &fakeIngestor{}
	l := newTestListener(&fakeConn{}, ingestor, events.NewBus())

	l.handleNewOrder(context.Background(), batch)
	require.Len(t, ingestor.orders, 2)
	assert.Equal(t, "cloud-2", ingestor.orders[1].OrderID)
}

func TestConnectionEventsPublishedOnConnectAndDisconnect(t *testing.T) {
	bus := events.NewBus()
	connCh := bus.SubscribeConnection()

	conn := &fakeConn{}
	l := newTestListener(conn, &fakeIngestor{}, bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	// 连上：connected 事件
	ev := <-connCh
	assert.True(t, ev.Connected)

	// 读到 EOF 断开：disconnected 事件
	ev = <-connCh
	assert.False(t, ev.Connected)
	assert.True(t, conn.closed)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop after cancel")
	}
}

// blockingConn 读阻塞直到连接被关闭，模拟安静或半死的连接
type blockingConn struct {
	unblock chan struct{}
	once    sync.Once
}

func newBlockingConn() *blockingConn {
	return &blockingConn{unblock: make(chan struct{})}
}

func (c *blockingConn) ReadMessage() (int, []byte, error) {
	<-c.unblock
	return 0, nil, io.EOF
}

func (c *blockingConn) WriteJSON(v interface{}) error { return nil }

func (c *blockingConn) Close() error {
	c.once.Do(func() { close(c.unblock) })
	return nil
}

func TestCancelUnblocksQuietConnection(t *testing.T) {
	conn := newBlockingConn()
	l := newTestListener(conn, &fakeIngestor{}, events.NewBus())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	// 等进入读循环再取消
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop: read loop still blocked after cancel")
	}
}

func TestRunStaysIdleWhenNotConfigured(t *testing.T) {
	dialed := false
	dial := func(ctx context.Context) (Conn, error) {
		dialed = true
		return nil, errors.New("should not dial")
	}
	l := NewListenerWithDial(config.CloudConfig{}, "pos-01", dial, &fakeIngestor{}, events.NewBus(), events.NopPublisher{}, logger.NopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Run(ctx)

	assert.False(t, dialed)
}

func TestNextBackoffDoublesUpToCap(t *testing.T) {
	b := backoffBase
	assert.Equal(t, 4*time.Second, nextBackoff(b))
	assert.Equal(t, 16*time.Second, nextBackoff(8*time.Second))
	assert.Equal(t, backoffCap, nextBackoff(16*time.Second))
	assert.Equal(t, backoffCap, nextBackoff(backoffCap))
}

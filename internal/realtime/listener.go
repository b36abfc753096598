package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"

	"github.com/gqurishi/POS-in-NET-sub004/internal/events"
	"github.com/gqurishi/POS-in-NET-sub004/internal/ingest"
	"github.com/gqurishi/POS-in-NET-sub004/internal/model"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/config"
	infraredis "github.com/gqurishi/POS-in-NET-sub004/pkg/infra/redis"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

// State 连接状态
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// 重连退避：2s 起步翻倍，封顶 30s，连上即复位
const (
	backoffBase = 2 * time.Second
	backoffCap  = 30 * time.Second
)

// Conn 监听器依赖的最小连接接口（gorilla/websocket.Conn 天然满足）
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// DialFunc 建连函数（测试注入假连接）
type DialFunc func(ctx context.Context) (Conn, error)

// Listener 实时推送通道监听器
// 维护到云端的长连接；断线按退避重连；每次连上都发布连接事件，
// 由 catch-up 订阅者补拉闭缺口。读循环与重连计时器由状态互斥，
// 不会在重连期间读取
type Listener struct {
	cfg         config.CloudConfig
	deviceID    string
	dial        DialFunc
	coordinator ingest.Ingestor
	bus         *events.Bus
	publisher   events.Publisher
	logger      logger.Logger

	// 连接循环写、本地状态 API 读，需要原子访问
	state *atomic.String
}

// NewListener 创建监听器
func NewListener(
	cfg config.CloudConfig,
	deviceID string,
	coordinator ingest.Ingestor,
	bus *events.Bus,
	publisher events.Publisher,
	log logger.Logger,
) *Listener {
	l := &Listener{
		cfg:         cfg,
		deviceID:    deviceID,
		coordinator: coordinator,
		bus:         bus,
		publisher:   publisher,
		logger:      log,
		state:       atomic.NewString(string(StateDisconnected)),
	}
	l.dial = l.dialWebSocket
	return l
}

// NewListenerWithDial 注入建连函数（测试用）
func NewListenerWithDial(
	cfg config.CloudConfig,
	deviceID string,
	dial DialFunc,
	coordinator ingest.Ingestor,
	bus *events.Bus,
	publisher events.Publisher,
	log logger.Logger,
) *Listener {
	l := NewListener(cfg, deviceID, coordinator, bus, publisher, log)
	l.dial = dial
	return l
}

// Name 实现 worker.Runner
func (l *Listener) Name() string {
	return "realtime-listener"
}

// Run 启动连接循环；未配置时保持空闲直到退出
func (l *Listener) Run(ctx context.Context) {
	ctx = logger.WithWorker(ctx, l.Name())

	if l.cfg.WebSocketURL == "" || l.cfg.APIKey == "" {
		l.logger.Warnf(ctx, "[Realtime] Not configured, listener stays idle")
		<-ctx.Done()
		return
	}

	backoff := backoffBase
	for {
		if ctx.Err() != nil {
			return
		}

		l.state.Store(string(StateConnecting))
		l.logger.Infof(ctx, "[Realtime] Connecting to %s", l.cfg.WebSocketURL)

		conn, err := l.dial(ctx)
		if err != nil {
			l.state.Store(string(StateReconnecting))
			l.logger.Warnf(ctx, "[Realtime] Connection failed: %v, retrying in %v", err, backoff)
			if !l.sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		l.state.Store(string(StateConnected))
		backoff = backoffBase
		l.logger.Infof(ctx, "[Realtime] Connected")
		l.publishState(ctx, true)

		l.serve(ctx, conn)
		conn.Close()

		l.state.Store(string(StateDisconnected))
		l.publishState(ctx, false)

		if ctx.Err() != nil {
			return
		}

		l.state.Store(string(StateReconnecting))
		l.logger.Infof(ctx, "[Realtime] Disconnected, reconnecting in %v", backoff)
		if !l.sleep(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// State 当前连接状态
func (l *Listener) State() State {
	return State(l.state.Load())
}

// serve 注册后进入读循环，读错误返回（交给外层重连）
// 取消时关闭连接让阻塞中的 ReadMessage 立即报错返回，否则安静连接上的停机会一直等
func (l *Listener) serve(ctx context.Context, conn Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	register := model.WSFrame{
		Type:     model.FrameTypeRegister,
		Tenant:   l.cfg.Tenant,
		DeviceID: l.deviceID,
	}
	if err := conn.WriteJSON(register); err != nil {
		l.logger.Warnf(ctx, "[Realtime] Failed to send register frame: %v", err)
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			l.logger.Warnf(ctx, "[Realtime] Read error: %v", err)
			return
		}

		l.handleFrame(ctx, conn, data)
	}
}

// handleFrame 处理单个消息帧
// 报文坏了只丢这一帧，连接保持
func (l *Listener) handleFrame(ctx context.Context, conn Conn, data []byte) {
	var frame model.WSFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		l.logger.Warnf(ctx, "[Realtime] Malformed frame dropped: %v", err)
		return
	}

	switch frame.Type {
	case model.FrameTypeRegistered:
		l.logger.Infof(ctx, "[Realtime] Registered with server")

	case model.FrameTypePing:
		pong := model.WSFrame{Type: model.FrameTypePong, DeviceID: l.deviceID}
		if err := conn.WriteJSON(pong); err != nil {
			l.logger.Warnf(ctx, "[Realtime] Failed to send pong: %v", err)
		}

	case model.FrameTypeHeartbeat:
		// 静默消费

	case model.FrameTypeNewOrder:
		l.handleNewOrder(ctx, frame.Order)

	default:
		l.logger.Debugf(ctx, "[Realtime] Unknown frame type: %s", frame.Type)
	}
}

// handleNewOrder 解析订单载荷并交给协调器
// 兼容单笔订单与 {orders:[...]} 两种包法
func (l *Listener) handleNewOrder(ctx context.Context, raw json.RawMessage) {
	if len(raw) == 0 {
		l.logger.Warnf(ctx, "[Realtime] new_order frame without payload")
		return
	}

	var single model.CloudOrder
	if err := json.Unmarshal(raw, &single); err == nil && single.OrderID != "" {
		l.ingestOne(ctx, &single)
		return
	}

	var batch model.OrderBatch
	if err := json.Unmarshal(raw, &batch); err == nil && len(batch.Orders) > 0 {
		for i := range batch.Orders {
			l.ingestOne(ctx, &batch.Orders[i])
		}
		return
	}

	l.logger.Warnf(ctx, "[Realtime] Unparseable order payload dropped")
}

// ingestOne 摄入单笔订单
func (l *Listener) ingestOne(ctx context.Context, order *model.CloudOrder) {
	outcome, err := l.coordinator.Ingest(ctx, order)
	if err != nil {
		l.logger.Errorf(ctx, "[Realtime] Ingest failed for %s: %v", order.OrderID, err)
		return
	}
	if outcome.Code == ingest.Rejected {
		l.logger.Warnf(ctx, "[Realtime] Order rejected: %s", outcome.Reason)
	}
}

// publishState 发布连接状态事件（进程内 + Redis）
func (l *Listener) publishState(ctx context.Context, connected bool) {
	ev := events.ConnectionEvent{Connected: connected, At: time.Now()}
	l.bus.PublishConnection(ev)
	if err := l.publisher.Publish(ctx, infraredis.ChannelConnectionState, ev); err != nil {
		l.logger.Warnf(ctx, "[Realtime] Failed to publish connection event: %v", err)
	}
}

// dialWebSocket 真实 websocket 建连
func (l *Listener) dialWebSocket(ctx context.Context) (Conn, error) {
	header := http.Header{}
	header.Set("X-Api-Key", l.cfg.APIKey)
	header.Set("X-Tenant", l.cfg.Tenant)

	dialer := websocket.Dialer{
		HandshakeTimeout: l.cfg.ConnectTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, l.cfg.WebSocketURL, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// sleep 可取消的等待；返回 false 表示应当退出
func (l *Listener) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// nextBackoff 翻倍封顶
func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > backoffCap {
		return backoffCap
	}
	return next
}

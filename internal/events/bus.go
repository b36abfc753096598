package events

import (
	"context"
	"sync"
	"time"
)

// 组件之间的状态通知走进程内类型化事件，订阅方自己决定如何响应；
// 发布方不等待、不阻塞（订阅者迟钝时丢弃事件，状态事件允许丢失，
// 丢失的连接事件由下一次轮询兜底）。

// ConnectionEvent 推送通道连接状态事件
type ConnectionEvent struct {
	Connected bool      `json:"connected"`
	At        time.Time `json:"at"`
}

// PrinterHealthEvent 打印机健康状态变迁事件
type PrinterHealthEvent struct {
	PrinterID string    `json:"printer_id"`
	Name      string    `json:"name"`
	Online    bool      `json:"online"`
	At        time.Time `json:"at"`
}

// Publisher 外部事件发布接口（Redis 实现；未配置时用 NopPublisher）
type Publisher interface {
	Publish(ctx context.Context, channel string, event interface{}) error
}

// NopPublisher 空发布实现
type NopPublisher struct{}

// Publish 丢弃事件
func (NopPublisher) Publish(ctx context.Context, channel string, event interface{}) error {
	return nil
}

// Bus 进程内事件总线
type Bus struct {
	mu         sync.RWMutex
	connSubs   []chan ConnectionEvent
	healthSubs []chan PrinterHealthEvent
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{}
}

// SubscribeConnection 订阅连接状态事件
func (b *Bus) SubscribeConnection() <-chan ConnectionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan ConnectionEvent, 8)
	b.connSubs = append(b.connSubs, ch)
	return ch
}

// PublishConnection 发布连接状态事件（非阻塞）
func (b *Bus) PublishConnection(ev ConnectionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.connSubs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscribePrinterHealth 订阅打印机健康事件
func (b *Bus) SubscribePrinterHealth() <-chan PrinterHealthEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan PrinterHealthEvent, 8)
	b.healthSubs = append(b.healthSubs, ch)
	return ch
}

// PublishPrinterHealth 发布打印机健康事件（非阻塞）
func (b *Bus) PublishPrinterHealth(ev PrinterHealthEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.healthSubs {
		select {
		case ch <- ev:
		default:
		}
	}
}

package printer

import (
	"context"
	"time"

	"github.com/gqurishi/POS-in-NET-sub004/internal/entity"
	"github.com/gqurishi/POS-in-NET-sub004/internal/events"
	infraredis "github.com/gqurishi/POS-in-NET-sub004/pkg/infra/redis"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

// HealthStore 健康监控需要的存储操作
type HealthStore interface {
	List(ctx context.Context) ([]entity.NetworkPrinter, error)
	SetOnline(ctx context.Context, id string, online bool) error
}

// Monitor 打印机健康监控
// 周期性对每台注册打印机做建连探测，把 online/offline 写回存储；
// 调度循环读取的是存储里的最近一次探测结果
type Monitor struct {
	store     HealthStore
	transport Transport
	bus       *events.Bus
	publisher events.Publisher
	interval  time.Duration
	timeout   time.Duration
	logger    logger.Logger
}

// NewMonitor 创建健康监控
func NewMonitor(
	store HealthStore,
	transport Transport,
	bus *events.Bus,
	publisher events.Publisher,
	interval time.Duration,
	timeout time.Duration,
	log logger.Logger,
) *Monitor {
	return &Monitor{
		store:     store,
		transport: transport,
		bus:       bus,
		publisher: publisher,
		interval:  interval,
		timeout:   timeout,
		logger:    log,
	}
}

// Name 实现 worker.Runner
func (m *Monitor) Name() string {
	return "printer-health"
}

// Run 启动监控循环
func (m *Monitor) Run(ctx context.Context) {
	ctx = logger.WithWorker(ctx, m.Name())
	m.logger.Infof(ctx, "[Health] Started, interval: %v", m.interval)

	// 启动即做一轮探测，调度循环不用等首个 tick
	m.probeAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Infof(ctx, "[Health] Stopped")
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

// probeAll 探测全部打印机
func (m *Monitor) probeAll(ctx context.Context) {
	printers, err := m.store.List(ctx)
	if err != nil {
		m.logger.Errorf(ctx, "[Health] Failed to list printers: %v", err)
		return
	}

	for _, p := range printers {
		online := m.transport.Probe(ctx, p.Addr(), m.timeout) == nil

		if err := m.store.SetOnline(ctx, p.ID, online); err != nil {
			m.logger.Errorf(ctx, "[Health] Failed to update printer %s: %v", p.ID, err)
			continue
		}

		if online != p.Online {
			m.logger.Infof(ctx, "[Health] Printer %s (%s) is now %s", p.Name, p.Addr(), statusWord(online))
			ev := events.PrinterHealthEvent{
				PrinterID: p.ID,
				Name:      p.Name,
				Online:    online,
				At:        time.Now(),
			}
			m.bus.PublishPrinterHealth(ev)
			if err := m.publisher.Publish(ctx, infraredis.ChannelPrinterHealth, ev); err != nil {
				m.logger.Warnf(ctx, "[Health] Failed to publish health event: %v", err)
			}
		}
	}
}

func statusWord(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

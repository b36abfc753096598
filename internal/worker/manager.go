package worker

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

// Runner 后台循环接口
// Run 必须观察 ctx 取消并及时退出；在途任务留在最后的持久化状态里，
// 下次启动只凭存储状态恢复
type Runner interface {
	Name() string
	Run(ctx context.Context)
}

// Manager 接口
type Manager interface {
	Register(runners ...Runner)
	Start()
	Shutdown()
}

// ManagerInstance Manager 实例
// 每个 Runner 在独立 goroutine 运行；Shutdown 取消共享 Context
// 并等待全部退出
type ManagerInstance struct {
	ctx        context.Context
	cancel     context.CancelFunc
	runners    []Runner
	closing    *atomic.Bool
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	logger     logger.Logger
}

// NewManagerInstance 创建 Manager
func NewManagerInstance(log logger.Logger) Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ManagerInstance{
		ctx:        ctx,
		cancel:     cancel,
		runners:    make([]Runner, 0),
		closing:    atomic.NewBool(false),
		shutdownCh: make(chan struct{}),
		logger:     log,
	}
}

// Register 注册后台循环
func (m *ManagerInstance) Register(runners ...Runner) {
	m.runners = append(m.runners, runners...)
}

// Start 启动所有循环并阻塞等待退出信号
func (m *ManagerInstance) Start() {
	m.logger.Infof(m.ctx, "[Manager] Starting %d runners", len(m.runners))

	for _, runner := range m.runners {
		r := runner
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			r.Run(m.ctx)
		}()
		m.logger.Infof(m.ctx, "[Manager] Runner started: %s", r.Name())
	}

	m.logger.Infof(m.ctx, "[Manager] Start success")

	// 阻塞等待退出信号
	<-m.shutdownCh
}

// Shutdown 优雅退出
func (m *ManagerInstance) Shutdown() {
	m.logger.Infof(context.Background(), "[Manager] Began to close")

	// 原子操作，保证并发安全
	if m.closing.CAS(false, true) {
		// 1. 取消共享 Context，所有循环收到退出信号
		m.cancel()

		// 2. 等待所有循环退出
		m.wg.Wait()

		// 3. 关闭信号通道
		close(m.shutdownCh)

		m.logger.Infof(context.Background(), "[Manager] Shutdown complete")
	}
}

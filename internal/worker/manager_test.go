package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

type blockingRunner struct {
	name    string
	started chan struct{}
	stopped chan struct{}
}

func newBlockingRunner(name string) *blockingRunner {
	return &blockingRunner{
		name:    name,
		started: make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (r *blockingRunner) Name() string {
	return r.name
}

func (r *blockingRunner) Run(ctx context.Context) {
	close(r.started)
	<-ctx.Done()
	close(r.stopped)
}

func TestManagerRunsAllRunnersAndShutsDown(t *testing.T) {
	mgr := NewManagerInstance(logger.NopLogger{})

	r1 := newBlockingRunner("loop-a")
	r2 := newBlockingRunner("loop-b")
	mgr.Register(r1, r2)

	startDone := make(chan struct{})
	go func() {
		mgr.Start()
		close(startDone)
	}()

	waitClosed(t, r1.started, "runner loop-a did not start")
	waitClosed(t, r2.started, "runner loop-b did not start")

	mgr.Shutdown()

	waitClosed(t, r1.stopped, "runner loop-a did not observe cancel")
	waitClosed(t, r2.stopped, "runner loop-b did not observe cancel")
	waitClosed(t, startDone, "Start did not unblock after shutdown")
}

func TestShutdownIsIdempotent(t *testing.T) {
	mgr := NewManagerInstance(logger.NopLogger{})
	r := newBlockingRunner("loop")
	mgr.Register(r)

	go mgr.Start()
	waitClosed(t, r.started, "runner did not start")

	mgr.Shutdown()
	// 二次调用不应当 panic 或阻塞
	assert.NotPanics(t, func() { mgr.Shutdown() })
}

func waitClosed(t *testing.T, ch chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal(msg)
	}
}

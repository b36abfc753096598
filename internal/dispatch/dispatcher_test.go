package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqurishi/POS-in-NET-sub004/internal/entity"
	"github.com/gqurishi/POS-in-NET-sub004/internal/events"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

type fakeJobStore struct {
	pending    []entity.PrintJob
	retried    map[string]int
	completed  []string
	failed     map[string]string
	reclaimed  int64
	reclaimDur time.Duration
}

func newFakeJobStore(jobs ...entity.PrintJob) *fakeJobStore {
	return &fakeJobStore{
		pending: jobs,
		retried: make(map[string]int),
		failed:  make(map[string]string),
	}
}

func (s *fakeJobStore) ClaimPending(ctx context.Context, limit int) ([]entity.PrintJob, error) {
	claimed := s.pending
	if len(claimed) > limit {
		claimed = claimed[:limit]
	}
	s.pending = nil
	return claimed, nil
}

func (s *fakeJobStore) ReleaseForRetry(ctx context.Context, id string, retryCount int, lastError string) error {
	s.retried[id] = retryCount
	return nil
}

func (s *fakeJobStore) MarkCompleted(ctx context.Context, id string) error {
	s.completed = append(s.completed, id)
	return nil
}

func (s *fakeJobStore) MarkFailed(ctx context.Context, id string, retryCount int, lastError string) error {
	s.failed[id] = lastError
	return nil
}

func (s *fakeJobStore) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.reclaimDur = olderThan
	return s.reclaimed, nil
}

type fakePrinterStore struct {
	printers map[string]*entity.NetworkPrinter
}

func (s *fakePrinterStore) GetByID(ctx context.Context, id string) (*entity.NetworkPrinter, error) {
	p, ok := s.printers[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return p, nil
}

type fakeAckStore struct {
	acks []entity.PendingAck
}

func (s *fakeAckStore) Insert(ctx context.Context, ack *entity.PendingAck) error {
	s.acks = append(s.acks, *ack)
	return nil
}

type fakeTransport struct {
	printErr error
	printed  [][]byte
	notify   chan struct{}
}

func (t *fakeTransport) Print(ctx context.Context, addr string, data []byte) error {
	if t.printErr != nil {
		return t.printErr
	}
	t.printed = append(t.printed, data)
	if t.notify != nil {
		select {
		case t.notify <- struct{}{}:
		default:
		}
	}
	return nil
}

func (t *fakeTransport) Probe(ctx context.Context, addr string, timeout time.Duration) error {
	return t.printErr
}

func onlinePrinter() *entity.NetworkPrinter {
	return &entity.NetworkPrinter{ID: "p1", Name: "Front", Address: "10.0.0.3", Port: 9100, Online: true}
}

func pendingJob() entity.PrintJob {
	return entity.PrintJob{
		ID:           "job-1",
		PrinterID:    "p1",
		OrderID:      "local-1",
		CloudOrderID: "cloud-1",
		JobType:      entity.JobTypeReceipt,
		Payload:      []byte{0x1B, 0x40},
		Status:       entity.JobStatusPrinting,
		MaxRetries:   5,
	}
}

func newDispatcher(jobs *fakeJobStore, printers *fakePrinterStore, acks *fakeAckStore, transport *fakeTransport) *Dispatcher {
	return NewDispatcher(jobs, printers, acks, transport, events.NewBus(), "pos-01", time.Second, 20, 2*time.Minute, logger.NopLogger{})
}

func TestProcessTickPrintsAndAcks(t *testing.T) {
	jobs := newFakeJobStore(pendingJob())
	printers := &fakePrinterStore{printers: map[string]*entity.NetworkPrinter{"p1": onlinePrinter()}}
	acks := &fakeAckStore{}
	transport := &fakeTransport{}

	d := newDispatcher(jobs, printers, acks, transport)
	d.ProcessTick(context.Background())

	assert.Equal(t, []string{"job-1"}, jobs.completed)
	require.Len(t, transport.printed, 1)

	require.Len(t, acks.acks, 1)
	ack := acks.acks[0]
	assert.Equal(t, "cloud-1", ack.CloudOrderID)
	assert.Equal(t, entity.AckOutcomePrinted, ack.Outcome)
	assert.Equal(t, "pos-01", ack.DeviceID)
	require.NotNil(t, ack.PrintedAt)
}

func TestOfflinePrinterDeferConsumesRetry(t *testing.T) {
	offline := onlinePrinter()
	offline.Online = false

	jobs := newFakeJobStore(pendingJob())
	printers := &fakePrinterStore{printers: map[string]*entity.NetworkPrinter{"p1": offline}}
	acks := &fakeAckStore{}
	transport := &fakeTransport{}

	d := newDispatcher(jobs, printers, acks, transport)
	d.ProcessTick(context.Background())

	// 放回 Pending 等下个 tick，但离线等待也计入重试次数
	assert.Equal(t, map[string]int{"job-1": 1}, jobs.retried)
	assert.Empty(t, jobs.failed)
	assert.Empty(t, acks.acks)
	assert.Empty(t, transport.printed)
}

func TestOfflineOutageExhaustsRetriesAndNotifiesCloud(t *testing.T) {
	// 一直不恢复的打印机不能让任务永远悬挂：
	// 离线 tick 耗尽重试上限后进入终态 Failed 并产生失败回执
	offline := onlinePrinter()
	offline.Online = false

	job := pendingJob()
	job.RetryCount = 4

	jobs := newFakeJobStore(job)
	printers := &fakePrinterStore{printers: map[string]*entity.NetworkPrinter{"p1": offline}}
	acks := &fakeAckStore{}

	d := newDispatcher(jobs, printers, acks, &fakeTransport{})
	d.ProcessTick(context.Background())

	assert.Empty(t, jobs.retried)
	assert.Contains(t, jobs.failed["job-1"], "printer offline")
	require.Len(t, acks.acks, 1)
	assert.Equal(t, entity.AckOutcomeFailed, acks.acks[0].Outcome)
	assert.Nil(t, acks.acks[0].PrintedAt)
}

func TestOutageResolvedBeforeLastRetryCompletes(t *testing.T) {
	// 离线 4 个 tick 后在第 5 次尝试前恢复：正常完成，不进 Failed
	job := pendingJob()
	job.RetryCount = 4

	jobs := newFakeJobStore(job)
	printers := &fakePrinterStore{printers: map[string]*entity.NetworkPrinter{"p1": onlinePrinter()}}
	acks := &fakeAckStore{}

	d := newDispatcher(jobs, printers, acks, &fakeTransport{})
	d.ProcessTick(context.Background())

	assert.Equal(t, []string{"job-1"}, jobs.completed)
	assert.Empty(t, jobs.failed)
	require.Len(t, acks.acks, 1)
	assert.Equal(t, entity.AckOutcomePrinted, acks.acks[0].Outcome)
}

func TestTransportFailureReleasesForRetry(t *testing.T) {
	jobs := newFakeJobStore(pendingJob())
	printers := &fakePrinterStore{printers: map[string]*entity.NetworkPrinter{"p1": onlinePrinter()}}
	acks := &fakeAckStore{}
	transport := &fakeTransport{printErr: errors.New("connection refused")}

	d := newDispatcher(jobs, printers, acks, transport)
	d.ProcessTick(context.Background())

	assert.Equal(t, 1, jobs.retried["job-1"])
	assert.Empty(t, jobs.failed)
	assert.Empty(t, acks.acks)
}

func TestExhaustedRetriesMarksFailedWithAck(t *testing.T) {
	job := pendingJob()
	job.RetryCount = 4

	jobs := newFakeJobStore(job)
	printers := &fakePrinterStore{printers: map[string]*entity.NetworkPrinter{"p1": onlinePrinter()}}
	acks := &fakeAckStore{}
	transport := &fakeTransport{printErr: errors.New("connection refused")}

	d := newDispatcher(jobs, printers, acks, transport)
	d.ProcessTick(context.Background())

	assert.Contains(t, jobs.failed, "job-1")

	require.Len(t, acks.acks, 1)
	ack := acks.acks[0]
	assert.Equal(t, entity.AckOutcomeFailed, ack.Outcome)
	assert.Equal(t, "connection refused", ack.Reason)
	assert.Nil(t, ack.PrintedAt)
}

func TestMissingPrinterCountsAsFailedAttempt(t *testing.T) {
	jobs := newFakeJobStore(pendingJob())
	printers := &fakePrinterStore{printers: map[string]*entity.NetworkPrinter{}}
	acks := &fakeAckStore{}
	transport := &fakeTransport{}

	d := newDispatcher(jobs, printers, acks, transport)
	d.ProcessTick(context.Background())

	assert.Equal(t, 1, jobs.retried["job-1"])
}

func TestRunReclaimsStaleJobsBeforeDispatching(t *testing.T) {
	jobs := newFakeJobStore()
	jobs.reclaimed = 2
	printers := &fakePrinterStore{printers: map[string]*entity.NetworkPrinter{}}

	d := NewDispatcher(jobs, printers, &fakeAckStore{}, &fakeTransport{}, events.NewBus(),
		"pos-01", 10*time.Millisecond, 20, 2*time.Minute, logger.NopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	// 启动时就按 stale 阈值做了一次回收
	assert.Equal(t, 2*time.Minute, jobs.reclaimDur)
}

func TestPrinterRecoveryTriggersImmediateDispatch(t *testing.T) {
	jobs := newFakeJobStore(pendingJob())
	printers := &fakePrinterStore{printers: map[string]*entity.NetworkPrinter{"p1": onlinePrinter()}}
	transport := &fakeTransport{notify: make(chan struct{}, 1)}
	bus := events.NewBus()

	// tick 拉到一小时：测试窗口内只有健康事件能触发派发
	d := NewDispatcher(jobs, printers, &fakeAckStore{}, transport, bus,
		"pos-01", time.Hour, 20, 2*time.Minute, logger.NopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	bus.PublishPrinterHealth(events.PrinterHealthEvent{PrinterID: "p1", Name: "Front", Online: true})

	select {
	case <-transport.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("recovery event did not trigger dispatch")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	assert.Equal(t, []string{"job-1"}, jobs.completed)
}

func TestLocalJobNeverAcks(t *testing.T) {
	job := pendingJob()
	job.CloudOrderID = ""
	job.JobType = entity.JobTypeTest

	jobs := newFakeJobStore(job)
	printers := &fakePrinterStore{printers: map[string]*entity.NetworkPrinter{"p1": onlinePrinter()}}
	acks := &fakeAckStore{}
	transport := &fakeTransport{}

	d := newDispatcher(jobs, printers, acks, transport)
	d.ProcessTick(context.Background())

	assert.Equal(t, []string{"job-1"}, jobs.completed)
	assert.Empty(t, acks.acks)
}

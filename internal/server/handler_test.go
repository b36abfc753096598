package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqurishi/POS-in-NET-sub004/internal/entity"
	"github.com/gqurishi/POS-in-NET-sub004/internal/realtime"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/infra/mysql"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

type fakePrinterReader struct {
	printers []entity.NetworkPrinter
}

func (f *fakePrinterReader) List(ctx context.Context) ([]entity.NetworkPrinter, error) {
	return f.printers, nil
}

func (f *fakePrinterReader) GetByID(ctx context.Context, id string) (*entity.NetworkPrinter, error) {
	for i := range f.printers {
		if f.printers[i].ID == id {
			return &f.printers[i], nil
		}
	}
	return nil, mysql.ErrNotFound
}

type fakeOrderReader struct {
	orders map[string]*entity.LocalOrder
}

func (f *fakeOrderReader) GetByID(ctx context.Context, id string) (*entity.LocalOrder, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, mysql.ErrNotFound
	}
	return order, nil
}

func (f *fakeOrderReader) ListItems(ctx context.Context, orderID string) ([]entity.OrderItem, error) {
	return nil, nil
}

type fakeJobWriter struct {
	jobs []entity.PrintJob
}

func (f *fakeJobWriter) Insert(ctx context.Context, job *entity.PrintJob) error {
	f.jobs = append(f.jobs, *job)
	return nil
}

func (f *fakeJobWriter) ListByOrder(ctx context.Context, orderID string) ([]entity.PrintJob, error) {
	return f.jobs, nil
}

type fakeAckReader struct{}

func (fakeAckReader) List(ctx context.Context) ([]entity.PendingAck, error) {
	return []entity.PendingAck{{ID: "ack-1", CloudOrderID: "cloud-1"}}, nil
}

type fakeOutboxAdmin struct {
	cancelled []string
}

func (f *fakeOutboxAdmin) List(ctx context.Context, status string, limit int) ([]entity.OfflineQueueItem, error) {
	return nil, nil
}

func (f *fakeOutboxAdmin) Cancel(ctx context.Context, id string) (bool, error) {
	if id == "missing" {
		return false, nil
	}
	f.cancelled = append(f.cancelled, id)
	return true, nil
}

type fakeReprinter struct {
	calls []string
}

func (f *fakeReprinter) Reprint(ctx context.Context, orderID string, jobType string) error {
	if orderID == "missing" {
		return mysql.ErrNotFound
	}
	f.calls = append(f.calls, orderID+":"+jobType)
	return nil
}

type fixture struct {
	engine    *httptest.Server
	jobs      *fakeJobWriter
	outbox    *fakeOutboxAdmin
	reprinter *fakeReprinter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	jobs := &fakeJobWriter{}
	outbox := &fakeOutboxAdmin{}
	reprinter := &fakeReprinter{}

	printers := &fakePrinterReader{printers: []entity.NetworkPrinter{
		{ID: "p1", Name: "Front", Address: "10.0.0.3", Port: 9100, PaperWidth: 80, Type: entity.PrinterTypeReceipt, Online: true},
		{ID: "p2", Name: "Kitchen", Address: "10.0.0.4", Port: 9100, PaperWidth: 58, Type: entity.PrinterTypeKitchen, Online: true},
	}}
	orders := &fakeOrderReader{orders: map[string]*entity.LocalOrder{
		"local-1": {ID: "local-1", CloudOrderID: "cloud-1", OrderNo: "A17"},
	}}

	h := NewHandler(printers, orders, jobs, fakeAckReader{}, outbox, reprinter, logger.NopLogger{})
	srv := httptest.NewServer(SetupRoutes(h, "pos-agent"))
	t.Cleanup(srv.Close)

	return &fixture{engine: srv, jobs: jobs, outbox: outbox, reprinter: reprinter}
}

func decode(t *testing.T, resp *http.Response) Response {
	t.Helper()
	defer resp.Body.Close()
	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	fx := newFixture(t)

	resp, err := http.Get(fx.engine.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type fixedConnState struct {
	state realtime.State
}

func (s fixedConnState) State() realtime.State { return s.state }

func TestHealthReportsPushChannelState(t *testing.T) {
	jobs := &fakeJobWriter{}
	printers := &fakePrinterReader{}
	orders := &fakeOrderReader{}

	h := NewHandler(printers, orders, jobs, fakeAckReader{}, &fakeOutboxAdmin{}, &fakeReprinter{}, logger.NopLogger{})
	h.ConnState = fixedConnState{state: realtime.StateReconnecting}
	srv := httptest.NewServer(SetupRoutes(h, "pos-agent"))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "reconnecting", body["push_channel"])
}

func TestListPrinters(t *testing.T) {
	fx := newFixture(t)

	resp, err := http.Get(fx.engine.URL + "/api/v1/printers")
	require.NoError(t, err)
	out := decode(t, resp)
	assert.Equal(t, 200, out.Meta.Code)
	require.NotNil(t, out.Data)
}

func TestTestPrintEnqueuesLocalJob(t *testing.T) {
	fx := newFixture(t)

	resp, err := http.Post(fx.engine.URL+"/api/v1/printers/p1/test", "application/json", nil)
	require.NoError(t, err)
	out := decode(t, resp)
	assert.Equal(t, 200, out.Meta.Code)

	require.Len(t, fx.jobs.jobs, 1)
	job := fx.jobs.jobs[0]
	assert.Equal(t, entity.JobTypeTest, job.JobType)
	assert.Equal(t, "p1", job.PrinterID)
	// 测试页是本地任务：不关联云端订单，只试一次
	assert.Empty(t, job.CloudOrderID)
	assert.Equal(t, 1, job.MaxRetries)
}

func TestOpenDrawerEnqueuesPulseJob(t *testing.T) {
	fx := newFixture(t)

	resp, err := http.Post(fx.engine.URL+"/api/v1/printers/p1/drawer", "application/json", nil)
	require.NoError(t, err)
	out := decode(t, resp)
	assert.Equal(t, 200, out.Meta.Code)

	require.Len(t, fx.jobs.jobs, 1)
	job := fx.jobs.jobs[0]
	assert.Equal(t, entity.JobTypeCashDrawer, job.JobType)
	assert.Equal(t, "p1", job.PrinterID)
	assert.NotEmpty(t, job.Payload)
}

func TestOpenDrawerRejectsKitchenPrinter(t *testing.T) {
	fx := newFixture(t)

	// 厨房打印机没有钱箱接口
	resp, err := http.Post(fx.engine.URL+"/api/v1/printers/p2/drawer", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, fx.jobs.jobs)
}

func TestTestPrintUnknownPrinter(t *testing.T) {
	fx := newFixture(t)

	resp, err := http.Post(fx.engine.URL+"/api/v1/printers/nope/test", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetOrder(t *testing.T) {
	fx := newFixture(t)

	resp, err := http.Get(fx.engine.URL + "/api/v1/orders/local-1")
	require.NoError(t, err)
	out := decode(t, resp)
	assert.Equal(t, 200, out.Meta.Code)

	resp, err = http.Get(fx.engine.URL + "/api/v1/orders/ghost")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReprintAcceptsEmptyBody(t *testing.T) {
	fx := newFixture(t)

	resp, err := http.Post(fx.engine.URL+"/api/v1/orders/local-1/reprint", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"local-1:"}, fx.reprinter.calls)
}

func TestReprintValidatesJobType(t *testing.T) {
	fx := newFixture(t)

	body := strings.NewReader(`{"job_type":"POSTER"}`)
	resp, err := http.Post(fx.engine.URL+"/api/v1/orders/local-1/reprint", "application/json", body)
	require.NoError(t, err)
	out := decode(t, resp)
	assert.Equal(t, http.StatusBadRequest, out.Meta.Code)
	assert.Empty(t, fx.reprinter.calls)

	body = strings.NewReader(`{"job_type":"RECEIPT"}`)
	resp, err = http.Post(fx.engine.URL+"/api/v1/orders/local-1/reprint", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"local-1:RECEIPT"}, fx.reprinter.calls)
}

func TestCancelOutbox(t *testing.T) {
	fx := newFixture(t)

	resp, err := http.Post(fx.engine.URL+"/api/v1/outbox/op-1/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"op-1"}, fx.outbox.cancelled)

	resp, err = http.Post(fx.engine.URL+"/api/v1/outbox/missing/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gqurishi/POS-in-NET-sub004/internal/entity"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/errorutil"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

// Caller 出站调用执行器（云端客户端实现）
type Caller interface {
	Do(ctx context.Context, method, endpoint string, payload []byte, headers map[string]string) (int, []byte, error)
}

// Flusher 队列冲刷循环
// 周期性选取 Pending 条目（优先级升序，再按创建时间），逐条认领执行。
// 成功转 SENT（载荷保留审计）；失败累计重试，到上限转终态 FAILED，
// 之后的周期不再碰它，等人工介入
type Flusher struct {
	store    Store
	caller   Caller
	interval time.Duration
	batch    int
	logger   logger.Logger
}

// NewFlusher 创建冲刷循环
func NewFlusher(store Store, caller Caller, interval time.Duration, batch int, log logger.Logger) *Flusher {
	return &Flusher{
		store:    store,
		caller:   caller,
		interval: interval,
		batch:    batch,
		logger:   log,
	}
}

// Name 实现 worker.Runner
func (f *Flusher) Name() string {
	return "outbox-flush"
}

// Run 启动冲刷循环
func (f *Flusher) Run(ctx context.Context) {
	ctx = logger.WithWorker(ctx, f.Name())
	f.logger.Infof(ctx, "[Outbox] Flusher started, interval: %v", f.interval)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Infof(ctx, "[Outbox] Flusher stopped")
			return
		case <-ticker.C:
			f.Flush(ctx)
		}
	}
}

// Flush 执行一轮冲刷
func (f *Flusher) Flush(ctx context.Context) {
	items, err := f.store.SelectRetryable(ctx, f.batch)
	if err != nil {
		f.logger.Errorf(ctx, "[Outbox] Failed to select queue items: %v", err)
		return
	}

	for i := range items {
		if ctx.Err() != nil {
			return
		}
		f.flushOne(ctx, &items[i])
	}
}

// flushOne 执行单个条目
func (f *Flusher) flushOne(ctx context.Context, item *entity.OfflineQueueItem) {
	claimed, err := f.store.Claim(ctx, item.ID)
	if err != nil {
		f.logger.Errorf(ctx, "[Outbox] Failed to claim item %s: %v", item.ID, err)
		return
	}
	if !claimed {
		return
	}

	headers := decodeHeaders(item.Headers)
	code, body, err := f.caller.Do(ctx, item.Method, item.Endpoint, item.Payload, headers)

	if err == nil && code >= 200 && code < 300 {
		if err := f.store.MarkSent(ctx, item.ID, code, truncate(string(body), 2048)); err != nil {
			f.logger.Errorf(ctx, "[Outbox] Failed to mark item sent: %v", err)
			return
		}
		f.logger.Infof(ctx, "[Outbox] Operation sent: %s %s -> %d", item.Method, item.Endpoint, code)
		return
	}

	ferr := classifyFailure(code, err)
	reason := ferr.Error()
	retryCount := item.RetryCount + 1

	// 4xx 这类拒绝重发多少次都是同样的结果，直接进终态
	if !errorutil.IsRetryable(ferr) || retryCount >= item.MaxRetries {
		f.logger.Errorf(ctx, "[Outbox] Operation %s failed terminally: %s", item.ID, reason)
		if err := f.store.MarkFailed(ctx, item.ID, retryCount, reason); err != nil {
			f.logger.Errorf(ctx, "[Outbox] Failed to mark item failed: %v", err)
		}
		return
	}

	f.logger.Warnf(ctx, "[Outbox] Operation %s attempt %d/%d failed: %s", item.ID, retryCount, item.MaxRetries, reason)
	if err := f.store.ReleaseForRetry(ctx, item.ID, retryCount, reason); err != nil {
		f.logger.Errorf(ctx, "[Outbox] Failed to release item: %v", err)
	}
}

// decodeHeaders 反序列化自定义头
func decodeHeaders(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var headers map[string]string
	if err := json.Unmarshal(raw, &headers); err != nil {
		return nil
	}
	return headers
}

// classifyFailure 按云端客户端同样的口径划分可否重试：
// 网络错误和 5xx/408/429 可重试，其余 4xx 属于拒绝
func classifyFailure(code int, err error) error {
	if err != nil {
		return errorutil.Retriable(err.Error())
	}
	if code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return errorutil.Retriable(fmt.Sprintf("server error: %d", code))
	}
	return errorutil.NonRetriable(fmt.Sprintf("rejected: %d", code))
}

// truncate 截断响应体，避免超长文本撑爆列
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

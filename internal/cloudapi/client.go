package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/atomic"

	"github.com/gqurishi/POS-in-NET-sub004/internal/model"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/config"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/errorutil"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

// 回执上报路径
const ackPath = "/order-ack"

// 最近一次成功调用在此窗口内则认为云端可达
const healthyWindow = 90 * time.Second

// Client 云端平台 HTTP 客户端
// 所有请求带超时；挂起的连接不会拖住调用方的循环
type Client struct {
	baseURL  string
	tenant   string
	apiKey   string
	deviceID string
	httpCli  *http.Client
	logger   logger.Logger

	// 最近一次成功调用的 Unix 时间戳，用于判断网络可达性
	lastSuccess *atomic.Int64
}

// NewClient 创建云端客户端
func NewClient(cfg config.CloudConfig, deviceID string, log logger.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		tenant:   cfg.Tenant,
		apiKey:   cfg.APIKey,
		deviceID: deviceID,
		httpCli: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger:      log,
		lastSuccess: atomic.NewInt64(time.Now().Unix()),
	}
}

// Healthy 云端是否可达（最近有成功调用）
func (c *Client) Healthy() bool {
	last := time.Unix(c.lastSuccess.Load(), 0)
	return time.Since(last) < healthyWindow
}

// markSuccess 记录成功调用
func (c *Client) markSuccess() {
	c.lastSuccess.Store(time.Now().Unix())
}

// PullOrders 拉取待处理订单
// since 为当天起点时截取今日窗口（重连后的 catch-up 同步用同一入口）
func (c *Client) PullOrders(ctx context.Context, since time.Time) (*model.PullOrdersResponse, error) {
	q := url.Values{}
	q.Set("device_id", c.deviceID)
	if !since.IsZero() {
		q.Set("since", since.Format(time.RFC3339))
	}
	endpoint := fmt.Sprintf("%s/pull-orders?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errorutil.NonRetriable(fmt.Sprintf("build pull request: %v", err))
	}
	c.setHeaders(req)

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, errorutil.RetriableWithDetails("pull-orders request failed", err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errorutil.RetriableWithDetails("read pull-orders response", err.Error())
	}

	if resp.StatusCode >= 500 {
		return nil, errorutil.Retriable(fmt.Sprintf("pull-orders server error: %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errorutil.NonRetriable(fmt.Sprintf("pull-orders rejected: %d", resp.StatusCode))
	}

	var out model.PullOrdersResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errorutil.NonRetriableWithDetails("decode pull-orders response", err.Error())
	}

	c.markSuccess()
	return &out, nil
}

// PostAck 上报订单打印回执
func (c *Client) PostAck(ctx context.Context, ack model.OrderAckRequest) error {
	payload, err := json.Marshal(ack)
	if err != nil {
		return errorutil.NonRetriable(fmt.Sprintf("marshal ack: %v", err))
	}

	code, _, err := c.Do(ctx, http.MethodPost, ackPath, payload, nil)
	if err != nil {
		return err
	}
	if code < 200 || code >= 300 {
		if code >= 500 {
			return errorutil.Retriable(fmt.Sprintf("ack server error: %d", code))
		}
		return errorutil.NonRetriable(fmt.Sprintf("ack rejected: %d", code))
	}
	return nil
}

// Do 通用出站调用（离线队列 flush 用）
// endpoint 允许相对路径或完整 URL
func (c *Client) Do(
	ctx context.Context,
	method string,
	endpoint string,
	payload []byte,
	headers map[string]string,
) (int, []byte, error) {
	target := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	}

	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, nil, errorutil.NonRetriable(fmt.Sprintf("build request: %v", err))
	}
	c.setHeaders(req)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return 0, nil, errorutil.RetriableWithDetails("request failed", err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, errorutil.RetriableWithDetails("read response", err.Error())
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.markSuccess()
	}
	return resp.StatusCode, respBody, nil
}

// setHeaders 设置认证与内容头
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("X-Tenant", c.tenant)
}

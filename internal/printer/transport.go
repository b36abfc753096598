package printer

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Transport 打印机字节流传输接口
// 协议就是裸 TCP：connect → write → flush → close，没有应用层握手
type Transport interface {
	// Print 将完整打印任务字节写入打印机
	Print(ctx context.Context, addr string, data []byte) error
	// Probe 健康探测（仅尝试建连）
	Probe(ctx context.Context, addr string, timeout time.Duration) error
}

// TCPTransport 裸 TCP 传输实现（默认端口 9100）
type TCPTransport struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
}

// NewTCPTransport 创建 TCP 传输
func NewTCPTransport() *TCPTransport {
	return &TCPTransport{
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// Print 写入打印任务
func (t *TCPTransport) Print(ctx context.Context, addr string, data []byte) error {
	dialer := net.Dialer{Timeout: t.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(t.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	// 留给打印机缓冲区一点排空时间再断开
	select {
	case <-time.After(200 * time.Millisecond):
	case <-ctx.Done():
	}

	return nil
}

// Probe 建连探测
func (t *TCPTransport) Probe(ctx context.Context, addr string, timeout time.Duration) error {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	return conn.Close()
}

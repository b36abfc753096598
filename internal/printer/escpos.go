package printer

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/gqurishi/POS-in-NET-sub004/internal/entity"
)

// ESC/POS 控制序列
var (
	escInit       = []byte{0x1B, 0x40}             // ESC @ 初始化
	escBoldOn     = []byte{0x1B, 0x45, 0x01}       // ESC E 1 加粗
	escBoldOff    = []byte{0x1B, 0x45, 0x00}       // ESC E 0
	escDoubleOn   = []byte{0x1D, 0x21, 0x11}       // GS ! 倍宽倍高
	escDoubleOff  = []byte{0x1D, 0x21, 0x00}       // GS ! 还原
	escAlignLeft  = []byte{0x1B, 0x61, 0x00}       // ESC a 0
	escAlignMid   = []byte{0x1B, 0x61, 0x01}       // ESC a 1
	escFeed3      = []byte{0x1B, 0x64, 0x03}       // ESC d 3 走纸
	escCut        = []byte{0x1D, 0x56, 0x41, 0x00} // GS V A 0 半切
	escDrawerKick = []byte{0x1B, 0x70, 0x00, 0x19, 0xFA} // ESC p 钱箱脉冲
)

// Renderer 票据渲染器：把订单渲染为厂商中立的 ESC/POS 字节序列
type Renderer struct {
	// 纸宽对应的每行字符数：58mm=32、80mm=48
	columns int
}

// NewRenderer 按纸宽创建渲染器
func NewRenderer(paperWidthMM int) *Renderer {
	columns := 48
	if paperWidthMM <= 58 {
		columns = 32
	}
	return &Renderer{columns: columns}
}

// RenderKitchenTicket 渲染厨房票（某个打印分组的行项目）
func (r *Renderer) RenderKitchenTicket(order *entity.LocalOrder, items []entity.OrderItem, addons map[string][]entity.ItemAddon) []byte {
	var buf bytes.Buffer
	buf.Write(escInit)

	buf.Write(escAlignMid)
	buf.Write(escDoubleOn)
	buf.WriteString(fmt.Sprintf("#%s\n", order.OrderNo))
	buf.Write(escDoubleOff)
	buf.WriteString(orderTypeLabel(order.OrderType) + "\n")
	buf.Write(escAlignLeft)

	r.divider(&buf)
	buf.WriteString(order.CreatedAt.Format("02/01/2006 15:04") + "\n")
	if order.CustomerName != "" {
		buf.WriteString(order.CustomerName + "\n")
	}
	r.divider(&buf)

	for _, item := range items {
		buf.Write(escBoldOn)
		buf.WriteString(fmt.Sprintf("%dx %s\n", item.Quantity, r.clip(item.Name)))
		buf.Write(escBoldOff)
		for _, addon := range addons[item.ID] {
			buf.WriteString(fmt.Sprintf("   + %s\n", r.clip(addon.Name)))
		}
		if item.Note != "" {
			buf.WriteString(fmt.Sprintf("   * %s\n", r.clip(item.Note)))
		}
	}

	buf.Write(escFeed3)
	buf.Write(escCut)
	return buf.Bytes()
}

// RenderReceipt 渲染客户小票（全部行项目加金额汇总）
func (r *Renderer) RenderReceipt(order *entity.LocalOrder, items []entity.OrderItem, addons map[string][]entity.ItemAddon) []byte {
	var buf bytes.Buffer
	buf.Write(escInit)

	buf.Write(escAlignMid)
	buf.Write(escBoldOn)
	buf.WriteString(fmt.Sprintf("ORDER #%s\n", order.OrderNo))
	buf.Write(escBoldOff)
	buf.WriteString(orderTypeLabel(order.OrderType) + "\n")
	buf.WriteString(order.CreatedAt.Format("02/01/2006 15:04") + "\n")
	buf.Write(escAlignLeft)
	r.divider(&buf)

	for _, item := range items {
		lineTotal := float64(item.Quantity) * item.UnitPrice
		buf.WriteString(r.priceLine(fmt.Sprintf("%dx %s", item.Quantity, item.Name), lineTotal))
		for _, addon := range addons[item.ID] {
			buf.WriteString(r.priceLine("  + "+addon.Name, addon.Price*float64(addon.Quantity)))
		}
	}

	r.divider(&buf)
	buf.WriteString(r.priceLine("Subtotal", order.Subtotal))
	if order.Discount > 0 {
		buf.WriteString(r.priceLine("Discount", -order.Discount))
	}
	buf.WriteString(r.priceLine("Tax", order.Tax))
	buf.Write(escBoldOn)
	buf.WriteString(r.priceLine("TOTAL", order.Total))
	buf.Write(escBoldOff)
	r.divider(&buf)

	if order.PaymentMethod != "" {
		buf.WriteString(fmt.Sprintf("Paid by %s (%s)\n", order.PaymentMethod, order.PaymentStatus))
	}

	buf.Write(escFeed3)
	buf.Write(escCut)
	return buf.Bytes()
}

// RenderTestPage 渲染测试页
func (r *Renderer) RenderTestPage(p *entity.NetworkPrinter) []byte {
	var buf bytes.Buffer
	buf.Write(escInit)
	buf.Write(escAlignMid)
	buf.Write(escBoldOn)
	buf.WriteString("TEST PAGE\n")
	buf.Write(escBoldOff)
	buf.Write(escAlignLeft)
	r.divider(&buf)
	buf.WriteString(fmt.Sprintf("Printer: %s\n", p.Name))
	buf.WriteString(fmt.Sprintf("Address: %s\n", p.Addr()))
	buf.WriteString(fmt.Sprintf("Group:   %s\n", p.PrintGroup))
	buf.WriteString(fmt.Sprintf("Time:    %s\n", time.Now().Format("02/01/2006 15:04:05")))
	buf.Write(escFeed3)
	buf.Write(escCut)
	return buf.Bytes()
}

// RenderDrawerKick 渲染钱箱脉冲序列
func (r *Renderer) RenderDrawerKick() []byte {
	var buf bytes.Buffer
	buf.Write(escInit)
	buf.Write(escDrawerKick)
	return buf.Bytes()
}

// divider 分隔线
func (r *Renderer) divider(buf *bytes.Buffer) {
	buf.WriteString(strings.Repeat("-", r.columns) + "\n")
}

// priceLine 左侧名称、右侧金额对齐的一行
func (r *Renderer) priceLine(name string, amount float64) string {
	price := fmt.Sprintf("%.2f", amount)
	space := r.columns - len(name) - len(price)
	if space < 1 {
		name = r.clipTo(name, r.columns-len(price)-1)
		space = 1
	}
	return name + strings.Repeat(" ", space) + price + "\n"
}

// clip 截断到一行可打印宽度
func (r *Renderer) clip(s string) string {
	return r.clipTo(s, r.columns-4)
}

func (r *Renderer) clipTo(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

// orderTypeLabel 订单类型展示标签
func orderTypeLabel(orderType string) string {
	switch orderType {
	case entity.OrderTypePickup:
		return "PICKUP"
	case entity.OrderTypeDelivery:
		return "DELIVERY"
	case entity.OrderTypeDineIn:
		return "DINE-IN"
	default:
		return orderType
	}
}

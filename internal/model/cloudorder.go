package model

import (
	"github.com/gqurishi/POS-in-NET-sub004/pkg/numeric"
)

// CloudOrder 云端订单报文
// 金额/数量字段使用 numeric 宽容解码：字符串或数字都接受
type CloudOrder struct {
	OrderID   string `json:"order_id"`
	OrderNo   string `json:"order_no"`
	OrderType string `json:"order_type"`

	Customer CloudCustomer    `json:"customer"`
	Items    []CloudOrderItem `json:"items"`

	Subtotal numeric.Float `json:"subtotal"`
	Tax      numeric.Float `json:"tax"`
	Discount numeric.Float `json:"discount"`
	Total    numeric.Float `json:"total"`

	PaymentMethod string `json:"payment_method"`
	PaymentStatus string `json:"payment_status"`

	ScheduledAt string `json:"scheduled_at"`
	CreatedAt   string `json:"created_at"`
}

// CloudCustomer 客户信息
type CloudCustomer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// CloudOrderItem 订单行项目
type CloudOrderItem struct {
	Name       string          `json:"name"`
	Quantity   numeric.Int     `json:"quantity"`
	Price      numeric.Float   `json:"price"`
	Note       string          `json:"special_instructions"`
	PrintGroup string          `json:"print_group"`
	Modifiers  []CloudModifier `json:"modifiers"`
}

// CloudModifier 行项目附加项
type CloudModifier struct {
	Name     string        `json:"name"`
	Price    numeric.Float `json:"price"`
	Quantity numeric.Int   `json:"quantity"`
}

// PullOrdersResponse pull-orders 接口响应
type PullOrdersResponse struct {
	Success    bool         `json:"success"`
	Orders     []CloudOrder `json:"orders"`
	Count      int          `json:"count"`
	ServerTime string       `json:"server_time"`
	DeviceID   string       `json:"device_id"`
}

// OrderAckRequest 回执上报请求
type OrderAckRequest struct {
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	PrintedAt string `json:"printed_at,omitempty"`
	DeviceID  string `json:"device_id"`
}

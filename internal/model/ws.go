package model

import "encoding/json"

// WSFrame 推送通道消息帧
type WSFrame struct {
	Type     string          `json:"type"`
	Tenant   string          `json:"tenant,omitempty"`
	DeviceID string          `json:"device_id,omitempty"`
	Order    json.RawMessage `json:"order,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// 消息帧类型常量
const (
	FrameTypeRegister   = "register"
	FrameTypeRegistered = "registered"
	FrameTypePing       = "ping"
	FrameTypePong       = "pong"
	FrameTypeHeartbeat  = "heartbeat"
	FrameTypeNewOrder   = "new_order"
)

// OrderBatch 部分服务端把订单包在数组里推送
type OrderBatch struct {
	Orders []CloudOrder `json:"orders"`
}

package numeric

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// 云端协议的金额/数量字段既可能是 JSON 数字，也可能是字符串（"12.50"）。
// Float/Int 两种情况都接受；字符串解析失败时取零值，不让单个字段拖垮整单。

// Float 宽容解码的浮点字段
type Float float64

// UnmarshalJSON 实现 json.Unmarshaler
func (f *Float) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			// ParseFloat 接受 "NaN"/"Inf"，金额字段里这些同样是垃圾
			*f = 0
			return nil
		}
		*f = Float(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		*f = 0
		return nil
	}
	*f = Float(v)
	return nil
}

// Value 返回 float64 值
func (f Float) Value() float64 {
	return float64(f)
}

// Int 宽容解码的整数字段
type Int int

// UnmarshalJSON 实现 json.Unmarshaler
func (i *Int) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*i = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*i = 0
			return nil
		}
		s = strings.TrimSpace(s)
		if v, err := strconv.Atoi(s); err == nil {
			*i = Int(v)
			return nil
		}
		// "2.0" 这类写法按浮点截断
		if v, err := strconv.ParseFloat(s, 64); err == nil && intConvertible(v) {
			*i = Int(v)
			return nil
		}
		*i = 0
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil || !intConvertible(v) {
		*i = 0
		return nil
	}
	*i = Int(v)
	return nil
}

// intConvertible 过滤 NaN/Inf 和超出 int 表示范围的值：
// 这些经 float→int 转换会得到无意义的极值而不是零
func intConvertible(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	// float64(MaxInt) 正好是 2^63，等于它的值转回 int 已经溢出
	return v >= math.MinInt && v < math.MaxInt
}

// Value 返回 int 值
func (i Int) Value() int {
	return int(i)
}

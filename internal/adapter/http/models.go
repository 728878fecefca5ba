package http

import "time"

// APIResponse API统一响应结构
type APIResponse struct {
	Code    int         `json:"code"`           // 响应码，0表示成功，失败时为错误码
	Message string      `json:"message"`        // 响应消息
	Data    interface{} `json:"data,omitempty"` // 响应数据
}

// TextRequest 发送文字请求，未填写的字段使用配置默认值
type TextRequest struct {
	Text         string  `json:"text" binding:"required,max=500"`
	Font         string  `json:"font"`
	FontSize     float64 `json:"fontSize" binding:"omitempty,min=4,max=64"`
	Animation    string  `json:"animation"` // hold/left/right/up/down/blink/fade/tetris/fill
	Speed        *int    `json:"speed" binding:"omitempty,min=0,max=255"`
	ColorMode    *int    `json:"colorMode" binding:"omitempty,min=0,max=5"`
	Color        []int   `json:"color"`
	BgMode       *int    `json:"bgMode" binding:"omitempty,min=0,max=2"`
	BgColor      []int   `json:"bgColor"`
	Spacing      *int    `json:"spacing" binding:"omitempty,min=0,max=16"`
	Proportional *bool   `json:"proportional"`
	Compact      *bool   `json:"compact"`
}

// DrawModeRequest 绘图模式请求
type DrawModeRequest struct {
	Mode uint8 `json:"mode"`
}

// ScreenRequest 开关屏请求
type ScreenRequest struct {
	On *bool `json:"on" binding:"required"`
}

// BrightnessRequest 亮度请求，percent与level二选一
type BrightnessRequest struct {
	Percent *int `json:"percent" binding:"omitempty,min=0,max=100"`
	Level   *int `json:"level" binding:"omitempty,min=0,max=255"` // 0~255 亮度等级
}

// ClockRequest 时钟表盘请求
type ClockRequest struct {
	Style    uint8 `json:"style" binding:"max=7"`
	ShowDate bool  `json:"showDate"`
	Hour24   bool  `json:"hour24"`
	Color    []int `json:"color"`
}

// UploadResponse 上传结果
type UploadResponse struct {
	ID         string `json:"id"`
	Address    string `json:"address"`
	Kind       string `json:"kind"`
	Bytes      int    `json:"bytes"`
	Writes     int    `json:"writes"`
	DurationMs int64  `json:"durationMs"`
}

// HealthResponse 健康检查响应数据
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	Displays  int       `json:"displays"`
}

// RouteInfo 路由信息
type RouteInfo struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// RoutesResponse 路由列表响应
type RoutesResponse struct {
	Routes []RouteInfo `json:"routes"`
	Count  int         `json:"count"`
}

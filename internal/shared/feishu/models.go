package feishu

// =============================================================================
// 飞书API数据模型 — 消息卡片推送所需的最小集合
// =============================================================================

// BaseResponse 飞书API统一响应基础结构
type BaseResponse struct {
	Code int    `json:"code"` // 0表示成功
	Msg  string `json:"msg"`
}

// SendMessageResponse 发送消息响应
type SendMessageResponse struct {
	BaseResponse
	Data struct {
		MessageID string `json:"message_id"`
	} `json:"data"`
}

// InteractiveCard 交互式消息卡片
type InteractiveCard struct {
	Config   *CardConfig   `json:"config,omitempty"`
	Header   *CardHeader   `json:"header,omitempty"`
	Elements []CardElement `json:"elements"`
}

// CardConfig 卡片配置
type CardConfig struct {
	WideScreenMode bool `json:"wide_screen_mode"`
}

// CardHeader 卡片头部
type CardHeader struct {
	Title    CardText `json:"title"`
	Template string   `json:"template,omitempty"` // 颜色模板：blue/orange/green/red等
}

// CardText 卡片文本
type CardText struct {
	Tag     string `json:"tag"` // plain_text 或 lark_md
	Content string `json:"content"`
}

// CardField 卡片字段（双列布局）
type CardField struct {
	IsShort bool     `json:"is_short"`
	Text    CardText `json:"text"`
}

// CardElement 卡片元素
type CardElement struct {
	Tag      string        `json:"tag"` // div/hr/note/plain_text
	Text     *CardText     `json:"text,omitempty"`
	Content  string        `json:"content,omitempty"`
	Fields   []CardField   `json:"fields,omitempty"`
	Elements []CardElement `json:"elements,omitempty"`
}

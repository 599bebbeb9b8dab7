package feishu

import (
	"context"
	"encoding/json"
	"fmt"
)

// =============================================================================
// 消息卡片服务 — 发送飞书交互式消息卡片
// 绩效考核通知统一走个人卡片推送
// =============================================================================

// SendUserCard 向个人发送消息卡片
// userID: 用户ID（open_id）
// card: 交互式卡片内容
func (c *FeishuClient) SendUserCard(ctx context.Context, userID string, card InteractiveCard) error {
	return c.sendCard(ctx, "open_id", userID, card)
}

// sendCard 发送消息卡片的内部实现
func (c *FeishuClient) sendCard(ctx context.Context, idType, id string, card InteractiveCard) error {
	// 将卡片序列化为JSON字符串
	cardBytes, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("序列化卡片内容失败: %w", err)
	}

	reqBody := map[string]interface{}{
		"receive_id_type": idType,
		"receive_id":      id,
		"msg_type":        "interactive",
		"content":         string(cardBytes),
	}

	path := fmt.Sprintf("/open-apis/im/v1/messages?receive_id_type=%s", idType)

	var resp SendMessageResponse
	if err := c.doRequest(ctx, "POST", path, reqBody, &resp); err != nil {
		return fmt.Errorf("发送消息卡片失败: %w", err)
	}

	return nil
}

// =============================================================================
// 预设卡片模板 — 绩效考核业务通知卡片
// =============================================================================

// NewNotificationCard 创建通用业务通知卡片
// title: 通知标题
// message: 通知正文（lark_md）
// link: 跳转提示文案（可为空）
func NewNotificationCard(title, message, link string) InteractiveCard {
	elements := []CardElement{
		{
			Tag:  "div",
			Text: &CardText{Tag: "lark_md", Content: message},
		},
	}

	if link != "" {
		elements = append(elements,
			CardElement{Tag: "hr"},
			CardElement{
				Tag: "note",
				Elements: []CardElement{
					{Tag: "plain_text", Content: link},
				},
			},
		)
	}

	return InteractiveCard{
		Config: &CardConfig{WideScreenMode: true},
		Header: &CardHeader{
			Title:    CardText{Tag: "plain_text", Content: title},
			Template: "blue",
		},
		Elements: elements,
	}
}

// NewReviewTurnCard 创建"轮到你评审"通知卡片
// employeeName: 被考核人名称
// stepName: 当前环节名称
// period: 考核周期
func NewReviewTurnCard(employeeName, stepName, period string) InteractiveCard {
	return InteractiveCard{
		Config: &CardConfig{WideScreenMode: true},
		Header: &CardHeader{
			Title:    CardText{Tag: "plain_text", Content: "📝 绩效评审待处理"},
			Template: "orange",
		},
		Elements: []CardElement{
			{
				Tag: "div",
				Fields: []CardField{
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**被考核人**\n%s", employeeName)}},
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**考核周期**\n%s", period)}},
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**当前环节**\n%s", stepName)}},
				},
			},
			{Tag: "hr"},
			{
				Tag: "note",
				Elements: []CardElement{
					{Tag: "plain_text", Content: "请登录绩效系统处理此评审"},
				},
			},
		},
	}
}

// NewAppraisalResultCard 创建考核结果通知卡片
// period: 考核周期
// result: 结果文案（如"已完成"/"被驳回"）
// comment: 备注（可为空）
func NewAppraisalResultCard(period, result, comment string) InteractiveCard {
	elements := []CardElement{
		{
			Tag: "div",
			Fields: []CardField{
				{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**考核周期**\n%s", period)}},
				{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**结果**\n%s", result)}},
			},
		},
	}

	if comment != "" {
		elements = append(elements, CardElement{
			Tag:  "div",
			Text: &CardText{Tag: "lark_md", Content: fmt.Sprintf("**备注**\n%s", comment)},
		})
	}

	return InteractiveCard{
		Config: &CardConfig{WideScreenMode: true},
		Header: &CardHeader{
			Title:    CardText{Tag: "plain_text", Content: "✅ 绩效考核结果"},
			Template: "green",
		},
		Elements: elements,
	}
}

package adapter

// MessageType 消息类型
type MessageType string

// 网关上报的两类消息
const (
	MessageTypePrivate MessageType = "private"
	MessageTypeGroup   MessageType = "group"
)

// Sender 消息发送者
type Sender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card"` // 群名片, 可能为空
}

// Profile 机器人身份
type Profile struct {
	QQID     string `yaml:"qq-id"`
	Nickname string `yaml:"nickname"`
}

const defaultNickname = "紫幻"

// MessageEvent 解码后的消息事件, 消息段保持网关上报顺序
type MessageEvent struct {
	MessageID   int64       `json:"message_id"`
	MessageType MessageType `json:"message_type"`
	Sender      Sender      `json:"sender"`
	Elements    Elements    `json:"message"`
	GroupID     *int64      `json:"group_id,omitempty"`
	GroupName   string      `json:"group_name,omitempty"`
}

// IsGroupMessage 是否为群消息
func (m *MessageEvent) IsGroupMessage() bool {
	return m.MessageType == MessageTypeGroup
}

package store

// MessageRecord 一条消息的持久化投影, 与触发事件一一对应
type MessageRecord struct {
	MessageID    string `json:"message_id"`
	SenderID     string `json:"sender_id"`
	SenderName   string `json:"sender_name"`
	Timestamp    int64  `json:"timestamp"` // 处理时刻的本地时间, 非网关时间
	GroupID      string `json:"group_id,omitempty"`
	GroupName    string `json:"group_name,omitempty"`
	Content      string `json:"content"`
	AtTargetList string `json:"at_target_list,omitempty"` // 逗号分隔, 空串表示无目标
}

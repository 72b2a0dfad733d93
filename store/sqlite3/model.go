package sqlite3

// Sqlite3MessageRecordTableName 消息记录表
const Sqlite3MessageRecordTableName = "msgrec"

// StoredMessageRecord 持久化消息记录行
type StoredMessageRecord struct {
	ID           string // ID is the message_id, 主键
	SenderID     string
	SenderName   string // SenderName is base16384 encoded
	Timestamp    int64
	GroupID      string
	GroupName    string // GroupName is base16384 encoded
	Content      string // Content is base16384 encoded
	AtTargetList string
}

// Package sqlite3 持久化日志后端, 承接消息记录的追加与启动回灌
package sqlite3

import (
	"os"
	"path"
	"strconv"
	"sync"
	"time"

	sql "github.com/FloatTech/sqlite"
	b14 "github.com/fumiama/go-base16384"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/zihuan-next/aibot/store"
)

type database struct {
	lock   sync.Mutex // 单连接, 操作与连接重建串行化
	db     sql.Sqlite
	path   string
	policy *store.ReconnectPolicy
}

type config struct {
	Path                 string `yaml:"path"`
	ReconnectMaxAttempts uint   `yaml:"reconnect-max-attempts"`
	ReconnectInterval    uint   `yaml:"reconnect-interval"` // 秒
}

func init() {
	store.Register("sqlite3", func(node yaml.Node) any {
		conf := new(config)
		_ = node.Decode(conf)
		if conf.Path == "" {
			// 与旧版行为一致, 允许从环境变量取数据库位置
			conf.Path = os.Getenv("DATABASE_URL")
		}
		if conf.Path == "" {
			return nil
		}
		return &database{
			path: conf.Path,
			policy: store.NewReconnectPolicy(conf.ReconnectMaxAttempts,
				time.Duration(conf.ReconnectInterval)*time.Second),
		}
	})
}

// open 建立连接, 持有 db.lock 以便与进行中的操作及并发重连互斥
func (db *database) open() error {
	db.lock.Lock()
	defer db.lock.Unlock()
	db.db.DBPath = db.path
	if err := db.db.Open(time.Hour * 24); err != nil {
		return errors.Wrap(err, "open sqlite3 error")
	}
	if err := db.db.Create(Sqlite3MessageRecordTableName, &StoredMessageRecord{}); err != nil {
		return errors.Wrap(err, "create msgrec table error")
	}
	return nil
}

func (db *database) Open() error {
	if dir := path.Dir(db.path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	return db.policy.Do("sqlite3", db.open, db.open)
}

// AppendRecord 追加一条消息记录, 连接失败时按策略有界重连
func (db *database) AppendRecord(r *store.MessageRecord) error {
	rec := &StoredMessageRecord{
		ID:           r.MessageID,
		SenderID:     r.SenderID,
		SenderName:   encode(r.SenderName),
		Timestamp:    r.Timestamp,
		GroupID:      r.GroupID,
		GroupName:    encode(r.GroupName),
		Content:      encode(r.Content),
		AtTargetList: r.AtTargetList,
	}
	return db.policy.Do("sqlite3", func() error {
		db.lock.Lock()
		defer db.lock.Unlock()
		return db.db.Insert(Sqlite3MessageRecordTableName, rec)
	}, db.open)
}

// RecentRecords 按时间倒序遍历最近 limit 条记录
func (db *database) RecentRecords(limit int, f func(*store.MessageRecord) error) error {
	if limit <= 0 {
		return nil
	}
	var rec StoredMessageRecord
	return db.policy.Do("sqlite3", func() error {
		db.lock.Lock()
		defer db.lock.Unlock()
		err := db.db.FindFor(Sqlite3MessageRecordTableName, &rec,
			"ORDER BY Timestamp DESC LIMIT "+strconv.Itoa(limit),
			func() error { return f(rec.toRecord()) })
		if errors.Is(err, sql.ErrNullResult) {
			return nil // 空表不算失败
		}
		return err
	}, db.open)
}

func (db *database) Close() error {
	db.lock.Lock()
	defer db.lock.Unlock()
	return db.db.Close()
}

func (rec *StoredMessageRecord) toRecord() *store.MessageRecord {
	return &store.MessageRecord{
		MessageID:    rec.ID,
		SenderID:     rec.SenderID,
		SenderName:   decode(rec.SenderName),
		Timestamp:    rec.Timestamp,
		GroupID:      rec.GroupID,
		GroupName:    decode(rec.GroupName),
		Content:      decode(rec.Content),
		AtTargetList: rec.AtTargetList,
	}
}

// encode sqlite 中任意文本统一以 base16384 存储
func encode(s string) string {
	if s == "" {
		return ""
	}
	return b14.EncodeString(s)
}

func decode(s string) string {
	if s == "" {
		return ""
	}
	return b14.DecodeString(s)
}

// Package store 实现消息的多级存储:
// 进程内缓存 → 可选的本地/网络缓存后端 → 可选的持久化日志后端.
// 内存层永远可用且在本进程内为读取的最终依据, 其余层按配置逐级降级.
package store

import (
	"encoding/json"

	"github.com/RomiChan/syncx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/zihuan-next/aibot/utils"
)

// ErrNotFound 后端中不存在指定消息
var ErrNotFound = errors.New("message not found")

// Backend 缓存后端, 内存层之外的缓存层都实现该接口
type Backend interface {
	// Open 建立连接, 由 Init 在注册后调用
	Open() error
	// PutMessage 写入一条原始消息
	PutMessage(key, value string) error
	// GetMessage 读取原始消息, 未命中返回 ErrNotFound
	GetMessage(key string) (string, error)
	// Close 释放连接
	Close() error
}

// RecordBackend 持久化日志后端, 只承接消息记录的追加与回溯
type RecordBackend interface {
	// Open 建立连接
	Open() error
	// AppendRecord 追加一条消息记录
	AppendRecord(r *MessageRecord) error
	// RecentRecords 按时间倒序遍历最近 limit 条记录
	RecentRecords(limit int, f func(*MessageRecord) error) error
	// Close 释放连接
	Close() error
}

var (
	// backends 已注册的后端构造函数, 返回 Backend 或 RecordBackend,
	// 配置缺失或未启用时返回 nil
	backends = map[string]func(node yaml.Node) any{}
	// order 注册顺序, 即缓存层级顺序
	order []string
)

// Register 注册存储后端, 在各后端包的 init 中调用
func Register(name string, init func(node yaml.Node) any) {
	if _, ok := backends[name]; ok {
		panic("store: backend " + name + " already registered")
	}
	backends[name] = init
	order = append(order, name)
}

// MessageStore 多级消息存储
type MessageStore struct {
	memory syncx.Map[string, string]
	caches []Backend
	record RecordBackend
}

// NewMessageStore 按给定后端构建存储, 后端均可为空(纯内存模式)
func NewMessageStore(caches []Backend, record RecordBackend) *MessageStore {
	return &MessageStore{caches: caches, record: record}
}

// Init 根据配置实例化已注册的后端并建立连接.
// 后端打开失败仅降级并记录日志, 不影响进程启动.
func Init(conf map[string]yaml.Node) *MessageStore {
	s := new(MessageStore)
	for _, name := range order {
		node, ok := conf[name]
		if !ok {
			continue
		}
		switch backend := backends[name](node).(type) {
		case nil:
			continue
		case Backend:
			if err := backend.Open(); err != nil {
				log.Warnf("缓存后端 %s 打开失败, 已降级: %v", name, err)
				continue
			}
			s.caches = append(s.caches, backend)
			log.Infof("缓存后端 %s 已就绪.", name)
		case RecordBackend:
			if s.record != nil {
				log.Warnf("存储后端 %s 与已有持久化后端冲突, 忽略.", name)
				continue
			}
			if err := backend.Open(); err != nil {
				log.Warnf("持久化日志后端 %s 打开失败, 已降级: %v", name, err)
				continue
			}
			s.record = backend
			log.Infof("持久化日志后端 %s 已就绪.", name)
		default:
			log.Warnf("存储后端 %s 类型未知, 忽略.", name)
		}
	}
	return s
}

// PutMessage 写入原始消息. 内存层始终写入;
// 缓存后端的失败只记录日志, 不向调用方传播.
func (s *MessageStore) PutMessage(key, value string) {
	if key == "" {
		log.Warn("消息缺少 message_id, 无法写入存储.")
		return
	}
	s.memory.Store(key, value)
	for _, c := range s.caches {
		if err := c.PutMessage(key, value); err != nil {
			log.Warnf("消息 %s 写入缓存后端失败: %v", key, err)
		}
	}
}

// GetMessage 读取原始消息, 内存层优先, 未命中时逐级回源并回填内存
func (s *MessageStore) GetMessage(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	if v, ok := s.memory.Load(key); ok {
		return v, true
	}
	for _, c := range s.caches {
		v, err := c.GetMessage(key)
		if err == nil {
			s.memory.Store(key, v)
			return v, true
		}
		if !errors.Is(err, ErrNotFound) {
			log.Warnf("消息 %s 读取缓存后端失败: %v", key, err)
		}
	}
	return "", false
}

// AppendRecord 追加消息记录到持久化日志, 未配置持久化后端时为成功的空操作
func (s *MessageStore) AppendRecord(r *MessageRecord) error {
	if s.record == nil {
		return nil
	}
	return s.record.AppendRecord(r)
}

// Hydrate 启动时从持久化日志加载最近 limit 条记录进缓存层,
// 返回实际加载的条数. 未配置持久化后端时返回 0.
// 回灌的值是消息记录的 JSON 形式, 与实时写入的原始事件 JSON 形状不同,
// 读取方需同时兼容两种形状.
func (s *MessageStore) Hydrate(limit int) (int, error) {
	if s.record == nil || limit <= 0 {
		return 0, nil
	}
	count := 0
	err := s.record.RecentRecords(limit, func(r *MessageRecord) error {
		raw, err := json.Marshal(r)
		if err != nil {
			return err
		}
		s.PutMessage(r.MessageID, utils.B2S(raw))
		count++
		return nil
	})
	if err != nil {
		return count, errors.Wrap(err, "load recent records")
	}
	return count, nil
}

// Close 关闭全部后端连接
func (s *MessageStore) Close() {
	for _, c := range s.caches {
		if err := c.Close(); err != nil {
			log.Warnf("关闭缓存后端失败: %v", err)
		}
	}
	if s.record != nil {
		if err := s.record.Close(); err != nil {
			log.Warnf("关闭持久化后端失败: %v", err)
		}
	}
}

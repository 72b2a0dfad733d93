// Package adapter 实现机器人网关适配器:
// 维护到网关的 websocket 连接, 顺序读取消息帧,
// 将解码后的事件交给分发管线, 读循环不等待任何下游工作.
package adapter

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/RomiChan/websocket"
	"github.com/pkg/errors"
	base64 "github.com/segmentio/asm/base64"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/zihuan-next/aibot/store"
	"github.com/zihuan-next/aibot/utils"
)

// ConnState 网关连接状态
type ConnState int32

// 状态机: Disconnected → Connecting → Connected → Closed.
// 进入 Closed 后读循环返回, 不做自动重连, 是否重新发起由调用方决定.
const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosed
)

// EventHandler 事件处理函数, 按注册顺序同步调用
type EventHandler func(event *MessageEvent, s *store.MessageStore)

// BrainAgent 可选的事件处理代理, 每个事件在独立任务中调用一次,
// 失败只记录日志, 不影响处理函数与入库
type BrainAgent interface {
	Name() string
	OnEvent(bot *BotAdapter, event *MessageEvent) error
}

// Config BotAdapter 构造配置
type Config struct {
	URL     string
	Token   string
	Profile Profile
}

// BotAdapter 机器人网关适配器
type BotAdapter struct {
	url   string
	token string
	store *store.MessageStore
	state atomic.Int32

	lock     sync.RWMutex // 只保护下面的元数据, 不跨越任何网络调用
	profile  Profile
	handlers []EventHandler
	brain    BrainAgent
}

// NewBotAdapter 构造适配器. 机器人 QQ 号为必填项, 缺失时在连接前报错.
func NewBotAdapter(conf Config, s *store.MessageStore) (*BotAdapter, error) {
	if conf.Profile.QQID == "" {
		return nil, errors.New("bot qq-id is required")
	}
	if conf.Profile.Nickname == "" {
		conf.Profile.Nickname = defaultNickname
	}
	return &BotAdapter{
		url:     conf.URL,
		token:   conf.Token,
		store:   s,
		profile: conf.Profile,
	}, nil
}

// OnEventPush 注册事件处理函数, 应在 Start 之前调用
func (bot *BotAdapter) OnEventPush(f EventHandler) {
	bot.lock.Lock()
	bot.handlers = append(bot.handlers, f)
	bot.lock.Unlock()
}

// SetBrainAgent 设置事件处理代理, 应在 Start 之前调用
func (bot *BotAdapter) SetBrainAgent(agent BrainAgent) {
	bot.lock.Lock()
	bot.brain = agent
	bot.lock.Unlock()
}

// BotID 机器人 QQ 号
func (bot *BotAdapter) BotID() string {
	bot.lock.RLock()
	defer bot.lock.RUnlock()
	return bot.profile.QQID
}

// BotProfile 机器人身份信息
func (bot *BotAdapter) BotProfile() Profile {
	bot.lock.RLock()
	defer bot.lock.RUnlock()
	return bot.profile
}

// MessageStore 消息存储句柄
func (bot *BotAdapter) MessageStore() *store.MessageStore {
	return bot.store
}

// State 当前连接状态
func (bot *BotAdapter) State() ConnState {
	return ConnState(bot.state.Load())
}

// Start 与网关完成升级握手并运行读循环, 阻塞直到对端关闭或传输出错.
// 升级请求携带 Bearer 鉴权与从地址中提取的 Host 头,
// 其余升级头和随机握手 key 由 dialer 生成.
func (bot *BotAdapter) Start() error {
	if !bot.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return errors.New("adapter already started")
	}
	log.Infof("开始连接机器人网关: %v", bot.url)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+bot.token)
	if host := utils.ExtractHost(bot.url); host != "" {
		header.Set("Host", host)
	}
	dialer := websocket.Dialer{HandshakeTimeout: time.Second * 10}
	conn, _, err := dialer.Dial(bot.url, header)
	if err != nil {
		bot.state.Store(int32(StateClosed))
		return errors.Wrap(err, "connect to gateway error")
	}
	bot.state.Store(int32(StateConnected))
	log.Info("连接机器人网关成功, 开始处理信息.")

	bot.readLoop(conn)
	return nil
}

// readLoop 顺序读取消息帧. 解码失败不会关闭连接;
// Ping/Pong 由底层协议栈应答, 不会到达这里.
func (bot *BotAdapter) readLoop(conn *websocket.Conn) {
	defer func() {
		bot.state.Store(int32(StateClosed))
		_ = conn.Close()
	}()
	for {
		t, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Infof("网关连接已关闭: %v", err)
			} else {
				log.Errorf("读取网关消息失败: %v", err)
			}
			return
		}
		switch t {
		case websocket.TextMessage:
			bot.processFrame(data)
		case websocket.BinaryMessage:
			if !utf8.Valid(data) {
				log.Warnf("收到非 UTF-8 的二进制消息, 已丢弃: %v", base64Snippet(data))
				continue
			}
			bot.processFrame(data)
		default:
			// 其余帧类型忽略
		}
	}
}

// processFrame 解码一帧并派发
func (bot *BotAdapter) processFrame(data []byte) {
	m := decodeEvent(data)
	if m == nil {
		return
	}
	bot.dispatch(&Event{Raw: m})
}

// decodeEvent 将一帧文本解析为消息事件.
// 非 JSON 与 schema 不符的帧丢弃并记录; 没有 message_type 字段的
// 控制类事件静默忽略, 不产生任何存储写入与分发.
func decodeEvent(data []byte) *MessageEvent {
	log.Debugf("收到网关消息: %v", utils.B2S(data))
	if !gjson.ValidBytes(data) {
		log.Warnf("网关消息不是合法 JSON, 已丢弃: %v", utils.B2S(data))
		return nil
	}
	if !gjson.GetBytes(data, "message_type").Exists() {
		log.Debug("忽略非消息事件.")
		return nil
	}
	m := new(MessageEvent)
	if err := json.Unmarshal(data, m); err != nil {
		log.Errorf("解析消息事件失败: %v", err)
		return nil
	}
	if m.MessageType != MessageTypePrivate && m.MessageType != MessageTypeGroup {
		log.Errorf("未知消息类型 %q, 已丢弃.", m.MessageType)
		return nil
	}
	return m
}

// base64Snippet 供日志输出的载荷摘要
func base64Snippet(data []byte) string {
	const max = 48
	if len(data) > max {
		data = data[:max]
	}
	return base64.StdEncoding.EncodeToString(data)
}

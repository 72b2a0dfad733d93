package adapter

import (
	"bytes"
	"encoding/json"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zihuan-next/aibot/global"
	"github.com/zihuan-next/aibot/store"
	"github.com/zihuan-next/aibot/utils/ternary"
)

// Event 一次分发中的事件及其懒序列化缓冲
type Event struct {
	once   sync.Once
	Raw    *MessageEvent
	buffer *bytes.Buffer
}

func (e *Event) marshal() {
	if e.buffer == nil {
		e.buffer = global.NewBuffer()
	}
	b, err := json.Marshal(e.Raw)
	if err != nil {
		log.Warnf("marshal message payload error: %v", err)
		return
	}
	e.buffer.Write(b)
}

// JSONBytes return bytes of json by lazy marshalling.
// 返回值引用池内缓冲, 只在 release 之前有效.
func (e *Event) JSONBytes() []byte {
	e.once.Do(e.marshal)
	return e.buffer.Bytes()
}

func (e *Event) release() {
	if e.buffer != nil {
		global.PutBuffer(e.buffer)
		e.buffer = nil
	}
}

// dispatch 派发单个事件: 原始消息与消息记录各自在独立任务中入库,
// 处理函数链与代理在另一任务中运行. 读循环对这里的任何一步都不等待,
// 入库完成与处理函数观察到事件之间没有先后保证.
func (bot *BotAdapter) dispatch(event *Event) {
	go bot.storeRaw(event)
	go bot.process(event)
}

// storeRaw 以 message_id 的十进制串为键写入重新序列化的事件原文
func (bot *BotAdapter) storeRaw(event *Event) {
	key := strconv.FormatInt(event.Raw.MessageID, 10)
	bot.store.PutMessage(key, string(event.JSONBytes())) // 拷贝后归还缓冲
	event.release()
}

// process 分发任务主体: 先异步持久化消息记录,
// 再按注册顺序依次调用处理函数, 最后在独立任务中唤起代理.
func (bot *BotAdapter) process(event *Event) {
	m := event.Raw
	switch m.MessageType {
	case MessageTypePrivate:
		log.Infof("收到好友 %v(%v) 的消息: %v", m.Sender.Nickname, m.Sender.UserID, ToStringMessage(m.Elements))
	case MessageTypeGroup:
		var gid int64
		if m.GroupID != nil {
			gid = *m.GroupID
		}
		log.Infof("收到群 %v(%v) 内 %v(%v) 的消息: %v",
			m.GroupName, gid, m.Sender.Nickname, m.Sender.UserID, ToStringMessage(m.Elements))
	}

	record := bot.newRecord(m)
	go func() {
		if err := bot.store.AppendRecord(record); err != nil {
			log.Errorf("消息记录 %v 持久化失败: %v", record.MessageID, err)
			return
		}
		log.Debugf("消息记录 %v 已持久化.", record.MessageID)
	}()

	bot.lock.RLock()
	handlers := make([]EventHandler, len(bot.handlers))
	copy(handlers, bot.handlers)
	brain := bot.brain
	bot.lock.RUnlock()

	for _, f := range handlers {
		bot.callHandler(f, m)
	}

	if brain != nil {
		go func() {
			defer func() {
				if pan := recover(); pan != nil {
					log.Errorf("代理 %v 处理事件 %v 时发生 panic: %v\n%s",
						brain.Name(), m.MessageID, pan, debug.Stack())
				}
			}()
			if err := brain.OnEvent(bot, m); err != nil {
				log.Errorf("代理 %v 处理事件 %v 失败: %v", brain.Name(), m.MessageID, err)
			}
		}()
	}
}

// callHandler 调用单个处理函数并隔离其 panic
func (bot *BotAdapter) callHandler(f EventHandler, m *MessageEvent) {
	defer func() {
		if pan := recover(); pan != nil {
			log.Warnf("处理事件 %v 时出现错误: %v\n%s", m.MessageID, pan, debug.Stack())
		}
	}()
	start := time.Now()
	f(m, bot.store)
	if d := time.Since(start); d > time.Second*5 {
		log.Debugf("警告: 事件处理耗时超过 5 秒 (%v), 请检查应用是否有堵塞.", d)
	}
}

// newRecord 由事件派生持久化记录.
// 群消息优先以群名片为展示名; 私聊消息的 at 目标固定为机器人自身,
// 群消息仅在存在可解析 @目标时填充.
func (bot *BotAdapter) newRecord(m *MessageEvent) *store.MessageRecord {
	isGroup := m.IsGroupMessage()
	record := &store.MessageRecord{
		MessageID:  strconv.FormatInt(m.MessageID, 10),
		SenderID:   strconv.FormatInt(m.Sender.UserID, 10),
		SenderName: ternary.BV(isGroup && m.Sender.Card != "", m.Sender.Card, m.Sender.Nickname),
		Timestamp:  time.Now().Unix(),
		GroupName:  m.GroupName,
		Content:    contentString(m.Elements),
	}
	if m.GroupID != nil {
		record.GroupID = strconv.FormatInt(*m.GroupID, 10)
	}
	if isGroup {
		record.AtTargetList = strings.Join(AtTargets(m.Elements), ",")
	} else {
		record.AtTargetList = bot.BotID()
	}
	return record
}

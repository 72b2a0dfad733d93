package adapter

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/zihuan-next/aibot/store"
)

func newTestBot(t *testing.T) *BotAdapter {
	t.Helper()
	bot, err := NewBotAdapter(Config{
		URL:     "ws://localhost:3001",
		Profile: Profile{QQID: "10001", Nickname: "紫幻"},
	}, store.NewMessageStore(nil, nil))
	require.NoError(t, err)
	return bot
}

func privateEvent(id int64, text string) *MessageEvent {
	return &MessageEvent{
		MessageID:   id,
		MessageType: MessageTypePrivate,
		Sender:      Sender{UserID: 111, Nickname: "Alice"},
		Elements:    Elements{&TextElement{Text: text}},
	}
}

func groupEvent(id int64, elems Elements) *MessageEvent {
	gid := int64(789)
	return &MessageEvent{
		MessageID:   id,
		MessageType: MessageTypeGroup,
		Sender:      Sender{UserID: 111, Nickname: "Alice", Card: "群名片"},
		Elements:    elems,
		GroupID:     &gid,
		GroupName:   "测试群",
	}
}

func TestEventJSONBytes(t *testing.T) {
	event := &Event{Raw: privateEvent(123, "hi")}
	b1 := event.JSONBytes()
	assert.Equal(t, int64(123), gjson.GetBytes(b1, "message_id").Int())
	// 懒序列化只发生一次
	assert.Equal(t, b1, event.JSONBytes())
	event.release()
}

func TestStoreRaw(t *testing.T) {
	bot := newTestBot(t)
	bot.storeRaw(&Event{Raw: privateEvent(123, "hi")})

	v, ok := bot.store.GetMessage("123")
	require.True(t, ok)
	assert.Equal(t, "private", gjson.Get(v, "message_type").String())
	assert.Equal(t, "hi", gjson.Get(v, "message.0.text").String())
}

func TestHandlersCalledInOrder(t *testing.T) {
	bot := newTestBot(t)
	var got []string
	push := func(name string) {
		bot.OnEventPush(func(event *MessageEvent, s *store.MessageStore) {
			got = append(got, name)
		})
	}
	push("h1")
	push("h2")
	push("h3")

	// process 内处理函数链为同步调用
	bot.process(&Event{Raw: privateEvent(1, "hi")})
	assert.Equal(t, []string{"h1", "h2", "h3"}, got)
}

func TestHandlerPanicIsolation(t *testing.T) {
	bot := newTestBot(t)
	var got []string
	bot.OnEventPush(func(event *MessageEvent, s *store.MessageStore) {
		got = append(got, "h1")
		panic("boom")
	})
	bot.OnEventPush(func(event *MessageEvent, s *store.MessageStore) {
		got = append(got, "h2")
	})

	assert.NotPanics(t, func() {
		bot.process(&Event{Raw: privateEvent(1, "hi")})
	})
	assert.Equal(t, []string{"h1", "h2"}, got)
}

type fakeBrain struct {
	events chan *MessageEvent
	err    error
}

func (b *fakeBrain) Name() string { return "fake" }

func (b *fakeBrain) OnEvent(bot *BotAdapter, event *MessageEvent) error {
	b.events <- event
	return b.err
}

func TestBrainAgentReceivesEvent(t *testing.T) {
	bot := newTestBot(t)
	brain := &fakeBrain{events: make(chan *MessageEvent, 1)}
	bot.SetBrainAgent(brain)

	bot.process(&Event{Raw: privateEvent(42, "hi")})
	select {
	case m := <-brain.events:
		assert.Equal(t, int64(42), m.MessageID)
	case <-time.After(time.Second):
		t.Fatal("brain agent not invoked")
	}
}

func TestBrainAgentFailureIsolation(t *testing.T) {
	bot := newTestBot(t)
	brain := &fakeBrain{events: make(chan *MessageEvent, 1), err: errors.New("model offline")}
	bot.SetBrainAgent(brain)
	var handled bool
	bot.OnEventPush(func(event *MessageEvent, s *store.MessageStore) {
		handled = true
	})

	assert.NotPanics(t, func() {
		bot.process(&Event{Raw: privateEvent(1, "hi")})
	})
	assert.True(t, handled)
	select {
	case <-brain.events:
	case <-time.After(time.Second):
		t.Fatal("brain agent not invoked")
	}
}

func TestNewRecordPrivate(t *testing.T) {
	bot := newTestBot(t)
	record := bot.newRecord(privateEvent(123, "hi"))

	assert.Equal(t, "123", record.MessageID)
	assert.Equal(t, "111", record.SenderID)
	assert.Equal(t, "Alice", record.SenderName)
	assert.Equal(t, "hi", record.Content)
	assert.Empty(t, record.GroupID)
	assert.Empty(t, record.GroupName)
	// 私聊消息的 at 目标固定为机器人自身
	assert.Equal(t, "10001", record.AtTargetList)
	assert.Greater(t, record.Timestamp, int64(0))
}

func TestNewRecordGroup(t *testing.T) {
	bot := newTestBot(t)
	t1, t2 := int64(222), int64(333)
	record := bot.newRecord(groupEvent(456, Elements{
		&AtElement{Target: &t1},
		&AtElement{Target: &t2},
		&TextElement{Text: "hello"},
	}))

	assert.Equal(t, "456", record.MessageID)
	assert.Equal(t, "789", record.GroupID)
	assert.Equal(t, "测试群", record.GroupName)
	// 群名片优先于昵称
	assert.Equal(t, "群名片", record.SenderName)
	assert.Equal(t, "hello", record.Content)
	assert.Equal(t, "222,333", record.AtTargetList)
}

func TestNewRecordGroupWithoutAt(t *testing.T) {
	bot := newTestBot(t)
	record := bot.newRecord(groupEvent(457, Elements{&TextElement{Text: "hello"}}))
	assert.Empty(t, record.AtTargetList)
}

func TestNewRecordGroupWithoutCard(t *testing.T) {
	bot := newTestBot(t)
	m := groupEvent(458, Elements{&TextElement{Text: "hello"}})
	m.Sender.Card = ""
	record := bot.newRecord(m)
	assert.Equal(t, "Alice", record.SenderName)
}

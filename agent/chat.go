// Package agent 提供基于 OpenAI 兼容接口的事件处理代理
package agent

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"

	"github.com/zihuan-next/aibot/adapter"
)

// ChatAgent 自动回复代理: 对私聊消息与 @机器人 的群消息起草回复,
// 草稿以 reply:<message_id> 为键写入消息存储. 发送不在其职责内.
type ChatAgent struct {
	client *openai.Client
	model  string
}

// Config ChatAgent 配置
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

const (
	systemPrompt   = "你是一个 QQ 群聊机器人, 请用简短自然的中文回复下面这条消息."
	requestTimeout = time.Second * 30
	replyKeyPrefix = "reply:"
)

// NewChatAgent 构建自动回复代理
func NewChatAgent(conf Config) *ChatAgent {
	cfg := openai.DefaultConfig(conf.APIKey)
	if conf.BaseURL != "" {
		cfg.BaseURL = conf.BaseURL
	}
	if conf.Model == "" {
		conf.Model = openai.GPT3Dot5Turbo
	}
	return &ChatAgent{
		client: openai.NewClientWithConfig(cfg),
		model:  conf.Model,
	}
}

// Name 代理名称
func (a *ChatAgent) Name() string {
	return "chat"
}

// OnEvent 为事件起草回复. 群消息未 @机器人 时直接跳过.
func (a *ChatAgent) OnEvent(bot *adapter.BotAdapter, event *adapter.MessageEvent) error {
	if event.IsGroupMessage() && !slices.Contains(adapter.AtTargets(event.Elements), bot.BotID()) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: adapter.ToStringMessage(event.Elements)},
		},
	})
	if err != nil {
		return errors.Wrap(err, "chat completion error")
	}
	if len(resp.Choices) == 0 {
		return errors.New("chat completion returned no choices")
	}

	draft := resp.Choices[0].Message.Content
	bot.MessageStore().PutMessage(replyKeyPrefix+strconv.FormatInt(event.MessageID, 10), draft)
	log.Infof("代理已为消息 %v 起草回复: %v", event.MessageID, draft)
	return nil
}

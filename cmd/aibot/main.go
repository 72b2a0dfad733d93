// aibot 程序入口
package main

import (
	"io"
	"path"
	"time"

	"github.com/joho/godotenv"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/mattn/go-colorable"
	log "github.com/sirupsen/logrus"

	"github.com/zihuan-next/aibot/adapter"
	"github.com/zihuan-next/aibot/agent"
	"github.com/zihuan-next/aibot/global"
	"github.com/zihuan-next/aibot/internal/base"
	"github.com/zihuan-next/aibot/store"

	// 存储后端, 注册顺序即缓存层级顺序
	_ "github.com/zihuan-next/aibot/store/leveldb"
	_ "github.com/zihuan-next/aibot/store/mongodb"
	_ "github.com/zihuan-next/aibot/store/sqlite3"
)

func main() {
	initBase()
	s := prepareData()
	defer s.Close()
	run(s)
}

// initBase 加载环境与配置, 必要时打印帮助后终止
func initBase() {
	_ = godotenv.Load()
	base.Parse()
	if base.LittleH {
		base.Help()
	}
	base.Init()
}

// prepareData 准备日志与消息存储, 必须在 initBase 之后执行
func prepareData() *store.MessageStore {
	rotateOptions := []rotatelogs.Option{
		rotatelogs.WithRotationTime(time.Hour * 24),
		rotatelogs.WithMaxAge(base.LogAging),
	}
	if base.LogForceNew {
		rotateOptions = append(rotateOptions, rotatelogs.ForceNewFile())
	}
	w, err := rotatelogs.New(path.Join("logs", "%Y-%m-%d.log"), rotateOptions...)
	if err != nil {
		log.Errorf("rotatelogs init err: %v", err)
		panic(err)
	}

	consoleFormatter := global.LogFormat{EnableColor: base.LogColorful}
	fileFormatter := global.LogFormat{EnableColor: false}
	// 输出全部交由钩子分流, 等级过滤也在钩子内完成
	log.SetOutput(io.Discard)
	log.SetLevel(log.TraceLevel)
	log.AddHook(global.NewLocalHook(colorable.NewColorableStdout(), w,
		consoleFormatter, fileFormatter, global.GetLogLevel(base.LogLevel)...))
	if base.Debug {
		log.Warnf("已开启Debug模式.")
	}

	s := store.Init(base.Database)
	if count, err := s.Hydrate(base.HydrateLimit); err != nil {
		log.Warnf("启动回灌消息缓存失败: %v", err)
	} else if count > 0 {
		log.Infof("已从持久化日志回灌 %v 条消息记录.", count)
	}
	return s
}

// run 构建适配器并保持运行, 直到网关连接结束或收到退出信号.
// 网关连接结束后不做自动重连, 直接退出进程.
func run(s *store.MessageStore) {
	bot, err := adapter.NewBotAdapter(adapter.Config{
		URL:   base.GatewayURL,
		Token: base.GatewayToken,
		Profile: adapter.Profile{
			QQID:     base.AccountQQID,
			Nickname: base.AccountNickname,
		},
	}, s)
	if err != nil {
		log.Fatalf("初始化机器人适配器失败: %v", err)
	}
	if base.Agent.Enable {
		bot.SetBrainAgent(agent.NewChatAgent(agent.Config{
			APIKey:  base.Agent.APIKey,
			BaseURL: base.Agent.BaseURL,
			Model:   base.Agent.Model,
		}))
		log.Info("已启用自动回复代理.")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := bot.Start(); err != nil {
			log.Errorf("机器人网关连接失败: %v", err)
		}
	}()

	select {
	case <-done:
		log.Warn("网关连接已结束, 进程退出.")
	case <-global.SetupMainSignalHandler():
		log.Info("收到退出信号, 进程退出.")
	}
}

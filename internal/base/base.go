// Package base 提供全局配置: 命令行参数与 config.yml 的解析结果
package base

import (
	_ "embed"
	"flag"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.ilharper.com/x/isatty"
	"gopkg.in/yaml.v3"
)

// 命令行参数
var (
	LittleH    bool   // 帮助
	Debug      bool   // 调试模式
	ConfigFile string // 配置文件路径
)

// 配置文件解析结果
var (
	GatewayURL   string
	GatewayToken string

	AccountQQID     string
	AccountNickname string

	Database     map[string]yaml.Node
	HydrateLimit int

	Agent AgentConfig

	LogLevel    string
	LogColorful bool
	LogAging    time.Duration
	LogForceNew bool
)

// AgentConfig 自动回复代理配置
type AgentConfig struct {
	Enable  bool   `yaml:"enable"`
	APIKey  string `yaml:"api-key"`
	BaseURL string `yaml:"base-url"`
	Model   string `yaml:"model"`
}

// config 配置文件结构
type config struct {
	Account struct {
		QQID     string `yaml:"qq-id"`
		Nickname string `yaml:"nickname"`
	} `yaml:"account"`
	Gateway struct {
		URL   string `yaml:"url"`
		Token string `yaml:"token"`
	} `yaml:"gateway"`
	Database     map[string]yaml.Node `yaml:"database"`
	HydrateLimit int                  `yaml:"hydrate-limit"`
	Agent        AgentConfig          `yaml:"agent"`
	Log          struct {
		Level    string `yaml:"level"`
		Aging    int    `yaml:"aging"` // 天
		ForceNew bool   `yaml:"force-new"`
		Colorful *bool  `yaml:"colorful"`
	} `yaml:"log"`
}

//go:embed default_config.yml
var defaultConfig []byte

// Parse 解析命令行参数
func Parse() {
	flag.StringVar(&ConfigFile, "c", "config.yml", "configuration filename")
	flag.BoolVar(&LittleH, "h", false, "this help")
	flag.BoolVar(&Debug, "D", false, "debug mode")
	flag.Parse()
}

// Help 打印帮助后终止程序
func Help() {
	flag.Usage()
	os.Exit(0)
}

// Init 读取配置文件并填充全局配置, 必须在 Parse 之后执行.
// 配置文件不存在时生成默认配置并以其内容继续运行;
// 地址/令牌/密钥缺失时回退到环境变量.
func Init() {
	data, err := os.ReadFile(ConfigFile)
	if err != nil {
		log.Warnf("读取配置文件 %v 失败: %v, 将生成默认配置.", ConfigFile, err)
		if werr := os.WriteFile(ConfigFile, defaultConfig, 0o644); werr != nil {
			log.Warnf("写入默认配置失败: %v", werr)
		}
		data = defaultConfig
	}
	conf := new(config)
	if err := yaml.Unmarshal(data, conf); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GatewayURL = firstOf(conf.Gateway.URL, os.Getenv("BOT_SERVER_URL"), "ws://localhost:3001")
	GatewayToken = firstOf(conf.Gateway.Token, os.Getenv("BOT_SERVER_TOKEN"))
	AccountQQID = conf.Account.QQID
	AccountNickname = conf.Account.Nickname
	Database = conf.Database
	HydrateLimit = conf.HydrateLimit
	if HydrateLimit <= 0 {
		HydrateLimit = 1000
	}
	Agent = conf.Agent
	if Agent.APIKey == "" {
		Agent.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	LogLevel = firstOf(conf.Log.Level, "info")
	if Debug {
		LogLevel = "debug"
	}
	LogAging = time.Hour * 24 * 15
	if conf.Log.Aging > 0 {
		LogAging = time.Hour * 24 * time.Duration(conf.Log.Aging)
	}
	LogForceNew = conf.Log.ForceNew
	if conf.Log.Colorful != nil {
		LogColorful = *conf.Log.Colorful
	} else {
		LogColorful = isatty.Isatty(os.Stdout.Fd())
	}
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package global

import (
	"io"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// LocalHook logrus本地钩子, 将同一条日志分别格式化后写入控制台与轮转日志文件
type LocalHook struct {
	lock          sync.Mutex
	levels        []log.Level
	console       io.Writer
	writer        io.Writer
	consoleFormat log.Formatter
	fileFormat    log.Formatter
}

// NewLocalHook 构建日志钩子, writer 一般为 rotatelogs 产生的文件写入器
func NewLocalHook(console, writer io.Writer, consoleFormat, fileFormat log.Formatter, levels ...log.Level) *LocalHook {
	return &LocalHook{
		levels:        levels,
		console:       console,
		writer:        writer,
		consoleFormat: consoleFormat,
		fileFormat:    fileFormat,
	}
}

// Levels 返回钩子生效的日志等级
func (hook *LocalHook) Levels() []log.Level {
	if len(hook.levels) == 0 {
		return log.AllLevels
	}
	return hook.levels
}

// Fire 日志写入
func (hook *LocalHook) Fire(entry *log.Entry) error {
	hook.lock.Lock()
	defer hook.lock.Unlock()

	if hook.console != nil {
		b, err := hook.consoleFormat.Format(entry)
		if err != nil {
			return err
		}
		_, _ = hook.console.Write(b)
	}
	if hook.writer != nil {
		b, err := hook.fileFormat.Format(entry)
		if err != nil {
			return err
		}
		_, _ = hook.writer.Write(b)
	}
	return nil
}

// LogFormat 日志输出格式
type LogFormat struct {
	EnableColor bool
}

const resetColorCode = "\x1b[0m"

func levelColorCode(level log.Level) string {
	switch level {
	case log.PanicLevel, log.FatalLevel, log.ErrorLevel:
		return "\x1b[31m" // 红
	case log.WarnLevel:
		return "\x1b[33m" // 黄
	case log.DebugLevel, log.TraceLevel:
		return "\x1b[37m" // 白
	default:
		return "\x1b[32m" // 绿
	}
}

// Format 格式化一条日志: [2006-01-02 15:04:05] [INFO]: message
func (f LogFormat) Format(entry *log.Entry) ([]byte, error) {
	buf := NewBuffer()
	defer PutBuffer(buf)

	if f.EnableColor {
		buf.WriteString(levelColorCode(entry.Level))
	}
	buf.WriteByte('[')
	buf.WriteString(entry.Time.Format("2006-01-02 15:04:05"))
	buf.WriteString("] [")
	buf.WriteString(strings.ToUpper(entry.Level.String()))
	buf.WriteString("]: ")
	buf.WriteString(entry.Message)
	if f.EnableColor {
		buf.WriteString(resetColorCode)
	}
	buf.WriteByte('\n')

	return append([]byte(nil), buf.Bytes()...), nil
}

// GetLogLevel 将配置的日志等级转换为 logrus 等级列表
func GetLogLevel(level string) []log.Level {
	switch strings.ToLower(level) {
	case "trace":
		return log.AllLevels
	case "debug":
		return []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel,
			log.WarnLevel, log.InfoLevel, log.DebugLevel}
	case "warn":
		return []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel, log.WarnLevel}
	case "error":
		return []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel}
	default:
		return []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel,
			log.WarnLevel, log.InfoLevel}
	}
}

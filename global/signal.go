package global

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var (
	mainOnce     sync.Once
	mainStopCh   chan struct{}
	mainSignalCh = make(chan os.Signal, 1)
)

// SetupMainSignalHandler 注册主进程信号处理, 返回的 channel 在收到退出信号后关闭
func SetupMainSignalHandler() <-chan struct{} {
	mainOnce.Do(func() {
		mainStopCh = make(chan struct{})
		signal.Notify(mainSignalCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-mainSignalCh
			close(mainStopCh)
		}()
	})
	return mainStopCh
}

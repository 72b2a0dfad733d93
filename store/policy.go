package store

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrBackendDisabled 后端重连预算耗尽, 进程剩余生命周期内不再使用
var ErrBackendDisabled = errors.New("backend disabled: reconnect attempts exhausted")

const (
	defaultReconnectMaxAttempts = 5
	defaultReconnectInterval    = 5 * time.Second
)

// ReconnectPolicy 单个存储后端的有界重连状态机.
// 操作因连接问题失败时, 最多重建连接 max 次, 每次间隔 interval;
// 预算耗尽后置为停用, 之后所有操作直接返回 ErrBackendDisabled.
type ReconnectPolicy struct {
	mu       sync.Mutex
	disabled bool
	max      uint
	interval time.Duration
}

// NewReconnectPolicy 构建重连策略, 参数为零值时取默认值
func NewReconnectPolicy(max uint, interval time.Duration) *ReconnectPolicy {
	if max == 0 {
		max = defaultReconnectMaxAttempts
	}
	if interval <= 0 {
		interval = defaultReconnectInterval
	}
	return &ReconnectPolicy{max: max, interval: interval}
}

// Permanent 标记与连接无关的操作错误: Do 直接返回原始错误,
// 不重建连接, 不消耗重连预算
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Disabled 后端是否已永久停用
func (p *ReconnectPolicy) Disabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disabled
}

func (p *ReconnectPolicy) disable() {
	p.mu.Lock()
	p.disabled = true
	p.mu.Unlock()
}

// Do 执行一次后端操作. op 失败时调用 reopen 重建连接后重试,
// 直到成功或重试预算耗尽. 锁不跨越任何一次网络往返.
func (p *ReconnectPolicy) Do(name string, op, reopen func() error) error {
	if p.Disabled() {
		return ErrBackendDisabled
	}
	err := op()
	if err == nil {
		return nil
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return pe.err
	}
	for i := uint(1); i <= p.max; i++ {
		log.Warnf("存储后端 %s 操作失败, %v 后尝试第 %d/%d 次重连: %v", name, p.interval, i, p.max, err)
		time.Sleep(p.interval)
		if rerr := reopen(); rerr != nil {
			err = rerr
			continue
		}
		if err = op(); err == nil {
			return nil
		}
		if errors.As(err, &pe) {
			return pe.err
		}
	}
	p.disable()
	log.Errorf("存储后端 %s 重连次数耗尽, 本进程内停用该后端: %v", name, err)
	return ErrBackendDisabled
}

package store

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestReconnectPolicySuccess(t *testing.T) {
	p := NewReconnectPolicy(3, time.Millisecond)
	calls := 0
	err := p.Do("test", func() error {
		calls++
		return nil
	}, func() error {
		t.Fatal("reopen should not be called")
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, p.Disabled())
}

func TestReconnectPolicyRecovers(t *testing.T) {
	p := NewReconnectPolicy(3, time.Millisecond)
	opCalls, reopens := 0, 0
	err := p.Do("test", func() error {
		opCalls++
		if opCalls == 1 {
			return errors.New("connection reset")
		}
		return nil
	}, func() error {
		reopens++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, opCalls)
	assert.Equal(t, 1, reopens)
	assert.False(t, p.Disabled())
}

func TestReconnectPolicyExhaustion(t *testing.T) {
	p := NewReconnectPolicy(2, time.Millisecond)
	opCalls, reopens := 0, 0
	err := p.Do("test", func() error {
		opCalls++
		return errors.New("connection refused")
	}, func() error {
		reopens++
		return nil
	})
	assert.ErrorIs(t, err, ErrBackendDisabled)
	assert.Equal(t, 3, opCalls) // 首次 + 2 次重连后的重试
	assert.Equal(t, 2, reopens)
	assert.True(t, p.Disabled())

	// 停用后不再触碰后端
	err = p.Do("test", func() error {
		t.Fatal("op should not be called after disable")
		return nil
	}, func() error {
		t.Fatal("reopen should not be called after disable")
		return nil
	})
	assert.ErrorIs(t, err, ErrBackendDisabled)
	assert.Equal(t, 3, opCalls)
}

func TestReconnectPolicyPermanentError(t *testing.T) {
	p := NewReconnectPolicy(3, time.Millisecond)
	cause := errors.New("document corrupt")
	calls := 0
	err := p.Do("test", func() error {
		calls++
		return Permanent(cause)
	}, func() error {
		t.Fatal("reopen should not be called for permanent errors")
		return nil
	})
	// 原始错误原样返回, 不消耗重连预算
	assert.Equal(t, cause, err)
	assert.Equal(t, 1, calls)
	assert.False(t, p.Disabled())

	assert.NoError(t, Permanent(nil))
}

func TestReconnectPolicyPermanentErrorAfterReopen(t *testing.T) {
	p := NewReconnectPolicy(3, time.Millisecond)
	cause := errors.New("document corrupt")
	opCalls, reopens := 0, 0
	err := p.Do("test", func() error {
		opCalls++
		if opCalls == 1 {
			return errors.New("connection reset")
		}
		return Permanent(cause)
	}, func() error {
		reopens++
		return nil
	})
	assert.Equal(t, cause, err)
	assert.Equal(t, 2, opCalls)
	assert.Equal(t, 1, reopens)
	assert.False(t, p.Disabled())
}

func TestReconnectPolicyDefaults(t *testing.T) {
	p := NewReconnectPolicy(0, 0)
	assert.Equal(t, uint(defaultReconnectMaxAttempts), p.max)
	assert.Equal(t, defaultReconnectInterval, p.interval)
}

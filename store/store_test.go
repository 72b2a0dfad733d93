package store

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// mapBackend 内存实现的缓存后端, 供测试替代真实连接
type mapBackend struct {
	data   map[string]string
	putErr error
	getErr error
	puts   int
	gets   int
	closed bool
}

func newMapBackend() *mapBackend {
	return &mapBackend{data: map[string]string{}}
}

func (b *mapBackend) Open() error { return nil }

func (b *mapBackend) PutMessage(key, value string) error {
	b.puts++
	if b.putErr != nil {
		return b.putErr
	}
	b.data[key] = value
	return nil
}

func (b *mapBackend) GetMessage(key string) (string, error) {
	b.gets++
	if b.getErr != nil {
		return "", b.getErr
	}
	v, ok := b.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (b *mapBackend) Close() error {
	b.closed = true
	return nil
}

// sliceRecordBackend 内存实现的持久化日志后端
type sliceRecordBackend struct {
	records []*MessageRecord
	err     error
}

func (b *sliceRecordBackend) Open() error { return nil }

func (b *sliceRecordBackend) AppendRecord(r *MessageRecord) error {
	if b.err != nil {
		return b.err
	}
	b.records = append(b.records, r)
	return nil
}

func (b *sliceRecordBackend) RecentRecords(limit int, f func(*MessageRecord) error) error {
	if b.err != nil {
		return b.err
	}
	for i := len(b.records) - 1; i >= 0 && len(b.records)-1-i < limit; i-- {
		if err := f(b.records[i]); err != nil {
			return err
		}
	}
	return nil
}

func (b *sliceRecordBackend) Close() error { return nil }

func TestPutGetRoundTrip(t *testing.T) {
	s := NewMessageStore(nil, nil)
	s.PutMessage("1001", `{"message_id":1001}`)
	v, ok := s.GetMessage("1001")
	assert.True(t, ok)
	assert.Equal(t, `{"message_id":1001}`, v)

	// 同键重写, 后写覆盖
	s.PutMessage("1001", `{"message_id":1001,"v":2}`)
	v, ok = s.GetMessage("1001")
	assert.True(t, ok)
	assert.Equal(t, `{"message_id":1001,"v":2}`, v)

	_, ok = s.GetMessage("nonexistent")
	assert.False(t, ok)
	_, ok = s.GetMessage("")
	assert.False(t, ok)
}

func TestEmptyKeyIgnored(t *testing.T) {
	cache := newMapBackend()
	s := NewMessageStore([]Backend{cache}, nil)
	s.PutMessage("", "value")
	assert.Zero(t, cache.puts)
}

func TestCacheFailureIsolation(t *testing.T) {
	broken := newMapBackend()
	broken.putErr = errors.New("connection reset")
	broken.getErr = errors.New("connection reset")
	healthy := newMapBackend()
	s := NewMessageStore([]Backend{broken, healthy}, nil)

	// 坏后端不影响写入其余层
	s.PutMessage("1", "one")
	assert.Equal(t, "one", healthy.data["1"])

	// 内存未命中时跳过坏后端, 从后续层回源
	healthy.data["2"] = "two"
	v, ok := s.GetMessage("2")
	assert.True(t, ok)
	assert.Equal(t, "two", v)
}

func TestGetMessageBackfillsMemory(t *testing.T) {
	cache := newMapBackend()
	cache.data["1"] = "one"
	s := NewMessageStore([]Backend{cache}, nil)

	v, ok := s.GetMessage("1")
	require.True(t, ok)
	assert.Equal(t, "one", v)
	assert.Equal(t, 1, cache.gets)

	// 第二次读取由内存层命中, 不再回源
	_, ok = s.GetMessage("1")
	assert.True(t, ok)
	assert.Equal(t, 1, cache.gets)
}

func TestAppendRecordWithoutBackend(t *testing.T) {
	s := NewMessageStore(nil, nil)
	assert.NoError(t, s.AppendRecord(&MessageRecord{MessageID: "1"}))
}

func TestAppendRecordDelegates(t *testing.T) {
	rec := &sliceRecordBackend{}
	s := NewMessageStore(nil, rec)
	require.NoError(t, s.AppendRecord(&MessageRecord{MessageID: "1", Content: "hi"}))
	require.Len(t, rec.records, 1)
	assert.Equal(t, "hi", rec.records[0].Content)
}

func TestHydrate(t *testing.T) {
	rec := &sliceRecordBackend{}
	for i := 1; i <= 8; i++ {
		rec.records = append(rec.records, &MessageRecord{
			MessageID:  strconv.Itoa(i),
			SenderID:   "111",
			SenderName: "Alice",
			Timestamp:  int64(i),
			Content:    fmt.Sprintf("msg %d", i),
		})
	}
	cache := newMapBackend()
	s := NewMessageStore([]Backend{cache}, rec)

	count, err := s.Hydrate(5)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	// 回灌的是最近的 5 条, 值为记录的 JSON 形式
	v, ok := s.GetMessage("8")
	require.True(t, ok)
	assert.Equal(t, "Alice", gjson.Get(v, "sender_name").String())
	assert.Equal(t, "msg 8", gjson.Get(v, "content").String())
	_, ok = s.GetMessage("3")
	assert.False(t, ok)

	// 缓存层同步写入
	assert.Equal(t, 5, cache.puts)
}

func TestHydrateWithoutBackend(t *testing.T) {
	s := NewMessageStore(nil, nil)
	count, err := s.Hydrate(1000)
	assert.NoError(t, err)
	assert.Zero(t, count)

	rec := &sliceRecordBackend{records: []*MessageRecord{{MessageID: "1"}}}
	s = NewMessageStore(nil, rec)
	count, err = s.Hydrate(0)
	assert.NoError(t, err)
	assert.Zero(t, count)
}

func TestHydrateError(t *testing.T) {
	rec := &sliceRecordBackend{err: errors.New("disk failure")}
	s := NewMessageStore(nil, rec)
	_, err := s.Hydrate(10)
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	cache := newMapBackend()
	s := NewMessageStore([]Backend{cache}, nil)
	s.Close()
	assert.True(t, cache.closed)
}

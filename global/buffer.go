package global

import (
	"bytes"
	"sync"
)

var bufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// NewBuffer 从池中获取新 bytes.Buffer
func NewBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

// PutBuffer 将 Buffer 放回池中
func PutBuffer(buf *bytes.Buffer) {
	// 过大的 buffer 不回收, 避免池内存常驻
	if buf.Cap() > 1<<20 {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

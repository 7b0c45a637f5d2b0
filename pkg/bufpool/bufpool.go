// Package bufpool pools the copy buffers used when assembling transfers
// and streaming assembled files, keeping allocation churn off the chunk
// hot path.
package bufpool

import (
	"io"
	"sync"

	"github.com/sfts-dev/sfts/internal/bytesize"
)

// Buffer size classes. Small covers the minimum protocol chunk size,
// large covers the common copy cases. Requests above the large class are
// allocated directly and never pooled.
const (
	SmallSize = int(64 * bytesize.KiB)
	LargeSize = int(1 * bytesize.MiB)
)

// Pool hands out reusable byte slices in two size classes.
type Pool struct {
	small sync.Pool
	large sync.Pool
}

// NewPool creates an empty buffer pool.
func NewPool() *Pool {
	p := &Pool{}
	p.small.New = func() any {
		buf := make([]byte, SmallSize)
		return &buf
	}
	p.large.New = func() any {
		buf := make([]byte, LargeSize)
		return &buf
	}
	return p
}

// Get returns a slice of exactly size bytes backed by a pooled buffer.
// Sizes above LargeSize are allocated directly and will not be pooled.
func (p *Pool) Get(size int) []byte {
	switch {
	case size <= SmallSize:
		return (*p.small.Get().(*[]byte))[:size]
	case size <= LargeSize:
		return (*p.large.Get().(*[]byte))[:size]
	default:
		return make([]byte, size)
	}
}

// Put returns a buffer obtained from Get. Buffers that do not match a
// size class are dropped.
func (p *Pool) Put(buf []byte) {
	buf = buf[:cap(buf)]
	switch len(buf) {
	case SmallSize:
		p.small.Put(&buf)
	case LargeSize:
		p.large.Put(&buf)
	}
}

// Copy is io.Copy with a pooled large buffer.
func (p *Pool) Copy(dst io.Writer, src io.Reader) (int64, error) {
	buf := p.Get(LargeSize)
	defer p.Put(buf)
	return io.CopyBuffer(dst, src, buf)
}

var defaultPool = NewPool()

// Get returns a buffer from the process-wide pool.
func Get(size int) []byte {
	return defaultPool.Get(size)
}

// Put returns a buffer to the process-wide pool.
func Put(buf []byte) {
	defaultPool.Put(buf)
}

// Copy is io.Copy with a pooled buffer from the process-wide pool.
func Copy(dst io.Writer, src io.Reader) (int64, error) {
	return defaultPool.Copy(dst, src)
}

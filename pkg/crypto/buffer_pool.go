// buffer_pool.go provides buffer pooling for chunk ciphertext padding to
// reduce allocations when a container has many chunks. The pool uses size
// classes matching the bucket ladder chunks are padded to
// (spec.md §3: {32, 64, 128, 256, 512, 1024}).
package crypto

import (
	"sync"

	"github.com/cloud10922/zkim/internal/constants"
)

// BufferPool hands out zeroed byte slices sized to the padding bucket
// ladder, plus a fallback for anything larger.
type BufferPool struct {
	pools map[int]*sync.Pool
	mu    sync.RWMutex
}

// globalBufferPool is the default pool instance used by the free functions
// below.
var globalBufferPool = NewBufferPool()

// NewBufferPool creates a buffer pool with one sync.Pool per bucket size.
func NewBufferPool() *BufferPool {
	p := &BufferPool{pools: make(map[int]*sync.Pool, len(constants.BucketSizes))}
	for _, size := range constants.BucketSizes {
		size := size
		p.pools[size] = &sync.Pool{
			New: func() any {
				buf := make([]byte, size)
				return &buf
			},
		}
	}
	return p
}

// bucketFor returns the smallest configured bucket size >= n, or 0 if n
// exceeds every bucket.
func bucketFor(n int) int {
	for _, size := range constants.BucketSizes {
		if n <= size {
			return size
		}
	}
	return 0
}

// Get returns a zeroed buffer of at least n bytes. Buffers larger than the
// largest bucket are allocated directly and never pooled.
func (p *BufferPool) Get(n int) []byte {
	if n <= 0 {
		return nil
	}
	bucket := bucketFor(n)
	if bucket == 0 {
		return make([]byte, n)
	}
	p.mu.RLock()
	pool := p.pools[bucket]
	p.mu.RUnlock()
	bufPtr := pool.Get().(*[]byte)
	buf := (*bufPtr)[:n]
	Zeroize(buf)
	return buf
}

// Put returns buf to the pool matching its capacity. Non-bucket-sized
// buffers are dropped for garbage collection instead of pooled.
func (p *BufferPool) Put(buf []byte) {
	if buf == nil {
		return
	}
	full := buf[:cap(buf)]
	Zeroize(full)
	p.mu.RLock()
	pool, ok := p.pools[cap(full)]
	p.mu.RUnlock()
	if !ok {
		return
	}
	pool.Put(&full)
}

// GetBuffer returns a buffer of at least n bytes from the global pool.
func GetBuffer(n int) []byte { return globalBufferPool.Get(n) }

// PutBuffer returns buf to the global pool.
func PutBuffer(buf []byte) { globalBufferPool.Put(buf) }

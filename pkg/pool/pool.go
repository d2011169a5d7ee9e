// Package pool provides object pooling for MuninDB to reduce allocations.
//
// Object pooling reuses allocated objects instead of creating new ones,
// reducing GC pressure on the hot learn/process paths, where every call
// allocates feature vectors, token lists, and per-cluster score maps.
//
// Pooled objects:
// - Feature-vector scratch buffers (fixed dimension, zeroed on Get)
// - Cluster score maps (cluster id -> accumulated similarity)
// - Token slices (input tokenization)
// - Byte buffers (storage serialization)
// - String builders (response assembly)
//
// Usage:
//
//	// Get a zeroed scratch vector from the pool
//	buf := pool.GetVector()
//	defer pool.PutVector(buf)
//
//	// Use the buffer...
//	buf[0] = 1.0
package pool

import (
	"sync"
)

// PoolConfig configures object pooling behavior.
type PoolConfig struct {
	// Enabled controls whether pooling is active
	Enabled bool

	// MaxSize limits maximum objects kept in each pool
	MaxSize int

	// VectorDim is the length of pooled vector buffers
	VectorDim int
}

var globalConfig = PoolConfig{
	Enabled:   true,
	MaxSize:   1000,
	VectorDim: 128,
}

// Configure sets global pool configuration.
// Should be called early during initialization, before any Get.
func Configure(config PoolConfig) {
	if config.VectorDim <= 0 {
		config.VectorDim = 128
	}
	globalConfig = config

	// Reinitialize pools so New functions capture the new dimension
	initPools()
}

// initPools reinitializes all pools with their New functions.
func initPools() {
	vectorPool = sync.Pool{
		New: func() any {
			return make([]float64, globalConfig.VectorDim)
		},
	}
	scoreMapPool = sync.Pool{
		New: func() any {
			return make(map[string]float64, 16)
		},
	}
	tokenSlicePool = sync.Pool{
		New: func() any {
			return make([]string, 0, 16)
		},
	}
	byteBufferPool = sync.Pool{
		New: func() any {
			return make([]byte, 0, 1024)
		},
	}
	stringBuilderPool = sync.Pool{
		New: func() any {
			return &PooledStringBuilder{buf: make([]byte, 0, 256)}
		},
	}
}

// IsEnabled returns whether pooling is enabled.
func IsEnabled() bool {
	return globalConfig.Enabled
}

// =============================================================================
// Vector Buffer Pool (encode/quantize scratch)
// =============================================================================

var vectorPool = sync.Pool{
	New: func() any {
		return make([]float64, globalConfig.VectorDim)
	},
}

// GetVector returns a zeroed vector buffer of the configured dimension.
// Call PutVector when done. Buffers with a stale dimension (after a
// Configure call) are replaced rather than reused.
func GetVector() []float64 {
	if !globalConfig.Enabled {
		return make([]float64, globalConfig.VectorDim)
	}
	v := vectorPool.Get().([]float64)
	if len(v) != globalConfig.VectorDim {
		return make([]float64, globalConfig.VectorDim)
	}
	for i := range v {
		v[i] = 0
	}
	return v
}

// PutVector returns a vector buffer to the pool.
func PutVector(v []float64) {
	if !globalConfig.Enabled || v == nil {
		return
	}
	if len(v) != globalConfig.VectorDim {
		return
	}
	vectorPool.Put(v)
}

// =============================================================================
// Score Map Pool (per-cluster similarity accumulation)
// =============================================================================

var scoreMapPool = sync.Pool{
	New: func() any {
		return make(map[string]float64, 16)
	},
}

// GetScoreMap returns an empty score map from the pool.
func GetScoreMap() map[string]float64 {
	if !globalConfig.Enabled {
		return make(map[string]float64, 16)
	}
	m := scoreMapPool.Get().(map[string]float64)
	for k := range m {
		delete(m, k)
	}
	return m
}

// PutScoreMap returns a score map to the pool.
func PutScoreMap(m map[string]float64) {
	if !globalConfig.Enabled || m == nil {
		return
	}
	if len(m) > globalConfig.MaxSize {
		return
	}
	for k := range m {
		delete(m, k)
	}
	scoreMapPool.Put(m)
}

// =============================================================================
// Token Slice Pool (tokenization)
// =============================================================================

var tokenSlicePool = sync.Pool{
	New: func() any {
		return make([]string, 0, 16)
	},
}

// GetTokenSlice returns a token slice from the pool.
// The returned slice has length 0 but may have capacity.
func GetTokenSlice() []string {
	if !globalConfig.Enabled {
		return make([]string, 0, 16)
	}
	return tokenSlicePool.Get().([]string)[:0]
}

// PutTokenSlice returns a token slice to the pool.
func PutTokenSlice(s []string) {
	if !globalConfig.Enabled {
		return
	}
	if cap(s) > globalConfig.MaxSize {
		return
	}
	tokenSlicePool.Put(s[:0])
}

// =============================================================================
// Byte Buffer Pool (serialization)
// =============================================================================

var byteBufferPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, 1024)
	},
}

// GetByteBuffer returns a byte buffer from the pool.
func GetByteBuffer() []byte {
	if !globalConfig.Enabled {
		return make([]byte, 0, 1024)
	}
	return byteBufferPool.Get().([]byte)[:0]
}

// PutByteBuffer returns a byte buffer to the pool.
func PutByteBuffer(buf []byte) {
	if !globalConfig.Enabled {
		return
	}
	if cap(buf) > 1024*1024 { // Don't pool huge buffers (>1MB)
		return
	}
	byteBufferPool.Put(buf[:0])
}

// =============================================================================
// String Builder Pool (response assembly)
// =============================================================================

var stringBuilderPool = sync.Pool{
	New: func() any {
		return &PooledStringBuilder{
			buf: make([]byte, 0, 256),
		}
	},
}

// PooledStringBuilder is a poolable string builder.
type PooledStringBuilder struct {
	buf []byte
}

// WriteString appends a string to the builder.
func (b *PooledStringBuilder) WriteString(s string) {
	b.buf = append(b.buf, s...)
}

// WriteByte appends a byte to the builder.
func (b *PooledStringBuilder) WriteByte(c byte) {
	b.buf = append(b.buf, c)
}

// String returns the built string.
func (b *PooledStringBuilder) String() string {
	return string(b.buf)
}

// Len returns current length.
func (b *PooledStringBuilder) Len() int {
	return len(b.buf)
}

// Reset clears the builder for reuse.
func (b *PooledStringBuilder) Reset() {
	b.buf = b.buf[:0]
}

// GetStringBuilder returns a string builder from the pool.
func GetStringBuilder() *PooledStringBuilder {
	if !globalConfig.Enabled {
		return &PooledStringBuilder{buf: make([]byte, 0, 256)}
	}
	b := stringBuilderPool.Get().(*PooledStringBuilder)
	b.Reset()
	return b
}

// PutStringBuilder returns a string builder to the pool.
func PutStringBuilder(b *PooledStringBuilder) {
	if !globalConfig.Enabled || b == nil {
		return
	}
	if cap(b.buf) > 64*1024 { // Don't pool huge buffers
		return
	}
	b.Reset()
	stringBuilderPool.Put(b)
}

package pool

import (
	"sync"
	"testing"
)

// =============================================================================
// Configuration Tests
// =============================================================================

func TestConfigure(t *testing.T) {
	// Save original config
	origConfig := globalConfig
	defer func() {
		Configure(origConfig)
	}()

	t.Run("enable pooling", func(t *testing.T) {
		Configure(PoolConfig{Enabled: true, MaxSize: 500, VectorDim: 128})

		if !IsEnabled() {
			t.Error("IsEnabled() = false, want true")
		}
		if globalConfig.MaxSize != 500 {
			t.Errorf("MaxSize = %d, want 500", globalConfig.MaxSize)
		}
	})

	t.Run("disable pooling", func(t *testing.T) {
		Configure(PoolConfig{Enabled: false, MaxSize: 1000, VectorDim: 128})

		if IsEnabled() {
			t.Error("IsEnabled() = true, want false")
		}
	})

	t.Run("zero dimension falls back to default", func(t *testing.T) {
		Configure(PoolConfig{Enabled: true, MaxSize: 1000})

		if globalConfig.VectorDim != 128 {
			t.Errorf("VectorDim = %d, want 128", globalConfig.VectorDim)
		}
	})
}

// =============================================================================
// Vector Buffer Pool Tests
// =============================================================================

func TestVectorPool(t *testing.T) {
	Configure(PoolConfig{Enabled: true, MaxSize: 1000, VectorDim: 128})

	t.Run("get returns zeroed buffer of configured dim", func(t *testing.T) {
		v := GetVector()
		if len(v) != 128 {
			t.Errorf("len = %d, want 128", len(v))
		}
		for i, x := range v {
			if x != 0 {
				t.Errorf("v[%d] = %f, want 0", i, x)
				break
			}
		}
		PutVector(v)
	})

	t.Run("reused buffer is zeroed", func(t *testing.T) {
		v := GetVector()
		v[0] = 42.0
		v[127] = -1.0
		PutVector(v)

		v2 := GetVector()
		if v2[0] != 0 || v2[127] != 0 {
			t.Error("reused buffer not zeroed")
		}
		PutVector(v2)
	})

	t.Run("stale dimension buffers dropped after reconfigure", func(t *testing.T) {
		v := GetVector()
		PutVector(v)

		Configure(PoolConfig{Enabled: true, MaxSize: 1000, VectorDim: 64})
		v2 := GetVector()
		if len(v2) != 64 {
			t.Errorf("len = %d, want 64", len(v2))
		}
		PutVector(v2)

		Configure(PoolConfig{Enabled: true, MaxSize: 1000, VectorDim: 128})
	})

	t.Run("disabled pooling allocates fresh", func(t *testing.T) {
		Configure(PoolConfig{Enabled: false, MaxSize: 1000, VectorDim: 128})
		v := GetVector()
		if len(v) != 128 {
			t.Errorf("len = %d, want 128", len(v))
		}
		PutVector(v) // no-op, must not panic
		Configure(PoolConfig{Enabled: true, MaxSize: 1000, VectorDim: 128})
	})
}

// =============================================================================
// Score Map Pool Tests
// =============================================================================

func TestScoreMapPool(t *testing.T) {
	Configure(PoolConfig{Enabled: true, MaxSize: 1000, VectorDim: 128})

	t.Run("get returns empty map", func(t *testing.T) {
		m := GetScoreMap()
		if len(m) != 0 {
			t.Errorf("len = %d, want 0", len(m))
		}
		PutScoreMap(m)
	})

	t.Run("put clears entries", func(t *testing.T) {
		m := GetScoreMap()
		m["cluster-a"] = 0.9
		m["cluster-b"] = 0.4
		PutScoreMap(m)

		m2 := GetScoreMap()
		if len(m2) != 0 {
			t.Errorf("reused map len = %d, want 0", len(m2))
		}
		PutScoreMap(m2)
	})

	t.Run("nil map ignored", func(t *testing.T) {
		PutScoreMap(nil) // must not panic
	})
}

// =============================================================================
// Token Slice Pool Tests
// =============================================================================

func TestTokenSlicePool(t *testing.T) {
	Configure(PoolConfig{Enabled: true, MaxSize: 1000, VectorDim: 128})

	t.Run("get returns empty slice", func(t *testing.T) {
		s := GetTokenSlice()
		if len(s) != 0 {
			t.Errorf("len = %d, want 0", len(s))
		}
		s = append(s, "apple", "banana")
		PutTokenSlice(s)
	})

	t.Run("oversized slices not pooled", func(t *testing.T) {
		Configure(PoolConfig{Enabled: true, MaxSize: 10, VectorDim: 128})

		s := make([]string, 0, 100)
		PutTokenSlice(s) // Should not panic, just not pool it

		Configure(PoolConfig{Enabled: true, MaxSize: 1000, VectorDim: 128})
	})
}

// =============================================================================
// String Builder Pool Tests
// =============================================================================

func TestStringBuilderPool(t *testing.T) {
	Configure(PoolConfig{Enabled: true, MaxSize: 1000, VectorDim: 128})

	t.Run("build and reuse", func(t *testing.T) {
		b := GetStringBuilder()
		b.WriteString("recognized: ")
		b.WriteString("apple")
		b.WriteByte('!')

		if b.String() != "recognized: apple!" {
			t.Errorf("String() = %q", b.String())
		}
		if b.Len() != len("recognized: apple!") {
			t.Errorf("Len() = %d", b.Len())
		}
		PutStringBuilder(b)

		b2 := GetStringBuilder()
		if b2.Len() != 0 {
			t.Errorf("reused builder len = %d, want 0", b2.Len())
		}
		PutStringBuilder(b2)
	})

	t.Run("nil builder ignored", func(t *testing.T) {
		PutStringBuilder(nil) // must not panic
	})
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func TestPoolConcurrency(t *testing.T) {
	Configure(PoolConfig{Enabled: true, MaxSize: 1000, VectorDim: 128})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v := GetVector()
				v[0] = float64(j)
				PutVector(v)

				m := GetScoreMap()
				m["x"] = 1.0
				PutScoreMap(m)

				s := GetTokenSlice()
				s = append(s, "tok")
				PutTokenSlice(s)
			}
		}()
	}
	wg.Wait()
}

func BenchmarkVectorPool(b *testing.B) {
	Configure(PoolConfig{Enabled: true, MaxSize: 1000, VectorDim: 128})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v := GetVector()
		PutVector(v)
	}
}

func BenchmarkVectorAlloc(b *testing.B) {
	for i := 0; i < b.N; i++ {
		v := make([]float64, 128)
		_ = v
	}
}

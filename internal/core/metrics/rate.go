package metrics

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ============================================================================
// RateMeter - 速率计算器
// ============================================================================

// RateMeter 速率计算器（基于滑动窗口）
//
// 使用 60 个 1 秒桶来计算最近 60 秒的平均速率。
type RateMeter struct {
	mu       sync.Mutex
	clock    clock.Clock
	buckets  [60]int64
	lastIdx  int
	lastTime time.Time
}

// NewRateMeter 创建速率计算器
func NewRateMeter(clk clock.Clock) *RateMeter {
	if clk == nil {
		clk = clock.New()
	}
	return &RateMeter{clock: clk, lastTime: clk.Now()}
}

// Add 累加到当前桶
func (r *RateMeter) Add(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance()
	r.buckets[r.lastIdx] += n
}

// Rate 返回最近 60 秒的平均速率（每秒）
func (r *RateMeter) Rate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance()

	var total int64
	for _, v := range r.buckets {
		total += v
	}
	return float64(total) / 60.0
}

// advance 把过期的桶清零，调用方持有锁
func (r *RateMeter) advance() {
	elapsed := r.clock.Now().Sub(r.lastTime)
	if elapsed < time.Second {
		return
	}
	seconds := int(elapsed / time.Second)
	if seconds >= 60 {
		r.buckets = [60]int64{}
		r.lastIdx = 0
	} else {
		for i := 0; i < seconds; i++ {
			r.lastIdx = (r.lastIdx + 1) % 60
			r.buckets[r.lastIdx] = 0
		}
	}
	r.lastTime = r.lastTime.Add(time.Duration(seconds) * time.Second)
}

// Reset 重置
func (r *RateMeter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets = [60]int64{}
	r.lastIdx = 0
	r.lastTime = r.clock.Now()
}

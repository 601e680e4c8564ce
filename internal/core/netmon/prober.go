package netmon

import (
	"context"
	"net"
	"sync"
	"time"
)

// ProbeResult 探测结果
type ProbeResult struct {
	Success bool
	Latency time.Duration
	Error   error
}

// Prober 主动探测器
type Prober interface {
	Probe(ctx context.Context) ProbeResult
}

// ============================================================================
//                              TCPProber
// ============================================================================

// TCPProber 通过 TCP 拨号判断网络是否可用
type TCPProber struct {
	addr   string
	dialer net.Dialer
}

// NewTCPProber 创建 TCP 探测器
func NewTCPProber(addr string) *TCPProber {
	return &TCPProber{addr: addr}
}

// Probe 拨号并立即关闭
func (p *TCPProber) Probe(ctx context.Context) ProbeResult {
	start := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return ProbeResult{Error: err, Latency: time.Since(start)}
	}
	_ = conn.Close()
	return ProbeResult{Success: true, Latency: time.Since(start)}
}

// ============================================================================
//                              测试用探测器
// ============================================================================

// NoOpProber 总是成功
type NoOpProber struct{}

// Probe 返回成功
func (NoOpProber) Probe(context.Context) ProbeResult {
	return ProbeResult{Success: true}
}

// MockProber 可控结果的探测器
type MockProber struct {
	mu     sync.Mutex
	result ProbeResult
	calls  int
	probed chan struct{}
}

// NewMockProber 创建探测器，初始返回 result
func NewMockProber(result ProbeResult) *MockProber {
	return &MockProber{result: result, probed: make(chan struct{}, 64)}
}

// SetResult 设置后续探测结果
func (p *MockProber) SetResult(result ProbeResult) {
	p.mu.Lock()
	p.result = result
	p.mu.Unlock()
}

// Probe 返回预设结果
func (p *MockProber) Probe(context.Context) ProbeResult {
	p.mu.Lock()
	p.calls++
	r := p.result
	p.mu.Unlock()
	select {
	case p.probed <- struct{}{}:
	default:
	}
	return r
}

// Calls 返回探测次数
func (p *MockProber) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Probed 每次探测后收到一个信号
func (p *MockProber) Probed() <-chan struct{} {
	return p.probed
}

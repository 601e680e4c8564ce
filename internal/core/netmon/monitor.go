// Package netmon 实现联网状态监控
//
// Monitor 是一个纯边沿触发的状态机：宿主环境通过 SetOnline/SetOffline
// 上报网络变化，可选的 Prober 周期性地主动探测并驱动同样的边沿。
// 只有状态真正改变时才通知订阅者，重复的 online 事件不产生任何效果。
package netmon

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-docmesh/pkg/lib/log"
	"github.com/dep2p/go-docmesh/pkg/types"
)

var logger = log.Logger("core/netmon")

// Reason 状态变化原因
type Reason string

const (
	// ReasonManual 宿主环境上报
	ReasonManual Reason = "manual"
	// ReasonProbeFailed 主动探测连续失败
	ReasonProbeFailed Reason = "probe-failed"
	// ReasonProbeRecovered 主动探测恢复
	ReasonProbeRecovered Reason = "probe-recovered"
)

// Change 状态变化
type Change struct {
	Previous types.Connectivity
	Current  types.Connectivity
	Reason   Reason
	At       time.Time
}

// subscriberBuffer 每个订阅者的缓冲
const subscriberBuffer = 16

// ============================================================================
//                              Monitor
// ============================================================================

// Monitor 联网状态监控器
type Monitor struct {
	mu     sync.RWMutex
	config Config
	clock  clock.Clock

	state      types.Connectivity
	lastChange time.Time
	failures   int
	prober     Prober

	subscribers   []chan Change
	subscribersMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor 创建监控器
func NewMonitor(cfg Config, clk clock.Clock) *Monitor {
	cfg = cfg.withDefaults()
	if clk == nil {
		clk = clock.New()
	}
	state := types.Offline
	if cfg.StartOnline {
		state = types.Online
	}
	return &Monitor{
		config:     cfg,
		clock:      clk,
		state:      state,
		lastChange: clk.Now(),
	}
}

// SetProber 设置主动探测器，必须在 Start 之前调用
func (m *Monitor) SetProber(p Prober) {
	m.mu.Lock()
	m.prober = p
	m.mu.Unlock()
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动探测循环（配置了探测器时）
func (m *Monitor) Start(_ context.Context) error {
	m.mu.Lock()
	if m.ctx != nil {
		m.mu.Unlock()
		return nil
	}
	// fx OnStart 的 ctx 在返回后会被取消，后台循环使用独立的 context
	m.ctx, m.cancel = context.WithCancel(context.Background())
	prober := m.prober
	m.mu.Unlock()

	if prober != nil && m.config.ProbeInterval > 0 {
		m.wg.Add(1)
		go m.probeLoop()
	}

	logger.Info("联网状态监控已启动", "state", m.State(), "probe", prober != nil)
	return nil
}

// Stop 停止探测循环并关闭所有订阅
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()

	m.subscribersMu.Lock()
	for _, ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
	m.subscribersMu.Unlock()

	logger.Info("联网状态监控已停止")
	return nil
}

// ============================================================================
//                              状态
// ============================================================================

// State 返回当前状态
func (m *Monitor) State() types.Connectivity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LastChange 返回最近一次状态变化的时间
func (m *Monitor) LastChange() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastChange
}

// SetOnline 上报网络恢复，返回是否发生了状态变化
func (m *Monitor) SetOnline() bool {
	return m.transition(types.Online, ReasonManual)
}

// SetOffline 上报网络断开，返回是否发生了状态变化
func (m *Monitor) SetOffline() bool {
	return m.transition(types.Offline, ReasonManual)
}

// Subscribe 订阅状态变化
func (m *Monitor) Subscribe() <-chan Change {
	ch := make(chan Change, subscriberBuffer)
	m.subscribersMu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.subscribersMu.Unlock()
	return ch
}

// Unsubscribe 取消订阅并关闭通道
func (m *Monitor) Unsubscribe(ch <-chan Change) {
	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			close(sub)
			last := len(m.subscribers) - 1
			m.subscribers[i] = m.subscribers[last]
			m.subscribers = m.subscribers[:last]
			return
		}
	}
}

func (m *Monitor) transition(to types.Connectivity, reason Reason) bool {
	m.mu.Lock()
	if m.state == to {
		if to == types.Online {
			m.failures = 0
		}
		m.mu.Unlock()
		return false
	}
	change := Change{Previous: m.state, Current: to, Reason: reason, At: m.clock.Now()}
	m.state = to
	m.lastChange = change.At
	m.failures = 0
	m.mu.Unlock()

	logger.Info("联网状态变化", "from", change.Previous, "to", change.Current, "reason", reason)
	m.notify(change)
	return true
}

// notify 非阻塞通知，订阅者缓冲满时丢弃
func (m *Monitor) notify(change Change) {
	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()

	for _, ch := range m.subscribers {
		select {
		case ch <- change:
		default:
			logger.Warn("订阅者处理过慢，丢弃状态变化", "to", change.Current)
		}
	}
}

// ============================================================================
//                              主动探测
// ============================================================================

func (m *Monitor) probeLoop() {
	defer m.wg.Done()

	ticker := m.clock.Ticker(m.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.probeOnce()
		}
	}
}

// probeOnce 执行一次探测
//
// 连续 FailureThreshold 次失败才转为离线，一次成功即转为在线。
func (m *Monitor) probeOnce() {
	m.mu.RLock()
	prober := m.prober
	m.mu.RUnlock()
	if prober == nil {
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.config.ProbeTimeout)
	result := prober.Probe(ctx)
	cancel()

	logger.Debug("探测完成", "success", result.Success, "latency", result.Latency, "err", result.Error)

	if result.Success {
		m.transition(types.Online, ReasonProbeRecovered)
		return
	}

	m.mu.Lock()
	m.failures++
	failures := m.failures
	m.mu.Unlock()

	if failures >= m.config.FailureThreshold {
		m.transition(types.Offline, ReasonProbeFailed)
	}
}

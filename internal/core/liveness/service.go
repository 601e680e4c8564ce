// Package liveness 周期性检测会话存活
//
// 每个 Interval 执行一轮心跳：关闭超过 Timeout 未收到任何消息的会话，
// 并向剩余的 Open 会话发送 ping。对端的 pong 由复制引擎记录为 RTT。
package liveness

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-docmesh/internal/core/replication"
	"github.com/dep2p/go-docmesh/pkg/lib/log"
	"github.com/dep2p/go-docmesh/pkg/types"
)

var logger = log.Logger("core/liveness")

// ErrServiceClosed 服务已关闭
var ErrServiceClosed = errors.New("liveness service closed")

// Heartbeater 执行一轮心跳的对象
type Heartbeater interface {
	Heartbeat(ctx context.Context, timeout time.Duration) (replication.HeartbeatResult, error)
}

// PeerDownCallback 会话因空闲超时被关闭时回调
type PeerDownCallback func(peer types.PeerID)

// Config 服务配置
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Stats 累计统计
type Stats struct {
	Rounds int64
	Pings  int64
	Closed int64
	Errors int64
}

// ============================================================================
//                              Service 实现
// ============================================================================

// Service 存活检测服务
type Service struct {
	config Config
	target Heartbeater
	clock  clock.Clock

	callbacks []PeerDownCallback
	cbMu      sync.RWMutex

	rounds atomic.Int64
	pings  atomic.Int64
	closed atomic.Int64
	errs   atomic.Int64

	running atomic.Bool
	stopped atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService 创建存活检测服务
func NewService(cfg Config, target Heartbeater, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.New()
	}
	return &Service{config: cfg, target: target, clock: clk}
}

// OnPeerDown 注册空闲超时回调
func (s *Service) OnPeerDown(cb PeerDownCallback) {
	s.cbMu.Lock()
	s.callbacks = append(s.callbacks, cb)
	s.cbMu.Unlock()
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动心跳循环
func (s *Service) Start(_ context.Context) error {
	if s.stopped.Load() {
		return ErrServiceClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}

	// Fx OnStart 的 ctx 在返回后会被取消，后台循环使用独立的 context
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.loop()

	logger.Info("存活检测服务已启动", "interval", s.config.Interval, "timeout", s.config.Timeout)
	return nil
}

// Stop 停止心跳循环
func (s *Service) Stop() error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.running.Store(false)
	logger.Info("存活检测服务已停止")
	return nil
}

// Stats 返回累计统计
func (s *Service) Stats() Stats {
	return Stats{
		Rounds: s.rounds.Load(),
		Pings:  s.pings.Load(),
		Closed: s.closed.Load(),
		Errors: s.errs.Load(),
	}
}

func (s *Service) loop() {
	defer s.wg.Done()

	ticker := s.clock.Ticker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			_ = s.RunOnce(s.ctx)
		}
	}
}

// RunOnce 立即执行一轮心跳
func (s *Service) RunOnce(ctx context.Context) error {
	if s.stopped.Load() {
		return ErrServiceClosed
	}

	res, err := s.target.Heartbeat(ctx, s.config.Timeout)
	s.rounds.Add(1)
	if err != nil {
		s.errs.Add(1)
		if !errors.Is(err, context.Canceled) && !errors.Is(err, replication.ErrClosed) {
			logger.Warn("心跳失败", "err", err)
		}
		return err
	}

	s.pings.Add(int64(res.Pinged))
	s.closed.Add(int64(len(res.Closed)))
	if len(res.Closed) > 0 {
		logger.Info("关闭空闲会话", "count", len(res.Closed))
	}

	s.cbMu.RLock()
	callbacks := append([]PeerDownCallback(nil), s.callbacks...)
	s.cbMu.RUnlock()
	for _, peer := range res.Closed {
		for _, cb := range callbacks {
			cb(peer)
		}
	}
	return nil
}

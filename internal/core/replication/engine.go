// Package replication 实现复制引擎
//
// Engine 是节点上文档状态的唯一所有者。本地编辑、对端消息、会话事件、
// 联网状态变化都被序列化到同一个命令队列，由单个 goroutine 依次执行，
// 因此文档存储、离线队列与会话注册表都不需要加锁。
//
// 冲突规则：
//
//	init     incoming.lastUpdate >  local.lastUpdate  时整体采纳快照
//	content  incoming.version    >  local.version     时应用，本地不存在的文档丢弃
//	delete   无条件删除
//
// 收到的更新不会转发给其他对端。
package replication

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-docmesh/internal/core/docstore"
	"github.com/dep2p/go-docmesh/internal/core/offline"
	"github.com/dep2p/go-docmesh/internal/core/session"
	"github.com/dep2p/go-docmesh/internal/core/storage/port"
	"github.com/dep2p/go-docmesh/pkg/lib/log"
	"github.com/dep2p/go-docmesh/pkg/types"
)

var logger = log.Logger("core/replication")

// Config 引擎配置
type Config struct {
	// Self 本节点 ID
	Self types.PeerID

	// CommandBuffer 命令队列容量
	CommandBuffer int

	// OutboxSize 每会话发送队列容量
	OutboxSize int

	// StartOnline 启动时是否视为在线
	StartOnline bool
}

// DefaultConfig 返回默认配置
func DefaultConfig(self types.PeerID) Config {
	return Config{
		Self:          self,
		CommandBuffer: 256,
		OutboxSize:    session.DefaultOutboxSize,
		StartOnline:   true,
	}
}

// Engine 复制引擎
type Engine struct {
	self     types.PeerID
	clock    clock.Clock
	observer Observer

	// 以下字段只在引擎 goroutine 上访问
	store    *docstore.Store
	queue    *offline.Queue
	registry *session.Registry
	online   bool
	dirty    bool
	nonce    uint64

	persister *docstore.Persister
	events    *bus

	cmds    chan func()
	quit    chan struct{}
	stopped chan struct{}

	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

// New 创建复制引擎
//
// 从 p 加载文档快照与离线队列；加载失败时以全新状态启动并记录警告。
func New(cfg Config, p port.Port, clk clock.Clock, obs Observer) (*Engine, error) {
	if err := cfg.Self.Validate(); err != nil {
		return nil, fmt.Errorf("replication: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("replication: nil storage port")
	}
	if clk == nil {
		clk = clock.New()
	}
	if obs == nil {
		obs = NoopObserver{}
	}
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = 256
	}

	e := &Engine{
		self:     cfg.Self,
		clock:    clk,
		observer: obs,
		online:   cfg.StartOnline,
		events:   newBus(),
		cmds:     make(chan func(), cfg.CommandBuffer),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	e.persister = docstore.NewPersister(p, nil)

	var initial *types.Snapshot
	snap, ok, err := docstore.LoadSnapshot(p)
	switch {
	case err != nil:
		logger.Warn("加载快照失败，使用默认文档", "err", err)
	case ok:
		initial = &snap
	}
	e.store = docstore.New(clk, e.persister, initial)

	e.queue = offline.New(p, clk)
	if err := e.queue.Load(); err != nil {
		logger.Warn("加载离线队列失败", "err", err)
	}

	e.registry = session.NewRegistry(clk, cfg.OutboxSize, e.writeFailed)
	return e, nil
}

// ID 返回本节点 ID
func (e *Engine) ID() types.PeerID {
	return e.self
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动引擎 goroutine 与持久化器
func (e *Engine) Start(_ context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if !e.started.CompareAndSwap(false, true) {
		return nil
	}
	e.persister.Start()
	go e.loop()

	logger.Info("复制引擎已启动",
		"self", e.self.ShortString(),
		"documents", e.store.Len(),
		"pending", e.queue.Len(),
		"online", e.online)
	return nil
}

// Stop 关闭全部会话，停止引擎并刷出最后一次快照
func (e *Engine) Stop() error {
	var err error
	e.closeOnce.Do(func() {
		if e.started.Load() {
			err = e.do(context.Background(), func() {
				n := e.registry.CloseAll()
				if n > 0 {
					logger.Info("已关闭全部会话", "count", n)
				}
			})
		}
		e.closed.Store(true)
		close(e.quit)
		if e.started.Load() {
			<-e.stopped
		}
		e.persister.Stop()
		e.events.closeAll()
		logger.Info("复制引擎已停止", "self", e.self.ShortString())
	})
	return err
}

// Subscribe 订阅引擎事件，返回取消函数
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	return e.events.subscribe(buffer)
}

// ============================================================================
//                              命令队列
// ============================================================================

func (e *Engine) loop() {
	defer close(e.stopped)
	for {
		select {
		case cmd := <-e.cmds:
			cmd()
		case <-e.quit:
			return
		}
	}
}

// do 提交命令并等待执行完成
func (e *Engine) do(ctx context.Context, fn func()) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if !e.started.Load() {
		return ErrNotStarted
	}
	done := make(chan struct{})
	cmd := func() {
		defer close(done)
		fn()
	}

	select {
	case e.cmds <- cmd:
	case <-e.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-e.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post 提交命令但不等待执行，引擎关闭后静默丢弃
func (e *Engine) post(fn func()) {
	select {
	case e.cmds <- fn:
	case <-e.quit:
	}
}

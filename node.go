package docmesh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-docmesh/config"
	"github.com/dep2p/go-docmesh/internal/core/liveness"
	"github.com/dep2p/go-docmesh/internal/core/metrics"
	"github.com/dep2p/go-docmesh/internal/core/netmon"
	"github.com/dep2p/go-docmesh/internal/core/replication"
	"github.com/dep2p/go-docmesh/internal/core/signaling"
	"github.com/dep2p/go-docmesh/internal/core/transport/memory"
	"github.com/dep2p/go-docmesh/internal/core/transport/webrtc"
	"github.com/dep2p/go-docmesh/pkg/lib/log"
	"github.com/dep2p/go-docmesh/pkg/types"
)

var logger = log.Logger("docmesh")

// ════════════════════════════════════════════════════════════════════════════
//                              节点状态
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点状态
type NodeState int

const (
	// StateIdle 已创建，未启动
	StateIdle NodeState = iota

	// StateRunning 运行中
	StateRunning

	// StateClosed 已关闭（终态）
	StateClosed
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	// startTimeout Fx App 启动超时
	startTimeout = 30 * time.Second

	// stopTimeout Fx App 停止超时
	stopTimeout = 15 * time.Second
)

// ════════════════════════════════════════════════════════════════════════════
//                              Node
// ════════════════════════════════════════════════════════════════════════════

// Node docmesh 节点
//
// Node 是门面，聚合复制引擎、联网状态监控、心跳、信令与指标。
// 所有文档操作都转交给复制引擎的单个 goroutine 执行。
type Node struct {
	mu     sync.Mutex
	state  NodeState
	config *config.Config
	app    *fx.App

	engine    *replication.Engine
	monitor   *netmon.Monitor
	transport *webrtc.Transport
	liveness  *liveness.Service
	signaling *signaling.Client
	collector *metrics.Collector
	registry  *prometheus.Registry
}

// New 创建节点（未启动）
func New(opts ...Option) (*Node, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	cfg, err := o.toConfig()
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	n := &Node{config: cfg}
	n.app = buildFxApp(cfg, o, n)
	if err := n.app.Err(); err != nil {
		return nil, fmt.Errorf("build node: %w", err)
	}
	return n, nil
}

// Start 启动所有组件
//
// 节点只能启动一次；Close 之后不能再次启动。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateClosed:
		return ErrNodeClosed
	case StateRunning:
		return ErrAlreadyStarted
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := n.app.Start(startCtx); err != nil {
		logger.Error("节点启动失败", "err", err)
		n.state = StateClosed
		return fmt.Errorf("start node: %w", err)
	}
	n.state = StateRunning

	logger.Info("节点已启动", "id", n.engine.ID().ShortString(), "signaling", n.signaling != nil)
	return nil
}

// Close 停止所有组件并等待持久化完成
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == StateClosed {
		return nil
	}
	wasRunning := n.state == StateRunning
	n.state = StateClosed
	if !wasRunning {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	var err error
	err = multierr.Append(err, n.app.Stop(ctx))
	err = multierr.Append(err, ctx.Err())
	if err != nil {
		logger.Warn("节点关闭时出错", "err", err)
		return err
	}
	logger.Info("节点已关闭")
	return nil
}

// State 返回节点状态
func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// running 检查节点可用
func (n *Node) running() error {
	switch n.State() {
	case StateIdle:
		return ErrNotStarted
	case StateClosed:
		return ErrNodeClosed
	}
	return nil
}

// ID 返回节点 ID
func (n *Node) ID() types.PeerID {
	return n.engine.ID()
}

// Config 返回生效的配置副本
func (n *Node) Config() *config.Config {
	return config.CloneConfig(n.config)
}

// ════════════════════════════════════════════════════════════════════════════
//                              文档操作
// ════════════════════════════════════════════════════════════════════════════

// CreateDocument 创建空文档并广播
func (n *Node) CreateDocument(ctx context.Context, name string) (types.Document, error) {
	if err := n.running(); err != nil {
		return types.Document{}, err
	}
	return n.engine.CreateDocument(ctx, name)
}

// UpdateContent 替换文档内容，版本号加一
//
// 在线时广播给所有对端，离线时进入离线队列。
func (n *Node) UpdateContent(ctx context.Context, id types.DocumentID, content string) (types.Document, error) {
	if err := n.running(); err != nil {
		return types.Document{}, err
	}
	return n.engine.UpdateContent(ctx, id, content)
}

// DeleteDocument 删除文档并广播
func (n *Node) DeleteDocument(ctx context.Context, id types.DocumentID) error {
	if err := n.running(); err != nil {
		return err
	}
	return n.engine.DeleteDocument(ctx, id)
}

// SetActive 设置当前编辑的文档
func (n *Node) SetActive(ctx context.Context, id types.DocumentID) error {
	if err := n.running(); err != nil {
		return err
	}
	return n.engine.SetActive(ctx, id)
}

// Active 返回当前编辑的文档 ID
func (n *Node) Active(ctx context.Context) (types.DocumentID, error) {
	if err := n.running(); err != nil {
		return "", err
	}
	return n.engine.Active(ctx)
}

// Documents 按创建顺序返回所有文档
func (n *Node) Documents(ctx context.Context) ([]types.Document, error) {
	if err := n.running(); err != nil {
		return nil, err
	}
	return n.engine.Documents(ctx)
}

// Document 返回单个文档
func (n *Node) Document(ctx context.Context, id types.DocumentID) (types.Document, error) {
	if err := n.running(); err != nil {
		return types.Document{}, err
	}
	return n.engine.Document(ctx, id)
}

// Snapshot 返回文档集合快照
func (n *Node) Snapshot(ctx context.Context) (types.Snapshot, error) {
	if err := n.running(); err != nil {
		return types.Snapshot{}, err
	}
	return n.engine.Snapshot(ctx)
}

// PendingEdits 返回尚未重放的离线修改
func (n *Node) PendingEdits(ctx context.Context) ([]types.PendingEdit, error) {
	if err := n.running(); err != nil {
		return nil, err
	}
	return n.engine.PendingEdits(ctx)
}

// ════════════════════════════════════════════════════════════════════════════
//                              会话与联网状态
// ════════════════════════════════════════════════════════════════════════════

// Peers 返回已打开会话的对端
func (n *Node) Peers(ctx context.Context) ([]types.PeerID, error) {
	if err := n.running(); err != nil {
		return nil, err
	}
	return n.engine.Peers(ctx)
}

// Sessions 返回所有会话（含正在建立的）
func (n *Node) Sessions(ctx context.Context) ([]SessionInfo, error) {
	if err := n.running(); err != nil {
		return nil, err
	}
	return n.engine.Sessions(ctx)
}

// Disconnect 关闭与对端的会话
func (n *Node) Disconnect(ctx context.Context, peer types.PeerID) error {
	if err := n.running(); err != nil {
		return err
	}
	return n.engine.Disconnect(ctx, peer)
}

// Connect 通过 rendezvous 向指定节点发起连接
//
// 不受自动拨号的 ID 大小规则约束。连接建立是异步的，可通过 Peers 或
// EventPeerOpened 观察结果。
func (n *Node) Connect(ctx context.Context, peer types.PeerID) error {
	if err := n.running(); err != nil {
		return err
	}
	if peer == n.ID() {
		return ErrSelfConnect
	}
	if peer.IsEmpty() {
		return types.ErrEmptyPeerID
	}
	if n.signaling == nil {
		return ErrSignalingDisabled
	}
	return n.signaling.Dial(ctx, peer)
}

// ConnectLocal 与同一进程内的另一个节点建立会话
//
// 不经过信令与 WebRTC，用于演示和测试。
func (n *Node) ConnectLocal(ctx context.Context, other *Node) error {
	if err := n.running(); err != nil {
		return err
	}
	if err := other.running(); err != nil {
		return err
	}
	if other.ID() == n.ID() {
		return ErrSelfConnect
	}
	_, err := memory.Connect(ctx, n.engine, other.engine)
	return err
}

// Roster 返回 rendezvous 上的其他在线节点，未启用信令时为空
func (n *Node) Roster() []types.PeerID {
	if n.signaling == nil {
		return nil
	}
	return n.signaling.Roster()
}

// Connectivity 返回联网状态
func (n *Node) Connectivity() types.Connectivity {
	return n.monitor.State()
}

// SetOnline 上报网络恢复，返回状态是否改变
//
// 从离线转为在线时重放离线修改并广播 init。
func (n *Node) SetOnline() bool {
	return n.monitor.SetOnline()
}

// SetOffline 上报网络断开，返回状态是否改变
func (n *Node) SetOffline() bool {
	return n.monitor.SetOffline()
}

// ════════════════════════════════════════════════════════════════════════════
//                              观察
// ════════════════════════════════════════════════════════════════════════════

// Subscribe 订阅节点事件，返回取消函数
func (n *Node) Subscribe(buffer int) (<-chan Event, func()) {
	return n.engine.Subscribe(buffer)
}

// Stats 返回指标统计，未启用指标时为零值
func (n *Node) Stats() Stats {
	if n.collector == nil {
		return Stats{}
	}
	return n.collector.Stats()
}

// MetricsRegistry 返回节点自建的指标注册表
func (n *Node) MetricsRegistry() *prometheus.Registry {
	return n.registry
}

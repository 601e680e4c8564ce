package session

import (
	"fmt"
	"sort"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-docmesh/pkg/lib/log"
	"github.com/dep2p/go-docmesh/pkg/types"
)

var logger = log.Logger("core/session")

// DefaultOutboxSize 默认每会话发送队列容量
const DefaultOutboxSize = 128

// WriteErrorFunc 发送 goroutine 写失败回调
//
// 在发送 goroutine 上调用，实现方应把事件转交给引擎的控制流。
type WriteErrorFunc func(peer types.PeerID, id uint64, err error)

// Registry 对端会话注册表
type Registry struct {
	clock        clock.Clock
	outboxSize   int
	onWriteError WriteErrorFunc

	sessions map[types.PeerID]*Session
	peers    []types.PeerID
	nextID   uint64
}

// NewRegistry 创建会话注册表
func NewRegistry(clk clock.Clock, outboxSize int, onWriteError WriteErrorFunc) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	if outboxSize <= 0 {
		outboxSize = DefaultOutboxSize
	}
	return &Registry{
		clock:        clk,
		outboxSize:   outboxSize,
		onWriteError: onWriteError,
		sessions:     make(map[types.PeerID]*Session),
	}
}

// ============================================================================
//                              状态迁移
// ============================================================================

// Begin 为对端创建 Connecting 会话
//
// 对端已有未关闭会话时返回 ErrSessionExists，由调用方决定是否先关闭旧会话。
func (r *Registry) Begin(peer types.PeerID, dir types.Direction, ch Channel) (*Session, error) {
	if err := peer.Validate(); err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, ErrNilChannel
	}
	if _, ok := r.sessions[peer]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, peer.ShortString())
	}

	r.nextID++
	now := r.clock.Now()
	s := &Session{
		peer:      peer,
		id:        r.nextID,
		dir:       dir,
		state:     types.SessionConnecting,
		createdAt: now,
		lastSeen:  now,
		ch:        ch,
	}
	r.sessions[peer] = s

	logger.Debug("会话进入 Connecting", "peer", peer.ShortString(), "id", s.id, "dir", dir)
	return s, nil
}

// Open 将会话迁移到 Open 并加入可见对端列表
func (r *Registry) Open(peer types.PeerID, id uint64) (*Session, error) {
	s, err := r.lookup(peer, id)
	if err != nil {
		return nil, err
	}
	if !s.state.CanTransition(types.SessionOpen) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, types.SessionOpen)
	}

	now := r.clock.Now()
	s.state = types.SessionOpen
	s.openedAt = now
	s.lastSeen = now
	s.out = newOutbox(s.ch, r.outboxSize, func(err error) {
		if r.onWriteError != nil {
			r.onWriteError(peer, id, err)
		}
	})
	s.out.start()
	r.peers = append(r.peers, peer)

	logger.Info("会话已打开", "peer", peer.ShortString(), "id", id, "dir", s.dir)
	return s, nil
}

// Close 关闭会话并从会话表与可见列表中同时移除
//
// id 为 0 时关闭该对端的当前会话。返回被关闭的会话。
func (r *Registry) Close(peer types.PeerID, id uint64) (*Session, bool) {
	s, err := r.lookup(peer, id)
	if err != nil {
		return nil, false
	}

	wasOpen := s.state == types.SessionOpen
	s.state = types.SessionClosed
	if s.out != nil {
		s.out.stop()
	}
	if err := s.ch.Close(); err != nil {
		logger.Debug("关闭通道失败", "peer", peer.ShortString(), "err", err)
	}

	delete(r.sessions, peer)
	if wasOpen {
		r.removePeer(peer)
	}

	logger.Info("会话已关闭", "peer", peer.ShortString(), "id", s.id, "wasOpen", wasOpen)
	return s, true
}

// CloseAll 关闭所有会话，返回关闭数量
func (r *Registry) CloseAll() int {
	n := 0
	for _, s := range r.Sessions() {
		if _, ok := r.Close(s.peer, s.id); ok {
			n++
		}
	}
	return n
}

// ============================================================================
//                              查询
// ============================================================================

// Get 返回对端当前会话
func (r *Registry) Get(peer types.PeerID) (*Session, bool) {
	s, ok := r.sessions[peer]
	return s, ok
}

// Current 判断 id 是否为对端当前会话
func (r *Registry) Current(peer types.PeerID, id uint64) bool {
	_, err := r.lookup(peer, id)
	return err == nil && id != 0
}

// Peers 返回可见对端列表（按打开顺序）的副本
func (r *Registry) Peers() []types.PeerID {
	out := make([]types.PeerID, len(r.peers))
	copy(out, r.peers)
	return out
}

// Sessions 返回所有未关闭会话，按对端 ID 排序
func (r *Registry) Sessions() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].peer.Less(out[j].peer) })
	return out
}

// Len 返回未关闭会话数量（含 Connecting）
func (r *Registry) Len() int {
	return len(r.sessions)
}

// OpenCount 返回 Open 会话数量
func (r *Registry) OpenCount() int {
	return len(r.peers)
}

// ============================================================================
//                              发送
// ============================================================================

// Send 向对端的 Open 会话投递一条消息
func (r *Registry) Send(peer types.PeerID, data []byte) error {
	s, ok := r.sessions[peer]
	if !ok {
		return ErrSessionNotFound
	}
	if s.state != types.SessionOpen {
		return ErrNotOpen
	}
	return s.out.enqueue(data)
}

// Broadcast 向所有 Open 会话投递，返回投递失败的对端
func (r *Registry) Broadcast(data []byte) (sent int, failed []types.PeerID) {
	for _, peer := range r.peers {
		if err := r.Send(peer, data); err != nil {
			logger.Debug("投递失败", "peer", peer.ShortString(), "err", err)
			failed = append(failed, peer)
			continue
		}
		sent++
	}
	return sent, failed
}

// ============================================================================
//                              存活
// ============================================================================

// Touch 刷新会话的 lastSeen
func (r *Registry) Touch(peer types.PeerID, id uint64) bool {
	s, err := r.lookup(peer, id)
	if err != nil {
		return false
	}
	s.lastSeen = r.clock.Now()
	return true
}

// Idle 返回超过 timeout 未收到消息的会话
//
// Connecting 会话按创建时间计算，避免协商卡住的槽位永久占用。
func (r *Registry) Idle(timeout time.Duration) []*Session {
	now := r.clock.Now()
	var out []*Session
	for _, s := range r.Sessions() {
		if now.Sub(s.lastSeen) > timeout {
			out = append(out, s)
		}
	}
	return out
}

// ============================================================================
//                              不变量
// ============================================================================

// CheckLockStep 校验可见对端列表与 Open 会话集合一致
func (r *Registry) CheckLockStep() error {
	listed := make(map[types.PeerID]struct{}, len(r.peers))
	for _, p := range r.peers {
		if _, dup := listed[p]; dup {
			return fmt.Errorf("peer %s listed twice", p)
		}
		listed[p] = struct{}{}
		s, ok := r.sessions[p]
		if !ok {
			return fmt.Errorf("peer %s listed without session", p)
		}
		if s.state != types.SessionOpen {
			return fmt.Errorf("peer %s listed in state %s", p, s.state)
		}
	}
	for p, s := range r.sessions {
		if s.state == types.SessionOpen {
			if _, ok := listed[p]; !ok {
				return fmt.Errorf("open session %s not listed", p)
			}
		}
	}
	return nil
}

// ============================================================================
//                              内部
// ============================================================================

func (r *Registry) lookup(peer types.PeerID, id uint64) (*Session, error) {
	s, ok := r.sessions[peer]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if id != 0 && s.id != id {
		return nil, ErrStaleSession
	}
	return s, nil
}

func (r *Registry) removePeer(peer types.PeerID) {
	for i, p := range r.peers {
		if p == peer {
			r.peers = append(r.peers[:i], r.peers[i+1:]...)
			return
		}
	}
}

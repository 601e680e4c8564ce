// Package session 实现对端会话注册表
//
// 每个对端占用一个会话槽，状态机为 Connecting → Open → Closed（终态）。
// 注册表同时维护会话表与可见对端列表，两者始终保持同步：
// 可见列表恰好是处于 Open 状态的会话集合。
//
// Registry 不加锁，只能由复制引擎的单个 goroutine 访问；
// 每个 Open 会话拥有一个独立的发送 goroutine（outbox），
// 发送不会阻塞引擎。
package session

import (
	"time"

	"github.com/dep2p/go-docmesh/pkg/types"
)

// ============================================================================
//                              Channel 接口
// ============================================================================

// Channel 已建立的双向消息通道
//
// 由传输层（WebRTC 数据通道、内存管道）实现。
// 同一通道上的消息按发送顺序到达。
type Channel interface {
	// Send 发送一条完整消息，可以阻塞直到写入底层传输
	Send(data []byte) error

	// Close 关闭通道，可重复调用
	Close() error
}

// ============================================================================
//                              Link 回调句柄
// ============================================================================

// Events 传输层事件接收者，由复制引擎实现
type Events interface {
	LinkOpened(l Link)
	LinkMessage(l Link, data []byte)
	LinkClosed(l Link, err error)
}

// Link 绑定到某一代会话的回调句柄
//
// 传输层通过 Link 上报通道事件；ID 用于丢弃属于已被替换会话的迟到事件。
type Link struct {
	Peer   types.PeerID
	ID     uint64
	events Events
}

// NewLink 创建回调句柄
func NewLink(peer types.PeerID, id uint64, events Events) Link {
	return Link{Peer: peer, ID: id, events: events}
}

// Opened 通道就绪
func (l Link) Opened() {
	if l.events != nil {
		l.events.LinkOpened(l)
	}
}

// Deliver 收到一条消息
func (l Link) Deliver(data []byte) {
	if l.events != nil {
		l.events.LinkMessage(l, data)
	}
}

// Closed 通道关闭或出错
func (l Link) Closed(err error) {
	if l.events != nil {
		l.events.LinkClosed(l, err)
	}
}

// ============================================================================
//                              Session
// ============================================================================

// Session 对端会话
type Session struct {
	peer      types.PeerID
	id        uint64
	dir       types.Direction
	state     types.SessionState
	createdAt time.Time
	openedAt  time.Time
	lastSeen  time.Time

	ch  Channel
	out *outbox

	pingNonce  uint64
	pingSentAt time.Time
	rtt        time.Duration
}

// Peer 返回对端 ID
func (s *Session) Peer() types.PeerID { return s.peer }

// ID 返回会话代号，注册表内单调递增
func (s *Session) ID() uint64 { return s.id }

// Direction 返回会话方向
func (s *Session) Direction() types.Direction { return s.dir }

// State 返回会话状态
func (s *Session) State() types.SessionState { return s.state }

// CreatedAt 返回进入 Connecting 的时间
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// OpenedAt 返回进入 Open 的时间
func (s *Session) OpenedAt() time.Time { return s.openedAt }

// LastSeen 返回最近一次收到消息的时间
func (s *Session) LastSeen() time.Time { return s.lastSeen }

// RTT 返回最近一次 ping/pong 往返时间
func (s *Session) RTT() time.Duration { return s.rtt }

// Initiator 本端是否为发起方
func (s *Session) Initiator() bool { return s.dir == types.DirOutbound }

// MarkPing 记录已发出的 ping
func (s *Session) MarkPing(nonce uint64, at time.Time) {
	s.pingNonce = nonce
	s.pingSentAt = at
}

// ObservePong 匹配 pong，返回往返时间
func (s *Session) ObservePong(nonce uint64, at time.Time) (time.Duration, bool) {
	if s.pingSentAt.IsZero() || nonce != s.pingNonce {
		return 0, false
	}
	s.rtt = at.Sub(s.pingSentAt)
	s.pingSentAt = time.Time{}
	return s.rtt, true
}

// Info 会话信息快照，可安全地交给其他 goroutine
type Info struct {
	Peer      types.PeerID
	ID        uint64
	Direction types.Direction
	State     types.SessionState
	OpenedAt  time.Time
	LastSeen  time.Time
	RTT       time.Duration

	// Queued 发送队列中尚未写出的消息数
	Queued int
}

// Info 返回会话信息快照
func (s *Session) Info() Info {
	return Info{
		Peer:      s.peer,
		ID:        s.id,
		Direction: s.dir,
		State:     s.state,
		OpenedAt:  s.openedAt,
		LastSeen:  s.lastSeen,
		RTT:       s.rtt,
		Queued:    s.queued(),
	}
}

func (s *Session) queued() int {
	if s.out == nil {
		return 0
	}
	return s.out.pending()
}

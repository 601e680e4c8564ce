package replication

import (
	"context"
	"errors"
	"fmt"

	"github.com/dep2p/go-docmesh/internal/core/session"
	"github.com/dep2p/go-docmesh/pkg/types"
	"github.com/dep2p/go-docmesh/pkg/wire"
)

// ============================================================================
//                              会话接入
// ============================================================================

var _ session.Events = (*Engine)(nil)

// Attach 为对端登记一个正在建立的通道
//
// 对端已有会话时：入站请求替换旧会话（对方重连），出站请求返回 session.ErrSessionExists。
// 返回的 Link 交给传输层用于上报就绪、消息与关闭事件。
func (e *Engine) Attach(ctx context.Context, peer types.PeerID, dir types.Direction, ch session.Channel) (session.Link, error) {
	if peer == e.self {
		return session.Link{}, ErrSelfConnect
	}
	var (
		link  session.Link
		opErr error
	)
	err := e.do(ctx, func() {
		if old, ok := e.registry.Get(peer); ok {
			if dir != types.DirInbound {
				opErr = fmt.Errorf("attach %s: %w", peer.ShortString(), session.ErrSessionExists)
				return
			}
			logger.Info("对端重新发起连接，替换旧会话", "peer", peer.ShortString(), "old", old.ID())
			e.closeSession(peer, old.ID(), nil)
		}
		s, err := e.registry.Begin(peer, dir, ch)
		if err != nil {
			opErr = err
			return
		}
		link = session.NewLink(peer, s.ID(), e)
	})
	if err != nil {
		return session.Link{}, err
	}
	return link, opErr
}

// Disconnect 主动关闭与对端的会话
func (e *Engine) Disconnect(ctx context.Context, peer types.PeerID) error {
	var found bool
	err := e.do(ctx, func() {
		_, found = e.registry.Get(peer)
		if found {
			e.closeSession(peer, 0, nil)
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrPeerNotFound
	}
	return nil
}

// LinkOpened 通道就绪：会话进入 Open 并发送本端快照
func (e *Engine) LinkOpened(l session.Link) {
	e.post(func() {
		if _, err := e.registry.Open(l.Peer, l.ID); err != nil {
			logger.Debug("忽略就绪事件", "peer", l.Peer.ShortString(), "id", l.ID, "err", err)
			return
		}
		e.observer.SessionsChanged(e.registry.OpenCount())
		e.events.publish(Event{Type: EventPeerOpened, Peer: l.Peer})
		e.sendTo(l.Peer, wire.NewInit(e.store.Snapshot()))
	})
}

// LinkMessage 收到对端消息
//
// 同一会话的消息按到达顺序进入命令队列。
func (e *Engine) LinkMessage(l session.Link, data []byte) {
	e.post(func() {
		if !e.registry.Current(l.Peer, l.ID) {
			logger.Debug("丢弃已关闭会话的消息", "peer", l.Peer.ShortString(), "id", l.ID)
			return
		}
		e.registry.Touch(l.Peer, l.ID)

		msg, err := wire.Decode(data)
		if err != nil {
			kind := wire.Kind("unknown")
			if errors.Is(err, wire.ErrUnknownKind) {
				kind = "unsupported"
			}
			e.observer.MessageReceived(kind, ResultInvalid)
			logger.Warn("解码对端消息失败", "peer", l.Peer.ShortString(), "err", err)
			return
		}
		msg.Accept(&inbound{engine: e, peer: l.Peer, id: l.ID})
	})
}

// LinkClosed 通道关闭或出错
func (e *Engine) LinkClosed(l session.Link, err error) {
	e.post(func() {
		e.closeSession(l.Peer, l.ID, err)
	})
}

// writeFailed 发送 goroutine 写失败，在发送 goroutine 上调用
func (e *Engine) writeFailed(peer types.PeerID, id uint64, err error) {
	e.post(func() {
		e.closeSession(peer, id, err)
	})
}

// closeSession 关闭并移除会话；id 为 0 表示当前会话
func (e *Engine) closeSession(peer types.PeerID, id uint64, reason error) {
	s, ok := e.registry.Close(peer, id)
	if !ok {
		return
	}
	if reason != nil {
		logger.Info("会话因错误关闭", "peer", peer.ShortString(), "id", s.ID(), "err", reason)
	}
	e.observer.SessionsChanged(e.registry.OpenCount())
	e.events.publish(Event{Type: EventPeerClosed, Peer: peer})
}

// ============================================================================
//                              消息应用
// ============================================================================

// inbound 处理某个会话上的一条消息
type inbound struct {
	engine *Engine
	peer   types.PeerID
	id     uint64
}

var _ wire.Handler = (*inbound)(nil)

// HandleInit 对方快照更新时整体采纳
func (h *inbound) HandleInit(m wire.Init) {
	e := h.engine
	if m.LastUpdate <= e.store.LastUpdate() {
		e.observer.MessageReceived(wire.KindInit, ResultDropped)
		logger.Debug("忽略较旧的快照",
			"peer", h.peer.ShortString(),
			"incoming", m.LastUpdate,
			"local", e.store.LastUpdate())
		return
	}

	snap := m.Snapshot()
	if err := snap.Validate(); err != nil {
		e.observer.MessageReceived(wire.KindInit, ResultInvalid)
		logger.Warn("快照无效", "peer", h.peer.ShortString(), "err", err)
		return
	}

	e.store.Restore(snap)
	e.observer.MessageReceived(wire.KindInit, ResultApplied)
	e.events.publish(Event{Type: EventDocumentsChanged, Peer: h.peer})
	logger.Info("已采纳对端快照",
		"peer", h.peer.ShortString(),
		"documents", len(snap.Documents),
		"lastUpdate", snap.LastUpdate)
}

// HandleContent 版本严格更大时应用
func (h *inbound) HandleContent(m wire.Content) {
	e := h.engine
	if m.DocumentID.IsEmpty() {
		e.observer.MessageReceived(wire.KindContent, ResultInvalid)
		return
	}
	if !e.applyContent(m.DocumentID, m.Content, m.Version) {
		e.observer.MessageReceived(wire.KindContent, ResultDropped)
		logger.Debug("丢弃过期更新",
			"peer", h.peer.ShortString(),
			"id", m.DocumentID,
			"incoming", m.Version,
			"local", e.store.Version(m.DocumentID))
		return
	}
	e.observer.MessageReceived(wire.KindContent, ResultApplied)
	e.events.publish(Event{Type: EventDocumentsChanged, Peer: h.peer, DocumentID: m.DocumentID})
}

// HandleDelete 无条件删除，文档不存在时无操作
func (h *inbound) HandleDelete(m wire.Delete) {
	e := h.engine
	if !e.store.Delete(m.DocumentID) {
		e.observer.MessageReceived(wire.KindDelete, ResultDropped)
		return
	}
	e.observer.MessageReceived(wire.KindDelete, ResultApplied)
	e.events.publish(Event{Type: EventDocumentsChanged, Peer: h.peer, DocumentID: m.DocumentID})
	logger.Debug("对端删除文档", "peer", h.peer.ShortString(), "id", m.DocumentID)
}

// HandlePing 回复 pong
func (h *inbound) HandlePing(m wire.Ping) {
	h.engine.observer.MessageReceived(wire.KindPing, ResultApplied)
	h.engine.sendTo(h.peer, wire.Pong{Nonce: m.Nonce})
}

// HandlePong 记录往返时间
func (h *inbound) HandlePong(m wire.Pong) {
	e := h.engine
	s, ok := e.registry.Get(h.peer)
	if !ok || s.ID() != h.id {
		return
	}
	rtt, ok := s.ObservePong(m.Nonce, e.clock.Now())
	if !ok {
		e.observer.MessageReceived(wire.KindPong, ResultDropped)
		return
	}
	e.observer.MessageReceived(wire.KindPong, ResultApplied)
	e.observer.RTTObserved(rtt)
}

// applyContent 按版本规则应用内容
//
// 只更新本地已有的文档：删除之后迟到的 content 不会让文档复活。
func (e *Engine) applyContent(id types.DocumentID, content string, version uint64) bool {
	local, exists := e.store.Get(id)
	if !exists || version <= local.Version {
		return false
	}
	doc := types.Document{ID: id, Name: local.Name, Content: content, Version: version}
	if err := e.store.Put(doc); err != nil {
		logger.Warn("应用更新失败", "id", id, "err", err)
		return false
	}
	return true
}

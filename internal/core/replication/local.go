package replication

import (
	"context"

	"github.com/dep2p/go-docmesh/internal/core/session"
	"github.com/dep2p/go-docmesh/pkg/types"
	"github.com/dep2p/go-docmesh/pkg/wire"
)

// ============================================================================
//                              本地修改
// ============================================================================

// CreateDocument 创建空文档
//
// 在线时广播 init 快照：版本为 0 的 content 消息会被接收方丢弃。
func (e *Engine) CreateDocument(ctx context.Context, name string) (types.Document, error) {
	var doc types.Document
	err := e.do(ctx, func() {
		doc = e.store.Create(name)
		logger.Info("创建文档", "id", doc.ID, "name", doc.Name)
		if e.online {
			e.broadcast(wire.NewInit(e.store.Snapshot()))
		} else {
			e.dirty = true
		}
	})
	return doc, err
}

// UpdateContent 修改文档内容，版本加 1
//
// 在线时广播 content；离线时追加到离线队列，不做广播。
func (e *Engine) UpdateContent(ctx context.Context, id types.DocumentID, content string) (types.Document, error) {
	var (
		doc   types.Document
		opErr error
	)
	err := e.do(ctx, func() {
		d, err := e.store.SetContent(id, content)
		if err != nil {
			opErr = ErrDocumentNotFound
			return
		}
		doc = d

		if e.online {
			e.broadcast(wire.Content{DocumentID: d.ID, Content: d.Content, Version: d.Version})
			return
		}
		e.dirty = true
		edit := types.PendingEdit{
			DocumentID: d.ID,
			Content:    d.Content,
			Version:    d.Version,
			Timestamp:  e.clock.Now().UnixMilli(),
		}
		if err := e.queue.Append(edit); err != nil {
			logger.Warn("离线编辑持久化失败", "id", d.ID, "err", err)
		}
		e.observer.QueueChanged(e.queue.Len())
		logger.Debug("离线编辑入队", "id", d.ID, "version", d.Version, "pending", e.queue.Len())
	})
	if err != nil {
		return types.Document{}, err
	}
	return doc, opErr
}

// DeleteDocument 删除文档
//
// 不允许删除最后一个文档。
func (e *Engine) DeleteDocument(ctx context.Context, id types.DocumentID) error {
	var opErr error
	err := e.do(ctx, func() {
		if _, ok := e.store.Get(id); !ok {
			opErr = ErrDocumentNotFound
			return
		}
		if e.store.Len() <= 1 {
			opErr = ErrLastDocument
			return
		}
		e.store.Delete(id)
		logger.Info("删除文档", "id", id)
		if e.online {
			e.broadcast(wire.Delete{DocumentID: id})
		} else {
			e.dirty = true
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// SetActive 设置当前查看的文档
func (e *Engine) SetActive(ctx context.Context, id types.DocumentID) error {
	var opErr error
	err := e.do(ctx, func() {
		if e.store.SetActive(id) != nil {
			opErr = ErrDocumentNotFound
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// ============================================================================
//                              查询
// ============================================================================

// Documents 按创建顺序返回所有文档
func (e *Engine) Documents(ctx context.Context) ([]types.Document, error) {
	var docs []types.Document
	err := e.do(ctx, func() { docs = e.store.List() })
	return docs, err
}

// Document 按 ID 返回文档
func (e *Engine) Document(ctx context.Context, id types.DocumentID) (types.Document, error) {
	var (
		doc types.Document
		ok  bool
	)
	if err := e.do(ctx, func() { doc, ok = e.store.Get(id) }); err != nil {
		return types.Document{}, err
	}
	if !ok {
		return types.Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

// Active 返回当前查看的文档 ID
func (e *Engine) Active(ctx context.Context) (types.DocumentID, error) {
	var id types.DocumentID
	err := e.do(ctx, func() { id = e.store.Active() })
	return id, err
}

// Snapshot 返回当前快照
func (e *Engine) Snapshot(ctx context.Context) (types.Snapshot, error) {
	var snap types.Snapshot
	err := e.do(ctx, func() { snap = e.store.Snapshot() })
	return snap, err
}

// Peers 返回可见对端列表
func (e *Engine) Peers(ctx context.Context) ([]types.PeerID, error) {
	var peers []types.PeerID
	err := e.do(ctx, func() { peers = e.registry.Peers() })
	return peers, err
}

// Sessions 返回所有未关闭会话的信息
func (e *Engine) Sessions(ctx context.Context) ([]session.Info, error) {
	var infos []session.Info
	err := e.do(ctx, func() {
		for _, s := range e.registry.Sessions() {
			infos = append(infos, s.Info())
		}
	})
	return infos, err
}

// HasSession 判断对端是否已有未关闭会话（含 Connecting）
func (e *Engine) HasSession(ctx context.Context, peer types.PeerID) (bool, error) {
	var ok bool
	err := e.do(ctx, func() { _, ok = e.registry.Get(peer) })
	return ok, err
}

// PendingEdits 返回离线队列中的条目
func (e *Engine) PendingEdits(ctx context.Context) ([]types.PendingEdit, error) {
	var out []types.PendingEdit
	err := e.do(ctx, func() { out = e.queue.Pending() })
	return out, err
}

// Connectivity 返回当前联网状态
func (e *Engine) Connectivity(ctx context.Context) (types.Connectivity, error) {
	c := types.Offline
	err := e.do(ctx, func() {
		if e.online {
			c = types.Online
		}
	})
	return c, err
}

// ============================================================================
//                              广播
// ============================================================================

// broadcast 向所有 Open 会话发送，发送队列已满的会话被关闭
func (e *Engine) broadcast(msg wire.Message) {
	data, err := wire.Encode(msg)
	if err != nil {
		logger.Warn("编码消息失败", "kind", msg.Kind(), "err", err)
		return
	}
	sent, failed := e.registry.Broadcast(data)
	e.observer.MessageSent(msg.Kind(), sent, len(failed))
	logger.Debug("广播消息", "kind", msg.Kind(), "sent", sent, "failed", len(failed))

	for _, peer := range failed {
		e.closeSession(peer, 0, session.ErrOutboxFull)
	}
}

// sendTo 向单个会话发送
func (e *Engine) sendTo(peer types.PeerID, msg wire.Message) {
	data, err := wire.Encode(msg)
	if err != nil {
		logger.Warn("编码消息失败", "kind", msg.Kind(), "err", err)
		return
	}
	if err := e.registry.Send(peer, data); err != nil {
		e.observer.MessageSent(msg.Kind(), 0, 1)
		logger.Debug("发送失败", "peer", peer.ShortString(), "kind", msg.Kind(), "err", err)
		e.closeSession(peer, 0, err)
		return
	}
	e.observer.MessageSent(msg.Kind(), 1, 0)
}

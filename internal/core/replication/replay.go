package replication

import (
	"context"

	"github.com/dep2p/go-docmesh/pkg/types"
	"github.com/dep2p/go-docmesh/pkg/wire"
)

// ============================================================================
//                              联网状态与离线回放
// ============================================================================

// SetConnectivity 处理联网状态变化
//
// 只有状态真正改变时才有副作用。转为在线时回放离线队列，
// 然后向所有会话广播一次 init 快照；转为离线只记录状态。
func (e *Engine) SetConnectivity(ctx context.Context, c types.Connectivity) error {
	return e.do(ctx, func() {
		online := c == types.Online
		if online == e.online {
			return
		}
		e.online = online
		logger.Info("联网状态变化", "state", c)
		e.events.publish(Event{Type: EventConnectivity, Connectivity: c})
		if online {
			e.replay()
		}
	})
}

// Replay 立即回放离线队列（仅在线时生效）
func (e *Engine) Replay(ctx context.Context) error {
	return e.do(ctx, func() {
		if e.online {
			e.replay()
		}
	})
}

// replay 按时间戳升序回放离线编辑
//
// 每条编辑使用与 content 消息相同的版本规则，重复回放是幂等的。
// 队列只在整批完成后清空；清空失败时保留，下次上线重试。
func (e *Engine) replay() {
	if e.queue.Len() == 0 && !e.dirty {
		return
	}

	applied := 0
	n, err := e.queue.Replay(func(edit types.PendingEdit) error {
		if _, ok := e.store.Get(edit.DocumentID); !ok {
			logger.Debug("回放跳过已删除的文档", "id", edit.DocumentID)
			return nil
		}
		if e.applyContent(edit.DocumentID, edit.Content, edit.Version) {
			applied++
		}
		return nil
	})
	e.observer.ReplayCompleted(n, err)
	e.observer.QueueChanged(e.queue.Len())
	if err != nil {
		logger.Warn("离线回放未完成，队列保留", "entries", n, "err", err)
	} else {
		logger.Info("离线回放完成", "entries", n, "applied", applied)
	}

	e.dirty = false
	e.broadcast(wire.NewInit(e.store.Snapshot()))
	e.events.publish(Event{Type: EventReplayed})
}

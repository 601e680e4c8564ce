package replication

import (
	"context"
	"errors"
	"time"

	"github.com/dep2p/go-docmesh/pkg/types"
	"github.com/dep2p/go-docmesh/pkg/wire"
)

// errIdleTimeout 会话超过空闲时限
var errIdleTimeout = errors.New("session idle timeout")

// HeartbeatResult 一轮心跳的结果
type HeartbeatResult struct {
	Pinged int
	Closed []types.PeerID
}

// Heartbeat 执行一轮存活检测
//
// 先关闭超过 timeout 未收到任何消息的会话（包括卡在 Connecting 的），
// 再向剩余的 Open 会话发送 ping。
func (e *Engine) Heartbeat(ctx context.Context, timeout time.Duration) (HeartbeatResult, error) {
	var res HeartbeatResult
	err := e.do(ctx, func() {
		for _, s := range e.registry.Idle(timeout) {
			peer := s.Peer()
			logger.Info("会话空闲超时", "peer", peer.ShortString(), "lastSeen", s.LastSeen())
			e.closeSession(peer, s.ID(), errIdleTimeout)
			res.Closed = append(res.Closed, peer)
		}

		now := e.clock.Now()
		for _, peer := range e.registry.Peers() {
			s, ok := e.registry.Get(peer)
			if !ok {
				continue
			}
			e.nonce++
			s.MarkPing(e.nonce, now)
			e.sendTo(peer, wire.Ping{Nonce: e.nonce})
			res.Pinged++
		}
	})
	return res, err
}

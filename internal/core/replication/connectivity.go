package replication

import (
	"context"
	"errors"

	"github.com/dep2p/go-docmesh/internal/core/netmon"
	"github.com/dep2p/go-docmesh/pkg/types"
)

// ConnectivitySource 联网状态来源
type ConnectivitySource interface {
	State() types.Connectivity
	Subscribe() <-chan netmon.Change
	Unsubscribe(<-chan netmon.Change)
}

// Follow 跟随 src 的联网状态，直到 ctx 取消或 src 关闭订阅
//
// 先同步一次当前状态，之后每次边沿都转交给 SetConnectivity。
// 返回的 done 在后台 goroutine 退出时关闭。
func (e *Engine) Follow(ctx context.Context, src ConnectivitySource) (done <-chan struct{}) {
	sub := src.Subscribe()
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		defer src.Unsubscribe(sub)

		if err := e.SetConnectivity(ctx, src.State()); err != nil && !errors.Is(err, context.Canceled) {
			logger.Debug("同步初始联网状态失败", "err", err)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-sub:
				if !ok {
					return
				}
				if err := e.SetConnectivity(ctx, change.Current); err != nil {
					if errors.Is(err, ErrClosed) {
						return
					}
					logger.Warn("转交联网状态失败", "to", change.Current, "err", err)
				}
			}
		}
	}()
	return finished
}

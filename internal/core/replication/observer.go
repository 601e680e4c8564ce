package replication

import (
	"time"

	"github.com/dep2p/go-docmesh/pkg/wire"
)

// 入站消息处理结果
const (
	ResultApplied = "applied"
	ResultDropped = "dropped"
	ResultInvalid = "invalid"
)

// Observer 复制引擎的观测回调
//
// 所有方法都在引擎 goroutine 上调用，实现不得阻塞。
type Observer interface {
	// MessageReceived 入站消息及其处理结果
	MessageReceived(kind wire.Kind, result string)
	// MessageSent 出站消息，failed 为投递失败的会话数
	MessageSent(kind wire.Kind, sent, failed int)
	// SessionsChanged Open 会话数变化
	SessionsChanged(open int)
	// QueueChanged 离线队列长度变化
	QueueChanged(pending int)
	// ReplayCompleted 一次离线回放完成
	ReplayCompleted(entries int, err error)
	// RTTObserved ping/pong 往返时间
	RTTObserved(rtt time.Duration)
}

// NoopObserver 空实现
type NoopObserver struct{}

var _ Observer = NoopObserver{}

func (NoopObserver) MessageReceived(wire.Kind, string) {}
func (NoopObserver) MessageSent(wire.Kind, int, int)   {}
func (NoopObserver) SessionsChanged(int)               {}
func (NoopObserver) QueueChanged(int)                  {}
func (NoopObserver) ReplayCompleted(int, error)        {}
func (NoopObserver) RTTObserved(time.Duration)         {}

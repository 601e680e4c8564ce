// Package memory 提供进程内的通道对
//
// 用于多节点测试与单进程演示：Pipe 返回一对相连的端点，
// 一端 Send 的消息按顺序出现在另一端的 Link 上。任一端关闭后两端都收到关闭事件。
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dep2p/go-docmesh/internal/core/session"
	"github.com/dep2p/go-docmesh/pkg/lib/log"
	"github.com/dep2p/go-docmesh/pkg/types"
)

var logger = log.Logger("transport/memory")

// DefaultBufferSize 默认每个方向的缓冲消息数
const DefaultBufferSize = 256

// ErrClosed 通道已关闭
var ErrClosed = errors.New("memory channel closed")

// pipe 一对端点共享的关闭状态
type pipe struct {
	done chan struct{}
	once sync.Once
}

func (p *pipe) close() {
	p.once.Do(func() { close(p.done) })
}

// Conn 进程内通道端点，实现 session.Channel
type Conn struct {
	pipe   *pipe
	inbox  chan []byte
	remote *Conn

	bindOnce sync.Once
}

// Pipe 创建一对相连的端点
func Pipe(buffer int) (*Conn, *Conn) {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	p := &pipe{done: make(chan struct{})}
	a := &Conn{pipe: p, inbox: make(chan []byte, buffer)}
	b := &Conn{pipe: p, inbox: make(chan []byte, buffer)}
	a.remote, b.remote = b, a
	return a, b
}

// Send 把消息放入对端的收件箱，缓冲满时阻塞
func (c *Conn) Send(data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case <-c.pipe.done:
		return ErrClosed
	default:
	}
	select {
	case c.remote.inbox <- buf:
		return nil
	case <-c.pipe.done:
		return ErrClosed
	}
}

// Close 关闭两端
func (c *Conn) Close() error {
	c.pipe.close()
	return nil
}

// Bind 开始把收到的消息投递给 Link，只生效一次
//
// 关闭时先投递收件箱中剩余的消息，再上报关闭事件。
func (c *Conn) Bind(l session.Link) {
	c.bindOnce.Do(func() {
		go c.deliver(l)
	})
}

func (c *Conn) deliver(l session.Link) {
	for {
		select {
		case data := <-c.inbox:
			l.Deliver(data)
		case <-c.pipe.done:
			for {
				select {
				case data := <-c.inbox:
					l.Deliver(data)
				default:
					l.Closed(ErrClosed)
					return
				}
			}
		}
	}
}

// ============================================================================
//                              连接两个节点
// ============================================================================

// Endpoint 可以接入通道的节点
//
// 由复制引擎实现。
type Endpoint interface {
	ID() types.PeerID
	Attach(ctx context.Context, peer types.PeerID, dir types.Direction, ch session.Channel) (session.Link, error)
}

// Connection 两个节点之间建立的进程内连接
type Connection struct {
	local *Conn
}

// Close 断开连接，两端都会收到关闭事件
func (c *Connection) Close() error {
	return c.local.Close()
}

// Connect 在两个节点之间建立会话
//
// from 作为发起方，先收到就绪事件，因此先发送 init。
func Connect(ctx context.Context, from, to Endpoint) (*Connection, error) {
	if from.ID() == to.ID() {
		return nil, fmt.Errorf("connect %s to itself", from.ID())
	}
	a, b := Pipe(DefaultBufferSize)

	la, err := from.Attach(ctx, to.ID(), types.DirOutbound, a)
	if err != nil {
		return nil, fmt.Errorf("attach outbound: %w", err)
	}
	lb, err := to.Attach(ctx, from.ID(), types.DirInbound, b)
	if err != nil {
		_ = a.Close()
		la.Closed(err)
		return nil, fmt.Errorf("attach inbound: %w", err)
	}

	a.Bind(la)
	b.Bind(lb)
	la.Opened()
	lb.Opened()

	logger.Debug("进程内连接已建立", "from", from.ID().ShortString(), "to", to.ID().ShortString())
	return &Connection{local: a}, nil
}

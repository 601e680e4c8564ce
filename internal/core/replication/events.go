package replication

import (
	"sync"

	"github.com/dep2p/go-docmesh/pkg/types"
)

// EventType 引擎事件类型
type EventType int

const (
	// EventDocumentsChanged 远端消息改变了文档集合
	EventDocumentsChanged EventType = iota
	// EventPeerOpened 会话打开
	EventPeerOpened
	// EventPeerClosed 会话关闭
	EventPeerClosed
	// EventConnectivity 联网状态变化
	EventConnectivity
	// EventReplayed 离线回放完成
	EventReplayed
)

// String 返回事件类型名
func (t EventType) String() string {
	switch t {
	case EventDocumentsChanged:
		return "documents-changed"
	case EventPeerOpened:
		return "peer-opened"
	case EventPeerClosed:
		return "peer-closed"
	case EventConnectivity:
		return "connectivity"
	case EventReplayed:
		return "replayed"
	default:
		return "unknown"
	}
}

// Event 引擎事件
type Event struct {
	Type         EventType
	Peer         types.PeerID
	DocumentID   types.DocumentID
	Connectivity types.Connectivity
}

// bus 非阻塞事件分发，订阅者处理不过来时事件被丢弃
type bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func newBus() *bus {
	return &bus{subs: make(map[int]chan Event)}
}

func (b *bus) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

func (b *bus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *bus) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

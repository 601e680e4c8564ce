package session

import "sync"

// outbox 每个 Open 会话的发送队列
//
// 单个 goroutine 按入队顺序调用 Channel.Send；写失败时上报一次并退出，
// 未发出的消息直接丢弃（至多一次投递）。
type outbox struct {
	ch      Channel
	queue   chan []byte
	done    chan struct{}
	stopped sync.Once
	onError func(error)
}

func newOutbox(ch Channel, size int, onError func(error)) *outbox {
	if size <= 0 {
		size = 1
	}
	return &outbox{
		ch:      ch,
		queue:   make(chan []byte, size),
		done:    make(chan struct{}),
		onError: onError,
	}
}

func (o *outbox) start() {
	go o.loop()
}

// enqueue 非阻塞入队
func (o *outbox) enqueue(data []byte) error {
	select {
	case <-o.done:
		return ErrSessionClosed
	default:
	}
	select {
	case o.queue <- data:
		return nil
	default:
		return ErrOutboxFull
	}
}

func (o *outbox) loop() {
	for {
		select {
		case <-o.done:
			return
		case data := <-o.queue:
			if err := o.ch.Send(data); err != nil {
				select {
				case <-o.done:
				default:
					if o.onError != nil {
						o.onError(err)
					}
				}
				return
			}
		}
	}
}

// stop 停止发送，不等待正在进行的 Send
func (o *outbox) stop() {
	o.stopped.Do(func() { close(o.done) })
}

// pending 返回尚未发送的消息数
func (o *outbox) pending() int {
	return len(o.queue)
}

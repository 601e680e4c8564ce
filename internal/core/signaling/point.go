package signaling

import (
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-docmesh/config"
	"github.com/dep2p/go-docmesh/pkg/lib/log"
	"github.com/dep2p/go-docmesh/pkg/types"
	"github.com/dep2p/go-docmesh/pkg/wire"
)

var logger = log.Logger("core/signaling")

// PointConfig rendezvous 服务端配置
type PointConfig struct {
	// MessagesPerSecond 每个连接的消息速率
	MessagesPerSecond float64

	// Burst 突发上限
	Burst int

	// SendBuffer 每个连接的发送队列容量，写满的连接被断开
	SendBuffer int

	// WriteTimeout 单次写超时
	WriteTimeout time.Duration
}

// DefaultPointConfig 返回默认配置
func DefaultPointConfig() PointConfig {
	return PointConfig{
		MessagesPerSecond: 50,
		Burst:             100,
		SendBuffer:        64,
		WriteTimeout:      10 * time.Second,
	}
}

// PointConfigFromUnified 从统一配置转换
func PointConfigFromUnified(cfg *config.Config) PointConfig {
	c := DefaultPointConfig()
	if cfg == nil {
		return c
	}
	if cfg.Rendezvous.MessagesPerSecond > 0 {
		c.MessagesPerSecond = cfg.Rendezvous.MessagesPerSecond
	}
	if cfg.Rendezvous.Burst > 0 {
		c.Burst = cfg.Rendezvous.Burst
	}
	return c
}

// PointStats 服务端统计
type PointStats struct {
	Connections int
	Members     int
	Routed      uint64
	Dropped     uint64
	Limited     uint64
}

// ============================================================================
//                              Point
// ============================================================================

// Point rendezvous 服务端
//
// 作为 http.Handler 挂载到 websocket 路径上。
type Point struct {
	config   PointConfig
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[*pointConn]struct{}
	members map[types.PeerID]*pointConn
	closed  bool

	wg sync.WaitGroup

	routed  atomic.Uint64
	dropped atomic.Uint64
	limited atomic.Uint64
}

// pointConn 一个客户端连接
type pointConn struct {
	ws      *websocket.Conn
	id      types.PeerID // 由 Point.mu 保护
	send    chan []byte
	limiter *rate.Limiter
	done    chan struct{}
	once    sync.Once
}

func (c *pointConn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// NewPoint 创建 rendezvous 服务端
func NewPoint(cfg PointConfig) *Point {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultPointConfig().SendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultPointConfig().WriteTimeout
	}
	return &Point{
		config: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns:   make(map[*pointConn]struct{}),
		members: make(map[types.PeerID]*pointConn),
	}
}

// ServeHTTP 升级为 websocket 并服务该连接直到断开
func (p *Point) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		http.Error(w, ErrPointClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	ws, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("websocket 升级失败", "remote", r.RemoteAddr, "err", err)
		return
	}
	ws.SetReadLimit(wire.MaxMessageSize)

	c := &pointConn{
		ws:      ws,
		send:    make(chan []byte, p.config.SendBuffer),
		limiter: rate.NewLimiter(rate.Limit(p.config.MessagesPerSecond), p.config.Burst),
		done:    make(chan struct{}),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = ws.Close()
		return
	}
	p.conns[c] = struct{}{}
	p.wg.Add(1)
	p.mu.Unlock()

	defer p.wg.Done()
	go p.writeLoop(c)
	p.readLoop(c)
}

// Roster 返回当前成员，按 ID 排序
func (p *Point) Roster() []types.PeerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rosterLocked()
}

// Evict 断开指定成员，返回是否存在
func (p *Point) Evict(id types.PeerID) bool {
	p.mu.Lock()
	c, ok := p.members[id]
	p.mu.Unlock()
	if ok {
		c.close()
	}
	return ok
}

// Stats 返回统计
func (p *Point) Stats() PointStats {
	p.mu.Lock()
	conns, members := len(p.conns), len(p.members)
	p.mu.Unlock()
	return PointStats{
		Connections: conns,
		Members:     members,
		Routed:      p.routed.Load(),
		Dropped:     p.dropped.Load(),
		Limited:     p.limited.Load(),
	}
}

// Close 断开所有连接并拒绝新连接
func (p *Point) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := make([]*pointConn, 0, len(p.conns))
	for c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	p.wg.Wait()
	logger.Info("rendezvous 已关闭", "connections", len(conns))
	return nil
}

// ============================================================================
//                              连接处理
// ============================================================================

func (p *Point) readLoop(c *pointConn) {
	defer p.unregister(c)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			p.limited.Add(1)
			logger.Warn("连接超过消息速率，丢弃", "remote", c.ws.RemoteAddr())
			continue
		}

		sig, err := wire.DecodeSignal(data)
		if err != nil {
			p.dropped.Add(1)
			logger.Debug("无法解码的信令消息", "err", err)
			continue
		}
		p.handle(c, sig)
	}
}

func (p *Point) writeLoop(c *pointConn) {
	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(p.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("写入失败，断开连接", "remote", c.ws.RemoteAddr(), "err", err)
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (p *Point) handle(c *pointConn, sig wire.Signal) {
	switch m := sig.(type) {
	case wire.Join:
		p.join(c, m.ID)
	case wire.Users:
		p.dropped.Add(1)
	default:
		p.route(c, sig)
	}
}

// join 登记成员并广播名单
//
// 同一 ID 的旧连接被新连接取代；同一连接重复 join 视为改名。
func (p *Point) join(c *pointConn, id types.PeerID) {
	p.mu.Lock()
	if old, ok := p.members[id]; ok && old != c {
		old.id = ""
		defer old.close()
		logger.Info("同一 ID 重新加入，断开旧连接", "id", id)
	}
	if c.id != "" && c.id != id {
		delete(p.members, c.id)
	}
	c.id = id
	p.members[id] = c
	p.broadcastRosterLocked()
	p.mu.Unlock()

	logger.Info("节点加入", "id", id)
}

// route 按 to 转发协商消息，from 被覆盖为发送方的 join ID
func (p *Point) route(c *pointConn, sig wire.Signal) {
	r, ok := wire.RouteOf(sig)
	if !ok {
		p.dropped.Add(1)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c.id == "" {
		p.dropped.Add(1)
		logger.Debug("未 join 的连接发送协商消息", "kind", sig.Kind())
		return
	}
	target, ok := p.members[r.To]
	if !ok {
		p.dropped.Add(1)
		logger.Debug("目标不在线", "from", c.id, "to", r.To, "kind", sig.Kind())
		return
	}

	data, err := wire.EncodeSignal(wire.WithFrom(sig, c.id))
	if err != nil {
		p.dropped.Add(1)
		return
	}
	if p.enqueueLocked(target, data) {
		p.routed.Add(1)
	}
}

func (p *Point) unregister(c *pointConn) {
	c.close()

	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.conns, c)
	if c.id == "" {
		return
	}
	if p.members[c.id] == c {
		delete(p.members, c.id)
		logger.Info("节点离开", "id", c.id)
		p.broadcastRosterLocked()
	}
}

func (p *Point) rosterLocked() []types.PeerID {
	out := make([]types.PeerID, 0, len(p.members))
	for id := range p.members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (p *Point) broadcastRosterLocked() {
	data, err := wire.EncodeSignal(wire.Users{Users: p.rosterLocked()})
	if err != nil {
		return
	}
	for _, c := range p.members {
		p.enqueueLocked(c, data)
	}
}

// enqueueLocked 非阻塞入队，队列已满的连接被断开
func (p *Point) enqueueLocked(c *pointConn, data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		p.dropped.Add(1)
		logger.Warn("发送队列已满，断开连接", "id", c.id)
		go c.close()
		return false
	}
}

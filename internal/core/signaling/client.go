package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dep2p/go-docmesh/config"
	"github.com/dep2p/go-docmesh/pkg/types"
	"github.com/dep2p/go-docmesh/pkg/wire"
)

// ============================================================================
//                              依赖接口
// ============================================================================

// Negotiator 连接协商方
//
// 负载对信令层不透明。onCandidate 可能在任意 goroutine 上被调用。
type Negotiator interface {
	// Offer 作为发起方创建连接并返回 offer
	Offer(ctx context.Context, peer types.PeerID, onCandidate func(json.RawMessage)) (json.RawMessage, error)

	// Answer 作为应答方处理 offer 并返回 answer
	Answer(ctx context.Context, peer types.PeerID, offer json.RawMessage, onCandidate func(json.RawMessage)) (json.RawMessage, error)

	// Accept 发起方收到 answer
	Accept(peer types.PeerID, answer json.RawMessage) error

	// AddCandidate 添加对端的 ICE 候选
	AddCandidate(peer types.PeerID, candidate json.RawMessage) error

	// Abort 放弃尚未完成的协商；连接已经打开时无效果
	Abort(peer types.PeerID)
}

// PeerSet 已有会话的节点集合
type PeerSet interface {
	HasSession(ctx context.Context, peer types.PeerID) (bool, error)
}

// ============================================================================
//                              配置
// ============================================================================

// ClientConfig 客户端配置
type ClientConfig struct {
	// URL rendezvous websocket 地址
	URL string

	// ConnectTimeout 拨号与单次协商超时
	ConnectTimeout time.Duration

	// ReconnectMin / ReconnectMax 重连退避区间
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// RedialSuppress 协商失败的节点在此时间内不再重拨，0 表示不抑制
	RedialSuppress time.Duration

	// SweepInterval 检查超时协商与补拨的间隔
	SweepInterval time.Duration
}

// DefaultClientConfig 返回默认配置
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ConnectTimeout: 30 * time.Second,
		ReconnectMin:   time.Second,
		ReconnectMax:   time.Minute,
		RedialSuppress: 30 * time.Second,
		SweepInterval:  5 * time.Second,
	}
}

// ClientConfigFromUnified 从统一配置转换
func ClientConfigFromUnified(cfg *config.Config) ClientConfig {
	c := DefaultClientConfig()
	if cfg == nil {
		return c
	}
	s := cfg.Signaling
	c.URL = s.URL
	if d := s.ConnectTimeout.Duration(); d > 0 {
		c.ConnectTimeout = d
	}
	if d := s.ReconnectMin.Duration(); d > 0 {
		c.ReconnectMin = d
	}
	if d := s.ReconnectMax.Duration(); d > 0 {
		c.ReconnectMax = d
	}
	c.RedialSuppress = s.RedialSuppress.Duration()
	return c
}

const (
	writeTimeout  = 10 * time.Second
	suppressSize  = 256
	inboxCapacity = 64
)

// ============================================================================
//                              协商状态
// ============================================================================

type role int

const (
	roleInitiator role = iota + 1
	roleResponder
)

// negotiation 一次进行中的协商
//
// offer/answer 发出之前产生的本地候选先缓存，之后按序发出。
type negotiation struct {
	peer     types.PeerID
	role     role
	started  time.Time
	answered bool

	mu     sync.Mutex
	ready  bool
	queued []json.RawMessage
	send   func(wire.Signal) error
}

func (n *negotiation) candidate(c json.RawMessage) {
	n.mu.Lock()
	if !n.ready {
		n.queued = append(n.queued, c)
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()
	n.emit(c)
}

func (n *negotiation) emit(c json.RawMessage) {
	if err := n.send(wire.Candidate{Candidate: c, Route: wire.Route{To: n.peer}}); err != nil {
		logger.Debug("发送候选失败", "peer", n.peer.ShortString(), "err", err)
	}
}

func (n *negotiation) markReady() {
	n.mu.Lock()
	n.ready = true
	queued := n.queued
	n.queued = nil
	n.mu.Unlock()
	for _, c := range queued {
		n.emit(c)
	}
}

// ============================================================================
//                              Client
// ============================================================================

// Client rendezvous 客户端
type Client struct {
	config ClientConfig
	self   types.PeerID
	peers  PeerSet
	neg    Negotiator
	clock  clock.Clock
	dialer *websocket.Dialer

	suppressed *expirable.LRU[types.PeerID, struct{}]

	writeMu sync.Mutex
	ws      *websocket.Conn

	rosterMu sync.RWMutex
	roster   []types.PeerID

	// 只在会话 goroutine 上访问
	pending map[types.PeerID]*negotiation

	dials chan dialRequest

	connected atomic.Bool
	joins     atomic.Int64

	started atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewClient 创建客户端
func NewClient(cfg ClientConfig, self types.PeerID, peers PeerSet, neg Negotiator, clk clock.Clock) *Client {
	d := DefaultClientConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = d.ConnectTimeout
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = d.ReconnectMin
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = cfg.ReconnectMin
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = d.SweepInterval
	}
	if clk == nil {
		clk = clock.New()
	}

	c := &Client{
		config:  cfg,
		self:    self,
		peers:   peers,
		neg:     neg,
		clock:   clk,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout},
		pending: make(map[types.PeerID]*negotiation),
		dials:   make(chan dialRequest),
	}
	if cfg.RedialSuppress > 0 {
		c.suppressed = expirable.NewLRU[types.PeerID, struct{}](suppressSize, nil, cfg.RedialSuppress)
	}
	return c
}

// Start 启动连接循环，断线后按指数退避重连
func (c *Client) Start(_ context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.done = make(chan struct{})
	go c.run()

	logger.Info("信令客户端已启动", "url", c.config.URL, "self", c.self.ShortString())
	return nil
}

// Stop 断开并停止重连
func (c *Client) Stop() error {
	if !c.started.Load() {
		return nil
	}
	c.cancel()
	c.writeMu.Lock()
	if c.ws != nil {
		_ = c.ws.Close()
	}
	c.writeMu.Unlock()
	<-c.done

	logger.Info("信令客户端已停止")
	return nil
}

// Connected 是否已加入 rendezvous
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Joins 返回累计 join 次数
func (c *Client) Joins() int64 {
	return c.joins.Load()
}

// Roster 返回最近一次名单（不含自己）
func (c *Client) Roster() []types.PeerID {
	c.rosterMu.RLock()
	defer c.rosterMu.RUnlock()
	out := make([]types.PeerID, len(c.roster))
	copy(out, c.roster)
	return out
}

// dialRequest 由 Dial 交给会话 goroutine 执行
type dialRequest struct {
	peer  types.PeerID
	reply chan error
}

// Dial 立即向 peer 发起协商
//
// 与名单驱动的自动拨号不同，Dial 不受 ID 大小规则限制，也会清除该节点的
// 重拨抑制。已有会话或协商进行中时直接返回 nil。
func (c *Client) Dial(ctx context.Context, peer types.PeerID) error {
	if peer == c.self {
		return ErrSelfDial
	}
	if !c.started.Load() || !c.Connected() {
		return ErrNotConnected
	}
	req := dialRequest{peer: peer, reply: make(chan error, 1)}
	select {
	case c.dials <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrNotConnected
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) setRoster(r []types.PeerID) {
	c.rosterMu.Lock()
	c.roster = r
	c.rosterMu.Unlock()
}

// ============================================================================
//                              连接循环
// ============================================================================

func (c *Client) run() {
	defer close(c.done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.ReconnectMin
	b.MaxInterval = c.config.ReconnectMax
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		joined, err := c.session(c.ctx)
		if c.ctx.Err() != nil {
			return
		}
		if joined {
			b.Reset()
		}
		wait := b.NextBackOff()
		logger.Warn("rendezvous 连接断开，稍后重连", "err", err, "wait", wait)

		select {
		case <-c.ctx.Done():
			return
		case <-c.clock.After(wait):
		}
	}
}

// session 一次完整的连接：拨号、join、处理消息直到断开
func (c *Client) session(ctx context.Context) (joined bool, err error) {
	dctx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	ws, _, err := c.dialer.DialContext(dctx, c.config.URL, nil)
	cancel()
	if err != nil {
		return false, err
	}
	ws.SetReadLimit(wire.MaxMessageSize)

	c.writeMu.Lock()
	c.ws = ws
	c.writeMu.Unlock()
	defer c.teardown(ws)

	if err := c.send(wire.Join{ID: c.self}); err != nil {
		return false, err
	}
	c.connected.Store(true)
	c.joins.Add(1)
	logger.Info("已加入 rendezvous", "url", c.config.URL)

	inbox := make(chan wire.Signal, inboxCapacity)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			sig, err := wire.DecodeSignal(data)
			if err != nil {
				logger.Debug("无法解码的信令消息", "err", err)
				continue
			}
			select {
			case inbox <- sig:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := c.clock.Ticker(c.config.SweepInterval)
	defer ticker.Stop()

	h := &signalHandler{c: c, ctx: ctx}
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case err := <-readErr:
			return true, err
		case sig := <-inbox:
			sig.Accept(h)
		case req := <-c.dials:
			req.reply <- c.dialRequested(ctx, req.peer)
		case <-ticker.C:
			c.reconcile(ctx)
		}
	}
}

// teardown 关闭连接并放弃所有未完成的协商
func (c *Client) teardown(ws *websocket.Conn) {
	c.writeMu.Lock()
	if c.ws == ws {
		c.ws = nil
	}
	c.writeMu.Unlock()
	_ = ws.Close()

	c.connected.Store(false)
	for peer := range c.pending {
		c.neg.Abort(peer)
	}
	c.pending = make(map[types.PeerID]*negotiation)
	c.setRoster(nil)
}

// send 发送信令消息，可在任意 goroutine 调用
func (c *Client) send(sig wire.Signal) error {
	data, err := wire.EncodeSignal(sig)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.ws == nil {
		return ErrNotConnected
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// ============================================================================
//                              协商调度
// ============================================================================

// reconcile 对名单中尚未建立会话的节点发起协商
//
// 只有本节点 ID 较小时才发起；超时的协商被放弃并进入重拨抑制。
func (c *Client) reconcile(ctx context.Context) {
	now := c.clock.Now()
	for _, peer := range c.Roster() {
		if n, ok := c.pending[peer]; ok {
			if has, _ := c.peers.HasSession(ctx, peer); has {
				delete(c.pending, peer)
				continue
			}
			if now.Sub(n.started) > c.config.ConnectTimeout {
				logger.Info("协商超时", "peer", peer.ShortString())
				c.fail(peer)
			}
			continue
		}
		if !c.self.Less(peer) {
			continue
		}
		if c.suppressed != nil && c.suppressed.Contains(peer) {
			continue
		}
		has, err := c.peers.HasSession(ctx, peer)
		if err != nil || has {
			continue
		}
		_ = c.dial(ctx, peer)
	}
}

// dialRequested 处理 Dial 请求
func (c *Client) dialRequested(ctx context.Context, peer types.PeerID) error {
	if c.suppressed != nil {
		c.suppressed.Remove(peer)
	}
	if _, ok := c.pending[peer]; ok {
		return nil
	}
	has, err := c.peers.HasSession(ctx, peer)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	logger.Info("按请求发起协商", "peer", peer.ShortString())
	return c.dial(ctx, peer)
}

func (c *Client) newNegotiation(peer types.PeerID, r role) *negotiation {
	n := &negotiation{peer: peer, role: r, started: c.clock.Now(), send: c.send}
	c.pending[peer] = n
	return n
}

func (c *Client) dial(ctx context.Context, peer types.PeerID) error {
	n := c.newNegotiation(peer, roleInitiator)

	octx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	offer, err := c.neg.Offer(octx, peer, n.candidate)
	cancel()
	if err != nil {
		logger.Warn("创建 offer 失败", "peer", peer.ShortString(), "err", err)
		c.fail(peer)
		return err
	}
	if err := c.send(wire.Offer{Offer: offer, Route: wire.Route{To: peer}}); err != nil {
		c.fail(peer)
		return err
	}
	n.markReady()
	logger.Debug("已发送 offer", "peer", peer.ShortString())
	return nil
}

// fail 放弃协商并在一段时间内不再重拨
func (c *Client) fail(peer types.PeerID) {
	c.neg.Abort(peer)
	delete(c.pending, peer)
	if c.suppressed != nil {
		c.suppressed.Add(peer, struct{}{})
	}
}

// signalHandler 在会话 goroutine 上处理信令消息
type signalHandler struct {
	c   *Client
	ctx context.Context
}

var _ wire.SignalHandler = (*signalHandler)(nil)

func (h *signalHandler) HandleJoin(wire.Join) {}

func (h *signalHandler) HandleUsers(m wire.Users) {
	c := h.c
	roster := make([]types.PeerID, 0, len(m.Users))
	present := make(map[types.PeerID]bool, len(m.Users))
	for _, p := range m.Users {
		if p == c.self || p.IsEmpty() {
			continue
		}
		roster = append(roster, p)
		present[p] = true
	}
	c.setRoster(roster)

	for peer := range c.pending {
		if !present[peer] {
			c.neg.Abort(peer)
			delete(c.pending, peer)
		}
	}
	logger.Debug("收到在线名单", "count", len(roster))
	c.reconcile(h.ctx)
}

func (h *signalHandler) HandleOffer(m wire.Offer) {
	c := h.c
	from := m.From
	if from.IsEmpty() || from == c.self {
		return
	}
	if n, ok := c.pending[from]; ok {
		// 双方同时发起时保留 ID 较小一方的 offer
		if n.role == roleInitiator && c.self.Less(from) {
			logger.Debug("忽略对端的并发 offer", "peer", from.ShortString())
			return
		}
		c.neg.Abort(from)
		delete(c.pending, from)
	}

	n := c.newNegotiation(from, roleResponder)
	actx, cancel := context.WithTimeout(h.ctx, c.config.ConnectTimeout)
	answer, err := c.neg.Answer(actx, from, m.Offer, n.candidate)
	cancel()
	if err != nil {
		logger.Warn("处理 offer 失败", "peer", from.ShortString(), "err", err)
		c.fail(from)
		return
	}
	if err := c.send(wire.Answer{Answer: answer, Route: wire.Route{To: from}}); err != nil {
		c.fail(from)
		return
	}
	n.markReady()
}

func (h *signalHandler) HandleAnswer(m wire.Answer) {
	c := h.c
	n, ok := c.pending[m.From]
	if !ok || n.role != roleInitiator || n.answered {
		logger.Debug("忽略未知协商的 answer", "peer", m.From.ShortString())
		return
	}
	n.answered = true
	if err := c.neg.Accept(m.From, m.Answer); err != nil {
		logger.Warn("应用 answer 失败", "peer", m.From.ShortString(), "err", err)
		c.fail(m.From)
	}
}

func (h *signalHandler) HandleCandidate(m wire.Candidate) {
	c := h.c
	if _, ok := c.pending[m.From]; !ok {
		logger.Debug("忽略未知协商的候选", "peer", m.From.ShortString())
		return
	}
	if err := c.neg.AddCandidate(m.From, m.Candidate); err != nil {
		logger.Debug("添加候选失败", "peer", m.From.ShortString(), "err", err)
	}
}

// Package webrtc 实现基于 WebRTC 数据通道的会话传输
//
// Transport 实现信令层的 Negotiator：发起方创建名为 "codeSync" 的有序可靠数据通道，
// 应答方在对端通道到达时接管。通道打开后通过 Attacher 接入复制引擎，
// 随后的消息、关闭与失败都经由 session.Link 上报。
//
// 远端 ICE 候选在远端描述设置之前到达时先缓存；
// 数据通道在引擎接入之前收到的消息也先缓存，接入后按序投递。
package webrtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/webrtc/v4"
	"go.uber.org/multierr"

	"github.com/dep2p/go-docmesh/internal/core/session"
	"github.com/dep2p/go-docmesh/pkg/lib/log"
	"github.com/dep2p/go-docmesh/pkg/types"
)

var logger = log.Logger("transport/webrtc")

// DefaultLabel 数据通道名称
const DefaultLabel = "codeSync"

var (
	// ErrUnknownPeer 没有与该节点进行中的协商
	ErrUnknownPeer = errors.New("webrtc: unknown peer")

	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("webrtc: transport closed")

	// ErrInvalidPayload 无法解析的协商负载
	ErrInvalidPayload = errors.New("webrtc: invalid payload")

	// ErrConnectionFailed ICE 连接失败
	ErrConnectionFailed = errors.New("webrtc: connection failed")

	// ErrReplaced 被同一节点的新协商取代
	ErrReplaced = errors.New("webrtc: replaced by new negotiation")
)

// Attacher 接入已打开的通道，由复制引擎实现
type Attacher interface {
	Attach(ctx context.Context, peer types.PeerID, dir types.Direction, ch session.Channel) (session.Link, error)
}

// Config 传输配置
type Config struct {
	// ICEServers STUN/TURN 地址
	ICEServers []string

	// ConnectTimeout 协商开始到通道打开的最长时间
	ConnectTimeout time.Duration

	// Label 数据通道名称
	Label string

	// IncludeLoopback 收集回环地址候选，用于单机测试
	IncludeLoopback bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		ICEServers:     []string{"stun:stun.l.google.com:19302"},
		ConnectTimeout: 30 * time.Second,
		Label:          DefaultLabel,
	}
}

// ============================================================================
//                              Transport
// ============================================================================

// Transport WebRTC 传输
type Transport struct {
	config   Config
	api      *webrtc.API
	attacher Attacher
	clock    clock.Clock

	mu     sync.Mutex
	conns  map[types.PeerID]*peerConn
	closed bool
}

// New 创建传输
func New(cfg Config, attacher Attacher, clk clock.Clock) *Transport {
	d := DefaultConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = d.ConnectTimeout
	}
	if cfg.Label == "" {
		cfg.Label = d.Label
	}
	if clk == nil {
		clk = clock.New()
	}

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(5*time.Second, 25*time.Second, 2*time.Second)
	se.SetIncludeLoopbackCandidate(cfg.IncludeLoopback)

	return &Transport{
		config:   cfg,
		api:      webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		attacher: attacher,
		clock:    clk,
		conns:    make(map[types.PeerID]*peerConn),
	}
}

// Offer 创建数据通道与 offer
func (t *Transport) Offer(ctx context.Context, peer types.PeerID, onCandidate func(json.RawMessage)) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := t.newConn(peer, types.DirOutbound, onCandidate)
	if err != nil {
		return nil, err
	}

	dc, err := c.pc.CreateDataChannel(t.config.Label, nil)
	if err != nil {
		t.abort(c, err)
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	c.bindChannel(dc)

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		t.abort(c, err)
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		t.abort(c, err)
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(offer)
}

// Answer 应用对端 offer 并返回 answer
func (t *Transport) Answer(ctx context.Context, peer types.PeerID, offer json.RawMessage, onCandidate func(json.RawMessage)) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(offer, &sd); err != nil || sd.Type != webrtc.SDPTypeOffer {
		return nil, fmt.Errorf("%w: offer from %s", ErrInvalidPayload, peer.ShortString())
	}

	c, err := t.newConn(peer, types.DirInbound, onCandidate)
	if err != nil {
		return nil, err
	}
	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != t.config.Label {
			logger.Debug("忽略未知数据通道", "peer", peer.ShortString(), "label", dc.Label())
			_ = dc.Close()
			return
		}
		c.bindChannel(dc)
	})

	if err := c.pc.SetRemoteDescription(sd); err != nil {
		t.abort(c, err)
		return nil, fmt.Errorf("set remote description: %w", err)
	}
	c.remoteReady()

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		t.abort(c, err)
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		t.abort(c, err)
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(answer)
}

// Accept 发起方应用 answer
func (t *Transport) Accept(peer types.PeerID, answer json.RawMessage) error {
	c := t.get(peer)
	if c == nil {
		return ErrUnknownPeer
	}
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(answer, &sd); err != nil || sd.Type != webrtc.SDPTypeAnswer {
		return fmt.Errorf("%w: answer from %s", ErrInvalidPayload, peer.ShortString())
	}
	if err := c.pc.SetRemoteDescription(sd); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	c.remoteReady()
	return nil
}

// AddCandidate 添加远端候选，远端描述尚未设置时缓存
func (t *Transport) AddCandidate(peer types.PeerID, candidate json.RawMessage) error {
	c := t.get(peer)
	if c == nil {
		return ErrUnknownPeer
	}
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("%w: candidate from %s", ErrInvalidPayload, peer.ShortString())
	}
	return c.addCandidate(init)
}

// Abort 放弃尚未打开的连接
func (t *Transport) Abort(peer types.PeerID) {
	c := t.get(peer)
	if c == nil || c.isOpen() {
		return
	}
	t.abort(c, nil)
}

// Pending 返回尚未打开通道的节点数
func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.conns {
		if !c.isOpen() {
			n++
		}
	}
	return n
}

// Close 关闭所有连接
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conns := make([]*peerConn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.conns = make(map[types.PeerID]*peerConn)
	t.mu.Unlock()

	var err error
	for _, c := range conns {
		c.stopTimer()
		err = multierr.Append(err, c.pc.Close())
	}
	logger.Info("WebRTC 传输已关闭", "connections", len(conns))
	return err
}

func (t *Transport) get(peer types.PeerID) *peerConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[peer]
}

// newConn 创建 PeerConnection 并登记，取代同一节点的旧连接
func (t *Transport) newConn(peer types.PeerID, dir types.Direction, onCandidate func(json.RawMessage)) (*peerConn, error) {
	var servers []webrtc.ICEServer
	if len(t.config.ICEServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: t.config.ICEServers}}
	}
	pc, err := t.api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	c := &peerConn{t: t, peer: peer, dir: dir, pc: pc}
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || onCandidate == nil {
			return
		}
		data, err := json.Marshal(cand.ToJSON())
		if err != nil {
			return
		}
		onCandidate(data)
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		logger.Debug("连接状态变化", "peer", peer.ShortString(), "state", s.String())
		if s == webrtc.PeerConnectionStateFailed {
			c.finish(ErrConnectionFailed)
		}
	})

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = pc.Close()
		return nil, ErrTransportClosed
	}
	old := t.conns[peer]
	t.conns[peer] = c
	t.mu.Unlock()

	if old != nil {
		old.finish(ErrReplaced)
	}
	c.timer = t.clock.AfterFunc(t.config.ConnectTimeout, func() {
		if !c.isOpen() {
			logger.Info("通道打开超时", "peer", peer.ShortString())
			t.abort(c, context.DeadlineExceeded)
		}
	})
	return c, nil
}

// abort 移除并关闭尚未交给引擎的连接
func (t *Transport) abort(c *peerConn, reason error) {
	if reason != nil {
		logger.Debug("放弃协商", "peer", c.peer.ShortString(), "err", reason)
	}
	c.finish(reason)
}

func (t *Transport) remove(c *peerConn) {
	t.mu.Lock()
	if t.conns[c.peer] == c {
		delete(t.conns, c.peer)
	}
	t.mu.Unlock()
}

// ============================================================================
//                              peerConn
// ============================================================================

// peerConn 与一个节点的 PeerConnection
type peerConn struct {
	t    *Transport
	peer types.PeerID
	dir  types.Direction
	pc   *webrtc.PeerConnection

	timer *clock.Timer

	mu        sync.Mutex
	remoteSet bool
	remote    []webrtc.ICECandidateInit
	link      *session.Link
	early     [][]byte

	finishOnce sync.Once
}

func (c *peerConn) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

func (c *peerConn) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
	}
}

func (c *peerConn) addCandidate(init webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.remoteSet {
		c.remote = append(c.remote, init)
		return nil
	}
	return c.pc.AddICECandidate(init)
}

// remoteReady 远端描述已设置，应用缓存的候选
func (c *peerConn) remoteReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteSet = true
	for _, init := range c.remote {
		if err := c.pc.AddICECandidate(init); err != nil {
			logger.Debug("添加缓存候选失败", "peer", c.peer.ShortString(), "err", err)
		}
	}
	c.remote = nil
}

func (c *peerConn) bindChannel(dc *webrtc.DataChannel) {
	dc.OnOpen(func() { c.opened(dc) })
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.link == nil {
			c.early = append(c.early, msg.Data)
			return
		}
		c.link.Deliver(msg.Data)
	})
	dc.OnClose(func() { c.finish(nil) })
}

// opened 通道打开后接入引擎，随后投递缓存的消息
func (c *peerConn) opened(dc *webrtc.DataChannel) {
	c.stopTimer()

	ctx, cancel := context.WithTimeout(context.Background(), c.t.config.ConnectTimeout)
	link, err := c.t.attacher.Attach(ctx, c.peer, c.dir, &channel{dc: dc, pc: c.pc})
	cancel()
	if err != nil {
		logger.Warn("接入会话失败", "peer", c.peer.ShortString(), "err", err)
		c.finish(err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.link = &link
	link.Opened()
	for _, data := range c.early {
		link.Deliver(data)
	}
	c.early = nil

	logger.Info("数据通道已打开", "peer", c.peer.ShortString(), "dir", c.dir)
}

// finish 只执行一次：移除登记、上报关闭并释放 PeerConnection
func (c *peerConn) finish(reason error) {
	c.finishOnce.Do(func() {
		c.stopTimer()
		c.t.remove(c)

		c.mu.Lock()
		link := c.link
		c.mu.Unlock()
		if link != nil {
			link.Closed(reason)
		}
		// pion 回调中同步关闭会阻塞其内部 goroutine
		go func() { _ = c.pc.Close() }()
	})
}

// channel 实现 session.Channel
type channel struct {
	dc *webrtc.DataChannel
	pc *webrtc.PeerConnection
}

func (ch *channel) Send(data []byte) error {
	return ch.dc.Send(data)
}

func (ch *channel) Close() error {
	return multierr.Combine(ch.dc.Close(), ch.pc.Close())
}

package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-docmesh/pkg/types"
	"github.com/dep2p/go-docmesh/pkg/wire"
)

// ============================================================================
//                              测试替身
// ============================================================================

type fakeNegotiator struct {
	mu         sync.Mutex
	offers     []types.PeerID
	answers    []types.PeerID
	accepted   map[types.PeerID]json.RawMessage
	candidates map[types.PeerID][]json.RawMessage
	aborted    []types.PeerID
	offerErr   error

	// local 协商过程中同步产生的本地候选
	local json.RawMessage
}

func newFakeNegotiator(local string) *fakeNegotiator {
	return &fakeNegotiator{
		accepted:   make(map[types.PeerID]json.RawMessage),
		candidates: make(map[types.PeerID][]json.RawMessage),
		local:      json.RawMessage(local),
	}
}

func (f *fakeNegotiator) Offer(_ context.Context, peer types.PeerID, onCandidate func(json.RawMessage)) (json.RawMessage, error) {
	f.mu.Lock()
	f.offers = append(f.offers, peer)
	err := f.offerErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	onCandidate(f.local)
	return json.RawMessage(`{"type":"offer"}`), nil
}

func (f *fakeNegotiator) Answer(_ context.Context, peer types.PeerID, _ json.RawMessage, onCandidate func(json.RawMessage)) (json.RawMessage, error) {
	f.mu.Lock()
	f.answers = append(f.answers, peer)
	f.mu.Unlock()
	onCandidate(f.local)
	return json.RawMessage(`{"type":"answer"}`), nil
}

func (f *fakeNegotiator) Accept(peer types.PeerID, answer json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted[peer] = answer
	return nil
}

func (f *fakeNegotiator) AddCandidate(peer types.PeerID, c json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates[peer] = append(f.candidates[peer], c)
	return nil
}

func (f *fakeNegotiator) Abort(peer types.PeerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, peer)
}

func (f *fakeNegotiator) setOfferErr(err error) {
	f.mu.Lock()
	f.offerErr = err
	f.mu.Unlock()
}

func (f *fakeNegotiator) offerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.offers)
}

func (f *fakeNegotiator) snapshot() *fakeNegotiator {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &fakeNegotiator{
		offers:     append([]types.PeerID(nil), f.offers...),
		answers:    append([]types.PeerID(nil), f.answers...),
		aborted:    append([]types.PeerID(nil), f.aborted...),
		accepted:   make(map[types.PeerID]json.RawMessage),
		candidates: make(map[types.PeerID][]json.RawMessage),
	}
	for k, v := range f.accepted {
		out.accepted[k] = v
	}
	for k, v := range f.candidates {
		out.candidates[k] = append([]json.RawMessage(nil), v...)
	}
	return out
}

type fakePeers struct {
	mu  sync.Mutex
	has map[types.PeerID]bool
}

func newFakePeers() *fakePeers {
	return &fakePeers{has: make(map[types.PeerID]bool)}
}

func (p *fakePeers) HasSession(_ context.Context, peer types.PeerID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.has[peer], nil
}

func (p *fakePeers) set(peer types.PeerID, v bool) {
	p.mu.Lock()
	p.has[peer] = v
	p.mu.Unlock()
}

func testClientConfig(url string) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.URL = url
	cfg.ConnectTimeout = 2 * time.Second
	cfg.ReconnectMin = 10 * time.Millisecond
	cfg.ReconnectMax = 50 * time.Millisecond
	cfg.RedialSuppress = 0
	cfg.SweepInterval = time.Second
	return cfg
}

func startClient(t *testing.T, cfg ClientConfig, self types.PeerID, peers PeerSet, neg Negotiator, clk clock.Clock) *Client {
	t.Helper()
	c := NewClient(cfg, self, peers, neg, clk)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Stop() })
	return c
}

// ============================================================================
//                              端到端
// ============================================================================

func TestClient_SmallerIDInitiates(t *testing.T) {
	_, url := startPoint(t, DefaultPointConfig())
	negA := newFakeNegotiator(`{"candidate":"a"}`)
	negB := newFakeNegotiator(`{"candidate":"b"}`)

	a := startClient(t, testClientConfig(url), "peer-a", newFakePeers(), negA, clock.NewMock())
	b := startClient(t, testClientConfig(url), "peer-b", newFakePeers(), negB, clock.NewMock())

	require.Eventually(t, func() bool {
		sa := negA.snapshot()
		sb := negB.snapshot()
		return len(sa.accepted) == 1 &&
			len(sa.candidates["peer-b"]) == 1 &&
			len(sb.candidates["peer-a"]) == 1
	}, waitFor, 5*time.Millisecond)

	sa := negA.snapshot()
	sb := negB.snapshot()
	assert.Equal(t, []types.PeerID{"peer-b"}, sa.offers)
	assert.Empty(t, sa.answers)
	assert.Empty(t, sb.offers, "较大 ID 的一方不发起")
	assert.Equal(t, []types.PeerID{"peer-a"}, sb.answers)
	assert.JSONEq(t, `{"type":"answer"}`, string(sa.accepted["peer-b"]))
	assert.JSONEq(t, `{"candidate":"b"}`, string(sa.candidates["peer-b"][0]))
	assert.JSONEq(t, `{"candidate":"a"}`, string(sb.candidates["peer-a"][0]))

	assert.True(t, a.Connected())
	assert.Equal(t, []types.PeerID{"peer-b"}, a.Roster())
	assert.Equal(t, []types.PeerID{"peer-a"}, b.Roster())
}

// TestClient_DialFromLargerID 按请求拨号不受 ID 规则限制，并清除重拨抑制
func TestClient_DialFromLargerID(t *testing.T) {
	ctx := context.Background()
	_, url := startPoint(t, DefaultPointConfig())

	// A 认为已有会话，不会自动发起
	peersA := newFakePeers()
	peersA.set("peer-b", true)
	negA := newFakeNegotiator(`{"candidate":"a"}`)
	negB := newFakeNegotiator(`{"candidate":"b"}`)

	cfgB := testClientConfig(url)
	cfgB.RedialSuppress = time.Minute
	b := NewClient(cfgB, "peer-b", newFakePeers(), negB, clock.NewMock())
	b.suppressed.Add("peer-a", struct{}{})

	assert.ErrorIs(t, b.Dial(ctx, "peer-a"), ErrNotConnected, "未启动")

	a := startClient(t, testClientConfig(url), "peer-a", peersA, negA, clock.NewMock())
	require.NoError(t, b.Start(ctx))
	t.Cleanup(func() { _ = b.Stop() })

	require.Eventually(t, func() bool {
		return a.Connected() && b.Connected() && len(b.Roster()) == 1
	}, waitFor, 5*time.Millisecond)
	assert.ErrorIs(t, b.Dial(ctx, "peer-b"), ErrSelfDial)

	require.NoError(t, b.Dial(ctx, "peer-a"))
	assert.False(t, b.suppressed.Contains("peer-a"))

	require.Eventually(t, func() bool {
		sb := negB.snapshot()
		sa := negA.snapshot()
		return len(sb.accepted) == 1 &&
			len(sb.candidates["peer-a"]) == 1 &&
			len(sa.candidates["peer-b"]) == 1
	}, waitFor, 5*time.Millisecond)

	sa := negA.snapshot()
	sb := negB.snapshot()
	assert.Equal(t, []types.PeerID{"peer-a"}, sb.offers)
	assert.Empty(t, sa.offers)
	assert.Equal(t, []types.PeerID{"peer-b"}, sa.answers)
	assert.JSONEq(t, `{"type":"answer"}`, string(sb.accepted["peer-a"]))

	t.Run("协商进行中再次请求", func(t *testing.T) {
		require.NoError(t, b.Dial(ctx, "peer-a"))
		assert.Len(t, negB.snapshot().offers, 1)
	})
}

func TestClient_SkipsPeersWithSession(t *testing.T) {
	_, url := startPoint(t, DefaultPointConfig())
	peers := newFakePeers()
	peers.set("peer-b", true)
	negA := newFakeNegotiator(`{}`)

	a := startClient(t, testClientConfig(url), "peer-a", peers, negA, clock.NewMock())
	startClient(t, testClientConfig(url), "peer-b", newFakePeers(), newFakeNegotiator(`{}`), clock.NewMock())

	require.Eventually(t, func() bool {
		return len(a.Roster()) == 1
	}, waitFor, 5*time.Millisecond)
	assert.Never(t, func() bool {
		return negA.offerCount() > 0
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestClient_RedialAfterFailure(t *testing.T) {
	t.Run("失败后由定时检查重拨", func(t *testing.T) {
		_, url := startPoint(t, DefaultPointConfig())
		mock := clock.NewMock()
		negA := newFakeNegotiator(`{}`)
		negA.setOfferErr(errors.New("ice unavailable"))

		cfg := testClientConfig(url)
		startClient(t, cfg, "peer-a", newFakePeers(), negA, mock)
		startClient(t, testClientConfig(url), "peer-b", newFakePeers(), newFakeNegotiator(`{}`), clock.NewMock())

		require.Eventually(t, func() bool {
			return negA.offerCount() == 1 && len(negA.snapshot().aborted) == 1
		}, waitFor, 5*time.Millisecond)
		assert.Equal(t, []types.PeerID{"peer-b"}, negA.snapshot().aborted)

		require.Eventually(t, func() bool {
			mock.Add(cfg.SweepInterval)
			return negA.offerCount() >= 2
		}, waitFor, 10*time.Millisecond)
	})

	t.Run("抑制期内不重拨", func(t *testing.T) {
		_, url := startPoint(t, DefaultPointConfig())
		mock := clock.NewMock()
		negA := newFakeNegotiator(`{}`)
		negA.setOfferErr(errors.New("ice unavailable"))

		cfg := testClientConfig(url)
		cfg.RedialSuppress = time.Minute
		startClient(t, cfg, "peer-a", newFakePeers(), negA, mock)
		startClient(t, testClientConfig(url), "peer-b", newFakePeers(), newFakeNegotiator(`{}`), clock.NewMock())

		require.Eventually(t, func() bool {
			return negA.offerCount() == 1
		}, waitFor, 5*time.Millisecond)
		assert.Never(t, func() bool {
			mock.Add(cfg.SweepInterval)
			return negA.offerCount() > 1
		}, 300*time.Millisecond, 10*time.Millisecond)
	})
}

func TestClient_ReconnectAfterEviction(t *testing.T) {
	p, url := startPoint(t, DefaultPointConfig())
	a := startClient(t, testClientConfig(url), "peer-a", newFakePeers(), newFakeNegotiator(`{}`), clock.New())

	require.Eventually(t, func() bool {
		return a.Connected() && len(p.Roster()) == 1
	}, waitFor, 5*time.Millisecond)
	require.True(t, p.Evict("peer-a"))

	require.Eventually(t, func() bool {
		return a.Joins() >= 2 && a.Connected() && len(p.Roster()) == 1
	}, waitFor, 5*time.Millisecond)

	require.NoError(t, a.Stop())
	assert.False(t, a.Connected())
	require.Eventually(t, func() bool {
		return len(p.Roster()) == 0
	}, waitFor, 5*time.Millisecond)
}

func TestClient_Lifecycle(t *testing.T) {
	c := NewClient(testClientConfig("ws://127.0.0.1:1/ws"), "peer-a", newFakePeers(), newFakeNegotiator(`{}`), clock.NewMock())
	assert.NoError(t, c.Stop(), "未启动时停止")
	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)
	assert.NoError(t, c.Stop())
	assert.NoError(t, c.Stop())
}

// ============================================================================
//                              消息处理
// ============================================================================

func TestSignalHandler(t *testing.T) {
	ctx := context.Background()
	neg := newFakeNegotiator(`{}`)
	cfg := testClientConfig("")
	cfg.RedialSuppress = time.Minute
	c := NewClient(cfg, "peer-a", newFakePeers(), neg, clock.NewMock())
	h := &signalHandler{c: c, ctx: ctx}

	t.Run("未知协商的 answer 与候选被忽略", func(t *testing.T) {
		h.HandleAnswer(wire.Answer{Answer: json.RawMessage(`{}`), Route: wire.Route{From: "peer-x"}})
		h.HandleCandidate(wire.Candidate{Candidate: json.RawMessage(`{}`), Route: wire.Route{From: "peer-x"}})
		s := neg.snapshot()
		assert.Empty(t, s.accepted)
		assert.Empty(t, s.candidates)
	})

	t.Run("离开名单的节点协商被放弃", func(t *testing.T) {
		c.newNegotiation("peer-z", roleInitiator)
		h.HandleUsers(wire.Users{Users: []types.PeerID{"peer-a"}})
		assert.Empty(t, c.pending)
		assert.Contains(t, neg.snapshot().aborted, types.PeerID("peer-z"))
		assert.Empty(t, c.Roster(), "名单不含自己")
	})

	t.Run("answer 发送失败后进入抑制", func(t *testing.T) {
		h.HandleOffer(wire.Offer{Offer: json.RawMessage(`{}`), Route: wire.Route{From: "peer-b"}})
		s := neg.snapshot()
		assert.Equal(t, []types.PeerID{"peer-b"}, s.answers)
		assert.Contains(t, s.aborted, types.PeerID("peer-b"))
		assert.True(t, c.suppressed.Contains("peer-b"))

		h.HandleUsers(wire.Users{Users: []types.PeerID{"peer-a", "peer-b"}})
		assert.Zero(t, neg.offerCount(), "抑制期内不发起")
	})

	t.Run("并发 offer 保留较小 ID 一方", func(t *testing.T) {
		c.newNegotiation("peer-c", roleInitiator)
		h.HandleOffer(wire.Offer{Offer: json.RawMessage(`{}`), Route: wire.Route{From: "peer-c"}})
		assert.Len(t, neg.snapshot().answers, 1, "peer-a 较小，不应答 peer-c")
		assert.Equal(t, roleInitiator, c.pending["peer-c"].role)
		delete(c.pending, "peer-c")
	})

	t.Run("来自自己的 offer 被忽略", func(t *testing.T) {
		h.HandleOffer(wire.Offer{Offer: json.RawMessage(`{}`), Route: wire.Route{From: "peer-a"}})
		assert.Len(t, neg.snapshot().answers, 1)
	})
}

func TestNegotiation_BuffersCandidates(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	n := &negotiation{
		peer: "peer-b",
		send: func(sig wire.Signal) error {
			mu.Lock()
			defer mu.Unlock()
			sent = append(sent, string(sig.(wire.Candidate).Candidate))
			return nil
		},
	}

	n.candidate(json.RawMessage(`1`))
	n.candidate(json.RawMessage(`2`))
	assert.Empty(t, sent, "offer 发出前缓存")

	n.markReady()
	assert.Equal(t, []string{"1", "2"}, sent)

	n.candidate(json.RawMessage(`3`))
	assert.Equal(t, []string{"1", "2", "3"}, sent)
}

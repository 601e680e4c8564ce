package replication

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-docmesh/internal/core/session"
	"github.com/dep2p/go-docmesh/pkg/types"
	"github.com/dep2p/go-docmesh/pkg/wire"
)

// ============================================================================
//                              生命周期
// ============================================================================

func TestEngine_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("空节点 ID", func(t *testing.T) {
		_, err := New(DefaultConfig(""), newPort(t), nil, nil)
		assert.ErrorIs(t, err, types.ErrEmptyPeerID)
	})

	t.Run("未启动", func(t *testing.T) {
		e, err := New(DefaultConfig("self"), newPort(t), nil, nil)
		require.NoError(t, err)
		_, err = e.Documents(ctx)
		assert.ErrorIs(t, err, ErrNotStarted)
		require.NoError(t, e.Stop())
	})

	t.Run("停止后", func(t *testing.T) {
		e, err := New(DefaultConfig("self"), newPort(t), clock.NewMock(), nil)
		require.NoError(t, err)
		require.NoError(t, e.Start(ctx))
		require.NoError(t, e.Start(ctx), "重复启动无副作用")
		require.NoError(t, e.Stop())
		require.NoError(t, e.Stop(), "重复停止无副作用")

		_, err = e.Documents(ctx)
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, e.Start(ctx), ErrClosed)
	})

	t.Run("新节点播种默认文档", func(t *testing.T) {
		e := startEngine(t, "self", newPort(t), clock.NewMock())
		all := docs(t, e)
		require.Len(t, all, 1)
		assert.Equal(t, types.DefaultDocumentID, all[0].ID)
		assert.Equal(t, "file1", all[0].Name)
		assert.Equal(t, uint64(0), all[0].Version)
	})
}

func TestEngine_PersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	p := newPort(t)

	first, err := New(DefaultConfig("self"), p, clock.NewMock(), nil)
	require.NoError(t, err)
	require.NoError(t, first.Start(ctx))

	doc, err := first.CreateDocument(ctx, "notes")
	require.NoError(t, err)
	_, err = first.UpdateContent(ctx, doc.ID, "hello")
	require.NoError(t, err)
	want := snapshotOf(t, first)
	require.NoError(t, first.Stop())

	second := startEngine(t, "self", p, clock.NewMock())
	assert.Equal(t, want, snapshotOf(t, second))
}

// ============================================================================
//                              content 规则
// ============================================================================

// TestEngine_MonotonicApply 版本严格大于本地时才应用
func TestEngine_MonotonicApply(t *testing.T) {
	p := newPort(t)
	var seed []types.Document
	for v := 0; v <= 6; v++ {
		seed = append(seed, types.Document{
			ID:      types.DocumentID(fmt.Sprintf("d%d", v)),
			Name:    "doc",
			Content: "base",
			Version: 3,
		})
	}
	seedSnapshot(t, p, types.Snapshot{Documents: seed, LastUpdate: 1})

	e := startEngine(t, "self", p, clock.NewMock())
	link, _ := openPeer(t, e, "peer-a")

	for v := uint64(0); v <= 6; v++ {
		deliver(t, link, wire.Content{
			DocumentID: types.DocumentID(fmt.Sprintf("d%d", v)),
			Content:    fmt.Sprintf("v%d", v),
			Version:    v,
		})
	}

	for v := uint64(0); v <= 6; v++ {
		d := mustDoc(t, e, types.DocumentID(fmt.Sprintf("d%d", v)))
		if v > 3 {
			assert.Equal(t, fmt.Sprintf("v%d", v), d.Content, "version %d", v)
			assert.Equal(t, v, d.Version)
		} else {
			assert.Equal(t, "base", d.Content, "version %d", v)
			assert.Equal(t, uint64(3), d.Version)
		}
		assert.Equal(t, "doc", d.Name, "名称不随内容更新改变")
	}
}

// TestEngine_ContentScenario 新版本被采纳，随后的过期重发被忽略
func TestEngine_ContentScenario(t *testing.T) {
	p := newPort(t)
	seedSnapshot(t, p, types.Snapshot{
		Documents:  []types.Document{{ID: "1", Name: "file1", Content: "x", Version: 3}},
		LastUpdate: 1,
	})
	b := startEngine(t, "node-b", p, clock.NewMock())
	link, _ := openPeer(t, b, "node-a")

	deliver(t, link, wire.Content{DocumentID: "1", Content: "y", Version: 5})
	d := mustDoc(t, b, "1")
	assert.Equal(t, "y", d.Content)
	assert.Equal(t, uint64(5), d.Version)

	deliver(t, link, wire.Content{DocumentID: "1", Content: "old", Version: 4})
	d = mustDoc(t, b, "1")
	assert.Equal(t, "y", d.Content)
	assert.Equal(t, uint64(5), d.Version)
}

func TestEngine_ContentForMissingDocument(t *testing.T) {
	e := startEngine(t, "self", newPort(t), clock.NewMock())
	link, _ := openPeer(t, e, "peer-a")

	deliver(t, link, wire.Content{DocumentID: "new", Content: "remote", Version: 1})

	_, err := e.Document(context.Background(), "new")
	assert.ErrorIs(t, err, ErrDocumentNotFound, "content 不创建本地没有的文档")
}

// TestEngine_LateContentAfterDelete 删除之后迟到的更新不会让文档复活
func TestEngine_LateContentAfterDelete(t *testing.T) {
	p := newPort(t)
	seedSnapshot(t, p, types.Snapshot{
		Documents: []types.Document{
			{ID: "1", Name: "file1", Content: "keep", Version: 1},
			{ID: "x", Name: "file2", Content: "old", Version: 3},
		},
		LastUpdate: 1,
	})
	e := startEngine(t, "self", p, clock.NewMock())
	link, _ := openPeer(t, e, "peer-a")

	deliver(t, link, wire.Delete{DocumentID: "x"})
	deliver(t, link, wire.Content{DocumentID: "x", Content: "late", Version: 4})

	_, err := e.Document(context.Background(), "x")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.Equal(t, "keep", mustDoc(t, e, "1").Content)
}

func TestEngine_ContentAdvancesLastUpdate(t *testing.T) {
	e := startEngine(t, "self", newPort(t), clock.NewMock())
	link, _ := openPeer(t, e, "peer-a")
	before := snapshotOf(t, e).LastUpdate

	deliver(t, link, wire.Content{DocumentID: types.DefaultDocumentID, Content: "a", Version: 1})
	assert.Greater(t, snapshotOf(t, e).LastUpdate, before)
}

// ============================================================================
//                              init 规则
// ============================================================================

// TestEngine_InitCatchUp 只有更新的快照会被整体采纳
func TestEngine_InitCatchUp(t *testing.T) {
	local := types.Snapshot{
		Documents:  []types.Document{{ID: "1", Name: "file1", Content: "local", Version: 2}},
		LastUpdate: 5,
	}
	incoming := []types.Document{
		{ID: "7", Name: "remote", Content: "r", Version: 9},
		{ID: "8", Name: "other", Content: "o", Version: 1},
	}

	t.Run("更新的快照替换本地集合", func(t *testing.T) {
		p := newPort(t)
		seedSnapshot(t, p, local)
		e := startEngine(t, "self", p, clock.NewMock())
		link, _ := openPeer(t, e, "peer-a")

		deliver(t, link, wire.Init{Documents: incoming, LastUpdate: 10})

		snap := snapshotOf(t, e)
		assert.Equal(t, int64(10), snap.LastUpdate)
		assert.Equal(t, incoming, snap.Documents)

		active, err := e.Active(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.DocumentID("7"), active, "活动文档不能悬空")
	})

	t.Run("较旧的快照被忽略", func(t *testing.T) {
		p := newPort(t)
		seedSnapshot(t, p, local)
		e := startEngine(t, "self", p, clock.NewMock())
		link, _ := openPeer(t, e, "peer-a")

		deliver(t, link, wire.Init{Documents: incoming, LastUpdate: 3})
		assert.Equal(t, local, snapshotOf(t, e))
	})

	t.Run("相等的快照被忽略", func(t *testing.T) {
		p := newPort(t)
		seedSnapshot(t, p, local)
		e := startEngine(t, "self", p, clock.NewMock())
		link, _ := openPeer(t, e, "peer-a")

		deliver(t, link, wire.Init{Documents: incoming, LastUpdate: 5})
		assert.Equal(t, local, snapshotOf(t, e))
	})

	t.Run("空集合也可以被采纳", func(t *testing.T) {
		p := newPort(t)
		seedSnapshot(t, p, local)
		e := startEngine(t, "self", p, clock.NewMock())
		link, _ := openPeer(t, e, "peer-a")

		deliver(t, link, wire.Init{Documents: []types.Document{}, LastUpdate: 10})
		assert.Empty(t, docs(t, e))
		active, err := e.Active(context.Background())
		require.NoError(t, err)
		assert.True(t, active.IsEmpty())
	})
}

// ============================================================================
//                              delete 规则
// ============================================================================

// TestEngine_DeleteUnconditional 删除不检查版本，缺失文档无操作
func TestEngine_DeleteUnconditional(t *testing.T) {
	p := newPort(t)
	seedSnapshot(t, p, types.Snapshot{
		Documents: []types.Document{
			{ID: "1", Name: "file1", Version: 1},
			{ID: "42", Name: "file2", Content: "busy", Version: 100},
		},
		LastUpdate: 1,
	})
	e := startEngine(t, "self", p, clock.NewMock())
	link, _ := openPeer(t, e, "peer-a")

	t.Run("高版本文档也被删除", func(t *testing.T) {
		require.NoError(t, e.SetActive(context.Background(), "42"))
		deliver(t, link, wire.Delete{DocumentID: "42"})

		_, err := e.Document(context.Background(), "42")
		assert.ErrorIs(t, err, ErrDocumentNotFound)

		active, err := e.Active(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.DocumentID("1"), active, "活动文档回退到第一个")
	})

	t.Run("缺失文档无操作", func(t *testing.T) {
		before := snapshotOf(t, e)
		deliver(t, link, wire.Delete{DocumentID: "42"})
		assert.Equal(t, before, snapshotOf(t, e))

		peers, err := e.Peers(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []types.PeerID{"peer-a"}, peers, "会话保持打开")
	})

	t.Run("远端可以删除最后一个文档", func(t *testing.T) {
		deliver(t, link, wire.Delete{DocumentID: "1"})
		assert.Empty(t, docs(t, e))
	})
}

func TestEngine_InvalidMessageIgnored(t *testing.T) {
	e := startEngine(t, "self", newPort(t), clock.NewMock())
	link, _ := openPeer(t, e, "peer-a")
	before := snapshotOf(t, e)

	link.Deliver([]byte(`{"type":"rename","fileId":"1"}`))
	link.Deliver([]byte(`not json`))
	link.Deliver([]byte(`{"type":"content","content":"x","version":9}`))

	assert.Equal(t, before, snapshotOf(t, e))
	peers, err := e.Peers(context.Background())
	require.NoError(t, err)
	assert.Len(t, peers, 1)
}

// ============================================================================
//                              本地修改与广播
// ============================================================================

func TestEngine_LocalMutationsBroadcast(t *testing.T) {
	ctx := context.Background()
	e := startEngine(t, "self", newPort(t), clock.NewMock())
	_, chA := openPeer(t, e, "peer-a")
	_, chB := openPeer(t, e, "peer-b")

	t.Run("会话打开时发送快照", func(t *testing.T) {
		for _, ch := range []*captureChannel{chA, chB} {
			msgs := ch.messages()
			require.Len(t, msgs, 1)
			im, ok := msgs[0].(wire.Init)
			require.True(t, ok)
			assert.Equal(t, snapshotOf(t, e).Documents, im.Documents)
		}
	})

	t.Run("修改内容广播 content", func(t *testing.T) {
		doc, err := e.UpdateContent(ctx, types.DefaultDocumentID, "hello")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), doc.Version)

		for _, ch := range []*captureChannel{chA, chB} {
			require.Eventually(t, func() bool { return len(ch.messages()) == 2 }, waitFor, 5*time.Millisecond)
			assert.Equal(t, wire.Content{DocumentID: types.DefaultDocumentID, Content: "hello", Version: 1}, ch.messages()[1])
		}
	})

	t.Run("创建文档广播 init", func(t *testing.T) {
		doc, err := e.CreateDocument(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, "file2", doc.Name)

		require.Eventually(t, func() bool { return len(chA.messages()) == 3 }, waitFor, 5*time.Millisecond)
		im, ok := chA.messages()[2].(wire.Init)
		require.True(t, ok)
		assert.Len(t, im.Documents, 2)
	})

	t.Run("删除文档广播 delete", func(t *testing.T) {
		doc, err := e.CreateDocument(ctx, "tmp")
		require.NoError(t, err)
		require.NoError(t, e.DeleteDocument(ctx, doc.ID))

		require.Eventually(t, func() bool { return len(chB.messages()) == 5 }, waitFor, 5*time.Millisecond)
		assert.Equal(t, wire.Delete{DocumentID: doc.ID}, chB.messages()[4])
	})
}

func TestEngine_LocalErrors(t *testing.T) {
	ctx := context.Background()
	e := startEngine(t, "self", newPort(t), clock.NewMock())

	_, err := e.UpdateContent(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	assert.ErrorIs(t, e.DeleteDocument(ctx, "missing"), ErrDocumentNotFound)
	assert.ErrorIs(t, e.DeleteDocument(ctx, types.DefaultDocumentID), ErrLastDocument)
	assert.ErrorIs(t, e.SetActive(ctx, "missing"), ErrDocumentNotFound)
	assert.ErrorIs(t, e.Disconnect(ctx, "nobody"), ErrPeerNotFound)
}

func TestEngine_PersistFailureDoesNotBlockMutation(t *testing.T) {
	ctx := context.Background()
	fp := &flakyPort{Port: newPort(t)}
	e := startEngine(t, "self", fp, clock.NewMock(), offlineStart)
	fp.set(true, false)

	doc, err := e.UpdateContent(ctx, types.DefaultDocumentID, "kept")
	require.NoError(t, err)
	assert.Equal(t, "kept", doc.Content)

	pending, err := e.PendingEdits(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "队列持久化失败时内存中仍保留")
}

// ============================================================================
//                              离线队列与回放
// ============================================================================

func TestEngine_OfflineEditsReplayOnReconnect(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	e := startEngine(t, "self", newPort(t), clk, offlineStart)
	_, ch := openPeer(t, e, "peer-a")

	clk.Add(time.Second)
	_, err := e.UpdateContent(ctx, types.DefaultDocumentID, "one")
	require.NoError(t, err)
	clk.Add(time.Second)
	_, err = e.UpdateContent(ctx, types.DefaultDocumentID, "two")
	require.NoError(t, err)

	pending, err := e.PendingEdits(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, int64(1000), pending[0].Timestamp)
	assert.Equal(t, uint64(2), pending[1].Version)

	require.NoError(t, e.SetConnectivity(ctx, types.Online))
	require.NoError(t, e.SetConnectivity(ctx, types.Online), "重复上线无副作用")

	pending, err = e.PendingEdits(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// 以一条 content 作为栅栏：它之前只应该有两条 init
	_, err = e.UpdateContent(ctx, types.DefaultDocumentID, "three")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(ch.messages()) == 3 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []wire.Kind{wire.KindInit, wire.KindInit, wire.KindContent}, ch.kinds())

	im := ch.messages()[1].(wire.Init)
	require.Len(t, im.Documents, 1)
	assert.Equal(t, "two", im.Documents[0].Content)
}

// TestEngine_ReplayAlreadyApplied 回放条目已被其他途径追上时不产生修改
func TestEngine_ReplayAlreadyApplied(t *testing.T) {
	ctx := context.Background()
	p := newPort(t)
	seedSnapshot(t, p, types.Snapshot{
		Documents:  []types.Document{{ID: "1", Name: "file1", Content: "z", Version: 4}},
		LastUpdate: 7,
	})
	seedQueue(t, p, types.PendingEdit{DocumentID: "1", Content: "z", Version: 4, Timestamp: 1000})

	e := startEngine(t, "self", p, clock.NewMock(), offlineStart)
	_, ch := openPeer(t, e, "peer-a")

	require.NoError(t, e.SetConnectivity(ctx, types.Online))

	snap := snapshotOf(t, e)
	assert.Equal(t, int64(7), snap.LastUpdate, "无修改")
	assert.Equal(t, types.Document{ID: "1", Name: "file1", Content: "z", Version: 4}, snap.Documents[0])

	pending, err := e.PendingEdits(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = e.UpdateContent(ctx, "1", "fence")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(ch.messages()) == 3 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []wire.Kind{wire.KindInit, wire.KindInit, wire.KindContent}, ch.kinds(),
		"不重发过期的 content")
}

// TestEngine_IdempotentReplay 同一队列回放两次与回放一次结果相同
func TestEngine_IdempotentReplay(t *testing.T) {
	ctx := context.Background()
	seed := types.Snapshot{
		Documents: []types.Document{
			{ID: "1", Name: "file1", Content: "a", Version: 1},
			{ID: "2", Name: "file2", Content: "b", Version: 1},
		},
		LastUpdate: 1,
	}
	edits := []types.PendingEdit{
		{DocumentID: "1", Content: "a2", Version: 2, Timestamp: 1000},
		{DocumentID: "2", Content: "b2", Version: 2, Timestamp: 1500},
		{DocumentID: "1", Content: "a3", Version: 3, Timestamp: 2000},
	}

	// 回放一次
	p1 := newPort(t)
	seedSnapshot(t, p1, seed)
	seedQueue(t, p1, edits...)
	once := startEngine(t, "once", p1, clock.NewMock(), offlineStart)
	require.NoError(t, once.SetConnectivity(ctx, types.Online))

	// 第一次回放后清空失败，队列保留，下一次上线再回放一次
	fp := &flakyPort{Port: newPort(t)}
	seedSnapshot(t, fp, seed)
	seedQueue(t, fp, edits...)
	twice := startEngine(t, "twice", fp, clock.NewMock(), offlineStart)

	fp.set(false, true)
	require.NoError(t, twice.SetConnectivity(ctx, types.Online))
	pending, err := twice.PendingEdits(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3, "清空失败时队列保持不变")

	fp.set(false, false)
	require.NoError(t, twice.SetConnectivity(ctx, types.Offline))
	require.NoError(t, twice.SetConnectivity(ctx, types.Online))
	pending, err = twice.PendingEdits(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.Equal(t, docs(t, once), docs(t, twice))
	d := mustDoc(t, twice, "1")
	assert.Equal(t, "a3", d.Content)
	assert.Equal(t, uint64(3), d.Version)
}

func TestEngine_ReplaySkipsDeletedDocuments(t *testing.T) {
	ctx := context.Background()
	p := newPort(t)
	seedSnapshot(t, p, types.Snapshot{
		Documents: []types.Document{
			{ID: "1", Name: "file1", Version: 1},
			{ID: "2", Name: "file2", Version: 1},
		},
		LastUpdate: 1,
	})
	e := startEngine(t, "self", p, clock.NewMock(), offlineStart)

	_, err := e.UpdateContent(ctx, "2", "lost")
	require.NoError(t, err)
	require.NoError(t, e.DeleteDocument(ctx, "2"))
	require.NoError(t, e.SetConnectivity(ctx, types.Online))

	all := docs(t, e)
	require.Len(t, all, 1)
	assert.Equal(t, types.DocumentID("1"), all[0].ID)
}

func TestEngine_OfflineCreateSentOnReconnect(t *testing.T) {
	ctx := context.Background()
	e := startEngine(t, "self", newPort(t), clock.NewMock(), offlineStart)
	_, ch := openPeer(t, e, "peer-a")

	_, err := e.CreateDocument(ctx, "draft")
	require.NoError(t, err)
	require.NoError(t, e.SetConnectivity(ctx, types.Online))

	require.Eventually(t, func() bool { return len(ch.messages()) == 2 }, waitFor, 5*time.Millisecond)
	im := ch.messages()[1].(wire.Init)
	assert.Len(t, im.Documents, 2)
}

// ============================================================================
//                              会话
// ============================================================================

func TestEngine_Attach(t *testing.T) {
	ctx := context.Background()
	e := startEngine(t, "self", newPort(t), clock.NewMock())

	t.Run("不能连接自己", func(t *testing.T) {
		_, err := e.Attach(ctx, "self", types.DirOutbound, &captureChannel{})
		assert.ErrorIs(t, err, ErrSelfConnect)
	})

	t.Run("出站重复返回错误", func(t *testing.T) {
		_, err := e.Attach(ctx, "peer-a", types.DirOutbound, &captureChannel{})
		require.NoError(t, err)
		_, err = e.Attach(ctx, "peer-a", types.DirOutbound, &captureChannel{})
		assert.ErrorIs(t, err, session.ErrSessionExists)
	})

	t.Run("入站替换旧会话", func(t *testing.T) {
		oldLink, oldCh := openPeer(t, e, "peer-b")
		newLink, _ := openPeer(t, e, "peer-b")
		assert.True(t, oldCh.isClosed())
		assert.NotEqual(t, oldLink.ID, newLink.ID)

		deliver(t, oldLink, wire.Content{DocumentID: types.DefaultDocumentID, Content: "stale", Version: 9})
		oldLink.Closed(errors.New("late close"))

		assert.Equal(t, uint64(0), mustDoc(t, e, types.DefaultDocumentID).Version, "旧会话的消息被丢弃")
		peers, err := e.Peers(ctx)
		require.NoError(t, err)
		assert.Equal(t, []types.PeerID{"peer-b"}, peers, "旧会话的关闭事件不影响新会话")
	})

	t.Run("主动断开", func(t *testing.T) {
		_, ch := openPeer(t, e, "peer-c")
		require.NoError(t, e.Disconnect(ctx, "peer-c"))
		assert.True(t, ch.isClosed())
	})
}

func TestEngine_WriteFailurePrunesSession(t *testing.T) {
	ctx := context.Background()
	e := startEngine(t, "self", newPort(t), clock.NewMock())

	ch := &captureChannel{sendErr: errors.New("broken pipe")}
	link, err := e.Attach(ctx, "peer-a", types.DirInbound, ch)
	require.NoError(t, err)
	link.Opened()

	require.Eventually(t, func() bool {
		peers, err := e.Peers(ctx)
		return err == nil && len(peers) == 0 && ch.isClosed()
	}, waitFor, 5*time.Millisecond)

	_, err = e.UpdateContent(ctx, types.DefaultDocumentID, "still works")
	require.NoError(t, err)
}

func TestEngine_ChannelClosePrunesSession(t *testing.T) {
	ctx := context.Background()
	e := startEngine(t, "self", newPort(t), clock.NewMock())
	events, cancel := e.Subscribe(8)
	defer cancel()

	link, _ := openPeer(t, e, "peer-a")
	link.Closed(nil)

	require.Eventually(t, func() bool {
		peers, err := e.Peers(ctx)
		return err == nil && len(peers) == 0
	}, waitFor, 5*time.Millisecond)

	var got []EventType
	timeout := time.After(waitFor)
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev.Type)
		case <-timeout:
			t.Fatalf("事件不足: %v", got)
		}
	}
	assert.Equal(t, []EventType{EventPeerOpened, EventPeerClosed}, got)
}

// ============================================================================
//                              心跳
// ============================================================================

func TestEngine_Heartbeat(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	e := startEngine(t, "self", newPort(t), clk)
	link, ch := openPeer(t, e, "peer-a")

	res, err := e.Heartbeat(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pinged)
	assert.Empty(t, res.Closed)

	require.Eventually(t, func() bool { return len(ch.messages()) == 2 }, waitFor, 5*time.Millisecond)
	ping, ok := ch.messages()[1].(wire.Ping)
	require.True(t, ok)

	t.Run("pong 记录往返时间", func(t *testing.T) {
		clk.Add(40 * time.Millisecond)
		deliver(t, link, wire.Pong{Nonce: ping.Nonce})

		infos, err := e.Sessions(ctx)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, 40*time.Millisecond, infos[0].RTT)
	})

	t.Run("对端 ping 得到 pong", func(t *testing.T) {
		deliver(t, link, wire.Ping{Nonce: 77})
		require.Eventually(t, func() bool { return len(ch.messages()) == 3 }, waitFor, 5*time.Millisecond)
		assert.Equal(t, wire.Pong{Nonce: 77}, ch.messages()[2])
	})

	t.Run("空闲超时关闭会话", func(t *testing.T) {
		clk.Add(31 * time.Second)
		res, err := e.Heartbeat(ctx, 30*time.Second)
		require.NoError(t, err)
		assert.Equal(t, []types.PeerID{"peer-a"}, res.Closed)
		assert.Equal(t, 0, res.Pinged)
		assert.True(t, ch.isClosed())

		peers, err := e.Peers(ctx)
		require.NoError(t, err)
		assert.Empty(t, peers)
	})
}

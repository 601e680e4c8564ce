package replication

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-docmesh/internal/core/docstore"
	"github.com/dep2p/go-docmesh/internal/core/offline"
	"github.com/dep2p/go-docmesh/internal/core/session"
	"github.com/dep2p/go-docmesh/internal/core/storage"
	"github.com/dep2p/go-docmesh/internal/core/storage/port"
	"github.com/dep2p/go-docmesh/pkg/types"
	"github.com/dep2p/go-docmesh/pkg/wire"
)

const waitFor = 2 * time.Second

// captureChannel 解码并记录引擎发出的消息
type captureChannel struct {
	mu      sync.Mutex
	msgs    []wire.Message
	closed  bool
	sendErr error
}

func (c *captureChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	msg, err := wire.Decode(data)
	if err != nil {
		return err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *captureChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *captureChannel) messages() []wire.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wire.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func (c *captureChannel) kinds() []wire.Kind {
	var out []wire.Kind
	for _, m := range c.messages() {
		out = append(out, m.Kind())
	}
	return out
}

func (c *captureChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// flakyPort 可以让指定操作失败的端口包装
type flakyPort struct {
	port.Port
	mu        sync.Mutex
	failPut   bool
	failClear bool
}

var errInjected = errors.New("injected failure")

func (p *flakyPort) Put(ns port.Namespace, key string, value []byte) error {
	p.mu.Lock()
	fail := p.failPut
	p.mu.Unlock()
	if fail {
		return errInjected
	}
	return p.Port.Put(ns, key, value)
}

func (p *flakyPort) Clear(ns port.Namespace) error {
	p.mu.Lock()
	fail := p.failClear
	p.mu.Unlock()
	if fail {
		return errInjected
	}
	return p.Port.Clear(ns)
}

func (p *flakyPort) set(put, clr bool) {
	p.mu.Lock()
	p.failPut, p.failClear = put, clr
	p.mu.Unlock()
}

// newPort 创建测试结束时关闭的内存端口
func newPort(t *testing.T) port.Port {
	t.Helper()
	p, err := storage.NewMemoryPort()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// seedSnapshot 预先写入快照
func seedSnapshot(t *testing.T, p port.Port, snap types.Snapshot) {
	t.Helper()
	require.NoError(t, docstore.SaveSnapshot(p, snap))
}

// seedQueue 预先写入离线编辑
func seedQueue(t *testing.T, p port.Port, edits ...types.PendingEdit) {
	t.Helper()
	q := offline.New(p, clock.NewMock())
	require.NoError(t, q.Load())
	for _, e := range edits {
		require.NoError(t, q.Append(e))
	}
}

type engineOption func(*Config)

func offlineStart(c *Config) { c.StartOnline = false }

// startEngine 创建并启动引擎，测试结束时停止
func startEngine(t *testing.T, self types.PeerID, p port.Port, clk clock.Clock, opts ...engineOption) *Engine {
	t.Helper()
	cfg := DefaultConfig(self)
	for _, o := range opts {
		o(&cfg)
	}
	e, err := New(cfg, p, clk, nil)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })
	return e
}

// openPeer 接入一个入站会话并等待引擎发出 init
func openPeer(t *testing.T, e *Engine, peer types.PeerID) (session.Link, *captureChannel) {
	t.Helper()
	ch := &captureChannel{}
	link, err := e.Attach(context.Background(), peer, types.DirInbound, ch)
	require.NoError(t, err)
	link.Opened()
	require.Eventually(t, func() bool { return len(ch.messages()) >= 1 }, waitFor, 5*time.Millisecond)
	return link, ch
}

// deliver 以对端身份发送消息
func deliver(t *testing.T, link session.Link, msg wire.Message) {
	t.Helper()
	data, err := wire.Encode(msg)
	require.NoError(t, err)
	link.Deliver(data)
}

func mustDoc(t *testing.T, e *Engine, id types.DocumentID) types.Document {
	t.Helper()
	d, err := e.Document(context.Background(), id)
	require.NoError(t, err)
	return d
}

func docs(t *testing.T, e *Engine) []types.Document {
	t.Helper()
	out, err := e.Documents(context.Background())
	require.NoError(t, err)
	return out
}

func snapshotOf(t *testing.T, e *Engine) types.Snapshot {
	t.Helper()
	s, err := e.Snapshot(context.Background())
	require.NoError(t, err)
	return s
}

package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-docmesh/config"
	"github.com/dep2p/go-docmesh/internal/core/storage/port"
)

// ============================================================================
//                              测试替身
// ============================================================================

// brokenPort 所有写操作失败，模拟不可用的主存储
type brokenPort struct {
	port.Port
	failPuts bool
}

var errDiskFull = errors.New("disk full")

func (b *brokenPort) Name() string { return "broken" }

func (b *brokenPort) Put(ns port.Namespace, key string, value []byte) error {
	if b.failPuts {
		return errDiskFull
	}
	return b.Port.Put(ns, key, value)
}

func memPort(t *testing.T) port.Port {
	t.Helper()
	p, err := NewMemoryPort()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// ============================================================================
//                              EnginePort
// ============================================================================

func TestEnginePort(t *testing.T) {
	p := memPort(t)

	t.Run("快照单键", func(t *testing.T) {
		_, err := p.Get(port.NamespaceDocuments, port.KeyCurrent)
		assert.True(t, port.IsNotFound(err))

		require.NoError(t, p.Put(port.NamespaceDocuments, port.KeyCurrent, []byte("a")))
		require.NoError(t, p.Put(port.NamespaceDocuments, port.KeyCurrent, []byte("b")))

		got, err := p.Get(port.NamespaceDocuments, port.KeyCurrent)
		require.NoError(t, err)
		assert.Equal(t, "b", string(got))
	})

	t.Run("队列按键序", func(t *testing.T) {
		for _, k := range []string{"0002", "0001", "0003"} {
			require.NoError(t, p.Put(port.NamespaceChanges, k, []byte(k)))
		}
		entries, err := p.GetAll(port.NamespaceChanges)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, []string{"0001", "0002", "0003"},
			[]string{entries[0].Key, entries[1].Key, entries[2].Key})
	})

	t.Run("Clear 只影响一个命名空间", func(t *testing.T) {
		require.NoError(t, p.Put(port.NamespaceResponses, "lookup", []byte("cached")))
		require.NoError(t, p.Clear(port.NamespaceChanges))
		entries, err := p.GetAll(port.NamespaceChanges)
		require.NoError(t, err)
		assert.Empty(t, entries)

		_, err = p.Get(port.NamespaceDocuments, port.KeyCurrent)
		assert.NoError(t, err)
		got, err := p.Get(port.NamespaceResponses, "lookup")
		require.NoError(t, err)
		assert.Equal(t, "cached", string(got))
	})

	t.Run("参数校验", func(t *testing.T) {
		assert.ErrorIs(t, p.Put("", "k", nil), port.ErrEmptyNamespace)
		_, err := p.GetAll("")
		assert.ErrorIs(t, err, port.ErrEmptyNamespace)
	})
}

// ============================================================================
//                              Fallback
// ============================================================================

func TestFallback_PutDivertsOnPrimaryFailure(t *testing.T) {
	primary := &brokenPort{Port: memPort(t), failPuts: true}
	secondary := memPort(t)

	var failures []string
	f := NewFallback(primary, secondary, func(backend string, _ error) {
		failures = append(failures, backend)
	})

	require.NoError(t, f.Put(port.NamespaceDocuments, port.KeyCurrent, []byte("v1")))
	assert.Equal(t, []string{"broken"}, failures)

	// 主存储中没有，回退存储中有
	_, err := primary.Get(port.NamespaceDocuments, port.KeyCurrent)
	assert.True(t, port.IsNotFound(err))

	got, err := f.Get(port.NamespaceDocuments, port.KeyCurrent)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))
}

func TestFallback_RecoveryClearsDivertedCopy(t *testing.T) {
	primary := &brokenPort{Port: memPort(t), failPuts: true}
	secondary := memPort(t)
	f := NewFallback(primary, secondary, nil)

	require.NoError(t, f.Put(port.NamespaceDocuments, port.KeyCurrent, []byte("diverted")))

	primary.failPuts = false
	require.NoError(t, f.Put(port.NamespaceDocuments, port.KeyCurrent, []byte("fresh")))

	_, err := secondary.Get(port.NamespaceDocuments, port.KeyCurrent)
	assert.True(t, port.IsNotFound(err), "回退存储中的旧副本应被删除")

	got, err := f.Get(port.NamespaceDocuments, port.KeyCurrent)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(got))
}

func TestFallback_GetAllMerges(t *testing.T) {
	primary := &brokenPort{Port: memPort(t)}
	secondary := memPort(t)
	f := NewFallback(primary, secondary, nil)

	require.NoError(t, f.Put(port.NamespaceChanges, "0001", []byte("a")))
	primary.failPuts = true
	require.NoError(t, f.Put(port.NamespaceChanges, "0002", []byte("b")))
	primary.failPuts = false
	require.NoError(t, f.Put(port.NamespaceChanges, "0003", []byte("c")))

	entries, err := f.GetAll(port.NamespaceChanges)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "0001", entries[0].Key)
	assert.Equal(t, "b", string(entries[1].Value))
	assert.Equal(t, "0003", entries[2].Key)

	require.NoError(t, f.Clear(port.NamespaceChanges))
	entries, err = f.GetAll(port.NamespaceChanges)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFallback_NoSecondary(t *testing.T) {
	primary := &brokenPort{Port: memPort(t), failPuts: true}
	f := NewFallback(primary, nil, nil)

	err := f.Put(port.NamespaceDocuments, port.KeyCurrent, []byte("x"))
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, "broken", f.Name())
}

// ============================================================================
//                              NewPort / Module
// ============================================================================

func TestNewPort_BadgerWithBolt(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Backend:    config.BackendBadger,
		Fallback:   config.BackendBolt,
		BadgerPath: filepath.Join(dir, "docmesh.db"),
		BoltPath:   filepath.Join(dir, "fallback.bolt"),
	}

	p, err := NewPort(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, p.Start())
	assert.Equal(t, "badger+bolt", p.Name())
	require.NotNil(t, p.Secondary())

	require.NoError(t, p.Put(port.NamespaceDocuments, port.KeyCurrent, []byte("snap")))
	require.NoError(t, p.Close())

	// 重新打开后数据仍在
	p2, err := NewPort(cfg, nil)
	require.NoError(t, err)
	defer p2.Close()

	got, err := p2.Get(port.NamespaceDocuments, port.KeyCurrent)
	require.NoError(t, err)
	assert.Equal(t, "snap", string(got))
}

func TestNewPort_InvalidConfig(t *testing.T) {
	_, err := NewPort(Config{Backend: "indexeddb"}, nil)
	assert.Error(t, err)

	_, err = NewPort(Config{Backend: config.BackendBolt, Fallback: config.BackendBolt}, nil)
	assert.Error(t, err)
}

func TestModule(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Storage.DataDir = t.TempDir()

	var p port.Port
	app := fxtest.New(t,
		fx.Supply(cfg),
		Module(),
		fx.Populate(&p),
	)
	app.RequireStart()

	require.NotNil(t, p)
	require.NoError(t, p.Put(port.NamespaceDocuments, port.KeyCurrent, []byte("x")))

	app.RequireStop()
}

package docstore

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-docmesh/internal/core/storage"
	"github.com/dep2p/go-docmesh/internal/core/storage/port"
	"github.com/dep2p/go-docmesh/pkg/types"
)

func memPort(t *testing.T) port.Port {
	t.Helper()
	p, err := storage.NewMemoryPort()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestSnapshotRoundTrip(t *testing.T) {
	p := memPort(t)

	_, ok, err := LoadSnapshot(p)
	require.NoError(t, err)
	assert.False(t, ok)

	snap := types.Snapshot{
		Documents:  []types.Document{{ID: "1", Name: "file1", Content: "x", Version: 3}},
		LastUpdate: 77,
	}
	require.NoError(t, SaveSnapshot(p, snap))

	got, ok, err := LoadSnapshot(p)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, got)
}

func TestSnapshotEncoding_CompressesLargeSnapshots(t *testing.T) {
	small := types.Snapshot{Documents: []types.Document{{ID: "1", Name: "file1", Content: "x", Version: 1}}, LastUpdate: 1}
	data, err := EncodeSnapshot(small)
	require.NoError(t, err)
	assert.Equal(t, byte('{'), data[0], "小快照保持 JSON")

	large := types.Snapshot{
		Documents:  []types.Document{{ID: "1", Name: "file1", Content: strings.Repeat("docmesh ", 2000), Version: 9}},
		LastUpdate: 42,
	}
	data, err = EncodeSnapshot(large)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, zstdMagic))
	assert.Less(t, len(data), len(large.Documents[0].Content))

	got, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, large, got)

	p := memPort(t)
	require.NoError(t, SaveSnapshot(p, large))
	loaded, ok, err := LoadSnapshot(p)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, large, loaded)

	_, err = DecodeSnapshot(append(append([]byte{}, zstdMagic...), 0x00, 0x01))
	assert.ErrorIs(t, err, port.ErrCorrupted)
}

func TestLoadSnapshot_Corrupted(t *testing.T) {
	p := memPort(t)
	require.NoError(t, p.Put(port.NamespaceDocuments, port.KeyCurrent, []byte("{not json")))

	_, _, err := LoadSnapshot(p)
	assert.ErrorIs(t, err, port.ErrCorrupted)
}

func TestPersister_CoalescesAndFlushesOnStop(t *testing.T) {
	p := memPort(t)
	ps := NewPersister(p, nil)

	// 启动前调度的多个快照只保留最后一个
	for i := int64(1); i <= 5; i++ {
		ps.Schedule(types.Snapshot{LastUpdate: i})
	}
	ps.Start()
	ps.Stop()

	got, ok, err := LoadSnapshot(p)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(5), got.LastUpdate)
	assert.LessOrEqual(t, ps.Writes(), int64(1))
}

func TestPersister_BackgroundWrite(t *testing.T) {
	p := memPort(t)
	ps := NewPersister(p, nil)
	ps.Start()
	defer ps.Stop()

	s := New(nil, ps, nil)
	_, err := s.SetContent(types.DefaultDocumentID, "persist me")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, ok, err := LoadSnapshot(p)
		return err == nil && ok && len(got.Documents) == 1 && got.Documents[0].Content == "persist me"
	}, 2*time.Second, 10*time.Millisecond)
}

// failingPort Put 总是失败
type failingPort struct{ port.Port }

func (failingPort) Put(port.Namespace, string, []byte) error { return errors.New("unavailable") }

func TestPersister_ErrorDoesNotRollback(t *testing.T) {
	errs := make(chan error, 4)
	ps := NewPersister(failingPort{memPort(t)}, func(err error) { errs <- err })
	ps.Start()
	defer ps.Stop()

	s := New(nil, ps, nil)
	_, err := s.SetContent(types.DefaultDocumentID, "kept in memory")
	require.NoError(t, err)

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected persist error")
	}

	d, _ := s.Get(types.DefaultDocumentID)
	assert.Equal(t, "kept in memory", d.Content)
}

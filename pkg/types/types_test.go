package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionState(t *testing.T) {
	tests := []struct {
		s    SessionState
		want string
	}{
		{SessionConnecting, "connecting"},
		{SessionOpen, "open"},
		{SessionClosed, "closed"},
		{SessionState(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.s.String(); got != tt.want {
				t.Errorf("SessionState(%d).String() = %q, want %q", tt.s, got, tt.want)
			}
		})
	}
}

func TestSessionState_CanTransition(t *testing.T) {
	assert.True(t, SessionConnecting.CanTransition(SessionOpen))
	assert.True(t, SessionConnecting.CanTransition(SessionClosed))
	assert.True(t, SessionOpen.CanTransition(SessionClosed))
	assert.False(t, SessionOpen.CanTransition(SessionConnecting))
	assert.False(t, SessionClosed.CanTransition(SessionOpen))
	assert.False(t, SessionClosed.CanTransition(SessionConnecting))
}

func TestPeerID(t *testing.T) {
	t.Run("生成", func(t *testing.T) {
		a, b := NewPeerID(), NewPeerID()
		assert.NotEqual(t, a, b)
		assert.NoError(t, a.Validate())
		assert.Len(t, a.ShortString(), 8)
	})

	t.Run("空 ID", func(t *testing.T) {
		assert.True(t, PeerID("  ").IsEmpty())
		assert.ErrorIs(t, EmptyPeerID.Validate(), ErrEmptyPeerID)
	})

	t.Run("字典序", func(t *testing.T) {
		assert.True(t, PeerID("a").Less("b"))
		assert.False(t, PeerID("b").Less("a"))
		assert.False(t, PeerID("a").Less("a"))
	})
}

func TestSnapshot(t *testing.T) {
	snap := Snapshot{
		Documents: []Document{
			{ID: "1", Name: "file1", Content: "x", Version: 3},
			{ID: "2", Name: "file2"},
		},
		LastUpdate: 7,
	}

	t.Run("Find", func(t *testing.T) {
		d, ok := snap.Find("1")
		require.True(t, ok)
		assert.Equal(t, uint64(3), d.Version)

		_, ok = snap.Find("42")
		assert.False(t, ok)
	})

	t.Run("Clone 独立", func(t *testing.T) {
		c := snap.Clone()
		c.Documents[0].Content = "changed"
		assert.Equal(t, "x", snap.Documents[0].Content)
		assert.Equal(t, snap.LastUpdate, c.LastUpdate)
	})

	t.Run("Validate", func(t *testing.T) {
		assert.NoError(t, snap.Validate())

		dup := Snapshot{Documents: []Document{{ID: "1"}, {ID: "1"}}}
		assert.True(t, errors.Is(dup.Validate(), ErrDuplicateDocument))

		empty := Snapshot{Documents: []Document{{Name: "x"}}}
		assert.True(t, errors.Is(empty.Validate(), ErrEmptyDocumentID))
	})
}

func TestNewDefaultDocument(t *testing.T) {
	d := NewDefaultDocument()
	assert.Equal(t, DefaultDocumentID, d.ID)
	assert.Equal(t, "file1", d.Name)
	assert.Empty(t, d.Content)
	assert.Zero(t, d.Version)
}

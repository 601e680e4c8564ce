// Package docstore 实现文档存储
//
// Store 是节点上文档集合的权威内存副本，提供 put/get/list/delete
// 与逐文档单调递增的版本号。每次成功的修改都会异步持久化整个快照；
// 持久化失败不会回滚内存中的修改。
//
// Store 不加锁：它只能由复制引擎的单个 goroutine 访问。
package docstore

import (
	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-docmesh/pkg/lib/log"
	"github.com/dep2p/go-docmesh/pkg/types"
)

var logger = log.Logger("core/docstore")

// SnapshotSink 接收修改后的快照
type SnapshotSink interface {
	Schedule(types.Snapshot)
}

// Store 文档存储
type Store struct {
	clock clock.Clock
	sink  SnapshotSink

	docs       []types.Document
	index      map[types.DocumentID]int
	lastUpdate int64
	active     types.DocumentID
}

// New 创建文档存储
//
// initial 为空时播种一个空的默认文档；sink 可为 nil。
func New(clk clock.Clock, sink SnapshotSink, initial *types.Snapshot) *Store {
	if clk == nil {
		clk = clock.New()
	}
	s := &Store{clock: clk, sink: sink}

	if initial != nil && len(initial.Documents) > 0 {
		s.replace(*initial)
		logger.Debug("已加载快照", "documents", len(s.docs), "lastUpdate", s.lastUpdate)
	} else {
		s.replace(types.Snapshot{Documents: []types.Document{types.NewDefaultDocument()}})
	}
	return s
}

// ============================================================================
//                              读取
// ============================================================================

// Get 按 ID 获取文档
func (s *Store) Get(id types.DocumentID) (types.Document, bool) {
	i, ok := s.index[id]
	if !ok {
		return types.Document{}, false
	}
	return s.docs[i], true
}

// Version 返回文档版本，缺失的文档视为 0
func (s *Store) Version(id types.DocumentID) uint64 {
	if d, ok := s.Get(id); ok {
		return d.Version
	}
	return 0
}

// List 按创建顺序返回所有文档的副本
func (s *Store) List() []types.Document {
	out := make([]types.Document, len(s.docs))
	copy(out, s.docs)
	return out
}

// Len 返回文档数量
func (s *Store) Len() int {
	return len(s.docs)
}

// LastUpdate 返回本地逻辑时钟
func (s *Store) LastUpdate() int64 {
	return s.lastUpdate
}

// Snapshot 返回当前快照
func (s *Store) Snapshot() types.Snapshot {
	return types.Snapshot{Documents: s.List(), LastUpdate: s.lastUpdate}
}

// Active 返回当前活动文档 ID，集合为空时返回空
func (s *Store) Active() types.DocumentID {
	return s.active
}

// ============================================================================
//                              修改
// ============================================================================

// Put 插入或整体替换文档
func (s *Store) Put(doc types.Document) error {
	if doc.ID.IsEmpty() {
		return types.ErrEmptyDocumentID
	}
	if i, ok := s.index[doc.ID]; ok {
		s.docs[i] = doc
	} else {
		if doc.Name == "" {
			doc.Name = types.DefaultDocumentName(len(s.docs) + 1)
		}
		s.index[doc.ID] = len(s.docs)
		s.docs = append(s.docs, doc)
		if s.active.IsEmpty() {
			s.active = doc.ID
		}
	}
	s.changed()
	return nil
}

// Create 创建空文档，版本为 0
//
// name 为空时按位置命名为 file<N>。
func (s *Store) Create(name string) types.Document {
	doc := types.Document{ID: types.NewDocumentID(), Name: name}
	_ = s.Put(doc)
	d, _ := s.Get(doc.ID)
	return d
}

// SetContent 修改内容并将版本加 1
func (s *Store) SetContent(id types.DocumentID, content string) (types.Document, error) {
	i, ok := s.index[id]
	if !ok {
		return types.Document{}, ErrNotFound
	}
	s.docs[i].Content = content
	s.docs[i].Version++
	s.changed()
	return s.docs[i], nil
}

// BumpVersion 将版本加 1 并返回新版本
func (s *Store) BumpVersion(id types.DocumentID) (uint64, error) {
	i, ok := s.index[id]
	if !ok {
		return 0, ErrNotFound
	}
	s.docs[i].Version++
	s.changed()
	return s.docs[i].Version, nil
}

// Delete 删除文档，返回是否存在
//
// 删除活动文档时，活动引用回退到第一个剩余文档。
func (s *Store) Delete(id types.DocumentID) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}

	s.docs = append(s.docs[:i], s.docs[i+1:]...)
	s.reindex()

	if s.active == id {
		s.active = ""
		if len(s.docs) > 0 {
			s.active = s.docs[0].ID
		}
	}
	s.changed()
	return true
}

// SetActive 设置活动文档
func (s *Store) SetActive(id types.DocumentID) error {
	if _, ok := s.index[id]; !ok {
		return ErrNotFound
	}
	s.active = id
	return nil
}

// Restore 整体采纳快照，lastUpdate 被替换而不是推进
func (s *Store) Restore(snap types.Snapshot) {
	s.replace(snap)
	s.schedule()
}

// ============================================================================
//                              内部
// ============================================================================

func (s *Store) replace(snap types.Snapshot) {
	s.docs = make([]types.Document, 0, len(snap.Documents))
	s.index = make(map[types.DocumentID]int, len(snap.Documents))
	for _, d := range snap.Documents {
		if d.ID.IsEmpty() {
			continue
		}
		if _, dup := s.index[d.ID]; dup {
			continue
		}
		if d.Name == "" {
			d.Name = types.DefaultDocumentName(len(s.docs) + 1)
		}
		s.index[d.ID] = len(s.docs)
		s.docs = append(s.docs, d)
	}
	s.lastUpdate = snap.LastUpdate

	if _, ok := s.index[s.active]; !ok {
		s.active = ""
		if len(s.docs) > 0 {
			s.active = s.docs[0].ID
		}
	}
}

func (s *Store) reindex() {
	s.index = make(map[types.DocumentID]int, len(s.docs))
	for i, d := range s.docs {
		s.index[d.ID] = i
	}
}

// changed 推进逻辑时钟并调度持久化
//
// lastUpdate = max(prev+1, 当前毫秒)，保证严格递增。
func (s *Store) changed() {
	next := s.clock.Now().UnixMilli()
	if next <= s.lastUpdate {
		next = s.lastUpdate + 1
	}
	s.lastUpdate = next
	s.schedule()
}

func (s *Store) schedule() {
	if s.sink != nil {
		s.sink.Schedule(s.Snapshot())
	}
}

package types

import "fmt"

// ============================================================================
//                              Document
// ============================================================================

// Document 一个可复制的文本文档
//
// Version 从 0 开始，每次本地修改加 1，从不回退。
// 采纳远端更高版本时可能跳变。
type Document struct {
	ID      DocumentID `json:"id"`
	Name    string     `json:"name"`
	Content string     `json:"content"`
	Version uint64     `json:"version"`
}

// DefaultDocumentID 全新节点默认文档的 ID
const DefaultDocumentID DocumentID = "1"

// DefaultDocumentName 按位置生成显示名
func DefaultDocumentName(position int) string {
	return fmt.Sprintf("file%d", position)
}

// NewDefaultDocument 返回全新节点的默认空文档
func NewDefaultDocument() Document {
	return Document{ID: DefaultDocumentID, Name: DefaultDocumentName(1)}
}

// ============================================================================
//                              Snapshot
// ============================================================================

// Snapshot 文档集合快照
//
// LastUpdate 是节点本地的逻辑时钟，仅在会话建立时比较整集新旧。
type Snapshot struct {
	Documents  []Document `json:"documents"`
	LastUpdate int64      `json:"lastUpdate"`
}

// Clone 深拷贝
func (s Snapshot) Clone() Snapshot {
	docs := make([]Document, len(s.Documents))
	copy(docs, s.Documents)
	return Snapshot{Documents: docs, LastUpdate: s.LastUpdate}
}

// Find 按 ID 查找
func (s Snapshot) Find(id DocumentID) (Document, bool) {
	for _, d := range s.Documents {
		if d.ID == id {
			return d, true
		}
	}
	return Document{}, false
}

// Validate 检查 ID 非空且唯一
func (s Snapshot) Validate() error {
	seen := make(map[DocumentID]struct{}, len(s.Documents))
	for i, d := range s.Documents {
		if d.ID.IsEmpty() {
			return fmt.Errorf("document %d: %w", i, ErrEmptyDocumentID)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("document %q: %w", d.ID, ErrDuplicateDocument)
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}

// ============================================================================
//                              PendingEdit
// ============================================================================

// PendingEdit 离线期间捕获的本地编辑
//
// Timestamp 为毫秒时间戳，队列按其升序回放。
type PendingEdit struct {
	DocumentID DocumentID `json:"fileId"`
	Content    string     `json:"content"`
	Version    uint64     `json:"version"`
	Timestamp  int64      `json:"timestamp"`
}
